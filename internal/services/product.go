package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tealeg/xlsx"
	"github.com/xenastore/storefront/internal/db"
	"github.com/xenastore/storefront/internal/metrics"
	"github.com/xenastore/storefront/internal/models"
	"github.com/xenastore/storefront/internal/pricing"
	"go.opentelemetry.io/otel/attribute"
)

const productColumns = "p.id, p.category_id, p.slug, p.name, p.brand, p.description, p.images, p.price, " +
	"p.discount_type, p.discount_value, p.stock, p.status, p.`condition`, p.deal_type, p.tags, p.specs, p.details, " +
	"p.created_at, p.updated_at"

const productCacheTTL = 5 * time.Minute

// Caps keep price*quantity sums well inside int64 and stock inside the INT column.
const (
	maxProductPrice = 1_000_000_000_00
	maxProductStock = 1_000_000
)

// ProductCache holds published products by slug
type ProductCache struct {
	mu    sync.RWMutex
	items map[string]cachedProduct
}

type cachedProduct struct {
	product models.Product
	expires time.Time
}

func NewProductCache() *ProductCache {
	return &ProductCache{
		items: make(map[string]cachedProduct),
	}
}

// ProductService handles product-related operations
type ProductService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
	cache   *ProductCache
}

// NewProductService creates a new product service
func NewProductService(db *db.DB, metrics *metrics.AppMetrics) *ProductService {
	return &ProductService{
		db:      db,
		metrics: metrics,
		cache:   NewProductCache(),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (models.Product, error) {
	var p models.Product
	err := row.Scan(
		&p.ID, &p.CategoryID, &p.Slug, &p.Name, &p.Brand, &p.Description, &p.Images, &p.Price,
		&p.Discount.Type, &p.Discount.Value, &p.Stock, &p.Status, &p.Condition, &p.DealType,
		&p.Tags, &p.Specs, &p.Details, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return p, err
	}
	p.FinalPrice = pricing.ApplyDiscount(p.Price, p.Discount)
	return p, nil
}

func (s *ProductService) queryProducts(ctx context.Context, query string, args ...any) ([]models.Product, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	s.metrics.RecordDBQuery(ctx, "SELECT", "products", query, start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *ProductService) queryProduct(ctx context.Context, query string, args ...any) (*models.Product, error) {
	start := time.Now()
	p, err := scanProduct(s.db.QueryRowContext(ctx, query, args...))
	s.metrics.RecordDBQuery(ctx, "SELECT", "products", query, start, err == nil || errors.Is(err, sql.ErrNoRows))

	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundf("product")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}

// ListPublished returns a filtered page of the public catalog
func (s *ProductService) ListPublished(ctx context.Context, f models.ProductFilter) ([]models.Product, error) {
	limit, offset := normalizePage(f.Limit, f.Offset)

	join := ""
	where := []string{"p.status = ?"}
	args := []any{string(models.StatusPublished)}

	if slug := strings.TrimSpace(f.CategorySlug); slug != "" {
		join = " JOIN categories c ON c.id = p.category_id"
		where = append(where, "c.slug = ?")
		args = append(args, slug)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		like := "%" + escapeLike(q) + "%"
		where = append(where, "(p.name LIKE ? OR p.brand LIKE ?)")
		args = append(args, like, like)
	}
	if f.Condition != "" {
		if !f.Condition.Valid() {
			return nil, invalidf("unknown condition %q", f.Condition)
		}
		where = append(where, "p.`condition` = ?")
		args = append(args, string(f.Condition))
	}

	query := "SELECT " + productColumns + " FROM products p" + join +
		" WHERE " + strings.Join(where, " AND ") +
		" ORDER BY p.created_at DESC, p.id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	return s.queryProducts(ctx, query, args...)
}

// GetPublishedBySlug returns a published product, served from cache when fresh
func (s *ProductService) GetPublishedBySlug(ctx context.Context, slug string) (*models.Product, error) {
	s.cache.mu.RLock()
	cached, exists := s.cache.items[slug]
	s.cache.mu.RUnlock()

	if exists && time.Now().Before(cached.expires) {
		s.metrics.CacheHits.Add(ctx, 1, s.metrics.Attrs(attribute.String("cache", "product")))
		s.recordView(ctx, &cached.product)
		p := cached.product
		return &p, nil
	}
	s.metrics.CacheMisses.Add(ctx, 1, s.metrics.Attrs(attribute.String("cache", "product")))

	query := "SELECT " + productColumns + " FROM products p WHERE p.slug = ? AND p.status = ?"
	p, err := s.queryProduct(ctx, query, slug, string(models.StatusPublished))
	if err != nil {
		return nil, err
	}

	s.cache.mu.Lock()
	s.cache.items[slug] = cachedProduct{product: *p, expires: time.Now().Add(productCacheTTL)}
	s.cache.mu.Unlock()

	s.recordView(ctx, p)
	return p, nil
}

func (s *ProductService) recordView(ctx context.Context, p *models.Product) {
	s.metrics.ProductsViewed.Add(ctx, 1, s.metrics.Attrs(
		attribute.Int64("product_id", p.ID),
		attribute.Int64("category_id", p.CategoryID),
		attribute.String("product_condition", string(p.Condition)),
	))
}

func (s *ProductService) invalidate(slugs ...string) {
	s.cache.mu.Lock()
	defer s.cache.mu.Unlock()
	for _, slug := range slugs {
		delete(s.cache.items, slug)
	}
}

// Get returns a product by ID regardless of status
func (s *ProductService) Get(ctx context.Context, id int64) (*models.Product, error) {
	query := "SELECT " + productColumns + " FROM products p WHERE p.id = ?"
	return s.queryProduct(ctx, query, id)
}

// ListAll returns a page of products in every status
func (s *ProductService) ListAll(ctx context.Context, limit, offset int) ([]models.Product, error) {
	limit, offset = normalizePage(limit, offset)
	query := "SELECT " + productColumns + " FROM products p ORDER BY p.created_at DESC, p.id DESC LIMIT ? OFFSET ?"
	return s.queryProducts(ctx, query, limit, offset)
}

// Create validates and inserts a product
func (s *ProductService) Create(ctx context.Context, req models.ProductRequest) (*models.Product, error) {
	p, err := normalizeProduct(req)
	if err != nil {
		return nil, err
	}
	if err := s.ensureCategory(ctx, p.CategoryID); err != nil {
		return nil, err
	}

	start := time.Now()
	query := "INSERT INTO products (category_id, slug, name, brand, description, images, price, discount_type, " +
		"discount_value, stock, status, `condition`, deal_type, tags, specs, details) " +
		"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	result, err := s.db.ExecContext(ctx, query, productArgs(&p)...)
	s.metrics.RecordDBQuery(ctx, "INSERT", "products", query, start, err == nil)
	if err != nil {
		return nil, productWriteError(err, p.Slug)
	}

	p.ID, err = result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get product ID: %w", err)
	}

	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	slog.InfoContext(ctx, "product created", "product_id", p.ID, "slug", p.Slug, "status", p.Status)
	return &p, nil
}

// Update replaces every editable field of a product
func (s *ProductService) Update(ctx context.Context, id int64, req models.ProductRequest) (*models.Product, error) {
	p, err := normalizeProduct(req)
	if err != nil {
		return nil, err
	}

	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureCategory(ctx, p.CategoryID); err != nil {
		return nil, err
	}

	start := time.Now()
	query := "UPDATE products SET category_id = ?, slug = ?, name = ?, brand = ?, description = ?, images = ?, " +
		"price = ?, discount_type = ?, discount_value = ?, stock = ?, status = ?, `condition` = ?, deal_type = ?, " +
		"tags = ?, specs = ?, details = ? WHERE id = ?"
	_, err = s.db.ExecContext(ctx, query, append(productArgs(&p), id)...)
	s.metrics.RecordDBQuery(ctx, "UPDATE", "products", query, start, err == nil)
	if err != nil {
		return nil, productWriteError(err, p.Slug)
	}

	s.invalidate(existing.Slug, p.Slug)

	p.ID = id
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now()
	return &p, nil
}

// Delete removes a product; cart lines referencing it cascade
func (s *ProductService) Delete(ctx context.Context, id int64) error {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	start := time.Now()
	query := "DELETE FROM products WHERE id = ?"
	_, err = s.db.ExecContext(ctx, query, id)
	s.metrics.RecordDBQuery(ctx, "DELETE", "products", query, start, err == nil)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	s.invalidate(existing.Slug)
	return nil
}

// ExportXLSX writes the whole catalog as a spreadsheet
func (s *ProductService) ExportXLSX(ctx context.Context, w io.Writer) error {
	products, err := s.queryProducts(ctx, "SELECT "+productColumns+" FROM products p ORDER BY p.id")
	if err != nil {
		return err
	}

	start := time.Now()
	catQuery := "SELECT id, name FROM categories"
	rows, err := s.db.QueryContext(ctx, catQuery)
	s.metrics.RecordDBQuery(ctx, "SELECT", "categories", catQuery, start, err == nil)
	if err != nil {
		return fmt.Errorf("failed to query categories: %w", err)
	}
	categoryNames := make(map[int64]string)
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan category: %w", err)
		}
		categoryNames[id] = name
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Products")
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	header := sheet.AddRow()
	for _, h := range exportHeaders {
		header.AddCell().SetString(h)
	}

	for _, p := range products {
		row := sheet.AddRow()
		row.AddCell().SetInt64(p.ID)
		row.AddCell().SetString(p.Slug)
		row.AddCell().SetString(p.Name)
		row.AddCell().SetString(p.Brand)
		row.AddCell().SetString(categoryNames[p.CategoryID])
		row.AddCell().SetInt64(p.Price)
		row.AddCell().SetString(string(p.Discount.Type))
		row.AddCell().SetInt64(p.Discount.Value)
		row.AddCell().SetInt64(p.FinalPrice)
		row.AddCell().SetInt(p.Stock)
		row.AddCell().SetString(string(p.Status))
		row.AddCell().SetString(string(p.Condition))
		row.AddCell().SetString(p.DealType)
		row.AddCell().SetString(strings.Join(p.Images, ","))
		row.AddCell().SetString(strings.Join(p.Tags, ","))
		row.AddCell().SetString(p.CreatedAt.Format("2006-01-02 15:04:05"))
		row.AddCell().SetString(p.UpdatedAt.Format("2006-01-02 15:04:05"))
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("failed to write spreadsheet: %w", err)
	}
	return nil
}

var exportHeaders = []string{
	"ID", "Slug", "Name", "Brand", "Category", "Price", "DiscountType", "DiscountValue",
	"FinalPrice", "Stock", "Status", "Condition", "DealType", "Images", "Tags", "CreatedAt", "UpdatedAt",
}

func (s *ProductService) ensureCategory(ctx context.Context, categoryID int64) error {
	start := time.Now()
	query := "SELECT EXISTS(SELECT 1 FROM categories WHERE id = ?)"
	var exists bool
	err := s.db.QueryRowContext(ctx, query, categoryID).Scan(&exists)
	s.metrics.RecordDBQuery(ctx, "SELECT", "categories", query, start, err == nil)
	if err != nil {
		return fmt.Errorf("failed to verify category: %w", err)
	}
	if !exists {
		return invalidf("category %d does not exist", categoryID)
	}
	return nil
}

func productArgs(p *models.Product) []any {
	return []any{
		p.CategoryID, p.Slug, p.Name, p.Brand, p.Description, p.Images, p.Price,
		string(p.Discount.Type), p.Discount.Value, p.Stock, string(p.Status), string(p.Condition),
		p.DealType, p.Tags, p.Specs, p.Details,
	}
}

func productWriteError(err error, slug string) error {
	switch {
	case isDuplicate(err):
		return fmt.Errorf("%w: product slug %q already exists", ErrConflict, slug)
	case isMySQLError(err, errNoReferencedRow):
		return invalidf("category does not exist")
	default:
		return fmt.Errorf("failed to write product: %w", err)
	}
}

func normalizeProduct(req models.ProductRequest) (models.Product, error) {
	p := models.Product{
		CategoryID:  req.CategoryID,
		Name:        strings.TrimSpace(req.Name),
		Brand:       strings.TrimSpace(req.Brand),
		Description: strings.TrimSpace(req.Description),
		Images:      cleanList(req.Images),
		Price:       req.Price,
		Discount:    req.Discount,
		Stock:       req.Stock,
		Status:      req.Status,
		Condition:   req.Condition,
		DealType:    strings.TrimSpace(req.DealType),
		Tags:        cleanList(req.Tags),
		Specs:       cleanList(req.Specs),
		Details:     cleanList(req.Details),
	}

	if p.Name == "" {
		return p, invalidf("product name is required")
	}
	p.Slug = Slugify(req.Slug)
	if p.Slug == "" {
		p.Slug = Slugify(p.Name)
	}
	if p.Slug == "" {
		return p, invalidf("product slug is empty")
	}
	if p.CategoryID <= 0 {
		return p, invalidf("categoryId is required")
	}
	if p.Price < 0 || p.Price > maxProductPrice {
		return p, invalidf("price must be between 0 and %d", int64(maxProductPrice))
	}
	if p.Stock < 0 || p.Stock > maxProductStock {
		return p, invalidf("stock must be between 0 and %d", maxProductStock)
	}

	if p.Discount.Type == "" {
		p.Discount.Type = models.DiscountNone
	}
	switch {
	case !p.Discount.Type.Valid():
		return p, invalidf("unknown discount type %q", p.Discount.Type)
	case p.Discount.Value < 0 || p.Discount.Value > maxProductPrice:
		return p, invalidf("discount value must be between 0 and %d", int64(maxProductPrice))
	case p.Discount.Type == models.DiscountPercent && p.Discount.Value > 100:
		return p, invalidf("percent discount must be at most 100")
	case p.Discount.Type == models.DiscountNone:
		p.Discount.Value = 0
	}

	if p.Status == "" {
		p.Status = models.StatusDraft
	}
	if !p.Status.Valid() {
		return p, invalidf("unknown status %q", p.Status)
	}
	if p.Condition == "" {
		p.Condition = models.ConditionNew
	}
	if !p.Condition.Valid() {
		return p, invalidf("unknown condition %q", p.Condition)
	}

	p.FinalPrice = pricing.ApplyDiscount(p.Price, p.Discount)
	return p, nil
}

func cleanList(in []string) models.StringList {
	out := models.StringList{}
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}
