package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xenastore/storefront/internal/db"
	"github.com/xenastore/storefront/internal/metrics"
	"github.com/xenastore/storefront/internal/models"
	"github.com/xenastore/storefront/internal/pricing"
	"go.opentelemetry.io/otel/attribute"
)

const cartItemColumns = "id, cart_id, product_id, product_slug, product_name, product_image, `condition`, " +
	"quantity, unit_price, discount_type, discount_value, created_at, updated_at"

// CartService handles cart-related operations
type CartService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
}

// NewCartService creates a new cart service
func NewCartService(db *db.DB, metrics *metrics.AppMetrics) *CartService {
	return &CartService{
		db:      db,
		metrics: metrics,
	}
}

// MonitorActiveCarts periodically records the number of carts holding items
// until ctx is cancelled.
func (s *CartService) MonitorActiveCarts(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.recordActiveCarts(ctx)
		}
	}
}

func (s *CartService) recordActiveCarts(ctx context.Context) {
	query := "SELECT COUNT(DISTINCT cart_id) FROM cart_items"
	start := time.Now()
	var count int64
	err := s.db.QueryRowContext(ctx, query).Scan(&count)
	s.metrics.RecordDBQuery(ctx, "SELECT", "cart_items", query, start, err == nil)
	if err != nil {
		if ctx.Err() == nil {
			slog.WarnContext(ctx, "failed to count active carts", "error", err)
		}
		return
	}
	s.metrics.ActiveCartsCount.Record(ctx, count, s.metrics.Attrs())
}

func scanCartItem(row rowScanner) (models.CartItem, error) {
	var it models.CartItem
	err := row.Scan(
		&it.ID, &it.CartID, &it.ProductID, &it.ProductSlug, &it.ProductName, &it.ProductImage, &it.Condition,
		&it.Quantity, &it.UnitPrice, &it.Discount.Type, &it.Discount.Value, &it.CreatedAt, &it.UpdatedAt,
	)
	return it, err
}

// Get returns the cart with priced lines. A missing or unknown cart is an
// empty cart, not an error.
func (s *CartService) Get(ctx context.Context, cartID string) (*models.CartResponse, error) {
	if cartID == "" {
		return buildCartResponse(nil, nil), nil
	}

	start := time.Now()
	query := "SELECT id, created_at, updated_at FROM carts WHERE id = ?"
	var cart models.Cart
	err := s.db.QueryRowContext(ctx, query, cartID).Scan(&cart.ID, &cart.CreatedAt, &cart.UpdatedAt)
	s.metrics.RecordDBQuery(ctx, "SELECT", "carts", query, start, err == nil || errors.Is(err, sql.ErrNoRows))
	if errors.Is(err, sql.ErrNoRows) {
		return buildCartResponse(nil, nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	items, err := s.loadItems(ctx, s.db, cartID, false)
	if err != nil {
		return nil, err
	}
	return buildCartResponse(&cart, items), nil
}

func (s *CartService) loadItems(ctx context.Context, q querier, cartID string, forUpdate bool) ([]models.CartItem, error) {
	start := time.Now()
	query := "SELECT " + cartItemColumns + " FROM cart_items WHERE cart_id = ? ORDER BY id"
	if forUpdate {
		query += " FOR UPDATE"
	}
	rows, err := q.QueryContext(ctx, query, cartID)
	s.metrics.RecordDBQuery(ctx, "SELECT", "cart_items", query, start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart items: %w", err)
	}
	defer rows.Close()

	items := []models.CartItem{}
	for rows.Next() {
		it, err := scanCartItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func buildCartResponse(cart *models.Cart, items []models.CartItem) *models.CartResponse {
	lines := make([]models.CartLine, 0, len(items))
	priced := make([]pricing.Line, 0, len(items))
	for _, it := range items {
		l := pricing.Line{UnitPrice: it.UnitPrice, Discount: it.Discount, Quantity: it.Quantity}
		a := pricing.Price(l)
		lines = append(lines, models.CartLine{
			CartItem:       it,
			FinalUnitPrice: a.FinalUnitPrice,
			LineSubtotal:   a.Subtotal,
			LineDiscount:   a.Discount,
			LineTotal:      a.Total,
		})
		priced = append(priced, l)
	}
	return &models.CartResponse{
		Cart:   cart,
		Items:  lines,
		Totals: pricing.Summarize(priced),
	}
}

// cartProduct is the part of a product a cart line snapshots
type cartProduct struct {
	ID        int64
	Slug      string
	Name      string
	Images    models.StringList
	Price     int64
	Discount  models.Discount
	Stock     int
	Condition models.Condition
}

func (s *CartService) publishedProduct(ctx context.Context, q querier, productID int64) (*cartProduct, error) {
	start := time.Now()
	query := "SELECT id, slug, name, images, price, discount_type, discount_value, stock, `condition` " +
		"FROM products WHERE id = ? AND status = ?"
	var p cartProduct
	err := q.QueryRowContext(ctx, query, productID, string(models.StatusPublished)).Scan(
		&p.ID, &p.Slug, &p.Name, &p.Images, &p.Price, &p.Discount.Type, &p.Discount.Value, &p.Stock, &p.Condition,
	)
	s.metrics.RecordDBQuery(ctx, "SELECT", "products", query, start, err == nil || errors.Is(err, sql.ErrNoRows))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundf("product %d", productID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}

// ensureCart returns cartID when that cart exists, otherwise creates a new one
func (s *CartService) ensureCart(ctx context.Context, q querier, cartID string) (string, error) {
	if cartID != "" {
		start := time.Now()
		query := "SELECT EXISTS(SELECT 1 FROM carts WHERE id = ?)"
		var exists bool
		err := q.QueryRowContext(ctx, query, cartID).Scan(&exists)
		s.metrics.RecordDBQuery(ctx, "SELECT", "carts", query, start, err == nil)
		if err != nil {
			return "", fmt.Errorf("failed to get cart: %w", err)
		}
		if exists {
			return cartID, nil
		}
	}

	id := uuid.NewString()
	start := time.Now()
	query := "INSERT INTO carts (id) VALUES (?)"
	_, err := q.ExecContext(ctx, query, id)
	s.metrics.RecordDBQuery(ctx, "INSERT", "carts", query, start, err == nil)
	if err != nil {
		return "", fmt.Errorf("failed to create cart: %w", err)
	}
	return id, nil
}

// AddItem adds quantity of a published product to the cart, creating the
// cart when cartID is empty or unknown. The price and discount are
// snapshotted on the first add and kept on later adds.
func (s *CartService) AddItem(ctx context.Context, cartID string, req models.AddToCartRequest) (*models.CartResponse, error) {
	if req.ProductID <= 0 {
		return nil, invalidf("productId is required")
	}
	if req.Quantity < 1 {
		return nil, invalidf("quantity must be at least 1")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	product, err := s.publishedProduct(ctx, tx, req.ProductID)
	if err != nil {
		return nil, err
	}

	cartID, err = s.ensureCart(ctx, tx, cartID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	checkQuery := "SELECT id, quantity FROM cart_items WHERE cart_id = ? AND product_id = ? FOR UPDATE"
	var existingID int64
	var existingQty int
	err = tx.QueryRowContext(ctx, checkQuery, cartID, product.ID).Scan(&existingID, &existingQty)
	s.metrics.RecordDBQuery(ctx, "SELECT", "cart_items", checkQuery, start, err == nil || errors.Is(err, sql.ErrNoRows))
	found := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to check cart item: %w", err)
	}

	if req.Quantity > product.Stock-existingQty {
		return nil, fmt.Errorf("%w: only %d of %q available", ErrOutOfStock, product.Stock, product.Name)
	}

	start = time.Now()
	if found {
		updateQuery := "UPDATE cart_items SET quantity = ? WHERE id = ?"
		_, err = tx.ExecContext(ctx, updateQuery, existingQty+req.Quantity, existingID)
		s.metrics.RecordDBQuery(ctx, "UPDATE", "cart_items", updateQuery, start, err == nil)
		if err != nil {
			return nil, fmt.Errorf("failed to update cart item: %w", err)
		}
	} else {
		image := ""
		if len(product.Images) > 0 {
			image = product.Images[0]
		}
		insertQuery := "INSERT INTO cart_items (cart_id, product_id, product_slug, product_name, product_image, " +
			"`condition`, quantity, unit_price, discount_type, discount_value) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
		_, err = tx.ExecContext(ctx, insertQuery,
			cartID, product.ID, product.Slug, product.Name, image, string(product.Condition),
			req.Quantity, product.Price, string(product.Discount.Type), product.Discount.Value,
		)
		s.metrics.RecordDBQuery(ctx, "INSERT", "cart_items", insertQuery, start, err == nil)
		if err != nil {
			return nil, fmt.Errorf("failed to add item to cart: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cart: %w", err)
	}

	s.metrics.CartItemsAdded.Add(ctx, int64(req.Quantity), s.metrics.Attrs(
		attribute.Int64("product_id", product.ID),
	))

	return s.Get(ctx, cartID)
}

// UpdateQuantity sets the quantity of a cart line; zero removes it
func (s *CartService) UpdateQuantity(ctx context.Context, cartID string, productID int64, quantity int) (*models.CartResponse, error) {
	if quantity < 0 {
		return nil, invalidf("quantity must not be negative")
	}
	if quantity == 0 {
		return s.RemoveItem(ctx, cartID, productID)
	}
	if cartID == "" {
		return nil, notFoundf("cart item")
	}

	start := time.Now()
	stockQuery := "SELECT p.stock FROM cart_items ci JOIN products p ON p.id = ci.product_id " +
		"WHERE ci.cart_id = ? AND ci.product_id = ?"
	var stock int
	err := s.db.QueryRowContext(ctx, stockQuery, cartID, productID).Scan(&stock)
	s.metrics.RecordDBQuery(ctx, "SELECT", "cart_items", stockQuery, start, err == nil || errors.Is(err, sql.ErrNoRows))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundf("cart item")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check stock: %w", err)
	}
	if quantity > stock {
		return nil, fmt.Errorf("%w: only %d available", ErrOutOfStock, stock)
	}

	start = time.Now()
	query := "UPDATE cart_items SET quantity = ? WHERE cart_id = ? AND product_id = ?"
	_, err = s.db.ExecContext(ctx, query, quantity, cartID, productID)
	s.metrics.RecordDBQuery(ctx, "UPDATE", "cart_items", query, start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to update cart item: %w", err)
	}

	return s.Get(ctx, cartID)
}

// RemoveItem removes a product line from the cart
func (s *CartService) RemoveItem(ctx context.Context, cartID string, productID int64) (*models.CartResponse, error) {
	if cartID == "" {
		return nil, notFoundf("cart item")
	}

	start := time.Now()
	query := "DELETE FROM cart_items WHERE cart_id = ? AND product_id = ?"
	result, err := s.db.ExecContext(ctx, query, cartID, productID)
	s.metrics.RecordDBQuery(ctx, "DELETE", "cart_items", query, start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to remove item from cart: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return nil, notFoundf("cart item")
	}

	return s.Get(ctx, cartID)
}

// Clear removes every line from the cart
func (s *CartService) Clear(ctx context.Context, cartID string) error {
	if cartID == "" {
		return nil
	}
	return s.clearItems(ctx, s.db, cartID)
}

func (s *CartService) clearItems(ctx context.Context, q querier, cartID string) error {
	start := time.Now()
	query := "DELETE FROM cart_items WHERE cart_id = ?"
	_, err := q.ExecContext(ctx, query, cartID)
	s.metrics.RecordDBQuery(ctx, "DELETE", "cart_items", query, start, err == nil)
	if err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}
