package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xenastore/storefront/internal/db"
	"github.com/xenastore/storefront/internal/metrics"
	"github.com/xenastore/storefront/internal/models"
)

const categoryColumns = "id, name, slug, created_at, updated_at"

// CategoryService handles category-related operations
type CategoryService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
}

// NewCategoryService creates a new category service
func NewCategoryService(db *db.DB, metrics *metrics.AppMetrics) *CategoryService {
	return &CategoryService{db: db, metrics: metrics}
}

// List returns every category ordered by name
func (s *CategoryService) List(ctx context.Context) ([]models.Category, error) {
	start := time.Now()
	query := "SELECT " + categoryColumns + " FROM categories ORDER BY name"
	rows, err := s.db.QueryContext(ctx, query)
	s.metrics.RecordDBQuery(ctx, "SELECT", "categories", query, start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// Get returns a category by ID
func (s *CategoryService) Get(ctx context.Context, id int64) (*models.Category, error) {
	return s.getBy(ctx, "id", id)
}

// GetBySlug returns a category by slug
func (s *CategoryService) GetBySlug(ctx context.Context, slug string) (*models.Category, error) {
	return s.getBy(ctx, "slug", slug)
}

func (s *CategoryService) getBy(ctx context.Context, column string, value any) (*models.Category, error) {
	start := time.Now()
	query := "SELECT " + categoryColumns + " FROM categories WHERE " + column + " = ?"
	var c models.Category
	err := s.db.QueryRowContext(ctx, query, value).Scan(&c.ID, &c.Name, &c.Slug, &c.CreatedAt, &c.UpdatedAt)
	s.metrics.RecordDBQuery(ctx, "SELECT", "categories", query, start, err == nil || errors.Is(err, sql.ErrNoRows))

	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundf("category %v", value)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return &c, nil
}

// Create inserts a category, deriving the slug from the name when omitted
func (s *CategoryService) Create(ctx context.Context, req models.CategoryRequest) (*models.Category, error) {
	name, slug, err := normalizeCategory(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	query := "INSERT INTO categories (name, slug) VALUES (?, ?)"
	result, err := s.db.ExecContext(ctx, query, name, slug)
	s.metrics.RecordDBQuery(ctx, "INSERT", "categories", query, start, err == nil)
	if err != nil {
		if isDuplicate(err) {
			return nil, fmt.Errorf("%w: category slug %q already exists", ErrConflict, slug)
		}
		return nil, fmt.Errorf("failed to create category: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get category ID: %w", err)
	}

	now := time.Now()
	return &models.Category{ID: id, Name: name, Slug: slug, CreatedAt: now, UpdatedAt: now}, nil
}

// Update renames a category
func (s *CategoryService) Update(ctx context.Context, id int64, req models.CategoryRequest) (*models.Category, error) {
	name, slug, err := normalizeCategory(req)
	if err != nil {
		return nil, err
	}

	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	query := "UPDATE categories SET name = ?, slug = ? WHERE id = ?"
	_, err = s.db.ExecContext(ctx, query, name, slug, id)
	s.metrics.RecordDBQuery(ctx, "UPDATE", "categories", query, start, err == nil)
	if err != nil {
		if isDuplicate(err) {
			return nil, fmt.Errorf("%w: category slug %q already exists", ErrConflict, slug)
		}
		return nil, fmt.Errorf("failed to update category: %w", err)
	}

	existing.Name = name
	existing.Slug = slug
	existing.UpdatedAt = time.Now()
	return existing, nil
}

// Delete removes a category that no longer owns products
func (s *CategoryService) Delete(ctx context.Context, id int64) error {
	start := time.Now()
	countQuery := "SELECT COUNT(*) FROM products WHERE category_id = ?"
	var count int
	err := s.db.QueryRowContext(ctx, countQuery, id).Scan(&count)
	s.metrics.RecordDBQuery(ctx, "SELECT", "products", countQuery, start, err == nil)
	if err != nil {
		return fmt.Errorf("failed to count category products: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: category still has %d products", ErrConflict, count)
	}

	start = time.Now()
	query := "DELETE FROM categories WHERE id = ?"
	result, err := s.db.ExecContext(ctx, query, id)
	s.metrics.RecordDBQuery(ctx, "DELETE", "categories", query, start, err == nil)
	if err != nil {
		if isMySQLError(err, errRowIsReferenced) {
			return fmt.Errorf("%w: category is still referenced", ErrConflict)
		}
		return fmt.Errorf("failed to delete category: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return notFoundf("category %d", id)
	}
	return nil
}

func normalizeCategory(req models.CategoryRequest) (name, slug string, err error) {
	name = strings.TrimSpace(req.Name)
	if name == "" {
		return "", "", invalidf("category name is required")
	}
	slug = Slugify(req.Slug)
	if slug == "" {
		slug = Slugify(name)
	}
	if slug == "" {
		return "", "", invalidf("category slug is empty")
	}
	return name, slug, nil
}
