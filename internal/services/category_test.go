package services

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/xenastore/storefront/internal/models"
)

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"iPhone 13 Pro Max":   "iphone-13-pro-max",
		"  Laptops & Tablets ": "laptops-tablets",
		"--already-slugged--": "already-slugged",
		"Ünïcode only":        "n-code-only",
		"!!!":                 "",
	}
	for in, want := range tests {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCategoryList(t *testing.T) {
	database, mock, m := newTestDB(t)
	svc := NewCategoryService(database, m)

	mock.ExpectQuery(regexp.QuoteMeta("FROM categories ORDER BY name")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "slug", "created_at", "updated_at"}).
			AddRow(1, "Laptops", "laptops", testTime, testTime).
			AddRow(2, "Phones", "phones", testTime, testTime))

	got, err := svc.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[1].Slug != "phones" {
		t.Fatalf("unexpected categories %+v", got)
	}
	expectationsMet(t, mock)
}

func TestCategoryCreate(t *testing.T) {
	t.Run("derives slug", func(t *testing.T) {
		database, mock, m := newTestDB(t)
		svc := NewCategoryService(database, m)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO categories (name, slug)")).
			WithArgs("Smart Watches", "smart-watches").
			WillReturnResult(sqlmock.NewResult(7, 1))

		c, err := svc.Create(context.Background(), models.CategoryRequest{Name: " Smart Watches "})
		if err != nil {
			t.Fatal(err)
		}
		if c.ID != 7 || c.Slug != "smart-watches" {
			t.Fatalf("unexpected category %+v", c)
		}
		expectationsMet(t, mock)
	})

	t.Run("duplicate slug", func(t *testing.T) {
		database, mock, m := newTestDB(t)
		svc := NewCategoryService(database, m)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO categories")).
			WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

		_, err := svc.Create(context.Background(), models.CategoryRequest{Name: "Phones"})
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("name required", func(t *testing.T) {
		database, _, m := newTestDB(t)
		svc := NewCategoryService(database, m)

		_, err := svc.Create(context.Background(), models.CategoryRequest{Name: "  "})
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestCategoryUpdate(t *testing.T) {
	cols := []string{"id", "name", "slug", "created_at", "updated_at"}

	t.Run("renames", func(t *testing.T) {
		database, mock, m := newTestDB(t)
		svc := NewCategoryService(database, m)

		mock.ExpectQuery(regexp.QuoteMeta("FROM categories WHERE id = ?")).
			WithArgs(4).
			WillReturnRows(sqlmock.NewRows(cols).AddRow(4, "Phones", "phones", testTime, testTime))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE categories SET name = ?, slug = ? WHERE id = ?")).
			WithArgs("Smart Phones", "smart-phones", 4).
			WillReturnResult(sqlmock.NewResult(0, 1))

		c, err := svc.Update(context.Background(), 4, models.CategoryRequest{Name: "Smart Phones"})
		if err != nil {
			t.Fatal(err)
		}
		if c.Name != "Smart Phones" || c.Slug != "smart-phones" || !c.CreatedAt.Equal(testTime) {
			t.Fatalf("unexpected category %+v", c)
		}
		expectationsMet(t, mock)
	})

	t.Run("duplicate slug", func(t *testing.T) {
		database, mock, m := newTestDB(t)
		svc := NewCategoryService(database, m)

		mock.ExpectQuery(regexp.QuoteMeta("FROM categories WHERE id = ?")).
			WillReturnRows(sqlmock.NewRows(cols).AddRow(4, "Phones", "phones", testTime, testTime))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE categories")).
			WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

		_, err := svc.Update(context.Background(), 4, models.CategoryRequest{Name: "Laptops"})
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
		expectationsMet(t, mock)
	})

	t.Run("missing", func(t *testing.T) {
		database, mock, m := newTestDB(t)
		svc := NewCategoryService(database, m)

		mock.ExpectQuery(regexp.QuoteMeta("FROM categories WHERE id = ?")).
			WillReturnRows(sqlmock.NewRows(cols))

		if _, err := svc.Update(context.Background(), 9, models.CategoryRequest{Name: "Laptops"}); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestCategoryGetBySlugNotFound(t *testing.T) {
	database, mock, m := newTestDB(t)
	svc := NewCategoryService(database, m)

	mock.ExpectQuery(regexp.QuoteMeta("FROM categories WHERE slug = ?")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "slug", "created_at", "updated_at"}))

	_, err := svc.GetBySlug(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCategoryDelete(t *testing.T) {
	t.Run("still has products", func(t *testing.T) {
		database, mock, m := newTestDB(t)
		svc := NewCategoryService(database, m)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM products WHERE category_id = ?")).
			WithArgs(3).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

		if err := svc.Delete(context.Background(), 3); !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
		expectationsMet(t, mock)
	})

	t.Run("missing", func(t *testing.T) {
		database, mock, m := newTestDB(t)
		svc := NewCategoryService(database, m)

		mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM categories WHERE id = ?")).
			WithArgs(3).
			WillReturnResult(sqlmock.NewResult(0, 0))

		if err := svc.Delete(context.Background(), 3); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		expectationsMet(t, mock)
	})
}
