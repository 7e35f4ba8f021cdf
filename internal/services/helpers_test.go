package services

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/xenastore/storefront/internal/db"
	"github.com/xenastore/storefront/internal/metrics"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

var testTime = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) (*db.DB, sqlmock.Sqlmock, *metrics.AppMetrics) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	m, err := metrics.New(sdkmetric.NewMeterProvider().Meter("test"), "test")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	return db.Wrap(sqlDB), mock, m
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

var productCols = []string{
	"id", "category_id", "slug", "name", "brand", "description", "images", "price",
	"discount_type", "discount_value", "stock", "status", "condition", "deal_type",
	"tags", "specs", "details", "created_at", "updated_at",
}

func productRow(rows *sqlmock.Rows, id int64, slug string, price int64, discountType string, discountValue int64, stock int, status string) *sqlmock.Rows {
	return rows.AddRow(
		id, 1, slug, "Product "+slug, "Brand", "desc", `["https://img/`+slug+`.jpg"]`, price,
		discountType, discountValue, stock, status, "UK_USED", "", `["hot"]`, `[]`, `[]`, testTime, testTime,
	)
}

var cartItemCols = []string{
	"id", "cart_id", "product_id", "product_slug", "product_name", "product_image", "condition",
	"quantity", "unit_price", "discount_type", "discount_value", "created_at", "updated_at",
}

var customerCols = []string{"id", "full_name", "phone", "email", "default_location", "created_at", "updated_at"}
