package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/gorilla/mux"
	"github.com/xenastore/storefront/internal/db"
	"github.com/xenastore/storefront/internal/metrics"
	"github.com/xenastore/storefront/internal/realtime"
	"github.com/xenastore/storefront/internal/services"
	"github.com/xenastore/storefront/internal/session"
	"github.com/xenastore/storefront/pkg/config"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"golang.org/x/crypto/bcrypt"
)

type testApp struct {
	app      *App
	handler  http.Handler
	mock     sqlmock.Sqlmock
	sessions *session.Manager
	reader   *sdkmetric.ManualReader
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	reader := sdkmetric.NewManualReader()
	m, err := metrics.New(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test"), "test")
	if err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		CORSOrigin:         "*",
		AdminSessionTTL:    time.Hour,
		CustomerSessionTTL: time.Hour,
		CartCookieTTL:      time.Hour,
		StoreName:          "Xena Store",
		CurrencySymbol:     "₦",
		WhatsAppPhone:      "2348000000000",
		MediaMaxBytes:      1 << 20,
	}

	database := db.Wrap(sqlDB)
	sessions := session.NewManager("test-secret")
	hub := realtime.NewHub("*")
	carts := services.NewCartService(database, m)
	customers := services.NewCustomerService(database, m)

	media, err := services.NewMediaService(services.MediaConfig{MaxBytes: cfg.MediaMaxBytes}, m)
	if err != nil {
		t.Fatal(err)
	}

	app := NewApp(cfg, database, m, sessions, hub, Services{
		Categories: services.NewCategoryService(database, m),
		Products:   services.NewProductService(database, m),
		Carts:      carts,
		Customers:  customers,
		Checkout: services.NewCheckoutService(database, m, carts, customers, hub, services.CheckoutConfig{
			StoreName: cfg.StoreName, CurrencySymbol: cfg.CurrencySymbol, WhatsAppPhone: cfg.WhatsAppPhone,
		}),
		Admins: services.NewAdminService(database, m),
		Media:  media,
	})

	return &testApp{app: app, handler: app.Handler(), mock: mock, sessions: sessions, reader: reader}
}

func (ta *testApp) do(t *testing.T, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	ta.handler.ServeHTTP(rec, req)
	return rec
}

func (ta *testApp) adminCookie(t *testing.T) *http.Cookie {
	t.Helper()
	token, _, err := ta.sessions.Issue("root", session.RoleAdmin, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return &http.Cookie{Name: session.AdminCookie, Value: token}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body is not JSON: %s", rec.Body.String())
	}
	return body.Error
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{services.ErrInvalidInput, http.StatusBadRequest},
		{services.ErrEmptyCart, http.StatusBadRequest},
		{services.ErrOutOfStock, http.StatusBadRequest},
		{services.ErrUnauthorized, http.StatusUnauthorized},
		{services.ErrNotFound, http.StatusNotFound},
		{services.ErrConflict, http.StatusConflict},
		{services.ErrUnavailable, http.StatusServiceUnavailable},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestHealth(t *testing.T) {
	ta := newTestApp(t)
	for _, path := range []string{"/health", "/api/v1/health"} {
		if rec := ta.do(t, http.MethodGet, path, ""); rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", path, rec.Code)
		}
	}
}

func TestAdminRoutesRequireSession(t *testing.T) {
	ta := newTestApp(t)
	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/v1/admin/session"},
		{http.MethodPost, "/api/v1/admin/logout"},
		{http.MethodGet, "/api/v1/admin/products"},
		{http.MethodPost, "/api/v1/admin/products"},
		{http.MethodGet, "/api/v1/admin/products/export"},
		{http.MethodDelete, "/api/v1/admin/categories/1"},
		{http.MethodPost, "/api/v1/admin/uploads"},
		{http.MethodGet, "/api/v1/admin/order-intents"},
		{http.MethodGet, "/api/v1/admin/order-intents/stream"},
	}
	for _, rt := range routes {
		rec := ta.do(t, rt.method, rt.path, "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: status = %d", rt.method, rt.path, rec.Code)
		}
	}

	customerToken, _, _ := ta.sessions.Issue("cust-1", session.RoleCustomer, time.Hour)
	rec := ta.do(t, http.MethodGet, "/api/v1/admin/session", "", &http.Cookie{Name: session.AdminCookie, Value: customerToken})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("customer token accepted on admin route: %d", rec.Code)
	}
}

func TestAdminLoginFlow(t *testing.T) {
	ta := newTestApp(t)
	hash, _ := bcrypt.GenerateFromPassword([]byte("s3cret-pass"), bcrypt.MinCost)

	ta.mock.ExpectQuery(regexp.QuoteMeta("FROM admin_users WHERE username = ?")).
		WithArgs("root").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password_hash", "created_at"}).
			AddRow(1, "root", string(hash), time.Now()))

	rec := ta.do(t, http.MethodPost, "/api/v1/admin/login", `{"username":"root","password":"s3cret-pass"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body.String())
	}
	cookie := findCookie(rec, session.AdminCookie)
	if cookie == nil || !cookie.HttpOnly {
		t.Fatalf("admin cookie not set: %+v", cookie)
	}

	rec = ta.do(t, http.MethodGet, "/api/v1/admin/session", "", cookie)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"username":"root"`) {
		t.Fatalf("session = %d %s", rec.Code, rec.Body.String())
	}

	rec = ta.do(t, http.MethodPost, "/api/v1/admin/logout", "", cookie)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout status = %d", rec.Code)
	}
	if c := findCookie(rec, session.AdminCookie); c == nil || c.MaxAge >= 0 {
		t.Fatalf("logout should expire the cookie: %+v", c)
	}
}

func TestAdminLoginRejected(t *testing.T) {
	ta := newTestApp(t)
	ta.mock.ExpectQuery(regexp.QuoteMeta("FROM admin_users WHERE username = ?")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "password_hash", "created_at"}))

	rec := ta.do(t, http.MethodPost, "/api/v1/admin/login", `{"username":"ghost","password":"whatever"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
	if findCookie(rec, session.AdminCookie) != nil {
		t.Fatal("no cookie should be set on failed login")
	}
}

func TestCreateCategoryConflict(t *testing.T) {
	ta := newTestApp(t)
	ta.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO categories")).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	rec := ta.do(t, http.MethodPost, "/api/v1/admin/categories", `{"name":"Phones"}`, ta.adminCookie(t))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if msg := decodeError(t, rec); !strings.Contains(msg, "phones") {
		t.Fatalf("error = %q", msg)
	}
}

func TestInternalErrorsAreHidden(t *testing.T) {
	ta := newTestApp(t)
	ta.mock.ExpectQuery(regexp.QuoteMeta("FROM categories ORDER BY name")).
		WillReturnError(errors.New("connection refused to 10.0.0.5"))

	rec := ta.do(t, http.MethodGet, "/api/v1/categories", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if msg := decodeError(t, rec); msg != "internal server error" {
		t.Fatalf("error = %q", msg)
	}
}

func TestProductNotFound(t *testing.T) {
	ta := newTestApp(t)
	ta.mock.ExpectQuery(regexp.QuoteMeta("WHERE p.slug = ? AND p.status = ?")).
		WithArgs("nothing-here", "PUBLISHED").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rec := ta.do(t, http.MethodGet, "/api/v1/products/nothing-here", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAddToCartSetsCookie(t *testing.T) {
	ta := newTestApp(t)
	now := time.Now()

	ta.mock.ExpectBegin()
	ta.mock.ExpectQuery(regexp.QuoteMeta("FROM products WHERE id = ? AND status = ?")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "slug", "name", "images", "price", "discount_type", "discount_value", "stock", "condition"}).
			AddRow(5, "iphone-12", "iPhone 12", `[]`, 1000, "NONE", 0, 5, "NEW"))
	ta.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO carts (id) VALUES (?)")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	ta.mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "quantity"}))
	ta.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO cart_items")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	ta.mock.ExpectCommit()
	ta.mock.ExpectQuery(regexp.QuoteMeta("FROM carts WHERE id = ?")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("cart-123", now, now))
	ta.mock.ExpectQuery(regexp.QuoteMeta("FROM cart_items WHERE cart_id = ? ORDER BY id")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "cart_id", "product_id", "product_slug", "product_name", "product_image",
			"condition", "quantity", "unit_price", "discount_type", "discount_value", "created_at", "updated_at"}).
			AddRow(1, "cart-123", 5, "iphone-12", "iPhone 12", "", "NEW", 1, 1000, "NONE", 0, now, now))

	rec := ta.do(t, http.MethodPost, "/api/v1/cart/items", `{"productId":5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	c := findCookie(rec, session.CartCookie)
	if c == nil || c.Value != "cart-123" {
		t.Fatalf("cart cookie = %+v", c)
	}
	if err := ta.mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestAddToCartMalformedBody(t *testing.T) {
	ta := newTestApp(t)
	rec := ta.do(t, http.MethodPost, "/api/v1/cart/items", `{"productId":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCheckoutEmptyCart(t *testing.T) {
	ta := newTestApp(t)
	rec := ta.do(t, http.MethodPost, "/api/v1/checkout/whatsapp", `{"fullName":"Ada","phone":"08012345678"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if msg := decodeError(t, rec); msg != services.ErrEmptyCart.Error() {
		t.Fatalf("error = %q", msg)
	}
}

func TestCustomerSession(t *testing.T) {
	ta := newTestApp(t)

	rec := ta.do(t, http.MethodGet, "/api/v1/customer/session", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"customer":null}` {
		t.Fatalf("anonymous session = %d %s", rec.Code, rec.Body.String())
	}

	cols := []string{"id", "full_name", "phone", "email", "default_location", "created_at", "updated_at"}
	ta.mock.ExpectQuery(regexp.QuoteMeta("FROM customer_profiles WHERE phone = ?")).
		WillReturnRows(sqlmock.NewRows(cols))
	ta.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO customer_profiles")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec = ta.do(t, http.MethodPost, "/api/v1/customer/session", `{"fullName":"Ada","phone":"08012345678"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("create session = %d %s", rec.Code, rec.Body.String())
	}
	cookie := findCookie(rec, session.CustomerCookie)
	if cookie == nil {
		t.Fatal("customer cookie not set")
	}
	claims, err := ta.sessions.Verify(cookie.Value, session.RoleCustomer)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	ta.mock.ExpectQuery(regexp.QuoteMeta("FROM customer_profiles WHERE id = ?")).
		WithArgs(claims.Subject).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(claims.Subject, "Ada", "08012345678", nil, "", now, now))

	rec = ta.do(t, http.MethodGet, "/api/v1/customer/session", "", cookie)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"fullName":"Ada"`) {
		t.Fatalf("session = %d %s", rec.Code, rec.Body.String())
	}

	rec = ta.do(t, http.MethodDelete, "/api/v1/customer/session", "", cookie)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", rec.Code)
	}
}

func TestExportProducts(t *testing.T) {
	ta := newTestApp(t)
	ta.mock.ExpectQuery(regexp.QuoteMeta("FROM products p ORDER BY p.id")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	ta.mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name FROM categories")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	rec := ta.do(t, http.MethodGet, "/api/v1/admin/products/export", "", ta.adminCookie(t))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), "PK") {
		t.Fatal("body is not a zip container")
	}
}

func TestUploadNotConfigured(t *testing.T) {
	ta := newTestApp(t)

	var body strings.Builder
	body.WriteString("--b\r\nContent-Disposition: form-data; name=\"file\"; filename=\"a.png\"\r\nContent-Type: image/png\r\n\r\n")
	body.WriteString("\x89PNG\r\n\x1a\n0000\r\n--b--\r\n")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/uploads", strings.NewReader(body.String()))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=b")
	req.AddCookie(ta.adminCookie(t))
	rec := httptest.NewRecorder()
	ta.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	ta := newTestApp(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/cart/items", nil)
	req.Header.Set("Origin", "https://shop.test")
	rec := httptest.NewRecorder()
	ta.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("headers = %v", rec.Header())
	}
}

func TestAdminListProducts(t *testing.T) {
	ta := newTestApp(t)
	now := time.Now()
	cols := []string{
		"id", "category_id", "slug", "name", "brand", "description", "images", "price",
		"discount_type", "discount_value", "stock", "status", "condition", "deal_type",
		"tags", "specs", "details", "created_at", "updated_at",
	}
	ta.mock.ExpectQuery(regexp.QuoteMeta("FROM products p ORDER BY p.created_at DESC, p.id DESC LIMIT ? OFFSET ?")).
		WithArgs(5, 10).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			1, 1, "draft-phone", "Draft Phone", "", "", `[]`, 1000, "NONE", 0, 0, "DRAFT", "NEW", "", `[]`, `[]`, `[]`, now, now,
		))

	rec := ta.do(t, http.MethodGet, "/api/v1/admin/products?limit=5&offset=10", "", ta.adminCookie(t))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var got []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0]["slug"] != "draft-phone" || got[0]["status"] != "DRAFT" {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	if err := ta.mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestAdminListOrderIntents(t *testing.T) {
	ta := newTestApp(t)
	cols := []string{"id", "reference", "customer_id", "full_name", "phone", "email", "location", "note", "line_items",
		"item_count", "subtotal", "discount", "total", "message", "whatsapp_url", "created_at"}
	ta.mock.ExpectQuery(regexp.QuoteMeta("FROM order_intents ORDER BY created_at DESC LIMIT ? OFFSET ?")).
		WithArgs(20, 0).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"id-1", "XS-0A1B2C3D4E5F", "cust-1", "Ada", "08012345678", "", "", "", `[]`,
			1, 100, 0, 100, "msg", "https://wa.me/1?text=msg", time.Now(),
		))

	rec := ta.do(t, http.MethodGet, "/api/v1/admin/order-intents", "", ta.adminCookie(t))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var got []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0]["reference"] != "XS-0A1B2C3D4E5F" {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	if err := ta.mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}

	if rec := ta.do(t, http.MethodGet, "/api/v1/admin/order-intents", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("without a cookie status = %d", rec.Code)
	}
}

func TestRecoveredPanicCountedAsError(t *testing.T) {
	ta := newTestApp(t)
	r := mux.NewRouter()
	ta.app.SetupRoutes(r)
	r.HandleFunc("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}

	var rm metricdata.ResourceMetrics
	if err := ta.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	var errors500 int64
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			sum, ok := metric.Data.(metricdata.Sum[int64])
			if !ok || metric.Name != "http.server.request.error.count" {
				continue
			}
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value("http.status_code"); ok && v.AsInt64() == http.StatusInternalServerError {
					errors500 += dp.Value
				}
			}
		}
	}
	if errors500 != 1 {
		t.Fatalf("recorded %d server errors, want 1", errors500)
	}
}
