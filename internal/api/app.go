package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/xenastore/storefront/internal/db"
	"github.com/xenastore/storefront/internal/metrics"
	"github.com/xenastore/storefront/internal/middleware"
	"github.com/xenastore/storefront/internal/realtime"
	"github.com/xenastore/storefront/internal/services"
	"github.com/xenastore/storefront/internal/session"
	"github.com/xenastore/storefront/pkg/config"
)

// Services groups the domain services the handlers call
type Services struct {
	Categories *services.CategoryService
	Products   *services.ProductService
	Carts      *services.CartService
	Customers  *services.CustomerService
	Checkout   *services.CheckoutService
	Admins     *services.AdminService
	Media      *services.MediaService
}

// App holds application dependencies
type App struct {
	config   *config.Config
	db       *db.DB
	metrics  *metrics.AppMetrics
	sessions *session.Manager
	hub      *realtime.Hub

	categoryService *services.CategoryService
	productService  *services.ProductService
	cartService     *services.CartService
	customerService *services.CustomerService
	checkoutService *services.CheckoutService
	adminService    *services.AdminService
	mediaService    *services.MediaService
}

// NewApp creates a new application instance
func NewApp(
	cfg *config.Config,
	database *db.DB,
	m *metrics.AppMetrics,
	sessions *session.Manager,
	hub *realtime.Hub,
	svc Services,
) *App {
	return &App{
		config:          cfg,
		db:              database,
		metrics:         m,
		sessions:        sessions,
		hub:             hub,
		categoryService: svc.Categories,
		productService:  svc.Products,
		cartService:     svc.Carts,
		customerService: svc.Customers,
		checkoutService: svc.Checkout,
		adminService:    svc.Admins,
		mediaService:    svc.Media,
	}
}

// Handler returns the router wrapped in CORS. CORS sits outside mux so
// preflight requests are answered before method matching.
func (a *App) Handler() http.Handler {
	r := mux.NewRouter()
	a.SetupRoutes(r)
	return middleware.CORSMiddleware(a.config.CORSOrigin)(r)
}

// SetupRoutes configures the HTTP routes
func (a *App) SetupRoutes(r *mux.Router) {
	// recovery sits inside metrics so a recovered panic is counted as a 500
	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.MetricsMiddleware(a.metrics))
	r.Use(middleware.ErrorHandlerMiddleware)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "route not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})

	api := r.PathPrefix("/api/v1").Subrouter()

	// Health
	r.HandleFunc("/health", a.HealthHandler).Methods("GET")
	api.HandleFunc("/health", a.HealthHandler).Methods("GET")

	// Catalog
	api.HandleFunc("/categories", a.ListCategoriesHandler).Methods("GET")
	api.HandleFunc("/categories/{slug}", a.GetCategoryHandler).Methods("GET")
	api.HandleFunc("/products", a.ListProductsHandler).Methods("GET")
	api.HandleFunc("/products/{slug}", a.GetProductHandler).Methods("GET")

	// Cart
	api.HandleFunc("/cart", a.GetCartHandler).Methods("GET")
	api.HandleFunc("/cart", a.ClearCartHandler).Methods("DELETE")
	api.HandleFunc("/cart/items", a.AddToCartHandler).Methods("POST")
	api.HandleFunc("/cart/items/{productId:[0-9]+}", a.UpdateCartItemHandler).Methods("PUT")
	api.HandleFunc("/cart/items/{productId:[0-9]+}", a.RemoveCartItemHandler).Methods("DELETE")

	// Customer session
	api.HandleFunc("/customer/session", a.GetCustomerSessionHandler).Methods("GET")
	api.HandleFunc("/customer/session", a.CreateCustomerSessionHandler).Methods("POST")
	api.HandleFunc("/customer/session", a.DeleteCustomerSessionHandler).Methods("DELETE")

	// Checkout
	api.HandleFunc("/checkout/whatsapp", a.WhatsAppCheckoutHandler).Methods("POST")
	api.HandleFunc("/order-intents/{id}", a.GetOrderIntentHandler).Methods("GET")

	// Admin login is the only unauthenticated admin route
	api.HandleFunc("/admin/login", a.AdminLoginHandler).Methods("POST")

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.AdminAuth(a.sessions))

	admin.HandleFunc("/logout", a.AdminLogoutHandler).Methods("POST")
	admin.HandleFunc("/session", a.AdminSessionHandler).Methods("GET")

	admin.HandleFunc("/categories", a.ListCategoriesHandler).Methods("GET")
	admin.HandleFunc("/categories", a.CreateCategoryHandler).Methods("POST")
	admin.HandleFunc("/categories/{id:[0-9]+}", a.UpdateCategoryHandler).Methods("PUT")
	admin.HandleFunc("/categories/{id:[0-9]+}", a.DeleteCategoryHandler).Methods("DELETE")

	admin.HandleFunc("/products", a.AdminListProductsHandler).Methods("GET")
	admin.HandleFunc("/products", a.CreateProductHandler).Methods("POST")
	admin.HandleFunc("/products/export", a.ExportProductsHandler).Methods("GET")
	admin.HandleFunc("/products/{id:[0-9]+}", a.AdminGetProductHandler).Methods("GET")
	admin.HandleFunc("/products/{id:[0-9]+}", a.UpdateProductHandler).Methods("PUT")
	admin.HandleFunc("/products/{id:[0-9]+}", a.DeleteProductHandler).Methods("DELETE")

	admin.HandleFunc("/uploads", a.UploadHandler).Methods("POST")

	admin.HandleFunc("/order-intents", a.ListOrderIntentsHandler).Methods("GET")
	admin.HandleFunc("/order-intents/stream", a.OrderIntentStreamHandler).Methods("GET")
}

// HealthHandler handles health check requests
func (a *App) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.db.PingContext(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": "unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
