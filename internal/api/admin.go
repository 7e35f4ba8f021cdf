package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/xenastore/storefront/internal/middleware"
	"github.com/xenastore/storefront/internal/models"
	"github.com/xenastore/storefront/internal/services"
	"github.com/xenastore/storefront/internal/session"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type adminSessionResponse struct {
	Username  string     `json:"username"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// AdminLoginHandler handles POST /api/v1/admin/login
func (a *App) AdminLoginHandler(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := a.adminService.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	token, expires, err := a.sessions.Issue(user.Username, session.RoleAdmin, a.config.AdminSessionTTL)
	if err != nil {
		writeError(w, r, err)
		return
	}
	session.SetCookie(w, session.AdminCookie, token, expires, a.config.CookieSecure)
	writeJSON(w, http.StatusOK, adminSessionResponse{Username: user.Username, ExpiresAt: &expires})
}

// AdminLogoutHandler handles POST /api/v1/admin/logout
func (a *App) AdminLogoutHandler(w http.ResponseWriter, r *http.Request) {
	session.ClearCookie(w, session.AdminCookie, a.config.CookieSecure)
	w.WriteHeader(http.StatusNoContent)
}

// AdminSessionHandler handles GET /api/v1/admin/session
func (a *App) AdminSessionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, adminSessionResponse{Username: middleware.AdminUsername(r.Context())})
}

// CreateCategoryHandler handles POST /api/v1/admin/categories
func (a *App) CreateCategoryHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	category, err := a.categoryService.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

// UpdateCategoryHandler handles PUT /api/v1/admin/categories/{id}
func (a *App) UpdateCategoryHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req models.CategoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	category, err := a.categoryService.Update(r.Context(), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, category)
}

// DeleteCategoryHandler handles DELETE /api/v1/admin/categories/{id}
func (a *App) DeleteCategoryHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.categoryService.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdminListProductsHandler handles GET /api/v1/admin/products
func (a *App) AdminListProductsHandler(w http.ResponseWriter, r *http.Request) {
	products, err := a.productService.ListAll(r.Context(), queryInt(r, "limit", 20), queryInt(r, "offset", 0))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

// AdminGetProductHandler handles GET /api/v1/admin/products/{id}
func (a *App) AdminGetProductHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	product, err := a.productService.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// CreateProductHandler handles POST /api/v1/admin/products
func (a *App) CreateProductHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ProductRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	product, err := a.productService.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

// UpdateProductHandler handles PUT /api/v1/admin/products/{id}
func (a *App) UpdateProductHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req models.ProductRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	product, err := a.productService.Update(r.Context(), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// DeleteProductHandler handles DELETE /api/v1/admin/products/{id}
func (a *App) DeleteProductHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := a.productService.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportProductsHandler handles GET /api/v1/admin/products/export
func (a *App) ExportProductsHandler(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := a.productService.ExportXLSX(r.Context(), &buf); err != nil {
		writeError(w, r, err)
		return
	}

	filename := fmt.Sprintf("products-%s.xlsx", time.Now().Format("20060102"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

// UploadHandler handles POST /api/v1/admin/uploads
func (a *App) UploadHandler(w http.ResponseWriter, r *http.Request) {
	// multipart framing needs a little room above the file limit
	r.Body = http.MaxBytesReader(w, r.Body, a.config.MediaMaxBytes+64<<10)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: multipart field \"file\" is required and must fit the size limit", services.ErrInvalidInput))
		return
	}
	defer file.Close()

	url, err := a.mediaService.Upload(r.Context(), header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"url": url})
}

// ListOrderIntentsHandler handles GET /api/v1/admin/order-intents
func (a *App) ListOrderIntentsHandler(w http.ResponseWriter, r *http.Request) {
	intents, err := a.checkoutService.List(r.Context(), queryInt(r, "limit", 20), queryInt(r, "offset", 0))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, intents)
}

// OrderIntentStreamHandler handles GET /api/v1/admin/order-intents/stream
func (a *App) OrderIntentStreamHandler(w http.ResponseWriter, r *http.Request) {
	a.hub.ServeWS(w, r)
}
