package api

import (
	"net/http"
	"time"

	"github.com/xenastore/storefront/internal/models"
	"github.com/xenastore/storefront/internal/session"
)

func cartID(r *http.Request) string {
	return session.CookieValue(r, session.CartCookie)
}

// respondCart writes the cart and refreshes the cart cookie when the cart
// was created by this request.
func (a *App) respondCart(w http.ResponseWriter, r *http.Request, status int, cart *models.CartResponse) {
	if cart.Cart != nil && cart.Cart.ID != cartID(r) {
		session.SetCookie(w, session.CartCookie, cart.Cart.ID, time.Now().Add(a.config.CartCookieTTL), a.config.CookieSecure)
	}
	writeJSON(w, status, cart)
}

// GetCartHandler handles GET /api/v1/cart
func (a *App) GetCartHandler(w http.ResponseWriter, r *http.Request) {
	cart, err := a.cartService.Get(r.Context(), cartID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

// AddToCartHandler handles POST /api/v1/cart/items
func (a *App) AddToCartHandler(w http.ResponseWriter, r *http.Request) {
	var req models.AddToCartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	cart, err := a.cartService.AddItem(r.Context(), cartID(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.respondCart(w, r, http.StatusOK, cart)
}

// UpdateCartItemHandler handles PUT /api/v1/cart/items/{productId}
func (a *App) UpdateCartItemHandler(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req models.UpdateCartItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	cart, err := a.cartService.UpdateQuantity(r.Context(), cartID(r), productID, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

// RemoveCartItemHandler handles DELETE /api/v1/cart/items/{productId}
func (a *App) RemoveCartItemHandler(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productId")
	if err != nil {
		writeError(w, r, err)
		return
	}

	cart, err := a.cartService.RemoveItem(r.Context(), cartID(r), productID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}

// ClearCartHandler handles DELETE /api/v1/cart
func (a *App) ClearCartHandler(w http.ResponseWriter, r *http.Request) {
	id := cartID(r)
	if err := a.cartService.Clear(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	cart, err := a.cartService.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cart)
}
