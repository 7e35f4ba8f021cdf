package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/xenastore/storefront/internal/models"
)

// WhatsAppCheckoutHandler handles POST /api/v1/checkout/whatsapp
func (a *App) WhatsAppCheckoutHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	resp, profile, err := a.checkoutService.CreateWhatsAppIntent(r.Context(), cartID(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	a.setCustomerSession(w, r, profile)
	writeJSON(w, http.StatusCreated, resp)
}

// GetOrderIntentHandler handles GET /api/v1/order-intents/{id}
func (a *App) GetOrderIntentHandler(w http.ResponseWriter, r *http.Request) {
	intent, err := a.checkoutService.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, intent)
}
