package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/xenastore/storefront/internal/models"
	"github.com/xenastore/storefront/internal/services"
	"github.com/xenastore/storefront/internal/session"
)

type customerSessionResponse struct {
	Customer *models.CustomerProfile `json:"customer"`
}

// setCustomerSession issues the customer cookie for a profile
func (a *App) setCustomerSession(w http.ResponseWriter, r *http.Request, profile *models.CustomerProfile) {
	token, expires, err := a.sessions.Issue(profile.ID, session.RoleCustomer, a.config.CustomerSessionTTL)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to issue customer session", "customer_id", profile.ID, "error", err)
		return
	}
	session.SetCookie(w, session.CustomerCookie, token, expires, a.config.CookieSecure)
}

// GetCustomerSessionHandler handles GET /api/v1/customer/session. A missing
// or invalid session returns a null customer.
func (a *App) GetCustomerSessionHandler(w http.ResponseWriter, r *http.Request) {
	token := session.CookieValue(r, session.CustomerCookie)
	if token == "" {
		writeJSON(w, http.StatusOK, customerSessionResponse{})
		return
	}

	claims, err := a.sessions.Verify(token, session.RoleCustomer)
	if err != nil {
		session.ClearCookie(w, session.CustomerCookie, a.config.CookieSecure)
		writeJSON(w, http.StatusOK, customerSessionResponse{})
		return
	}

	profile, err := a.customerService.Get(r.Context(), claims.Subject)
	if errors.Is(err, services.ErrNotFound) {
		session.ClearCookie(w, session.CustomerCookie, a.config.CookieSecure)
		writeJSON(w, http.StatusOK, customerSessionResponse{})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, customerSessionResponse{Customer: profile})
}

// CreateCustomerSessionHandler handles POST /api/v1/customer/session
func (a *App) CreateCustomerSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ContactRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	profile, err := a.customerService.Upsert(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	a.setCustomerSession(w, r, profile)
	writeJSON(w, http.StatusOK, customerSessionResponse{Customer: profile})
}

// DeleteCustomerSessionHandler handles DELETE /api/v1/customer/session
func (a *App) DeleteCustomerSessionHandler(w http.ResponseWriter, r *http.Request) {
	session.ClearCookie(w, session.CustomerCookie, a.config.CookieSecure)
	w.WriteHeader(http.StatusNoContent)
}
