package handlers

import (
	"encoding/json"
	"net/http"

	apiContext "alumnet/internal/api/context"
	"alumnet/internal/api/middleware"
	"alumnet/internal/engine/blacklist"
	"alumnet/internal/pkg/errors"
	"alumnet/internal/pkg/validator"
	"alumnet/internal/platform/models"
)

type BlacklistHandler struct {
	ledger *blacklist.Ledger
}

func NewBlacklistHandler(ledger *blacklist.Ledger) *BlacklistHandler {
	return &BlacklistHandler{ledger: ledger}
}

func (h *BlacklistHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantCtx := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)

	entries, err := h.ledger.List(tenantCtx.Scope)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if entries == nil {
		entries = []*models.BlacklistEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// Check exposes the registration-side contract: is this email barred within
// the acting organization.
func (h *BlacklistHandler) Check(w http.ResponseWriter, r *http.Request) {
	tenantCtx := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)

	email := r.URL.Query().Get("email")
	if err := validator.ValidateEmail(email); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error(), nil)
		return
	}

	blacklisted, err := h.ledger.IsBlacklisted(tenantCtx.Scope, email)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"blacklisted": blacklisted})
}
