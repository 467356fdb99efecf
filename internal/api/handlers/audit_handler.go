package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	apiContext "alumnet/internal/api/context"
	"alumnet/internal/api/middleware"
	"alumnet/internal/pkg/errors"
	"alumnet/internal/platform/audit"
)

type AuditHandler struct {
	recorder *audit.Recorder
}

func NewAuditHandler(recorder *audit.Recorder) *AuditHandler {
	return &AuditHandler{recorder: recorder}
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantCtx := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.recorder.List(tenantCtx.Scope.OrgID(), limit)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}
