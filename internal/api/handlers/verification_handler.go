package handlers

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/julienschmidt/httprouter"

	apiContext "alumnet/internal/api/context"
	"alumnet/internal/api/middleware"
	"alumnet/internal/engine/serial"
	"alumnet/internal/engine/verification"
	"alumnet/internal/pkg/errors"
	"alumnet/internal/platform/auth"
)

type VerificationHandler struct {
	svc *verification.Service
}

func NewVerificationHandler(svc *verification.Service) *VerificationHandler {
	return &VerificationHandler{svc: svc}
}

type ApproveRequest struct {
	Notes string `json:"notes"`
}

func (h *VerificationHandler) Approve(w http.ResponseWriter, r *http.Request) {
	tenantCtx := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)
	params := r.Context().Value(apiContext.Params).(httprouter.Params)

	var req ApproveRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	actor := verification.Actor{ID: claims.UserID, Role: claims.Role}
	result, err := h.svc.Approve(r.Context(), tenantCtx.Scope, actor, params.ByName("member_id"), req.Notes)
	if err != nil {
		writeVerificationError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

func (h *VerificationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	tenantCtx := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)
	params := r.Context().Value(apiContext.Params).(httprouter.Params)

	var req RejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	actor := verification.Actor{ID: claims.UserID, Role: claims.Role}
	result, err := h.svc.Reject(r.Context(), tenantCtx.Scope, actor, params.ByName("member_id"), req.Reason)
	if err != nil {
		writeVerificationError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

type UnblockRequest struct {
	Reason string `json:"reason"`
}

func (h *VerificationHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	tenantCtx := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)
	params := r.Context().Value(apiContext.Params).(httprouter.Params)

	var req UnblockRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	actor := verification.Actor{ID: claims.UserID, Role: claims.Role}
	result, err := h.svc.Unblock(r.Context(), tenantCtx.Scope, actor, params.ByName("member_id"), req.Reason)
	if err != nil {
		writeVerificationError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

type BulkApproveRequest struct {
	MemberIDs []string `json:"member_ids"`
	Notes     string   `json:"notes"`
}

func (h *VerificationHandler) BulkApprove(w http.ResponseWriter, r *http.Request) {
	tenantCtx := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)

	var req BulkApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	actor := verification.Actor{ID: claims.UserID, Role: claims.Role}
	result, err := h.svc.BulkApprove(r.Context(), tenantCtx.Scope, actor, req.MemberIDs, req.Notes)
	if err != nil {
		writeVerificationError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

type ResetCounterRequest struct {
	NewCounterValue   int64  `json:"new_counter_value"`
	ConfirmationToken string `json:"confirmation_token"`
}

func (h *VerificationHandler) ResetSerialCounter(w http.ResponseWriter, r *http.Request) {
	tenantCtx := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)
	claims := r.Context().Value(apiContext.Claims).(*auth.Claims)

	var req ResetCounterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	actor := verification.Actor{ID: claims.UserID, Role: claims.Role}
	result, err := h.svc.ResetSerialCounter(r.Context(), tenantCtx.Scope, actor, req.NewCounterValue, req.ConfirmationToken)
	if err != nil {
		writeVerificationError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// writeVerificationError maps domain errors onto distinct taxonomy codes so
// clients can tell a stale view from an authorization problem.
func writeVerificationError(w http.ResponseWriter, err error) {
	switch {
	case stderrors.Is(err, verification.ErrMemberNotFound):
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Member not found", nil)
	case stderrors.Is(err, verification.ErrAlreadyVerified):
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeAlreadyVerified, err.Error(), nil)
	case stderrors.Is(err, verification.ErrAlreadyRejected):
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeAlreadyRejected, err.Error(), nil)
	case stderrors.Is(err, verification.ErrNotPending):
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeNotPending, err.Error(), nil)
	case stderrors.Is(err, verification.ErrNotRejected):
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeNotRejected, err.Error(), nil)
	case stderrors.Is(err, verification.ErrCannotRejectVerified):
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeCannotRejectVerified, err.Error(), nil)
	case stderrors.Is(err, verification.ErrInsufficientPrivilege):
		errors.WriteError(w, http.StatusForbidden, errors.ErrCodeInsufficientPrivilege, err.Error(), nil)
	case stderrors.Is(err, verification.ErrReasonRequired),
		stderrors.Is(err, verification.ErrBatchTooLarge),
		stderrors.Is(err, verification.ErrNegativeCounter),
		stderrors.Is(err, verification.ErrConfirmationMismatch):
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error(), nil)
	case stderrors.Is(err, serial.ErrOrganizationNotConfigured):
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeOrgNotConfigured, err.Error(), nil)
	case stderrors.Is(err, serial.ErrGenerationFailed):
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeSerialGenerationFailed, err.Error(), nil)
	default:
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Internal error", nil)
	}
}
