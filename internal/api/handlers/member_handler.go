package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"

	apiContext "alumnet/internal/api/context"
	"alumnet/internal/api/middleware"
	"alumnet/internal/engine/blacklist"
	"alumnet/internal/engine/tenant"
	"alumnet/internal/engine/verification"
	"alumnet/internal/pkg/errors"
	"alumnet/internal/pkg/validator"
	"alumnet/internal/platform/models"
)

type MemberHandler struct {
	members  *verification.MemberRepository
	ledger   *blacklist.Ledger
	resolver *tenant.Resolver
}

func NewMemberHandler(members *verification.MemberRepository, ledger *blacklist.Ledger, resolver *tenant.Resolver) *MemberHandler {
	return &MemberHandler{
		members:  members,
		ledger:   ledger,
		resolver: resolver,
	}
}

type RegisterMemberRequest struct {
	OrgCode       string `json:"org_code"`
	Email         string `json:"email"`
	FullName      string `json:"full_name"`
	AdmissionYear int    `json:"admission_year"`
	PassoutYear   int    `json:"passout_year"`
}

// Register is the public registration endpoint. The tenant comes from an
// explicit code hint (auto-selected when only one organization exists), and
// blacklisted emails are turned away before a member row is created.
func (h *MemberHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	if err := validator.ValidateEmail(req.Email); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error(), nil)
		return
	}
	if req.FullName == "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Full name is required", nil)
		return
	}
	if req.PassoutYear != 0 && req.AdmissionYear > req.PassoutYear {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Admission year cannot be after passout year", nil)
		return
	}

	org, scope, err := h.resolver.Resolve(req.OrgCode)
	if err != nil {
		middleware.WriteTenantError(w, err)
		return
	}
	if org == nil || scope.IsZero() {
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeOrgNotConfigured, "No organization is configured for registration", nil)
		return
	}

	email := validator.NormalizeEmail(req.Email)

	blacklisted, err := h.ledger.IsBlacklisted(scope, email)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if blacklisted {
		errors.WriteError(w, http.StatusForbidden, errors.ErrCodeEmailBlacklisted, "This email is not eligible for registration", nil)
		return
	}

	existing, err := h.members.GetByEmail(scope, email)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if existing != nil {
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, "A member with this email already exists", nil)
		return
	}

	now := time.Now().Unix()
	member := &models.Member{
		ID:            "mem_" + uuid.NewString(),
		Email:         email,
		FullName:      req.FullName,
		AdmissionYear: req.AdmissionYear,
		PassoutYear:   req.PassoutYear,
		State:         models.MemberStatePending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := h.members.Create(scope, member); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to register member", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(member)
}

func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantCtx := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)

	state := models.MemberState(r.URL.Query().Get("state"))
	switch state {
	case "", models.MemberStatePending, models.MemberStateVerified, models.MemberStateRejected:
	default:
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Unknown member state filter", nil)
		return
	}

	members, err := h.members.List(tenantCtx.Scope, state, 50, 0)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if members == nil {
		members = []*models.Member{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(members)
}

func (h *MemberHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantCtx := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)
	params := r.Context().Value(apiContext.Params).(httprouter.Params)

	member, err := h.members.GetByID(tenantCtx.Scope, params.ByName("member_id"))
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if member == nil {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Member not found", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(member)
}
