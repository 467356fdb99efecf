package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	apiContext "alumnet/internal/api/context"
	"alumnet/internal/api/middleware"
	"alumnet/internal/pkg/errors"
	"alumnet/internal/pkg/validator"
	"alumnet/internal/platform/auth"
	"alumnet/internal/platform/models"
	"alumnet/internal/platform/repositories"
)

// Organization short codes feed into serial IDs, hence the strict format.
var orgCodePattern = regexp.MustCompile(`^[A-Z]{2,10}$`)

type OrgHandler struct {
	orgRepo  *repositories.OrganizationRepository
	userRepo *repositories.UserRepository
	tokenSvc *auth.TokenService
}

func NewOrgHandler(orgRepo *repositories.OrganizationRepository, userRepo *repositories.UserRepository, tokenSvc *auth.TokenService) *OrgHandler {
	return &OrgHandler{
		orgRepo:  orgRepo,
		userRepo: userRepo,
		tokenSvc: tokenSvc,
	}
}

type CreateOrgRequest struct {
	Name        string `json:"name"`
	Code        string `json:"code"`
	FoundedYear int    `json:"founded_year"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	FullName    string `json:"full_name"`
}

type CreateOrgResponse struct {
	Organization *models.Organization `json:"organization"`
	User         *models.User         `json:"user"`
	AccessToken  string               `json:"access_token"`
	RefreshToken string               `json:"refresh_token"`
}

// Create onboards a new organization together with its owner account. The
// serial counter starts at zero and is mutated only by the allocator from
// here on.
func (h *OrgHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateOrgRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	if !orgCodePattern.MatchString(req.Code) {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Organization code must be 2-10 uppercase letters", nil)
		return
	}
	if err := validator.ValidateEmail(req.Email); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error(), nil)
		return
	}
	if req.Name == "" || req.Password == "" {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Name and password are required", nil)
		return
	}

	existing, err := h.orgRepo.GetByCode(req.Code)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if existing != nil {
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, "Organization code already in use", nil)
		return
	}

	now := time.Now().Unix()
	org := &models.Organization{
		ID:            "org_" + uuid.NewString(),
		Code:          req.Code,
		Name:          req.Name,
		FoundedYear:   req.FoundedYear,
		SerialCounter: 0,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to hash password", nil)
		return
	}

	user := &models.User{
		ID:             "usr_" + uuid.NewString(),
		OrganizationID: org.ID,
		Email:          validator.NormalizeEmail(req.Email),
		PasswordHash:   string(hashedPassword),
		FullName:       req.FullName,
		Role:           auth.RoleOwner,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	tx, err := h.orgRepo.BeginTx()
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}
	if err := h.orgRepo.CreateTx(tx, org); err != nil {
		tx.Rollback()
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to create organization", nil)
		return
	}
	if err := h.userRepo.CreateTx(tx, user); err != nil {
		tx.Rollback()
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to create owner account", nil)
		return
	}
	if err := tx.Commit(); err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}

	accessToken, err := h.tokenSvc.GenerateAccessToken(user.ID, org.ID, user.Role, user.Email)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to generate token", nil)
		return
	}
	refreshToken, err := h.tokenSvc.GenerateRefreshToken(user.ID)
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to generate token", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(CreateOrgResponse{
		Organization: org,
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})
}

func (h *OrgHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	tenantCtx := r.Context().Value(apiContext.Tenant).(*middleware.TenantContext)

	org, err := h.orgRepo.GetByID(tenantCtx.Scope.OrgID())
	if err != nil {
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Database error", nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(org)
}
