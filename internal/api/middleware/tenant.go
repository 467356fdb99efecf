package middleware

import (
	"context"
	stderrors "errors"
	"net/http"

	apiContext "alumnet/internal/api/context"
	"alumnet/internal/engine/tenant"
	"alumnet/internal/pkg/errors"
	"alumnet/internal/platform/auth"
	"alumnet/internal/platform/models"
)

// TenantContext is attached to the request after resolution. Handlers hand
// the Scope to every repository call; the Org is the resolved tenant row.
type TenantContext struct {
	Org   *models.Organization
	Scope tenant.Scope
}

type TenantMiddleware struct {
	resolver *tenant.Resolver
}

func NewTenantMiddleware(resolver *tenant.Resolver) *TenantMiddleware {
	return &TenantMiddleware{resolver: resolver}
}

func (m *TenantMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := r.Context().Value(apiContext.Claims).(*auth.Claims)
		if !ok {
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "No authentication claims found", nil)
			return
		}

		org, scope, err := m.resolver.ResolveID(claims.OrganizationID)
		if err != nil {
			WriteTenantError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), apiContext.Tenant, &TenantContext{
			Org:   org,
			Scope: scope,
		})

		next(w, r.WithContext(ctx))
	}
}

// WriteTenantError maps resolver failures onto the error taxonomy. Shared
// with handlers that resolve from an explicit code hint.
func WriteTenantError(w http.ResponseWriter, err error) {
	switch {
	case stderrors.Is(err, tenant.ErrTenantNotFound):
		errors.WriteError(w, http.StatusForbidden, errors.ErrCodeTenantNotFound, "Organization not found", nil)
	case stderrors.Is(err, tenant.ErrTenantInactive):
		errors.WriteError(w, http.StatusForbidden, errors.ErrCodeTenantInactive, "Organization is inactive", nil)
	case stderrors.Is(err, tenant.ErrTenantCodeRequired):
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeTenantCodeRequired, "Organization code is required", nil)
	default:
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to resolve organization", nil)
	}
}
