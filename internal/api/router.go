package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"

	apiContext "alumnet/internal/api/context"
	"alumnet/internal/api/handlers"
	"alumnet/internal/api/middleware"
	"alumnet/internal/pkg/errors"
	"alumnet/internal/platform/audit"
	"alumnet/internal/platform/auth"
)

type Dependencies struct {
	AuthHandler         *handlers.AuthHandler
	OrgHandler          *handlers.OrgHandler
	MemberHandler       *handlers.MemberHandler
	VerificationHandler *handlers.VerificationHandler
	BlacklistHandler    *handlers.BlacklistHandler
	AuditHandler        *handlers.AuditHandler
	HealthHandler       *handlers.HealthHandler
	AuthMiddleware      *middleware.AuthMiddleware
	TenantMiddleware    *middleware.TenantMiddleware
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()

	router.GET("/health", wrap(deps.HealthHandler.Check))

	// Authentication routes
	router.POST("/api/v1/auth/login", wrap(deps.AuthHandler.Login))
	router.POST("/api/v1/auth/refresh", wrap(deps.AuthHandler.Refresh))

	// Middleware references
	authMid := deps.AuthMiddleware
	tenantMid := deps.TenantMiddleware

	// Organization onboarding and management
	router.POST("/api/v1/organizations", wrap(deps.OrgHandler.Create))
	router.GET("/api/v1/organizations/current",
		chain(deps.OrgHandler.GetCurrent, authMid.Handle, tenantMid.Handle))

	// Public member registration (tenant resolved from code hint).
	// Lives outside /members so the static path cannot collide with the
	// :member_id wildcard routes.
	router.POST("/api/v1/registrations",
		chain(deps.MemberHandler.Register, middleware.RateLimit("register")))

	// Member browsing
	router.GET("/api/v1/members",
		chain(deps.MemberHandler.List, authMid.Handle, tenantMid.Handle, requireRole(auth.RoleAdmin, auth.RoleOwner)))
	router.GET("/api/v1/members/:member_id",
		chain(deps.MemberHandler.Get, authMid.Handle, tenantMid.Handle, requireRole(auth.RoleAdmin, auth.RoleOwner)))

	// Verification workflow
	router.POST("/api/v1/members/:member_id/approve",
		chain(deps.VerificationHandler.Approve, authMid.Handle, tenantMid.Handle,
			requireRole(auth.RoleAdmin, auth.RoleOwner), middleware.RateLimit("api_write")))
	router.POST("/api/v1/members/:member_id/reject",
		chain(deps.VerificationHandler.Reject, authMid.Handle, tenantMid.Handle,
			requireRole(auth.RoleOwner), middleware.RateLimit("api_write")))
	router.POST("/api/v1/members/:member_id/unblock",
		chain(deps.VerificationHandler.Unblock, authMid.Handle, tenantMid.Handle,
			requireRole(auth.RoleOwner), middleware.RateLimit("api_write")))
	router.POST("/api/v1/verification/bulk-approve",
		chain(deps.VerificationHandler.BulkApprove, authMid.Handle, tenantMid.Handle,
			requireRole(auth.RoleOwner), middleware.RateLimit("api_write")))
	router.POST("/api/v1/organizations/serial-counter/reset",
		chain(deps.VerificationHandler.ResetSerialCounter, authMid.Handle, tenantMid.Handle,
			requireRole(auth.RoleOwner), middleware.RateLimit("api_write")))

	// Blacklist
	router.GET("/api/v1/blacklist",
		chain(deps.BlacklistHandler.List, authMid.Handle, tenantMid.Handle, requireRole(auth.RoleOwner)))
	router.GET("/api/v1/blacklist/check",
		chain(deps.BlacklistHandler.Check, authMid.Handle, tenantMid.Handle, requireRole(auth.RoleAdmin, auth.RoleOwner)))

	// Audit trail
	router.GET("/api/v1/audit-logs",
		chain(deps.AuditHandler.List, authMid.Handle, tenantMid.Handle, requireRole(auth.RoleOwner)))

	return router
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		// Inject params and request metadata into context
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		ctx = audit.WithMeta(ctx, audit.Meta{IP: r.RemoteAddr, UserAgent: r.UserAgent()})
		handler(w, r.WithContext(ctx))
	}
}

func requireRole(roles ...string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims := r.Context().Value(apiContext.Claims).(*auth.Claims)

			allowed := false
			for _, role := range roles {
				if claims.Role == role {
					allowed = true
					break
				}
			}

			if !allowed {
				errors.WriteError(w, http.StatusForbidden, errors.ErrCodeInsufficientPrivilege, "Insufficient permissions", nil)
				return
			}

			next(w, r)
		}
	}
}
