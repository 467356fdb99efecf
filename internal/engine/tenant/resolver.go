package tenant

import (
	"errors"
	"time"

	"alumnet/internal/platform/models"
	"alumnet/internal/platform/repositories"
)

var (
	ErrTenantNotFound     = errors.New("tenant not found")
	ErrTenantInactive     = errors.New("tenant inactive")
	ErrTenantCodeRequired = errors.New("tenant code required")
)

// Resolver derives the acting organization from a tenant hint. Resolution is
// a pure read; the Scope it hands out is the only way downstream code gets an
// organization predicate.
type Resolver struct {
	orgs  *repositories.OrganizationRepository
	cache *orgCache
}

func NewResolver(orgs *repositories.OrganizationRepository, cacheTTL time.Duration) *Resolver {
	return &Resolver{
		orgs:  orgs,
		cache: newOrgCache(cacheTTL),
	}
}

// Resolve maps an explicit organization code to a Scope. With an empty hint
// it auto-selects when exactly one active organization exists, returns the
// zero Scope in bootstrap mode (no organizations at all), and fails with
// ErrTenantCodeRequired when the hint is ambiguous.
func (r *Resolver) Resolve(code string) (*models.Organization, Scope, error) {
	if code != "" {
		org, err := r.lookupByCode(code)
		if err != nil {
			return nil, Scope{}, err
		}
		if org == nil {
			return nil, Scope{}, ErrTenantNotFound
		}
		if !org.Active {
			return nil, Scope{}, ErrTenantInactive
		}
		return org, ScopeFor(org.ID), nil
	}

	active, err := r.orgs.ListActive()
	if err != nil {
		return nil, Scope{}, err
	}
	switch len(active) {
	case 0:
		return nil, Scope{}, nil
	case 1:
		return active[0], ScopeFor(active[0].ID), nil
	default:
		return nil, Scope{}, ErrTenantCodeRequired
	}
}

// ResolveID is the authenticated-request path: the organization reference
// comes from token claims rather than a code hint.
func (r *Resolver) ResolveID(orgID string) (*models.Organization, Scope, error) {
	org, err := r.orgs.GetByID(orgID)
	if err != nil {
		return nil, Scope{}, err
	}
	if org == nil {
		return nil, Scope{}, ErrTenantNotFound
	}
	if !org.Active {
		return nil, Scope{}, ErrTenantInactive
	}
	return org, ScopeFor(org.ID), nil
}

// Invalidate drops a cached organization, used after administrative updates.
func (r *Resolver) Invalidate(code string) {
	r.cache.invalidate(code)
}

func (r *Resolver) lookupByCode(code string) (*models.Organization, error) {
	if org, ok := r.cache.get(code); ok {
		return org, nil
	}

	org, err := r.orgs.GetByCode(code)
	if err != nil {
		return nil, err
	}
	if org != nil {
		r.cache.set(code, org)
	}
	return org, nil
}
