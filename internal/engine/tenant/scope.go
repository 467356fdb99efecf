package tenant

// Scope is the capability value produced by resolution. Every tenant-scoped
// repository method takes a Scope as a mandatory parameter, so a query that
// forgets to filter by organization does not compile.
type Scope struct {
	orgID string
}

func ScopeFor(orgID string) Scope {
	return Scope{orgID: orgID}
}

func (s Scope) OrgID() string {
	return s.orgID
}

// IsZero reports the "no tenant" sentinel used in bootstrap mode, before any
// organization exists.
func (s Scope) IsZero() bool {
	return s.orgID == ""
}
