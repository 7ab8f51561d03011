// Package actor carries the request-scoped caller identity. The fronting
// platform resolves sessions and tenants; this service receives the result
// as explicit, immutable values instead of reading ambient state.
package actor

// SiteRole is the platform-wide role attached by the gateway, distinct from
// per-organization roles which this service checks itself.
type SiteRole string

const (
	SiteRoleUser  SiteRole = "user"
	SiteRoleAdmin SiteRole = "site_admin"
)

// Actor identifies the authenticated caller for one request.
type Actor struct {
	ID       string
	TenantID string
	SiteRole SiteRole
	ClientIP string
}

// Valid reports whether the actor carries the minimum identity needed for a
// mutating call.
func (a Actor) Valid() bool {
	return a.ID != ""
}
