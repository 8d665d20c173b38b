// Package domain contains the core entity types shared across the gateway.
package domain

// TenantStatus describes the lifecycle state of a tenant as recorded by the
// external tenant registry. The gateway treats this as read-only.
type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
	TenantInactive  TenantStatus = "inactive"
)

// TenantConfig holds per-tenant operational limits owned by the external
// registry and consumed read-only by the gateway.
type TenantConfig struct {
	MaxSessions int
	RateLimit   *RateLimit
}

// RateLimit is an optional per-tenant HTTP rate limit override.
type RateLimit struct {
	RequestsPerWindow int
	Window            string // e.g. "1m"; parsed by the caller
}

// Tenant is an opaque customer identity. It is created by the external
// registry and is read-only to the gateway core.
type Tenant struct {
	ID     string
	Status TenantStatus
	Config TenantConfig
}

// DefaultTenantConfig returns the spec default of a single concurrent session.
func DefaultTenantConfig() TenantConfig {
	return TenantConfig{MaxSessions: 1}
}
