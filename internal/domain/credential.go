package domain

// CredentialBundle is an opaque blob owned by the Upstream Adapter and
// persisted by the Credential Store under a per-tenant directory. It is
// never shared across tenants.
type CredentialBundle struct {
	TenantID string
	Data     []byte
}

// Empty reports whether the bundle carries no data, i.e. no prior credential
// was found for the tenant.
func (c CredentialBundle) Empty() bool {
	return len(c.Data) == 0
}
