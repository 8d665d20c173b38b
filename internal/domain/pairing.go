package domain

import "time"

// PairingStatus is the per-tenant state of the Pairing-Code Service, per
// spec §4.3.
type PairingStatus string

const (
	PairingGenerating PairingStatus = "generating"
	PairingAvailable  PairingStatus = "available"
	PairingExpired    PairingStatus = "expired"
	PairingConnected  PairingStatus = "connected"
)

// PairingTracker is the per-tenant bookkeeping record the Pairing-Code
// Service maintains while a session is pairing.
type PairingTracker struct {
	TenantID          string
	Artifact          []byte
	LastGenerated     time.Time
	RegenerationCount int
	Status            PairingStatus
}

// Age returns how long the current artifact has been outstanding.
func (p *PairingTracker) Age(now time.Time) time.Duration {
	return now.Sub(p.LastGenerated)
}
