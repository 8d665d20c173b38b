package domain

import (
	"strconv"
	"time"
)

// SessionStatus is the state-machine position of a tenant's Session, per
// spec §4.4.
type SessionStatus string

const (
	StatusDisconnected SessionStatus = "disconnected"
	StatusConnecting   SessionStatus = "connecting"
	StatusQR           SessionStatus = "qr"
	StatusConnected    SessionStatus = "connected"
)

// Session is the exactly-one-per-tenant state record for a gateway session.
type Session struct {
	SessionID         string
	TenantID          string
	Status            SessionStatus
	PairingArtifact   []byte
	PhoneNumber       string
	DisplayName       string
	LastActivity      time.Time
	ReconnectAttempts int
	CreatedAt         time.Time
}

// NewSessionID builds the sessionId shape named in spec §3: tenantId +
// creation epoch ms.
func NewSessionID(tenantID string, createdAt time.Time) string {
	return tenantID + "_" + strconv.FormatInt(createdAt.UnixMilli(), 10)
}

// HasPairingArtifact reports whether the session currently carries a
// pairing artifact (invariant I2: never true while connected).
func (s *Session) HasPairingArtifact() bool {
	return len(s.PairingArtifact) > 0
}
