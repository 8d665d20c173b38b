// Package upstream encapsulates all interaction with the external chat
// network behind a thin capability interface, per spec §4.2 (Upstream
// Adapter, C2). The chat protocol itself is intentionally abstracted: spec
// §1 treats it as an external collaborator available as a library. This
// package's reference implementation speaks a minimal JSON-over-WebSocket
// bridge protocol so the adapter has a concrete, runnable transport; a
// production deployment swaps in a real chat-network client behind the
// same Adapter interface.
package upstream

import (
	"context"
	"time"
)

// Handle identifies one established connection to the chat network.
type Handle struct {
	TenantID string
	id       string
}

// UpdateKind discriminates the Update union described in spec §4.2.
type UpdateKind string

const (
	UpdatePairing        UpdateKind = "pairing"
	UpdateState          UpdateKind = "state"
	UpdateCredsUpdated   UpdateKind = "creds_updated"
	UpdateMessageInbound UpdateKind = "message_inbound"
)

// ConnState is the state carried by an UpdateState event.
type ConnState string

const (
	ConnConnecting ConnState = "connecting"
	ConnOpen       ConnState = "open"
	ConnClose      ConnState = "close"
)

// RawMessage is a single chat-network message as delivered by the adapter,
// prior to the Session Manager's fromMe/empty-content filtering.
type RawMessage struct {
	From      string
	To        string
	Text      string
	MessageID string
	Timestamp int64 // unix milliseconds
	Type      string
	MediaURL  string
	Caption   string
	FromMe    bool
}

// Update is a single event yielded by Events. Exactly one of the typed
// fields is populated, selected by Kind.
type Update struct {
	Kind UpdateKind

	// UpdatePairing
	PairingArtifact []byte

	// UpdateState
	State      ConnState
	CloseReason string
	LoggedOut  bool

	// UpdateMessageInbound
	Messages []RawMessage
}

// Identity is read from the Handle once a connection reaches ConnOpen.
type Identity struct {
	PhoneNumber string
	DisplayName string
}

// Content is the outbound payload variant accepted by Send, per spec §4.2.
type Content struct {
	Kind ContentKind

	Text string

	// Media / Document
	MediaBytes []byte
	MediaURL   string
	MIME       string
	Caption    string
	Filename   string
}

// ContentKind discriminates the Content union.
type ContentKind string

const (
	ContentText     ContentKind = "text"
	ContentMedia    ContentKind = "media"
	ContentDocument ContentKind = "document"
)

// SendResult carries the server-assigned message id from a successful Send.
type SendResult struct {
	ID string
}

// Adapter is the capability interface onto the external chat network.
// Events is the single source of truth for session state; callers are pure
// consumers and must not poll.
type Adapter interface {
	// Connect establishes a session using a resumable credential bundle.
	// A nil/empty bundle yields a fresh pairing flow.
	Connect(ctx context.Context, tenantID string, credentials []byte) (Handle, error)

	// Events returns a channel of updates for handle, closed when the
	// underlying connection is torn down (Logout or an unrecoverable
	// transport error). The channel must be drained by a single consumer
	// to preserve per-tenant event ordering (spec §5).
	Events(handle Handle) <-chan Update

	// Identity reads the connected phone identity from a handle that has
	// reached ConnOpen. Returns an error if the handle is not open.
	Identity(handle Handle) (Identity, error)

	// Send transmits content and returns a server-assigned id.
	Send(ctx context.Context, handle Handle, jid string, content Content) (SendResult, error)

	// Logout best-effort closes the network connection.
	Logout(ctx context.Context, handle Handle) error
}

// DefaultConnectTimeout is the spec §5 default adapter connect timeout.
const DefaultConnectTimeout = 60 * time.Second
