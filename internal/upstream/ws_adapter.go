package upstream

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// wireEnvelope is the minimal JSON-over-WebSocket bridge protocol this
// reference adapter speaks. A production deployment would instead bind
// directly to a native chat-network client library behind the Adapter
// interface; this envelope exists so the adapter is concretely runnable
// against a bridge process.
type wireEnvelope struct {
	Kind        string       `json:"kind"`
	Pairing     []byte       `json:"pairing,omitempty"`
	State       string       `json:"state,omitempty"`
	CloseReason string       `json:"close_reason,omitempty"`
	LoggedOut   bool         `json:"logged_out,omitempty"`
	Messages    []RawMessage `json:"messages,omitempty"`
	PhoneNumber string       `json:"phone_number,omitempty"`
	DisplayName string       `json:"display_name,omitempty"`
}

type conn struct {
	mu       sync.Mutex
	ws       *websocket.Conn
	identity Identity
	open     bool
	events   chan Update
	cancel   context.CancelFunc
}

// WSAdapter implements Adapter by dialing a bridge endpoint per tenant and
// exchanging wireEnvelope JSON frames over a WebSocket, following the
// teacher's terminal websocket read-loop idiom.
type WSAdapter struct {
	bridgeURL string
	timeout   time.Duration

	mu    sync.Mutex
	conns map[string]*conn // keyed by Handle.id
}

// NewWSAdapter creates an adapter that dials bridgeURL (a ws:// or wss://
// endpoint) for every tenant connection.
func NewWSAdapter(bridgeURL string, connectTimeout time.Duration) *WSAdapter {
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	return &WSAdapter{
		bridgeURL: bridgeURL,
		timeout:   connectTimeout,
		conns:     make(map[string]*conn),
	}
}

func newHandleID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// Connect dials the bridge and starts the read loop. The credentials blob
// is sent as the first frame so the bridge can attempt a resumable
// connection; an empty bundle signals a fresh pairing flow.
func (a *WSAdapter) Connect(ctx context.Context, tenantID string, credentials []byte) (Handle, error) {
	dialCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	ws, _, err := websocket.Dial(dialCtx, a.bridgeURL, nil)
	if err != nil {
		return Handle{}, fmt.Errorf("dial chat bridge for tenant %s: %w", tenantID, err)
	}

	initFrame := wireEnvelope{Kind: "connect", Pairing: credentials}
	if err := wsjson(dialCtx, ws, initFrame); err != nil {
		_ = ws.Close(websocket.StatusInternalError, "init frame failed")
		return Handle{}, fmt.Errorf("send connect frame for tenant %s: %w", tenantID, err)
	}

	handleID := newHandleID()
	c := &conn{ws: ws, events: make(chan Update, 32)}

	runCtx, runCancel := context.WithCancel(context.Background())
	c.cancel = runCancel

	a.mu.Lock()
	a.conns[handleID] = c
	a.mu.Unlock()

	go a.readLoop(runCtx, tenantID, handleID, c)

	return Handle{TenantID: tenantID, id: handleID}, nil
}

func wsjson(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, b)
}

func (a *WSAdapter) readLoop(ctx context.Context, tenantID, handleID string, c *conn) {
	defer close(c.events)
	defer func() {
		a.mu.Lock()
		delete(a.conns, handleID)
		a.mu.Unlock()
	}()

	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			select {
			case c.events <- Update{Kind: UpdateState, State: ConnClose, CloseReason: err.Error()}:
			case <-ctx.Done():
			}
			return
		}

		var env wireEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			slog.Warn("chat bridge sent malformed frame", "tenant_id", tenantID, "error", err)
			continue
		}

		update, ok := toUpdate(env)
		if !ok {
			continue
		}

		if update.Kind == UpdateState && update.State == ConnOpen {
			c.mu.Lock()
			c.identity = Identity{PhoneNumber: env.PhoneNumber, DisplayName: env.DisplayName}
			c.open = true
			c.mu.Unlock()
		}

		select {
		case c.events <- update:
		case <-ctx.Done():
			return
		}

		if update.Kind == UpdateState && update.State == ConnClose {
			return
		}
	}
}

func toUpdate(env wireEnvelope) (Update, bool) {
	switch UpdateKind(env.Kind) {
	case UpdatePairing:
		return Update{Kind: UpdatePairing, PairingArtifact: env.Pairing}, true
	case UpdateState:
		return Update{Kind: UpdateState, State: ConnState(env.State), CloseReason: env.CloseReason, LoggedOut: env.LoggedOut}, true
	case UpdateCredsUpdated:
		return Update{Kind: UpdateCredsUpdated}, true
	case UpdateMessageInbound:
		return Update{Kind: UpdateMessageInbound, Messages: env.Messages}, true
	default:
		return Update{}, false
	}
}

func (a *WSAdapter) lookup(handle Handle) (*conn, error) {
	a.mu.Lock()
	c, ok := a.conns[handle.id]
	a.mu.Unlock()
	if !ok {
		return nil, errors.New("unknown or closed handle")
	}
	return c, nil
}

// Events returns the update channel for handle.
func (a *WSAdapter) Events(handle Handle) <-chan Update {
	c, err := a.lookup(handle)
	if err != nil {
		ch := make(chan Update)
		close(ch)
		return ch
	}
	return c.events
}

// Identity reads the connected phone identity from the handle.
func (a *WSAdapter) Identity(handle Handle) (Identity, error) {
	c, err := a.lookup(handle)
	if err != nil {
		return Identity{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return Identity{}, errors.New("handle is not open")
	}
	return c.identity, nil
}

// Send transmits content over the handle's connection.
func (a *WSAdapter) Send(ctx context.Context, handle Handle, jid string, content Content) (SendResult, error) {
	c, err := a.lookup(handle)
	if err != nil {
		return SendResult{}, err
	}

	frame := map[string]interface{}{
		"kind":    "send",
		"jid":     jid,
		"content": content,
	}
	if err := wsjson(ctx, c.ws, frame); err != nil {
		return SendResult{}, fmt.Errorf("send content to %s: %w", jid, err)
	}

	return SendResult{ID: newHandleID()}, nil
}

// Logout closes the underlying connection.
func (a *WSAdapter) Logout(_ context.Context, handle Handle) error {
	c, err := a.lookup(handle)
	if err != nil {
		return nil // already gone, best-effort per spec §4.2
	}
	if c.cancel != nil {
		c.cancel()
	}
	return c.ws.Close(websocket.StatusNormalClosure, "logout")
}
