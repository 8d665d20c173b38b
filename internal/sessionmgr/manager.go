// Package sessionmgr implements the per-tenant Session Manager state
// machine described in spec §4.4 (C4). Each tenant owns exactly one
// Manager, which owns a single serial goroutine consuming Upstream Adapter
// updates in order; state changes driven by those updates happen on that
// goroutine, while Start, Stop and Send update the Session under the
// Manager's mutex.
package sessionmgr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/shsh-labs/chatgw/internal/apperror"
	"github.com/shsh-labs/chatgw/internal/credstore"
	"github.com/shsh-labs/chatgw/internal/domain"
	"github.com/shsh-labs/chatgw/internal/upstream"
)

// Event is a domain event emitted by the Session Manager, per spec §4.4.
type Event struct {
	Kind     EventKind
	TenantID string
	Session  domain.Session
	Message  domain.InboundMessage
	Reason   string
}

// EventKind discriminates Event.
type EventKind string

const (
	EventQR           EventKind = "qr"
	EventConnected    EventKind = "connected"
	EventDisconnected EventKind = "disconnected"
	EventMessage      EventKind = "message"
)

// EventSink receives Session Manager events for fan-out (the Webhook
// Dispatcher in production).
type EventSink interface {
	Handle(Event)
}

// baseReconnectDelay and maxReconnectDelay implement spec §4.4's backoff:
// min(5s * 2^(attempts-1), 30s).
const (
	baseReconnectDelay = 5 * time.Second
	maxReconnectDelay  = 30 * time.Second
)

// ReconnectDelay returns the backoff delay before reconnect attempt n
// (1-indexed), per spec §4.4 and property P3.
func ReconnectDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := baseReconnectDelay * time.Duration(1<<uint(attempt-1))
	if delay > maxReconnectDelay {
		return maxReconnectDelay
	}
	return delay
}

// Manager owns the state machine for a single tenant's Session. It
// maintains exactly one serial goroutine (run) that applies every adapter
// update and is the only writer of handle; Start, Stop and Send also update
// session, and every access to session goes through mu, matching the
// teacher's per-resource-owner-goroutine convention
// (internal/terminal/manager.go).
type Manager struct {
	tenantID      string
	adapter       upstream.Adapter
	creds         *credstore.Store
	sink          EventSink
	maxReconnects int
	httpClient    *http.Client

	mu      sync.RWMutex
	session domain.Session
	handle  upstream.Handle

	runCancel context.CancelFunc
	wg        sync.WaitGroup
	running   bool
}

// Config configures a new Manager.
type Config struct {
	TenantID         string
	Adapter          upstream.Adapter
	Credentials      *credstore.Store
	Sink             EventSink
	MaxReconnects    int
	MediaFetchClient *http.Client
}

// New creates a Manager for a tenant in the disconnected state. The
// manager does nothing until Start is called.
func New(cfg Config) *Manager {
	client := cfg.MediaFetchClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	max := cfg.MaxReconnects
	if max <= 0 {
		max = 5
	}
	return &Manager{
		tenantID:      cfg.TenantID,
		adapter:       cfg.Adapter,
		creds:         cfg.Credentials,
		sink:          cfg.Sink,
		maxReconnects: max,
		httpClient:    client,
		session: domain.Session{
			TenantID: cfg.TenantID,
			Status:   domain.StatusDisconnected,
		},
	}
}

// Snapshot returns a copy of the current Session state.
func (m *Manager) Snapshot() domain.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

// Start transitions disconnected -> connecting and launches the serial
// event loop goroutine. Idempotent while already connected or already
// running (spec §6.4 Session Registry Start semantics / property P5).
func (m *Manager) Start(ctx context.Context) (domain.Session, error) {
	m.mu.Lock()
	if m.session.Status == domain.StatusConnected || m.running {
		snap := m.session
		m.mu.Unlock()
		return snap, nil
	}

	now := time.Now()
	m.session = domain.Session{
		SessionID:    domain.NewSessionID(m.tenantID, now),
		TenantID:     m.tenantID,
		Status:       domain.StatusConnecting,
		LastActivity: now,
		CreatedAt:    now,
	}
	m.running = true
	snap := m.session
	m.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.Background())
	m.runCancel = cancel

	m.wg.Add(1)
	go m.run(runCtx)

	return snap, nil
}

// Stop tears the session down: cancels in-flight work and transitions to
// disconnected. It does not purge credentials (only explicit logout /
// upstream logged-out does, per spec §4.4).
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	cancel := m.runCancel
	m.runCancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()

	m.mu.Lock()
	m.session.Status = domain.StatusDisconnected
	m.session.PairingArtifact = nil
	m.running = false
	m.mu.Unlock()
	return nil
}

// Logout disconnects and instructs the adapter to invalidate the remote
// session, then purges stored credentials (spec §4.4: explicit logout).
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.RLock()
	handle := m.handle
	m.mu.RUnlock()

	_ = m.adapter.Logout(ctx, handle)
	if err := m.Stop(ctx); err != nil {
		return err
	}
	if m.creds != nil {
		return m.creds.Purge(ctx, m.tenantID)
	}
	return nil
}

// run is the single serial goroutine owning this tenant's connection
// lifecycle: dial, consume updates in order, reconnect with backoff on
// disconnect, until ctx is cancelled (Stop) or reconnect attempts are
// exhausted. Mirrors the teacher's terminal session read-loop pattern,
// adapted with the reconnect-backoff idiom from federation.go.
func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	attempts := 0
	for {
		if ctx.Err() != nil {
			return
		}

		ok := m.connectAndServe(ctx)
		if ctx.Err() != nil {
			return
		}
		if ok {
			attempts = 0
			// connectAndServe only returns true after a clean, intentional
			// close (logged out): purge stored credentials, do not reconnect.
			if m.creds != nil {
				if err := m.creds.Purge(ctx, m.tenantID); err != nil {
					slog.Error("failed to purge credentials after logout", "tenant_id", m.tenantID, "error", err)
				}
			}
			m.mu.Lock()
			m.running = false
			m.mu.Unlock()
			return
		}

		attempts++
		if attempts > m.maxReconnects {
			slog.Warn("session exhausted reconnect attempts, giving up",
				"tenant_id", m.tenantID, "attempts", attempts)
			m.transitionDisconnected("max reconnect attempts exceeded")
			return
		}

		delay := ReconnectDelay(attempts)
		m.mu.Lock()
		m.session.ReconnectAttempts = attempts
		m.mu.Unlock()

		slog.Info("session reconnecting", "tenant_id", m.tenantID, "attempt", attempts, "delay", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

// connectAndServe dials the adapter once and drains events until the
// connection closes or ctx is cancelled. Returns true only for a clean,
// intentional termination (logged out) that should not trigger reconnect.
func (m *Manager) connectAndServe(ctx context.Context) bool {
	var creds []byte
	if m.creds != nil {
		bundle, err := m.creds.Load(ctx, m.tenantID)
		if err != nil {
			slog.Error("failed to load credentials", "tenant_id", m.tenantID, "error", err)
		} else if !bundle.Empty() {
			creds = bundle.Data
		}
	}

	connectCtx, cancel := context.WithTimeout(ctx, upstream.DefaultConnectTimeout)
	handle, err := m.adapter.Connect(connectCtx, m.tenantID, creds)
	cancel()
	if err != nil {
		slog.Error("adapter connect failed", "tenant_id", m.tenantID, "error", err)
		return false
	}

	m.mu.Lock()
	m.handle = handle
	m.mu.Unlock()

	defer func() {
		// Isolate panics to this tenant's connection only, per spec §5:
		// one misbehaving session must not affect others.
		if r := recover(); r != nil {
			slog.Error("session event loop panicked, recovering", "tenant_id", m.tenantID, "panic", r)
			m.mu.Lock()
			m.session.Status = domain.StatusDisconnected
			snap := m.session
			m.mu.Unlock()
			m.emit(Event{Kind: EventDisconnected, TenantID: m.tenantID, Session: snap, Reason: "panic"})
		}
	}()

	events := m.adapter.Events(handle)
	for update := range events {
		if ctx.Err() != nil {
			return false
		}
		if clean, done := m.handleUpdate(ctx, handle, update); done {
			return clean
		}
	}
	return false
}

// handleUpdate applies a single adapter update to session state and emits
// the corresponding Session Manager event. The second return value reports
// whether the connection loop should stop (true means stop); the first
// reports whether that stop was a clean logout (no reconnect).
func (m *Manager) handleUpdate(ctx context.Context, handle upstream.Handle, update upstream.Update) (clean bool, done bool) {
	switch update.Kind {
	case upstream.UpdatePairing:
		m.mu.Lock()
		m.session.Status = domain.StatusQR
		m.session.PairingArtifact = update.PairingArtifact
		snap := m.session
		m.mu.Unlock()
		m.emit(Event{Kind: EventQR, TenantID: m.tenantID, Session: snap})
		return false, false

	case upstream.UpdateState:
		switch update.State {
		case upstream.ConnOpen:
			identity, _ := m.adapter.Identity(handle)
			m.mu.Lock()
			m.session.Status = domain.StatusConnected
			m.session.PairingArtifact = nil
			m.session.PhoneNumber = identity.PhoneNumber
			m.session.DisplayName = identity.DisplayName
			m.session.ReconnectAttempts = 0
			m.session.LastActivity = time.Now()
			snap := m.session
			m.mu.Unlock()
			m.emit(Event{Kind: EventConnected, TenantID: m.tenantID, Session: snap})
			return false, false

		case upstream.ConnClose:
			m.mu.Lock()
			m.session.Status = domain.StatusDisconnected
			snap := m.session
			m.mu.Unlock()
			m.emit(Event{Kind: EventDisconnected, TenantID: m.tenantID, Session: snap, Reason: update.CloseReason})
			return update.LoggedOut, true
		}
		return false, false

	case upstream.UpdateCredsUpdated:
		m.persistCredentials(ctx, handle)
		return false, false

	case upstream.UpdateMessageInbound:
		for _, raw := range update.Messages {
			msg := toInboundMessage(m.tenantID, raw)
			if raw.FromMe || !msg.HasContent() {
				continue
			}
			m.mu.Lock()
			m.session.LastActivity = time.Now()
			m.mu.Unlock()
			m.emit(Event{Kind: EventMessage, TenantID: m.tenantID, Message: msg})
		}
		return false, false
	}
	return false, false
}

func toInboundMessage(tenantID string, raw upstream.RawMessage) domain.InboundMessage {
	return domain.InboundMessage{
		TenantID:  tenantID,
		From:      raw.From,
		To:        raw.To,
		Text:      raw.Text,
		MessageID: raw.MessageID,
		Timestamp: raw.Timestamp,
		Type:      raw.Type,
		MediaURL:  raw.MediaURL,
		Caption:   raw.Caption,
		FromMe:    raw.FromMe,
	}
}

// persistCredentials handles a creds_updated update. The Adapter interface
// does not hand over the updated bundle bytes, so nothing is written to the
// credential store here: the update is only logged at debug level, and the
// bundle on disk is left as it was.
func (m *Manager) persistCredentials(ctx context.Context, handle upstream.Handle) {
	if m.creds == nil {
		return
	}
	identity, err := m.adapter.Identity(handle)
	if err != nil {
		return
	}
	_ = identity // identity presence confirms the handle is open; bundle content is adapter-opaque.

	// The reference adapter treats the credential bundle as an opaque blob
	// it does not expose directly on creds_updated; a production chat
	// client would supply the updated bundle bytes on this event. Nothing
	// to persist here beyond what Connect already read.
	slog.Debug("credentials updated upstream", "tenant_id", m.tenantID)
	_ = ctx
}

func (m *Manager) transitionDisconnected(reason string) {
	m.mu.Lock()
	m.session.Status = domain.StatusDisconnected
	snap := m.session
	m.running = false
	m.mu.Unlock()
	m.emit(Event{Kind: EventDisconnected, TenantID: m.tenantID, Session: snap, Reason: reason})
}

func (m *Manager) emit(e Event) {
	if m.sink != nil {
		m.sink.Handle(e)
	}
}

// Send transmits a message through the adapter. Precondition: status must
// be connected, otherwise returns apperror.NotConnected (spec §4.4).
func (m *Manager) Send(ctx context.Context, to string, data MessageData) (string, error) {
	m.mu.RLock()
	status := m.session.Status
	handle := m.handle
	m.mu.RUnlock()

	if status != domain.StatusConnected {
		return "", apperror.NotConnected("session is not connected")
	}

	content, err := m.resolveContent(ctx, data)
	if err != nil {
		return "", err
	}

	res, err := m.adapter.Send(ctx, handle, to, content)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}

	m.mu.Lock()
	m.session.LastActivity = time.Now()
	m.mu.Unlock()

	return res.ID, nil
}

// MessageData is the HTTP-facing send request shape, mirroring spec §6.1's
// POST /messages/{tenantId}/send body.
type MessageData struct {
	Text     string
	Type     string
	MediaURL string
	Caption  string
	FileName string
}

func (m *Manager) resolveContent(ctx context.Context, data MessageData) (upstream.Content, error) {
	if data.MediaURL == "" {
		return upstream.Content{Kind: upstream.ContentText, Text: data.Text}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, data.MediaURL, nil)
	if err != nil {
		return upstream.Content{}, apperror.Validation("invalid media url")
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return upstream.Content{}, fmt.Errorf("%w: %v", errMediaFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return upstream.Content{}, fmt.Errorf("%w: status %d", errMediaFetchFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return upstream.Content{}, fmt.Errorf("%w: %v", errMediaFetchFailed, err)
	}

	kind := upstream.ContentMedia
	if data.Type == "document" {
		kind = upstream.ContentDocument
	}

	return upstream.Content{
		Kind:       kind,
		MediaBytes: body,
		MIME:       resp.Header.Get("Content-Type"),
		Caption:    data.Caption,
		Filename:   data.FileName,
	}, nil
}

var errMediaFetchFailed = errors.New("failed to fetch media")

// IsMediaFetchFailed reports whether err originated from a failed media
// fetch (spec §4.4, HTTP mapping in scenario S5).
func IsMediaFetchFailed(err error) bool {
	return errors.Is(err, errMediaFetchFailed)
}
