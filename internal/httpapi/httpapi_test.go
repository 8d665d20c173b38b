package httpapi

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shsh-labs/chatgw/internal/apperror"
	"github.com/shsh-labs/chatgw/internal/config"
	"github.com/shsh-labs/chatgw/internal/domain"
	"github.com/shsh-labs/chatgw/internal/pairing"
	"github.com/shsh-labs/chatgw/internal/registry"
	"github.com/shsh-labs/chatgw/internal/sessionmgr"
	"github.com/shsh-labs/chatgw/internal/webhook"
)

// fakeManager is a registry.Manager + sender test double standing in for a
// real sessionmgr.Manager, letting handler tests drive specific session
// states without a live upstream connection.
type fakeManager struct {
	mu      sync.Mutex
	session domain.Session
	started bool
	sendErr error
	lastTo  string
}

func (m *fakeManager) Start(ctx context.Context) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
	if m.session.Status == "" {
		m.session.Status = domain.StatusConnecting
	}
	return m.session, nil
}

func (m *fakeManager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.Status = domain.StatusDisconnected
	return nil
}

func (m *fakeManager) Logout(ctx context.Context) error {
	return m.Stop(ctx)
}

func (m *fakeManager) Snapshot() domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

func (m *fakeManager) Send(ctx context.Context, to string, data sessionmgr.MessageData) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastTo = to
	if m.sendErr != nil {
		return "", m.sendErr
	}
	if m.session.Status != domain.StatusConnected {
		return "", apperror.NotConnected("session is not connected")
	}
	return "msg-1", nil
}

// newTestServer builds a Server wired against an in-memory registry whose
// Manager factory always returns the same fakeManager, so tests can
// preconfigure that manager's state before issuing a request. The returned
// http.Handler is the Server's chi router, exercised directly with
// httptest.NewRecorder/NewRequest per the teacher's handler test style.
func newTestServer(t *testing.T, mgr *fakeManager) (*Server, http.Handler) {
	t.Helper()

	cfg := &config.Config{
		Env:            config.EnvTest,
		AllowedOrigins: []string{"*"},
		RequireAuth:    false,
		RateLimit:      config.RateLimitConfig{Window: time.Minute, MaxRequest: 1000},
		Upload:         config.UploadConfig{MaxFileSizeBytes: 10 << 20, Dir: t.TempDir()},
	}

	webhookRegistry := webhook.NewRegistry()
	dispatcher := webhook.NewDispatcher(webhookRegistry)
	pairingSvc := pairing.New(nil)

	srv := New(cfg, nil, pairingSvc, webhookRegistry, dispatcher)

	reg := registry.New(func(tenantID string) registry.Manager { return mgr })
	srv.SetRegistry(reg)

	return srv, srv.Router()
}
