package registry

import (
	"context"
	"testing"
	"time"

	"github.com/shsh-labs/chatgw/internal/domain"
	"github.com/stretchr/testify/require"
)

type fakeManager struct {
	tenantID    string
	startCalls  int
	stopCalls   int
	logoutCalls int
	session     domain.Session
}

func (f *fakeManager) Start(ctx context.Context) (domain.Session, error) {
	f.startCalls++
	f.session.Status = domain.StatusConnected
	return f.session, nil
}

func (f *fakeManager) Stop(ctx context.Context) error {
	f.stopCalls++
	f.session.Status = domain.StatusDisconnected
	return nil
}

func (f *fakeManager) Logout(ctx context.Context) error {
	f.logoutCalls++
	return f.Stop(ctx)
}

func (f *fakeManager) Snapshot() domain.Session { return f.session }

func newTestRegistry() (*Registry, map[string]*fakeManager) {
	created := make(map[string]*fakeManager)
	reg := New(func(tenantID string) Manager {
		m := &fakeManager{tenantID: tenantID, session: domain.Session{TenantID: tenantID, Status: domain.StatusDisconnected}}
		created[tenantID] = m
		return m
	})
	return reg, created
}

func TestStartCreatesEntryLazily(t *testing.T) {
	reg, created := newTestRegistry()
	ctx := context.Background()

	snap, err := reg.Start(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, domain.StatusConnected, snap.Status)
	require.Equal(t, 1, created["acme"].startCalls)
}

func TestStatusUnknownTenantIsNotFound(t *testing.T) {
	reg, _ := newTestRegistry()
	_, err := reg.Status("ghost")
	require.Error(t, err)
}

func TestDeleteLogsOutAndRemovesEntry(t *testing.T) {
	reg, created := newTestRegistry()
	ctx := context.Background()

	_, err := reg.Start(ctx, "acme")
	require.NoError(t, err)

	require.NoError(t, reg.Delete(ctx, "acme"))
	require.Equal(t, 1, created["acme"].logoutCalls)

	_, err = reg.Status("acme")
	require.Error(t, err)
}

func TestRestartStopsThenStarts(t *testing.T) {
	reg, created := newTestRegistry()
	ctx := context.Background()

	_, err := reg.Start(ctx, "acme")
	require.NoError(t, err)

	_, err = reg.Restart(ctx, "acme")
	require.NoError(t, err)

	require.Equal(t, 1, created["acme"].stopCalls)
	require.Equal(t, 2, created["acme"].startCalls)
}

func TestShutdownAllStopsEveryEntry(t *testing.T) {
	reg, created := newTestRegistry()
	ctx := context.Background()

	_, err := reg.Start(ctx, "acme")
	require.NoError(t, err)
	_, err = reg.Start(ctx, "beta")
	require.NoError(t, err)

	reg.ShutdownAll(ctx)
	require.Equal(t, 1, created["acme"].stopCalls)
	require.Equal(t, 1, created["beta"].stopCalls)
}

func TestListReturnsAllTrackedSessions(t *testing.T) {
	reg, _ := newTestRegistry()
	ctx := context.Background()

	_, _ = reg.Start(ctx, "acme")
	_, _ = reg.Start(ctx, "beta")

	sessions := reg.List()
	require.Len(t, sessions, 2)
}

func TestSweepIdleEvictsDisconnectedStaleEntries(t *testing.T) {
	reg, created := newTestRegistry()
	ctx := context.Background()

	_, err := reg.Start(ctx, "acme")
	require.NoError(t, err)
	require.NoError(t, reg.Stop(ctx, "acme"))

	created["acme"].session.LastActivity = time.Now().Add(-idleEvictAfter - time.Minute)

	reg.sweepIdle()

	_, err = reg.Status("acme")
	require.Error(t, err)
}
