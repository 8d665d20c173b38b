// Package registry implements the Session Registry (C6) described in spec
// §4.6: the top-level map from tenant to its Session Manager, with
// per-entry locking so no tenant's operations block another's, following
// the teacher's per-resource map + mutex convention
// (internal/terminal/manager.go).
package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shsh-labs/chatgw/internal/apperror"
	"github.com/shsh-labs/chatgw/internal/domain"
)

// Manager is the subset of sessionmgr.Manager the registry depends on,
// kept as a narrow interface so registry doesn't import sessionmgr
// directly and tests can supply lightweight fakes.
type Manager interface {
	Start(ctx context.Context) (domain.Session, error)
	Stop(ctx context.Context) error
	Logout(ctx context.Context) error
	Snapshot() domain.Session
}

// Factory creates a new Manager for tenantID on first Start.
type Factory func(tenantID string) Manager

// entry pairs a Manager with its own mutex so starting/stopping one
// tenant's session never blocks another's, per spec §5 (no cross-tenant
// locking).
type entry struct {
	mu      sync.Mutex
	manager Manager
}

// Registry owns the tenantId -> Manager map.
type Registry struct {
	factory Factory

	mu      sync.RWMutex
	entries map[string]*entry

	running  bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New creates a Registry that lazily constructs a Manager per tenant via
// factory.
func New(factory Factory) *Registry {
	return &Registry{
		factory: factory,
		entries: make(map[string]*entry),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Run starts the background idle-sweep goroutine. ShutdownAll stops it.
func (r *Registry) Run() {
	r.running = true
	go r.sweepLoop()
}

func (r *Registry) getOrCreate(tenantID string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[tenantID]
	if !ok {
		e = &entry{manager: r.factory(tenantID)}
		r.entries[tenantID] = e
	}
	return e
}

// Start begins (or idempotently returns) tenantID's session, per spec
// §6.4's Session Registry Start semantics.
func (r *Registry) Start(ctx context.Context, tenantID string) (domain.Session, error) {
	e := r.getOrCreate(tenantID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.manager.Start(ctx)
}

// Status returns tenantID's current session snapshot, or
// apperror.NotFound if no session has ever been started.
func (r *Registry) Status(tenantID string) (domain.Session, error) {
	r.mu.RLock()
	e, ok := r.entries[tenantID]
	r.mu.RUnlock()
	if !ok {
		return domain.Session{}, apperror.NotFound("no session for tenant")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.manager.Snapshot(), nil
}

// Manager returns the tenant's Manager directly, for callers (such as the
// HTTP layer's Send path) that need more than a snapshot. Returns
// apperror.NotFound if no session has ever been started.
func (r *Registry) Manager(tenantID string) (Manager, error) {
	r.mu.RLock()
	e, ok := r.entries[tenantID]
	r.mu.RUnlock()
	if !ok {
		return nil, apperror.NotFound("no session for tenant")
	}
	return e.manager, nil
}

// Stop disconnects tenantID's session without discarding its entry, so a
// later Start resumes quickly.
func (r *Registry) Stop(ctx context.Context, tenantID string) error {
	r.mu.RLock()
	e, ok := r.entries[tenantID]
	r.mu.RUnlock()
	if !ok {
		return apperror.NotFound("no session for tenant")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.manager.Stop(ctx)
}

// Restart stops then starts tenantID's session, per spec §6.1's
// POST /sessions/{tenantId}/restart.
func (r *Registry) Restart(ctx context.Context, tenantID string) (domain.Session, error) {
	e := r.getOrCreate(tenantID)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.manager.Stop(ctx); err != nil {
		return domain.Session{}, err
	}
	return e.manager.Start(ctx)
}

// Delete logs the tenant out (purging credentials) and removes its entry
// entirely, per spec §6.1's DELETE /sessions/{tenantId}.
func (r *Registry) Delete(ctx context.Context, tenantID string) error {
	r.mu.Lock()
	e, ok := r.entries[tenantID]
	delete(r.entries, tenantID)
	r.mu.Unlock()
	if !ok {
		return apperror.NotFound("no session for tenant")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.manager.Logout(ctx)
}

// List returns a snapshot of every tracked tenant's session.
func (r *Registry) List() []domain.Session {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]domain.Session, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.manager.Snapshot())
		e.mu.Unlock()
	}
	return out
}

// ShutdownAll stops every tracked session, for graceful process shutdown.
func (r *Registry) ShutdownAll(ctx context.Context) {
	if r.running {
		r.stopOnce.Do(func() { close(r.stop) })
		<-r.done
	}

	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	var wg sync.WaitGroup
	for _, e := range entries {
		wg.Add(1)
		go func(e *entry) {
			defer wg.Done()
			e.mu.Lock()
			defer e.mu.Unlock()
			if err := e.manager.Stop(ctx); err != nil {
				slog.Error("error stopping session during shutdown", "error", err)
			}
		}(e)
	}
	wg.Wait()
}

const (
	idleSweepInterval = 30 * time.Minute
	idleEvictAfter    = 60 * time.Minute
)

// sweepLoop evicts entries that are disconnected and idle beyond
// idleEvictAfter, per spec §4.6.
func (r *Registry) sweepLoop() {
	defer close(r.done)

	ticker := time.NewTicker(idleSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.sweepIdle()
		}
	}
}

func (r *Registry) sweepIdle() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-idleEvictAfter)
	for tenantID, e := range r.entries {
		e.mu.Lock()
		snap := e.manager.Snapshot()
		idle := snap.Status == domain.StatusDisconnected && snap.LastActivity.Before(cutoff)
		e.mu.Unlock()

		if idle {
			slog.Info("evicting idle session registry entry", "tenant_id", tenantID)
			delete(r.entries, tenantID)
		}
	}
}
