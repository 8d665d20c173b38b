// Package pairing implements the Pairing-Code Service (C3) described in
// spec §4.3: it tracks the lifecycle of pairing artifacts emitted by the
// Session Manager while a tenant has not yet completed chat-network
// authentication, and decides when to ask the Session Manager for a fresh
// artifact.
package pairing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shsh-labs/chatgw/internal/apperror"
	"github.com/shsh-labs/chatgw/internal/domain"
)

const (
	// ArtifactLifetime is how long a pairing artifact is considered valid
	// before it expires, per spec §4.3.
	ArtifactLifetime = 45 * time.Second

	// RegenProbeInterval is how often the background sweep checks whether an
	// expired, still-pending tracker should be regenerated.
	RegenProbeInterval = 30 * time.Second

	// MaxRegenerations bounds how many times a single tenant's artifact is
	// regenerated before the Pairing Service gives up.
	MaxRegenerations = 10

	// idleSweepInterval is how often the background sweep runs.
	idleSweepInterval = 5 * time.Minute

	// idleDropFactor * ArtifactLifetime is the idle threshold past which an
	// unconnected tracker is dropped entirely.
	idleDropFactor = 3
)

// Regenerator asks the owning Session Manager to restart the pairing flow
// for a tenant, yielding a new artifact on the normal event path.
type Regenerator interface {
	Regenerate(ctx context.Context, tenantID string) error
}

// Service tracks one PairingTracker per tenant currently in the pairing
// flow, following the teacher's per-resource map + mutex convention.
type Service struct {
	mu       sync.Mutex
	trackers map[string]*domain.PairingTracker
	regen    Regenerator

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New creates a Pairing Service. regen may be nil in tests that do not
// exercise the automatic regeneration sweep.
func New(regen Regenerator) *Service {
	return &Service{
		trackers: make(map[string]*domain.PairingTracker),
		regen:    regen,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run starts the background idle-sweep goroutine. Call Close to stop it.
func (s *Service) Run() {
	go s.sweepLoop()
}

// Close stops the background sweep goroutine.
func (s *Service) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

// Start begins tracking tenantID's pairing flow in the generating status,
// ahead of the Session Manager's first `pairing` update, per spec §4.3.
func (s *Service) Start(tenantID string) domain.PairingTracker {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &domain.PairingTracker{
		TenantID:      tenantID,
		LastGenerated: time.Now(),
		Status:        domain.PairingGenerating,
	}
	s.trackers[tenantID] = t
	return *t
}

// SetArtifact records a freshly issued artifact for tenantID, transitioning
// the tracker to available. Unlike Start, it preserves RegenerationCount,
// since the same tracker may receive several artifacts across its
// lifetime (initial pairing plus any automatic regenerations).
func (s *Service) SetArtifact(tenantID string, artifact []byte) domain.PairingTracker {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trackers[tenantID]
	if !ok {
		t = &domain.PairingTracker{TenantID: tenantID}
		s.trackers[tenantID] = t
	}
	t.Artifact = artifact
	t.LastGenerated = time.Now()
	t.Status = domain.PairingAvailable
	return *t
}

// Current returns the tracker for tenantID, applying expiry based on the
// current time. Returns apperror.NotFound if no pairing flow is active. If
// the tracker has just expired and is still under MaxRegenerations, Current
// also kicks off an out-of-band regeneration rather than waiting on the next
// RegenProbeInterval sweep, per spec §4.3.
func (s *Service) Current(tenantID string) (domain.PairingTracker, error) {
	s.mu.Lock()

	t, ok := s.trackers[tenantID]
	if !ok {
		s.mu.Unlock()
		return domain.PairingTracker{}, apperror.NotFound("no active pairing session for tenant")
	}

	s.applyExpiry(t)

	regen := s.regen != nil && t.Status == domain.PairingExpired && t.RegenerationCount < MaxRegenerations
	if regen {
		t.Status = domain.PairingGenerating
		t.RegenerationCount++
	}
	snapshot := *t
	s.mu.Unlock()

	if regen {
		go s.regenerateOne(tenantID)
	}

	return snapshot, nil
}

// MarkConnected transitions the tracker to connected and stops further
// regeneration, called once the Session Manager reports a connected state.
func (s *Service) MarkConnected(tenantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trackers[tenantID]
	if !ok {
		return
	}
	t.Status = domain.PairingConnected
}

// Stop removes tracking for tenantID entirely (session stopped/deleted).
func (s *Service) Stop(tenantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.trackers, tenantID)
}

// applyExpiry marks t expired if its artifact has outlived ArtifactLifetime
// and it has not yet connected. Caller must hold s.mu.
func (s *Service) applyExpiry(t *domain.PairingTracker) {
	if t.Status == domain.PairingConnected {
		return
	}
	if t.Age(time.Now()) >= ArtifactLifetime {
		t.Status = domain.PairingExpired
	}
}

// sweepLoop periodically regenerates expired trackers (up to
// MaxRegenerations) and drops trackers idle beyond idleDropFactor *
// ArtifactLifetime, per spec §4.3.
func (s *Service) sweepLoop() {
	defer close(s.done)

	regenTicker := time.NewTicker(RegenProbeInterval)
	defer regenTicker.Stop()
	idleTicker := time.NewTicker(idleSweepInterval)
	defer idleTicker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-regenTicker.C:
			s.regenerateExpired()
		case <-idleTicker.C:
			s.dropIdle()
		}
	}
}

func (s *Service) regenerateExpired() {
	if s.regen == nil {
		return
	}

	s.mu.Lock()
	var toRegen []string
	for tenantID, t := range s.trackers {
		s.applyExpiry(t)
		if t.Status == domain.PairingExpired && t.RegenerationCount < MaxRegenerations {
			t.Status = domain.PairingGenerating
			t.RegenerationCount++
			toRegen = append(toRegen, tenantID)
		}
	}
	s.mu.Unlock()

	for _, tenantID := range toRegen {
		s.regenerateOne(tenantID)
	}
}

// regenerateOne asks the Regenerator for a fresh artifact for tenantID. The
// caller is responsible for having already transitioned the tracker to
// generating and bumped RegenerationCount under s.mu.
func (s *Service) regenerateOne(tenantID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.regen.Regenerate(ctx, tenantID); err != nil {
		slog.Warn("pairing regeneration failed", "tenant_id", tenantID, "error", err)
	}
}

func (s *Service) dropIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	threshold := ArtifactLifetime * idleDropFactor
	for tenantID, t := range s.trackers {
		if t.Status == domain.PairingConnected {
			continue
		}
		if now.Sub(t.LastGenerated) > threshold {
			slog.Info("dropping idle pairing tracker", "tenant_id", tenantID)
			delete(s.trackers, tenantID)
		}
	}
}
