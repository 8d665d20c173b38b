package webhook

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shsh-labs/chatgw/internal/apperror"
	"github.com/shsh-labs/chatgw/internal/domain"
)

// Registry holds the single active WebhookSink per tenant (spec §4.5: one
// sink per tenant, re-registration updates in place) plus rolling delivery
// stats, following the teacher's per-resource map + mutex convention.
type Registry struct {
	mu    sync.RWMutex
	sinks map[string]*domain.WebhookSink
	stats map[string]*domain.WebhookStats
}

// NewRegistry creates an empty sink registry.
func NewRegistry() *Registry {
	return &Registry{
		sinks: make(map[string]*domain.WebhookSink),
		stats: make(map[string]*domain.WebhookStats),
	}
}

// RegisterInput is the caller-supplied shape for Register.
type RegisterInput struct {
	URL    string
	Secret string
	Events []domain.WebhookEvent
}

// Register creates tenantID's sink, or updates it in place if one already
// exists: the id stays stable and SuccessCount/ErrorCount are preserved
// across re-registration, per spec §4.5.
func (r *Registry) Register(tenantID string, in RegisterInput) domain.WebhookSink {
	r.mu.Lock()
	defer r.mu.Unlock()

	events := make(map[domain.WebhookEvent]bool, len(in.Events))
	for _, e := range in.Events {
		events[e] = true
	}
	if len(events) == 0 {
		events[domain.WebhookEventMessage] = true
	}

	sink, ok := r.sinks[tenantID]
	if !ok {
		sink = &domain.WebhookSink{ID: uuid.NewString(), TenantID: tenantID}
		r.sinks[tenantID] = sink
	}
	sink.URL = in.URL
	sink.Secret = in.Secret
	sink.Events = events
	sink.Active = true

	if _, ok := r.stats[tenantID]; !ok {
		r.stats[tenantID] = &domain.WebhookStats{TenantID: tenantID}
	}

	return *sink
}

// Get returns tenantID's sink, or apperror.NotFound if none registered.
func (r *Registry) Get(tenantID string) (domain.WebhookSink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sinks[tenantID]
	if !ok {
		return domain.WebhookSink{}, apperror.NotFound("no webhook registered for tenant")
	}
	return *s, nil
}

// Delete removes tenantID's sink and stats.
func (r *Registry) Delete(tenantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sinks, tenantID)
	delete(r.stats, tenantID)
}

// List returns every registered sink, for an administrative listing.
func (r *Registry) List() []domain.WebhookSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.WebhookSink, 0, len(r.sinks))
	for _, s := range r.sinks {
		out = append(out, *s)
	}
	return out
}

// Stats returns tenantID's delivery statistics.
func (r *Registry) Stats(tenantID string) (domain.WebhookStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.stats[tenantID]
	if !ok {
		return domain.WebhookStats{}, apperror.NotFound("no webhook stats for tenant")
	}
	return *s, nil
}

// recordSuccess updates counters on a successful delivery and the
// cumulative stats, bumping LastUsed.
func (r *Registry) recordSuccess(tenantID string, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sinks[tenantID]; ok {
		s.SuccessCount++
		s.LastUsed = time.Now()
	}
	if st, ok := r.stats[tenantID]; ok {
		st.RecordSuccess(elapsed, time.Now())
	}
}

// recordFailure updates counters on a failed delivery, deactivating the
// sink once cumulative ErrorCount exceeds 10, per spec §4.5.
func (r *Registry) recordFailure(tenantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sinks[tenantID]; ok {
		s.ErrorCount++
		if s.ErrorCount > 10 {
			s.Active = false
		}
	}
	if st, ok := r.stats[tenantID]; ok {
		st.RecordFailure(time.Now())
	}
}
