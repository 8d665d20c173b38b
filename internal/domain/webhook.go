package domain

import "time"

// WebhookEvent names the events a sink can subscribe to.
type WebhookEvent string

const (
	WebhookEventMessage WebhookEvent = "message"
	WebhookEventStatus  WebhookEvent = "status"
)

// WebhookSink is a tenant-owned HTTP endpoint registered to receive
// forwarded events. Spec §4.5 fixes one active sink per tenant; re-
// registration updates the existing sink in place and preserves counters.
type WebhookSink struct {
	ID       string
	TenantID string
	URL      string
	Secret   string
	Events   map[WebhookEvent]bool
	Active   bool

	SuccessCount int
	ErrorCount   int
	LastUsed     time.Time
}

// Subscribes reports whether the sink wants the given event.
func (s *WebhookSink) Subscribes(event WebhookEvent) bool {
	if len(s.Events) == 0 {
		return true // default: all events, matching teacher's permissive defaults
	}
	return s.Events[event]
}

// WebhookStats is the per-tenant aggregate dispatch health record, evicted
// after 24h idle per spec §4.5.
type WebhookStats struct {
	TenantID     string
	Total        int
	Success      int
	Fail         int
	AvgRespMs    float64
	LastDelivery time.Time
}

// RecordSuccess folds a successful delivery's response time into the
// moving average and bumps the counters.
func (s *WebhookStats) RecordSuccess(respTime time.Duration, now time.Time) {
	s.Total++
	s.Success++
	s.LastDelivery = now
	s.foldAvg(respTime)
}

// RecordFailure bumps the failure counters without touching the moving
// average (a failed call has no meaningful response time).
func (s *WebhookStats) RecordFailure(now time.Time) {
	s.Total++
	s.Fail++
	s.LastDelivery = now
}

func (s *WebhookStats) foldAvg(respTime time.Duration) {
	ms := float64(respTime.Milliseconds())
	if s.Success <= 1 {
		s.AvgRespMs = ms
		return
	}
	// exponential moving average, weight toward recent samples
	const alpha = 0.2
	s.AvgRespMs = alpha*ms + (1-alpha)*s.AvgRespMs
}

// UptimePercent returns the success ratio as a percentage, 100 if no
// deliveries have been attempted yet.
func (s *WebhookStats) UptimePercent() float64 {
	if s.Total == 0 {
		return 100
	}
	return 100 * float64(s.Success) / float64(s.Total)
}
