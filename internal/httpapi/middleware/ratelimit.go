package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures the per-tenant token bucket, following the
// window/max-requests shape of the teacher lineage's RateLimitInfo
// (erauner12-toolbridge-api/internal/httpapi/ratelimit.go), backed here by
// golang.org/x/time/rate instead of a hand-rolled bucket.
type RateLimitConfig struct {
	Window      time.Duration
	MaxRequests int
}

type tenantLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter manages one token bucket per tenant.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*tenantLimiter
	cfg      RateLimitConfig
}

// NewRateLimiter creates a RateLimiter and starts its idle-bucket cleanup
// goroutine, mirroring the teacher lineage's cleanupLoop.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*tenantLimiter),
		cfg:      cfg,
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *RateLimiter) get(tenantID string) *tenantLimiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	tl, ok := rl.limiters[tenantID]
	if ok {
		tl.lastSeen = time.Now()
		return tl
	}

	perSecond := float64(rl.cfg.MaxRequests) / rl.cfg.Window.Seconds()
	tl = &tenantLimiter{
		limiter:  rate.NewLimiter(rate.Limit(perSecond), rl.cfg.MaxRequests),
		lastSeen: time.Now(),
	}
	rl.limiters[tenantID] = tl
	return tl
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		for tenantID, tl := range rl.limiters {
			if time.Since(tl.lastSeen) > time.Hour {
				delete(rl.limiters, tenantID)
			}
		}
		rl.mu.Unlock()
	}
}

// Middleware enforces the per-tenant rate limit, keying on tenantIDFromPath
// (the tenant is identified by path parameter, not an authenticated
// principal, per spec §6.1).
func (rl *RateLimiter) Middleware(tenantIDFromPath func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID := tenantIDFromPath(r)
			if tenantID == "" {
				next.ServeHTTP(w, r)
				return
			}

			tl := rl.get(tenantID)
			reservation := tl.limiter.Reserve()
			if !reservation.OK() {
				writeRateLimitError(w, 1)
				return
			}

			delay := reservation.Delay()
			if delay > 0 {
				reservation.Cancel()
				retryAfter := int(delay.Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				writeRateLimitError(w, retryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeRateLimitError(w http.ResponseWriter, retryAfterSeconds int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"success":false,"error":"RATE_LIMIT_EXCEEDED","message":"rate limit exceeded"}`))
}
