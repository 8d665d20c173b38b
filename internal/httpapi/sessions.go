package httpapi

import (
	"encoding/base64"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shsh-labs/chatgw/internal/apperror"
	"github.com/shsh-labs/chatgw/internal/domain"
	"github.com/shsh-labs/chatgw/internal/webhook"
)

const defaultPollTimeout = 10 * time.Second
const maxPollTimeout = 60 * time.Second

func sessionResponse(s domain.Session) map[string]interface{} {
	out := map[string]interface{}{
		"connected": s.Status == domain.StatusConnected,
		"status":    string(s.Status),
	}
	if s.SessionID != "" {
		out["sessionId"] = s.SessionID
	}
	if s.PhoneNumber != "" {
		out["phoneNumber"] = s.PhoneNumber
	}
	if s.DisplayName != "" {
		out["businessName"] = s.DisplayName
	}
	if s.HasPairingArtifact() {
		out["qrCode"] = base64.StdEncoding.EncodeToString(s.PairingArtifact)
	} else {
		out["qrCode"] = nil
	}
	if !s.LastActivity.IsZero() {
		out["lastActivity"] = s.LastActivity.UnixMilli()
	}
	return out
}

// startSession handles POST /sessions/{tenantId}/start.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	s.pairingSvc.Start(tenantID)
	session, err := s.registry.Start(r.Context(), tenantID)
	if err != nil {
		fail(w, err)
		return
	}
	s.autoRegisterWebhook(tenantID)

	resp := sessionResponse(session)
	resp["message"] = "session start initiated"
	ok(w, resp, "")
}

// autoRegisterWebhook registers the operator-wide LOCAI_WEBHOOK_URL/SECRET
// sink for tenantID if configured and the tenant has no sink of its own
// yet, per spec §6.4. A tenant that has already registered a sink (via
// POST /webhooks/register) keeps it; auto-registration never overwrites a
// tenant's own choice.
func (s *Server) autoRegisterWebhook(tenantID string) {
	if s.cfg.AutoWebhook.URL == "" {
		return
	}
	if _, err := s.webhookRegistry.Get(tenantID); err == nil {
		return
	}
	s.webhookRegistry.Register(tenantID, webhook.RegisterInput{
		URL:    s.cfg.AutoWebhook.URL,
		Secret: s.cfg.AutoWebhook.Secret,
	})
}

// sessionStatus handles GET /sessions/{tenantId}/status.
func (s *Server) sessionStatus(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	session, err := s.registry.Status(tenantID)
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, sessionResponse(session), "")
}

// sessionQR handles GET /sessions/{tenantId}/qr.
func (s *Server) sessionQR(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	tracker, err := s.pairingSvc.Current(tenantID)
	if err != nil {
		fail(w, err)
		return
	}

	// An expired tracker still serves its last artifact: per spec §4.3,
	// callers receive an old-but-present code while a fresh one is
	// prepared. Only a connected (or dropped) tracker withholds it.
	hasQR := len(tracker.Artifact) > 0 && tracker.Status != domain.PairingConnected
	resp := map[string]interface{}{
		"status": string(tracker.Status),
		"hasQR":  hasQR,
	}
	if hasQR {
		resp["qrCode"] = base64.StdEncoding.EncodeToString(tracker.Artifact)
	} else {
		resp["qrCode"] = nil
	}
	ok(w, resp, "")
}

// deleteSession handles DELETE /sessions/{tenantId}.
func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	if err := s.registry.Delete(r.Context(), tenantID); err != nil {
		fail(w, err)
		return
	}
	s.pairingSvc.Stop(tenantID)

	ok(w, nil, "session deleted")
}

// restartSession handles POST /sessions/{tenantId}/restart.
func (s *Server) restartSession(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	if err := s.registry.Stop(r.Context(), tenantID); err != nil {
		fail(w, err)
		return
	}

	select {
	case <-time.After(2 * time.Second):
	case <-r.Context().Done():
		fail(w, r.Context().Err())
		return
	}

	s.pairingSvc.Start(tenantID)
	session, err := s.registry.Start(r.Context(), tenantID)
	if err != nil {
		fail(w, err)
		return
	}
	s.autoRegisterWebhook(tenantID)

	ok(w, sessionResponse(session), "session restarted")
}

// activeSessions handles GET /sessions/active (administrative listing).
func (s *Server) activeSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.registry.List()

	out := make([]map[string]interface{}, 0, len(sessions))
	for _, session := range sessions {
		entry := sessionResponse(session)
		if stats, err := s.webhookRegistry.Stats(session.TenantID); err == nil {
			entry["webhookStats"] = map[string]interface{}{
				"total":        stats.Total,
				"success":      stats.Success,
				"fail":         stats.Fail,
				"avgRespMs":    stats.AvgRespMs,
				"uptimePct":    stats.UptimePercent(),
				"lastDelivery": stats.LastDelivery.UnixMilli(),
			}
		}
		out = append(out, entry)
	}
	ok(w, out, "")
}

// pollSession handles GET /sessions/{tenantId}/poll?timeout=<ms>.
func (s *Server) pollSession(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	timeout := defaultPollTimeout
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms < 0 {
			fail(w, apperror.Validation("'timeout' must be a non-negative integer"))
			return
		}
		timeout = time.Duration(ms) * time.Millisecond
		if timeout > maxPollTimeout {
			timeout = maxPollTimeout
		}
	}

	session, err := s.registry.Status(tenantID)
	if err != nil {
		fail(w, err)
		return
	}

	if session.Status != domain.StatusQR && session.Status != domain.StatusConnected {
		s.broker.waitForChange(r.Context(), tenantID, timeout)
		session, err = s.registry.Status(tenantID)
		if err != nil {
			fail(w, err)
			return
		}
	}

	ok(w, sessionResponse(session), "")
}
