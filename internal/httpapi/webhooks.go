package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shsh-labs/chatgw/internal/apperror"
	"github.com/shsh-labs/chatgw/internal/domain"
	"github.com/shsh-labs/chatgw/internal/webhook"
)

type registerWebhookRequest struct {
	URL    string   `json:"url"`
	Secret string   `json:"secret"`
	Events []string `json:"events"`
}

func sinkResponse(s domain.WebhookSink) map[string]interface{} {
	events := make([]string, 0, len(s.Events))
	for e, on := range s.Events {
		if on {
			events = append(events, string(e))
		}
	}
	return map[string]interface{}{
		"id":     s.ID,
		"url":    s.URL,
		"events": events,
		"active": s.Active,
		// secret is intentionally omitted: spec §6.1 redacts it on listing.
	}
}

// registerWebhook handles POST /webhooks/register/{tenantId}.
func (s *Server) registerWebhook(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	var req registerWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, apperror.Validation("invalid request body"))
		return
	}
	if req.URL == "" {
		fail(w, apperror.Validation("'url' is required"))
		return
	}

	events := make([]domain.WebhookEvent, 0, len(req.Events))
	for _, e := range req.Events {
		events = append(events, domain.WebhookEvent(e))
	}

	sink := s.webhookRegistry.Register(tenantID, webhook.RegisterInput{
		URL:    req.URL,
		Secret: req.Secret,
		Events: events,
	})

	created(w, sinkResponse(sink))
}

// listWebhooks handles GET /webhooks/list/{tenantId}.
func (s *Server) listWebhooks(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	sink, err := s.webhookRegistry.Get(tenantID)
	if err != nil {
		ok(w, []map[string]interface{}{}, "")
		return
	}
	ok(w, []map[string]interface{}{sinkResponse(sink)}, "")
}

// deleteWebhook handles DELETE /webhooks/{tenantId}/{webhookId}.
func (s *Server) deleteWebhook(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	webhookID := chi.URLParam(r, "webhookId")

	sink, err := s.webhookRegistry.Get(tenantID)
	if err != nil || sink.ID != webhookID {
		fail(w, apperror.NotFound("no such webhook for tenant"))
		return
	}

	s.webhookRegistry.Delete(tenantID)
	ok(w, nil, "webhook deleted")
}

// testWebhook handles POST /webhooks/test/{tenantId}/{webhookId}.
func (s *Server) testWebhook(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	webhookID := chi.URLParam(r, "webhookId")

	sink, err := s.webhookRegistry.Get(tenantID)
	if err != nil || sink.ID != webhookID {
		fail(w, apperror.NotFound("no such webhook for tenant"))
		return
	}

	start := time.Now()
	testErr := s.dispatcher.Test(r.Context(), tenantID)
	elapsed := time.Since(start)

	if testErr != nil {
		ok(w, map[string]interface{}{
			"success":      false,
			"responseTime": elapsed.Milliseconds(),
			"error":        testErr.Error(),
		}, "")
		return
	}

	ok(w, map[string]interface{}{
		"success":      true,
		"responseTime": elapsed.Milliseconds(),
	}, "")
}

// webhookStats handles GET /webhooks/stats/{tenantId}.
func (s *Server) webhookStats(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	stats, err := s.webhookRegistry.Stats(tenantID)
	if err != nil {
		fail(w, err)
		return
	}

	ok(w, map[string]interface{}{
		"total":        stats.Total,
		"success":      stats.Success,
		"fail":         stats.Fail,
		"avgRespMs":    stats.AvgRespMs,
		"uptimePct":    stats.UptimePercent(),
		"lastDelivery": stats.LastDelivery.UnixMilli(),
	}, "")
}
