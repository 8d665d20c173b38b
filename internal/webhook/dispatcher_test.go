package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shsh-labs/chatgw/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestDispatchDeliversSignedPayload(t *testing.T) {
	var receivedSig string
	var receivedBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedSig = r.Header.Get("X-Webhook-Signature")
		receivedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := NewRegistry()
	reg.Register("acme", RegisterInput{URL: srv.URL, Secret: "s3cret", Events: []domain.WebhookEvent{domain.WebhookEventMessage}})
	disp := NewDispatcher(reg)

	err := disp.Dispatch(context.Background(), "acme", domain.WebhookEventMessage, Payload{
		Event: domain.WebhookEventMessage, TenantID: "acme", MessageID: "m1", Data: "hi",
	})
	require.NoError(t, err)
	require.True(t, verify("s3cret", receivedSig, receivedBody))

	stats, err := reg.Stats("acme")
	require.NoError(t, err)
	require.Equal(t, 1, stats.Success)
}

func TestDispatchSetsMandatoryHeadersAndOmitsMessageIDFromBody(t *testing.T) {
	var gotReq *http.Request
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReq = r
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := NewRegistry()
	reg.Register("acme", RegisterInput{URL: srv.URL, Events: []domain.WebhookEvent{domain.WebhookEventMessage}})
	disp := NewDispatcher(reg)

	err := disp.Dispatch(context.Background(), "acme", domain.WebhookEventMessage, Payload{
		Event: domain.WebhookEventMessage, TenantID: "acme", MessageID: "m1", Data: "hi",
	})
	require.NoError(t, err)

	require.Equal(t, "application/json", gotReq.Header.Get("Content-Type"))
	require.Equal(t, "WhatsApp-Microservice/1.0.0", gotReq.Header.Get("User-Agent"))
	require.Equal(t, string(domain.WebhookEventMessage), gotReq.Header.Get("X-Webhook-Event"))
	require.Equal(t, "acme", gotReq.Header.Get("X-Tenant-ID"))
	require.Empty(t, gotReq.Header.Get("X-Webhook-Signature"), "no secret configured, so no signature header")
	require.Empty(t, gotReq.Header.Get("X-Webhook-ID"))
	require.NotContains(t, string(gotBody), "messageId", "MessageID is an in-process dedup key, not part of the wire body")
}

func TestDispatchDedupesRepeatedMessageID(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := NewRegistry()
	reg.Register("acme", RegisterInput{URL: srv.URL, Secret: "s"})
	disp := NewDispatcher(reg)

	payload := Payload{Event: domain.WebhookEventMessage, TenantID: "acme", MessageID: "dup-1", Data: "x"}
	require.NoError(t, disp.Dispatch(context.Background(), "acme", domain.WebhookEventMessage, payload))
	require.NoError(t, disp.Dispatch(context.Background(), "acme", domain.WebhookEventMessage, payload))

	require.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestDispatchDoesNotRetryOn4xx(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	reg := NewRegistry()
	reg.Register("acme", RegisterInput{URL: srv.URL, Secret: "s"})
	disp := NewDispatcher(reg)

	err := disp.Dispatch(context.Background(), "acme", domain.WebhookEventMessage, Payload{
		Event: domain.WebhookEventMessage, TenantID: "acme", MessageID: "m-400", Data: "x",
	})
	require.Error(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&hits), "4xx must not be retried")
}

func TestSinkDeactivatesOnceErrorCountExceedsTen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	reg := NewRegistry()
	reg.Register("acme", RegisterInput{URL: srv.URL, Secret: "s"})
	disp := NewDispatcher(reg)

	for i := 0; i < 11; i++ {
		_ = disp.Dispatch(context.Background(), "acme", domain.WebhookEventMessage, Payload{
			Event: domain.WebhookEventMessage, TenantID: "acme", MessageID: "m" + time.Now().Format(time.RFC3339Nano), Data: "x",
		})
	}

	sink, err := reg.Get("acme")
	require.NoError(t, err)
	require.False(t, sink.Active)
	require.Greater(t, sink.ErrorCount, 10)
}

func TestDispatchNoopWhenSinkNotSubscribed(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := NewRegistry()
	reg.Register("acme", RegisterInput{URL: srv.URL, Secret: "s", Events: []domain.WebhookEvent{domain.WebhookEventStatus}})
	disp := NewDispatcher(reg)

	err := disp.Dispatch(context.Background(), "acme", domain.WebhookEventMessage, Payload{
		Event: domain.WebhookEventMessage, TenantID: "acme", MessageID: "m1", Data: "x",
	})
	require.NoError(t, err)
	require.Equal(t, int32(0), atomic.LoadInt32(&hits))
}
