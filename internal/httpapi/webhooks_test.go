package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterWebhookRedactsSecretInResponse(t *testing.T) {
	mgr := &fakeManager{}
	_, router := newTestServer(t, mgr)

	body, _ := json.Marshal(registerWebhookRequest{
		URL:    "https://example.com/hook",
		Secret: "top-secret",
		Events: []string{"message"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/register/acme", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	env := decodeEnvelope(t, rec)
	data := env.Data.(map[string]interface{})
	require.Equal(t, "https://example.com/hook", data["url"])
	_, hasSecret := data["secret"]
	require.False(t, hasSecret)
}

func TestListWebhooksEmptyWhenNoneRegistered(t *testing.T) {
	mgr := &fakeManager{}
	_, router := newTestServer(t, mgr)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/webhooks/list/acme", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	list := env.Data.([]interface{})
	require.Empty(t, list)
}

func TestDeleteWebhookUnknownIDReturns404(t *testing.T) {
	mgr := &fakeManager{}
	_, router := newTestServer(t, mgr)

	body, _ := json.Marshal(registerWebhookRequest{URL: "https://example.com/hook"})
	regReq := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/register/acme", bytes.NewReader(body))
	router.ServeHTTP(httptest.NewRecorder(), regReq)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/webhooks/acme/wrong-id", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookStatsUnknownTenantReturns404(t *testing.T) {
	mgr := &fakeManager{}
	_, router := newTestServer(t, mgr)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/webhooks/stats/acme", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}
