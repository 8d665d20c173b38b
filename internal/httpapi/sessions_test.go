package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shsh-labs/chatgw/internal/domain"
	"github.com/stretchr/testify/require"
)

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env
}

func TestStartSessionReturnsConnectingStatus(t *testing.T) {
	mgr := &fakeManager{}
	_, router := newTestServer(t, mgr)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/acme/start", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	require.True(t, env.Success)

	data := env.Data.(map[string]interface{})
	require.Equal(t, string(domain.StatusConnecting), data["status"])
}

func TestSessionStatusUnknownTenantReturns404(t *testing.T) {
	mgr := &fakeManager{}
	_, router := newTestServer(t, mgr)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/never-started/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	env := decodeEnvelope(t, rec)
	require.False(t, env.Success)
	require.Equal(t, "NOT_FOUND", env.Error)
}

func TestSessionQRReflectsPairingTracker(t *testing.T) {
	mgr := &fakeManager{}
	srv, router := newTestServer(t, mgr)

	srv.pairingSvc.Start("acme")
	srv.pairingSvc.SetArtifact("acme", []byte("qr-bytes"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/acme/qr", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	data := env.Data.(map[string]interface{})
	require.Equal(t, true, data["hasQR"])
	require.NotNil(t, data["qrCode"])
}

func TestDeleteSessionLogsOutAndRemovesEntry(t *testing.T) {
	mgr := &fakeManager{}
	_, router := newTestServer(t, mgr)

	start := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/acme/start", nil)
	router.ServeHTTP(httptest.NewRecorder(), start)

	del := httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/acme", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, del)
	require.Equal(t, http.StatusOK, rec.Code)

	status := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/acme/status", nil)
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, status)
	require.Equal(t, http.StatusNotFound, rec2.Code)
}

func TestActiveSessionsListsEveryStartedTenant(t *testing.T) {
	mgr := &fakeManager{}
	_, router := newTestServer(t, mgr)

	start := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/acme/start", nil)
	router.ServeHTTP(httptest.NewRecorder(), start)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/active", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	list := env.Data.([]interface{})
	require.Len(t, list, 1)
}
