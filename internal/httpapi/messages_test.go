package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shsh-labs/chatgw/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestSendMessageRejectsInvalidPhone(t *testing.T) {
	mgr := &fakeManager{session: domain.Session{Status: domain.StatusConnected}}
	_, router := newTestServer(t, mgr)

	body, _ := json.Marshal(sendRequest{To: "not-a-phone", Message: "hi"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages/acme/send", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	require.Equal(t, "VALIDATION_ERROR", env.Error)
}

func TestSendMessageNotConnectedReturns400(t *testing.T) {
	mgr := &fakeManager{}
	_, router := newTestServer(t, mgr)
	mgr.session.Status = domain.StatusQR // started but not yet connected
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/sessions/acme/start", nil))

	body, _ := json.Marshal(sendRequest{To: "+15551234567", Message: "hi"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages/acme/send", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	require.Equal(t, "NOT_CONNECTED", env.Error)
}

func TestSendMessageSucceedsWhenConnected(t *testing.T) {
	mgr := &fakeManager{session: domain.Session{Status: domain.StatusConnected}}
	_, router := newTestServer(t, mgr)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/sessions/acme/start", nil))

	body, _ := json.Marshal(sendRequest{To: "+15551234567", Message: "hi"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages/acme/send", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	require.True(t, env.Success)
	require.Equal(t, "+15551234567", mgr.lastTo)
}

func TestSendBulkMessagesRejectsEmptyBatch(t *testing.T) {
	mgr := &fakeManager{session: domain.Session{Status: domain.StatusConnected}}
	_, router := newTestServer(t, mgr)

	body, _ := json.Marshal(bulkRequest{Messages: nil})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages/acme/send-bulk", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendBulkMessagesReportsPerItemOutcome(t *testing.T) {
	mgr := &fakeManager{session: domain.Session{Status: domain.StatusConnected}}
	_, router := newTestServer(t, mgr)
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/sessions/acme/start", nil))

	body, _ := json.Marshal(bulkRequest{Messages: []bulkItem{
		{To: "+15551234567", Message: "one", DelayMs: 1},
		{To: "bad-number", Message: "two", DelayMs: 1},
	}})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages/acme/send-bulk", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	data := env.Data.(map[string]interface{})
	summary := data["summary"].(map[string]interface{})
	require.EqualValues(t, 1, summary["success"])
	require.EqualValues(t, 1, summary["failed"])
}
