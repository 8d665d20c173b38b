package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shsh-labs/chatgw/internal/apperror"
)

// envelope is the JSON response shape fixed by spec §6.1.
type envelope struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// writeJSON writes v at status, following the teacher's JSON() helper
// (internal/api/handler.go) generalized to the envelope shape.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"success":false,"error":"INTERNAL_ERROR"}`, http.StatusInternalServerError)
	}
}

// ok writes a successful envelope carrying data and an optional message.
func ok(w http.ResponseWriter, data interface{}, message string) {
	writeJSON(w, http.StatusOK, envelope{
		Success:   true,
		Data:      data,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	})
}

// created writes a 201 envelope carrying data.
func created(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusCreated, envelope{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
}

// fail writes a failure envelope, mapping err through the apperror taxonomy
// at the HTTP boundary per spec §7.
func fail(w http.ResponseWriter, err error) {
	appErr := apperror.As(err)
	writeJSON(w, appErr.Status, envelope{
		Success:   false,
		Error:     string(appErr.Code),
		Message:   appErr.Message,
		Timestamp: time.Now().UnixMilli(),
	})
}
