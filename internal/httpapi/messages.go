package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shsh-labs/chatgw/internal/apperror"
	"github.com/shsh-labs/chatgw/internal/sessionmgr"
)

// sender is the subset of sessionmgr.Manager needed to deliver a message;
// narrowed so this package depends only on what it uses.
type sender interface {
	Send(ctx context.Context, to string, data sessionmgr.MessageData) (string, error)
}

func (s *Server) senderFor(tenantID string) (sender, error) {
	mgr, err := s.registry.Manager(tenantID)
	if err != nil {
		return nil, err
	}
	snd, ok := mgr.(sender)
	if !ok {
		return nil, apperror.Internal("session manager does not support sending")
	}
	return snd, nil
}

type sendRequest struct {
	To       string `json:"to"`
	Message  string `json:"message"`
	Type     string `json:"type"`
	MediaURL string `json:"mediaUrl"`
	Caption  string `json:"caption"`
	FileName string `json:"fileName"`
}

// sendMessage handles POST /messages/{tenantId}/send.
func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, apperror.Validation("invalid request body"))
		return
	}

	if err := validatePhone(req.To); err != nil {
		fail(w, err)
		return
	}
	if err := validateMessageText(req.Message); err != nil {
		fail(w, err)
		return
	}

	snd, err := s.senderFor(tenantID)
	if err != nil {
		fail(w, err)
		return
	}

	id, err := snd.Send(r.Context(), req.To, sessionmgr.MessageData{
		Text:     req.Message,
		Type:     req.Type,
		MediaURL: req.MediaURL,
		Caption:  req.Caption,
		FileName: req.FileName,
	})
	if err != nil {
		if sessionmgr.IsMediaFetchFailed(err) {
			fail(w, apperror.Validation("failed to fetch media: "+err.Error()))
			return
		}
		fail(w, err)
		return
	}

	ok(w, map[string]interface{}{"id": id}, "")
}

// sendMediaMessage handles POST /messages/{tenantId}/send-media (multipart).
func (s *Server) sendMediaMessage(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	if err := r.ParseMultipartForm(s.cfg.Upload.MaxFileSizeBytes); err != nil {
		fail(w, apperror.Validation("invalid multipart form: "+err.Error()))
		return
	}

	to := r.FormValue("to")
	message := r.FormValue("message")
	caption := r.FormValue("caption")
	mediaType := r.FormValue("type")

	if err := validatePhone(to); err != nil {
		fail(w, err)
		return
	}

	file, header, err := r.FormFile("media")
	if err != nil {
		fail(w, apperror.Validation("missing 'media' file part"))
		return
	}
	defer file.Close()

	mediaURL, err := s.storeUpload(header, file)
	if err != nil {
		fail(w, apperror.Internal("failed to store upload: "+err.Error()))
		return
	}

	snd, err := s.senderFor(tenantID)
	if err != nil {
		fail(w, err)
		return
	}

	id, err := snd.Send(r.Context(), to, sessionmgr.MessageData{
		Text:     message,
		Type:     mediaType,
		MediaURL: mediaURL,
		Caption:  caption,
		FileName: header.Filename,
	})
	if err != nil {
		fail(w, err)
		return
	}

	ok(w, map[string]interface{}{"id": id, "mediaUrl": mediaURL}, "")
}

type bulkItem struct {
	To       string `json:"to"`
	Message  string `json:"message"`
	Type     string `json:"type"`
	MediaURL string `json:"mediaUrl"`
	Caption  string `json:"caption"`
	DelayMs  int    `json:"delayMs"`
}

type bulkRequest struct {
	Messages []bulkItem `json:"messages"`
}

const defaultBulkDelay = 2 * time.Second

// sendBulkMessages handles POST /messages/{tenantId}/send-bulk.
func (s *Server) sendBulkMessages(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	var req bulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, apperror.Validation("invalid request body"))
		return
	}
	if err := validateBulkSize(len(req.Messages)); err != nil {
		fail(w, err)
		return
	}

	snd, err := s.senderFor(tenantID)
	if err != nil {
		fail(w, err)
		return
	}

	type outcome struct {
		To      string `json:"to"`
		Success bool   `json:"success"`
		ID      string `json:"id,omitempty"`
		Error   string `json:"error,omitempty"`
	}

	outcomes := make([]outcome, 0, len(req.Messages))
	succeeded := 0

	for i, item := range req.Messages {
		if i > 0 {
			delay := defaultBulkDelay
			if item.DelayMs > 0 {
				delay = time.Duration(item.DelayMs) * time.Millisecond
			}
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				outcomes = append(outcomes, outcome{To: item.To, Success: false, Error: "cancelled"})
				continue
			}
		}

		if err := validatePhone(item.To); err != nil {
			outcomes = append(outcomes, outcome{To: item.To, Success: false, Error: err.Error()})
			continue
		}

		id, err := snd.Send(r.Context(), item.To, sessionmgr.MessageData{
			Text: item.Message, Type: item.Type, MediaURL: item.MediaURL, Caption: item.Caption,
		})
		if err != nil {
			outcomes = append(outcomes, outcome{To: item.To, Success: false, Error: err.Error()})
			continue
		}
		succeeded++
		outcomes = append(outcomes, outcome{To: item.To, Success: true, ID: id})
	}

	ok(w, map[string]interface{}{
		"results": outcomes,
		"summary": map[string]interface{}{
			"total":   len(req.Messages),
			"success": succeeded,
			"failed":  len(req.Messages) - succeeded,
		},
	}, "")
}
