package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/parley-chat/parley/internal/agent"
	"github.com/parley-chat/parley/internal/chat"
	"github.com/parley-chat/parley/internal/conversation"
	"github.com/parley-chat/parley/internal/sse"
	"github.com/parley-chat/parley/internal/vault"
)

// Turner runs one chat turn, forwarding chunks to the callback.
type Turner interface {
	Turn(ctx context.Context, userID, conversationID int64, content string, onChunk func(string) error) (*chat.Result, error)
}

// chatHandler serves the turn endpoints.
type chatHandler struct {
	turns  Turner
	logger *slog.Logger
}

type turnRequest struct {
	Content string `json:"content"`
}

type turnResponse struct {
	Message   string `json:"message"`
	MessageID int64  `json:"message_id"`
}

// send handles POST /api/v1/conversations/{id}/messages: a full turn with
// the complete reply in one JSON response.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	result, err := h.turns.Turn(r.Context(), userID, id, req.Content, nil)
	if err != nil {
		h.writeTurnError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turnResponse{
		Message:   result.AssistantMessage.Content,
		MessageID: result.AssistantMessage.ID,
	})
}

// stream handles POST /api/v1/conversations/{id}/stream: a turn streamed as
// SSE data frames, ending with [DONE] or a typed error event.
//
// The SSE writer is created lazily on the first chunk, so failures that
// precede any upstream output still map to plain HTTP status codes.
func (h *chatHandler) stream(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	var writer *sse.Writer
	onChunk := func(chunk string) error {
		if writer == nil {
			sw, err := sse.NewWriter(w)
			if err != nil {
				return err
			}
			writer = sw
		}
		return writer.WriteChunk(chunk)
	}

	result, err := h.turns.Turn(r.Context(), userID, id, req.Content, onChunk)
	if err != nil {
		if writer == nil && !errors.Is(err, chat.ErrUpstream) {
			h.writeTurnError(w, err)
			return
		}
		// Stream already underway or upstream failed: finish over SSE.
		if writer == nil {
			sw, werr := sse.NewWriter(w)
			if werr != nil {
				h.writeTurnError(w, err)
				return
			}
			writer = sw
		}
		kind := "upstream_error"
		if result != nil && result.FailureKind != "" {
			kind = result.FailureKind
		}
		if werr := writer.WriteError(kind, "chat turn failed"); werr != nil {
			h.logger.Debug("writing error frame", "error", werr)
		}
		return
	}

	if writer == nil {
		// Empty reply: open the stream just to terminate it properly.
		sw, werr := sse.NewWriter(w)
		if werr != nil {
			h.logger.Error("creating sse writer", "error", werr)
			writeError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported")
			return
		}
		writer = sw
	}
	if err := writer.WriteDone(); err != nil {
		h.logger.Debug("writing done frame", "error", err)
	}
}

// writeTurnError maps orchestration errors to HTTP statuses. Upstream error
// bodies never pass through; only stable tags do.
func (h *chatHandler) writeTurnError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		writeError(w, http.StatusUnprocessableEntity, "empty_message", "message content is required")
	case errors.Is(err, conversation.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "conversation not found")
	case errors.Is(err, chat.ErrConversationBusy):
		writeError(w, http.StatusConflict, "conversation_busy", "another turn is already running")
	case errors.Is(err, chat.ErrCredentialMissing):
		writeError(w, http.StatusBadRequest, "credential_missing", "no API key stored for this conversation's provider")
	case errors.Is(err, vault.ErrInvalidToken):
		writeError(w, http.StatusBadRequest, "credential_invalid", "stored API key cannot be decrypted, please re-enter it")
	case errors.Is(err, agent.ErrUnsupportedStrategy), errors.Is(err, agent.ErrProviderMismatch):
		writeError(w, http.StatusUnprocessableEntity, "invalid_strategy", "conversation has an unusable agent configuration")
	case errors.Is(err, chat.ErrUpstream):
		writeError(w, http.StatusBadGateway, "upstream_error", "provider request failed")
	default:
		h.logger.Error("chat turn failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
