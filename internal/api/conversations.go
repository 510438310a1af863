package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/parley-chat/parley/internal/agent"
	"github.com/parley-chat/parley/internal/conversation"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ConversationStore is the thread persistence the API needs.
type ConversationStore interface {
	Create(ctx context.Context, userID int64, title *string, strategy string, provider agent.Provider) (*conversation.Conversation, error)
	ListByUser(ctx context.Context, userID int64, skip, limit int) ([]conversation.Conversation, error)
	GetWithMessages(ctx context.Context, userID, id int64) (*conversation.Conversation, []conversation.Message, error)
	UpdateTitle(ctx context.Context, userID, id int64, title string) error
	Delete(ctx context.Context, userID, id int64) error
}

// conversationHandler serves thread CRUD.
type conversationHandler struct {
	conversations ConversationStore
	logger        *slog.Logger
}

type createConversationRequest struct {
	Title         *string `json:"title"`
	AgentStrategy string  `json:"agent_strategy"`
	Provider      string  `json:"provider"`
}

type conversationDetail struct {
	*conversation.Conversation
	Messages []conversation.Message `json:"messages"`
}

// create handles POST /api/v1/conversations.
func (h *conversationHandler) create(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	provider, err := agent.ParseProvider(req.Provider)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_provider", "provider must be openai or anthropic")
		return
	}

	// Only the provider is validated here. The strategy is a free tag until
	// turn time, when resolving it fails the turn instead of the creation.
	strategy := strings.TrimSpace(req.AgentStrategy)
	if strategy == "" {
		strategy = agent.StrategyAgent
	}

	title := req.Title
	if title == nil || strings.TrimSpace(*title) == "" {
		generated := "New Chat - " + time.Now().Format("2006-01-02 15:04")
		title = &generated
	}

	conv, err := h.conversations.Create(r.Context(), userID, title, strategy, provider)
	if err != nil {
		h.logger.Error("creating conversation", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

// list handles GET /api/v1/conversations?skip=&limit=.
func (h *conversationHandler) list(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	skip := queryInt(r, "skip", 0)
	limit := queryInt(r, "limit", defaultPageSize)
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}

	convs, err := h.conversations.ListByUser(r.Context(), userID, skip, limit)
	if err != nil {
		h.logger.Error("listing conversations", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	if convs == nil {
		convs = []conversation.Conversation{}
	}
	writeJSON(w, http.StatusOK, convs)
}

// get handles GET /api/v1/conversations/{id}.
func (h *conversationHandler) get(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	id, ok := pathID(w, r)
	if !ok {
		return
	}

	conv, msgs, err := h.conversations.GetWithMessages(r.Context(), userID, id)
	if errors.Is(err, conversation.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "conversation not found")
		return
	}
	if err != nil {
		h.logger.Error("fetching conversation", "error", err, "conversation_id", id)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	if msgs == nil {
		msgs = []conversation.Message{}
	}

	// Optional transcript paging; defaults return the full history.
	if skip := queryInt(r, "skip", 0); skip > 0 {
		if skip >= len(msgs) {
			msgs = []conversation.Message{}
		} else {
			msgs = msgs[skip:]
		}
	}
	if limit := queryInt(r, "limit", 0); limit > 0 && limit < len(msgs) {
		msgs = msgs[:limit]
	}

	writeJSON(w, http.StatusOK, conversationDetail{Conversation: conv, Messages: msgs})
}

type renameRequest struct {
	Title string `json:"title"`
}

// rename handles PATCH /api/v1/conversations/{id}.
func (h *conversationHandler) rename(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusUnprocessableEntity, "invalid_title", "title is required")
		return
	}

	err := h.conversations.UpdateTitle(r.Context(), userID, id, req.Title)
	if errors.Is(err, conversation.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "conversation not found")
		return
	}
	if err != nil {
		h.logger.Error("renaming conversation", "error", err, "conversation_id", id)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// remove handles DELETE /api/v1/conversations/{id}.
func (h *conversationHandler) remove(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	id, ok := pathID(w, r)
	if !ok {
		return
	}

	err := h.conversations.Delete(r.Context(), userID, id)
	if errors.Is(err, conversation.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "conversation not found")
		return
	}
	if err != nil {
		h.logger.Error("deleting conversation", "error", err, "conversation_id", id)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pathID parses the {id} path segment, writing a 404 for non-numeric values
// so malformed ids are indistinguishable from missing ones.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusNotFound, "not_found", "conversation not found")
		return 0, false
	}
	return id, true
}

// queryInt reads an integer query parameter with a fallback.
func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
