package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/parley-chat/parley/internal/agent"
	"github.com/parley-chat/parley/internal/credential"
)

// CredentialStore is the credential persistence the API needs.
type CredentialStore interface {
	Set(ctx context.Context, userID int64, provider agent.Provider, encryptedKey string) (*credential.Credential, error)
	List(ctx context.Context, userID int64) ([]credential.Credential, error)
	Delete(ctx context.Context, userID int64, provider agent.Provider) error
}

// Sealer encrypts API keys before they reach storage.
type Sealer interface {
	Seal(plaintext string) (string, error)
}

// apiKeyHandler serves per-user provider key management. Key material flows
// in exactly once (on set) and never flows back out.
type apiKeyHandler struct {
	credentials CredentialStore
	sealer      Sealer
	logger      *slog.Logger
}

type setKeyRequest struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
}

// set handles POST /api/v1/api-keys, replacing any existing key for the
// provider.
func (h *apiKeyHandler) set(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	var req setKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	provider, err := agent.ParseProvider(req.Provider)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_provider", "provider must be openai or anthropic")
		return
	}
	if strings.TrimSpace(req.APIKey) == "" {
		writeError(w, http.StatusUnprocessableEntity, "invalid_key", "api_key is required")
		return
	}

	sealed, err := h.sealer.Seal(req.APIKey)
	if err != nil {
		h.logger.Error("sealing api key", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	cred, err := h.credentials.Set(r.Context(), userID, provider, sealed)
	if err != nil {
		h.logger.Error("storing credential", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, cred)
}

// list handles GET /api/v1/api-keys. The response carries metadata only.
func (h *apiKeyHandler) list(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	creds, err := h.credentials.List(r.Context(), userID)
	if err != nil {
		h.logger.Error("listing credentials", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	if creds == nil {
		creds = []credential.Credential{}
	}
	writeJSON(w, http.StatusOK, creds)
}

// remove handles DELETE /api/v1/api-keys/{provider}.
func (h *apiKeyHandler) remove(w http.ResponseWriter, r *http.Request) {
	userID, _ := userIDFromContext(r.Context())

	provider, err := agent.ParseProvider(r.PathValue("provider"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid_provider", "provider must be openai or anthropic")
		return
	}

	err = h.credentials.Delete(r.Context(), userID, provider)
	if errors.Is(err, credential.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "no key stored for provider")
		return
	}
	if err != nil {
		h.logger.Error("deleting credential", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
