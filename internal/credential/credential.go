// Package credential stores per-user provider API keys. Keys are sealed by
// the caller before they reach this package; only opaque ciphertext tokens
// touch the database.
package credential

import (
	"errors"
	"time"

	"github.com/parley-chat/parley/internal/agent"
)

// ErrNotFound indicates the user has no credential for the provider.
var ErrNotFound = errors.New("credential not found")

// Credential is one user's sealed API key for one provider.
type Credential struct {
	ID           int64          `json:"id"`
	UserID       int64          `json:"-"`
	Provider     agent.Provider `json:"provider"`
	EncryptedKey string         `json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
