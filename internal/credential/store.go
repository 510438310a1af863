package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parley-chat/parley/internal/agent"
)

// Store persists sealed credentials in PostgreSQL.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a credential Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Set stores a sealed key for (user, provider), replacing any existing one.
// A user holds at most one credential per provider.
func (s *Store) Set(ctx context.Context, userID int64, provider agent.Provider, encryptedKey string) (*Credential, error) {
	var c Credential
	err := s.pool.QueryRow(ctx,
		`INSERT INTO api_keys (user_id, provider, encrypted_key)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, provider)
		 DO UPDATE SET encrypted_key = EXCLUDED.encrypted_key, updated_at = now()
		 RETURNING id, user_id, provider, encrypted_key, created_at, updated_at`,
		userID, provider, encryptedKey,
	).Scan(&c.ID, &c.UserID, &c.Provider, &c.EncryptedKey, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("storing credential: %w", err)
	}

	s.logger.Info("credential stored", "user_id", userID, "provider", provider)
	return &c, nil
}

// Get fetches the sealed credential for (user, provider).
func (s *Store) Get(ctx context.Context, userID int64, provider agent.Provider) (*Credential, error) {
	var c Credential
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, provider, encrypted_key, created_at, updated_at
		 FROM api_keys WHERE user_id = $1 AND provider = $2`,
		userID, provider,
	).Scan(&c.ID, &c.UserID, &c.Provider, &c.EncryptedKey, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching credential: %w", err)
	}
	return &c, nil
}

// List returns the user's credentials without key material, newest first.
func (s *Store) List(ctx context.Context, userID int64) ([]Credential, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, provider, created_at, updated_at
		 FROM api_keys WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}
	defer rows.Close()

	var creds []Credential
	for rows.Next() {
		var c Credential
		if err := rows.Scan(&c.ID, &c.UserID, &c.Provider, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning credential: %w", err)
		}
		creds = append(creds, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating credentials: %w", err)
	}
	return creds, nil
}

// Delete removes the credential for (user, provider).
func (s *Store) Delete(ctx context.Context, userID int64, provider agent.Provider) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM api_keys WHERE user_id = $1 AND provider = $2`,
		userID, provider,
	)
	if err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	s.logger.Info("credential deleted", "user_id", userID, "provider", provider)
	return nil
}
