package config

import (
	"fmt"
	"log/slog"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// 1. JWT secret: required, minimum length for HS256.
	if c.JWTSecret == "" {
		return fmt.Errorf("%w: set SECRET_KEY in the environment", ErrMissingJWTSecret)
	}
	if len(c.JWTSecret) < minJWTSecretLen {
		return fmt.Errorf("%w: must be at least %d characters, got %d",
			ErrInvalidJWTSecret, minJWTSecretLen, len(c.JWTSecret))
	}

	// 2. Credential encryption key: required, must decode to an AES key.
	// The decoded key is discarded here; the vault decodes it again at startup.
	if _, err := c.DecodeEncryptionKey(); err != nil {
		return err
	}

	// 3. Token lifetime.
	if c.TokenExpiryMinutes < 1 {
		return fmt.Errorf("%w: token_expiry_minutes must be positive, got %d",
			ErrInvalidTimeout, c.TokenExpiryMinutes)
	}

	// 4. Chat pipeline bounds.
	if c.HistoryWindow < 1 || c.HistoryWindow > MaxHistoryWindow {
		return fmt.Errorf("%w: must be between 1 and %d, got %d",
			ErrInvalidHistoryWindow, MaxHistoryWindow, c.HistoryWindow)
	}
	if c.StreamChunkTimeoutS < 1 {
		return fmt.Errorf("%w: stream_chunk_timeout_s must be positive, got %d",
			ErrInvalidTimeout, c.StreamChunkTimeoutS)
	}
	if c.StreamTurnTimeoutS < c.StreamChunkTimeoutS {
		return fmt.Errorf("%w: stream_turn_timeout_s (%d) must be >= stream_chunk_timeout_s (%d)",
			ErrInvalidTimeout, c.StreamTurnTimeoutS, c.StreamChunkTimeoutS)
	}

	// 5. Rate limiting.
	if c.RatePerMinute < 1 {
		return fmt.Errorf("%w: rate_per_minute must be positive, got %d",
			ErrInvalidRateLimit, c.RatePerMinute)
	}
	if c.RateBurst < 1 {
		return fmt.Errorf("%w: rate_burst must be positive, got %d",
			ErrInvalidRateLimit, c.RateBurst)
	}

	// 6. PostgreSQL configuration.
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d",
			ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	if c.PostgresPassword == "parley_dev_password" {
		slog.Warn("using default development password for PostgreSQL",
			"warning", "change postgres_password for production deployments")
	}

	return nil
}
