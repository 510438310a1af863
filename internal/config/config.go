// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (./config.yaml or /etc/parley/config.yaml)
//  3. Default values
//
// Security: sensitive values (database password, JWT secret, encryption key)
// are masked in MarshalJSON and never logged in the clear.
//
// Error handling uses sentinel errors so callers can check with errors.Is().
package config

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingJWTSecret indicates the JWT signing secret is not set.
	ErrMissingJWTSecret = errors.New("missing JWT secret")

	// ErrInvalidJWTSecret indicates the JWT signing secret is too short.
	ErrInvalidJWTSecret = errors.New("invalid JWT secret")

	// ErrMissingEncryptionKey indicates the credential encryption key is not set.
	ErrMissingEncryptionKey = errors.New("missing encryption key")

	// ErrInvalidEncryptionKey indicates the credential encryption key is malformed.
	ErrInvalidEncryptionKey = errors.New("invalid encryption key")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidHistoryWindow indicates the history window is out of range.
	ErrInvalidHistoryWindow = errors.New("invalid history window")

	// ErrInvalidRateLimit indicates the rate limit is out of range.
	ErrInvalidRateLimit = errors.New("invalid rate limit")

	// ErrInvalidTimeout indicates a stream timeout is out of range.
	ErrInvalidTimeout = errors.New("invalid timeout")
)

const (
	// DefaultHistoryWindow is the number of trailing messages handed to the
	// agent as conversation context.
	DefaultHistoryWindow int32 = 20

	// MaxHistoryWindow is the absolute maximum history window to prevent
	// unbounded context loads.
	MaxHistoryWindow int32 = 1000

	// DefaultTokenExpiryMinutes is the default access token lifetime (7 days).
	DefaultTokenExpiryMinutes = 60 * 24 * 7

	// minJWTSecretLen is the minimum JWT secret length in bytes.
	minJWTSecretLen = 32
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields, update MarshalJSON.
type Config struct {
	// HTTP server
	Addr        string   `mapstructure:"addr" json:"addr"`
	Environment string   `mapstructure:"environment" json:"environment"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"`

	// Rate limiting (per client IP)
	RatePerMinute int `mapstructure:"rate_per_minute" json:"rate_per_minute"`
	RateBurst     int `mapstructure:"rate_burst" json:"rate_burst"`

	// Security
	JWTSecret          string `mapstructure:"jwt_secret" json:"jwt_secret"`           // SENSITIVE: masked in MarshalJSON
	EncryptionKey      string `mapstructure:"encryption_key" json:"encryption_key"`   // SENSITIVE: masked in MarshalJSON
	TokenExpiryMinutes int    `mapstructure:"token_expiry_minutes" json:"token_expiry_minutes"`

	// Chat pipeline
	HistoryWindow       int32 `mapstructure:"history_window" json:"history_window"`
	StreamChunkTimeoutS int   `mapstructure:"stream_chunk_timeout_s" json:"stream_chunk_timeout_s"`
	StreamTurnTimeoutS  int   `mapstructure:"stream_turn_timeout_s" json:"stream_turn_timeout_s"`

	// Storage (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/parley")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults plus env suffice.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL, if set, overrides the individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", "127.0.0.1:8080")
	v.SetDefault("environment", "development")
	v.SetDefault("cors_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("trust_proxy", false)

	v.SetDefault("rate_per_minute", 20)
	v.SetDefault("rate_burst", 10)

	v.SetDefault("token_expiry_minutes", DefaultTokenExpiryMinutes)

	v.SetDefault("history_window", DefaultHistoryWindow)
	v.SetDefault("stream_chunk_timeout_s", 60)
	v.SetDefault("stream_turn_timeout_s", 300)

	// PostgreSQL defaults (matching docker-compose.yml)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "parley")
	v.SetDefault("postgres_password", "parley_dev_password")
	v.SetDefault("postgres_db_name", "parley")
	v.SetDefault("postgres_ssl_mode", "disable")
}

// bindEnvVariables binds environment variables explicitly.
// Secrets are only accepted from the environment or the config file, never
// from CLI flags where they would leak into process listings.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a failure here is a bug.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("jwt_secret", "SECRET_KEY")
	mustBind("encryption_key", "ENCRYPTION_KEY")

	mustBind("addr", "PARLEY_ADDR")
	mustBind("environment", "PARLEY_ENVIRONMENT")
	mustBind("cors_origins", "PARLEY_CORS_ORIGINS")
	mustBind("trust_proxy", "PARLEY_TRUST_PROXY")
	mustBind("rate_per_minute", "PARLEY_RATE_PER_MINUTE")
	mustBind("rate_burst", "PARLEY_RATE_BURST")
	mustBind("history_window", "PARLEY_HISTORY_WINDOW")

	mustBind("postgres_host", "PARLEY_POSTGRES_HOST")
	mustBind("postgres_port", "PARLEY_POSTGRES_PORT")
	mustBind("postgres_user", "PARLEY_POSTGRES_USER")
	mustBind("postgres_password", "PARLEY_POSTGRES_PASSWORD")
	mustBind("postgres_db_name", "PARLEY_POSTGRES_DB_NAME")
	mustBind("postgres_ssl_mode", "PARLEY_POSTGRES_SSL_MODE")
}

// DecodeEncryptionKey decodes the base64-encoded credential encryption key.
// The key must decode to a valid AES key length (16, 24, or 32 bytes).
func (c *Config) DecodeEncryptionKey() ([]byte, error) {
	if c.EncryptionKey == "" {
		return nil, ErrMissingEncryptionKey
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(c.EncryptionKey))
	if err != nil {
		return nil, fmt.Errorf("%w: not valid base64: %v", ErrInvalidEncryptionKey, err)
	}
	switch len(key) {
	case 16, 24, 32:
		return key, nil
	default:
		return nil, fmt.Errorf("%w: must decode to 16, 24 or 32 bytes, got %d",
			ErrInvalidEncryptionKey, len(key))
	}
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 bytes or fewer are fully masked to prevent substring matching;
// longer secrets show the first and last 2 characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.JWTSecret = maskSecret(a.JWTSecret)
	a.EncryptionKey = maskSecret(a.EncryptionKey)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
