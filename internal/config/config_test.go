package config

import (
	"strings"
	"testing"
)

func TestMaskSecret(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		secret string
		want   string
	}{
		{"empty", "", ""},
		{"short fully masked", "abc", maskedValue},
		{"boundary fully masked", "12345678", maskedValue},
		{"long shows edges", "my_long_secret_key_123", "my<" + maskedValue + ">23"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := maskSecret(tt.secret); got != tt.want {
				t.Errorf("maskSecret(%q) = %q, want %q", tt.secret, got, tt.want)
			}
		})
	}
}

func TestMarshalJSON_MasksSecrets(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.PostgresPassword = "super-secret-password"
	cfg.JWTSecret = "jwt-secret-value-0123456789abcdef"

	out := cfg.String()
	if strings.Contains(out, "super-secret-password") {
		t.Error("postgres password leaked in String()")
	}
	if strings.Contains(out, "jwt-secret-value") {
		t.Error("jwt secret leaked in String()")
	}
	if !strings.Contains(out, maskedValue) {
		t.Error("expected masked placeholder in output")
	}
}

func TestPostgresConnectionString_QuotesPassword(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.PostgresPassword = `pa'ss word`

	dsn := cfg.PostgresConnectionString()
	if !strings.Contains(dsn, `password='pa\'ss word'`) {
		t.Errorf("password not quoted correctly: %s", dsn)
	}
}

func TestPostgresURL_EncodesCredentials(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.PostgresUser = "user@host"
	cfg.PostgresPassword = "p@ss/word"

	u := cfg.PostgresURL()
	if !strings.HasPrefix(u, "postgres://") {
		t.Errorf("unexpected scheme: %s", u)
	}
	if strings.Contains(u, "p@ss/word") {
		t.Errorf("password not URL-encoded: %s", u)
	}
}
