package api

import (
	"net/http"
	"strings"
	"testing"
)

func TestSetAPIKey(t *testing.T) {
	t.Parallel()

	t.Run("stores sealed key", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		userID, token := f.signup(t, "alice@example.com")

		rec := f.do(t, http.MethodPost, "/api/v1/api-keys", token, map[string]string{
			"provider": "openai",
			"api_key":  "sk-plaintext",
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
		}

		stored := f.credentials.creds[userID]["openai"]
		if stored == nil {
			t.Fatal("credential was not stored")
		}
		if stored.EncryptedKey != "sealed:sk-plaintext" {
			t.Fatalf("stored key = %q, want the sealed form", stored.EncryptedKey)
		}
		if strings.Contains(rec.Body.String(), "sk-plaintext") {
			t.Fatal("response must not echo key material")
		}
		if strings.Contains(rec.Body.String(), "sealed:") {
			t.Fatal("response must not expose the ciphertext either")
		}
	})

	t.Run("replaces an existing key", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		userID, token := f.signup(t, "alice@example.com")

		for _, key := range []string{"sk-first", "sk-second"} {
			rec := f.do(t, http.MethodPost, "/api/v1/api-keys", token, map[string]string{
				"provider": "anthropic",
				"api_key":  key,
			})
			if rec.Code != http.StatusCreated {
				t.Fatalf("status = %d, want 201", rec.Code)
			}
		}

		stored := f.credentials.creds[userID]["anthropic"]
		if stored.EncryptedKey != "sealed:sk-second" {
			t.Fatalf("stored key = %q, want the replacement", stored.EncryptedKey)
		}
	})

	t.Run("rejects bad input", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name     string
			body     map[string]string
			wantCode string
		}{
			{
				name:     "unknown provider",
				body:     map[string]string{"provider": "cohere", "api_key": "sk-x"},
				wantCode: "invalid_provider",
			},
			{
				name:     "blank key",
				body:     map[string]string{"provider": "openai", "api_key": "   "},
				wantCode: "invalid_key",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()

				f := newFixture(t)
				_, token := f.signup(t, "alice@example.com")

				rec := f.do(t, http.MethodPost, "/api/v1/api-keys", token, tt.body)
				if rec.Code != http.StatusUnprocessableEntity {
					t.Fatalf("status = %d, want 422", rec.Code)
				}
				if got := errorCode(t, rec); got != tt.wantCode {
					t.Fatalf("error code = %q, want %q", got, tt.wantCode)
				}
			})
		}
	})
}

func TestListAPIKeys(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, token := f.signup(t, "alice@example.com")

	rec := f.do(t, http.MethodPost, "/api/v1/api-keys", token, map[string]string{
		"provider": "openai",
		"api_key":  "sk-plaintext",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("set: status = %d, want 201", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/api-keys", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var list []struct {
		Provider string `json:"provider"`
	}
	decode(t, rec, &list)
	if len(list) != 1 || list[0].Provider != "openai" {
		t.Fatalf("list = %+v, want one openai entry", list)
	}
	if strings.Contains(rec.Body.String(), "sealed:") {
		t.Fatal("list must carry metadata only, never key material")
	}
}

func TestDeleteAPIKey(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	userID, token := f.signup(t, "alice@example.com")

	if _, err := f.credentials.Set(t.Context(), userID, "openai", "sealed:sk-x"); err != nil {
		t.Fatalf("seeding credential: %v", err)
	}

	rec := f.do(t, http.MethodDelete, "/api/v1/api-keys/openai", token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}

	rec = f.do(t, http.MethodDelete, "/api/v1/api-keys/openai", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: status = %d, want 404", rec.Code)
	}
}
