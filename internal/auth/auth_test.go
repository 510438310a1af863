package auth

import (
	"errors"
	"testing"
	"time"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestNewIssuerValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewIssuer(nil, time.Hour); err == nil {
		t.Error("NewIssuer(nil secret) returned nil error")
	}
	if _, err := NewIssuer(testSecret, 0); err == nil {
		t.Error("NewIssuer(zero expiry) returned nil error")
	}
	if _, err := NewIssuer(testSecret, time.Hour); err != nil {
		t.Errorf("NewIssuer() with valid inputs: %v", err)
	}
}

func TestIssueAndVerify(t *testing.T) {
	t.Parallel()

	issuer, err := NewIssuer(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer() error: %v", err)
	}

	const userID int64 = 42
	token, err := issuer.Issue(userID)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	got, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if got != userID {
		t.Errorf("Verify() subject = %d, want %d", got, userID)
	}
}

func TestVerifyRejections(t *testing.T) {
	t.Parallel()

	issuer, err := NewIssuer(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer() error: %v", err)
	}
	other, err := NewIssuer([]byte("another-secret-another-secret-ab"), time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer() error: %v", err)
	}
	expired, err := NewIssuer(testSecret, time.Nanosecond)
	if err != nil {
		t.Fatalf("NewIssuer() error: %v", err)
	}

	const userID int64 = 42
	foreign, err := other.Issue(userID)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	stale, err := expired.Issue(userID)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "garbage", token: "not.a.token"},
		{name: "wrong secret", token: foreign},
		{name: "expired", token: stale},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := issuer.Verify(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify(%s) error = %v, want ErrInvalidToken", tt.name, err)
			}
		})
	}
}
