package user

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parley-chat/parley/internal/log"
)

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connecting to test database: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func uniqueEmail() string {
	return fmt.Sprintf("it-%d@example.com", time.Now().UnixNano())
}

func TestStoreLifecycle_Integration(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()

	store, err := NewStore(pool, log.NewNop())
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}

	email := uniqueEmail()
	created, err := store.Create(ctx, email, "Integration Test", "hash")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM users WHERE id = $1`, created.ID)
	})

	byEmail, err := store.ByEmail(ctx, email)
	if err != nil {
		t.Fatalf("ByEmail() error: %v", err)
	}
	if byEmail.ID != created.ID {
		t.Errorf("ByEmail() id = %d, want %d", byEmail.ID, created.ID)
	}

	byID, err := store.ByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("ByID() error: %v", err)
	}
	if byID.Email != email {
		t.Errorf("ByID() email = %q, want %q", byID.Email, email)
	}

	if _, err := store.Create(ctx, email, "Duplicate", "hash"); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("Create() with duplicate email error = %v, want ErrEmailTaken", err)
	}
}

func TestStoreEmailLowercased_Integration(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()

	store, err := NewStore(pool, log.NewNop())
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}

	email := uniqueEmail()
	upper := "IT-" + email[3:]
	created, err := store.Create(ctx, upper, "Mixed Case", "hash")
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM users WHERE id = $1`, created.ID)
	})

	if created.Email != email {
		t.Errorf("stored email = %q, want lowercased %q", created.Email, email)
	}
	if _, err := store.ByEmail(ctx, upper); err != nil {
		t.Errorf("ByEmail() with mixed case error = %v", err)
	}
}

func TestStoreByIDMissing_Integration(t *testing.T) {
	pool := testPool(t)

	store, err := NewStore(pool, log.NewNop())
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}

	if _, err := store.ByID(context.Background(), -1); !errors.Is(err, ErrNotFound) {
		t.Errorf("ByID(-1) error = %v, want ErrNotFound", err)
	}
}
