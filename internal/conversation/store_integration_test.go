package conversation

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parley-chat/parley/internal/agent"
	"github.com/parley-chat/parley/internal/log"
)

// testPool connects to the database named by TEST_DATABASE_URL, skipping the
// test when it is unset. The schema must already be migrated.
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

func testUser(t *testing.T, pool *pgxpool.Pool) int64 {
	t.Helper()

	var id int64
	err := pool.QueryRow(context.Background(),
		`INSERT INTO users (email, name, password_hash) VALUES ($1, $2, $3) RETURNING id`,
		fmt.Sprintf("it-%d@example.com", time.Now().UnixNano()), "Integration Test", "x",
	).Scan(&id)
	if err != nil {
		t.Fatalf("creating test user: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM users WHERE id = $1`, id)
	})
	return id
}

func TestStoreTurnLifecycle_Integration(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()

	store, err := NewStore(pool, log.NewNop())
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	userID := testUser(t, pool)

	conv, err := store.Create(ctx, userID, nil, "openai_direct", agent.ProviderOpenAI)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if conv.Title != nil {
		t.Errorf("new conversation title = %v, want nil", *conv.Title)
	}

	before := conv.UpdatedAt

	if _, err := store.AppendMessage(ctx, conv.ID, RoleUser, "first"); err != nil {
		t.Fatalf("AppendMessage(user) error: %v", err)
	}
	if _, err := store.AppendMessage(ctx, conv.ID, RoleAssistant, "second"); err != nil {
		t.Fatalf("AppendMessage(assistant) error: %v", err)
	}

	got, msgs, err := store.GetWithMessages(ctx, userID, conv.ID)
	if err != nil {
		t.Fatalf("GetWithMessages() error: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("message count = %d, want 2", len(msgs))
	}
	if msgs[0].Content != "first" || msgs[1].Content != "second" {
		t.Errorf("messages out of order: %q then %q", msgs[0].Content, msgs[1].Content)
	}
	if !got.UpdatedAt.After(before) {
		t.Error("AppendMessage did not bump updated_at")
	}

	history, err := store.RecentHistory(ctx, conv.ID, 1)
	if err != nil {
		t.Fatalf("RecentHistory() error: %v", err)
	}
	if len(history) != 1 || history[0].Content != "second" {
		t.Errorf("RecentHistory(1) = %v, want the latest message", history)
	}
}

func TestRecentHistoryWindow_Integration(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()

	store, err := NewStore(pool, log.NewNop())
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	userID := testUser(t, pool)

	conv, err := store.Create(ctx, userID, nil, "agent", agent.ProviderOpenAI)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	for i := 1; i <= 25; i++ {
		role := RoleUser
		if i%2 == 0 {
			role = RoleAssistant
		}
		if _, err := store.AppendMessage(ctx, conv.ID, role, fmt.Sprintf("msg-%d", i)); err != nil {
			t.Fatalf("AppendMessage(%d) error: %v", i, err)
		}
	}

	history, err := store.RecentHistory(ctx, conv.ID, 20)
	if err != nil {
		t.Fatalf("RecentHistory() error: %v", err)
	}
	if len(history) != 20 {
		t.Fatalf("history length = %d, want exactly 20", len(history))
	}
	// The 5 oldest messages fall off; the remainder is oldest-first.
	for i, m := range history {
		if want := fmt.Sprintf("msg-%d", i+6); m.Content != want {
			t.Fatalf("history[%d] = %q, want %q", i, m.Content, want)
		}
	}
}

func TestStoreOwnership_Integration(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()

	store, err := NewStore(pool, log.NewNop())
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	owner := testUser(t, pool)
	stranger := testUser(t, pool)

	conv, err := store.Create(ctx, owner, nil, "agent", agent.ProviderAnthropic)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if _, err := store.Get(ctx, stranger, conv.ID); err != ErrNotFound {
		t.Errorf("Get() as stranger error = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, stranger, conv.ID); err != ErrNotFound {
		t.Errorf("Delete() as stranger error = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, owner, conv.ID); err != nil {
		t.Errorf("Delete() as owner error = %v", err)
	}
}

// Held turn locks pin connections, so the locker runs on its own pool. With
// that pool fully pinned, store queries on the shared pool must still go
// through.
func TestTurnLockerDedicatedPool_Integration(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()

	cfg, err := pgxpool.ParseConfig(os.Getenv("TEST_DATABASE_URL"))
	if err != nil {
		t.Fatalf("parsing lock pool config: %v", err)
	}
	cfg.MaxConns = 2
	lockPool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("creating lock pool: %v", err)
	}
	t.Cleanup(lockPool.Close)

	locker, err := NewTurnLocker(lockPool)
	if err != nil {
		t.Fatalf("NewTurnLocker() error: %v", err)
	}

	store, err := NewStore(pool, log.NewNop())
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	userID := testUser(t, pool)
	conv, err := store.Create(ctx, userID, nil, "agent", agent.ProviderOpenAI)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	first, ok, err := locker.TryLock(ctx, conv.ID)
	if err != nil || !ok {
		t.Fatalf("TryLock(first) = %v, %v", ok, err)
	}
	defer first.Release()
	second, ok, err := locker.TryLock(ctx, conv.ID+1)
	if err != nil || !ok {
		t.Fatalf("TryLock(second) = %v, %v", ok, err)
	}
	defer second.Release()

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := store.AppendMessage(writeCtx, conv.ID, RoleUser, "still writable"); err != nil {
		t.Fatalf("AppendMessage() with saturated lock pool error: %v", err)
	}
}

func TestTurnLockerContention_Integration(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()

	locker, err := NewTurnLocker(pool)
	if err != nil {
		t.Fatalf("NewTurnLocker() error: %v", err)
	}

	lock, ok, err := locker.TryLock(ctx, 12345)
	if err != nil {
		t.Fatalf("TryLock() error: %v", err)
	}
	if !ok {
		t.Fatal("TryLock() on free lock returned false")
	}

	_, ok, err = locker.TryLock(ctx, 12345)
	if err != nil {
		t.Fatalf("second TryLock() error: %v", err)
	}
	if ok {
		t.Error("TryLock() on held lock returned true")
	}

	other, ok, err := locker.TryLock(ctx, 54321)
	if err != nil {
		t.Fatalf("TryLock() on other key error: %v", err)
	}
	if !ok {
		t.Error("TryLock() on distinct conversation blocked")
	} else {
		other.Release()
	}

	lock.Release()

	relock, ok, err := locker.TryLock(ctx, 12345)
	if err != nil {
		t.Fatalf("TryLock() after release error: %v", err)
	}
	if !ok {
		t.Error("TryLock() after release returned false")
	}
	relock.Release()
}
