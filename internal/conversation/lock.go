package conversation

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TurnLocker serializes turns within a conversation using PostgreSQL session
// advisory locks. The lock key is derived from the conversation ID, so two
// concurrent turns on the same thread contend while turns on different
// threads do not.
//
// Each held lock pins one pool connection until Release, for the full length
// of a streamed turn. Give the locker its own pool (database.ConnectLockPool)
// rather than the store pool, or held locks block the transcript writes that
// finish the very turns holding them.
type TurnLocker struct {
	pool *pgxpool.Pool
}

// NewTurnLocker creates a TurnLocker over the given pool. The pool size caps
// the number of concurrently held turn locks.
func NewTurnLocker(pool *pgxpool.Pool) (*TurnLocker, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &TurnLocker{pool: pool}, nil
}

// TurnLock holds a session advisory lock on one conversation. The lock pins
// a pool connection until Release.
type TurnLock struct {
	conn           *pgxpool.Conn
	conversationID int64
}

// TryLock attempts to take the turn lock without waiting. It returns
// (nil, false, nil) when another turn already holds it.
func (l *TurnLocker) TryLock(ctx context.Context, conversationID int64) (*TurnLock, bool, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquiring lock connection: %w", err)
	}

	var locked bool
	err = conn.QueryRow(ctx,
		`SELECT pg_try_advisory_lock(hashtextextended('chat_turn:' || $1::text, 0))`,
		conversationID,
	).Scan(&locked)
	if err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("taking turn lock: %w", err)
	}
	if !locked {
		conn.Release()
		return nil, false, nil
	}
	return &TurnLock{conn: conn, conversationID: conversationID}, true, nil
}

// Release drops the advisory lock and returns the connection to the pool.
// Safe to call once; the background context keeps unlock working even after
// the request context is cancelled.
func (t *TurnLock) Release() {
	if t.conn == nil {
		return
	}
	_, _ = t.conn.Exec(context.Background(),
		`SELECT pg_advisory_unlock(hashtextextended('chat_turn:' || $1::text, 0))`,
		t.conversationID,
	)
	t.conn.Release()
	t.conn = nil
}
