package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parley-chat/parley/internal/agent"
)

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const conversationCols = `id, user_id, title, agent_strategy, provider, created_at, updated_at`

const messageCols = `id, conversation_id, role, content, created_at`

// Store persists conversations and messages in PostgreSQL.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a conversation Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Create opens a new conversation for the user.
func (s *Store) Create(ctx context.Context, userID int64, title *string, strategy string, provider agent.Provider) (*Conversation, error) {
	var c Conversation
	err := s.pool.QueryRow(ctx,
		`INSERT INTO conversations (user_id, title, agent_strategy, provider)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+conversationCols,
		userID, title, strategy, provider,
	).Scan(&c.ID, &c.UserID, &c.Title, &c.AgentStrategy, &c.Provider, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}

	s.logger.Info("conversation created", "conversation_id", c.ID, "user_id", userID, "strategy", strategy)
	return &c, nil
}

// ListByUser returns the user's conversations ordered by most recent
// activity, with a message count per thread. skip and limit page the result.
func (s *Store) ListByUser(ctx context.Context, userID int64, skip, limit int) ([]Conversation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.id, c.user_id, c.title, c.agent_strategy, c.provider,
		        c.created_at, c.updated_at, count(m.id) AS message_count
		 FROM conversations c
		 LEFT JOIN messages m ON m.conversation_id = c.id
		 WHERE c.user_id = $1
		 GROUP BY c.id
		 ORDER BY c.updated_at DESC
		 OFFSET $2 LIMIT $3`,
		userID, skip, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.AgentStrategy, &c.Provider,
			&c.CreatedAt, &c.UpdatedAt, &c.MessageCount); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}
	return convs, nil
}

// Get fetches one conversation owned by the user.
func (s *Store) Get(ctx context.Context, userID, id int64) (*Conversation, error) {
	return getConversation(ctx, s.pool, userID, id)
}

func getConversation(ctx context.Context, q querier, userID, id int64) (*Conversation, error) {
	var c Conversation
	err := q.QueryRow(ctx,
		`SELECT `+conversationCols+` FROM conversations WHERE id = $1 AND user_id = $2`,
		id, userID,
	).Scan(&c.ID, &c.UserID, &c.Title, &c.AgentStrategy, &c.Provider, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching conversation: %w", err)
	}
	return &c, nil
}

// GetWithMessages fetches a conversation and its full transcript in order.
func (s *Store) GetWithMessages(ctx context.Context, userID, id int64) (*Conversation, []Message, error) {
	c, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+messageCols+` FROM messages
		 WHERE conversation_id = $1
		 ORDER BY created_at, id`,
		id,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching messages: %w", err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, nil, err
	}
	return c, msgs, nil
}

// UpdateTitle renames a conversation owned by the user.
func (s *Store) UpdateTitle(ctx context.Context, userID, id int64, title string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversations SET title = $1, updated_at = now()
		 WHERE id = $2 AND user_id = $3`,
		title, id, userID,
	)
	if err != nil {
		return fmt.Errorf("updating title: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a conversation owned by the user. Messages cascade.
func (s *Store) Delete(ctx context.Context, userID, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM conversations WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	s.logger.Info("conversation deleted", "conversation_id", id, "user_id", userID)
	return nil
}

// AppendMessage records one turn and bumps the conversation's updated_at so
// recency ordering reflects new messages, not just metadata edits. Both
// writes commit atomically.
func (s *Store) AppendMessage(ctx context.Context, conversationID int64, role Role, content string) (*Message, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning append: %w", err)
	}
	defer tx.Rollback(ctx)

	var m Message
	err = tx.QueryRow(ctx,
		`INSERT INTO messages (conversation_id, role, content)
		 VALUES ($1, $2, $3)
		 RETURNING `+messageCols,
		conversationID, role, content,
	).Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE conversations SET updated_at = now() WHERE id = $1`,
		conversationID,
	); err != nil {
		return nil, fmt.Errorf("touching conversation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing append: %w", err)
	}
	return &m, nil
}

// RecentHistory returns the last n messages of the conversation in
// chronological order.
func (s *Store) RecentHistory(ctx context.Context, conversationID int64, n int) ([]Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+messageCols+` FROM messages
		 WHERE conversation_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		conversationID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("fetching history: %w", err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}

func scanMessages(rows pgx.Rows) ([]Message, error) {
	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return msgs, nil
}
