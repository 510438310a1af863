// Package chat orchestrates one conversational turn: credential resolution,
// history assembly, upstream streaming, and transcript persistence.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/parley-chat/parley/internal/agent"
	"github.com/parley-chat/parley/internal/conversation"
	"github.com/parley-chat/parley/internal/credential"
)

var (
	// ErrEmptyMessage indicates a blank user message.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrCredentialMissing indicates the user has no API key stored for the
	// conversation's provider.
	ErrCredentialMissing = errors.New("no credential for provider")

	// ErrConversationBusy indicates another turn is already running on the
	// conversation.
	ErrConversationBusy = errors.New("conversation busy")

	// ErrUpstream indicates the provider stream failed after the turn
	// started. The partial transcript is already persisted when this is
	// returned.
	ErrUpstream = errors.New("upstream stream failed")

	// errChunkTimeout cancels a stream that stalls between chunks.
	errChunkTimeout = errors.New("stream stalled between chunks")

	// errClientGone cancels a stream whose consumer stopped accepting chunks.
	errClientGone = errors.New("chunk consumer failed")
)

// ConversationStore is the transcript persistence the orchestrator needs.
type ConversationStore interface {
	Get(ctx context.Context, userID, id int64) (*conversation.Conversation, error)
	AppendMessage(ctx context.Context, conversationID int64, role conversation.Role, content string) (*conversation.Message, error)
	RecentHistory(ctx context.Context, conversationID int64, n int) ([]conversation.Message, error)
}

// CredentialStore resolves the user's sealed API key for a provider.
type CredentialStore interface {
	Get(ctx context.Context, userID int64, provider agent.Provider) (*credential.Credential, error)
}

// Vault opens sealed key material.
type Vault interface {
	Open(token string) (string, error)
}

// Resolver maps a conversation's (strategy, provider) to a ready agent client.
type Resolver func(strategy string, provider agent.Provider, apiKey, model string) (agent.Client, error)

// TurnLocker serializes turns per conversation. TryLock returns a release
// func and whether the lock was free.
type TurnLocker interface {
	TryLock(ctx context.Context, conversationID int64) (release func(), ok bool, err error)
}

// Options tune the orchestrator's windows and timeouts.
type Options struct {
	// HistoryWindow is how many prior messages are replayed to the agent.
	HistoryWindow int

	// ChunkTimeout bounds the silence between consecutive chunks.
	ChunkTimeout time.Duration

	// TurnTimeout bounds the whole upstream call.
	TurnTimeout time.Duration
}

// Result reports what a turn persisted.
type Result struct {
	UserMessage      *conversation.Message
	AssistantMessage *conversation.Message

	// Failed is set when the stream broke mid-turn. The assistant message
	// then holds the partial output plus a failure marker.
	Failed bool

	// FailureKind is a short machine-readable tag ("timeout", "canceled",
	// "upstream_error") describing why the stream broke.
	FailureKind string
}

// Orchestrator runs chat turns. It is safe for concurrent use.
type Orchestrator struct {
	conversations ConversationStore
	credentials   CredentialStore
	vault         Vault
	resolve       Resolver
	locker        TurnLocker
	logger        *slog.Logger
	opts          Options
}

// NewOrchestrator wires an Orchestrator. All collaborators are required.
func NewOrchestrator(conversations ConversationStore, credentials CredentialStore,
	vault Vault, resolve Resolver, locker TurnLocker, logger *slog.Logger, opts Options) (*Orchestrator, error) {
	if conversations == nil || credentials == nil || vault == nil || resolve == nil || locker == nil {
		return nil, fmt.Errorf("all collaborators are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 20
	}
	if opts.ChunkTimeout <= 0 {
		opts.ChunkTimeout = 60 * time.Second
	}
	if opts.TurnTimeout <= 0 {
		opts.TurnTimeout = 5 * time.Minute
	}
	return &Orchestrator{
		conversations: conversations,
		credentials:   credentials,
		vault:         vault,
		resolve:       resolve,
		locker:        locker,
		logger:        logger,
		opts:          opts,
	}, nil
}

// Turn runs one chat turn. Each streamed chunk is handed to onChunk before
// the next is requested; a nil onChunk collects silently (blocking mode).
//
// The user message is persisted before the upstream call, so it survives any
// later failure. Exactly one assistant message is persisted per turn that
// reaches the upstream: the full reply on success, the partial output plus a
// failure marker otherwise. On failure the returned error wraps ErrUpstream
// and the Result still carries both persisted messages.
func (o *Orchestrator) Turn(ctx context.Context, userID, conversationID int64, content string, onChunk func(string) error) (*Result, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}

	conv, err := o.conversations.Get(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	release, ok, err := o.locker.TryLock(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("locking conversation: %w", err)
	}
	if !ok {
		return nil, ErrConversationBusy
	}
	defer release()

	cred, err := o.credentials.Get(ctx, userID, conv.Provider)
	if errors.Is(err, credential.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrCredentialMissing, conv.Provider)
	}
	if err != nil {
		return nil, err
	}

	apiKey, err := o.vault.Open(cred.EncryptedKey)
	if err != nil {
		return nil, fmt.Errorf("opening credential: %w", err)
	}

	history, err := o.conversations.RecentHistory(ctx, conv.ID, o.opts.HistoryWindow)
	if err != nil {
		return nil, err
	}

	userMsg, err := o.conversations.AppendMessage(ctx, conv.ID, conversation.RoleUser, content)
	if err != nil {
		return nil, err
	}
	result := &Result{UserMessage: userMsg}

	client, err := o.resolve(conv.AgentStrategy, conv.Provider, apiKey, "")
	if err != nil {
		return result, fmt.Errorf("resolving agent: %w", err)
	}

	reply, streamErr := o.consume(ctx, client, content, conversation.History(history), onChunk)

	if streamErr != nil {
		kind := failureKind(streamErr)
		o.logger.Warn("chat turn failed mid-stream",
			"conversation_id", conv.ID, "kind", kind, "error", streamErr)

		// Persist even when the request context is gone; the partial
		// output belongs in the transcript.
		persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()

		marker := fmt.Sprintf("[Error: %s]", kind)
		if reply != "" {
			marker = reply + "\n" + marker
		}
		assistantMsg, persistErr := o.conversations.AppendMessage(persistCtx, conv.ID, conversation.RoleAssistant, marker)
		if persistErr != nil {
			o.logger.Error("persisting failed turn", "conversation_id", conv.ID, "error", persistErr)
			return result, fmt.Errorf("%w: %s", ErrUpstream, kind)
		}
		result.AssistantMessage = assistantMsg
		result.Failed = true
		result.FailureKind = kind
		return result, fmt.Errorf("%w: %s", ErrUpstream, kind)
	}

	assistantMsg, err := o.conversations.AppendMessage(ctx, conv.ID, conversation.RoleAssistant, reply)
	if err != nil {
		return result, err
	}
	result.AssistantMessage = assistantMsg

	o.logger.Info("chat turn completed",
		"conversation_id", conv.ID, "strategy", conv.AgentStrategy, "reply_len", len(reply))
	return result, nil
}

// consume drains the agent stream exactly once, accumulating the reply and
// forwarding each chunk. A watchdog cancels the stream if the gap between
// chunks exceeds ChunkTimeout; TurnTimeout bounds the whole call.
func (o *Orchestrator) consume(ctx context.Context, client agent.Client, content string,
	history []agent.Message, onChunk func(string) error) (string, error) {
	turnCtx, cancelTurn := context.WithTimeout(ctx, o.opts.TurnTimeout)
	defer cancelTurn()

	streamCtx, cancel := context.WithCancelCause(turnCtx)
	defer cancel(nil)

	watchdog := time.AfterFunc(o.opts.ChunkTimeout, func() {
		cancel(errChunkTimeout)
	})
	defer watchdog.Stop()

	var reply strings.Builder
	var streamErr error
	for chunk, err := range client.StreamChat(streamCtx, content, history) {
		if err != nil {
			streamErr = err
			break
		}
		watchdog.Reset(o.opts.ChunkTimeout)
		reply.WriteString(chunk)
		if onChunk != nil {
			if err := onChunk(chunk); err != nil {
				streamErr = fmt.Errorf("%w: %w", errClientGone, err)
				cancel(streamErr)
				break
			}
		}
	}

	// Prefer the cancellation cause: the SDK surfaces our watchdog or
	// turn timeout as a generic context error.
	if streamErr != nil {
		if cause := context.Cause(streamCtx); cause != nil && !errors.Is(cause, context.Canceled) {
			streamErr = cause
		}
	}
	return reply.String(), streamErr
}

// failureKind collapses a stream error into a short stable tag. Provider
// response text never leaks into it.
func failureKind(err error) string {
	switch {
	case errors.Is(err, errChunkTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, errClientGone), errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "upstream_error"
	}
}
