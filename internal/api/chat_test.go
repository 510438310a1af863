package api

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/parley-chat/parley/internal/agent"
	"github.com/parley-chat/parley/internal/chat"
	"github.com/parley-chat/parley/internal/conversation"
	"github.com/parley-chat/parley/internal/vault"
)

func TestSendMessage(t *testing.T) {
	t.Parallel()

	t.Run("returns the assistant reply", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		_, token := f.signup(t, "alice@example.com")
		f.turns.result = &chat.Result{
			UserMessage:      &conversation.Message{ID: 1, Role: conversation.RoleUser, Content: "hi"},
			AssistantMessage: &conversation.Message{ID: 2, Role: conversation.RoleAssistant, Content: "hello there"},
		}

		rec := f.do(t, http.MethodPost, "/api/v1/conversations/7/messages", token, map[string]string{
			"content": "hi",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
		}
		if f.turns.gotConversationID != 7 {
			t.Fatalf("conversation id = %d, want 7", f.turns.gotConversationID)
		}
		if f.turns.gotContent != "hi" {
			t.Fatalf("content = %q, want hi", f.turns.gotContent)
		}

		var body struct {
			Message   string `json:"message"`
			MessageID int64  `json:"message_id"`
		}
		decode(t, rec, &body)
		if body.Message != "hello there" {
			t.Fatalf("message = %q, want hello there", body.Message)
		}
		if body.MessageID != 2 {
			t.Fatalf("message_id = %d, want 2", body.MessageID)
		}
	})

	t.Run("error mapping", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name       string
			err        error
			wantStatus int
			wantCode   string
		}{
			{"empty message", chat.ErrEmptyMessage, http.StatusUnprocessableEntity, "empty_message"},
			{"unknown conversation", conversation.ErrNotFound, http.StatusNotFound, "not_found"},
			{"busy conversation", chat.ErrConversationBusy, http.StatusConflict, "conversation_busy"},
			{"missing credential", chat.ErrCredentialMissing, http.StatusBadRequest, "credential_missing"},
			{
				"undecryptable credential",
				fmt.Errorf("opening credential: %w", vault.ErrInvalidToken),
				http.StatusBadRequest,
				"credential_invalid",
			},
			{
				"unknown strategy at turn time",
				fmt.Errorf("resolving agent: %w", agent.ErrUnsupportedStrategy),
				http.StatusUnprocessableEntity,
				"invalid_strategy",
			},
			{
				"mismatched strategy at turn time",
				fmt.Errorf("resolving agent: %w", agent.ErrProviderMismatch),
				http.StatusUnprocessableEntity,
				"invalid_strategy",
			},
			{"upstream failure", chat.ErrUpstream, http.StatusBadGateway, "upstream_error"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()

				f := newFixture(t)
				_, token := f.signup(t, "alice@example.com")
				f.turns.err = tt.err

				rec := f.do(t, http.MethodPost, "/api/v1/conversations/7/messages", token, map[string]string{
					"content": "hi",
				})
				if rec.Code != tt.wantStatus {
					t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
				}
				if got := errorCode(t, rec); got != tt.wantCode {
					t.Fatalf("error code = %q, want %q", got, tt.wantCode)
				}
			})
		}
	})
}

func TestStreamMessage(t *testing.T) {
	t.Parallel()

	t.Run("streams chunks and terminates with DONE", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		_, token := f.signup(t, "alice@example.com")
		f.turns.chunks = []string{"Hel", "lo ", "world"}
		f.turns.result = &chat.Result{
			AssistantMessage: &conversation.Message{ID: 2, Content: "Hello world"},
		}

		rec := f.do(t, http.MethodPost, "/api/v1/conversations/7/stream", token, map[string]string{
			"content": "hi",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
		}
		if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
			t.Fatalf("Content-Type = %q, want text/event-stream", ct)
		}

		want := "data: Hel\n\n" +
			"data: lo \n\n" +
			"data: world\n\n" +
			"data: [DONE]\n\n"
		if got := rec.Body.String(); got != want {
			t.Fatalf("body = %q, want %q", got, want)
		}
	})

	t.Run("empty reply still terminates the stream", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		_, token := f.signup(t, "alice@example.com")
		f.turns.result = &chat.Result{}

		rec := f.do(t, http.MethodPost, "/api/v1/conversations/7/stream", token, map[string]string{
			"content": "hi",
		})
		if got := rec.Body.String(); got != "data: [DONE]\n\n" {
			t.Fatalf("body = %q, want a lone DONE frame", got)
		}
	})

	t.Run("upstream failure becomes a typed error event", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		_, token := f.signup(t, "alice@example.com")
		f.turns.chunks = []string{"partial "}
		f.turns.result = &chat.Result{Failed: true, FailureKind: "timeout"}
		f.turns.err = fmt.Errorf("stream broke: %w", chat.ErrUpstream)

		rec := f.do(t, http.MethodPost, "/api/v1/conversations/7/stream", token, map[string]string{
			"content": "hi",
		})

		body := rec.Body.String()
		wantPrefix := "data: partial \n\n"
		if len(body) < len(wantPrefix) || body[:len(wantPrefix)] != wantPrefix {
			t.Fatalf("body %q does not start with the partial chunk", body)
		}
		rest := body[len(wantPrefix):]
		wantEvent := "event: error\ndata: {\"code\":\"timeout\",\"message\":\"chat turn failed\"}\n\n"
		if rest != wantEvent {
			t.Fatalf("terminal frame = %q, want %q", rest, wantEvent)
		}
	})

	t.Run("pre-stream failures stay plain HTTP", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		_, token := f.signup(t, "alice@example.com")
		f.turns.err = conversation.ErrNotFound

		rec := f.do(t, http.MethodPost, "/api/v1/conversations/7/stream", token, map[string]string{
			"content": "hi",
		})
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404: %s", rec.Code, rec.Body.String())
		}
		if ct := rec.Header().Get("Content-Type"); ct == "text/event-stream" {
			t.Fatal("failure before the first chunk must not open an event stream")
		}
	})

	t.Run("requires authentication", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		rec := f.do(t, http.MethodPost, "/api/v1/conversations/7/stream", "", map[string]string{
			"content": "hi",
		})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
	})
}
