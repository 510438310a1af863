// Package agent abstracts the upstream AI providers behind a single
// streaming chat interface.
//
// A Client wraps one (strategy, provider) combination: a direct streamed
// completion call against OpenAI or Anthropic, or a bounded agent loop over
// either provider. Callers obtain a Client from Resolve and consume its chunk
// sequence exactly once.
package agent

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
)

// Provider identifies an upstream AI provider.
type Provider string

const (
	// ProviderOpenAI selects the OpenAI chat completion API.
	ProviderOpenAI Provider = "openai"

	// ProviderAnthropic selects the Anthropic messages API.
	ProviderAnthropic Provider = "anthropic"
)

// ErrUnsupportedProvider indicates a provider tag this system does not recognize.
var ErrUnsupportedProvider = errors.New("unsupported provider")

// ParseProvider validates and canonicalizes a provider tag.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(s))); p {
	case ProviderOpenAI, ProviderAnthropic:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedProvider, s)
	}
}

// Message role constants in the provider-neutral history shape.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one prior turn in the provider-neutral history shape.
type Message struct {
	Role    string
	Content string
}

// Client is the polymorphic capability contract over a provider's streaming
// chat completion call.
//
// StreamChat returns a lazy, finite, non-restartable sequence of text chunks.
// The sequence must be consumed at most once; abandoning it mid-iteration
// releases the upstream connection. A non-nil error terminates the sequence
// and no further chunks follow it.
type Client interface {
	StreamChat(ctx context.Context, userMessage string, history []Message) iter.Seq2[string, error]
}
