package agent

import (
	"context"
	"fmt"
	"iter"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicMaxTokens = 4096

// anthropicClient streams messages from the Anthropic API.
type anthropicClient struct {
	client anthropic.Client
	model  string
}

func newAnthropicClient(apiKey, model string) *anthropicClient {
	return &anthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// StreamChat sends the history plus the new user message and yields text
// deltas as they arrive. The Anthropic API takes system prompts out of band,
// so system turns are lifted into the request's System field and only user
// and assistant turns remain in the message list.
func (c *anthropicClient) StreamChat(ctx context.Context, userMessage string, history []Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		var system []anthropic.TextBlockParam
		messages := make([]anthropic.MessageParam, 0, len(history)+1)
		for _, m := range history {
			switch m.Role {
			case RoleAssistant:
				messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
			case RoleSystem:
				system = append(system, anthropic.TextBlockParam{Text: m.Content})
			default:
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
			}
		}
		messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(userMessage)))

		stream := c.client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(c.model),
			MaxTokens: anthropicMaxTokens,
			System:    system,
			Messages:  messages,
		})
		defer stream.Close()

		for stream.Next() {
			event := stream.Current()
			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				switch delta := ev.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if delta.Text == "" {
						continue
					}
					if !yield(delta.Text, nil) {
						return
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield("", fmt.Errorf("anthropic stream: %w", err))
		}
	}
}
