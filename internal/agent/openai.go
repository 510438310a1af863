package agent

import (
	"context"
	"fmt"
	"iter"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// openAIClient streams chat completions from the OpenAI API.
type openAIClient struct {
	client openai.Client
	model  string
}

func newOpenAIClient(apiKey, model string) *openAIClient {
	return &openAIClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// StreamChat sends the history plus the new user message and yields content
// deltas as they arrive. The system role is forwarded as-is since the OpenAI
// API accepts system messages inline.
func (c *openAIClient) StreamChat(ctx context.Context, userMessage string, history []Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
		for _, m := range history {
			switch m.Role {
			case RoleAssistant:
				messages = append(messages, openai.AssistantMessage(m.Content))
			case RoleSystem:
				messages = append(messages, openai.SystemMessage(m.Content))
			default:
				messages = append(messages, openai.UserMessage(m.Content))
			}
		}
		messages = append(messages, openai.UserMessage(userMessage))

		stream := c.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
			Model:    c.model,
			Messages: messages,
		})
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			if !yield(delta, nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			yield("", fmt.Errorf("openai stream: %w", err))
		}
	}
}
