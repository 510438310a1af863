package agent

import (
	"context"
	"iter"
)

// loopSystemPrompt primes the model for the agent strategy.
const loopSystemPrompt = "You are a helpful assistant. Answer the user directly and completely."

// loopClient runs the agent strategy over an underlying provider client. The
// strategy prepends an agent system prompt and streams the completion. Tool
// dispatch hangs off this type later; with no tools attached one streamed
// completion finishes the turn.
type loopClient struct {
	model Client
}

func newLoopClient(model Client) *loopClient {
	return &loopClient{model: model}
}

func (c *loopClient) StreamChat(ctx context.Context, userMessage string, history []Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		turn := make([]Message, 0, len(history)+1)
		turn = append(turn, Message{Role: RoleSystem, Content: loopSystemPrompt})
		turn = append(turn, history...)

		for chunk, err := range c.model.StreamChat(ctx, userMessage, turn) {
			if !yield(chunk, err) {
				return
			}
			if err != nil {
				return
			}
		}
	}
}
