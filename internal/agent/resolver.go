package agent

import (
	"errors"
	"fmt"
)

// Strategy tags accepted by Resolve.
const (
	StrategyAgent           = "agent"
	StrategyOpenAIDirect    = "openai_direct"
	StrategyAnthropicDirect = "anthropic_direct"
)

// Default models used when the caller does not override.
const (
	DefaultOpenAIModel    = "gpt-4-turbo-preview"
	DefaultAnthropicModel = "claude-3-5-sonnet-20241022"
)

var (
	// ErrUnsupportedStrategy indicates an unrecognized strategy tag.
	ErrUnsupportedStrategy = errors.New("unsupported agent strategy")

	// ErrProviderMismatch indicates a strategy bound to one provider was
	// requested with a different one, such as anthropic_direct with openai.
	ErrProviderMismatch = errors.New("strategy does not support provider")
)

// CheckStrategy validates a (strategy, provider) pairing without building a
// client. The pairing is stored unchecked and only validated here when a
// turn resolves its agent.
func CheckStrategy(strategy string, provider Provider) error {
	switch strategy {
	case StrategyAgent:
		if provider != ProviderOpenAI && provider != ProviderAnthropic {
			return fmt.Errorf("%w: %q", ErrUnsupportedProvider, string(provider))
		}
		return nil
	case StrategyOpenAIDirect:
		if provider != ProviderOpenAI {
			return fmt.Errorf("%w: %s requires %s, got %s", ErrProviderMismatch, strategy, ProviderOpenAI, provider)
		}
		return nil
	case StrategyAnthropicDirect:
		if provider != ProviderAnthropic {
			return fmt.Errorf("%w: %s requires %s, got %s", ErrProviderMismatch, strategy, ProviderAnthropic, provider)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedStrategy, strategy)
	}
}

// Resolve maps a (strategy, provider) pair to a ready Client authenticated
// with apiKey. An empty model selects the provider default. The direct
// strategies are pinned to their provider; the agent strategy accepts either.
func Resolve(strategy string, provider Provider, apiKey, model string) (Client, error) {
	if err := CheckStrategy(strategy, provider); err != nil {
		return nil, err
	}

	base, err := directClient(provider, apiKey, model)
	if err != nil {
		return nil, err
	}
	if strategy == StrategyAgent {
		return newLoopClient(base), nil
	}
	return base, nil
}

func directClient(provider Provider, apiKey, model string) (Client, error) {
	switch provider {
	case ProviderOpenAI:
		if model == "" {
			model = DefaultOpenAIModel
		}
		return newOpenAIClient(apiKey, model), nil
	case ProviderAnthropic:
		if model == "" {
			model = DefaultAnthropicModel
		}
		return newAnthropicClient(apiKey, model), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, string(provider))
	}
}
