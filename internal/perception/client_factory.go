package perception

import (
	"context"

	"ghostbot/internal/config"
	"ghostbot/internal/usage"
)

// NewGeminiFactory returns a ClientFactory building Gemini clients from cfg.
func NewGeminiFactory(cfg config.LLMConfig, tracker *usage.Tracker) ClientFactory {
	return func(ctx context.Context, key string) (Model, error) {
		return NewGeminiClient(ctx, key, cfg, tracker)
	}
}

// NewGateFromConfig builds the credential gate for the configured key pool.
func NewGateFromConfig(cfg config.LLMConfig, tracker *usage.Tracker) (*KeyGate, error) {
	return NewKeyGate(cfg.APIKeys, NewGeminiFactory(cfg, tracker))
}
