// Package llm adapts the supported language model backends to a single text completion call.
package llm

import (
	"context"
	"strings"

	"github.com/mohankp/sales-enablement-training/internal/config"
	"github.com/mohankp/sales-enablement-training/internal/observability"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"
)

// Provider codes with a native SDK; anything else is looked up in config.Providers
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
)

// Request is a single-turn completion request
type Request struct {
	Prompt      string
	System      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// Provider returns raw model text. Output is not guaranteed to be well formed.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// NewProvider builds the provider selected by cfg.AI.Provider
func NewProvider(ctx context.Context, cfg *config.Config, logger *observability.Logger) (result0 Provider, err error) {
	code := strings.ToLower(strings.TrimSpace(cfg.AI.Provider))
	switch code {
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.AI), nil
	case ProviderAnthropic:
		return NewAnthropicProvider(cfg.AI), nil
	case ProviderGoogle:
		return NewGeminiProvider(ctx, cfg.AI)
	}

	providerCfg, ok := cfg.GetProvider(code)
	if !ok {
		return nil, contextutils.WrapErrorf(contextutils.ErrAIConfigInvalid, "unknown ai provider %q", cfg.AI.Provider)
	}
	url := providerCfg.URL
	if cfg.AI.BaseURL != "" {
		url = cfg.AI.BaseURL
	}
	if url == "" {
		return nil, contextutils.WrapErrorf(contextutils.ErrAIConfigInvalid, "no base URL configured for provider '%s'", code)
	}
	return NewCompatibleProvider(code, url, cfg.AI, logger), nil
}

// withDefaults fills unset request fields from the configured AI section
func withDefaults(req Request, ai config.AIConfig) Request {
	if req.Model == "" {
		req.Model = ai.Model
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = ai.MaxTokens
	}
	if req.Temperature == 0 {
		req.Temperature = ai.Temperature
	}
	return req
}

func validateRequest(req Request) error {
	if req.Model == "" {
		return contextutils.WrapError(contextutils.ErrAIConfigInvalid, "model is required")
	}
	if req.Prompt == "" {
		return contextutils.WrapError(contextutils.ErrAIConfigInvalid, "prompt cannot be empty")
	}
	return nil
}
