package llm

import (
	"context"

	"github.com/mohankp/sales-enablement-training/internal/config"
	"github.com/mohankp/sales-enablement-training/internal/observability"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/genai"
)

// GeminiProvider calls the Gemini API
type GeminiProvider struct {
	client *genai.Client
	ai     config.AIConfig
}

// NewGeminiProvider creates a Gemini API client
func NewGeminiProvider(ctx context.Context, ai config.AIConfig) (result0 *GeminiProvider, err error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  ai.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrAIConfigInvalid, "failed to create gemini client: %v", err)
	}
	return &GeminiProvider{client: client, ai: ai}, nil
}

// Name returns "google"
func (p *GeminiProvider) Name() string { return ProviderGoogle }

// Complete generates content from a single text prompt
func (p *GeminiProvider) Complete(ctx context.Context, req Request) (result0 string, err error) {
	req = withDefaults(req, p.ai)
	ctx, span := observability.TraceAIFunction(ctx, "gemini_complete",
		attribute.String("ai.model", req.Model),
		attribute.Int("prompt.length", len(req.Prompt)),
	)
	defer observability.FinishSpan(span, &err)

	if err := validateRequest(req); err != nil {
		return "", err
	}

	genCfg := &genai.GenerateContentConfig{MaxOutputTokens: int32(req.MaxTokens)}
	if req.Temperature > 0 {
		t := float32(req.Temperature)
		genCfg.Temperature = &t
	}
	if req.System != "" {
		genCfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}

	contents := []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: req.Prompt}}}}
	result, err := p.client.Models.GenerateContent(ctx, req.Model, contents, genCfg)
	if err != nil {
		return "", contextutils.WrapErrorf(contextutils.ErrAIProviderUnavailable, "gemini request failed: %v", err)
	}
	text := result.Text()
	if text == "" {
		return "", contextutils.WrapError(contextutils.ErrAIResponseInvalid, "AI returned empty content")
	}
	return text, nil
}
