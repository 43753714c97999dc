package llm

import (
	"context"
	"strings"

	"github.com/mohankp/sales-enablement-training/internal/config"
	"github.com/mohankp/sales-enablement-training/internal/observability"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel/attribute"
)

// AnthropicProvider calls the Messages API
type AnthropicProvider struct {
	client *anthropic.Client
	ai     config.AIConfig
}

// NewAnthropicProvider creates a Messages API provider
func NewAnthropicProvider(ai config.AIConfig) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(ai.APIKey)}
	if ai.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(ai.BaseURL))
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicProvider{client: &client, ai: ai}
}

// Name returns "anthropic"
func (p *AnthropicProvider) Name() string { return ProviderAnthropic }

// Complete sends one user turn and concatenates the text blocks of the reply
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (result0 string, err error) {
	req = withDefaults(req, p.ai)
	ctx, span := observability.TraceAIFunction(ctx, "anthropic_complete",
		attribute.String("ai.model", req.Model),
		attribute.Int("prompt.length", len(req.Prompt)),
	)
	defer observability.FinishSpan(span, &err)

	if err := validateRequest(req); err != nil {
		return "", err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages: []anthropic.MessageParam{{
			Role:    anthropic.MessageParamRoleUser,
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(req.Prompt)},
		}},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", contextutils.WrapErrorf(contextutils.ErrAIProviderUnavailable, "anthropic request failed: %v", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", contextutils.WrapError(contextutils.ErrAIResponseInvalid, "AI returned empty content")
	}
	return sb.String(), nil
}
