package llm

import (
	"context"

	"github.com/mohankp/sales-enablement-training/internal/config"
	"github.com/mohankp/sales-enablement-training/internal/observability"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
)

// OpenAIProvider calls the OpenAI chat completions API through go-openai
type OpenAIProvider struct {
	client *openai.Client
	ai     config.AIConfig
}

// NewOpenAIProvider creates an OpenAI provider; ai.BaseURL overrides the API endpoint
func NewOpenAIProvider(ai config.AIConfig) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(ai.APIKey)
	if ai.BaseURL != "" {
		clientCfg.BaseURL = ai.BaseURL
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientCfg),
		ai:     ai,
	}
}

// Name returns "openai"
func (p *OpenAIProvider) Name() string { return ProviderOpenAI }

// Complete sends one user message and returns the first choice
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (result0 string, err error) {
	req = withDefaults(req, p.ai)
	ctx, span := observability.TraceAIFunction(ctx, "openai_complete",
		attribute.String("ai.model", req.Model),
		attribute.Int("prompt.length", len(req.Prompt)),
	)
	defer observability.FinishSpan(span, &err)

	if err := validateRequest(req); err != nil {
		return "", err
	}

	var messages []openai.ChatCompletionMessage
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:               req.Model,
		Messages:            messages,
		MaxCompletionTokens: req.MaxTokens,
		Temperature:         float32(req.Temperature),
	})
	if err != nil {
		return "", contextutils.WrapErrorf(contextutils.ErrAIProviderUnavailable, "openai request failed: %v", err)
	}
	if len(resp.Choices) == 0 {
		return "", contextutils.WrapError(contextutils.ErrAIResponseInvalid, "no response from openai")
	}
	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", contextutils.WrapError(contextutils.ErrAIResponseInvalid, "AI returned empty content")
	}
	return content, nil
}
