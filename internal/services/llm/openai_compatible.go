package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mohankp/sales-enablement-training/internal/config"
	"github.com/mohankp/sales-enablement-training/internal/observability"
	contextutils "github.com/mohankp/sales-enablement-training/internal/utils"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Message is a chat message in an OpenAI-compatible request
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body posted to {url}/chat/completions
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// ChatResponse is the subset of the completion response that is read
type ChatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// CompatibleProvider talks to any server exposing the OpenAI chat completions API (Ollama, llama.cpp, vLLM)
type CompatibleProvider struct {
	code       string
	baseURL    string
	ai         config.AIConfig
	httpClient *http.Client
	logger     *observability.Logger
}

// NewCompatibleProvider creates a provider posting to baseURL with an instrumented HTTP client
func NewCompatibleProvider(code, baseURL string, ai config.AIConfig, logger *observability.Logger) *CompatibleProvider {
	return &CompatibleProvider{
		code:    code,
		baseURL: baseURL,
		ai:      ai,
		httpClient: &http.Client{
			Timeout: config.AIRequestTimeout - 5*time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanOptions(trace.WithSpanKind(trace.SpanKindClient)),
			),
		},
		logger: logger,
	}
}

// Name returns the provider code
func (p *CompatibleProvider) Name() string { return p.code }

// Complete posts a single user message and returns the first choice's content
func (p *CompatibleProvider) Complete(ctx context.Context, req Request) (result0 string, err error) {
	req = withDefaults(req, p.ai)
	ctx, span := observability.TraceAIFunction(ctx, "compatible_complete",
		attribute.String("ai.provider", p.code),
		attribute.String("ai.model", req.Model),
		attribute.Int("prompt.length", len(req.Prompt)),
	)
	defer observability.FinishSpan(span, &err)

	if err := validateRequest(req); err != nil {
		return "", err
	}

	var messages []Message
	if req.System != "" {
		messages = append(messages, Message{Role: "system", Content: req.System})
	}
	messages = append(messages, Message{Role: "user", Content: req.Prompt})

	jsonData, err := json.Marshal(ChatRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", contextutils.WrapErrorf(err, "failed to marshal request body")
	}

	endpoint := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", contextutils.WrapErrorf(err, "failed to create HTTP request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", "sales-trainer/1.0")
	if p.ai.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.ai.APIKey)
	}

	startTime := time.Now()
	resp, err := p.httpClient.Do(httpReq)
	duration := time.Since(startTime)
	if err != nil {
		span.SetAttributes(attribute.String("call.result", "http_request_failed"))
		return "", contextutils.WrapErrorf(contextutils.ErrAIProviderUnavailable, "HTTP request failed after %v: %v", duration, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			p.logger.Warn(ctx, "Failed to close response body", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	p.logger.Debug(ctx, "AI HTTP request completed", map[string]interface{}{
		"provider":    p.code,
		"duration":    duration.String(),
		"status_code": resp.StatusCode,
	})

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", contextutils.WrapErrorf(err, "failed to read response body")
	}

	if resp.StatusCode != http.StatusOK {
		span.SetAttributes(attribute.Int("status_code", resp.StatusCode))
		base := contextutils.ErrAIRequestFailed
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			base = contextutils.ErrAIProviderUnavailable
		}
		return "", contextutils.WrapErrorf(base, "API request failed with status %d to %s: %s", resp.StatusCode, endpoint, string(body))
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", contextutils.WrapErrorf(contextutils.ErrAIResponseInvalid, "failed to parse AI response as JSON: %v. Raw Response: %s", err, string(body))
	}
	if chatResp.Error != nil {
		return "", contextutils.WrapErrorf(contextutils.ErrAIRequestFailed, "%s API error: %s", p.code, chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return "", contextutils.WrapError(contextutils.ErrAIResponseInvalid, fmt.Sprintf("no response from %s", p.code))
	}

	content := chatResp.Choices[0].Message.Content
	if content == "" {
		return "", contextutils.WrapError(contextutils.ErrAIResponseInvalid, "AI returned empty content")
	}

	span.SetAttributes(attribute.Int("content_length", len(content)))
	return content, nil
}
