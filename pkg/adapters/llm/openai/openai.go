package openai

import (
	"context"
	"errors"
	"fmt"
	"os"

	oa "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/fablecast/fablecast/pkg/adapters/llm"
	"github.com/fablecast/fablecast/pkg/errmodel"
)

const defaultModel = "gpt-5-nano"

type clientWrapper struct {
	client oa.Client
	model  string
}

func (c *clientWrapper) Name() string { return "openai" }

func (c *clientWrapper) Generate(ctx context.Context, req llm.Request) (llm.Result, error) {
	model := c.model
	if req.Model != "" {
		model = req.Model
	}

	// Map our messages to SDK union type
	mm := make([]oa.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case "user":
			mm = append(mm, oa.UserMessage(m.Content))
		case "system":
			mm = append(mm, oa.SystemMessage(m.Content))
		case "assistant":
			mm = append(mm, oa.AssistantMessage(m.Content))
		default:
			mm = append(mm, oa.UserMessage(m.Content))
		}
	}

	params := oa.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: mm,
	}
	if req.Temperature != nil {
		params.Temperature = oa.Float(*req.Temperature)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return llm.Result{}, classify(err, model)
	}
	var out string
	if len(resp.Choices) > 0 {
		out = resp.Choices[0].Message.Content
	}
	usage := resp.Usage
	return llm.Result{
		Text:         out,
		PromptTokens: int(usage.PromptTokens),
		OutputTokens: int(usage.CompletionTokens),
		TotalTokens:  int(usage.TotalTokens),
		Model:        model,
	}, nil
}

// classify maps SDK errors to the transient/permanent error model the retry
// engine consumes. Timeouts, cancellations and 5xx/429 are retryable.
func classify(err error, model string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errmodel.Transient(errmodel.Model("timeout", "openai call timed out", map[string]any{"model": model}, err))
	}
	var apierr *oa.Error
	if errors.As(err, &apierr) {
		if apierr.StatusCode == 429 || apierr.StatusCode >= 500 {
			return errmodel.Transient(errmodel.Model("provider_unavailable", "openai transient failure", map[string]any{"model": model, "status": apierr.StatusCode}, err))
		}
		return errmodel.Model("request_rejected", "openai rejected the request", map[string]any{"model": model, "status": apierr.StatusCode}, err)
	}
	return errmodel.Transient(errmodel.Model("provider_error", "openai call failed", map[string]any{"model": model}, err))
}

// Factory registers the OpenAI provider: cfg keys: api_key, model, base_url
func Factory(ctx context.Context, cfg map[string]any) (llm.Provider, error) { // nolint: revive
	_ = ctx
	apiKey := os.Getenv("OPENAI_API_KEY")
	if v, ok := cfg["api_key"].(string); ok && v != "" {
		apiKey = v
	}
	if apiKey == "" {
		return nil, fmt.Errorf("openai: missing API key; set OPENAI_API_KEY or cfg.api_key")
	}
	model := defaultModel
	if v, ok := cfg["model"].(string); ok && v != "" {
		model = v
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if v, ok := cfg["base_url"].(string); ok && v != "" {
		opts = append(opts, option.WithBaseURL(v))
	}
	return &clientWrapper{client: oa.NewClient(opts...), model: model}, nil
}

func init() {
	_ = llm.Register("openai", Factory)
}
