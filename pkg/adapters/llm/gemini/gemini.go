package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"

	genai "google.golang.org/genai"

	"github.com/fablecast/fablecast/pkg/adapters/llm"
	"github.com/fablecast/fablecast/pkg/errmodel"
)

const defaultModel = "gemini-2.5-flash-lite"

type clientWrapper struct {
	client *genai.Client
	model  string
}

func (c *clientWrapper) Name() string { return "gemini" }

func (c *clientWrapper) Generate(ctx context.Context, req llm.Request) (llm.Result, error) {
	model := c.model
	if req.Model != "" {
		model = req.Model
	}
	// Build a single turn from concatenated text for simplicity
	var text string
	for _, m := range req.Messages {
		if m.Content != "" {
			text += m.Content + "\n"
		}
	}
	var cfg *genai.GenerateContentConfig
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		cfg = &genai.GenerateContentConfig{Temperature: &t}
	}
	parts := []*genai.Part{{Text: text}}
	res, err := c.client.Models.GenerateContent(ctx, model, []*genai.Content{{Parts: parts}}, cfg)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return llm.Result{}, errmodel.Transient(errmodel.Model("timeout", "gemini call timed out", map[string]any{"model": model}, err))
		}
		return llm.Result{}, errmodel.Transient(errmodel.Model("provider_error", "gemini call failed", map[string]any{"model": model}, err))
	}
	return llm.Result{Text: res.Text(), Model: model}, nil
}

// Factory creates a Gemini provider using GOOGLE_API_KEY by default.
func Factory(ctx context.Context, cfg map[string]any) (llm.Provider, error) { // nolint: revive
	apiKey := os.Getenv("GOOGLE_API_KEY")
	if v, ok := cfg["api_key"].(string); ok && v != "" {
		apiKey = v
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: missing API key; set GOOGLE_API_KEY or cfg.api_key")
	}
	// Prefer Gemini API backend
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	model := defaultModel
	if v, ok := cfg["model"].(string); ok && v != "" {
		model = v
	}
	return &clientWrapper{client: client, model: model}, nil
}

func init() {
	_ = llm.Register("gemini", Factory)
}
