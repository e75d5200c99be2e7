// Package openai implements the embedding contract on the OpenAI API.
package openai

import (
	"context"
	"fmt"
	"os"

	oa "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/fablecast/fablecast/pkg/adapters/embedding"
)

const defaultEmbeddingModel = "text-embedding-3-small"

type embedClient struct {
	client oa.Client
	model  string
}

func (e *embedClient) Name() string { return "openai" }

func (e *embedClient) Embed(ctx context.Context, inputs []string) ([]embedding.Vector, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	resp, err := e.client.Embeddings.New(ctx, oa.EmbeddingNewParams{
		Model: oa.EmbeddingModel(e.model),
		Input: oa.EmbeddingNewParamsInputUnion{OfArrayOfStrings: inputs},
	})
	if err != nil {
		return nil, err
	}
	out := make([]embedding.Vector, 0, len(resp.Data))
	for _, d := range resp.Data {
		vec := make(embedding.Vector, len(d.Embedding))
		for i := range d.Embedding {
			vec[i] = float32(d.Embedding[i])
		}
		out = append(out, vec)
	}
	return out, nil
}

// Factory registers the OpenAI embedder: cfg keys: api_key, model, base_url
func Factory(ctx context.Context, cfg map[string]any) (embedding.Embedder, error) { // nolint: revive
	_ = ctx
	apiKey := os.Getenv("OPENAI_API_KEY")
	if v, ok := cfg["api_key"].(string); ok && v != "" {
		apiKey = v
	}
	if apiKey == "" {
		return nil, fmt.Errorf("openai: missing API key; set OPENAI_API_KEY or cfg.api_key")
	}
	model := defaultEmbeddingModel
	if v, ok := cfg["model"].(string); ok && v != "" {
		model = v
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if v, ok := cfg["base_url"].(string); ok && v != "" {
		opts = append(opts, option.WithBaseURL(v))
	}
	return &embedClient{client: oa.NewClient(opts...), model: model}, nil
}

func init() {
	_ = embedding.Register("openai", Factory)
}
