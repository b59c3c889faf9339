// Package openai provides a memory.Embedder backed by the OpenAI
// embeddings API.
package openai

import (
	"context"
	"errors"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/2ai-cx/llmcore/memory"
)

const DefaultModel = string(goopenai.SmallEmbedding3)

type embedder struct {
	client *goopenai.Client
	model  goopenai.EmbeddingModel
}

// NewEmbedder creates an embedder using the given API key.
func NewEmbedder(apiKey, model string) (memory.Embedder, error) {
	if apiKey == "" {
		return nil, errors.New("openai embedder requires an api key")
	}
	if model == "" {
		model = DefaultModel
	}
	return &embedder{
		client: goopenai.NewClient(apiKey),
		model:  goopenai.EmbeddingModel(model),
	}, nil
}

func (e *embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response for model %s carried no data", e.model)
	}
	return resp.Data[0].Embedding, nil
}
