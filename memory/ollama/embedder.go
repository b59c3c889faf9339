// Package ollama provides a memory.Embedder backed by a local ollama
// server.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"github.com/2ai-cx/llmcore/memory"
)

const DefaultModel = "mxbai-embed-large"

type embedder struct {
	client *api.Client
	model  string
}

// NewEmbedder creates an embedder against the given host. An empty
// host falls back to OLLAMA_HOST / the local default.
func NewEmbedder(host, model string) (memory.Embedder, error) {
	if model == "" {
		model = DefaultModel
	}
	if host == "" {
		cli, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, err
		}
		return &embedder{client: cli, model: model}, nil
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host: %w", err)
	}
	return &embedder{client: api.NewClient(u, http.DefaultClient), model: model}, nil
}

func (e *embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{
		Model: e.model,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("embed response for model %s carried no vectors", e.model)
	}
	return resp.Embeddings[0], nil
}
