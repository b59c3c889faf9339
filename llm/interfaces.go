package llm

import (
	"context"
)

// Provider sends a structured chat request to an upstream completion
// API and returns content, token counts and a stop reason.
// Implementations handle provider-specific details internally and map
// every failure into a *llm.Error.
type Provider interface {
	// Name returns the provider identifier ("openai", "anthropic", "ollama").
	Name() string

	// Complete sends a request and returns a complete response.
	// The returned response carries usage but no cost, latency or cache
	// flag; the client stamps those.
	Complete(ctx context.Context, req *Request) (*Response, error)
}
