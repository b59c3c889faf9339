package memory

import "context"

// Embedder turns text into a fixed-dimension vector. Implementations
// live in memory/ollama and memory/openai; the engine treats any
// failure as a degradation, never a hard error.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
