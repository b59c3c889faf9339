package llm

import "sync"

const tokensPerK = 1000.0

// Pricing contains per-model token pricing in USD per 1K tokens.
type Pricing struct {
	InputCostPer1K  float64
	OutputCostPer1K float64
}

// PricingTable maps model names to pricing. It is read-mostly: the
// defaults are registered at construction and deployments can register
// overrides for private or fine-tuned models.
type PricingTable struct {
	mu     sync.RWMutex
	models map[string]Pricing
}

// NewPricingTable returns a table seeded with pricing for the common
// hosted models. Local models (Ollama) are intentionally absent and
// cost zero.
func NewPricingTable() *PricingTable {
	return &PricingTable{
		models: map[string]Pricing{
			"gpt-4o":                   {InputCostPer1K: 0.0025, OutputCostPer1K: 0.01},
			"gpt-4o-mini":              {InputCostPer1K: 0.00015, OutputCostPer1K: 0.0006},
			"gpt-4-turbo":              {InputCostPer1K: 0.01, OutputCostPer1K: 0.03},
			"gpt-3.5-turbo":            {InputCostPer1K: 0.0005, OutputCostPer1K: 0.0015},
			"claude-sonnet-4-20250514": {InputCostPer1K: 0.003, OutputCostPer1K: 0.015},
			"claude-haiku-4-5":         {InputCostPer1K: 0.001, OutputCostPer1K: 0.005},
			"claude-3-5-haiku-latest":  {InputCostPer1K: 0.0008, OutputCostPer1K: 0.004},
		},
	}
}

// Register adds or replaces pricing for a model.
func (t *PricingTable) Register(model string, p Pricing) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.models[model] = p
}

// Cost computes the monetary cost for the given model and usage.
// Unknown models cost zero; a missing price must not fail a request.
func (t *PricingTable) Cost(model string, usage Usage) float64 {
	t.mu.RLock()
	p, ok := t.models[model]
	t.mu.RUnlock()
	if !ok {
		return 0
	}
	inputCost := float64(usage.PromptTokens) / tokensPerK * p.InputCostPer1K
	outputCost := float64(usage.CompletionTokens) / tokensPerK * p.OutputCostPer1K
	return inputCost + outputCost
}
