package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/2ai-cx/llmcore/llm"
)

// keyFields is the canonical serialization of everything that makes a
// request logically distinct. encoding/json emits struct fields in
// declaration order and message order is preserved, so the same logical
// request always marshals to the same bytes.
type keyFields struct {
	Model       string        `json:"model"`
	Messages    []llm.Message `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int64         `json:"max_tokens,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
}

// Key derives the deterministic cache fingerprint for a request. Two
// requests with identical messages, model and sampling parameters map
// to the same key; any difference in those fields changes it. Tenant
// and user identifiers are deliberately excluded so identical prompts
// share cached responses.
func Key(req *llm.Request) string {
	data, err := json.Marshal(keyFields{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
	})
	if err != nil {
		// Marshaling a struct of strings and numbers cannot fail; keep
		// the signature error-free per the advisory cache contract.
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
