package memory

import "time"

// ConversationTurn is one stored user/assistant exchange. Turns are
// append-only and partitioned by tenant and user; nothing in the
// retrieval path ever updates a turn in place.
type ConversationTurn struct {
	ID          int64                  `json:"id"`
	TenantID    string                 `json:"tenant_id"`
	UserID      string                 `json:"user_id"`
	UserMessage string                 `json:"user_message"`
	AIResponse  string                 `json:"ai_response"`
	Embedding   []float32              `json:"embedding,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// SearchQuery controls a retrieval over one tenant+user partition.
type SearchQuery struct {
	QueryEmbedding []float32
	QueryText      string
	TenantID       string
	UserID         string
	Limit          int
}

// SearchResult is a ConversationTurn plus its relevance score.
type SearchResult struct {
	Turn  *ConversationTurn
	Score float64
}
