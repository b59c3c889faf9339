package llm

import (
	"time"
)

// MessageRole represents the role of a message in a conversation.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message represents a single message in a conversation.
// This is provider-neutral and can represent user, assistant, or system messages.
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// Request represents a complete LLM API request.
// A Request is immutable once issued: the client and every subsystem
// treat it as read-only and copy the message slice when they need to
// modify it (e.g. memory injection).
type Request struct {
	Model       string
	Messages    []Message
	Temperature *float64 // Optional temperature override
	MaxTokens   int64
	TopP        *float64 // Optional nucleus-sampling override
	TenantID    string   // Optional tenant scope for rate limiting / memory
	UserID      string   // Optional user scope for rate limiting / memory
}

// Usage represents token usage information from an LLM response.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Response represents a complete LLM API response.
// A Response is owned by the call that produced it; the cache stores
// and returns clones so concurrent callers never share one value.
type Response struct {
	ID         string            `json:"id"`
	Model      string            `json:"model"`
	Provider   string            `json:"provider"`
	Content    string            `json:"content"`
	Usage      Usage             `json:"usage"`
	Cost       float64           `json:"cost"`
	Latency    time.Duration     `json:"latency"`
	Cached     bool              `json:"cached"`
	StopReason string            `json:"stop_reason,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the response.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	out := *r
	if r.Metadata != nil {
		out.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// NewTextMessage creates a new message with the given role and text.
func NewTextMessage(role MessageRole, text string) Message {
	return Message{Role: role, Content: text}
}

// CloneMessages copies a message slice so injected context never
// mutates the caller's request.
func CloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
