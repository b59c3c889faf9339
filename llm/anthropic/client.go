// Package anthropic implements the llm.Provider interface for
// Anthropic's Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/2ai-cx/llmcore/llm"
	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"
)

const defaultRetryAfter = 60 * time.Second

// Client implements the llm.Provider interface for Anthropic's API.
type Client struct {
	client *anthropic.Client
	model  string // Default model to use if not specified in request
	logger zerolog.Logger
}

// NewClient creates a new Anthropic provider with the given API key.
func NewClient(apiKey, model string, timeout time.Duration, logger zerolog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	client := anthropic.NewClient(opts...)

	return &Client{
		client: &client,
		model:  model,
		logger: logger.With().Str("component", "anthropic_provider").Logger(),
	}, nil
}

// Name implements llm.Provider.Name.
func (c *Client) Name() string {
	return llm.ProviderAnthropic
}

// Complete implements llm.Provider.Complete.
func (c *Client) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil {
		return nil, llm.NewInvalidRequestError("request is required", nil)
	}

	model := req.Model
	if model == "" {
		model = c.model
	}
	if model == "" {
		return nil, llm.NewInvalidRequestError("model is required", nil)
	}

	// Anthropic takes the system prompt out of band; split any leading
	// system messages off the conversation.
	system, rest := splitSystem(req.Messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: req.MaxTokens,
		Messages:  toMessageParams(rest),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = anthropic.Float(*req.TopP)
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, convertError(err)
	}

	var content string
	for _, blockUnion := range message.Content {
		switch block := blockUnion.AsAny().(type) {
		case anthropic.TextBlock:
			if content != "" {
				content += "\n"
			}
			content += block.Text
		}
	}

	usage := llm.Usage{
		PromptTokens:     message.Usage.InputTokens,
		CompletionTokens: message.Usage.OutputTokens,
		TotalTokens:      message.Usage.InputTokens + message.Usage.OutputTokens,
	}

	return &llm.Response{
		ID:         message.ID,
		Model:      string(message.Model),
		Provider:   c.Name(),
		Content:    content,
		Usage:      usage,
		StopReason: string(message.StopReason),
	}, nil
}

// splitSystem extracts leading system messages into a single system
// prompt and returns the remaining conversation.
func splitSystem(msgs []llm.Message) (string, []llm.Message) {
	var system string
	rest := make([]llm.Message, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Role == llm.RoleSystem && len(rest) == 0 {
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
			continue
		}
		rest = append(rest, msg)
	}
	return system, rest
}

// toMessageParams converts llm.Messages to Anthropic message params.
func toMessageParams(msgs []llm.Message) []anthropic.MessageParam {
	result := make([]anthropic.MessageParam, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case llm.RoleAssistant:
			result = append(result, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			// Anthropic has no system role inside the conversation; any
			// non-leading system message is delivered as a user message.
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return result
}

// convertError converts Anthropic API errors to llm.Error types.
func convertError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return llm.NewTimeoutError("Anthropic request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return llm.NewTimeoutError("Anthropic request timed out", err)
		}
		return llm.NewNetworkError("Anthropic connection failed", err)
	}

	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return llm.NewNetworkError("Anthropic request failed", err)
	}

	switch apiErr.StatusCode {
	case http.StatusTooManyRequests:
		retryAfter := defaultRetryAfter
		return llm.NewRateLimitError("Anthropic rate limit", &retryAfter, err)
	case http.StatusUnauthorized, http.StatusForbidden:
		return llm.NewAuthError("Anthropic auth failed", err)
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return llm.NewInvalidRequestError("Anthropic invalid request", err)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, 529:
		// 529 is Anthropic's overloaded status
		return llm.NewProviderError("Anthropic server error", true, err)
	default:
		return llm.NewProviderError("Anthropic API error", false, err)
	}
}
