// Package openai implements the llm.Provider interface for OpenAI's
// chat completion API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/2ai-cx/llmcore/llm"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAI API errors don't directly expose retry-after headers.
// We'll use a default retry after duration for rate limits.
const defaultRetryAfter = 60 * time.Second

// Client implements the llm.Provider interface for OpenAI's API.
type Client struct {
	client *openai.Client
	model  string // Default model to use if not specified in request
}

// NewClient creates a new OpenAI provider.
// If apiKey is empty, it will return an error.
// If baseURL is empty, it will use the default OpenAI API endpoint.
func NewClient(apiKey, baseURL, model, organization string, timeout time.Duration) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if organization != "" {
		config.OrgID = organization
	}
	if timeout > 0 {
		config.HTTPClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

// Name implements llm.Provider.Name.
func (c *Client) Name() string {
	return llm.ProviderOpenAI
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

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAIMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = int(req.MaxTokens)
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}
	if req.TopP != nil {
		chatReq.TopP = float32(*req.TopP)
	}

	chatResp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, convertError(err)
	}

	if len(chatResp.Choices) == 0 {
		return nil, llm.NewProviderError("no choices in response", false, nil)
	}
	choice := chatResp.Choices[0]

	stopReason := "stop"
	switch choice.FinishReason {
	case openai.FinishReasonLength:
		stopReason = "max_tokens"
	case openai.FinishReasonStop:
		stopReason = "stop"
	default:
		// leave as default "stop"
	}

	return &llm.Response{
		ID:       chatResp.ID,
		Model:    chatResp.Model,
		Provider: c.Name(),
		Content:  choice.Message.Content,
		Usage: llm.Usage{
			PromptTokens:     int64(chatResp.Usage.PromptTokens),
			CompletionTokens: int64(chatResp.Usage.CompletionTokens),
			TotalTokens:      int64(chatResp.Usage.TotalTokens),
		},
		StopReason: stopReason,
	}, nil
}

// toOpenAIMessages converts llm.Messages to OpenAI chat message format.
func toOpenAIMessages(msgs []llm.Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, msg := range msgs {
		var role string
		switch msg.Role {
		case llm.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		case llm.RoleSystem:
			role = openai.ChatMessageRoleSystem
		default:
			role = openai.ChatMessageRoleUser
		}
		result = append(result, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}
	return result
}

// convertError converts OpenAI API errors to llm.Error types.
func convertError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return llm.NewTimeoutError("OpenAI request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return llm.NewTimeoutError("OpenAI request timed out", err)
		}
		return llm.NewNetworkError("OpenAI connection failed", err)
	}

	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		return llm.NewNetworkError("OpenAI request failed", err)
	}

	switch apiErr.HTTPStatusCode {
	case http.StatusTooManyRequests:
		retryAfter := defaultRetryAfter
		return llm.NewRateLimitError(
			fmt.Sprintf("OpenAI rate limit: %s", apiErr.Message),
			&retryAfter,
			err,
		)
	case http.StatusUnauthorized, http.StatusForbidden:
		return llm.NewAuthError(
			fmt.Sprintf("OpenAI auth failed: %s", apiErr.Message),
			err,
		)
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return llm.NewInvalidRequestError(
			fmt.Sprintf("OpenAI invalid request: %s", apiErr.Message),
			err,
		)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		// Server errors - potentially retryable
		return llm.NewProviderError(
			fmt.Sprintf("OpenAI server error: %s", apiErr.Message),
			true,
			err,
		)
	default:
		return llm.NewProviderError(
			fmt.Sprintf("OpenAI API error: %s", apiErr.Message),
			false,
			err,
		)
	}
}
