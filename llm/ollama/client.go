// Package ollama implements the llm.Provider interface for a local
// Ollama instance.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/2ai-cx/llmcore/llm"
	"github.com/ollama/ollama/api"
)

// Client implements the llm.Provider interface for Ollama's API.
type Client struct {
	client *api.Client
	model  string // Default model to use if not specified in request
}

// NewClient creates a new Ollama provider.
// If host is empty, it will use the default from environment
// (OLLAMA_HOST or http://localhost:11434).
func NewClient(host, model string, timeout time.Duration) (*Client, error) {
	httpClient := &http.Client{}
	if timeout > 0 {
		httpClient.Timeout = timeout
	}

	var client *api.Client
	if host != "" {
		baseURL, err := parseHost(host)
		if err != nil {
			return nil, fmt.Errorf("invalid host: %w", err)
		}
		client = api.NewClient(baseURL, httpClient)
	} else {
		var err error
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
	}

	return &Client{
		client: client,
		model:  model,
	}, nil
}

// parseHost parses a host string into a URL.
func parseHost(host string) (*url.URL, error) {
	// If host doesn't have a scheme, add http://
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	return url.Parse(host)
}

// Name implements llm.Provider.Name.
func (c *Client) Name() string {
	return llm.ProviderOllama
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

	chatReq := &api.ChatRequest{
		Model:    model,
		Messages: toOllamaMessages(req.Messages),
		Stream:   new(bool), // false for non-streaming
		Options:  make(map[string]interface{}),
	}
	if req.MaxTokens > 0 {
		chatReq.Options["num_predict"] = int(req.MaxTokens)
	}
	if req.Temperature != nil {
		chatReq.Options["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		chatReq.Options["top_p"] = *req.TopP
	}

	var chatResp api.ChatResponse
	err := c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		chatResp = resp
		return nil
	})
	if err != nil {
		return nil, convertError(err)
	}

	// Ollama may not provide detailed usage on every response.
	usage := llm.Usage{}
	if chatResp.PromptEvalCount > 0 {
		usage.PromptTokens = int64(chatResp.PromptEvalCount)
	}
	if chatResp.EvalCount > 0 {
		usage.CompletionTokens = int64(chatResp.EvalCount)
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	stopReason := "end_turn"
	if chatResp.Done {
		stopReason = "stop"
	}

	return &llm.Response{
		Model:      model,
		Provider:   c.Name(),
		Content:    chatResp.Message.Content,
		Usage:      usage,
		StopReason: stopReason,
	}, nil
}

// toOllamaMessages converts llm.Messages to Ollama message format.
// Ollama supports system messages directly in the conversation.
func toOllamaMessages(msgs []llm.Message) []api.Message {
	result := make([]api.Message, 0, len(msgs))
	for _, msg := range msgs {
		result = append(result, api.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return result
}

// convertError converts Ollama transport errors to llm.Error types.
// A local Ollama has no auth or quota surface; failures are either
// connectivity problems or malformed requests.
func convertError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return llm.NewTimeoutError("Ollama request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return llm.NewTimeoutError("Ollama request timed out", err)
		}
		return llm.NewNetworkError("Ollama connection failed", err)
	}

	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusNotFound, http.StatusBadRequest:
			return llm.NewInvalidRequestError("Ollama invalid request", err)
		case http.StatusInternalServerError, http.StatusServiceUnavailable:
			return llm.NewProviderError("Ollama server error", true, err)
		}
	}

	return llm.NewNetworkError("Ollama request failed", err)
}
