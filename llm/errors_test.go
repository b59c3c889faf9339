package llm

import (
	"errors"
	"testing"
	"time"
)

func TestIsRateLimitError(t *testing.T) {
	err := NewRateLimitError("rate limit exceeded", nil, nil)
	if !IsRateLimitError(err) {
		t.Error("Expected IsRateLimitError to return true for rate limit error")
	}

	regularErr := NewInvalidRequestError("some error", nil)
	if IsRateLimitError(regularErr) {
		t.Error("Expected IsRateLimitError to return false for non-rate-limit error")
	}
}

func TestIsRetryable(t *testing.T) {
	for _, err := range []error{
		NewRateLimitError("rate limit", nil, nil),
		NewTimeoutError("deadline exceeded", nil),
		NewNetworkError("connection refused", nil),
		NewProviderError("service unavailable", true, nil),
	} {
		if !IsRetryable(err) {
			t.Errorf("Expected IsRetryable to return true for %v", err)
		}
	}

	for _, err := range []error{
		NewInvalidRequestError("bad request", nil),
		NewAuthError("bad key", nil),
		NewUpstreamFailure("openai", errors.New("last")),
		errors.New("plain error"),
	} {
		if IsRetryable(err) {
			t.Errorf("Expected IsRetryable to return false for %v", err)
		}
	}
}

func TestIsUpstreamFailure(t *testing.T) {
	last := NewTimeoutError("deadline exceeded", nil)
	err := NewUpstreamFailure("openai", last)
	if !IsUpstreamFailure(err) {
		t.Error("Expected IsUpstreamFailure to return true")
	}
	if !errors.Is(err, last) {
		t.Error("Expected upstream failure to unwrap to the last error")
	}
	if IsUpstreamFailure(last) {
		t.Error("Expected IsUpstreamFailure to return false for a transient error")
	}
}

func TestExtractRetryAfter(t *testing.T) {
	retryAfter := 5 * time.Minute
	err := NewRateLimitError("rate limit", &retryAfter, nil)
	extracted := ExtractRetryAfter(err)
	if extracted == nil {
		t.Fatal("Expected non-nil retry after")
	}
	if *extracted != retryAfter {
		t.Errorf("Expected retry after %v, got %v", retryAfter, *extracted)
	}

	regularErr := NewAuthError("some error", nil)
	if ExtractRetryAfter(regularErr) != nil {
		t.Error("Expected nil retry after for non-rate-limit error")
	}
}

func TestErrorUnwrap(t *testing.T) {
	originalErr := errors.New("original error")
	wrappedErr := NewProviderError("wrapped", false, originalErr)
	if !errors.Is(wrappedErr, originalErr) {
		t.Error("Expected error to unwrap to original error")
	}
}

func TestResponseClone(t *testing.T) {
	resp := &Response{
		ID:       "r1",
		Content:  "hello",
		Metadata: map[string]string{"k": "v"},
	}
	clone := resp.Clone()
	clone.Metadata["k"] = "changed"
	clone.Cached = true
	if resp.Metadata["k"] != "v" {
		t.Error("Expected clone metadata to be independent")
	}
	if resp.Cached {
		t.Error("Expected clone flag changes to not affect the original")
	}
}
