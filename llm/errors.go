package llm

import (
	"errors"
	"fmt"
	"time"
)

// Error represents a provider-neutral LLM error.
type Error struct {
	Type        ErrorType
	Message     string
	Retryable   bool
	RetryAfter  *time.Duration
	StatusCode  int
	ProviderErr error // Original provider-specific error
}

// ErrorType represents the category of error.
type ErrorType string

const (
	ErrorTypeRateLimit      ErrorType = "rate_limit"      // upstream 429
	ErrorTypeTimeout        ErrorType = "timeout"         // request deadline exceeded
	ErrorTypeNetwork        ErrorType = "network"         // connection failure
	ErrorTypeInvalidRequest ErrorType = "invalid_request" // malformed request, never retried
	ErrorTypeAuth           ErrorType = "auth"            // bad or disabled credentials
	ErrorTypeProvider       ErrorType = "provider"        // upstream 5xx-class failure
	ErrorTypeUpstream       ErrorType = "upstream"        // retries and fallback exhausted
	ErrorTypeUnknown        ErrorType = "unknown"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.ProviderErr != nil {
		return e.Message + ": " + e.ProviderErr.Error()
	}
	return e.Message
}

// Unwrap returns the underlying provider error.
func (e *Error) Unwrap() error {
	return e.ProviderErr
}

// IsRetryable checks whether an error is a transient provider error.
// Only errors in the transient classes (rate limit, timeout, network,
// 5xx-class provider) are eligible for retry by the breaker package.
func IsRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}

// IsRateLimitError checks if an error is an upstream rate limit error.
func IsRateLimitError(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type == ErrorTypeRateLimit
	}
	return false
}

// IsUpstreamFailure checks if an error marks exhausted retries and fallback.
func IsUpstreamFailure(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type == ErrorTypeUpstream
	}
	return false
}

// ExtractRetryAfter extracts the retry-after duration from an error.
func ExtractRetryAfter(err error) *time.Duration {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.RetryAfter
	}
	return nil
}

// NewRateLimitError creates a new upstream rate limit error.
func NewRateLimitError(message string, retryAfter *time.Duration, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeRateLimit,
		Message:     message,
		Retryable:   true,
		RetryAfter:  retryAfter,
		ProviderErr: providerErr,
	}
}

// NewTimeoutError creates a new timeout error.
func NewTimeoutError(message string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeTimeout,
		Message:     message,
		Retryable:   true,
		ProviderErr: providerErr,
	}
}

// NewNetworkError creates a new connection error.
func NewNetworkError(message string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeNetwork,
		Message:     message,
		Retryable:   true,
		ProviderErr: providerErr,
	}
}

// NewInvalidRequestError creates a new permanent malformed-request error.
func NewInvalidRequestError(message string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeInvalidRequest,
		Message:     message,
		Retryable:   false,
		ProviderErr: providerErr,
	}
}

// NewAuthError creates a new permanent authentication error.
func NewAuthError(message string, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeAuth,
		Message:     message,
		Retryable:   false,
		ProviderErr: providerErr,
	}
}

// NewProviderError creates a new upstream server error. Set retryable
// for 5xx-class failures that are worth another attempt.
func NewProviderError(message string, retryable bool, providerErr error) *Error {
	return &Error{
		Type:        ErrorTypeProvider,
		Message:     message,
		Retryable:   retryable,
		ProviderErr: providerErr,
	}
}

// NewUpstreamFailure wraps the last error seen after retries (and the
// fallback model, when configured) were exhausted.
func NewUpstreamFailure(provider string, lastErr error) *Error {
	return &Error{
		Type:        ErrorTypeUpstream,
		Message:     fmt.Sprintf("%s: retries exhausted", provider),
		Retryable:   false,
		ProviderErr: lastErr,
	}
}
