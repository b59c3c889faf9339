// Package llm defines the provider-neutral types shared by every part
// of llmcore: chat requests and responses, the error taxonomy that is
// allowed to cross the public boundary, the Provider interface that
// upstream adapters implement, and the registry that selects an adapter
// at construction time.
//
// The package is deliberately free of provider SDK imports. Adapters
// live in the llm/openai, llm/anthropic and llm/ollama subpackages and
// translate between these types and the wire formats of their SDKs.
//
// Error handling follows one rule: callers of a Provider only ever see
// *llm.Error values. The Retryable flag on an error decides whether the
// breaker package will retry it; the Type decides how the client
// surfaces it.
package llm
