// Package client assembles the full completion pipeline: cache, rate
// limiter, retry/circuit breaker, provider adapter and conversation
// memory. One Client is built per configuration and is safe for
// concurrent use.
package client

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/2ai-cx/llmcore/breaker"
	"github.com/2ai-cx/llmcore/cache"
	"github.com/2ai-cx/llmcore/config"
	"github.com/2ai-cx/llmcore/llm"
	llmanthropic "github.com/2ai-cx/llmcore/llm/anthropic"
	llmollama "github.com/2ai-cx/llmcore/llm/ollama"
	llmopenai "github.com/2ai-cx/llmcore/llm/openai"
	"github.com/2ai-cx/llmcore/memory"
	memollama "github.com/2ai-cx/llmcore/memory/ollama"
	memopenai "github.com/2ai-cx/llmcore/memory/openai"
	"github.com/2ai-cx/llmcore/ratelimit"

	_ "github.com/mattn/go-sqlite3"
)

// Options shape a Generate call.
type Options struct {
	Model       string
	Temperature *float64
	MaxTokens   int64
	TopP        *float64
	TenantID    string
	UserID      string
}

// Client is the orchestrating LLM client.
type Client struct {
	cfg      *config.Config
	provider llm.Provider
	fallback llm.Provider // nil unless a fallback model is configured

	cache    *cache.Cache       // nil when disabled
	limiter  *ratelimit.Limiter // nil when no scope has a limit
	executor *breaker.Executor
	pricing  *llm.PricingTable
	engine   *memory.Engine // nil when RAG is disabled
	keyring  *Keyring

	// newProvider rebuilds the adapter with a substituted API key for
	// tenants carrying a key override. Nil for providers without keys.
	newProvider func(apiKey string) (llm.Provider, error)

	tmu             sync.Mutex
	tenantProviders map[string]tenantProvider

	db     *sql.DB
	logger zerolog.Logger
}

type tenantProvider struct {
	apiKey   string
	provider llm.Provider
}

// New builds a Client from configuration. The provider adapter is
// constructed eagerly so misconfiguration surfaces here, not on the
// first request. When RAG is enabled the memory store is opened at
// cfg.RAG.StorePath; its schema must already be migrated.
func New(cfg *config.Config, logger zerolog.Logger) (*Client, error) {
	registry := llm.NewRegistry(&llm.ProviderConfig{
		AnthropicAPIKey: cfg.Anthropic.APIKey,
		AnthropicModel:  cfg.Anthropic.Model,
		OllamaHost:      cfg.Ollama.Host,
		OllamaModel:     cfg.Ollama.Model,
		OpenAIAPIKey:    cfg.OpenAI.APIKey,
		OpenAIBaseURL:   cfg.OpenAI.BaseURL,
		OpenAIModel:     cfg.OpenAI.Model,
		OpenAIOrg:       cfg.OpenAI.Organization,
	})

	key, err := registry.Resolve(cfg.Provider, "")
	if err != nil {
		return nil, fmt.Errorf("resolve provider: %w", err)
	}
	provider, err := buildAdapter(cfg, key, logger)
	if err != nil {
		return nil, fmt.Errorf("build %s adapter: %w", key.Provider, err)
	}

	var fallback llm.Provider
	if cfg.FallbackModel.Enabled && cfg.FallbackModel.Name != "" {
		fbKey, err := registry.Resolve(cfg.Provider, cfg.FallbackModel.Name)
		if err != nil {
			return nil, fmt.Errorf("resolve fallback model: %w", err)
		}
		fallback, err = buildAdapter(cfg, fbKey, logger)
		if err != nil {
			return nil, fmt.Errorf("build fallback adapter: %w", err)
		}
	}

	c, err := NewWithProvider(cfg, provider, fallback, nil, logger)
	if err != nil {
		return nil, err
	}
	c.newProvider = keyOverrideFactory(cfg, key, logger)

	if cfg.RAG.Enabled {
		if err := c.openMemory(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// NewWithProvider builds a Client around already-constructed
// collaborators. Callers that assemble their own adapters or memory
// engine (or tests stubbing the provider) use this entry point.
func NewWithProvider(cfg *config.Config, provider, fallback llm.Provider, engine *memory.Engine, logger zerolog.Logger) (*Client, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	logger = logger.With().Str("component", "llm_client").Logger()

	c := &Client{
		cfg:             cfg,
		provider:        provider,
		fallback:        fallback,
		pricing:         llm.NewPricingTable(),
		engine:          engine,
		keyring:         NewKeyring(),
		tenantProviders: make(map[string]tenantProvider),
		logger:          logger,
	}

	if !cfg.Cache.Disabled {
		ttl := time.Duration(cfg.Cache.TTLSeconds) * time.Second
		if ttl <= 0 {
			ttl = 5 * time.Minute
		}
		c.cache = cache.New(cfg.Cache.MaxSizeMB, ttl, logger)
	}

	if cfg.RateLimit.GlobalRPS > 0 || cfg.RateLimit.TenantRPM > 0 || cfg.RateLimit.UserRPM > 0 {
		c.limiter = ratelimit.New(ratelimit.Config{
			Mode:      ratelimit.Mode(cfg.RateLimit.Mode),
			GlobalRPS: cfg.RateLimit.GlobalRPS,
			TenantRPM: cfg.RateLimit.TenantRPM,
			UserRPM:   cfg.RateLimit.UserRPM,
		}, logger)
	}

	var b *breaker.Breaker
	if !cfg.CircuitBreaker.Disabled {
		threshold := cfg.CircuitBreaker.FailureThreshold
		if threshold <= 0 {
			threshold = 5
		}
		recovery := time.Duration(cfg.CircuitBreaker.RecoveryTimeoutSeconds) * time.Second
		if recovery <= 0 {
			recovery = 30 * time.Second
		}
		b = breaker.NewBreaker(threshold, recovery, logger)
	}
	c.executor = breaker.NewExecutor(b, breaker.RetryConfig{
		Enabled:     !cfg.Retry.Disabled,
		MaxAttempts: cfg.Retry.MaxAttempts,
		MinWait:     parseDurationOr(cfg.Retry.MinWait, 500*time.Millisecond),
		MaxWait:     parseDurationOr(cfg.Retry.MaxWait, 8*time.Second),
	}, logger)

	return c, nil
}

// Keyring exposes per-tenant credential state for runtime updates.
func (c *Client) Keyring() *Keyring {
	return c.keyring
}

// MemoryManager returns a tenant-scoped memory view, or nil when RAG
// is disabled.
func (c *Client) MemoryManager(tenantID string) *memory.Manager {
	if c.engine == nil {
		return nil
	}
	return c.engine.Manager(tenantID)
}

// Close flushes pending memory writes and releases the store.
func (c *Client) Close() error {
	if c.engine != nil {
		c.engine.Close()
	}
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Generate runs a single-prompt completion.
func (c *Client) Generate(ctx context.Context, prompt string, opts *Options) (*llm.Response, error) {
	if opts == nil {
		opts = &Options{}
	}
	req := &llm.Request{
		Model:       opts.Model,
		Messages:    []llm.Message{llm.NewTextMessage(llm.RoleUser, prompt)},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		TopP:        opts.TopP,
		TenantID:    opts.TenantID,
		UserID:      opts.UserID,
	}
	return c.ChatCompletion(ctx, req)
}

// ChatCompletion runs a chat completion through the full pipeline:
// cache lookup, rate limiting, retry/breaker-guarded provider call,
// one fallback-model attempt, then response stamping and cache store.
func (c *Client) ChatCompletion(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if err := c.authorize(req.TenantID); err != nil {
		return nil, err
	}

	var cacheKey string
	if c.cache != nil {
		cacheKey = cache.Key(req)
		if resp, ok := c.cache.Get(cacheKey); ok {
			c.logger.Debug().Str("model", resp.Model).Msg("cache hit")
			return resp, nil
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Acquire(ctx, req.TenantID, req.UserID); err != nil {
			return nil, err
		}
	}

	provider, err := c.providerFor(req.TenantID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.executor.Execute(ctx, func(ctx context.Context) (*llm.Response, error) {
		return provider.Complete(ctx, req)
	})
	if err != nil {
		resp, err = c.tryFallback(ctx, req, err)
		if err != nil {
			return nil, err
		}
	}

	c.stamp(resp, provider.Name(), time.Since(start))
	if c.cache != nil && cacheKey != "" {
		c.cache.Set(cacheKey, resp)
	}
	return resp, nil
}

// ChatCompletionWithMemory augments the request with retrieved
// conversation context before completing, and stores the new exchange
// afterwards. Memory is partitioned per tenant and user, so the request
// must carry both TenantID and UserID; with either missing, RAG
// disabled, or no user message to retrieve against, it behaves exactly
// like ChatCompletion.
func (c *Client) ChatCompletionWithMemory(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	lastUser := lastUserMessage(req.Messages)
	if c.engine == nil || req.TenantID == "" || req.UserID == "" || lastUser == "" {
		return c.ChatCompletion(ctx, req)
	}

	memStart := time.Now()
	snippets := c.engine.RetrieveContext(ctx, lastUser, req.TenantID, req.UserID, c.cfg.RAG.RetrievalK)
	memLatency := time.Since(memStart)

	augmented := *req
	augmented.Messages = injectContext(req.Messages, snippets)

	resp, err := c.ChatCompletion(ctx, &augmented)
	if err != nil {
		return nil, err
	}

	c.engine.AddConversation(lastUser, resp.Content, req.TenantID, req.UserID, nil)

	if resp.Metadata == nil {
		resp.Metadata = make(map[string]string)
	}
	resp.Metadata["memory_latency_ms"] = fmt.Sprintf("%d", memLatency.Milliseconds())
	resp.Metadata["memory_snippets"] = fmt.Sprintf("%d", len(snippets))
	return resp, nil
}

func (c *Client) authorize(tenantID string) error {
	if tenantID == "" {
		return nil
	}
	if state, ok := c.keyring.Get(tenantID); ok && state.Disabled {
		return llm.NewAuthError(fmt.Sprintf("tenant %s is disabled", tenantID), nil)
	}
	return nil
}

// providerFor returns the adapter for a tenant, honoring a per-tenant
// API key override when the provider supports one. Adapters built for
// overrides are cached until the override changes.
func (c *Client) providerFor(tenantID string) (llm.Provider, error) {
	if tenantID == "" || c.newProvider == nil {
		return c.provider, nil
	}
	state, ok := c.keyring.Get(tenantID)
	if !ok || state.APIKey == "" {
		return c.provider, nil
	}

	c.tmu.Lock()
	defer c.tmu.Unlock()
	if cached, ok := c.tenantProviders[tenantID]; ok && cached.apiKey == state.APIKey {
		return cached.provider, nil
	}
	p, err := c.newProvider(state.APIKey)
	if err != nil {
		return nil, llm.NewAuthError(fmt.Sprintf("tenant %s key override rejected", tenantID), err)
	}
	c.tenantProviders[tenantID] = tenantProvider{apiKey: state.APIKey, provider: p}
	return p, nil
}

// tryFallback makes a single attempt on the fallback model after the
// primary's retries were exhausted. Permanent errors and breaker
// rejections propagate untouched.
func (c *Client) tryFallback(ctx context.Context, req *llm.Request, primaryErr error) (*llm.Response, error) {
	if !llm.IsRetryable(primaryErr) {
		return nil, primaryErr
	}
	if c.fallback == nil {
		return nil, llm.NewUpstreamFailure(c.provider.Name(), primaryErr)
	}

	c.logger.Warn().
		Err(primaryErr).
		Str("fallback_model", c.cfg.FallbackModel.Name).
		Msg("primary model exhausted retries, trying fallback model")

	fbReq := *req
	fbReq.Model = c.cfg.FallbackModel.Name
	resp, err := c.fallback.Complete(ctx, &fbReq)
	if err != nil {
		return nil, llm.NewUpstreamFailure(c.provider.Name(), err)
	}
	return resp, nil
}

// stamp fills in the response fields the adapter does not own.
func (c *Client) stamp(resp *llm.Response, providerName string, latency time.Duration) {
	if resp.ID == "" {
		resp.ID = uuid.NewString()
	}
	if resp.Provider == "" {
		resp.Provider = providerName
	}
	resp.Latency = latency
	resp.Cost = c.pricing.Cost(resp.Model, resp.Usage)
}

func (c *Client) openMemory() error {
	db, err := sql.Open("sqlite3", c.cfg.RAG.StorePath)
	if err != nil {
		return fmt.Errorf("open memory store: %w", err)
	}

	embedder, err := buildEmbedder(c.cfg)
	if err != nil {
		_ = db.Close()
		return err
	}

	store := memory.NewStore(db, c.logger)
	c.engine = memory.NewEngine(store, embedder, c.cfg.RAG.RetrievalK, c.logger)
	c.db = db
	return nil
}

func buildAdapter(cfg *config.Config, key *llm.ProviderKey, logger zerolog.Logger) (llm.Provider, error) {
	switch key.Provider {
	case llm.ProviderOpenAI:
		return llmopenai.NewClient(key.APIKey, key.BaseURL, key.Model, key.Organization,
			time.Duration(cfg.OpenAI.Timeout)*time.Second)
	case llm.ProviderAnthropic:
		return llmanthropic.NewClient(key.APIKey, key.Model,
			time.Duration(cfg.Anthropic.Timeout)*time.Second, logger)
	case llm.ProviderOllama:
		return llmollama.NewClient(key.Host, key.Model,
			time.Duration(cfg.Ollama.Timeout)*time.Second)
	default:
		return nil, fmt.Errorf("unknown provider: %s", key.Provider)
	}
}

// keyOverrideFactory returns a constructor that rebuilds the primary
// adapter with a different API key, or nil for keyless providers.
func keyOverrideFactory(cfg *config.Config, key *llm.ProviderKey, logger zerolog.Logger) func(string) (llm.Provider, error) {
	switch key.Provider {
	case llm.ProviderOpenAI, llm.ProviderAnthropic:
		return func(apiKey string) (llm.Provider, error) {
			k := *key
			k.APIKey = apiKey
			return buildAdapter(cfg, &k, logger)
		}
	default:
		return nil
	}
}

func buildEmbedder(cfg *config.Config) (memory.Embedder, error) {
	switch cfg.RAG.EmbeddingProvider {
	case "openai":
		return memopenai.NewEmbedder(cfg.OpenAI.APIKey, cfg.RAG.EmbeddingModel)
	case "ollama", "":
		return memollama.NewEmbedder(cfg.Ollama.Host, cfg.RAG.EmbeddingModel)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.RAG.EmbeddingProvider)
	}
}

// lastUserMessage returns the content of the most recent user message.
func lastUserMessage(messages []llm.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == llm.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

// injectContext places retrieved snippets into the message list as one
// system message. It lands after a leading system message when one
// exists, otherwise at the front, so provider-level system handling
// stays intact.
func injectContext(messages []llm.Message, snippets []string) []llm.Message {
	out := llm.CloneMessages(messages)
	if len(snippets) == 0 {
		return out
	}

	content := "Relevant context from previous conversations:\n"
	for _, s := range snippets {
		content += "\n" + s + "\n"
	}
	ctxMsg := llm.NewTextMessage(llm.RoleSystem, content)

	if len(out) > 0 && out[0].Role == llm.RoleSystem {
		rest := append([]llm.Message{ctxMsg}, out[1:]...)
		return append(out[:1], rest...)
	}
	return append([]llm.Message{ctxMsg}, out...)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
