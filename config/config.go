// Package config loads the library configuration from YAML, merging
// file values over built-in defaults. Secrets come from the
// environment unless set explicitly in the file.
//
// Default-on features use `disabled` toggles: the merge only applies
// non-zero file values, so an `enabled: false` could never switch a
// default-on feature off.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// FallbackModelConfig controls the one-shot fallback after retries on
// the primary model are exhausted.
type FallbackModelConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Name    string `yaml:"name,omitempty"`
}

// OpenAIConfig represents configuration for the OpenAI provider.
type OpenAIConfig struct {
	APIKey       string `yaml:"api_key,omitempty"`      // falls back to OPENAI_API_KEY
	BaseURL      string `yaml:"base_url,omitempty"`     // custom base URL (default: official API)
	Model        string `yaml:"model,omitempty"`        // default model name
	Organization string `yaml:"organization,omitempty"` // organization ID
	Timeout      int    `yaml:"timeout,omitempty"`      // request timeout in seconds
}

// AnthropicConfig represents configuration for the Anthropic provider.
type AnthropicConfig struct {
	APIKey  string `yaml:"api_key,omitempty"` // falls back to ANTHROPIC_API_KEY
	Model   string `yaml:"model,omitempty"`
	Timeout int    `yaml:"timeout,omitempty"`
}

// OllamaConfig represents configuration for the Ollama provider.
type OllamaConfig struct {
	Host    string `yaml:"host,omitempty"` // falls back to OLLAMA_HOST
	Model   string `yaml:"model,omitempty"`
	Timeout int    `yaml:"timeout,omitempty"`
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	Disabled   bool `yaml:"disabled,omitempty"` // disable the response cache (enabled by default)
	TTLSeconds int  `yaml:"ttl_seconds,omitempty"`
	MaxSizeMB  int  `yaml:"max_size_mb,omitempty"`
}

// RateLimitConfig controls the multi-scope limiter. Zero limits
// disable the corresponding scope.
type RateLimitConfig struct {
	Mode      string `yaml:"mode,omitempty"` // "reject" or "queue"
	GlobalRPS int    `yaml:"global_rps,omitempty"`
	TenantRPM int    `yaml:"tenant_rpm,omitempty"`
	UserRPM   int    `yaml:"user_rpm,omitempty"`
}

// RetryConfig controls retries on transient provider errors.
type RetryConfig struct {
	Disabled    bool   `yaml:"disabled,omitempty"` // disable retries (enabled by default)
	MaxAttempts int    `yaml:"max_attempts,omitempty"`
	MinWait     string `yaml:"min_wait,omitempty"` // Go duration, e.g. "500ms"
	MaxWait     string `yaml:"max_wait,omitempty"`
}

// CircuitBreakerConfig controls the provider circuit breaker.
type CircuitBreakerConfig struct {
	Disabled               bool `yaml:"disabled,omitempty"` // disable the breaker (enabled by default)
	FailureThreshold       int  `yaml:"failure_threshold,omitempty"`
	RecoveryTimeoutSeconds int  `yaml:"recovery_timeout_seconds,omitempty"`
}

// RAGConfig controls conversation memory.
type RAGConfig struct {
	Enabled           bool   `yaml:"enabled,omitempty"`
	StorePath         string `yaml:"store_path,omitempty"`
	EmbeddingProvider string `yaml:"embedding_provider,omitempty"` // "ollama" or "openai"
	EmbeddingModel    string `yaml:"embedding_model,omitempty"`
	RetrievalK        int    `yaml:"retrieval_k,omitempty"`
}

// Config is the top-level library configuration.
type Config struct {
	Provider      string              `yaml:"provider,omitempty"` // "openai", "anthropic" or "ollama"
	FallbackModel FallbackModelConfig `yaml:"fallback_model,omitempty"`

	OpenAI    OpenAIConfig    `yaml:"openai,omitempty"`
	Anthropic AnthropicConfig `yaml:"anthropic,omitempty"`
	Ollama    OllamaConfig    `yaml:"ollama,omitempty"`

	Cache          CacheConfig          `yaml:"cache,omitempty"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit,omitempty"`
	Retry          RetryConfig          `yaml:"retry,omitempty"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker,omitempty"`
	RAG            RAGConfig            `yaml:"rag,omitempty"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Provider: "openai",
		OpenAI: OpenAIConfig{
			Model:   "gpt-4o-mini",
			Timeout: 60,
		},
		Anthropic: AnthropicConfig{
			Model:   "claude-haiku-4-5",
			Timeout: 60,
		},
		Ollama: OllamaConfig{
			Host:    "http://localhost:11434",
			Model:   "llama3.2",
			Timeout: 120,
		},
		Cache: CacheConfig{
			TTLSeconds: 300,
			MaxSizeMB:  64,
		},
		RateLimit: RateLimitConfig{
			Mode: "reject",
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			MinWait:     "500ms",
			MaxWait:     "8s",
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold:       5,
			RecoveryTimeoutSeconds: 30,
		},
		RAG: RAGConfig{
			StorePath:         "llmcore.db",
			EmbeddingProvider: "ollama",
			RetrievalK:        3,
		},
	}
}

// GetConfigPath returns the config file path, honoring
// LLMCORE_CONFIG_PATH.
func GetConfigPath() string {
	if envPath := os.Getenv("LLMCORE_CONFIG_PATH"); envPath != "" {
		return expandPath(envPath)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.llmcore/config.yaml"
	}
	return filepath.Join(homeDir, ".llmcore", "config.yaml")
}

// Load reads the YAML file at path and merges it over Defaults. A
// missing file yields the defaults; a malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(expandPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return &cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := mergo.Merge(&cfg, fileCfg, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merge config: %w", err)
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides fills secrets and hosts from the environment when
// the file left them empty. File values win over the environment.
func applyEnvOverrides(cfg *Config) {
	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Anthropic.APIKey == "" {
		cfg.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" && cfg.Ollama.Host == Defaults().Ollama.Host {
		cfg.Ollama.Host = host
	}
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
