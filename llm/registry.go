package llm

import (
	"fmt"
	"os"
	"sync"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
)

// ProviderKey uniquely identifies a resolved provider configuration.
// Adapter construction happens in the client package to avoid an import
// cycle with the adapter subpackages; the registry only resolves which
// provider to use and with what credentials.
type ProviderKey struct {
	Provider     string
	Model        string
	APIKey       string // For credential-based providers
	Host         string // For Ollama
	BaseURL      string // For OpenAI
	Organization string // For OpenAI
}

// ProviderConfig holds the configuration needed for provider resolution.
// This avoids import cycles by not importing the config package.
type ProviderConfig struct {
	AnthropicAPIKey string
	AnthropicModel  string
	OllamaHost      string
	OllamaModel     string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string
	OpenAIOrg       string
}

// Registry resolves the configured provider once at construction time.
// There is no per-call string dispatch: the client asks the registry
// for a ProviderKey during setup and holds the resulting adapter for
// its lifetime.
type Registry struct {
	mu     sync.RWMutex
	config *ProviderConfig
}

// NewRegistry creates a Registry over the given provider config.
func NewRegistry(cfg *ProviderConfig) *Registry {
	return &Registry{config: cfg}
}

// IsConfigured checks if a provider has the required configuration
// (API keys, hosts, etc.).
func (r *Registry) IsConfigured(provider string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch provider {
	case ProviderAnthropic:
		return r.anthropicKey() != ""
	case ProviderOllama:
		// Ollama doesn't require an API key, just a host (which has a default)
		return true
	case ProviderOpenAI:
		return r.openAIKey() != ""
	default:
		return false
	}
}

// Resolve returns the ProviderKey for the named provider, applying an
// optional model override. Credentials fall back to the conventional
// environment variables when the config leaves them empty.
func (r *Registry) Resolve(provider, modelOverride string) (*ProviderKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := &ProviderKey{
		Provider: provider,
		Model:    modelOverride,
	}

	switch provider {
	case ProviderAnthropic:
		apiKey := r.anthropicKey()
		if apiKey == "" {
			return nil, fmt.Errorf("anthropic API key not configured")
		}
		key.APIKey = apiKey
		if key.Model == "" {
			key.Model = r.config.AnthropicModel
		}
		if key.Model == "" {
			return nil, fmt.Errorf("anthropic model not specified and no default configured")
		}

	case ProviderOllama:
		host := r.config.OllamaHost
		if host == "" {
			host = os.Getenv("OLLAMA_HOST")
		}
		if host == "" {
			host = "http://localhost:11434"
		}
		key.Host = host
		if key.Model == "" {
			key.Model = r.config.OllamaModel
		}
		if key.Model == "" {
			return nil, fmt.Errorf("ollama model not specified and no default configured")
		}

	case ProviderOpenAI:
		apiKey := r.openAIKey()
		if apiKey == "" {
			return nil, fmt.Errorf("openai API key not configured")
		}
		key.APIKey = apiKey
		baseURL := r.config.OpenAIBaseURL
		if baseURL == "" {
			baseURL = os.Getenv("OPENAI_BASE_URL")
		}
		key.BaseURL = baseURL
		org := r.config.OpenAIOrg
		if org == "" {
			org = os.Getenv("OPENAI_ORG_ID")
		}
		key.Organization = org
		if key.Model == "" {
			key.Model = r.config.OpenAIModel
		}
		if key.Model == "" {
			return nil, fmt.Errorf("openai model not specified and no default configured")
		}

	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}

	return key, nil
}

func (r *Registry) anthropicKey() string {
	if r.config.AnthropicAPIKey != "" {
		return r.config.AnthropicAPIKey
	}
	return os.Getenv("ANTHROPIC_API_KEY")
}

func (r *Registry) openAIKey() string {
	if r.config.OpenAIAPIKey != "" {
		return r.config.OpenAIAPIKey
	}
	return os.Getenv("OPENAI_API_KEY")
}
