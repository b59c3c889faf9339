package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OLLAMA_HOST", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider != "openai" {
		t.Errorf("Expected default provider openai, got %q", cfg.Provider)
	}
	if cfg.Cache.Disabled || cfg.Cache.TTLSeconds != 300 {
		t.Errorf("Expected default cache config, got %+v", cfg.Cache)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("Expected default 3 retry attempts, got %d", cfg.Retry.MaxAttempts)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	path := writeConfig(t, `
provider: anthropic
anthropic:
  model: claude-sonnet-4-20250514
cache:
  ttl_seconds: 60
rate_limit:
  mode: queue
  global_rps: 10
retry:
  disabled: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider != "anthropic" {
		t.Errorf("Expected provider anthropic, got %q", cfg.Provider)
	}
	if cfg.Anthropic.Model != "claude-sonnet-4-20250514" {
		t.Errorf("Expected model override, got %q", cfg.Anthropic.Model)
	}
	if cfg.Cache.TTLSeconds != 60 {
		t.Errorf("Expected ttl override, got %d", cfg.Cache.TTLSeconds)
	}
	if cfg.RateLimit.Mode != "queue" || cfg.RateLimit.GlobalRPS != 10 {
		t.Errorf("Expected rate limit overrides, got %+v", cfg.RateLimit)
	}
	// A default-on feature can be switched off.
	if !cfg.Retry.Disabled {
		t.Error("Expected retry to be disabled by the file")
	}
	// Untouched sections keep their defaults.
	if cfg.Ollama.Host != "http://localhost:11434" {
		t.Errorf("Expected default ollama host to survive, got %q", cfg.Ollama.Host)
	}
}

func TestLoadMalformedFileFails(t *testing.T) {
	path := writeConfig(t, "provider: [not: valid")
	if _, err := Load(path); err == nil {
		t.Error("Expected error for malformed yaml")
	}
}

func TestEnvFillsMissingSecrets(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("ANTHROPIC_API_KEY", "ak-env")
	path := writeConfig(t, `
openai:
  api_key: sk-file
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OpenAI.APIKey != "sk-file" {
		t.Errorf("Expected file value to win over env, got %q", cfg.OpenAI.APIKey)
	}
	if cfg.Anthropic.APIKey != "ak-env" {
		t.Errorf("Expected env to fill missing key, got %q", cfg.Anthropic.APIKey)
	}
}

func TestGetConfigPathEnvOverride(t *testing.T) {
	t.Setenv("LLMCORE_CONFIG_PATH", "/tmp/custom.yaml")
	if got := GetConfigPath(); got != "/tmp/custom.yaml" {
		t.Errorf("Expected env path, got %q", got)
	}
}
