package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"copilots/internal/chat"
)

type Provider string

const (
	ProviderOpenAI     Provider = "openai"
	ProviderMistral    Provider = "mistral"
	ProviderPerplexity Provider = "perplexity"
	ProviderOpenRouter Provider = "openrouter"
	ProviderOllama     Provider = "ollama"
	ProviderAnthropic  Provider = "anthropic"
	ProviderGoogleAI   Provider = "googleai"
	ProviderAgent      Provider = "agent"
)

// Providers lists every provider NewAdapter accepts.
var Providers = []Provider{
	ProviderOpenAI, ProviderMistral, ProviderPerplexity, ProviderOpenRouter,
	ProviderOllama, ProviderAnthropic, ProviderGoogleAI, ProviderAgent,
}

var defaultBaseURLs = map[Provider]string{
	ProviderMistral:    "https://api.mistral.ai/v1",
	ProviderPerplexity: "https://api.perplexity.ai",
	ProviderOpenRouter: "https://openrouter.ai/api/v1",
}

// ParseProvider resolves a provider name. "gemini" is accepted for googleai.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	if p == "gemini" {
		return ProviderGoogleAI, nil
	}
	for _, known := range Providers {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unsupported provider: %s", s)
}

// RequiresAPIKey reports whether the provider is a hosted API that needs a key.
func (p Provider) RequiresAPIKey() bool {
	switch p {
	case ProviderOllama, ProviderAgent:
		return false
	default:
		return true
	}
}

// Config selects and configures one provider.
type Config struct {
	Provider Provider
	Model    string
	BaseURL  string
	APIKey   string
	// Headers are added to every upstream request.
	Headers map[string]string
	// HTTPClient overrides the transport for providers that accept one.
	HTTPClient *http.Client
}

// BaseURLOrDefault returns the configured base URL or the provider's default.
func (c Config) BaseURLOrDefault() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return defaultBaseURLs[c.Provider]
}

func NewAdapter(ctx context.Context, cfg Config) (chat.Adapter, error) {
	var (
		adapter *LangchainAdapter
		err     error
	)
	switch cfg.Provider {
	case ProviderOpenAI, ProviderMistral, ProviderPerplexity, ProviderOpenRouter:
		return NewOpenAIAdapter(cfg), nil
	case ProviderAgent:
		agent, err := NewAgentAdapter(cfg)
		if err != nil {
			return nil, err
		}
		return agent, nil
	case ProviderOllama:
		adapter, err = NewOllamaAdapter(cfg)
	case ProviderAnthropic:
		adapter, err = NewAnthropicAdapter(cfg)
	case ProviderGoogleAI:
		adapter, err = NewGeminiAdapter(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("%s client: %w", cfg.Provider, err)
	}
	return adapter, nil
}
