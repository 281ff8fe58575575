package llm

import (
	"github.com/tmc/langchaingo/llms/anthropic"
)

func NewAnthropicAdapter(cfg Config) (*LangchainAdapter, error) {
	opts := []anthropic.Option{anthropic.WithModel(cfg.Model)}
	if cfg.APIKey != "" {
		opts = append(opts, anthropic.WithToken(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, anthropic.WithHTTPClient(cfg.HTTPClient))
	}
	client, err := anthropic.New(opts...)
	if err != nil {
		return nil, err
	}
	return NewLangchainAdapter(client, cfg.Model), nil
}
