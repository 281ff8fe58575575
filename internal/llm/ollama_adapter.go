package llm

import (
	"github.com/tmc/langchaingo/llms/ollama"
)

func NewOllamaAdapter(cfg Config) (*LangchainAdapter, error) {
	opts := []ollama.Option{ollama.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, ollama.WithHTTPClient(cfg.HTTPClient))
	}
	client, err := ollama.New(opts...)
	if err != nil {
		return nil, err
	}
	return NewLangchainAdapter(client, cfg.Model), nil
}
