package llm

import (
	"context"

	"github.com/tmc/langchaingo/llms/googleai"
)

func NewGeminiAdapter(ctx context.Context, cfg Config) (*LangchainAdapter, error) {
	model := cfg.Model
	if model == "" {
		model = googleai.DefaultOptions().DefaultModel
	}
	opts := []googleai.Option{googleai.WithDefaultModel(model)}
	if cfg.APIKey != "" {
		opts = append(opts, googleai.WithAPIKey(cfg.APIKey))
	}
	client, err := googleai.New(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return NewLangchainAdapter(client, model), nil
}
