// Package gateway wires a configuration into a running copilot.
package gateway

import (
	"context"
	"fmt"

	"copilots/internal/chat"
	"copilots/internal/config"
	"copilots/internal/findb"
	"copilots/internal/functions"
	"copilots/internal/llm"
	"copilots/internal/profiles"

	log "github.com/sirupsen/logrus"
)

// Copilot is everything the HTTP layer needs for one profile.
type Copilot struct {
	Profile profiles.Profile
	Service *chat.Service
	Config  config.Config
}

// Build validates cfg and constructs the provider adapter, the function
// registry and the orchestrator.
func Build(ctx context.Context, cfg config.Config, logger log.FieldLogger) (*Copilot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	profile, _ := profiles.Get(cfg.Profile)
	provider, _ := llm.ParseProvider(cfg.Provider)

	adapterCfg := llm.Config{
		Provider: provider,
		Model:    cfg.Model,
		BaseURL:  cfg.BaseURL,
		APIKey:   cfg.APIKey,
		Headers:  profile.Headers,
	}
	if provider == llm.ProviderAgent {
		if adapterCfg.BaseURL == "" {
			adapterCfg.BaseURL = cfg.AgentURL
		}
		adapterCfg.APIKey = cfg.OpenBBPAT
	}
	adapter, err := llm.NewAdapter(ctx, adapterCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize adapter: %w", err)
	}

	registry, err := buildRegistry(profile, cfg)
	if err != nil {
		return nil, err
	}

	params := chat.Params{Model: cfg.Model, MaxTokens: cfg.MaxTokens}
	if cfg.Temperature != nil {
		params.Temperature = *cfg.Temperature
	}
	logger = logger.WithFields(log.Fields{"profile": profile.Name, "provider": provider})

	opts := []chat.ServiceOption{
		chat.WithPrompt(profile.ChatPrompt(params)),
		chat.WithLogger(logger),
		chat.WithMaxFunctionCalls(cfg.MaxFunctionCalls),
		chat.WithTimeout(cfg.UpstreamTimeout.Std()),
	}
	if registry != nil {
		opts = append(opts, chat.WithResolver(registry))
	}

	logger.WithField("model", cfg.Model).Info("copilot ready")
	return &Copilot{
		Profile: profile,
		Service: chat.NewService(adapter, opts...),
		Config:  cfg,
	}, nil
}

func buildRegistry(p profiles.Profile, cfg config.Config) (*functions.Registry, error) {
	if len(p.Functions) == 0 {
		return nil, nil
	}
	registry := functions.NewRegistry()
	for _, name := range p.Functions {
		switch name {
		case profiles.FuncWidgetData:
			registry.Register(functions.NewWidgetData())
		case profiles.FuncSearchDocuments:
			client, err := findb.NewClient(cfg.FindbURL, cfg.FindbSecret)
			if err != nil {
				return nil, err
			}
			registry.Register(functions.NewSearchDocuments(client))
		default:
			return nil, fmt.Errorf("profile %s offers unknown function %q", p.Name, name)
		}
	}
	return registry, nil
}
