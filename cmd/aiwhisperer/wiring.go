package main

import (
	"fmt"

	"github.com/haasonsaas/aiwhisperer/internal/aloop"
	"github.com/haasonsaas/aiwhisperer/internal/config"
	ctxstore "github.com/haasonsaas/aiwhisperer/internal/context"
	"github.com/haasonsaas/aiwhisperer/internal/llm"
	"github.com/haasonsaas/aiwhisperer/internal/mailbox"
	"github.com/haasonsaas/aiwhisperer/internal/monitor"
	"github.com/haasonsaas/aiwhisperer/internal/observability"
	"github.com/haasonsaas/aiwhisperer/internal/server"
	"github.com/haasonsaas/aiwhisperer/internal/tooling"
)

const defaultConfigPath = "aiwhisperer.yaml"

// loadConfig reads and validates the configuration file at path, defaulting
// to defaultConfigPath when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = defaultConfigPath
	}
	return config.Load(path)
}

// buildProvider constructs the LLM provider named by cfg.LLM.Provider.
// Unrecognised provider names fall back to Anthropic, the primary backend
// this module demonstrates (spec.md §6's LLM interface is provider-agnostic;
// this module ships two concrete implementations).
func buildProvider(cfg *config.Config) (llm.Provider, error) {
	apiKey := cfg.LLM.LLMAPIKey()
	if apiKey == "" {
		return nil, fmt.Errorf("environment variable %s is not set", cfg.LLM.APIKeyEnv)
	}

	switch cfg.LLM.Provider {
	case "openai":
		return llm.NewOpenAIProvider(llm.OpenAIConfig{APIKey: apiKey, DefaultModel: cfg.LLM.Model})
	default:
		return llm.NewAnthropicProvider(llm.AnthropicConfig{
			APIKey:       apiKey,
			BaseURL:      cfg.LLM.BaseURL,
			DefaultModel: cfg.LLM.Model,
		})
	}
}

// components bundles everything a running session needs, built once per
// command invocation from the loaded configuration.
type components struct {
	cfg        *config.Config
	logger     *observability.Logger
	events     *observability.MemoryEventStore
	recorder   *observability.EventRecorder
	registry   *tooling.Registry
	dispatcher *tooling.Dispatcher
	monitor    *monitor.Monitor
	mailbox    *mailbox.Mailbox
	manager    *server.Manager
	persister  *ctxstore.SQLitePersister
}

// Close releases any resources buildComponents opened, such as a
// configured SQLite context store.
func (c *components) Close() error {
	if c.persister != nil {
		return c.persister.Close()
	}
	return nil
}

// buildComponents wires C1-C6 together from cfg, registering tools into
// an otherwise-empty Tool Registry: concrete tool bodies are out of scope
// (spec.md §1), so callers that need tools register them after this call
// returns, via result.registry.Register.
func buildComponents(cfg *config.Config) (*components, error) {
	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger(observability.LogConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	events := observability.NewMemoryEventStore(500)
	recorder := observability.NewEventRecorder(events, logger)

	registry := tooling.NewRegistry()
	dispatcher := tooling.NewDispatcher(registry, cfg.Tools.ToDispatchConfig(), recorder)
	providers := llm.NewRegistry(provider)
	mon := monitor.New(events, recorder, cfg.Monitor.ToMonitorConfig())
	mbox := mailbox.New()

	var persister *ctxstore.SQLitePersister
	if cfg.Context.SQLitePath != "" {
		persister, err = ctxstore.OpenSQLitePersister(cfg.Context.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open context store: %w", err)
		}
	}

	loopConfig := aloop.Config{
		Model:                   cfg.LLM.Model,
		Temperature:             cfg.LLM.Temperature,
		HasTemperature:          true,
		MaxConsecutiveToolCalls: cfg.Session.MaxConsecutiveToolCalls,
	}
	// persister is only assigned to the ctxstore.Persister interface when
	// non-nil, so a *SQLitePersister(nil) never leaks through as a non-nil
	// interface value (the classic typed-nil trap).
	var storePersister ctxstore.Persister
	if persister != nil {
		storePersister = persister
	}
	manager := server.NewManager(providers, registry, dispatcher, recorder, events, mon, mbox, loopConfig, storePersister)

	return &components{
		cfg:        cfg,
		logger:     logger,
		events:     events,
		recorder:   recorder,
		registry:   registry,
		dispatcher: dispatcher,
		monitor:    mon,
		mailbox:    mbox,
		manager:    manager,
		persister:  persister,
	}, nil
}
