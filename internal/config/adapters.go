package config

import (
	"os"

	"github.com/haasonsaas/aiwhisperer/internal/doctor"
	"github.com/haasonsaas/aiwhisperer/internal/intervene"
	"github.com/haasonsaas/aiwhisperer/internal/monitor"
	"github.com/haasonsaas/aiwhisperer/internal/tooling"
)

// ToMonitorConfig adapts the loaded configuration to monitor.Config, so
// callers never have to duplicate these field names at the wiring site.
func (c MonitorConfig) ToMonitorConfig() monitor.Config {
	return monitor.Config{
		CheckInterval:          c.CheckInterval,
		StallThreshold:         c.StallThreshold,
		ToolLoopThreshold:      c.ToolLoopThreshold,
		HighErrorRateThreshold: c.HighErrorRateThreshold,
	}
}

// ToInterveneConfig adapts the loaded configuration to intervene.Config.
func (c InterveneConfig) ToInterveneConfig() intervene.Config {
	return intervene.Config{
		MaxInterventionsPerSession: c.MaxInterventionsPerSession,
		RecentFailureWindow:        c.RecentFailureWindow,
		FailureThreshold:           c.FailureThreshold,
		RetryDelay:                 c.RetryDelay,
		StrategyTimeout:            c.StrategyTimeout,
		PostConditionDelay:         c.PostConditionDelay,
		MaxRestartAttempts:         c.MaxRestartAttempts,
	}
}

// ToDispatchConfig adapts the loaded configuration to
// tooling.DispatchConfig.
func (c ToolsConfig) ToDispatchConfig() tooling.DispatchConfig {
	return tooling.DispatchConfig{
		Concurrency:    c.Concurrency,
		PerCallTimeout: c.PerCallTimeout,
	}
}

// ToValidatorConfig builds the doctor.ValidatorConfig that validates
// this configuration's workspace, LLM API key, and whatever dependency
// probes the caller passes in deps (none when deps is nil). cfg.LLM.APIKeyEnv is
// named, not resolved, here — doctor.Validate checks presence only and
// never receives the value.
func (c *Config) ToValidatorConfig(deps []doctor.DependencyProbe) doctor.ValidatorConfig {
	return doctor.ValidatorConfig{
		WorkspacePath: c.Workspace.Path,
		RequiredEnvVars: append([]string{c.LLM.APIKeyEnv}, c.HealthCheck.RequiredEnvVar...),
		RequiredConfigKeys: map[string]string{
			"llm.model":    c.LLM.Model,
			"llm.provider": c.LLM.Provider,
		},
		Dependencies: deps,
	}
}

// LLMAPIKey resolves the configured API key env var's current value.
// Callers should use this only to hand the key to the LLM client, never
// to log or display it.
func (c LLMConfig) LLMAPIKey() string {
	return os.Getenv(c.APIKeyEnv)
}
