// Package config loads and validates the layered YAML+environment
// configuration for the orchestration server, following the teacher's
// Load/applyDefaults/applyEnvOverrides/validateConfig shape.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Version     int               `yaml:"version"`
	Server      ServerConfig      `yaml:"server"`
	Workspace   WorkspaceConfig   `yaml:"workspace"`
	LLM         LLMConfig         `yaml:"llm"`
	Session     SessionConfig     `yaml:"session"`
	Context     ContextConfig     `yaml:"context"`
	Monitor     MonitorConfig     `yaml:"monitor"`
	Intervene   InterveneConfig   `yaml:"intervene"`
	Tools       ToolsConfig       `yaml:"tools"`
	Batch       BatchConfig       `yaml:"batch"`
	HealthCheck HealthCheckConfig `yaml:"health_check"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig configures the process's own listening surface, when run
// as a long-lived service rather than a one-shot CLI.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// WorkspaceConfig locates the workspace a session operates against.
type WorkspaceConfig struct {
	Path string `yaml:"path"`
}

// LLMConfig configures the chat-completion provider the AI Loop (C4)
// talks to, spec.md §6's "LLM interface (consumed)".
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Temperature float64 `yaml:"temperature"`
	BaseURL     string  `yaml:"base_url"`
}

// SessionConfig bounds a single session's AI Loop behavior.
type SessionConfig struct {
	// MaxConsecutiveToolCalls is spec.md §7's tool_loop_limit.
	MaxConsecutiveToolCalls int           `yaml:"max_consecutive_tool_calls"`
	ToolCallTimeout         time.Duration `yaml:"tool_call_timeout"`
	PauseCheckInterval      time.Duration `yaml:"pause_check_interval"`
}

// ContextConfig configures the Context Store's (C3) optional durable
// backing. An empty SQLitePath keeps sessions purely in-memory, which is
// the default and what every test uses.
type ContextConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// MonitorConfig mirrors internal/monitor.Config's fields so it can be
// loaded from YAML and handed to monitor.New.
type MonitorConfig struct {
	CheckInterval          time.Duration `yaml:"check_interval"`
	StallThreshold         time.Duration `yaml:"stall_threshold"`
	ToolLoopThreshold      int           `yaml:"tool_loop_threshold"`
	HighErrorRateThreshold float64       `yaml:"high_error_rate_threshold"`
}

// InterveneConfig mirrors internal/intervene.Config's fields.
type InterveneConfig struct {
	MaxInterventionsPerSession int           `yaml:"max_interventions_per_session"`
	RecentFailureWindow        int           `yaml:"recent_failure_window"`
	FailureThreshold           int           `yaml:"failure_threshold"`
	RetryDelay                 time.Duration `yaml:"retry_delay"`
	StrategyTimeout            time.Duration `yaml:"strategy_timeout"`
	PostConditionDelay         time.Duration `yaml:"post_condition_delay"`
	MaxRestartAttempts         int           `yaml:"max_restart_attempts"`
}

// ToolsConfig mirrors internal/tooling.DispatchConfig's fields.
type ToolsConfig struct {
	Concurrency    int           `yaml:"concurrency"`
	PerCallTimeout time.Duration `yaml:"per_call_timeout"`
}

// BatchConfig configures the Batch Script Runtime (C7).
type BatchConfig struct {
	ScriptsDir string `yaml:"scripts_dir"`
}

// HealthCheckConfig configures the health-check runner (C9).
type HealthCheckConfig struct {
	ScriptsDir     string        `yaml:"scripts_dir"`
	ScriptTimeout  time.Duration `yaml:"script_timeout"`
	RequiredEnvVar []string      `yaml:"required_env_vars"`
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads path, expands environment variables inline, decodes the
// single YAML document strictly (unknown fields rejected), layers
// environment-variable overrides over it, applies defaults, and
// validates the result — the teacher's Load pipeline.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: expected single document")
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyWorkspaceDefaults(&cfg.Workspace)
	applyLLMDefaults(&cfg.LLM)
	applySessionDefaults(&cfg.Session)
	applyMonitorDefaults(&cfg.Monitor)
	applyInterveneDefaults(&cfg.Intervene)
	applyToolsDefaults(&cfg.Tools)
	applyBatchDefaults(&cfg.Batch)
	applyHealthCheckDefaults(&cfg.HealthCheck)
	applyLoggingDefaults(&cfg.Logging)
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8787
	}
}

func applyWorkspaceDefaults(cfg *WorkspaceConfig) {
	if cfg.Path == "" {
		cfg.Path = "."
	}
}

func applyLLMDefaults(cfg *LLMConfig) {
	if cfg.Provider == "" {
		cfg.Provider = "openrouter"
	}
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENROUTER_API_KEY"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}
}

func applySessionDefaults(cfg *SessionConfig) {
	if cfg.MaxConsecutiveToolCalls == 0 {
		cfg.MaxConsecutiveToolCalls = 25
	}
	if cfg.ToolCallTimeout == 0 {
		cfg.ToolCallTimeout = 30 * time.Second
	}
	if cfg.PauseCheckInterval == 0 {
		cfg.PauseCheckInterval = 100 * time.Millisecond
	}
}

func applyMonitorDefaults(cfg *MonitorConfig) {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 5 * time.Second
	}
	if cfg.StallThreshold == 0 {
		cfg.StallThreshold = 30 * time.Second
	}
	if cfg.ToolLoopThreshold == 0 {
		cfg.ToolLoopThreshold = 5
	}
	if cfg.HighErrorRateThreshold == 0 {
		cfg.HighErrorRateThreshold = 0.2
	}
}

func applyInterveneDefaults(cfg *InterveneConfig) {
	if cfg.MaxInterventionsPerSession == 0 {
		cfg.MaxInterventionsPerSession = 10
	}
	if cfg.RecentFailureWindow == 0 {
		cfg.RecentFailureWindow = 5
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 2
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.StrategyTimeout == 0 {
		cfg.StrategyTimeout = 30 * time.Second
	}
	if cfg.PostConditionDelay == 0 {
		cfg.PostConditionDelay = 2 * time.Second
	}
	if cfg.MaxRestartAttempts == 0 {
		cfg.MaxRestartAttempts = 2
	}
}

func applyToolsDefaults(cfg *ToolsConfig) {
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 4
	}
	if cfg.PerCallTimeout == 0 {
		cfg.PerCallTimeout = 30 * time.Second
	}
}

func applyBatchDefaults(cfg *BatchConfig) {
	if cfg.ScriptsDir == "" {
		cfg.ScriptsDir = "scripts"
	}
}

func applyHealthCheckDefaults(cfg *HealthCheckConfig) {
	if cfg.ScriptsDir == "" {
		cfg.ScriptsDir = "healthchecks"
	}
	if cfg.ScriptTimeout == 0 {
		cfg.ScriptTimeout = 30 * time.Second
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}
}

// applyEnvOverrides lets a handful of operationally-significant fields
// be set without editing the YAML file, the same override surface the
// teacher's applyEnvOverrides exposes for its own server/auth fields.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	if value := strings.TrimSpace(os.Getenv("AIWHISPERER_HOST")); value != "" {
		cfg.Server.Host = value
	}
	if value := strings.TrimSpace(os.Getenv("AIWHISPERER_PORT")); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			cfg.Server.Port = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("AIWHISPERER_WORKSPACE")); value != "" {
		cfg.Workspace.Path = value
	}
	if value := strings.TrimSpace(os.Getenv("AIWHISPERER_LLM_MODEL")); value != "" {
		cfg.LLM.Model = value
	}
}

// ConfigValidationError collects every validation issue found, rather
// than failing on the first one, so an operator sees the whole picture
// in one pass.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return nil
	}
	var issues []string

	if verr := ValidateVersion(cfg.Version); verr != nil {
		issues = append(issues, verr.Error())
	}
	if cfg.LLM.Model == "" {
		issues = append(issues, "llm.model must be set")
	}
	if cfg.Session.MaxConsecutiveToolCalls <= 0 {
		issues = append(issues, "session.max_consecutive_tool_calls must be positive")
	}
	if cfg.Monitor.HighErrorRateThreshold <= 0 || cfg.Monitor.HighErrorRateThreshold > 1 {
		issues = append(issues, "monitor.high_error_rate_threshold must be in (0, 1]")
	}
	if cfg.Tools.Concurrency <= 0 {
		issues = append(issues, "tools.concurrency must be positive")
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}
