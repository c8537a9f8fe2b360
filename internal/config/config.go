// Package config loads the collector core's configuration from a YAML
// file, overlaid with environment variables, per spec.md §6.4 and the
// "no global configuration singletons" redesign flag (§9): a *Config is
// constructed once and threaded through orchestrator/collector/review
// constructors rather than read from ambient global state.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	sharederrors "github.com/jordigilh/realestate-collector/pkg/shared/errors"
)

// ServerConfig controls the illustrative command-surface HTTP adapter
// (pkg/coreapi/httpfacade) that fronts the core for the host application.
type ServerConfig struct {
	ListenPort  string `yaml:"listen_port"`
	MetricsPort string `yaml:"metrics_port"`
}

// LLMConfig describes the vendor endpoint and invocation limits for
// pkg/llm (spec.md §6.2).
type LLMConfig struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	Timeout     time.Duration `yaml:"timeout"`
	RetryCount  int           `yaml:"retry_count"`
	Temperature float32       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Concurrency int           `yaml:"concurrency"`
}

// DatabaseConfig is the YAML-facing counterpart of database.Config;
// cmd/collectorctl overlays it onto database.DefaultConfig() rather than
// duplicating field validation.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// OrchestratorConfig controls the job worker pool (spec.md §4.E, §6.4).
type OrchestratorConfig struct {
	WorkerPoolSize     int           `yaml:"worker_pool_size"`
	JobDeadline        time.Duration `yaml:"job_deadline"`
	RetryBase          time.Duration `yaml:"retry_base"`
	RetryCap           time.Duration `yaml:"retry_cap"`
	QueuePollInterval  time.Duration `yaml:"queue_poll_interval"`
}

// ReviewConfig controls auto-approval policy (spec.md §4.D).
type ReviewConfig struct {
	AutoApproveMinConfidence float32  `yaml:"auto_approve_min_confidence"`
	AutoApproveEntityTypes   []string `yaml:"auto_approve_entity_types"`
}

// LoggingConfig controls the logrus root logger shared by every
// component (internal/config, pkg/shared/logging).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the complete, validated configuration for a core instance.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	LLM          LLMConfig          `yaml:"llm"`
	Database     DatabaseConfig     `yaml:"database"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Review       ReviewConfig       `yaml:"review"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// defaults returns a Config pre-populated with spec.md §6.4's documented
// defaults, before the file and environment overlays apply.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			ListenPort:  "8080",
			MetricsPort: "9090",
		},
		LLM: LLMConfig{
			Provider:    "anthropic",
			Model:       "claude-3-5-sonnet-20241022",
			Timeout:     60 * time.Second,
			RetryCount:  3,
			Temperature: 0.2,
			MaxTokens:   4096,
			Concurrency: 10,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "collector_user",
			Database: "realestate_collector",
			SSLMode:  "disable",
		},
		Orchestrator: OrchestratorConfig{
			WorkerPoolSize:    4,
			JobDeadline:       120 * time.Second,
			RetryBase:         60 * time.Second,
			RetryCap:          time.Hour,
			QueuePollInterval: time.Second,
		},
		Review: ReviewConfig{
			AutoApproveMinConfidence: 0.85,
			AutoApproveEntityTypes:   []string{"community", "builder"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path, unmarshals it over the documented defaults, overlays
// environment variables, validates the result, and returns it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, sharederrors.FailedTo("read config file", err)
	}

	config := defaults()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, sharederrors.ParseError("config file", "yaml", err)
	}

	if err := loadFromEnv(config); err != nil {
		return nil, sharederrors.Wrapf(err, "overlay environment variables onto %s", path)
	}

	if err := validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// loadFromEnv overlays a small set of operational environment variables
// commonly set by the deploying host (container env, systemd unit) onto
// config, without requiring a full YAML rewrite for a one-off override.
func loadFromEnv(config *Config) error {
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		config.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		config.LLM.Model = v
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		config.LLM.Provider = v
	}
	if v := os.Getenv("SERVER_LISTEN_PORT"); v != "" {
		config.Server.ListenPort = v
	}
	if v := os.Getenv("METRICS_PORT"); v != "" {
		config.Server.MetricsPort = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		config.Database.Password = v
	}
	if v := os.Getenv("WORKER_POOL_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return sharederrors.Wrapf(err, "invalid WORKER_POOL_SIZE %q", v)
		}
		config.Orchestrator.WorkerPoolSize = n
	}
	return nil
}

var validProviders = map[string]bool{
	"anthropic": true,
}

// validate checks the fields that cannot be safely defaulted away; it is
// intentionally permissive about fields sources show varying per-deployment
// (retry counts, cooldowns) rather than rejecting every unusual value.
func validate(config *Config) error {
	if !validProviders[config.LLM.Provider] {
		return sharederrors.ConfigurationError("llm.provider", fmt.Sprintf("unsupported LLM provider: %s", config.LLM.Provider))
	}
	if config.LLM.Model == "" {
		return sharederrors.ConfigurationError("llm.model", fmt.Sprintf("LLM model is required for the %s provider", config.LLM.Provider))
	}
	if config.LLM.Temperature < 0.0 || config.LLM.Temperature > 1.0 {
		return sharederrors.ConfigurationError("llm.temperature", "LLM temperature must be between 0.0 and 1.0")
	}
	if config.LLM.MaxTokens <= 0 {
		return sharederrors.ConfigurationError("llm.max_tokens", "LLM max tokens must be greater than 0")
	}
	if config.Orchestrator.WorkerPoolSize <= 0 {
		return sharederrors.ConfigurationError("orchestrator.worker_pool_size", "worker pool size must be greater than 0")
	}
	if config.Review.AutoApproveMinConfidence < 0.0 || config.Review.AutoApproveMinConfidence > 1.0 {
		return sharederrors.ConfigurationError("review.auto_approve_min_confidence", "auto-approve minimum confidence must be between 0.0 and 1.0")
	}
	return nil
}
