// Package config loads hitlgraph settings.
//
// Precedence: defaults → YAML file → environment variables.
//
//	cfg, err := config.Load("hitlgraph.yaml")
//	if err != nil {
//	    return err
//	}
//	logger, err := cfg.Log.NewLogger()
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete configuration.
type Config struct {
	HITL      HITLConfig      `yaml:"hitl"`
	Store     StoreConfig     `yaml:"store"`
	LLM       LLMConfig       `yaml:"llm"`
	JIRA      JIRAConfig      `yaml:"jira"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// HITLConfig configures the human-in-the-loop exchange.
type HITLConfig struct {
	// Timeout bounds how long a request waits for an answer. Zero waits forever.
	Timeout time.Duration `yaml:"timeout"`
	// UnmatchedPolicy is "reject" or "buffer".
	UnmatchedPolicy string `yaml:"unmatched_policy"`
	// MaxBuffered caps buffered answers per key under the buffer policy.
	MaxBuffered int `yaml:"max_buffered"`
	// UserName is the correlation key of the confirm workflow.
	UserName string `yaml:"user_name"`
}

// StoreConfig selects step persistence.
type StoreConfig struct {
	// Location is "memory", "sqlite:<path>", "mysql:<dsn>" or a redis:// URL.
	Location string `yaml:"location"`
	// TTL expires Redis keys. Zero keeps them.
	TTL time.Duration `yaml:"ttl"`
}

// LLMConfig selects the chat model provider.
type LLMConfig struct {
	// Provider is "openai", "groq", "anthropic" or "google".
	Provider string `yaml:"provider"`
	// Model overrides the provider's default model.
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`

	OpenAIAPIKey    string `yaml:"openai_api_key"`
	GroqAPIKey      string `yaml:"groq_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	GoogleAPIKey    string `yaml:"google_api_key"`
}

// JIRAConfig configures the worklog client.
type JIRAConfig struct {
	BaseURL  string `yaml:"base_url"`
	User     string `yaml:"user"`
	APIToken string `yaml:"api_token"`
	// RateLimit is the maximum number of requests per second.
	RateLimit float64 `yaml:"rate_limit"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is json or console.
	Format string `yaml:"format"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address of /metrics. Empty disables the endpoint.
	Addr string `yaml:"addr"`
}

// TelemetryConfig configures OpenTelemetry tracing of workflow events.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`

	// OTLPEndpoint is the host:port of the OTLP gRPC collector.
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HITL: HITLConfig{
			UnmatchedPolicy: "reject",
			MaxBuffered:     1,
			UserName:        "Laurie",
		},
		Store: StoreConfig{Location: "memory"},
		LLM:   LLMConfig{Provider: "groq"},
		JIRA:  JIRAConfig{RateLimit: 5},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Telemetry: TelemetryConfig{
			ServiceName:  "hitlgraph",
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1,
		},
	}
}

// Load reads the configuration. A missing file at path is not an error;
// an empty path skips the file.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type envBinding struct {
	key string
	set func(c *Config, v string) error
}

func str(dst func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*dst(c) = v
		return nil
	}
}

var envBindings = []envBinding{
	{"HITL_TIMEOUT", func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		c.HITL.Timeout = d
		return err
	}},
	{"HITL_UNMATCHED_POLICY", str(func(c *Config) *string { return &c.HITL.UnmatchedPolicy })},
	{"HITL_MAX_BUFFERED", func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		c.HITL.MaxBuffered = n
		return err
	}},
	{"HITL_USER_NAME", str(func(c *Config) *string { return &c.HITL.UserName })},
	{"HITL_STORE", str(func(c *Config) *string { return &c.Store.Location })},
	{"HITL_STORE_TTL", func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		c.Store.TTL = d
		return err
	}},
	{"HITL_LLM_PROVIDER", str(func(c *Config) *string { return &c.LLM.Provider })},
	{"HITL_LLM_MODEL", str(func(c *Config) *string { return &c.LLM.Model })},
	{"HITL_LLM_BASE_URL", str(func(c *Config) *string { return &c.LLM.BaseURL })},
	{"OPENAI_API_KEY", str(func(c *Config) *string { return &c.LLM.OpenAIAPIKey })},
	{"GROQ_API_KEY", str(func(c *Config) *string { return &c.LLM.GroqAPIKey })},
	{"ANTHROPIC_API_KEY", str(func(c *Config) *string { return &c.LLM.AnthropicAPIKey })},
	{"GOOGLE_API_KEY", str(func(c *Config) *string { return &c.LLM.GoogleAPIKey })},
	{"HITL_JIRA_BASE_URL", str(func(c *Config) *string { return &c.JIRA.BaseURL })},
	{"JIRA_USER", str(func(c *Config) *string { return &c.JIRA.User })},
	{"JIRA_API_TOKEN", str(func(c *Config) *string { return &c.JIRA.APIToken })},
	{"HITL_LOG_LEVEL", str(func(c *Config) *string { return &c.Log.Level })},
	{"HITL_LOG_FORMAT", str(func(c *Config) *string { return &c.Log.Format })},
	{"HITL_METRICS_ADDR", str(func(c *Config) *string { return &c.Metrics.Addr })},
	{"HITL_TELEMETRY_ENABLED", func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		c.Telemetry.Enabled = b
		return err
	}},
	{"HITL_OTLP_ENDPOINT", str(func(c *Config) *string { return &c.Telemetry.OTLPEndpoint })},
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for _, b := range envBindings {
		v, ok := lookup(b.key)
		if !ok || v == "" {
			continue
		}
		if err := b.set(c, v); err != nil {
			return fmt.Errorf("env %s: %w", b.key, err)
		}
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.HITL.Timeout < 0 {
		return errors.New("hitl.timeout must be >= 0")
	}
	switch c.HITL.UnmatchedPolicy {
	case "", "reject", "buffer":
	default:
		return fmt.Errorf("hitl.unmatched_policy: unknown policy %q", c.HITL.UnmatchedPolicy)
	}
	if c.HITL.MaxBuffered < 1 {
		return errors.New("hitl.max_buffered must be >= 1")
	}
	switch strings.ToLower(c.LLM.Provider) {
	case "openai", "groq", "anthropic", "google":
	default:
		return fmt.Errorf("llm.provider: unknown provider %q", c.LLM.Provider)
	}
	if c.JIRA.RateLimit <= 0 {
		return errors.New("jira.rate_limit must be > 0")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return errors.New("telemetry.sample_rate must be within [0, 1]")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	return nil
}

// APIKey returns the key configured for the selected provider.
func (c LLMConfig) APIKey() string {
	switch strings.ToLower(c.Provider) {
	case "openai":
		return c.OpenAIAPIKey
	case "groq":
		return c.GroqAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	case "google":
		return c.GoogleAPIKey
	}
	return ""
}
