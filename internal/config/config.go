// ABOUTME: Configuration loading and parsing for waplane
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete waplane configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database"`
	Account   AccountConfig   `yaml:"account"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Bots      BotsConfig      `yaml:"bots"`
	Webhooks  WebhooksConfig  `yaml:"webhooks"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
	HTTPS     bool   `yaml:"https"`  // Serve TLS with Tailscale-provisioned certs
	Funnel    bool   `yaml:"funnel"` // Enable public Funnel (implies HTTPS)
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AccountConfig identifies the owning account for this deployment
type AccountConfig struct {
	ID string `yaml:"id"`
}

// GatewayConfig holds the connection to the upstream WhatsApp gateway
type GatewayConfig struct {
	BaseURL   string `yaml:"base_url"`
	Token     string `yaml:"token"`
	SinkToken string `yaml:"sink_token"` // bearer token the gateway presents on its webhook calls

	SendTimeout time.Duration `yaml:"-"`
	DedupeTTL   time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	SendTimeoutRaw string `yaml:"send_timeout"`
	DedupeTTLRaw   string `yaml:"dedupe_ttl"`
}

// BotsConfig holds agent-bot forwarding configuration
type BotsConfig struct {
	ForwardTimeout time.Duration `yaml:"-"`

	ForwardTimeoutRaw string `yaml:"forward_timeout"`
}

// WebhooksConfig holds webhook dispatch configuration
type WebhooksConfig struct {
	SigningKey string `yaml:"signing_key"`

	AttemptTimeout time.Duration `yaml:"-"`

	AttemptTimeoutRaw string `yaml:"attempt_timeout"`
}

// RealtimeConfig selects the realtime fan-out provider
type RealtimeConfig struct {
	Provider string `yaml:"provider"` // "memory" (default)
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Gateway.SendTimeout == 0 {
		c.Gateway.SendTimeout = 15 * time.Second
	}
	if c.Gateway.DedupeTTL == 0 {
		c.Gateway.DedupeTTL = 5 * time.Minute
	}
	if c.Bots.ForwardTimeout == 0 {
		c.Bots.ForwardTimeout = 10 * time.Second
	}
	if c.Webhooks.AttemptTimeout == 0 {
		c.Webhooks.AttemptTimeout = 10 * time.Second
	}
	if c.Realtime.Provider == "" {
		c.Realtime.Provider = "memory"
	}
	if c.Account.ID == "" {
		c.Account.ID = "default"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// A server address is required unless Tailscale is enabled
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	// Tailscale requires a hostname
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway.base_url is required")
	}

	if c.Realtime.Provider != "memory" {
		return fmt.Errorf("unknown realtime.provider %q", c.Realtime.Provider)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Gateway.SendTimeoutRaw != "" {
		cfg.Gateway.SendTimeout, err = time.ParseDuration(cfg.Gateway.SendTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing send_timeout %q: %w", cfg.Gateway.SendTimeoutRaw, err)
		}
	}

	if cfg.Gateway.DedupeTTLRaw != "" {
		cfg.Gateway.DedupeTTL, err = time.ParseDuration(cfg.Gateway.DedupeTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing dedupe_ttl %q: %w", cfg.Gateway.DedupeTTLRaw, err)
		}
	}

	if cfg.Bots.ForwardTimeoutRaw != "" {
		cfg.Bots.ForwardTimeout, err = time.ParseDuration(cfg.Bots.ForwardTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing forward_timeout %q: %w", cfg.Bots.ForwardTimeoutRaw, err)
		}
	}

	if cfg.Webhooks.AttemptTimeoutRaw != "" {
		cfg.Webhooks.AttemptTimeout, err = time.ParseDuration(cfg.Webhooks.AttemptTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing attempt_timeout %q: %w", cfg.Webhooks.AttemptTimeoutRaw, err)
		}
	}

	return nil
}
