// ABOUTME: Configuration loading and parsing for mailgate
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete mailgate configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Mailstore MailstoreConfig `yaml:"mailstore"`
	Resolver  ResolverConfig  `yaml:"resolver"`
	MCP       MCPConfig       `yaml:"mcp"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// MailstoreConfig points at the shared backing message store
type MailstoreConfig struct {
	BaseURL string `yaml:"base_url"`
}

// ResolverConfig holds ownership resolver timing configuration
type ResolverConfig struct {
	Interval   time.Duration `yaml:"-"`
	LeaseTTL   time.Duration `yaml:"-"`
	MaxBackoff time.Duration `yaml:"-"`
	BatchLimit int           `yaml:"batch_limit"`

	// Raw string values for YAML unmarshaling
	IntervalRaw   string `yaml:"interval"`
	LeaseTTLRaw   string `yaml:"lease_ttl"`
	MaxBackoffRaw string `yaml:"max_backoff"`
}

// MCPConfig holds MCP bridge configuration
type MCPConfig struct {
	Enabled bool `yaml:"enabled"`

	// DefaultToken is used for tool calls that omit access_token.
	// Leave empty (the default) to require a token on every call.
	DefaultToken string `yaml:"default_token"`
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

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Mailstore.BaseURL == "" {
		return fmt.Errorf("mailstore.base_url is required")
	}

	if c.Resolver.BatchLimit < 0 {
		return fmt.Errorf("resolver.batch_limit must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Resolver.IntervalRaw != "" {
		cfg.Resolver.Interval, err = time.ParseDuration(cfg.Resolver.IntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing resolver interval %q: %w", cfg.Resolver.IntervalRaw, err)
		}
	}

	if cfg.Resolver.LeaseTTLRaw != "" {
		cfg.Resolver.LeaseTTL, err = time.ParseDuration(cfg.Resolver.LeaseTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing resolver lease_ttl %q: %w", cfg.Resolver.LeaseTTLRaw, err)
		}
	}

	if cfg.Resolver.MaxBackoffRaw != "" {
		cfg.Resolver.MaxBackoff, err = time.ParseDuration(cfg.Resolver.MaxBackoffRaw)
		if err != nil {
			return fmt.Errorf("parsing resolver max_backoff %q: %w", cfg.Resolver.MaxBackoffRaw, err)
		}
	}

	return nil
}
