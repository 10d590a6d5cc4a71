// Package config provides configuration loading and validation for certify.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file configuration.
const (
	EnvJWTSecret    = "CERTIFY_JWT_SECRET"
	EnvDatabasePath = "CERTIFY_DATABASE_PATH"
)

// Analysis depth values accepted in configuration.
const (
	DepthSecurityRelevant = "security_relevant"
	DepthFull             = "full"
)

// Config represents the complete certify configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Findings FindingsConfig `yaml:"findings"`
	AI       AIConfig       `yaml:"ai"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	JWTSecret    string        `yaml:"jwt_secret,omitempty"`
	JWTIssuer    string        `yaml:"jwt_issuer,omitempty"`
	CORSOrigins  []string      `yaml:"cors_origins,omitempty"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	Path           string        `yaml:"path"`
	MaxConnections int           `yaml:"max_connections"`
	BusyTimeout    time.Duration `yaml:"busy_timeout"`
}

// AnalysisConfig configures the analysis worker pool and file discovery.
type AnalysisConfig struct {
	DefaultDepth string        `yaml:"default_depth"`
	IgnoreDirs   []string      `yaml:"ignore_dirs,omitempty"`
	Workers      int           `yaml:"workers"`
	QueueSize    int           `yaml:"queue_size"`
	RunTimeout   time.Duration `yaml:"run_timeout"`
	MaxFileSize  int64         `yaml:"max_file_size"`
	MaxFiles     int           `yaml:"max_files"`
}

// FindingsConfig configures findings pagination.
type FindingsConfig struct {
	DefaultPageSize int `yaml:"default_page_size"`
	MaxPageSize     int `yaml:"max_page_size"`
}

// AIConfig configures the optional AI summarizer.
type AIConfig struct {
	Model           string  `yaml:"model"`
	APIKeyEnv       string  `yaml:"api_key_env"`
	BaseURL         string  `yaml:"base_url,omitempty"`
	APIKey          string  `yaml:"-"`
	MaxTokens       int     `yaml:"max_tokens"`
	CostPer1KTokens float64 `yaml:"cost_per_1k_tokens"`
	Enabled         bool    `yaml:"enabled"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Format string `yaml:"format"`
	Debug  bool   `yaml:"debug"`
}

// Default returns a configuration suitable for local use.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			JWTIssuer:    "certify",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:           "certify.db",
			MaxConnections: 10,
			BusyTimeout:    5 * time.Second,
		},
		Analysis: AnalysisConfig{
			DefaultDepth: DepthSecurityRelevant,
			Workers:      4,
			QueueSize:    64,
			RunTimeout:   10 * time.Minute,
			MaxFileSize:  1 << 20,
			MaxFiles:     20000,
		},
		Findings: FindingsConfig{
			DefaultPageSize: 20,
			MaxPageSize:     100,
		},
		AI: AIConfig{
			Model:           "gpt-4o-mini",
			APIKeyEnv:       "OPENAI_API_KEY",
			MaxTokens:       400,
			CostPer1KTokens: 0.0006,
		},
		Logging: LoggingConfig{
			Format: "text",
		},
	}
}

// LoadConfig reads a YAML configuration file on top of the defaults,
// applies environment overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Path is validated by the caller
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config, err := Parse(data)
	if err != nil {
		return nil, err
	}

	return config, nil
}

// Parse decodes YAML configuration on top of the defaults.
func Parse(data []byte) (*Config, error) {
	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// ApplyEnv applies environment variable overrides.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvJWTSecret); v != "" {
		c.Server.JWTSecret = v
	}
	if v := os.Getenv(EnvDatabasePath); v != "" {
		c.Database.Path = v
	}
	if c.AI.APIKeyEnv != "" {
		if v := os.Getenv(c.AI.APIKeyEnv); v != "" {
			c.AI.APIKey = v
		}
	}
}

// Validate ensures the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Database.MaxConnections < 1 {
		return fmt.Errorf("database.max_connections must be at least 1")
	}

	if c.Analysis.Workers < 1 {
		return fmt.Errorf("analysis.workers must be at least 1")
	}
	if c.Analysis.QueueSize < 1 {
		return fmt.Errorf("analysis.queue_size must be at least 1")
	}
	if c.Analysis.RunTimeout <= 0 {
		return fmt.Errorf("analysis.run_timeout must be positive")
	}
	if c.Analysis.MaxFileSize <= 0 {
		return fmt.Errorf("analysis.max_file_size must be positive")
	}
	if c.Analysis.MaxFiles < 1 {
		return fmt.Errorf("analysis.max_files must be at least 1")
	}
	switch c.Analysis.DefaultDepth {
	case DepthSecurityRelevant, DepthFull:
	default:
		return fmt.Errorf("analysis.default_depth must be %q or %q, got %q",
			DepthSecurityRelevant, DepthFull, c.Analysis.DefaultDepth)
	}

	if c.Findings.DefaultPageSize < 1 {
		return fmt.Errorf("findings.default_page_size must be at least 1")
	}
	if c.Findings.MaxPageSize < c.Findings.DefaultPageSize {
		return fmt.Errorf("findings.max_page_size must be >= findings.default_page_size")
	}

	if c.AI.Enabled {
		if c.AI.Model == "" {
			return fmt.Errorf("ai.model is required when ai.enabled is true")
		}
		if c.AI.MaxTokens < 1 {
			return fmt.Errorf("ai.max_tokens must be at least 1")
		}
		if c.AI.CostPer1KTokens < 0 {
			return fmt.Errorf("ai.cost_per_1k_tokens must not be negative")
		}
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}
