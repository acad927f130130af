// Copyright 2026 The Cratebox Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the service configuration from a single YAML
// file named by the CRATEBOX_CONFIG environment variable or the
// --config flag. There is no automatic discovery and environment
// variables never override file values; the only expansion performed
// is ${VAR} and ${VAR:-default} substitution inside secret-bearing
// fields, so credentials can stay out of the file itself.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cratebox/cratebox/lib/blob"
	"github.com/cratebox/cratebox/lib/embed"
	"github.com/cratebox/cratebox/lib/identity"
)

// Config is the full service configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// BaseURL is the externally reachable service URL used to build
	// share links, without a trailing slash.
	BaseURL string `yaml:"base_url"`

	// Database configures the SQLite metadata store.
	Database DatabaseConfig `yaml:"database"`

	// Blob configures the object store holding crate content.
	Blob blob.Config `yaml:"blob"`

	// Embeddings configures the vector backend for search. Omit the
	// section entirely to run with prefix search only.
	Embeddings *embed.Config `yaml:"embeddings,omitempty"`

	// Identity maps API keys to caller identities.
	Identity identity.Config `yaml:"identity"`

	// Usage configures advisory per-caller usage quotas.
	Usage UsageConfig `yaml:"usage"`

	// Log configures logging output.
	Log LogConfig `yaml:"log"`
}

// DatabaseConfig configures the SQLite metadata store.
type DatabaseConfig struct {
	// Path is the SQLite database file. The parent directory must
	// exist.
	Path string `yaml:"path"`

	// PoolSize is the connection pool size; zero takes the default.
	PoolSize int `yaml:"pool_size"`
}

// UsageConfig configures advisory usage quotas. Exceeding a quota
// never blocks a call; the service logs a warning and annotates the
// response. Zero disables the corresponding check.
type UsageConfig struct {
	// MonthlyCallQuota is the advisory per-caller call count per
	// calendar month.
	MonthlyCallQuota int64 `yaml:"monthly_call_quota"`

	// MonthlyByteQuota is the advisory per-caller stored byte count
	// per calendar month.
	MonthlyByteQuota int64 `yaml:"monthly_byte_quota"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string `yaml:"level"`
}

// Default returns the configuration defaults applied before the file
// is read.
func Default() *Config {
	return &Config{
		Listen:  ":8750",
		BaseURL: "http://localhost:8750",
		Log:     LogConfig{Level: "info"},
		Embeddings: &embed.Config{
			Timeout: 30 * time.Second,
		},
	}
}

// Load reads the configuration from the file named by the
// CRATEBOX_CONFIG environment variable.
func Load() (*Config, error) {
	path := os.Getenv("CRATEBOX_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("CRATEBOX_CONFIG environment variable not set; " +
			"set it to the path of your cratebox.yaml config file, or use --config")
	}
	return LoadFile(path)
}

// LoadFile reads the configuration from a specific path, applies
// defaults and ${VAR} expansion, and validates it.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.expandVariables()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// expandVariables substitutes ${VAR} references in the fields that
// commonly carry secrets or deployment-specific paths.
func (c *Config) expandVariables() {
	c.BaseURL = expandVars(c.BaseURL)
	c.Database.Path = expandVars(c.Database.Path)
	c.Blob.Endpoint = expandVars(c.Blob.Endpoint)
	c.Blob.AccessKey = expandVars(c.Blob.AccessKey)
	c.Blob.SecretKey = expandVars(c.Blob.SecretKey)
	if c.Embeddings != nil {
		c.Embeddings.BaseURL = expandVars(c.Embeddings.BaseURL)
		c.Embeddings.APIKey = expandVars(c.Embeddings.APIKey)
	}
	if len(c.Identity.Keys) > 0 {
		expanded := make(map[string]string, len(c.Identity.Keys))
		for key, user := range c.Identity.Keys {
			expanded[expandVars(key)] = user
		}
		c.Identity.Keys = expanded
	}
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}

// Validate checks the configuration for errors. An embeddings section
// that is present but incomplete is an error; a missing section means
// vector search is disabled.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if err := c.Blob.Validate(); err != nil {
		return err
	}
	if c.Embeddings != nil && (c.Embeddings.BaseURL != "" || c.Embeddings.Model != "" || c.Embeddings.APIKey != "") {
		if c.Embeddings.BaseURL == "" || c.Embeddings.Model == "" {
			return fmt.Errorf("embeddings requires both base_url and model")
		}
	}
	if err := c.Identity.Validate(); err != nil {
		return err
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	return nil
}

// EmbeddingsEnabled reports whether the configuration names a usable
// embeddings backend.
func (c *Config) EmbeddingsEnabled() bool {
	return c.Embeddings != nil && c.Embeddings.BaseURL != "" && c.Embeddings.Model != ""
}
