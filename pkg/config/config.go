// Package config provides the configuration for the logevents connector's
// runtime wrappers (CLI runner, HTTP function server and Lambda entry point).
//
// The handler itself is configured only through the secrets of each request;
// everything here controls the transport around it:
//   - Secrets: fallback BASE_URL when a request carries none
//   - Upstream: query filter and page size
//   - Timeouts: fetch and dial timeouts
//   - Reliability: local rate limiting of outbound requests
//   - Observability: logging, tracing and metrics
//   - Sink: where the sync runner saves fetched records
//   - StateStore: where the sync runner keeps the cursor between runs
//   - Server: HTTP function wrapper settings
//
// Example usage:
//
//	cfg, err := config.Load("logevents.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"time"
)

// Config is the single configuration structure for all entry points
type Config struct {
	// Name identifies the connector instance in logs, metrics and state keys
	Name string `yaml:"name" mapstructure:"name"`

	Secrets       SecretsConfig       `yaml:"secrets" mapstructure:"secrets"`
	Upstream      UpstreamConfig      `yaml:"upstream" mapstructure:"upstream"`
	Timeouts      TimeoutConfig       `yaml:"timeouts" mapstructure:"timeouts"`
	Reliability   ReliabilityConfig   `yaml:"reliability" mapstructure:"reliability"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Sink          SinkConfig          `yaml:"sink" mapstructure:"sink"`
	StateStore    StateStoreConfig    `yaml:"state_store" mapstructure:"state_store"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Runner        RunnerConfig        `yaml:"runner" mapstructure:"runner"`
}

// SecretsConfig holds secrets the local wrappers inject into requests.
// The platform normally delivers them itself.
type SecretsConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// UpstreamConfig controls the log-events query
type UpstreamConfig struct {
	// Title filters events to one page title (letitle)
	Title string `yaml:"title" mapstructure:"title"`
	// Limit is the page size (lelimit)
	Limit int `yaml:"limit" mapstructure:"limit"`
	// UserAgent is sent on every upstream request
	UserAgent string `yaml:"user_agent" mapstructure:"user_agent"`
}

// TimeoutConfig contains timeout settings for the outbound fetch
type TimeoutConfig struct {
	// Request bounds one upstream fetch, 0 disables it
	Request time.Duration `yaml:"request" mapstructure:"request"`
	// Connection bounds dialing the upstream
	Connection time.Duration `yaml:"connection" mapstructure:"connection"`
}

// ReliabilityConfig contains outbound rate limiting settings
type ReliabilityConfig struct {
	// RateLimitPerSec limits upstream requests per second (0 = unlimited)
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec" mapstructure:"rate_limit_per_sec"`
	// RateBurst is the token bucket size
	RateBurst int `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// ObservabilityConfig contains monitoring settings
type ObservabilityConfig struct {
	LogLevel          string  `yaml:"log_level" mapstructure:"log_level"`
	LogFormat         string  `yaml:"log_format" mapstructure:"log_format"`
	EnableTracing     bool    `yaml:"enable_tracing" mapstructure:"enable_tracing"`
	TracingSampleRate float64 `yaml:"tracing_sample_rate" mapstructure:"tracing_sample_rate"`
	EnableMetrics     bool    `yaml:"enable_metrics" mapstructure:"enable_metrics"`
}

// SinkConfig selects where synced records are saved
type SinkConfig struct {
	// Type is one of none, file, s3, gcs, kafka
	Type string `yaml:"type" mapstructure:"type"`
	// Format is array (one JSON array) or jsonl
	Format string `yaml:"format" mapstructure:"format"`
	// Compression is one of none, gzip, snappy, lz4, zstd
	Compression string `yaml:"compression" mapstructure:"compression"`

	Directory       string   `yaml:"directory" mapstructure:"directory"`
	Bucket          string   `yaml:"bucket" mapstructure:"bucket"`
	Prefix          string   `yaml:"prefix" mapstructure:"prefix"`
	Region          string   `yaml:"region" mapstructure:"region"`
	CredentialsFile string   `yaml:"credentials_file" mapstructure:"credentials_file"`
	Brokers         []string `yaml:"brokers" mapstructure:"brokers"`
	Topic           string   `yaml:"topic" mapstructure:"topic"`
}

// StateStoreConfig selects where the runner persists cursor state
type StateStoreConfig struct {
	// Type is one of memory, file, postgres
	Type  string `yaml:"type" mapstructure:"type"`
	Path  string `yaml:"path" mapstructure:"path"`
	DSN   string `yaml:"dsn" mapstructure:"dsn"`
	Table string `yaml:"table" mapstructure:"table"`
}

// ServerConfig configures the HTTP function wrapper
type ServerConfig struct {
	Address         string        `yaml:"address" mapstructure:"address"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// RunnerConfig configures the local sync loop
type RunnerConfig struct {
	// MaxInvocations stops a sync that keeps reporting hasMore (0 = no cap)
	MaxInvocations int `yaml:"max_invocations" mapstructure:"max_invocations"`
}

// NewDefault returns a configuration with production defaults matching the
// fixed query of the connector.
func NewDefault() *Config {
	return &Config{
		Name: "logevents",
		Upstream: UpstreamConfig{
			Title:     "Data",
			Limit:     5,
			UserAgent: "logevents-connector/1.0",
		},
		Timeouts: TimeoutConfig{
			Request:    30 * time.Second,
			Connection: 10 * time.Second,
		},
		Reliability: ReliabilityConfig{
			RateLimitPerSec: 0,
			RateBurst:       1,
		},
		Observability: ObservabilityConfig{
			LogLevel:          "info",
			LogFormat:         "json",
			EnableTracing:     false,
			TracingSampleRate: 1.0,
			EnableMetrics:     true,
		},
		Sink: SinkConfig{
			Type:        "none",
			Format:      "array",
			Compression: "none",
			Directory:   ".",
		},
		StateStore: StateStoreConfig{
			Type:  "memory",
			Path:  "logevents-state.json",
			Table: "connector_state",
		},
		Server: ServerConfig{
			Address:         ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Runner: RunnerConfig{
			MaxInvocations: 10000,
		},
	}
}

var (
	sinkTypes        = map[string]bool{"none": true, "file": true, "s3": true, "gcs": true, "kafka": true}
	sinkFormats      = map[string]bool{"array": true, "jsonl": true}
	stateStoreTypes  = map[string]bool{"memory": true, "file": true, "postgres": true}
	compressionTypes = map[string]bool{"none": true, "gzip": true, "snappy": true, "lz4": true, "zstd": true}
)

// Validate checks required fields and value ranges
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.Upstream.Title == "" {
		return fmt.Errorf("upstream.title is required")
	}
	if c.Upstream.Limit <= 0 {
		return fmt.Errorf("upstream.limit must be positive")
	}
	if c.Timeouts.Request < 0 {
		return fmt.Errorf("timeouts.request cannot be negative")
	}
	if c.Reliability.RateLimitPerSec < 0 {
		return fmt.Errorf("reliability.rate_limit_per_sec cannot be negative")
	}
	if !sinkTypes[c.Sink.Type] {
		return fmt.Errorf("unknown sink.type %q", c.Sink.Type)
	}
	if !sinkFormats[c.Sink.Format] {
		return fmt.Errorf("unknown sink.format %q", c.Sink.Format)
	}
	if !compressionTypes[c.Sink.Compression] {
		return fmt.Errorf("unknown sink.compression %q", c.Sink.Compression)
	}
	switch c.Sink.Type {
	case "s3", "gcs":
		if c.Sink.Bucket == "" {
			return fmt.Errorf("sink.bucket is required for %s", c.Sink.Type)
		}
	case "kafka":
		if len(c.Sink.Brokers) == 0 || c.Sink.Topic == "" {
			return fmt.Errorf("sink.brokers and sink.topic are required for kafka")
		}
	}
	if !stateStoreTypes[c.StateStore.Type] {
		return fmt.Errorf("unknown state_store.type %q", c.StateStore.Type)
	}
	if c.StateStore.Type == "postgres" && c.StateStore.DSN == "" {
		return fmt.Errorf("state_store.dsn is required for postgres")
	}
	if c.StateStore.Type == "file" && c.StateStore.Path == "" {
		return fmt.Errorf("state_store.path is required for file")
	}
	if c.Runner.MaxInvocations < 0 {
		return fmt.Errorf("runner.max_invocations cannot be negative")
	}
	return nil
}

// IsRateLimited returns true if rate limiting is enabled
func (r *ReliabilityConfig) IsRateLimited() bool {
	return r.RateLimitPerSec > 0
}
