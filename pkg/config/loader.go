package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. LOGEVENTS_TIMEOUTS_REQUEST
const EnvPrefix = "LOGEVENTS"

// Load reads an optional YAML file, substitutes ${VAR} references, overlays
// LOGEVENTS_* environment variables and validates the result. An empty path
// yields defaults plus environment.
func Load(filePath string) (*Config, error) {
	v := newViper(NewDefault())

	if filePath != "" {
		data, err := os.ReadFile(filePath) //nolint:gosec // G304: path comes from the operator
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		content := substituteEnvVars(string(data))
		if err := v.ReadConfig(bytes.NewBufferString(content)); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes a configuration as YAML
func Save(filePath string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func newViper(d *Config) *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal only sees keys viper knows about, so every key gets a default.
	v.SetDefault("name", d.Name)
	v.SetDefault("secrets.base_url", d.Secrets.BaseURL)
	v.SetDefault("upstream.title", d.Upstream.Title)
	v.SetDefault("upstream.limit", d.Upstream.Limit)
	v.SetDefault("upstream.user_agent", d.Upstream.UserAgent)
	v.SetDefault("timeouts.request", d.Timeouts.Request)
	v.SetDefault("timeouts.connection", d.Timeouts.Connection)
	v.SetDefault("reliability.rate_limit_per_sec", d.Reliability.RateLimitPerSec)
	v.SetDefault("reliability.rate_burst", d.Reliability.RateBurst)
	v.SetDefault("observability.log_level", d.Observability.LogLevel)
	v.SetDefault("observability.log_format", d.Observability.LogFormat)
	v.SetDefault("observability.enable_tracing", d.Observability.EnableTracing)
	v.SetDefault("observability.tracing_sample_rate", d.Observability.TracingSampleRate)
	v.SetDefault("observability.enable_metrics", d.Observability.EnableMetrics)
	v.SetDefault("sink.type", d.Sink.Type)
	v.SetDefault("sink.format", d.Sink.Format)
	v.SetDefault("sink.compression", d.Sink.Compression)
	v.SetDefault("sink.directory", d.Sink.Directory)
	v.SetDefault("sink.bucket", d.Sink.Bucket)
	v.SetDefault("sink.prefix", d.Sink.Prefix)
	v.SetDefault("sink.region", d.Sink.Region)
	v.SetDefault("sink.credentials_file", d.Sink.CredentialsFile)
	v.SetDefault("sink.brokers", d.Sink.Brokers)
	v.SetDefault("sink.topic", d.Sink.Topic)
	v.SetDefault("state_store.type", d.StateStore.Type)
	v.SetDefault("state_store.path", d.StateStore.Path)
	v.SetDefault("state_store.dsn", d.StateStore.DSN)
	v.SetDefault("state_store.table", d.StateStore.Table)
	v.SetDefault("server.address", d.Server.Address)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("runner.max_invocations", d.Runner.MaxInvocations)

	// The bare BASE_URL variable is what local .env files conventionally set.
	_ = v.BindEnv("secrets.base_url", EnvPrefix+"_SECRETS_BASE_URL", "BASE_URL")

	return v
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		envValue := os.Getenv(varName)
		content = content[:start] + envValue + content[end+1:]
	}
	return content
}
