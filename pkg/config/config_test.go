package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logevents.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, NewDefault().Upstream, cfg.Upstream)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.Request)
	assert.Equal(t, "memory", cfg.StateStore.Type)
}

func TestLoadFileWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_WIKI_URL", "https://wiki.example.org/w/api.php")

	path := writeConfig(t, `
name: wiki
secrets:
  base_url: ${TEST_WIKI_URL}
timeouts:
  request: 5s
sink:
  type: file
  directory: /tmp/out
  compression: gzip
state_store:
  type: file
  path: /tmp/state.json
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "wiki", cfg.Name)
	assert.Equal(t, "https://wiki.example.org/w/api.php", cfg.Secrets.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Timeouts.Request)
	assert.Equal(t, "file", cfg.Sink.Type)
	assert.Equal(t, "gzip", cfg.Sink.Compression)
	assert.Equal(t, "/tmp/state.json", cfg.StateStore.Path)
	// untouched sections keep their defaults
	assert.Equal(t, 5, cfg.Upstream.Limit)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("LOGEVENTS_UPSTREAM_LIMIT", "50")
	t.Setenv("BASE_URL", "https://plain.example.org/api.php")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Upstream.Limit)
	assert.Equal(t, "https://plain.example.org/api.php", cfg.Secrets.BaseURL)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := writeConfig(t, "sink:\n  type: ftp\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown sink.type")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"defaults", func(*Config) {}, ""},
		{"no name", func(c *Config) { c.Name = "" }, "name is required"},
		{"zero limit", func(c *Config) { c.Upstream.Limit = 0 }, "upstream.limit must be positive"},
		{"negative rate", func(c *Config) { c.Reliability.RateLimitPerSec = -1 }, "rate_limit_per_sec"},
		{"s3 without bucket", func(c *Config) { c.Sink.Type = "s3" }, "sink.bucket is required"},
		{"kafka without topic", func(c *Config) {
			c.Sink.Type = "kafka"
			c.Sink.Brokers = []string{"localhost:9092"}
		}, "sink.brokers and sink.topic"},
		{"postgres without dsn", func(c *Config) { c.StateStore.Type = "postgres" }, "state_store.dsn"},
		{"bad compression", func(c *Config) { c.Sink.Compression = "brotli" }, "unknown sink.compression"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefault()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := NewDefault()
	cfg.Name = "saved"
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "saved", loaded.Name)
}
