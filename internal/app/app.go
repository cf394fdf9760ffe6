// Package app wires configuration, logging, tracing and the connector
// together for the command line and Lambda entry points.
package app

import (
	"context"
	"io"

	"github.com/ajitpratap0/logevents/pkg/config"
	"github.com/ajitpratap0/logevents/pkg/connector/core"
	"github.com/ajitpratap0/logevents/pkg/connector/logevents"
	"github.com/ajitpratap0/logevents/pkg/connector/registry"
	"github.com/ajitpratap0/logevents/pkg/errors"
	"github.com/ajitpratap0/logevents/pkg/logger"
	"github.com/ajitpratap0/logevents/pkg/models"
	"github.com/ajitpratap0/logevents/pkg/observability"
	"go.uber.org/zap"
)

// Version is overridden at build time with -ldflags "-X ...app.Version=..."
var Version = "0.1.0"

// Options override configuration values from flags
type Options struct {
	ConfigPath string
	LogLevel   string
	BaseURL    string
}

// App holds the wired components of one process
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Function core.Function
}

// Setup loads configuration and builds the connector
func Setup(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load configuration")
	}
	if opts.LogLevel != "" {
		cfg.Observability.LogLevel = opts.LogLevel
	}
	if opts.BaseURL != "" {
		cfg.Secrets.BaseURL = opts.BaseURL
	}

	if err := logger.Init(logger.Config{
		Level:    cfg.Observability.LogLevel,
		Encoding: cfg.Observability.LogFormat,
	}); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize logger")
	}
	log := logger.Get()

	if err := observability.Initialize(observability.TracingConfig{
		Enabled:        cfg.Observability.EnableTracing,
		ServiceName:    cfg.Name,
		ServiceVersion: Version,
		SamplingRate:   cfg.Observability.TracingSampleRate,
	}); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize tracing")
	}

	fn, err := registry.Create(logevents.ConnectorName, cfg, log)
	if err != nil {
		return nil, err
	}

	log.Debug("application initialized",
		zap.String("connector", fn.Name()),
		zap.String("version", Version))

	return &App{Config: cfg, Logger: log, Function: fn}, nil
}

// Secrets returns the secrets configured for local runs
func (a *App) Secrets() models.Secrets {
	secrets := models.Secrets{}
	if a.Config.Secrets.BaseURL != "" {
		secrets[models.SecretBaseURL] = a.Config.Secrets.BaseURL
	}
	return secrets
}

// FillSecrets returns secrets with missing keys taken from configuration.
// The argument is not modified.
func (a *App) FillSecrets(secrets models.Secrets) models.Secrets {
	out := a.Secrets()
	for k, v := range secrets {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// Flush exports pending spans and syncs the logger. Runtimes that freeze the
// process between invocations call it after every invocation.
func (a *App) Flush(ctx context.Context) error {
	err := observability.Flush(ctx)
	_ = logger.Sync()
	return err
}

// Shutdown flushes tracing and logs and releases the connector
func (a *App) Shutdown(ctx context.Context) error {
	var firstErr error
	if closer, ok := a.Function.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			firstErr = err
		}
	}
	if err := observability.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	_ = logger.Sync()
	return firstErr
}
