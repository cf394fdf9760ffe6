package logevents

import (
	"github.com/ajitpratap0/logevents/pkg/config"
	"github.com/ajitpratap0/logevents/pkg/connector/core"
	"github.com/ajitpratap0/logevents/pkg/connector/registry"
	"go.uber.org/zap"
)

func init() {
	_ = registry.Register(ConnectorName, func(cfg *config.Config, log *zap.Logger) (core.Function, error) {
		return NewFromConfig(cfg, log), nil
	})
}

var _ core.Function = (*Handler)(nil)
