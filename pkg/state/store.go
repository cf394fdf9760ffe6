// Package state persists connector cursor state between invocations.
//
// The connector itself is stateless: the platform hands it the state saved
// after the previous call. These stores play the platform's part for the
// local sync runner.
package state

import (
	"context"
	"fmt"

	"github.com/ajitpratap0/logevents/pkg/config"
	"github.com/ajitpratap0/logevents/pkg/errors"
	"github.com/ajitpratap0/logevents/pkg/models"
	"go.uber.org/zap"
)

// Store loads and saves state per connector name
type Store interface {
	// Load returns the saved state, or an empty State when nothing was saved
	Load(ctx context.Context, connector string) (models.State, error)

	// Save replaces the saved state
	Save(ctx context.Context, connector string, state models.State) error

	// Close releases resources held by the store
	Close() error
}

// New creates the store selected by cfg.Type
func New(ctx context.Context, cfg config.StateStoreConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(cfg.Path), nil
	case "postgres":
		s, err := NewPostgresStore(ctx, cfg.DSN, cfg.Table, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("unknown state store type %q", cfg.Type))
	}
}
