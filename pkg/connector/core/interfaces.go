package core

import (
	"context"

	"github.com/ajitpratap0/logevents/pkg/models"
)

// Function is a stateless sync connector. Each call receives the state the
// platform persisted after the previous call and returns the next batch.
// Implementations must not mutate req.State.
type Function interface {
	// Name returns the connector name used for logging and metrics
	Name() string

	// Handle performs one invocation. On error no state is returned and the
	// caller keeps its prior state.
	Handle(ctx context.Context, req *models.Request) (*models.SyncBatch, error)
}

// FunctionFunc adapts a plain function to the Function interface
type FunctionFunc struct {
	FunctionName string
	Fn           func(ctx context.Context, req *models.Request) (*models.SyncBatch, error)
}

// Name implements Function
func (f FunctionFunc) Name() string { return f.FunctionName }

// Handle implements Function
func (f FunctionFunc) Handle(ctx context.Context, req *models.Request) (*models.SyncBatch, error) {
	return f.Fn(ctx, req)
}
