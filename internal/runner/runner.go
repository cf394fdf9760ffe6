// Package runner drives a connector the way the sync platform does: it feeds
// each returned state into the next call until the connector reports no more
// data, saving records and state as it goes.
package runner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ajitpratap0/logevents/pkg/connector/core"
	"github.com/ajitpratap0/logevents/pkg/errors"
	"github.com/ajitpratap0/logevents/pkg/logger"
	"github.com/ajitpratap0/logevents/pkg/models"
	"github.com/ajitpratap0/logevents/pkg/sink"
	"github.com/ajitpratap0/logevents/pkg/state"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Config controls the sync loop
type Config struct {
	// MaxInvocations stops a sync that keeps reporting hasMore, 0 disables it
	MaxInvocations int
}

// Summary describes a finished or aborted sync
type Summary struct {
	Connector   string         `json:"connector"`
	Invocations int            `json:"invocations"`
	Records     map[string]int `json:"records"`
	FinalState  models.State   `json:"final_state"`
	Complete    bool           `json:"complete"`
	Duration    time.Duration  `json:"duration"`
}

// TotalRecords returns the number of records across all tables
func (s *Summary) TotalRecords() int {
	n := 0
	for _, c := range s.Records {
		n += c
	}
	return n
}

// Runner invokes a connector repeatedly. It is not safe for concurrent Sync
// calls on the same connector.
type Runner struct {
	fn     core.Function
	store  state.Store
	sink   sink.Sink
	config Config
	logger *zap.Logger
	newID  func() string
}

// New creates a runner. A nil store keeps state in memory and a nil sink
// discards records.
func New(fn core.Function, store state.Store, out sink.Sink, config *Config, log *zap.Logger) *Runner {
	if store == nil {
		store = state.NewMemoryStore()
	}
	if out == nil {
		out = &sink.Discard{}
	}
	if config == nil {
		config = &Config{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		fn:     fn,
		store:  store,
		sink:   out,
		config: *config,
		logger: log.With(zap.String("component", "runner")),
		newID:  uuid.NewString,
	}
}

// Test performs a single invocation and returns the batch whatever its
// hasMore flag. Nothing is saved.
func (r *Runner) Test(ctx context.Context, req *models.Request) (*models.SyncBatch, error) {
	ctx = logger.WithInvocation(ctx, r.newID(), r.fn.Name())
	return r.fn.Handle(ctx, req)
}

// Sync loads the saved state and invokes the connector until it reports no
// more data. After every successful invocation the records go to the sink
// and then the new state is saved, so a failed run resumes from the last
// saved state. The caller closes the sink.
func (r *Runner) Sync(ctx context.Context, secrets models.Secrets) (*Summary, error) {
	name := r.fn.Name()
	start := time.Now()

	current, err := r.store.Load(ctx, name)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Connector:  name,
		Records:    make(map[string]int),
		FinalState: current,
	}
	defer func() { summary.Duration = time.Since(start) }()

	log := r.logger.With(zap.String("connector", name))
	log.Info("sync started", zap.Any("state", current))

	for {
		if err := ctx.Err(); err != nil {
			return summary, errors.Wrap(err, errors.ErrorTypeTimeout, "sync interrupted")
		}
		if r.config.MaxInvocations > 0 && summary.Invocations >= r.config.MaxInvocations {
			return summary, errors.New(errors.ErrorTypeInternal,
				fmt.Sprintf("sync stopped after %d invocations with more data pending", summary.Invocations))
		}

		id := r.newID()
		ictx := logger.WithInvocation(ctx, id, name)

		batch, err := r.fn.Handle(ictx, &models.Request{State: current, Secrets: secrets})
		summary.Invocations++
		if err != nil {
			log.Error("invocation failed",
				zap.String("invocation_id", id),
				zap.Int("invocation", summary.Invocations),
				zap.Error(err))
			return summary, err
		}

		if err := r.deliver(ictx, batch, summary); err != nil {
			return summary, err
		}
		if err := r.store.Save(ctx, name, batch.State); err != nil {
			return summary, err
		}
		current = batch.State
		summary.FinalState = current

		log.Info("invocation completed",
			zap.String("invocation_id", id),
			zap.Int("records", batch.RecordCount()),
			zap.Bool("has_more", batch.HasMore))

		if !batch.HasMore {
			summary.Complete = true
			break
		}
	}

	log.Info("sync complete",
		zap.Int("invocations", summary.Invocations),
		zap.Int("records", summary.TotalRecords()),
		zap.Duration("duration", time.Since(start)))
	return summary, nil
}

// deliver writes every inserted table to the sink in name order
func (r *Runner) deliver(ctx context.Context, batch *models.SyncBatch, summary *Summary) error {
	tables := make([]string, 0, len(batch.Insert))
	for table := range batch.Insert {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	for _, table := range tables {
		records := batch.Insert[table]
		if err := r.sink.Write(ctx, table, records); err != nil {
			return err
		}
		summary.Records[table] += len(records)
	}
	return nil
}
