package state

import (
	"context"
	stderrors "errors"
	"fmt"
	"regexp"
	"time"

	"github.com/ajitpratap0/logevents/pkg/errors"
	jsonpool "github.com/ajitpratap0/logevents/pkg/json"
	"github.com/ajitpratap0/logevents/pkg/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// DefaultTable is used when no table name is configured
const DefaultTable = "connector_state"

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// querier is satisfied by *pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps one JSONB row per connector
type PostgresStore struct {
	db     querier
	pool   *pgxpool.Pool
	table  string
	logger *zap.Logger
}

// NewPostgresStore connects to dsn and creates the state table if needed
func NewPostgresStore(ctx context.Context, dsn, table string, logger *zap.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse connection string")
	}
	poolConfig.MaxConns = 2
	poolConfig.MinConns = 0
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create connection pool")
	}

	s, err := newPostgresStore(pool, table, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.pool = pool

	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("connected to PostgreSQL state store", zap.String("table", s.table))
	return s, nil
}

func newPostgresStore(db querier, table string, logger *zap.Logger) (*PostgresStore, error) {
	if table == "" {
		table = DefaultTable
	}
	if !identifierPattern.MatchString(table) {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("invalid state table name %q", table))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{
		db:     db,
		table:  pgx.Identifier{table}.Sanitize(),
		logger: logger.With(zap.String("component", "state_store")),
	}, nil
}

// EnsureSchema creates the state table if it does not exist
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	connector  TEXT PRIMARY KEY,
	state      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)

	if _, err := s.db.Exec(ctx, query); err != nil {
		return errors.Wrap(err, errors.ErrorTypeStorage, "failed to create state table")
	}
	return nil
}

// Load implements Store
func (s *PostgresStore) Load(ctx context.Context, connector string) (models.State, error) {
	query := fmt.Sprintf(`SELECT state FROM %s WHERE connector = $1`, s.table)

	var raw []byte
	err := s.db.QueryRow(ctx, query, connector).Scan(&raw)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return models.State{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeStorage, "failed to load state").
			WithDetail("connector", connector)
	}

	state := models.State{}
	if err := jsonpool.Unmarshal(raw, &state); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeStorage, "failed to decode stored state").
			WithDetail("connector", connector)
	}
	return state, nil
}

// Save implements Store
func (s *PostgresStore) Save(ctx context.Context, connector string, state models.State) error {
	if state == nil {
		state = models.State{}
	}
	raw, err := jsonpool.Marshal(state)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeStorage, "failed to encode state")
	}

	query := fmt.Sprintf(`INSERT INTO %s (connector, state, updated_at) VALUES ($1, $2, now())
ON CONFLICT (connector) DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`, s.table)

	if _, err := s.db.Exec(ctx, query, connector, string(raw)); err != nil {
		return errors.Wrap(err, errors.ErrorTypeStorage, "failed to save state").
			WithDetail("connector", connector)
	}
	s.logger.Debug("state saved", zap.String("connector", connector))
	return nil
}

// Close implements Store
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
