// Package postgres implements the storage ports directly on PostgreSQL.
// It is the alternative to the Supabase backend for self-hosted setups.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/boddenberg/zeno-insights-bfa-go/internal/domain"
	"github.com/boddenberg/zeno-insights-bfa-go/internal/infra/resilience"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("postgres")

//go:embed schema.sql
var schema string

// Store provides database operations for records, insights and actions.
type Store struct {
	db     *sql.DB
	cb     *gobreaker.CircuitBreaker
	cfg    resilience.Config
	logger *zap.Logger
	newID  func() string
}

// Open connects to dsn with the lib/pq driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewStore wraps db. Reads go through cb with retries; writes go through
// cb only.
func NewStore(db *sql.DB, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Store {
	return &Store{
		db:     db,
		cb:     cb,
		cfg:    cfg,
		logger: logger,
		newID:  uuid.NewString,
	}
}

// Migrate creates the tables when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) read(ctx context.Context, op string, fn func() error) error {
	return wrapErr(op, resilience.Execute(ctx, s.cb, s.cfg, fn))
}

func (s *Store) write(ctx context.Context, op string, fn func() error) error {
	return wrapErr(op, resilience.Execute(ctx, s.cb, resilience.Config{}, fn))
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var notFound *domain.ErrNotFound
	var open *domain.ErrCircuitOpen
	if errors.As(err, &notFound) || errors.As(err, &open) {
		return err
	}
	return &domain.ErrExternalService{Service: "postgres/" + op, Err: err}
}
