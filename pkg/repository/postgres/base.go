// Package postgres implements the repository.* interfaces against a
// Postgres-compatible sqlx.DB, following the teacher's
// pkg/repository/postgres package: a shared BaseRepository carrying the
// tracer/metrics/cache/retry plumbing, embedded into each entity-specific
// repository.
package postgres

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/S-Corkum/agentmesh/pkg/apperr"
	"github.com/S-Corkum/agentmesh/pkg/cache"
	"github.com/S-Corkum/agentmesh/pkg/observability"
)

// BaseRepository holds the dependencies and helpers every entity repository
// needs: read/write DB handles (the write handle doubles as the read handle
// when no replica is configured), a cache, structured logging, tracing, and
// a bounded-retry helper for serialization failures.
type BaseRepository struct {
	WriteDB *sqlx.DB
	ReadDB  *sqlx.DB
	Cache   cache.Cache
	Logger  observability.Logger
	Metrics observability.MetricsClient
	Tracer  observability.StartSpanFunc

	QueryTimeout time.Duration
	MaxRetries   int

	stmtCache   map[string]*sqlx.NamedStmt
	stmtCacheMu sync.RWMutex
}

// NewBaseRepository wires a BaseRepository the way the teacher's
// NewBaseRepository does, defaulting timeouts/retries when unset.
func NewBaseRepository(writeDB, readDB *sqlx.DB, c cache.Cache, logger observability.Logger, metrics observability.MetricsClient, tracer observability.StartSpanFunc) *BaseRepository {
	if readDB == nil {
		readDB = writeDB
	}
	return &BaseRepository{
		WriteDB:      writeDB,
		ReadDB:       readDB,
		Cache:        c,
		Logger:       logger,
		Metrics:      metrics,
		Tracer:       tracer,
		QueryTimeout: 30 * time.Second,
		MaxRetries:   3,
		stmtCache:    make(map[string]*sqlx.NamedStmt),
	}
}

// WithTimeout wraps ctx with the repository's configured query timeout.
func (r *BaseRepository) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.QueryTimeout)
}

// Prepared returns a cached *sqlx.NamedStmt for query, preparing it once.
func (r *BaseRepository) Prepared(ctx context.Context, name, query string) (*sqlx.NamedStmt, error) {
	r.stmtCacheMu.RLock()
	stmt, ok := r.stmtCache[name]
	r.stmtCacheMu.RUnlock()
	if ok {
		return stmt, nil
	}

	r.stmtCacheMu.Lock()
	defer r.stmtCacheMu.Unlock()
	if stmt, ok := r.stmtCache[name]; ok {
		return stmt, nil
	}
	stmt, err := r.WriteDB.PrepareNamedContext(ctx, query)
	if err != nil {
		return nil, err
	}
	r.stmtCache[name] = stmt
	return stmt, nil
}

// RetryWrite runs fn with exponential backoff on retryable Postgres errors
// (serialization failure, deadlock), bounded at MaxRetries attempts, per
// spec.md §4.1's "retried up to a small bound" clause and P-style
// VERSION_CONFLICT handling in §7. It uses cenkalti/backoff/v4 in place of
// the teacher's hand-rolled attempt loop.
func (r *BaseRepository) RetryWrite(ctx context.Context, op string, fn func() error) error {
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(r.MaxRetries))
	var lastErr error
	err := backoff.Retry(func() error {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return backoff.Permanent(lastErr)
		}
		return lastErr
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return apperr.Wrap(op, apperr.Internal, lastErr)
	}
	return nil
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "53200", "53300", "58000", "58030":
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe")
}

// ClassifyNotFound converts sql.ErrNoRows into apperr.NotFound; other errors
// pass through wrapped as apperr.Internal.
func ClassifyNotFound(op string, err error) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return apperr.New(op, apperr.NotFound, "entity not found")
	}
	return apperr.Wrap(op, apperr.Internal, err)
}

// ClassifyConstraint converts a unique-violation Postgres error into
// apperr.Conflict; other errors pass through wrapped as apperr.Internal.
func ClassifyConstraint(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pq.Error
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return apperr.New(op, apperr.Conflict, "entity already exists")
	}
	return apperr.Wrap(op, apperr.Internal, err)
}
