package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps database access helpers.
type Store struct {
	pool        *pgxpool.Pool
	stmtTimeout time.Duration
}

// New creates a Store backed by a pgx pool. stmtTimeout bounds every single
// statement; zero disables it.
func New(ctx context.Context, databaseURL string, stmtTimeout time.Duration) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	s := &Store{pool: pool, stmtTimeout: stmtTimeout}
	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return s, nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.stmtContext(ctx)
	defer cancel()
	return s.pool.Ping(ctx)
}

// Close releases the pool resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) stmtContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.stmtTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.stmtTimeout)
}

// PersistenceError reports a failed statement. Row is the zero-based index
// of the observation being inserted, or -1 for schema statements.
type PersistenceError struct {
	Statement string
	Row       int
	Err       error
}

func (e *PersistenceError) Error() string {
	if e.Row >= 0 {
		return fmt.Sprintf("%s row %d: %v", e.Statement, e.Row, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Statement, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
