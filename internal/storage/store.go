// ABOUTME: Typed analytical store over a swappable Backend.
// ABOUTME: Explicitly constructed and closed; injected into every pipeline component.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/harperreed/healthlake/internal/metrics"
)

// Backend names.
const (
	BackendSQLite     = "sqlite"
	BackendClickHouse = "clickhouse"
)

// Options selects and configures a backend.
type Options struct {
	Backend    string
	SQLitePath string
	ClickHouse ClickHouseConfig

	// Clock stamps inserted_at on raw writes. Defaults to the real clock.
	Clock clockwork.Clock
}

// Store exposes the fixed table set as typed, set-oriented operations.
type Store struct {
	backend Backend
	log     *slog.Logger
	clock   clockwork.Clock
}

// New wraps a backend and ensures the table set exists. A nil clock uses
// the real clock.
func New(ctx context.Context, log *slog.Logger, clock clockwork.Clock, backend Backend) (*Store, error) {
	if backend == nil {
		return nil, ErrNotConfigured
	}
	if log == nil {
		log = slog.Default()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if err := backend.Migrate(ctx, AllTables()); err != nil {
		return nil, fmt.Errorf("migrate %s: %w", backend.Name(), err)
	}
	return &Store{backend: backend, log: log, clock: clock}, nil
}

// Open connects the configured backend. Any failure to reach the store is
// reported as ErrNotConfigured so callers can degrade to no-ops.
func Open(ctx context.Context, log *slog.Logger, opts Options) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	var (
		backend Backend
		err     error
	)
	switch opts.Backend {
	case BackendSQLite:
		if opts.SQLitePath == "" {
			return nil, fmt.Errorf("%w: sqlite path is empty", ErrNotConfigured)
		}
		backend, err = OpenSQLite(opts.SQLitePath)
	case BackendClickHouse:
		if opts.ClickHouse.Addr == "" {
			return nil, fmt.Errorf("%w: clickhouse address is empty", ErrNotConfigured)
		}
		backend, err = OpenClickHouse(ctx, log, opts.ClickHouse)
	case "":
		return nil, ErrNotConfigured
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrNotConfigured, opts.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}

	s, err := New(ctx, log, opts.Clock, backend)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return s, nil
}

// Backend returns the underlying execution backend.
func (s *Store) Backend() Backend {
	return s.backend
}

// Ping checks that the backend is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// Close releases the backend connection.
func (s *Store) Close() error {
	if s == nil || s.backend == nil {
		return nil
	}
	return s.backend.Close()
}

// insert writes rows through the backend and counts them.
func (s *Store) insert(ctx context.Context, t Table, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	if err := s.backend.Insert(ctx, t, rows); err != nil {
		return err
	}
	metrics.RowsWrittenTotal.WithLabelValues(t.Name).Add(float64(len(rows)))
	s.log.Debug("store: rows written", "table", t.Name, "rows", len(rows))
	return nil
}

// queryRows runs a query and scans every row with scan.
func queryRows[T any](ctx context.Context, s *Store, scan func(Rows) (T, error), query string, args ...any) ([]T, error) {
	rows, err := s.backend.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// latestWhere restricts a query on table t to the highest version per key.
func latestWhere(t Table, filter string) string {
	keys := joinCols(t.Key)
	return fmt.Sprintf("(%s, %s) IN (SELECT %s, max(%s) FROM %s WHERE %s GROUP BY %s)",
		keys, t.Version, keys, t.Version, t.Name, filter, keys)
}
