// ABOUTME: Embedded SQLite analytical backend.
// ABOUTME: Uses modernc.org/sqlite (pure Go, no CGO required).
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLite is a Backend over a local SQLite database file.
type SQLite struct {
	db     *sql.DB
	dbPath string
}

// OpenSQLite opens or creates a SQLite database at the given path.
func OpenSQLite(dbPath string) (*SQLite, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Set file permissions
	if err := os.Chmod(dbPath, 0600); err != nil && !os.IsNotExist(err) {
		_ = db.Close()
		return nil, fmt.Errorf("set database permissions: %w", err)
	}

	s := &SQLite{db: db, dbPath: dbPath}
	if err := s.configurePragmas(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure pragmas: %w", err)
	}
	return s, nil
}

// Name implements Backend.
func (s *SQLite) Name() string { return "sqlite" }

// Path returns the database file path.
func (s *SQLite) Path() string { return s.dbPath }

// configurePragmas sets up SQLite for bulk analytical writes.
func (s *SQLite) configurePragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}
	return nil
}

// Migrate implements Backend.
func (s *SQLite) Migrate(ctx context.Context, tables []Table) error {
	for _, t := range tables {
		for _, stmt := range sqliteDDL(t) {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create table %s: %w", t.Name, err)
			}
		}
	}
	return nil
}

// Query implements Backend.
func (s *SQLite) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Insert implements Backend. All rows are written in one transaction.
func (s *SQLite) Insert(ctx context.Context, table Table, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert %s: %w", table.Name, err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, sqliteInsert(table))
	if err != nil {
		return fmt.Errorf("prepare insert %s: %w", table.Name, err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("insert %s: %w", table.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert %s: %w", table.Name, err)
	}
	return nil
}

// Truncate implements Backend.
func (s *SQLite) Truncate(ctx context.Context, table string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("truncate %s: %w", table, err)
	}
	return nil
}

// Ping implements Backend.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
