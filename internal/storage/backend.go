// ABOUTME: Narrow analytical-store backend interface: query in, rows out, bulk insert.
// ABOUTME: Implemented by the embedded SQLite backend and the ClickHouse backend.
package storage

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when no analytical store is reachable or configured.
var ErrNotConfigured = errors.New("analytical store not configured")

// ErrNotFound is returned when a requested current row does not exist.
var ErrNotFound = errors.New("not found")

// Rows is the cursor returned by Backend.Query.
// Both *sql.Rows and clickhouse driver.Rows satisfy it.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// Backend executes set-oriented reads and bulk writes against one store technology.
type Backend interface {
	// Name identifies the backend ("sqlite" or "clickhouse").
	Name() string
	// Migrate creates any missing tables.
	Migrate(ctx context.Context, tables []Table) error
	// Query runs a read and returns its rows. Placeholders are positional '?'.
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	// Insert writes rows atomically, honouring the table's write mode.
	Insert(ctx context.Context, table Table, rows [][]any) error
	// Truncate removes every row of a table.
	Truncate(ctx context.Context, table string) error
	Ping(ctx context.Context) error
	Close() error
}

// ColumnType is a portable column type.
type ColumnType int

const (
	ColString ColumnType = iota
	ColInt64
	ColFloat64
	ColNullString
	ColNullInt64
	ColNullFloat64
)

// Column is one column of a table.
type Column struct {
	Name string
	Type ColumnType
}

// WriteMode controls how rows that share a key are resolved.
type WriteMode int

const (
	// WriteAppend keeps every version; readers pick the highest version.
	WriteAppend WriteMode = iota
	// WriteUpsert keeps one row per key; a write wins when its version is not older.
	WriteUpsert
	// WriteIgnore keeps the first row per key; re-inserts are no-ops.
	WriteIgnore
)

// Table describes a table of the fixed table set.
type Table struct {
	Name    string
	Columns []Column
	Key     []string
	Version string
	Mode    WriteMode

	// PartitionBy is an optional ClickHouse partition expression.
	PartitionBy string
}

// ColumnNames returns the table's column names in order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// nullable converts a typed nil pointer into an untyped nil so every driver
// binds it as NULL, and dereferences non-nil pointers.
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
