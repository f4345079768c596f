// ABOUTME: ClickHouse analytical backend over the native protocol.
// ABOUTME: Bulk writes go through prepared batches; tables use (Replacing)MergeTree.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickHouseConfig holds connection settings for the ClickHouse backend.
type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string

	// MaxExecutionTime is the server-side query timeout.
	MaxExecutionTime time.Duration
}

// ClickHouse is a Backend over a shared native ClickHouse connection.
type ClickHouse struct {
	conn driver.Conn
	log  *slog.Logger
}

// OpenClickHouse connects to ClickHouse and verifies the connection.
func OpenClickHouse(ctx context.Context, log *slog.Logger, cfg ClickHouseConfig) (*ClickHouse, error) {
	maxExec := cfg.MaxExecutionTime
	if maxExec <= 0 {
		maxExec = 60 * time.Second
	}
	options := &clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": int(maxExec.Seconds()),
		},
		DialTimeout: 5 * time.Second,
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	log.Info("ClickHouse backend initialized", "addr", cfg.Addr, "database", cfg.Database)

	return &ClickHouse{conn: conn, log: log}, nil
}

// Name implements Backend.
func (c *ClickHouse) Name() string { return "clickhouse" }

// Migrate implements Backend.
func (c *ClickHouse) Migrate(ctx context.Context, tables []Table) error {
	for _, t := range tables {
		if err := c.conn.Exec(ctx, clickhouseDDL(t)); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
		c.log.Debug("clickhouse: table ready", "table", t.Name)
	}
	return nil
}

// Query implements Backend.
func (c *ClickHouse) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := c.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Insert implements Backend. Rows are sent as one batch. For WriteIgnore
// tables, rows whose key is already stored are dropped first, so the first
// write wins as it does under SQLite's ON CONFLICT DO NOTHING.
func (c *ClickHouse) Insert(ctx context.Context, table Table, rows [][]any) error {
	if table.Mode == WriteIgnore {
		var err error
		if rows, err = c.dropStored(ctx, table, rows); err != nil {
			return err
		}
	}
	if len(rows) == 0 {
		return nil
	}
	batch, err := c.conn.PrepareBatch(ctx, clickhouseInsert(table))
	if err != nil {
		return fmt.Errorf("prepare batch %s: %w", table.Name, err)
	}
	for _, row := range rows {
		if err := batch.Append(row...); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append batch %s: %w", table.Name, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch %s: %w", table.Name, err)
	}
	return nil
}

// ignoreLookupChunk bounds the key list of one existence query.
const ignoreLookupChunk = 5000

func (c *ClickHouse) dropStored(ctx context.Context, table Table, rows [][]any) ([][]any, error) {
	idx := keyIndex(table)
	if idx < 0 || len(rows) == 0 {
		return rows, nil
	}
	keys := make([]string, 0, len(rows))
	for _, r := range rows {
		keys = append(keys, fmt.Sprint(r[idx]))
	}

	key := table.Key[0]
	query := fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IN (?)", key, table.Name, key)
	stored := make(map[string]bool)
	for start := 0; start < len(keys); start += ignoreLookupChunk {
		end := min(start+ignoreLookupChunk, len(keys))
		found, err := c.Query(ctx, query, keys[start:end])
		if err != nil {
			return nil, fmt.Errorf("lookup stored keys in %s: %w", table.Name, err)
		}
		for found.Next() {
			var k string
			if err := found.Scan(&k); err != nil {
				_ = found.Close()
				return nil, fmt.Errorf("scan stored key in %s: %w", table.Name, err)
			}
			stored[k] = true
		}
		err = found.Err()
		_ = found.Close()
		if err != nil {
			return nil, fmt.Errorf("lookup stored keys in %s: %w", table.Name, err)
		}
	}

	kept := firstUnseen(rows, idx, stored)
	if dropped := len(rows) - len(kept); dropped > 0 {
		c.log.Debug("clickhouse: skipped stored keys", "table", table.Name, "rows", dropped)
	}
	return kept, nil
}

// Truncate implements Backend.
func (c *ClickHouse) Truncate(ctx context.Context, table string) error {
	if err := c.conn.Exec(ctx, "TRUNCATE TABLE IF EXISTS "+table); err != nil {
		return fmt.Errorf("truncate %s: %w", table, err)
	}
	return nil
}

// Ping implements Backend.
func (c *ClickHouse) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

// Close implements Backend.
func (c *ClickHouse) Close() error {
	return c.conn.Close()
}
