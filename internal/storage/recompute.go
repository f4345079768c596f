// ABOUTME: Outbound recompute queue writes.
// ABOUTME: The queue is consumed downstream; reads exist for inspection only.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/healthlake/internal/models"
)

// EnqueueRecompute writes recompute entries.
func (s *Store) EnqueueRecompute(ctx context.Context, entries []*models.RecomputeEntry) error {
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []any{
			e.EventID,
			e.UserID,
			e.Reason,
			int64(e.Priority),
			e.QueuedAt.UnixMilli(),
			nullable(e.RequestedDate),
			strings.Join(e.SourceTables, ","),
		})
	}
	if err := s.insert(ctx, RecomputeTable, rows); err != nil {
		return fmt.Errorf("enqueue recompute: %w", err)
	}
	return nil
}

// ListRecompute returns queue entries queued at or after since, oldest first.
func (s *Store) ListRecompute(ctx context.Context, since time.Time) ([]*models.RecomputeEntry, error) {
	query := "SELECT event_id, user_id, reason, priority, queued_at, requested_date, source_tables FROM " +
		RecomputeTable.Name + " WHERE queued_at >= ? ORDER BY queued_at, user_id"

	scan := func(rows Rows) (*models.RecomputeEntry, error) {
		var (
			e                  models.RecomputeEntry
			priority, queuedAt int64
			tables             string
		)
		if err := rows.Scan(&e.EventID, &e.UserID, &e.Reason, &priority, &queuedAt, &e.RequestedDate, &tables); err != nil {
			return nil, fmt.Errorf("scan recompute entry: %w", err)
		}
		e.Priority = int(priority)
		e.QueuedAt = time.UnixMilli(queuedAt).UTC()
		if tables != "" {
			e.SourceTables = strings.Split(tables, ",")
		}
		return &e, nil
	}

	entries, err := queryRows(ctx, s, scan, query, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("list recompute: %w", err)
	}
	return entries, nil
}
