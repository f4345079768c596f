// ABOUTME: Raw event table reads and writes, plus change scans for recompute signals.
// ABOUTME: Domain-specific numeric fields are stored as a JSON object column.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/healthlake/internal/models"
)

// InsertRawEvents writes events to their domain tables, stamping every row
// with the store's current time as inserted_at. Any InsertedAt on the input
// is ignored. Re-inserting an event ID is a no-op.
func (s *Store) InsertRawEvents(ctx context.Context, events []*models.RawEvent) (int, error) {
	insertedAt := s.clock.Now().UTC().UnixMilli()
	byDomain := make(map[models.Domain][][]any)
	for _, e := range events {
		if !models.IsValidDomain(string(e.Domain)) {
			return 0, fmt.Errorf("insert raw event %s: unknown domain %q", e.EventID, e.Domain)
		}
		fields, err := json.Marshal(e.Fields)
		if err != nil {
			return 0, fmt.Errorf("marshal fields of %s: %w", e.EventID, err)
		}
		byDomain[e.Domain] = append(byDomain[e.Domain], []any{
			e.EventID,
			e.UserID,
			e.LocalDate,
			e.RecordedAt.UnixMilli(),
			e.Timezone,
			e.Source,
			string(fields),
			insertedAt,
		})
	}

	var n int
	for _, d := range models.RawDomains {
		rows := byDomain[d]
		if len(rows) == 0 {
			continue
		}
		if err := s.insert(ctx, RawTable(d), rows); err != nil {
			return n, fmt.Errorf("insert raw %s: %w", d, err)
		}
		n += len(rows)
	}
	return n, nil
}

const rawSelect = "SELECT event_id, user_id, local_date, recorded_at, timezone, source, fields, inserted_at FROM "

func scanRawEvent(d models.Domain) func(Rows) (*models.RawEvent, error) {
	return func(rows Rows) (*models.RawEvent, error) {
		var (
			e                      models.RawEvent
			recordedAt, insertedAt int64
			fields                 string
		)
		if err := rows.Scan(&e.EventID, &e.UserID, &e.LocalDate, &recordedAt, &e.Timezone, &e.Source, &fields, &insertedAt); err != nil {
			return nil, fmt.Errorf("scan raw event: %w", err)
		}
		e.Domain = d
		e.RecordedAt = time.UnixMilli(recordedAt).UTC()
		e.InsertedAt = time.UnixMilli(insertedAt).UTC()
		if err := json.Unmarshal([]byte(fields), &e.Fields); err != nil {
			return nil, fmt.Errorf("decode fields of %s: %w", e.EventID, err)
		}
		return &e, nil
	}
}

// ListRawEventsSince returns a domain's events whose local date is on or
// after sinceDate, or which were recorded on or after recordedSince.
// The second bound catches events whose stored local date lags their
// timezone-adjusted day.
func (s *Store) ListRawEventsSince(ctx context.Context, d models.Domain, sinceDate string, recordedSince time.Time) ([]*models.RawEvent, error) {
	t := RawTable(d)
	query := rawSelect + t.Name + " WHERE local_date >= ? OR recorded_at >= ? ORDER BY user_id, recorded_at, event_id"
	events, err := queryRows(ctx, s, scanRawEvent(d), query, sinceDate, recordedSince.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("list raw %s: %w", d, err)
	}
	return events, nil
}

// ListUserRawEvents returns all of one user's events for a domain.
func (s *Store) ListUserRawEvents(ctx context.Context, d models.Domain, userID string) ([]*models.RawEvent, error) {
	t := RawTable(d)
	query := rawSelect + t.Name + " WHERE user_id = ? ORDER BY local_date, recorded_at, event_id"
	events, err := queryRows(ctx, s, scanRawEvent(d), query, userID)
	if err != nil {
		return nil, fmt.Errorf("list raw %s for %s: %w", d, userID, err)
	}
	return events, nil
}

// ChangedUsers returns the distinct users with events first inserted into a
// domain's raw table at or after since. A stored duplicate of an older event
// does not count as a change.
func (s *Store) ChangedUsers(ctx context.Context, d models.Domain, since time.Time) ([]string, error) {
	t := RawTable(d)
	query := "SELECT DISTINCT user_id FROM (SELECT user_id, event_id, min(inserted_at) AS first_inserted_at FROM " +
		t.Name + " GROUP BY user_id, event_id) AS firsts WHERE first_inserted_at >= ? ORDER BY user_id"
	users, err := queryRows(ctx, s, scanString, query, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("scan changes in %s: %w", t.Name, err)
	}
	return users, nil
}

// ListUsers returns the distinct users present in the given domains' raw tables.
func (s *Store) ListUsers(ctx context.Context, domains ...models.Domain) ([]string, error) {
	seen := make(map[string]bool)
	var users []string
	for _, d := range domains {
		t := RawTable(d)
		ids, err := queryRows(ctx, s, scanString, "SELECT DISTINCT user_id FROM "+t.Name+" ORDER BY user_id")
		if err != nil {
			return nil, fmt.Errorf("list users in %s: %w", t.Name, err)
		}
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				users = append(users, id)
			}
		}
	}
	return users, nil
}

func scanString(rows Rows) (string, error) {
	var v string
	if err := rows.Scan(&v); err != nil {
		return "", err
	}
	return v, nil
}

func scanInt64(rows Rows) (int64, error) {
	var v int64
	if err := rows.Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

func joinCols(cols []string) string {
	return strings.Join(cols, ", ")
}
