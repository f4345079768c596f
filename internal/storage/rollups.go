// ABOUTME: Daily rollup table writes and latest-wins reads.
// ABOUTME: Each cycle appends a new version of every rollup in the window.
package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/harperreed/healthlake/internal/models"
)

// WriteRollups appends rollup rows for one domain.
func (s *Store) WriteRollups(ctx context.Context, d models.Domain, rollups []*models.DailyRollup) error {
	rows := make([][]any, 0, len(rollups))
	for _, r := range rollups {
		fields, err := json.Marshal(r.Fields)
		if err != nil {
			return fmt.Errorf("marshal rollup fields: %w", err)
		}
		rows = append(rows, []any{
			r.UserID,
			r.LocalDate,
			string(fields),
			r.Provenance,
			nullable(r.Median),
			nullable(r.Min),
			nullable(r.Max),
			int64(r.SampleCount),
			r.Version,
		})
	}
	if err := s.insert(ctx, RollupTable(d), rows); err != nil {
		return fmt.Errorf("write rollups %s: %w", d, err)
	}
	return nil
}

// CurrentRollups returns the latest version of each rollup on or after sinceDate.
func (s *Store) CurrentRollups(ctx context.Context, d models.Domain, sinceDate string) ([]*models.DailyRollup, error) {
	t := RollupTable(d)
	query := fmt.Sprintf(
		"SELECT user_id, local_date, fields, provenance, day_median, day_min, day_max, sample_count, version FROM %s WHERE local_date >= ? AND %s ORDER BY user_id, local_date",
		t.Name, latestWhere(t, "local_date >= ?"))

	scan := func(rows Rows) (*models.DailyRollup, error) {
		var (
			r      models.DailyRollup
			fields string
			count  int64
		)
		if err := rows.Scan(&r.UserID, &r.LocalDate, &fields, &r.Provenance, &r.Median, &r.Min, &r.Max, &count, &r.Version); err != nil {
			return nil, fmt.Errorf("scan rollup: %w", err)
		}
		r.Domain = d
		r.SampleCount = int(count)
		if err := json.Unmarshal([]byte(fields), &r.Fields); err != nil {
			return nil, fmt.Errorf("decode rollup fields: %w", err)
		}
		return &r, nil
	}

	rollups, err := queryRows(ctx, s, scan, query, sinceDate, sinceDate)
	if err != nil {
		return nil, fmt.Errorf("current rollups %s: %w", d, err)
	}
	return dedupeRollups(rollups), nil
}

// dedupeRollups keeps one rollup per key when versions tie.
func dedupeRollups(rollups []*models.DailyRollup) []*models.DailyRollup {
	seen := make(map[models.DayKey]int, len(rollups))
	out := rollups[:0]
	for _, r := range rollups {
		if i, ok := seen[r.Key()]; ok {
			out[i] = r
			continue
		}
		seen[r.Key()] = len(out)
		out = append(out, r)
	}
	return out
}
