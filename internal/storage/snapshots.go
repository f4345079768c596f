// ABOUTME: Daily feature snapshot writes and latest-wins reads.
// ABOUTME: Exactly one version per (user, date) is current; ties favour the enriched stage.
package storage

import (
	"context"
	"fmt"

	"github.com/harperreed/healthlake/internal/models"
)

// WriteSnapshots appends one versioned row per snapshot.
func (s *Store) WriteSnapshots(ctx context.Context, snaps []*models.FeatureSnapshot) error {
	features := models.FeatureFields()
	rows := make([][]any, 0, len(snaps))
	for _, snap := range snaps {
		row := make([]any, 0, len(SnapshotTable.Columns))
		row = append(row, snap.UserID, snap.LocalDate)
		for _, f := range features {
			if v, ok := snap.Features[f]; ok {
				row = append(row, v)
			} else {
				row = append(row, nil)
			}
		}
		row = append(row,
			snap.WeightProvenance,
			snap.Stage,
			nullable(snap.WeightTrend7d),
			nullable(snap.WeightSlope),
			nullable(snap.VolatilityScore),
			nullable(snap.WeighInsPerWeek),
			nullableInt(snap.DaysSinceWeighIn),
			nullableInt(snap.NutritionDays14d),
			nullableInt(snap.GlucoseDays14d),
			snap.Version,
		)
		rows = append(rows, row)
	}
	if err := s.insert(ctx, SnapshotTable, rows); err != nil {
		return fmt.Errorf("write snapshots: %w", err)
	}
	return nil
}

func scanSnapshot(rows Rows) (*models.FeatureSnapshot, error) {
	features := models.FeatureFields()
	var (
		snap                               models.FeatureSnapshot
		daysSince, nutritionDays, glucDays *int64
	)
	values := make([]*float64, len(features))

	dest := []any{&snap.UserID, &snap.LocalDate}
	for i := range values {
		dest = append(dest, &values[i])
	}
	dest = append(dest,
		&snap.WeightProvenance,
		&snap.Stage,
		&snap.WeightTrend7d,
		&snap.WeightSlope,
		&snap.VolatilityScore,
		&snap.WeighInsPerWeek,
		&daysSince,
		&nutritionDays,
		&glucDays,
		&snap.Version,
	)
	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}

	snap.Features = make(map[string]float64)
	for i, f := range features {
		if values[i] != nil {
			snap.Features[f] = *values[i]
		}
	}
	snap.DaysSinceWeighIn = intPtr(daysSince)
	snap.NutritionDays14d = intPtr(nutritionDays)
	snap.GlucoseDays14d = intPtr(glucDays)
	return &snap, nil
}

// CurrentSnapshots returns the current snapshot of every (user, date) on or
// after sinceDate, ordered by user then date.
func (s *Store) CurrentSnapshots(ctx context.Context, sinceDate string) ([]*models.FeatureSnapshot, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE local_date >= ? AND %s ORDER BY user_id, local_date",
		joinCols(SnapshotTable.ColumnNames()), SnapshotTable.Name, latestWhere(SnapshotTable, "local_date >= ?"))
	snaps, err := queryRows(ctx, s, scanSnapshot, query, sinceDate, sinceDate)
	if err != nil {
		return nil, fmt.Errorf("current snapshots: %w", err)
	}
	return ResolveLatest(snaps), nil
}

// GetSnapshot returns the current snapshot for one (user, date).
func (s *Store) GetSnapshot(ctx context.Context, userID, date string) (*models.FeatureSnapshot, error) {
	filter := "user_id = ? AND local_date = ?"
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s AND %s",
		joinCols(SnapshotTable.ColumnNames()), SnapshotTable.Name, filter, latestWhere(SnapshotTable, filter))
	snaps, err := queryRows(ctx, s, scanSnapshot, query, userID, date, userID, date)
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	snaps = ResolveLatest(snaps)
	if len(snaps) == 0 {
		return nil, fmt.Errorf("%w: snapshot %s %s", ErrNotFound, userID, date)
	}
	return snaps[0], nil
}

// ListUserSnapshots returns a user's current snapshots between two dates inclusive.
func (s *Store) ListUserSnapshots(ctx context.Context, userID, from, to string) ([]*models.FeatureSnapshot, error) {
	filter := "user_id = ? AND local_date >= ? AND local_date <= ?"
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s AND %s ORDER BY local_date",
		joinCols(SnapshotTable.ColumnNames()), SnapshotTable.Name, filter, latestWhere(SnapshotTable, filter))
	snaps, err := queryRows(ctx, s, scanSnapshot, query, userID, from, to, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list snapshots for %s: %w", userID, err)
	}
	return ResolveLatest(snaps), nil
}

// CountSnapshotVersions returns how many physical versions exist for a (user, date).
func (s *Store) CountSnapshotVersions(ctx context.Context, userID, date string) (int, error) {
	query := "SELECT CAST(count(*) AS Int64) FROM " + SnapshotTable.Name + " WHERE user_id = ? AND local_date = ?"
	counts, err := queryRows(ctx, s, scanInt64, query, userID, date)
	if err != nil {
		return 0, fmt.Errorf("count snapshot versions: %w", err)
	}
	if len(counts) == 0 {
		return 0, nil
	}
	return int(counts[0]), nil
}

// ResolveLatest collapses snapshots to one per (user, date) under latest-wins,
// preserving the order of first appearance.
func ResolveLatest(snaps []*models.FeatureSnapshot) []*models.FeatureSnapshot {
	index := make(map[models.DayKey]int, len(snaps))
	out := make([]*models.FeatureSnapshot, 0, len(snaps))
	for _, snap := range snaps {
		if i, ok := index[snap.Key()]; ok {
			if snap.Supersedes(out[i]) {
				out[i] = snap
			}
			continue
		}
		index[snap.Key()] = len(out)
		out = append(out, snap)
	}
	return out
}

func nullableInt(p *int) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}

func intPtr(p *int64) *int {
	if p == nil {
		return nil
	}
	v := int(*p)
	return &v
}
