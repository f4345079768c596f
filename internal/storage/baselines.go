// ABOUTME: Population baseline upserts/reads and training corpus access.
// ABOUTME: Corpus reads exclude rows tagged as live-user history.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/harperreed/healthlake/internal/models"
)

// UpsertBaselines writes baselines keyed by (pattern, stratum, baseline id).
func (s *Store) UpsertBaselines(ctx context.Context, baselines []*models.PopulationBaseline) error {
	rows := make([][]any, 0, len(baselines))
	for _, b := range baselines {
		rows = append(rows, []any{
			string(b.PatternType),
			b.Stratum,
			b.BaselineID,
			b.Mean,
			b.Std,
			b.Percentiles.P10,
			b.Percentiles.P25,
			b.Percentiles.P50,
			b.Percentiles.P75,
			b.Percentiles.P90,
			int64(b.SampleCount),
			b.LowThreshold,
			b.HighThreshold,
			b.ModelVersion,
			b.TrainedAt.UnixNano(),
		})
	}
	if err := s.insert(ctx, BaselineTable, rows); err != nil {
		return fmt.Errorf("upsert baselines: %w", err)
	}
	return nil
}

const baselineSelect = "SELECT pattern_type, stratum, baseline_id, mean, std, p10, p25, p50, p75, p90, sample_count, low_threshold, high_threshold, model_version, trained_at FROM "

func scanBaseline(rows Rows) (*models.PopulationBaseline, error) {
	var (
		b                models.PopulationBaseline
		pattern          string
		count, trainedAt int64
	)
	if err := rows.Scan(&pattern, &b.Stratum, &b.BaselineID, &b.Mean, &b.Std,
		&b.Percentiles.P10, &b.Percentiles.P25, &b.Percentiles.P50, &b.Percentiles.P75, &b.Percentiles.P90,
		&count, &b.LowThreshold, &b.HighThreshold, &b.ModelVersion, &trainedAt); err != nil {
		return nil, fmt.Errorf("scan baseline: %w", err)
	}
	b.PatternType = models.PatternType(pattern)
	b.SampleCount = int(count)
	b.TrainedAt = time.Unix(0, trainedAt).UTC()
	return &b, nil
}

// ListBaselines returns the current baselines for a baseline id (signal),
// or for every signal when baselineID is empty.
func (s *Store) ListBaselines(ctx context.Context, baselineID string) ([]*models.PopulationBaseline, error) {
	filter := "baseline_id = ?"
	args := []any{baselineID, baselineID}
	if baselineID == "" {
		filter = "1 = 1"
		args = nil
	}
	query := fmt.Sprintf("%s%s WHERE %s AND %s ORDER BY baseline_id, pattern_type, stratum",
		baselineSelect, BaselineTable.Name, filter, latestWhere(BaselineTable, filter))
	baselines, err := queryRows(ctx, s, scanBaseline, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list baselines: %w", err)
	}
	return baselines, nil
}

// GetBaseline returns the current baseline for one key, or nil when none was learned.
func (s *Store) GetBaseline(ctx context.Context, baselineID string, pattern models.PatternType, stratum string) (*models.PopulationBaseline, error) {
	filter := "baseline_id = ? AND pattern_type = ? AND stratum = ?"
	query := fmt.Sprintf("%s%s WHERE %s AND %s",
		baselineSelect, BaselineTable.Name, filter, latestWhere(BaselineTable, filter))
	args := []any{baselineID, string(pattern), stratum}
	baselines, err := queryRows(ctx, s, scanBaseline, query, append(args, args...)...)
	if err != nil {
		return nil, fmt.Errorf("get baseline: %w", err)
	}
	if len(baselines) == 0 {
		return nil, nil
	}
	return baselines[len(baselines)-1], nil
}

// InsertTrainingReadings appends readings to the training corpus.
func (s *Store) InsertTrainingReadings(ctx context.Context, readings []*models.TrainingReading) error {
	rows := make([][]any, 0, len(readings))
	for _, r := range readings {
		rows = append(rows, []any{
			r.ReadingID,
			r.SubjectID,
			r.Signal,
			r.Value,
			r.RecordedAt.UnixMilli(),
			int64(r.HourOfDay),
			r.Scenario,
			r.Origin,
			r.Source,
		})
	}
	if err := s.insert(ctx, TrainingCorpusTable, rows); err != nil {
		return fmt.Errorf("insert training readings: %w", err)
	}
	return nil
}

// ListTrainingReadings returns a signal's corpus rows, never including
// rows tagged as live-user history.
func (s *Store) ListTrainingReadings(ctx context.Context, signal string) ([]*models.TrainingReading, error) {
	query := "SELECT reading_id, subject_id, signal, value, recorded_at, hour_of_day, scenario, origin, source FROM " +
		TrainingCorpusTable.Name + " WHERE signal = ? AND origin != ? ORDER BY subject_id, recorded_at"

	scan := func(rows Rows) (*models.TrainingReading, error) {
		var (
			r                models.TrainingReading
			recordedAt, hour int64
		)
		if err := rows.Scan(&r.ReadingID, &r.SubjectID, &r.Signal, &r.Value, &recordedAt, &hour, &r.Scenario, &r.Origin, &r.Source); err != nil {
			return nil, fmt.Errorf("scan training reading: %w", err)
		}
		r.RecordedAt = time.UnixMilli(recordedAt).UTC()
		r.HourOfDay = int(hour)
		return &r, nil
	}

	readings, err := queryRows(ctx, s, scan, query, signal, models.OriginLiveUser)
	if err != nil {
		return nil, fmt.Errorf("list training readings: %w", err)
	}
	return readings, nil
}

// CountTrainingReadings returns the number of eligible corpus rows.
func (s *Store) CountTrainingReadings(ctx context.Context) (int, error) {
	query := "SELECT CAST(count(*) AS Int64) FROM " + TrainingCorpusTable.Name + " WHERE origin != ?"
	counts, err := queryRows(ctx, s, scanInt64, query, models.OriginLiveUser)
	if err != nil {
		return 0, fmt.Errorf("count training readings: %w", err)
	}
	if len(counts) == 0 {
		return 0, nil
	}
	return int(counts[0]), nil
}

// ClearTrainingCorpus removes every corpus row.
func (s *Store) ClearTrainingCorpus(ctx context.Context) error {
	return s.backend.Truncate(ctx, TrainingCorpusTable.Name)
}
