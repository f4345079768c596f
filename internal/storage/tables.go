// ABOUTME: Fixed table catalogue: raw, rollup, snapshot, baseline, correlation, queue, corpus.
// ABOUTME: Every table resolves repeated keys by latest version.
package storage

import (
	"github.com/harperreed/healthlake/internal/models"
)

var rawColumns = []Column{
	{Name: "event_id", Type: ColString},
	{Name: "user_id", Type: ColString},
	{Name: "local_date", Type: ColString},
	{Name: "recorded_at", Type: ColInt64},
	{Name: "timezone", Type: ColString},
	{Name: "source", Type: ColString},
	{Name: "fields", Type: ColString},
	{Name: "inserted_at", Type: ColInt64},
}

var rollupColumns = []Column{
	{Name: "user_id", Type: ColString},
	{Name: "local_date", Type: ColString},
	{Name: "fields", Type: ColString},
	{Name: "provenance", Type: ColString},
	{Name: "day_median", Type: ColNullFloat64},
	{Name: "day_min", Type: ColNullFloat64},
	{Name: "day_max", Type: ColNullFloat64},
	{Name: "sample_count", Type: ColInt64},
	{Name: "version", Type: ColInt64},
}

// RawTable returns the raw event table for a domain.
func RawTable(d models.Domain) Table {
	return Table{
		Name:        "raw_" + rawTableSuffix(d),
		Columns:     rawColumns,
		Key:         []string{"event_id"},
		Version:     "inserted_at",
		Mode:        WriteIgnore,
		PartitionBy: "substring(local_date, 1, 7)",
	}
}

func rawTableSuffix(d models.Domain) string {
	switch d {
	case models.DomainBehaviorFactor:
		return "behavior_factors"
	case models.DomainSurvey:
		return "surveys"
	default:
		return string(d)
	}
}

// RollupTable returns the daily rollup table for a domain.
func RollupTable(d models.Domain) Table {
	return Table{
		Name:        "rollup_" + string(d),
		Columns:     rollupColumns,
		Key:         []string{"user_id", "local_date"},
		Version:     "version",
		Mode:        WriteAppend,
		PartitionBy: "substring(local_date, 1, 7)",
	}
}

// snapshotBaseColumns precede the feature columns; snapshotTrailColumns follow them.
var (
	snapshotBaseColumns = []Column{
		{Name: "user_id", Type: ColString},
		{Name: "local_date", Type: ColString},
	}
	snapshotTrailColumns = []Column{
		{Name: "weight_provenance", Type: ColString},
		{Name: "stage", Type: ColString},
		{Name: "weight_trend_7d", Type: ColNullFloat64},
		{Name: "weight_slope", Type: ColNullFloat64},
		{Name: "volatility_score", Type: ColNullFloat64},
		{Name: "weigh_ins_per_week", Type: ColNullFloat64},
		{Name: "days_since_weigh_in", Type: ColNullInt64},
		{Name: "nutrition_days_14d", Type: ColNullInt64},
		{Name: "glucose_days_14d", Type: ColNullInt64},
		{Name: "version", Type: ColInt64},
	}
)

// SnapshotTable is the wide daily feature snapshot table.
var SnapshotTable = func() Table {
	cols := append([]Column{}, snapshotBaseColumns...)
	for _, f := range models.FeatureFields() {
		cols = append(cols, Column{Name: f, Type: ColNullFloat64})
	}
	cols = append(cols, snapshotTrailColumns...)
	return Table{
		Name:        "daily_feature_snapshot",
		Columns:     cols,
		Key:         []string{"user_id", "local_date"},
		Version:     "version",
		Mode:        WriteAppend,
		PartitionBy: "substring(local_date, 1, 7)",
	}
}()

// BaselineTable holds learned population baselines.
var BaselineTable = Table{
	Name: "population_baselines",
	Columns: []Column{
		{Name: "pattern_type", Type: ColString},
		{Name: "stratum", Type: ColString},
		{Name: "baseline_id", Type: ColString},
		{Name: "mean", Type: ColFloat64},
		{Name: "std", Type: ColFloat64},
		{Name: "p10", Type: ColFloat64},
		{Name: "p25", Type: ColFloat64},
		{Name: "p50", Type: ColFloat64},
		{Name: "p75", Type: ColFloat64},
		{Name: "p90", Type: ColFloat64},
		{Name: "sample_count", Type: ColInt64},
		{Name: "low_threshold", Type: ColFloat64},
		{Name: "high_threshold", Type: ColFloat64},
		{Name: "model_version", Type: ColString},
		{Name: "trained_at", Type: ColInt64},
	},
	Key:     []string{"pattern_type", "stratum", "baseline_id"},
	Version: "trained_at",
	Mode:    WriteUpsert,
}

// CorrelationTable holds behavior-outcome correlations.
var CorrelationTable = Table{
	Name: "behavior_outcome_correlations",
	Columns: []Column{
		{Name: "corr_key", Type: ColString},
		{Name: "user_id", Type: ColString},
		{Name: "behavior_key", Type: ColString},
		{Name: "outcome_dimension", Type: ColString},
		{Name: "direction", Type: ColString},
		{Name: "effect_size_pct", Type: ColFloat64},
		{Name: "high_mean", Type: ColFloat64},
		{Name: "low_mean", Type: ColFloat64},
		{Name: "sample_size", Type: ColInt64},
		{Name: "significant", Type: ColInt64},
		{Name: "actionable", Type: ColInt64},
		{Name: "trained_at", Type: ColInt64},
	},
	Key:     []string{"corr_key"},
	Version: "trained_at",
	Mode:    WriteUpsert,
}

// RecomputeTable is the outbound recompute-signal queue.
var RecomputeTable = Table{
	Name: "recompute_queue",
	Columns: []Column{
		{Name: "event_id", Type: ColString},
		{Name: "user_id", Type: ColString},
		{Name: "reason", Type: ColString},
		{Name: "priority", Type: ColInt64},
		{Name: "queued_at", Type: ColInt64},
		{Name: "requested_date", Type: ColNullString},
		{Name: "source_tables", Type: ColString},
	},
	Key:     []string{"event_id"},
	Version: "queued_at",
	Mode:    WriteIgnore,
}

// TrainingCorpusTable is the designated population training corpus.
var TrainingCorpusTable = Table{
	Name: "training_corpus",
	Columns: []Column{
		{Name: "reading_id", Type: ColString},
		{Name: "subject_id", Type: ColString},
		{Name: "signal", Type: ColString},
		{Name: "value", Type: ColFloat64},
		{Name: "recorded_at", Type: ColInt64},
		{Name: "hour_of_day", Type: ColInt64},
		{Name: "scenario", Type: ColString},
		{Name: "origin", Type: ColString},
		{Name: "source", Type: ColString},
	},
	Key:     []string{"reading_id"},
	Version: "recorded_at",
	Mode:    WriteIgnore,
}

// AllTables returns the fixed table set.
func AllTables() []Table {
	var tables []Table
	for _, d := range models.RawDomains {
		tables = append(tables, RawTable(d))
	}
	for _, spec := range models.RollupDomains {
		tables = append(tables, RollupTable(spec.Domain))
	}
	tables = append(tables, SnapshotTable, BaselineTable, CorrelationTable, RecomputeTable, TrainingCorpusTable)
	return tables
}
