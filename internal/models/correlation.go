// ABOUTME: BehaviorOutcomeCorrelation and JobResult models.
// ABOUTME: Correlations are keyed deterministically so retraining overwrites.
package models

import (
	"strings"
	"time"
)

// Correlation directions.
const (
	DirectionHigherIsBetter = "higher_is_better"
	DirectionLowerIsBetter  = "lower_is_better"
)

// Correlation links a prior-day behavior factor to a next-day subjective outcome.
type Correlation struct {
	Key              string    `json:"key" yaml:"key"`
	UserID           string    `json:"user_id" yaml:"user_id"`
	BehaviorKey      string    `json:"behavior_key" yaml:"behavior_key"`
	OutcomeDimension string    `json:"outcome_dimension" yaml:"outcome_dimension"`
	Direction        string    `json:"direction" yaml:"direction"`
	EffectSizePct    float64   `json:"effect_size_pct" yaml:"effect_size_pct"`
	HighMean         float64   `json:"high_mean" yaml:"high_mean"`
	LowMean          float64   `json:"low_mean" yaml:"low_mean"`
	SampleSize       int       `json:"sample_size" yaml:"sample_size"`
	Significant      bool      `json:"significant" yaml:"significant"`
	Actionable       bool      `json:"actionable" yaml:"actionable"`
	TrainedAt        time.Time `json:"trained_at" yaml:"trained_at"`
}

// CorrelationKey builds the composite key for a (user, behavior, outcome) triple.
func CorrelationKey(userID, behaviorKey, outcome string) string {
	return strings.Join([]string{userID, behaviorKey, outcome}, "|")
}

// JobResult is the structured outcome of one job or stage invocation.
type JobResult struct {
	JobID        string        `json:"job_id" yaml:"job_id"`
	Job          string        `json:"job" yaml:"job"`
	Stage        string        `json:"stage,omitempty" yaml:"stage,omitempty"`
	Success      bool          `json:"success" yaml:"success"`
	StartedAt    time.Time     `json:"started_at" yaml:"started_at"`
	Duration     time.Duration `json:"duration" yaml:"duration"`
	RowsAffected int           `json:"rows_affected" yaml:"rows_affected"`
	Error        string        `json:"error,omitempty" yaml:"error,omitempty"`
}
