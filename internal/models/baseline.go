// ABOUTME: Population baseline, training corpus, and anomaly score models.
// ABOUTME: Includes the signal catalogue with hard physiological bounds.
package models

import "time"

// PatternType is the stratification a baseline was learned under.
type PatternType string

const (
	PatternHourly     PatternType = "hourly"
	PatternScenario   PatternType = "scenario"
	PatternGlobal     PatternType = "global"
	PatternDailyCV    PatternType = "daily_cv"
	PatternDailyRange PatternType = "daily_range"
)

// GlobalStratum is the stratum name for unstratified baselines.
const GlobalStratum = "all"

// Training corpus origins. Rows from live users are never used for training.
const (
	OriginSynthetic = "synthetic"
	OriginCurated   = "curated"
	OriginLiveUser  = "live_user"
)

// Signal describes a scored physiological signal and its hard bounds.
type Signal struct {
	Name string
	Unit string

	// HardLow and HardHigh classify readings as severe regardless of any baseline.
	HardLow  float64
	HardHigh float64

	// Floor, Ceiling and Margin shape the adaptive thresholds of learned baselines.
	Floor   float64
	Ceiling float64
	Margin  float64
}

const (
	SignalGlucose   = "glucose"
	SignalHeartRate = "heart_rate"
	SignalHRV       = "hrv"
)

// Signals is the catalogue of signals that can be trained and scored.
var Signals = map[string]Signal{
	SignalGlucose:   {Name: SignalGlucose, Unit: "mg/dL", HardLow: 70, HardHigh: 250, Floor: 40, Ceiling: 400, Margin: 10},
	SignalHeartRate: {Name: SignalHeartRate, Unit: "bpm", HardLow: 40, HardHigh: 180, Floor: 30, Ceiling: 220, Margin: 5},
	SignalHRV:       {Name: SignalHRV, Unit: "ms", HardLow: 10, HardHigh: 200, Floor: 5, Ceiling: 250, Margin: 5},
}

// LookupSignal returns a signal by name.
func LookupSignal(name string) (Signal, bool) {
	s, ok := Signals[name]
	return s, ok
}

// TrainingReading is one row of the designated training corpus.
type TrainingReading struct {
	ReadingID  string    `json:"reading_id"`
	SubjectID  string    `json:"subject_id"`
	Signal     string    `json:"signal"`
	Value      float64   `json:"value"`
	RecordedAt time.Time `json:"recorded_at"`
	HourOfDay  int       `json:"hour_of_day"`
	Scenario   string    `json:"scenario"`
	Origin     string    `json:"origin"`
	Source     string    `json:"source"`
}

// Day returns the calendar day of the reading.
func (r *TrainingReading) Day() string {
	return r.RecordedAt.UTC().Format(DateLayout)
}

// PercentileLadder holds P10/P25/P50/P75/P90.
type PercentileLadder struct {
	P10 float64 `json:"p10" yaml:"p10"`
	P25 float64 `json:"p25" yaml:"p25"`
	P50 float64 `json:"p50" yaml:"p50"`
	P75 float64 `json:"p75" yaml:"p75"`
	P90 float64 `json:"p90" yaml:"p90"`
}

// PopulationBaseline is a learned reference distribution for one stratum.
type PopulationBaseline struct {
	PatternType   PatternType      `json:"pattern_type" yaml:"pattern_type"`
	Stratum       string           `json:"stratum" yaml:"stratum"`
	BaselineID    string           `json:"baseline_id" yaml:"baseline_id"`
	Mean          float64          `json:"mean" yaml:"mean"`
	Std           float64          `json:"std" yaml:"std"`
	Percentiles   PercentileLadder `json:"percentiles" yaml:"percentiles"`
	SampleCount   int              `json:"sample_count" yaml:"sample_count"`
	LowThreshold  float64          `json:"low_threshold" yaml:"low_threshold"`
	HighThreshold float64          `json:"high_threshold" yaml:"high_threshold"`
	ModelVersion  string           `json:"model_version" yaml:"model_version"`
	TrainedAt     time.Time        `json:"trained_at" yaml:"trained_at"`
}

// Anomaly classifications.
const (
	ClassSevereLow         = "severe_low"
	ClassSevereHigh        = "severe_high"
	ClassUnusualForContext = "unusual_for_context"
	ClassNone              = "none"
)

// Percentile buckets.
const (
	BucketLeP10    = "le_p10"
	BucketP10P25   = "p10_p25"
	BucketP25P50   = "p25_p50"
	BucketP50P75   = "p50_p75"
	BucketP75P90   = "p75_p90"
	BucketGtP90    = "gt_p90"
	BucketUnknown  = "unknown"
	MatchNone      = "none"
	MatchedStratum = "stratum"
	MatchedGlobal  = "global"
)

// AnomalyScore is the on-demand result of scoring one observed value.
type AnomalyScore struct {
	Signal         string  `json:"signal"`
	Value          float64 `json:"value"`
	Stratum        string  `json:"stratum"`
	Z              float64 `json:"z"`
	Bucket         string  `json:"bucket"`
	IsAnomaly      bool    `json:"is_anomaly"`
	Classification string  `json:"classification"`
	Confidence     float64 `json:"confidence"`
	MatchedBy      string  `json:"matched_by"`
	SampleCount    int     `json:"sample_count"`
}
