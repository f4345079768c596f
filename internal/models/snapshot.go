// ABOUTME: DailyRollup and FeatureSnapshot models for the daily feature pipeline.
// ABOUTME: Snapshots are versioned; the highest version per (user, date) is current.
package models

import "time"

// Provenance tags explain how a rollup's representative value was chosen.
const (
	ProvenanceMorningPreferred = "MORNING_PREFERRED"
	ProvenanceMedianFallback   = "MEDIAN_FALLBACK"
	ProvenanceLatestRecord     = "LATEST_RECORD"
)

// Snapshot stages.
const (
	StageAssembled = "assembled"
	StageEnriched  = "enriched"
)

// NoWeighInSentinel is DaysSinceWeighIn when a user has no weigh-in history.
const NoWeighInSentinel = 999

// DailyRollup is one domain's representative values for a (user, local date).
type DailyRollup struct {
	UserID      string             `json:"user_id"`
	Domain      Domain             `json:"domain"`
	LocalDate   string             `json:"local_date"`
	Fields      map[string]float64 `json:"fields"`
	Provenance  string             `json:"provenance"`
	Median      *float64           `json:"median,omitempty"`
	Min         *float64           `json:"min,omitempty"`
	Max         *float64           `json:"max,omitempty"`
	SampleCount int                `json:"sample_count"`
	Version     int64              `json:"version"`
}

// DayKey identifies a (user, local date) pair.
type DayKey struct {
	UserID    string
	LocalDate string
}

// Key returns the rollup's (user, date) key.
func (r *DailyRollup) Key() DayKey {
	return DayKey{UserID: r.UserID, LocalDate: r.LocalDate}
}

// FeatureSnapshot is the wide per-(user, local date) feature row.
type FeatureSnapshot struct {
	UserID           string             `json:"user_id" yaml:"user_id"`
	LocalDate        string             `json:"local_date" yaml:"local_date"`
	Features         map[string]float64 `json:"features" yaml:"features"`
	WeightProvenance string             `json:"weight_provenance,omitempty" yaml:"weight_provenance,omitempty"`
	Stage            string             `json:"stage" yaml:"stage"`

	WeightTrend7d    *float64 `json:"weight_trend_7d,omitempty" yaml:"weight_trend_7d,omitempty"`
	WeightSlope      *float64 `json:"weight_slope,omitempty" yaml:"weight_slope,omitempty"`
	VolatilityScore  *float64 `json:"volatility_score,omitempty" yaml:"volatility_score,omitempty"`
	WeighInsPerWeek  *float64 `json:"weigh_ins_per_week,omitempty" yaml:"weigh_ins_per_week,omitempty"`
	DaysSinceWeighIn *int     `json:"days_since_weigh_in,omitempty" yaml:"days_since_weigh_in,omitempty"`
	NutritionDays14d *int     `json:"nutrition_days_14d,omitempty" yaml:"nutrition_days_14d,omitempty"`
	GlucoseDays14d   *int     `json:"glucose_days_14d,omitempty" yaml:"glucose_days_14d,omitempty"`

	Version int64 `json:"version" yaml:"version"`
}

// Key returns the snapshot's (user, date) key.
func (s *FeatureSnapshot) Key() DayKey {
	return DayKey{UserID: s.UserID, LocalDate: s.LocalDate}
}

// Feature returns a feature value and whether it is present.
func (s *FeatureSnapshot) Feature(name string) (float64, bool) {
	v, ok := s.Features[name]
	return v, ok
}

// HasDomain reports whether any of a domain's fields are present.
func (s *FeatureSnapshot) HasDomain(d Domain) bool {
	spec, ok := LookupDomain(d)
	if !ok {
		return false
	}
	for _, f := range spec.Fields {
		if _, ok := s.Features[f]; ok {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the snapshot.
func (s *FeatureSnapshot) Clone() *FeatureSnapshot {
	c := *s
	c.Features = make(map[string]float64, len(s.Features))
	for k, v := range s.Features {
		c.Features[k] = v
	}
	c.WeightTrend7d = cloneFloat(s.WeightTrend7d)
	c.WeightSlope = cloneFloat(s.WeightSlope)
	c.VolatilityScore = cloneFloat(s.VolatilityScore)
	c.WeighInsPerWeek = cloneFloat(s.WeighInsPerWeek)
	c.DaysSinceWeighIn = cloneInt(s.DaysSinceWeighIn)
	c.NutritionDays14d = cloneInt(s.NutritionDays14d)
	c.GlucoseDays14d = cloneInt(s.GlucoseDays14d)
	return &c
}

// Supersedes reports whether s wins over other under latest-wins resolution.
// Equal versions resolve in favour of the enriched stage.
func (s *FeatureSnapshot) Supersedes(other *FeatureSnapshot) bool {
	if s.Version != other.Version {
		return s.Version > other.Version
	}
	return s.Stage == StageEnriched && other.Stage != StageEnriched
}

// RecomputeEntry signals that a user's derived data may be stale.
type RecomputeEntry struct {
	EventID       string    `json:"event_id"`
	UserID        string    `json:"user_id"`
	Reason        string    `json:"reason"`
	Priority      int       `json:"priority"`
	QueuedAt      time.Time `json:"queued_at"`
	RequestedDate *string   `json:"requested_date,omitempty"`
	SourceTables  []string  `json:"source_tables"`
}

// ReasonDataChanged tags recompute entries produced by the change detector.
const ReasonDataChanged = "DATA_CHANGED"

// DefaultRecomputePriority is the priority of change-detector entries.
const DefaultRecomputePriority = 5

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
