// ABOUTME: Stratified population statistics: per-hour, per-scenario and global ladders.
// ABOUTME: Day-level variability (CV and range) is learned from per subject-day aggregates.
package baseline

import (
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/harperreed/healthlake/internal/models"
	"github.com/harperreed/healthlake/internal/stats"
)

// Learning defaults.
const (
	DefaultMinStratumSamples = 30
	DefaultMinDailySamples   = 12
)

// Params controls which strata are kept.
type Params struct {
	MinStratumSamples int
	MinDailySamples   int
	ModelVersion      string
	TrainedAt         time.Time
}

// Thresholds derives adaptive safety thresholds from a ladder and a signal's bounds.
func Thresholds(sig models.Signal, ladder models.PercentileLadder) (low, high float64) {
	low = math.Max(sig.Floor, ladder.P10-sig.Margin)
	high = math.Min(sig.Ceiling, ladder.P90+sig.Margin)
	return low, high
}

func ladderOf(values []float64) models.PercentileLadder {
	ps := stats.Percentiles(values, 10, 25, 50, 75, 90)
	return models.PercentileLadder{P10: ps[0], P25: ps[1], P50: ps[2], P75: ps[3], P90: ps[4]}
}

func (p Params) fit(pattern models.PatternType, stratum, baselineID string, values []float64) *models.PopulationBaseline {
	ladder := ladderOf(values)
	return &models.PopulationBaseline{
		PatternType:  pattern,
		Stratum:      stratum,
		BaselineID:   baselineID,
		Mean:         stats.Mean(values),
		Std:          stats.StdPop(values),
		Percentiles:  ladder,
		SampleCount:  len(values),
		ModelVersion: p.ModelVersion,
		TrainedAt:    p.TrainedAt,
	}
}

// fitValueStrata fits one baseline per stratum with enough samples, in stratum order.
func (p Params) fitValueStrata(sig models.Signal, pattern models.PatternType, groups map[string][]float64) []*models.PopulationBaseline {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return stratumLess(keys[i], keys[j]) })

	var out []*models.PopulationBaseline
	for _, k := range keys {
		values := groups[k]
		if len(values) < p.MinStratumSamples {
			continue
		}
		b := p.fit(pattern, k, sig.Name, values)
		b.LowThreshold, b.HighThreshold = Thresholds(sig, b.Percentiles)
		out = append(out, b)
	}
	return out
}

// stratumLess orders numeric strata numerically and others lexically.
func stratumLess(a, b string) bool {
	ai, errA := strconv.Atoi(a)
	bi, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return ai < bi
	}
	return a < b
}

// Learn fits every baseline for one signal from corpus readings. Readings
// from live users are dropped. Strata below the sample floor are skipped.
func Learn(sig models.Signal, readings []*models.TrainingReading, p Params) []*models.PopulationBaseline {
	if p.MinStratumSamples <= 0 {
		p.MinStratumSamples = DefaultMinStratumSamples
	}
	if p.MinDailySamples <= 0 {
		p.MinDailySamples = DefaultMinDailySamples
	}

	hourly := make(map[string][]float64)
	scenario := make(map[string][]float64)
	var all []float64
	type subjectDay struct{ subject, day string }
	days := make(map[subjectDay][]float64)

	for _, r := range readings {
		if r.Origin == models.OriginLiveUser || r.Signal != sig.Name {
			continue
		}
		if r.HourOfDay >= 0 && r.HourOfDay < 24 {
			h := strconv.Itoa(r.HourOfDay)
			hourly[h] = append(hourly[h], r.Value)
		}
		if r.Scenario != "" {
			scenario[r.Scenario] = append(scenario[r.Scenario], r.Value)
		}
		all = append(all, r.Value)
		key := subjectDay{r.SubjectID, r.Day()}
		days[key] = append(days[key], r.Value)
	}

	var out []*models.PopulationBaseline
	out = append(out, p.fitValueStrata(sig, models.PatternHourly, hourly)...)
	out = append(out, p.fitValueStrata(sig, models.PatternScenario, scenario)...)
	out = append(out, p.fitValueStrata(sig, models.PatternGlobal, map[string][]float64{models.GlobalStratum: all})...)

	var cvs, ranges []float64
	for _, values := range days {
		if len(values) < p.MinDailySamples {
			continue
		}
		mean := stats.Mean(values)
		if mean > 0 {
			cvs = append(cvs, stats.StdPop(values)/mean)
		}
		lo, hi := stats.MinMax(values)
		ranges = append(ranges, hi-lo)
	}
	// Sorted so sums do not depend on map order.
	sort.Float64s(cvs)
	sort.Float64s(ranges)
	if len(cvs) > 0 {
		b := p.fit(models.PatternDailyCV, models.GlobalStratum, sig.Name, cvs)
		b.LowThreshold, b.HighThreshold = b.Percentiles.P10, b.Percentiles.P90
		out = append(out, b)
	}
	if len(ranges) > 0 {
		b := p.fit(models.PatternDailyRange, models.GlobalStratum, sig.Name, ranges)
		b.LowThreshold, b.HighThreshold = b.Percentiles.P10, b.Percentiles.P90
		out = append(out, b)
	}
	return out
}
