// ABOUTME: Trend and quality enrichment over a user's assembled snapshot history.
// ABOUTME: Windows are calendar-day ranges ending on (and including) the snapshot's date.
package pipeline

import (
	"fmt"
	"sort"
	"time"

	"github.com/harperreed/healthlake/internal/models"
	"github.com/harperreed/healthlake/internal/stats"
)

// Window lengths in calendar days.
const (
	TrendWindowDays   = 7
	QualityWindowDays = 14

	// MaxVolatility caps the volatility score.
	MaxVolatility = 2.0
)

// dayNumber converts a local-date key to days since the Unix epoch.
func dayNumber(date string) (int, error) {
	t, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return 0, fmt.Errorf("parse local date %q: %w", date, err)
	}
	return int(t.Unix() / 86400), nil
}

// userHistory indexes one user's snapshots by day number.
type userHistory struct {
	weights   map[int]float64
	nutrition map[int]bool
	glucose   map[int]bool
	weighDays []int
}

func newUserHistory(snaps []*models.FeatureSnapshot, days []int) *userHistory {
	h := &userHistory{
		weights:   make(map[int]float64),
		nutrition: make(map[int]bool),
		glucose:   make(map[int]bool),
	}
	for i, snap := range snaps {
		d := days[i]
		if w, ok := snap.Feature(models.FieldWeightKg); ok {
			h.weights[d] = w
			h.weighDays = append(h.weighDays, d)
		}
		h.nutrition[d] = snap.HasDomain(models.DomainNutrition)
		h.glucose[d] = snap.HasDomain(models.DomainGlucose)
	}
	sort.Ints(h.weighDays)
	return h
}

// weightsIn returns the weights recorded on days [from, to].
func (h *userHistory) weightsIn(from, to int) []float64 {
	var out []float64
	for d := from; d <= to; d++ {
		if w, ok := h.weights[d]; ok {
			out = append(out, w)
		}
	}
	return out
}

func countDays(flags map[int]bool, from, to int) int {
	n := 0
	for d := from; d <= to; d++ {
		if flags[d] {
			n++
		}
	}
	return n
}

// lastWeighIn returns the latest weigh-in day on or before d.
func (h *userHistory) lastWeighIn(d int) (int, bool) {
	i := sort.SearchInts(h.weighDays, d+1)
	if i == 0 {
		return 0, false
	}
	return h.weighDays[i-1], true
}

// Enrich layers trend and data-quality fields onto each snapshot and returns
// new enriched versions. Every output version is strictly greater than its
// input's version and at least version.
func Enrich(snaps []*models.FeatureSnapshot, version int64) ([]*models.FeatureSnapshot, error) {
	byUser := make(map[string][]*models.FeatureSnapshot)
	var users []string
	for _, snap := range snaps {
		if _, ok := byUser[snap.UserID]; !ok {
			users = append(users, snap.UserID)
		}
		byUser[snap.UserID] = append(byUser[snap.UserID], snap)
	}
	sort.Strings(users)

	out := make([]*models.FeatureSnapshot, 0, len(snaps))
	for _, user := range users {
		history := byUser[user]
		sort.Slice(history, func(i, j int) bool { return history[i].LocalDate < history[j].LocalDate })

		days := make([]int, len(history))
		for i, snap := range history {
			d, err := dayNumber(snap.LocalDate)
			if err != nil {
				return nil, fmt.Errorf("enrich %s: %w", user, err)
			}
			days[i] = d
		}

		h := newUserHistory(history, days)
		for i, snap := range history {
			out = append(out, enrichOne(snap, days[i], h, version))
		}
	}
	return out, nil
}

func enrichOne(snap *models.FeatureSnapshot, d int, h *userHistory, version int64) *models.FeatureSnapshot {
	e := snap.Clone()
	e.Stage = models.StageEnriched
	e.Version = max(version, snap.Version+1)

	e.WeightTrend7d, e.WeightSlope, e.VolatilityScore = nil, nil, nil

	recent := h.weightsIn(d-TrendWindowDays+1, d)
	if len(recent) > 0 {
		e.WeightTrend7d = models.Float(stats.Mean(recent))
		e.VolatilityScore = models.Float(stats.Clamp(stats.StdPop(recent), 0, MaxVolatility))

		prior := h.weightsIn(d-2*TrendWindowDays+1, d-TrendWindowDays)
		if len(prior) > 0 {
			// Positive slope means recent weight is below the prior week.
			slope := -(stats.Mean(recent) - stats.Mean(prior)) / TrendWindowDays
			e.WeightSlope = models.Float(slope)
		}
	}

	qualityFrom := d - QualityWindowDays + 1
	weighIns := len(h.weightsIn(qualityFrom, d))
	e.WeighInsPerWeek = models.Float(float64(weighIns) / (QualityWindowDays / 7))

	if last, ok := h.lastWeighIn(d); ok {
		e.DaysSinceWeighIn = models.Int(d - last)
	} else {
		e.DaysSinceWeighIn = models.Int(models.NoWeighInSentinel)
	}

	e.NutritionDays14d = models.Int(countDays(h.nutrition, qualityFrom, d))
	e.GlucoseDays14d = models.Int(countDays(h.glucose, qualityFrom, d))
	return e
}
