// ABOUTME: Tests for trend, slope, volatility and data-quality enrichment.
// ABOUTME: Snapshot series are built for consecutive calendar days.
package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/healthlake/internal/models"
)

// series builds assembled snapshots for consecutive days starting at start.
func series(user string, start time.Time, features []map[string]float64) []*models.FeatureSnapshot {
	out := make([]*models.FeatureSnapshot, len(features))
	for i, f := range features {
		out[i] = &models.FeatureSnapshot{
			UserID:    user,
			LocalDate: start.AddDate(0, 0, i).Format(models.DateLayout),
			Features:  f,
			Stage:     models.StageAssembled,
			Version:   100,
		}
	}
	return out
}

func weight(kg float64) map[string]float64 {
	return map[string]float64{models.FieldWeightKg: kg}
}

func TestEnrichTrendSlopeAndQuality(t *testing.T) {
	var days []map[string]float64
	for i := 0; i < 7; i++ {
		days = append(days, weight(82))
	}
	for i := 0; i < 7; i++ {
		days = append(days, weight(80))
	}
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	got, err := Enrich(series("u1", start, days), 50)
	require.NoError(t, err)
	require.Len(t, got, 14)

	last := got[13]
	assert.Equal(t, "2025-03-14", last.LocalDate)
	assert.Equal(t, models.StageEnriched, last.Stage)
	assert.InDelta(t, 80.0, *last.WeightTrend7d, 1e-9)
	assert.InDelta(t, 2.0/7.0, *last.WeightSlope, 1e-9)
	assert.InDelta(t, 0.0, *last.VolatilityScore, 1e-9)
	assert.InDelta(t, 7.0, *last.WeighInsPerWeek, 1e-9)
	assert.Equal(t, 0, *last.DaysSinceWeighIn)
	assert.Equal(t, 0, *last.NutritionDays14d)
	assert.Equal(t, 80.0, last.Features[models.FieldWeightKg])

	// The first week has no prior window.
	assert.Nil(t, got[6].WeightSlope)
	assert.InDelta(t, 3.5, *got[6].WeighInsPerWeek, 1e-9)
}

func TestEnrichVolatilityIsClamped(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	got, err := Enrich(series("u1", start, []map[string]float64{weight(70), weight(90)}), 1)
	require.NoError(t, err)
	assert.Equal(t, MaxVolatility, *got[1].VolatilityScore)
}

func TestEnrichStalenessUsesCalendarDays(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	steps := map[string]float64{models.FieldSteps: 1000}
	snaps := series("u1", start, []map[string]float64{weight(80), steps, steps, steps})
	// Drop a day so the series has a calendar gap.
	snaps = append(snaps[:2], snaps[3:]...)

	got, err := Enrich(snaps, 1)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "2025-03-04", got[2].LocalDate)
	assert.Equal(t, 3, *got[2].DaysSinceWeighIn)
	assert.InDelta(t, 80.0, *got[2].WeightTrend7d, 1e-9)
}

func TestEnrichNoWeighInSentinel(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	snaps := series("u1", start, []map[string]float64{
		{models.FieldCaloriesKcal: 2000},
		{models.FieldGlucoseMean: 101},
	})

	got, err := Enrich(snaps, 1)
	require.NoError(t, err)
	assert.Equal(t, models.NoWeighInSentinel, *got[1].DaysSinceWeighIn)
	assert.Nil(t, got[1].WeightTrend7d)
	assert.Nil(t, got[1].VolatilityScore)
	assert.Equal(t, 1, *got[1].NutritionDays14d)
	assert.Equal(t, 1, *got[1].GlucoseDays14d)
	assert.InDelta(t, 0.0, *got[1].WeighInsPerWeek, 1e-9)
}

func TestEnrichVersionExceedsInput(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	snaps := series("u1", start, []map[string]float64{weight(80)})

	got, err := Enrich(snaps, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(101), got[0].Version)
	assert.True(t, got[0].Supersedes(snaps[0]))
	assert.Equal(t, models.StageAssembled, snaps[0].Stage)
}

func TestEnrichRejectsBadDate(t *testing.T) {
	_, err := Enrich([]*models.FeatureSnapshot{{UserID: "u1", LocalDate: "03/01/2025"}}, 1)
	assert.Error(t, err)
}
