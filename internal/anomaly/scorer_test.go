// ABOUTME: Tests for anomaly scoring: hard bounds, buckets, fallback chain and confidence.
// ABOUTME: A counting in-memory source stands in for the baseline store.
package anomaly

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/healthlake/internal/models"
)

type memSource struct {
	baselines map[string]*models.PopulationBaseline
	calls     int
	err       error
}

func (m *memSource) GetBaseline(_ context.Context, id string, pattern models.PatternType, stratum string) (*models.PopulationBaseline, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.baselines[strings.Join([]string{id, string(pattern), stratum}, "|")], nil
}

func glucoseBaseline(pattern models.PatternType, stratum string, mean, std float64, n int) *models.PopulationBaseline {
	return &models.PopulationBaseline{
		PatternType: pattern,
		Stratum:     stratum,
		BaselineID:  models.SignalGlucose,
		Mean:        mean,
		Std:         std,
		Percentiles: models.PercentileLadder{P10: 80, P25: 88, P50: 95, P75: 105, P90: 120},
		SampleCount: n,
	}
}

func newTestScorer(t *testing.T, src *memSource) *Scorer {
	t.Helper()
	s, err := NewScorer(Config{Source: src})
	require.NoError(t, err)
	return s
}

func TestHardLowDominatesBaseline(t *testing.T) {
	src := &memSource{baselines: map[string]*models.PopulationBaseline{
		// A baseline centred on 65 would give z = 0.
		"glucose|hourly|3": glucoseBaseline(models.PatternHourly, "3", 65, 5, 500),
	}}
	s := newTestScorer(t, src)

	for _, stratum := range []string{"3", "4", ""} {
		score, err := s.Score(context.Background(), Request{Signal: models.SignalGlucose, Value: 65, Stratum: stratum})
		require.NoError(t, err)
		assert.Equal(t, models.ClassSevereLow, score.Classification)
		assert.True(t, score.IsAnomaly)
	}
}

func TestSevereHigh(t *testing.T) {
	score := Evaluate(models.Signals[models.SignalGlucose], 260, "8", nil, models.MatchNone)
	assert.Equal(t, models.ClassSevereHigh, score.Classification)
}

func TestStratumMatchAndUnusual(t *testing.T) {
	src := &memSource{baselines: map[string]*models.PopulationBaseline{
		"glucose|hourly|8": glucoseBaseline(models.PatternHourly, "8", 95, 10, 200),
	}}
	s := newTestScorer(t, src)

	score, err := s.Score(context.Background(), Request{Signal: models.SignalGlucose, Value: 130, Stratum: "8"})
	require.NoError(t, err)
	assert.Equal(t, models.MatchedStratum, score.MatchedBy)
	assert.InDelta(t, 3.5, score.Z, 1e-9)
	assert.Equal(t, models.BucketGtP90, score.Bucket)
	assert.Equal(t, models.ClassUnusualForContext, score.Classification)
	assert.Equal(t, 200, score.SampleCount)

	score, err = s.Score(context.Background(), Request{Signal: models.SignalGlucose, Value: 100, Stratum: "8"})
	require.NoError(t, err)
	assert.Equal(t, models.ClassNone, score.Classification)
	assert.False(t, score.IsAnomaly)
	assert.Equal(t, models.BucketP50P75, score.Bucket)
}

func TestFallsBackToGlobalThenNone(t *testing.T) {
	src := &memSource{baselines: map[string]*models.PopulationBaseline{
		"glucose|global|all": glucoseBaseline(models.PatternGlobal, models.GlobalStratum, 100, 15, 1000),
	}}
	s := newTestScorer(t, src)

	global, err := s.Score(context.Background(), Request{Signal: models.SignalGlucose, Value: 100, Stratum: "13"})
	require.NoError(t, err)
	assert.Equal(t, models.MatchedGlobal, global.MatchedBy)
	assert.InDelta(t, Confidence(models.MatchedStratum, 1000)*GlobalMatchPenalty, global.Confidence, 1e-9)

	none := Evaluate(models.Signals[models.SignalGlucose], 100, "13", nil, models.MatchNone)
	assert.Equal(t, models.MatchNone, none.MatchedBy)
	assert.Equal(t, models.BucketUnknown, none.Bucket)
	assert.Equal(t, NoBaselineConfidence, none.Confidence)
	assert.Less(t, none.Confidence, global.Confidence)
}

func TestZDenominatorFloor(t *testing.T) {
	b := glucoseBaseline(models.PatternHourly, "8", 100, 0.01, 50)
	score := Evaluate(models.Signals[models.SignalGlucose], 102, "8", b, models.MatchedStratum)
	assert.InDelta(t, 2.0, score.Z, 1e-9)
	assert.Equal(t, models.ClassNone, score.Classification)
}

func TestConfidenceMonotoneAndCapped(t *testing.T) {
	prev := 0.0
	for _, n := range []int{0, 1, 10, 30, 100, 1000, 1e5, 1e9} {
		c := Confidence(models.MatchedStratum, n)
		assert.GreaterOrEqual(t, c, prev)
		assert.LessOrEqual(t, c, MaxConfidence)
		assert.Less(t, c, 1.0)
		prev = c
	}
}

func TestBucketEdges(t *testing.T) {
	p := models.PercentileLadder{P10: 80, P25: 88, P50: 95, P75: 105, P90: 120}
	assert.Equal(t, models.BucketLeP10, Bucket(80, p))
	assert.Equal(t, models.BucketP10P25, Bucket(80.1, p))
	assert.Equal(t, models.BucketP25P50, Bucket(95, p))
	assert.Equal(t, models.BucketP75P90, Bucket(120, p))
	assert.Equal(t, models.BucketGtP90, Bucket(120.1, p))
}

func TestLookupsAreCachedUntilInvalidated(t *testing.T) {
	src := &memSource{baselines: map[string]*models.PopulationBaseline{
		"glucose|hourly|8": glucoseBaseline(models.PatternHourly, "8", 95, 10, 200),
	}}
	s := newTestScorer(t, src)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Score(ctx, Request{Signal: models.SignalGlucose, Value: 100, Stratum: "8"})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, src.calls)

	s.Invalidate()
	_, err := s.Score(ctx, Request{Signal: models.SignalGlucose, Value: 100, Stratum: "8"})
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestPaddedHourStratumMatches(t *testing.T) {
	src := &memSource{baselines: map[string]*models.PopulationBaseline{
		"glucose|hourly|8": glucoseBaseline(models.PatternHourly, "8", 95, 10, 200),
	}}
	s := newTestScorer(t, src)

	for _, stratum := range []string{"08", " 8", "8"} {
		score, err := s.Score(context.Background(), Request{Signal: models.SignalGlucose, Value: 100, Stratum: stratum})
		require.NoError(t, err)
		assert.Equal(t, models.MatchedStratum, score.MatchedBy, "stratum %q", stratum)
		assert.Equal(t, "8", score.Stratum)
	}
}

func TestNormalizeStratum(t *testing.T) {
	assert.Equal(t, "0", NormalizeStratum(models.PatternHourly, "00"))
	assert.Equal(t, "23", NormalizeStratum(models.PatternHourly, "23"))
	assert.Equal(t, "24", NormalizeStratum(models.PatternHourly, "24"))
	assert.Equal(t, "fasting", NormalizeStratum(models.PatternHourly, "fasting"))
	assert.Equal(t, "08", NormalizeStratum(models.PatternScenario, "08"))
}

func TestCacheHitsDoNotExtendTTL(t *testing.T) {
	src := &memSource{baselines: map[string]*models.PopulationBaseline{
		"glucose|hourly|8": glucoseBaseline(models.PatternHourly, "8", 95, 10, 200),
	}}
	s, err := NewScorer(Config{Source: src, CacheTTL: 50 * time.Millisecond})
	require.NoError(t, err)
	ctx := context.Background()

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		_, err := s.Score(ctx, Request{Signal: models.SignalGlucose, Value: 100, Stratum: "8"})
		require.NoError(t, err)
		time.Sleep(10 * time.Millisecond)
	}
	assert.GreaterOrEqual(t, src.calls, 2)
}

func TestLookupErrorDegradesToNoBaseline(t *testing.T) {
	s := newTestScorer(t, &memSource{err: errors.New("store unreachable")})
	score, err := s.Score(context.Background(), Request{Signal: models.SignalGlucose, Value: 110, Stratum: "8"})
	require.NoError(t, err)
	assert.Equal(t, models.MatchNone, score.MatchedBy)
	assert.Equal(t, NoBaselineConfidence, score.Confidence)
}

func TestUnknownSignal(t *testing.T) {
	s := newTestScorer(t, &memSource{})
	_, err := s.Score(context.Background(), Request{Signal: "cortisol", Value: 1})
	assert.Error(t, err)
}
