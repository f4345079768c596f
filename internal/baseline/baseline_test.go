// ABOUTME: Tests for stratified baseline learning, corpus bootstrap, and live-user isolation.
// ABOUTME: Uses a SQLite store and a seeded synthetic corpus.
package baseline

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/healthlake/internal/models"
	"github.com/harperreed/healthlake/internal/storage"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func setupTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(context.Background(), nil, storage.Options{
		Backend:    storage.BackendSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "lake.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func corpusRows(origin string, hour, n int, value float64) []*models.TrainingReading {
	out := make([]*models.TrainingReading, n)
	for i := range out {
		out[i] = &models.TrainingReading{
			ReadingID:  fmt.Sprintf("%s-%d-%d", origin, hour, i),
			SubjectID:  fmt.Sprintf("%s-subject-%d", origin, i%5),
			Signal:     models.SignalGlucose,
			Value:      value + float64(i%7),
			RecordedAt: time.Date(2025, 3, 1, hour, i%60, 0, 0, time.UTC),
			HourOfDay:  hour,
			Scenario:   "normal",
			Origin:     origin,
		}
	}
	return out
}

func TestThresholdsRespectSignalBounds(t *testing.T) {
	sig := models.Signals[models.SignalGlucose]

	low, high := Thresholds(sig, models.PercentileLadder{P10: 75, P90: 180})
	assert.Equal(t, 65.0, low)
	assert.Equal(t, 190.0, high)

	low, high = Thresholds(sig, models.PercentileLadder{P10: 45, P90: 395})
	assert.Equal(t, sig.Floor, low)
	assert.Equal(t, sig.Ceiling, high)
}

func TestLearnSkipsSparseStrataAndLiveUsers(t *testing.T) {
	sig := models.Signals[models.SignalGlucose]
	var readings []*models.TrainingReading
	readings = append(readings, corpusRows(models.OriginCurated, 8, 40, 100)...)
	readings = append(readings, corpusRows(models.OriginCurated, 9, 10, 100)...)
	readings = append(readings, corpusRows(models.OriginLiveUser, 8, 40, 300)...)

	got := Learn(sig, readings, Params{ModelVersion: "v1", TrainedAt: testNow})

	byKey := make(map[string]*models.PopulationBaseline)
	for _, b := range got {
		byKey[string(b.PatternType)+"/"+b.Stratum] = b
		assert.Equal(t, models.SignalGlucose, b.BaselineID)
		assert.Equal(t, "v1", b.ModelVersion)
	}

	hour8, ok := byKey["hourly/8"]
	require.True(t, ok)
	assert.Equal(t, 40, hour8.SampleCount)
	assert.Less(t, hour8.Mean, 110.0)
	assert.LessOrEqual(t, hour8.Percentiles.P10, hour8.Percentiles.P50)
	assert.LessOrEqual(t, hour8.Percentiles.P50, hour8.Percentiles.P90)

	_, ok = byKey["hourly/9"]
	assert.False(t, ok, "stratum below the sample floor must be skipped")

	global, ok := byKey["global/all"]
	require.True(t, ok)
	assert.Equal(t, 50, global.SampleCount)
}

func TestLearnDailyPatternsNeedEnoughSamples(t *testing.T) {
	sig := models.Signals[models.SignalGlucose]
	readings := corpusRows(models.OriginSynthetic, 8, 10, 100)

	got := Learn(sig, readings, Params{MinStratumSamples: 5, MinDailySamples: 2})
	for _, b := range got {
		if b.PatternType == models.PatternDailyRange {
			assert.Equal(t, 5, b.SampleCount)
			return
		}
	}
	t.Fatal("expected a daily_range baseline")
}

func TestGenerateIsSyntheticAndBounded(t *testing.T) {
	readings := Generate(GenerateOptions{Subjects: 2, Days: 2, Seed: 7, Start: testNow})

	var glucose int
	for _, r := range readings {
		assert.Equal(t, models.OriginSynthetic, r.Origin)
		if r.Signal == models.SignalGlucose {
			glucose++
			assert.GreaterOrEqual(t, r.Value, 40.0)
			assert.LessOrEqual(t, r.Value, 400.0)
		}
		assert.Equal(t, r.RecordedAt.Hour(), r.HourOfDay)
		assert.Contains(t, Scenarios, r.Scenario)
	}
	assert.Equal(t, 2*2*288, glucose)
	assert.Len(t, readings, 2*2*(288+48))

	again := Generate(GenerateOptions{Subjects: 2, Days: 2, Seed: 7, Start: testNow})
	for i := range readings {
		assert.Equal(t, readings[i].Value, again[i].Value)
	}
}

func TestTrainBootstrapsEmptyCorpus(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	var invalidated bool
	l, err := NewLearner(Config{
		Store:     store,
		Clock:     clockwork.NewFakeClockAt(testNow),
		OnTrained: func() { invalidated = true },
	})
	require.NoError(t, err)

	res, err := l.Train(ctx, TrainOptions{Subjects: 3, Days: 1, Seed: 1})
	require.NoError(t, err)
	assert.Equal(t, 3*(288+48), res.Generated)
	assert.NotEmpty(t, res.Baselines)
	assert.True(t, invalidated)

	got, err := store.GetBaseline(ctx, models.SignalGlucose, models.PatternHourly, "8")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 36, got.SampleCount)
	assert.Equal(t, res.ModelVersion, got.ModelVersion)

	// A second run reuses the corpus and supersedes in place.
	res2, err := l.Train(ctx, TrainOptions{})
	require.NoError(t, err)
	assert.Zero(t, res2.Generated)

	all, err := store.ListBaselines(ctx, models.SignalGlucose)
	require.NoError(t, err)
	seen := make(map[string]bool)
	for _, b := range all {
		key := string(b.PatternType) + "/" + b.Stratum
		assert.False(t, seen[key], "duplicate current baseline %s", key)
		seen[key] = true
	}
}

func TestTrainNeverUsesLiveUserRows(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	require.NoError(t, store.InsertTrainingReadings(ctx, corpusRows(models.OriginCurated, 3, 40, 100)))
	require.NoError(t, store.InsertTrainingReadings(ctx, corpusRows(models.OriginLiveUser, 3, 100, 390)))

	l, err := NewLearner(Config{Store: store, Clock: clockwork.NewFakeClockAt(testNow)})
	require.NoError(t, err)
	res, err := l.Train(ctx, TrainOptions{Signals: []string{models.SignalGlucose}})
	require.NoError(t, err)
	assert.Zero(t, res.Generated)

	got, err := store.GetBaseline(ctx, models.SignalGlucose, models.PatternHourly, "3")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 40, got.SampleCount)
	assert.Less(t, got.Percentiles.P90, 110.0)
}

func TestTrainRegenerateReplacesCorpus(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	require.NoError(t, store.InsertTrainingReadings(ctx, corpusRows(models.OriginCurated, 3, 40, 100)))

	l, err := NewLearner(Config{Store: store, Clock: clockwork.NewFakeClockAt(testNow)})
	require.NoError(t, err)
	res, err := l.Train(ctx, TrainOptions{Regenerate: true, Subjects: 1, Days: 1})
	require.NoError(t, err)

	n, err := store.CountTrainingReadings(ctx)
	require.NoError(t, err)
	assert.Equal(t, res.Generated, n)
}

func TestTrainRejectsUnknownSignal(t *testing.T) {
	l, err := NewLearner(Config{Store: setupTestStore(t)})
	require.NoError(t, err)
	_, err = l.Train(context.Background(), TrainOptions{Signals: []string{"cortisol"}})
	assert.Error(t, err)
}
