// ABOUTME: Tests for the correlation learner's day join, grouping, significance and upsert.
// ABOUTME: Uses a SQLite store and hand-built behavior/survey histories.
package correlation

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/healthlake/internal/models"
	"github.com/harperreed/healthlake/internal/storage"
)

var testNow = time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC)

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

func newTestLearner(t *testing.T, store Store, clock clockwork.Clock) *Learner {
	t.Helper()
	l, err := NewLearner(Config{Store: store, Clock: clock, Workers: 2})
	require.NoError(t, err)
	t.Cleanup(l.Close)
	return l
}

func dayOf(i int) time.Time {
	return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

func behaviorOn(user string, i int, key string, v float64) *models.RawEvent {
	d := dayOf(i)
	return models.NewRawEvent(user, models.DomainBehaviorFactor, d.Add(21*time.Hour)).
		WithLocalDate(d.Format(models.DateLayout)).
		WithField(key, v)
}

func surveyOn(user string, i int, dimension string, rating float64) *models.RawEvent {
	d := dayOf(i)
	return models.NewRawEvent(user, models.DomainSurvey, d.Add(9*time.Hour)).
		WithLocalDate(d.Format(models.DateLayout)).
		WithField(dimension, rating)
}

// sleepHistory gives ten joined days: good energy follows 8h of sleep,
// poor energy follows 6h. Caffeine is constant.
func sleepHistory(user string) []*models.RawEvent {
	var events []*models.RawEvent
	for i := 0; i < 10; i++ {
		sleep, rating := 6.0, 3.0
		if i%2 == 0 {
			sleep, rating = 8.0, 8.0
		}
		events = append(events,
			behaviorOn(user, i, "sleep_hours", sleep),
			behaviorOn(user, i, "caffeine_cups", 2),
			surveyOn(user, i+1, "energy", rating),
		)
	}
	return events
}

func TestCorrelateFindsPriorDayAssociation(t *testing.T) {
	l := newTestLearner(t, setupTestStore(t), clockwork.NewFakeClockAt(testNow))

	var behaviors, surveys []*models.RawEvent
	for _, e := range sleepHistory("u1") {
		if e.Domain == models.DomainSurvey {
			surveys = append(surveys, e)
		} else {
			behaviors = append(behaviors, e)
		}
	}

	got := l.Correlate("u1", behaviors, surveys, testNow)
	require.Len(t, got, 2)

	caffeine, sleep := got[0], got[1]
	assert.Equal(t, "caffeine_cups", caffeine.BehaviorKey)
	assert.False(t, caffeine.Significant)
	assert.Zero(t, caffeine.EffectSizePct)

	assert.Equal(t, "u1|sleep_hours|energy", sleep.Key)
	assert.Equal(t, models.DirectionHigherIsBetter, sleep.Direction)
	assert.Equal(t, 8.0, sleep.HighMean)
	assert.Equal(t, 6.0, sleep.LowMean)
	assert.Equal(t, 10, sleep.SampleSize)
	assert.InDelta(t, 2.0/7.0*100, sleep.EffectSizePct, 1e-9)
	assert.True(t, sleep.Significant)
	assert.False(t, sleep.Actionable, "ten days is below the actionable sample size")
}

func TestCorrelateLowerIsBetter(t *testing.T) {
	l := newTestLearner(t, setupTestStore(t), clockwork.NewFakeClockAt(testNow))

	var behaviors, surveys []*models.RawEvent
	for i := 0; i < 16; i++ {
		drinks, rating := 0.0, 9.0
		if i%2 == 1 {
			drinks, rating = 4.0, 2.0
		}
		behaviors = append(behaviors, behaviorOn("u1", i, "alcohol_units", drinks+1))
		surveys = append(surveys, surveyOn("u1", i+1, "mood", rating))
	}

	got := l.Correlate("u1", behaviors, surveys, testNow)
	require.Len(t, got, 1)
	assert.Equal(t, models.DirectionLowerIsBetter, got[0].Direction)
	assert.True(t, got[0].Significant)
	assert.True(t, got[0].Actionable)
	assert.Equal(t, 16, got[0].SampleSize)
}

func TestCorrelateSkipsSparsePairs(t *testing.T) {
	l := newTestLearner(t, setupTestStore(t), clockwork.NewFakeClockAt(testNow))

	var behaviors, surveys []*models.RawEvent
	for i := 0; i < 5; i++ {
		behaviors = append(behaviors, behaviorOn("u1", i, "steps_k", float64(i)))
		surveys = append(surveys, surveyOn("u1", i+1, "energy", 9))
	}
	assert.Empty(t, l.Correlate("u1", behaviors, surveys, testNow), "below the minimum sample count")

	behaviors, surveys = nil, nil
	for i := 0; i < 10; i++ {
		behaviors = append(behaviors, behaviorOn("u1", i, "steps_k", float64(i)))
		surveys = append(surveys, surveyOn("u1", i+1, "energy", 9))
	}
	assert.Empty(t, l.Correlate("u1", behaviors, surveys, testNow), "no low-outcome days")
}

func TestCorrelateUsesPreviousCalendarDay(t *testing.T) {
	l := newTestLearner(t, setupTestStore(t), clockwork.NewFakeClockAt(testNow))

	// Behaviors and surveys land on the same even days, so no survey has a
	// behavior on the day before it.
	var behaviors, surveys []*models.RawEvent
	for i := 0; i < 20; i += 2 {
		sleep, rating := 6.0, 3.0
		if i%4 == 0 {
			sleep, rating = 8.0, 8.0
		}
		behaviors = append(behaviors, behaviorOn("u1", i, "sleep_hours", sleep))
		surveys = append(surveys, surveyOn("u1", i, "energy", rating))
	}
	assert.Empty(t, l.Correlate("u1", behaviors, surveys, testNow))
}

func TestCorrelateLatestValuePerDay(t *testing.T) {
	l := newTestLearner(t, setupTestStore(t), clockwork.NewFakeClockAt(testNow))

	events := sleepHistory("u1")
	var behaviors, surveys []*models.RawEvent
	for _, e := range events {
		if e.Domain == models.DomainSurvey {
			surveys = append(surveys, e)
		} else {
			behaviors = append(behaviors, e)
		}
	}
	// An earlier correction on day 0 is superseded by the later entry.
	early := behaviorOn("u1", 0, "sleep_hours", 1)
	early.RecordedAt = early.RecordedAt.Add(-time.Hour)
	behaviors = append(behaviors, early)

	got := l.Correlate("u1", behaviors, surveys, testNow)
	require.Len(t, got, 2)
	assert.Equal(t, 8.0, got[1].HighMean)
}

func TestTrainUserIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	clock := clockwork.NewFakeClockAt(testNow)
	_, err := store.InsertRawEvents(ctx, sleepHistory("u1"))
	require.NoError(t, err)

	l := newTestLearner(t, store, clock)
	_, err = l.TrainUser(ctx, "u1")
	require.NoError(t, err)

	clock.Advance(time.Hour)
	second, err := l.TrainUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, second, 2)

	got, err := store.ListCorrelations(ctx, storage.CorrelationFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "u1|sleep_hours|energy", got[0].Key, "significant findings rank first")
	for _, c := range got {
		assert.True(t, c.TrainedAt.Equal(testNow.Add(time.Hour)))
	}
}

func TestTrainAllCoversEverySurveyUser(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	events := append(sleepHistory("u1"), sleepHistory("u2")...)
	events = append(events, behaviorOn("u3", 0, "sleep_hours", 7))
	_, err := store.InsertRawEvents(ctx, events)
	require.NoError(t, err)

	l := newTestLearner(t, store, clockwork.NewFakeClockAt(testNow))
	all, err := l.TrainAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	significant, err := store.ListCorrelations(ctx, storage.CorrelationFilter{SignificantOnly: true})
	require.NoError(t, err)
	assert.Len(t, significant, 2)
}

func TestConfigRejectsInvertedCutoffs(t *testing.T) {
	_, err := NewLearner(Config{Store: setupTestStore(t), HighCutoff: 3, LowCutoff: 5})
	assert.Error(t, err)

	_, err = NewLearner(Config{})
	assert.Error(t, err)
}
