// ABOUTME: Tests for the change detector over a SQLite store.
// ABOUTME: The store stamps inserts from a fake clock shared with the detector.
package changes

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

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func setupTestStore(t *testing.T, clock clockwork.Clock) *storage.Store {
	t.Helper()
	s, err := storage.Open(context.Background(), nil, storage.Options{
		Backend:    storage.BackendSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "lake.db"),
		Clock:      clock,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestWeightAndNutritionInsertsSignalUser(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(testNow.Add(-time.Hour))
	store := setupTestStore(t, clock)

	_, err := store.InsertRawEvents(ctx, []*models.RawEvent{
		models.NewRawEvent("stale", models.DomainWeight, testNow.Add(-time.Hour)).
			WithField(models.FieldWeightKg, 70),
	})
	require.NoError(t, err)

	clock.Advance(57 * time.Minute)
	_, err = store.InsertRawEvents(ctx, []*models.RawEvent{
		models.NewRawEvent("u1", models.DomainWeight, testNow.Add(-5*time.Minute)).
			WithField(models.FieldWeightKg, 80),
		models.NewRawEvent("u1", models.DomainNutrition, testNow.Add(-4*time.Minute)).
			WithField(models.FieldCaloriesKcal, 2100),
	})
	require.NoError(t, err)
	clock.Advance(3 * time.Minute)

	d, err := NewDetector(Config{Store: store, Clock: clock})
	require.NoError(t, err)

	n, err := d.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	queued, err := store.ListRecompute(ctx, testNow.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, "u1", queued[0].UserID)
	assert.Equal(t, models.ReasonDataChanged, queued[0].Reason)
	assert.Equal(t, models.DefaultRecomputePriority, queued[0].Priority)
	assert.ElementsMatch(t, []string{"raw_weight", "raw_nutrition"}, queued[0].SourceTables)
	assert.True(t, testNow.Equal(queued[0].QueuedAt))
}

func TestEventsWithoutFreshInsertTimeAreDetected(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(testNow)
	store := setupTestStore(t, clock)

	unstamped := &models.RawEvent{
		EventID:    "e-unstamped",
		UserID:     "u1",
		Domain:     models.DomainWeight,
		LocalDate:  "2025-03-10",
		RecordedAt: testNow.Add(-2 * time.Hour),
		Timezone:   "UTC",
		Source:     "manual",
		Fields:     map[string]float64{models.FieldWeightKg: 79},
	}
	replayed := models.NewRawEvent("u2", models.DomainNutrition, testNow.Add(-8*24*time.Hour)).
		WithField(models.FieldCaloriesKcal, 1800)
	replayed.InsertedAt = testNow.Add(-7 * 24 * time.Hour)

	_, err := store.InsertRawEvents(ctx, []*models.RawEvent{unstamped, replayed})
	require.NoError(t, err)

	d, err := NewDetector(Config{Store: store, Clock: clock})
	require.NoError(t, err)
	n, err := d.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	queued, err := store.ListRecompute(ctx, testNow.Add(-time.Minute))
	require.NoError(t, err)
	users := make([]string, 0, len(queued))
	for _, e := range queued {
		users = append(users, e.UserID)
	}
	assert.ElementsMatch(t, []string{"u1", "u2"}, users)
}

func TestNoChangesWritesNothing(t *testing.T) {
	store := setupTestStore(t, nil)
	d, err := NewDetector(Config{Store: store, Clock: clockwork.NewFakeClockAt(testNow)})
	require.NoError(t, err)

	n, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDefaultInterval(t *testing.T) {
	d, err := NewDetector(Config{Store: setupTestStore(t, nil)})
	require.NoError(t, err)
	assert.Equal(t, DefaultInterval, d.Interval())
}
