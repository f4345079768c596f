// ABOUTME: End-to-end tests of the hourly stage sequence over a SQLite store.
// ABOUTME: A fake clock pins the trailing window and version stamps.
package pipeline

import (
	"context"
	"errors"
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

func newTestPipeline(t *testing.T, store Store, clock clockwork.Clock) *Pipeline {
	t.Helper()
	p, err := New(Config{Store: store, Clock: clock, WindowDays: 30})
	require.NoError(t, err)
	return p
}

func TestRunHourlyProducesEnrichedSnapshots(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	clock := clockwork.NewFakeClockAt(testNow)

	day := time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC)
	events := []*models.RawEvent{
		weighIn("u1", day.Add(6*time.Hour), 80.0),
		weighIn("u1", day.Add(20*time.Hour), 81.0),
		models.NewRawEvent("u1", models.DomainActivity, day.AddDate(0, 0, 1).Add(23*time.Hour)).
			WithLocalDate("2025-03-09").
			WithField(models.FieldSteps, 6000),
	}
	_, err := store.InsertRawEvents(ctx, events)
	require.NoError(t, err)

	p := newTestPipeline(t, store, clock)
	results, err := p.RunHourly(ctx)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, stage := range []string{StageRollup, StageAssemble, StageEnrich} {
		assert.Equal(t, stage, results[i].Stage)
		assert.True(t, results[i].Success)
		assert.Equal(t, results[0].JobID, results[i].JobID)
	}
	assert.Equal(t, 2, results[1].RowsAffected)

	snap, err := store.GetSnapshot(ctx, "u1", "2025-03-08")
	require.NoError(t, err)
	assert.Equal(t, models.StageEnriched, snap.Stage)
	assert.Equal(t, 80.0, snap.Features[models.FieldWeightKg])
	assert.Equal(t, models.ProvenanceMorningPreferred, snap.WeightProvenance)

	activityOnly, err := store.GetSnapshot(ctx, "u1", "2025-03-09")
	require.NoError(t, err)
	_, hasWeight := activityOnly.Feature(models.FieldWeightKg)
	assert.False(t, hasWeight)
	assert.Equal(t, 1, *activityOnly.DaysSinceWeighIn)
	assert.InDelta(t, 80.0, *activityOnly.WeightTrend7d, 1e-9)
}

func TestRunHourlyTwiceKeepsOneCurrentRow(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	clock := clockwork.NewFakeClockAt(testNow)

	_, err := store.InsertRawEvents(ctx, []*models.RawEvent{
		weighIn("u1", time.Date(2025, 3, 9, 7, 0, 0, 0, time.UTC), 79.5),
	})
	require.NoError(t, err)

	p := newTestPipeline(t, store, clock)
	_, err = p.RunHourly(ctx)
	require.NoError(t, err)
	clock.Advance(time.Hour)
	_, err = p.RunHourly(ctx)
	require.NoError(t, err)

	versions, err := store.CountSnapshotVersions(ctx, "u1", "2025-03-09")
	require.NoError(t, err)
	assert.Equal(t, 4, versions)

	current, err := store.CurrentSnapshots(ctx, "2025-01-01")
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, models.StageEnriched, current[0].Stage)
}

func TestRunHourlyIgnoresEventsOutsideWindow(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	_, err := store.InsertRawEvents(ctx, []*models.RawEvent{
		weighIn("u1", testNow.AddDate(0, 0, -90), 80),
	})
	require.NoError(t, err)

	p := newTestPipeline(t, store, clockwork.NewFakeClockAt(testNow))
	results, err := p.RunHourly(ctx)
	require.NoError(t, err)
	assert.Zero(t, results[0].RowsAffected)

	current, err := store.CurrentSnapshots(ctx, "2024-01-01")
	require.NoError(t, err)
	assert.Empty(t, current)
}

// failingStore fails rollup writes and records which stages touched it.
type failingStore struct {
	Store
	assembleCalled bool
}

func (f *failingStore) ListRawEventsSince(context.Context, models.Domain, string, time.Time) ([]*models.RawEvent, error) {
	return nil, nil
}

func (f *failingStore) WriteRollups(context.Context, models.Domain, []*models.DailyRollup) error {
	return errors.New("connection reset")
}

func (f *failingStore) CurrentRollups(context.Context, models.Domain, string) ([]*models.DailyRollup, error) {
	f.assembleCalled = true
	return nil, nil
}

func TestRunHourlyStageFailureAbortsCycle(t *testing.T) {
	store := &failingStore{}
	p := newTestPipeline(t, store, clockwork.NewFakeClockAt(testNow))

	results, err := p.RunHourly(context.Background())
	require.Error(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StageRollup, results[0].Stage)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "connection reset")
	assert.False(t, store.assembleCalled)
}

func TestRunStageRecoversPanics(t *testing.T) {
	p := newTestPipeline(t, &failingStore{}, clockwork.NewFakeClockAt(testNow))
	res := p.runStage(context.Background(), "job", "boom", func(context.Context) (int, error) {
		panic("unexpected")
	})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "unexpected")
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestVersionerIsStrictlyIncreasing(t *testing.T) {
	v := newVersioner(clockwork.NewFakeClockAt(testNow))
	a := v.next()
	b := v.next()
	assert.Greater(t, b, a)
}
