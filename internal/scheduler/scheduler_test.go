// ABOUTME: Tests for the scheduler's ticker loops, overlap guard, and failure isolation.
// ABOUTME: A fake clock drives ticks deterministically.
package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/healthlake/internal/models"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T, clock clockwork.Clock) *Scheduler {
	t.Helper()
	s, err := New(Config{Clock: clock})
	require.NoError(t, err)
	return s
}

func TestRegisterValidatesJobs(t *testing.T) {
	s := newTestScheduler(t, clockwork.NewFakeClockAt(testNow))
	noop := func(context.Context) ([]models.JobResult, error) { return nil, nil }

	require.NoError(t, s.Register(Job{Name: "hourly", Interval: time.Hour, Run: noop}))
	assert.Error(t, s.Register(Job{Name: "hourly", Interval: time.Hour, Run: noop}))
	assert.Error(t, s.Register(Job{Name: "", Interval: time.Hour, Run: noop}))
	assert.Error(t, s.Register(Job{Name: "changes", Run: noop}))
	assert.Error(t, s.Register(Job{Name: "changes", Interval: time.Minute}))
	assert.Equal(t, []string{"hourly"}, s.Jobs())
}

func TestTriggerUnknownJob(t *testing.T) {
	s := newTestScheduler(t, clockwork.NewFakeClockAt(testNow))
	_, err := s.Trigger(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestCountedReportsRowsAndErrors(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testNow)

	ok := Counted(clock, "changes", func(context.Context) (int, error) { return 3, nil })
	results, err := ok(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, 3, results[0].RowsAffected)
	assert.Equal(t, "changes", results[0].Job)
	assert.NotEmpty(t, results[0].JobID)

	bad := Counted(clock, "changes", func(context.Context) (int, error) { return 0, errors.New("store unreachable") })
	results, err = bad(context.Background())
	require.Error(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, "store unreachable", results[0].Error)
}

func TestPanicsBecomeFailedResults(t *testing.T) {
	s := newTestScheduler(t, clockwork.NewFakeClockAt(testNow))
	require.NoError(t, s.Register(Job{Name: "boom", Interval: time.Hour, Run: func(context.Context) ([]models.JobResult, error) {
		panic("nil map")
	}}))

	results, err := s.Trigger(context.Background(), "boom")
	require.Error(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "nil map")

	// The guard is released after a panic.
	_, err = s.Trigger(context.Background(), "boom")
	assert.NotErrorIs(t, err, ErrJobRunning)
}

func TestOverlappingRunIsSkipped(t *testing.T) {
	s := newTestScheduler(t, clockwork.NewFakeClockAt(testNow))
	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, s.Register(Job{Name: "hourly", Interval: time.Hour, Run: func(context.Context) ([]models.JobResult, error) {
		close(started)
		<-release
		return []models.JobResult{{Job: "hourly", Success: true}}, nil
	}}))

	done := make(chan error, 1)
	go func() {
		_, err := s.Trigger(context.Background(), "hourly")
		done <- err
	}()
	<-started

	_, err := s.Trigger(context.Background(), "hourly")
	assert.ErrorIs(t, err, ErrJobRunning)

	close(release)
	require.NoError(t, <-done)
}

func TestTickerDrivesJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clock := clockwork.NewFakeClockAt(testNow)
	s := newTestScheduler(t, clock)

	runs := make(chan struct{}, 10)
	require.NoError(t, s.Register(Job{Name: "changes", Interval: 10 * time.Minute, Run: func(context.Context) ([]models.JobResult, error) {
		runs <- struct{}{}
		return nil, errors.New("transient")
	}}))
	s.Start(ctx)

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	for i := 0; i < 2; i++ {
		clock.Advance(10 * time.Minute)
		select {
		case <-runs:
		case <-time.After(5 * time.Second):
			t.Fatalf("tick %d did not run the job", i+1)
		}
	}

	cancel()
	s.Wait()
}

func TestRunOnStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newTestScheduler(t, clockwork.NewFakeClockAt(testNow))

	runs := make(chan struct{}, 1)
	require.NoError(t, s.Register(Job{Name: "hourly", Interval: time.Hour, RunOnStart: true, Run: func(context.Context) ([]models.JobResult, error) {
		runs <- struct{}{}
		return nil, nil
	}}))
	s.Start(ctx)

	select {
	case <-runs:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run on start")
	}
	cancel()
	s.Wait()
}

func TestOnceSharesGuardAndRecovery(t *testing.T) {
	s := newTestScheduler(t, clockwork.NewFakeClockAt(testNow))

	results, err := s.Once(context.Background(), "train", func(context.Context) ([]models.JobResult, error) {
		panic("boom")
	})
	require.Error(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "train", results[0].Job)

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_, _ = s.Once(context.Background(), "train", func(context.Context) ([]models.JobResult, error) {
			close(started)
			<-release
			return nil, nil
		})
	}()
	<-started
	_, err = s.Once(context.Background(), "train", func(context.Context) ([]models.JobResult, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrJobRunning)
	close(release)

	assert.Empty(t, s.Jobs(), "one-off jobs are not scheduled")
}

func TestOnceForGuardsPerKey(t *testing.T) {
	s := newTestScheduler(t, clockwork.NewFakeClockAt(testNow))
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := s.OnceFor(ctx, "train_correlations", "u1", func(context.Context) ([]models.JobResult, error) {
			close(started)
			<-release
			return nil, nil
		})
		done <- err
	}()
	<-started

	results, err := s.OnceFor(ctx, "train_correlations", "u2", func(context.Context) ([]models.JobResult, error) {
		return []models.JobResult{{Job: "train_correlations", Success: true}}, nil
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	_, err = s.OnceFor(ctx, "train_correlations", "u1", func(context.Context) ([]models.JobResult, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrJobRunning)

	close(release)
	require.NoError(t, <-done)
}
