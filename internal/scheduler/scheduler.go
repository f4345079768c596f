// ABOUTME: Periodic job scheduler with a pluggable clock and a per-job overlap guard.
// ABOUTME: Job errors and panics become failed JobResults; they never stop the scheduler.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/harperreed/healthlake/internal/metrics"
	"github.com/harperreed/healthlake/internal/models"
)

// ErrJobRunning is returned by Trigger when the job's previous run has not finished.
var ErrJobRunning = errors.New("job is already running")

// ErrUnknownJob is returned for a job name that was never registered.
var ErrUnknownJob = errors.New("unknown job")

// JobFunc runs one cycle of a job.
type JobFunc func(ctx context.Context) ([]models.JobResult, error)

// Job is a named periodic unit of work.
type Job struct {
	Name     string
	Interval time.Duration
	Run      JobFunc

	// RunOnStart fires the job once when the scheduler starts.
	RunOnStart bool
}

// Counted adapts a job that reports an affected-row count into a JobFunc.
func Counted(clock clockwork.Clock, name string, fn func(ctx context.Context) (int, error)) JobFunc {
	return func(ctx context.Context) ([]models.JobResult, error) {
		start := clock.Now()
		res := models.JobResult{JobID: uuid.New().String(), Job: name, StartedAt: start.UTC()}
		n, err := fn(ctx)
		res.Duration = clock.Since(start)
		res.RowsAffected = n
		if err != nil {
			res.Error = err.Error()
			return []models.JobResult{res}, err
		}
		res.Success = true
		return []models.JobResult{res}, nil
	}
}

// Config configures a Scheduler.
type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
}

// Validate fills defaults.
func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

type entry struct {
	job Job
	mu  sync.Mutex
}

// Scheduler drives registered jobs on their own tickers.
type Scheduler struct {
	log *slog.Logger
	cfg Config

	mu    sync.RWMutex
	jobs  map[string]*entry
	adhoc map[string]*entry

	wg sync.WaitGroup
}

// New creates a Scheduler.
func New(cfg Config) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &Scheduler{
		log:   cfg.Logger,
		cfg:   cfg,
		jobs:  make(map[string]*entry),
		adhoc: make(map[string]*entry),
	}, nil
}

// Register adds a job. Names must be unique.
func (s *Scheduler) Register(job Job) error {
	if job.Name == "" {
		return errors.New("job name is required")
	}
	if job.Run == nil {
		return fmt.Errorf("job %s: run func is required", job.Name)
	}
	if job.Interval <= 0 {
		return fmt.Errorf("job %s: interval must be greater than 0", job.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.Name]; ok {
		return fmt.Errorf("job %s is already registered", job.Name)
	}
	s.jobs[job.Name] = &entry{job: job}
	return nil
}

// Jobs lists registered job names.
func (s *Scheduler) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Scheduler) lookup(name string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.jobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return e, nil
}

// Trigger runs a job now, subject to the same overlap guard as scheduled runs.
func (s *Scheduler) Trigger(ctx context.Context, name string) ([]models.JobResult, error) {
	e, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, e, e.job.Run)
}

// Once runs an unscheduled job with the same guard, panic recovery and
// metrics as registered jobs. Concurrent calls with the same name are rejected.
func (s *Scheduler) Once(ctx context.Context, name string, run JobFunc) ([]models.JobResult, error) {
	return s.OnceFor(ctx, name, "", run)
}

// OnceFor is Once with the overlap guard narrowed to (name, key), so runs
// of the same job for different keys may proceed concurrently. Metrics and
// logs still use name.
func (s *Scheduler) OnceFor(ctx context.Context, name, key string, run JobFunc) ([]models.JobResult, error) {
	guard := name
	if key != "" {
		guard = name + ":" + key
	}
	s.mu.Lock()
	e, ok := s.adhoc[guard]
	if !ok {
		e = &entry{job: Job{Name: name}}
		s.adhoc[guard] = e
	}
	s.mu.Unlock()
	return s.execute(ctx, e, run)
}

func (s *Scheduler) execute(ctx context.Context, e *entry, run JobFunc) (results []models.JobResult, err error) {
	name := e.job.Name
	if !e.mu.TryLock() {
		metrics.JobSkippedTotal.WithLabelValues(name).Inc()
		s.log.Warn("scheduler: previous run still in progress, skipping", "job", name)
		return nil, fmt.Errorf("%s: %w", name, ErrJobRunning)
	}
	defer e.mu.Unlock()

	start := s.cfg.Clock.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			results = append(results, models.JobResult{
				JobID:     uuid.New().String(),
				Job:       name,
				StartedAt: start.UTC(),
				Duration:  s.cfg.Clock.Since(start),
				Error:     err.Error(),
			})
		}
		duration := s.cfg.Clock.Since(start)
		metrics.ObserveRun(name, duration.Seconds(), err)
		if err != nil {
			s.log.Error("scheduler: job failed", "job", name, "duration", duration, "error", err)
			return
		}
		s.log.Info("scheduler: job completed", "job", name, "duration", duration)
	}()

	return run(ctx)
}

// Start launches one ticker loop per registered job. Ticks fire runs in the
// background so an overrunning cycle is skipped rather than queued.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, e)
	}
}

func (s *Scheduler) loop(ctx context.Context, e *entry) {
	defer s.wg.Done()
	s.log.Info("scheduler: starting job loop", "job", e.job.Name, "interval", e.job.Interval)

	if e.job.RunOnStart {
		s.fire(ctx, e)
	}
	ticker := s.cfg.Clock.NewTicker(e.job.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.fire(ctx, e)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, e *entry) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, _ = s.execute(ctx, e, e.job.Run)
	}()
}

// Wait blocks until every loop and in-flight run has returned. Cancel the
// context passed to Start first.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
