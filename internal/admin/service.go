// ABOUTME: Administrative trigger surface over the pipeline, detector, learners and scorer.
// ABOUTME: Every trigger returns structured JobResults; a missing store fails jobs instead of panicking.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/harperreed/healthlake/internal/anomaly"
	"github.com/harperreed/healthlake/internal/baseline"
	"github.com/harperreed/healthlake/internal/changes"
	"github.com/harperreed/healthlake/internal/correlation"
	"github.com/harperreed/healthlake/internal/models"
	"github.com/harperreed/healthlake/internal/pipeline"
	"github.com/harperreed/healthlake/internal/scheduler"
	"github.com/harperreed/healthlake/internal/storage"
)

// Job names.
const (
	JobHourly               = pipeline.JobHourly
	JobChanges              = "changes"
	JobTrainBaselines       = "train_baselines"
	JobTrainCorrelations    = "train_correlations"
	JobTrainAllCorrelations = "train_all_correlations"
)

// CorrelationSettings tunes the correlation learner; zero values use its defaults.
type CorrelationSettings struct {
	MinSamples        int
	HighCutoff        float64
	LowCutoff         float64
	RelativeThreshold float64
	Workers           int
}

// Config configures a Service.
type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock

	// Store may be nil; every trigger then fails with storage.ErrNotConfigured.
	Store *storage.Store

	HourlyInterval time.Duration
	ChangeInterval time.Duration
	WindowDays     int

	MinStratumSamples int
	MinDailySamples   int
	Correlation       CorrelationSettings
}

// Validate fills defaults.
func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.HourlyInterval <= 0 {
		cfg.HourlyInterval = time.Hour
	}
	if cfg.ChangeInterval <= 0 {
		cfg.ChangeInterval = changes.DefaultInterval
	}
	return nil
}

// Service wires the core components to a shared store and scheduler.
type Service struct {
	log   *slog.Logger
	cfg   Config
	sched *scheduler.Scheduler

	pipeline     *pipeline.Pipeline
	detector     *changes.Detector
	baselines    *baseline.Learner
	scorer       *anomaly.Scorer
	correlations *correlation.Learner

	missingStore sync.Once
}

// New builds a Service. With a nil store the service still starts, and
// each trigger reports storage.ErrNotConfigured.
func New(cfg Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	sched, err := scheduler.New(scheduler.Config{Logger: cfg.Logger, Clock: cfg.Clock})
	if err != nil {
		return nil, err
	}
	s := &Service{log: cfg.Logger, cfg: cfg, sched: sched}

	if cfg.Store != nil {
		if err := s.wire(cfg.Store); err != nil {
			return nil, err
		}
	}

	if err := sched.Register(scheduler.Job{Name: JobHourly, Interval: cfg.HourlyInterval, Run: s.runHourly}); err != nil {
		return nil, err
	}
	if err := sched.Register(scheduler.Job{
		Name:     JobChanges,
		Interval: cfg.ChangeInterval,
		Run:      scheduler.Counted(cfg.Clock, JobChanges, s.detectChanges),
	}); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) wire(store *storage.Store) error {
	var err error
	if s.pipeline, err = pipeline.New(pipeline.Config{
		Logger: s.log, Clock: s.cfg.Clock, Store: store, WindowDays: s.cfg.WindowDays,
	}); err != nil {
		return err
	}
	if s.detector, err = changes.NewDetector(changes.Config{
		Logger: s.log, Clock: s.cfg.Clock, Store: store, Interval: s.cfg.ChangeInterval,
	}); err != nil {
		return err
	}
	if s.scorer, err = anomaly.NewScorer(anomaly.Config{Logger: s.log, Source: store}); err != nil {
		return err
	}
	if s.baselines, err = baseline.NewLearner(baseline.Config{
		Logger:            s.log,
		Clock:             s.cfg.Clock,
		Store:             store,
		MinStratumSamples: s.cfg.MinStratumSamples,
		MinDailySamples:   s.cfg.MinDailySamples,
		OnTrained:         s.scorer.Invalidate,
	}); err != nil {
		return err
	}
	c := s.cfg.Correlation
	if s.correlations, err = correlation.NewLearner(correlation.Config{
		Logger:            s.log,
		Clock:             s.cfg.Clock,
		Store:             store,
		MinSamples:        c.MinSamples,
		HighCutoff:        c.HighCutoff,
		LowCutoff:         c.LowCutoff,
		RelativeThreshold: c.RelativeThreshold,
		Workers:           c.Workers,
	}); err != nil {
		return err
	}
	return nil
}

// Scheduler returns the periodic driver for the hourly and change jobs.
func (s *Service) Scheduler() *scheduler.Scheduler {
	return s.sched
}

// Close stops background workers. The store is owned by the caller.
func (s *Service) Close() {
	if s.correlations != nil {
		s.correlations.Close()
	}
}

// ready reports ErrNotConfigured, logging it only the first time.
func (s *Service) ready() error {
	if s.cfg.Store != nil {
		return nil
	}
	s.missingStore.Do(func() {
		s.log.Warn("admin: analytical store not configured, jobs will be skipped")
	})
	return storage.ErrNotConfigured
}

func (s *Service) runHourly(ctx context.Context) ([]models.JobResult, error) {
	if err := s.ready(); err != nil {
		return []models.JobResult{s.failed(JobHourly, err)}, err
	}
	return s.pipeline.RunHourly(ctx)
}

func (s *Service) detectChanges(ctx context.Context) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	return s.detector.Run(ctx)
}

func (s *Service) failed(job string, err error) models.JobResult {
	return models.JobResult{
		JobID:     uuid.New().String(),
		Job:       job,
		StartedAt: s.cfg.Clock.Now().UTC(),
		Error:     err.Error(),
	}
}

// collect turns a scheduler outcome into results, synthesizing a failed
// result when the job never produced one (e.g. it was already running).
func (s *Service) collect(job string, results []models.JobResult, err error) []models.JobResult {
	if err != nil && len(results) == 0 {
		return []models.JobResult{s.failed(job, err)}
	}
	return results
}

// RunHourly runs rollup, assembly and enrichment now. One result per stage attempted.
func (s *Service) RunHourly(ctx context.Context) []models.JobResult {
	results, err := s.sched.Trigger(ctx, JobHourly)
	return s.collect(JobHourly, results, err)
}

// DetectChanges runs one change-detector scan now.
func (s *Service) DetectChanges(ctx context.Context) models.JobResult {
	results, err := s.sched.Trigger(ctx, JobChanges)
	return s.collect(JobChanges, results, err)[0]
}

// TrainBaselines retrains population baselines, optionally regenerating the corpus.
func (s *Service) TrainBaselines(ctx context.Context, opts baseline.TrainOptions) (*baseline.TrainResult, models.JobResult) {
	var out *baseline.TrainResult
	results, err := s.sched.Once(ctx, JobTrainBaselines, scheduler.Counted(s.cfg.Clock, JobTrainBaselines, func(ctx context.Context) (int, error) {
		if err := s.ready(); err != nil {
			return 0, err
		}
		res, err := s.baselines.Train(ctx, opts)
		if err != nil {
			return 0, err
		}
		out = res
		return len(res.Baselines), nil
	}))
	return out, s.collect(JobTrainBaselines, results, err)[0]
}

// TrainCorrelations retrains one user's behavior-outcome correlations. Runs
// for different users may overlap; a second run for the same user is rejected.
func (s *Service) TrainCorrelations(ctx context.Context, userID string) ([]*models.Correlation, models.JobResult) {
	if userID == "" {
		return nil, s.failed(JobTrainCorrelations, errors.New("user id is required"))
	}
	var out []*models.Correlation
	results, err := s.sched.OnceFor(ctx, JobTrainCorrelations, userID, scheduler.Counted(s.cfg.Clock, JobTrainCorrelations, func(ctx context.Context) (int, error) {
		if err := s.ready(); err != nil {
			return 0, err
		}
		corrs, err := s.correlations.TrainUser(ctx, userID)
		out = corrs
		return len(corrs), err
	}))
	return out, s.collect(JobTrainCorrelations, results, err)[0]
}

// TrainAllCorrelations retrains every user with survey data.
func (s *Service) TrainAllCorrelations(ctx context.Context) ([]*models.Correlation, models.JobResult) {
	var out []*models.Correlation
	results, err := s.sched.Once(ctx, JobTrainAllCorrelations, scheduler.Counted(s.cfg.Clock, JobTrainAllCorrelations, func(ctx context.Context) (int, error) {
		if err := s.ready(); err != nil {
			return 0, err
		}
		corrs, err := s.correlations.TrainAll(ctx)
		out = corrs
		return len(corrs), err
	}))
	return out, s.collect(JobTrainAllCorrelations, results, err)[0]
}

// Score scores one observed value against the learned baselines.
func (s *Service) Score(ctx context.Context, req anomaly.Request) (*models.AnomalyScore, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.scorer.Score(ctx, req)
}

// Snapshot returns the current feature snapshot for one (user, date).
func (s *Service) Snapshot(ctx context.Context, userID, date string) (*models.FeatureSnapshot, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.cfg.Store.GetSnapshot(ctx, userID, date)
}

// Snapshots returns a user's current snapshots between two dates inclusive.
func (s *Service) Snapshots(ctx context.Context, userID, from, to string) ([]*models.FeatureSnapshot, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.cfg.Store.ListUserSnapshots(ctx, userID, from, to)
}

// Correlations lists current correlations ranked by strength.
func (s *Service) Correlations(ctx context.Context, filter storage.CorrelationFilter) ([]*models.Correlation, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.cfg.Store.ListCorrelations(ctx, filter)
}

// Baselines lists current population baselines; an empty id lists every signal.
func (s *Service) Baselines(ctx context.Context, baselineID string) ([]*models.PopulationBaseline, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.cfg.Store.ListBaselines(ctx, baselineID)
}

// Ingest loads raw events into their domain tables.
func (s *Service) Ingest(ctx context.Context, events []*models.RawEvent) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	return s.cfg.Store.InsertRawEvents(ctx, events)
}
