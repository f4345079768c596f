// ABOUTME: Hourly snapshot pipeline: rollup, assemble, then enrich, each committed before the next.
// ABOUTME: A failed stage aborts the rest of the cycle and is reported as a failed JobResult.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/harperreed/healthlake/internal/metrics"
	"github.com/harperreed/healthlake/internal/models"
)

// Stage names.
const (
	JobHourly     = "hourly"
	StageRollup   = "rollup"
	StageAssemble = "assemble"
	StageEnrich   = "enrich"
)

// MaxRollupWindowDays bounds the trailing window rebuilt each cycle.
const MaxRollupWindowDays = 120

// Store is the slice of the analytical store the pipeline reads and writes.
type Store interface {
	ListRawEventsSince(ctx context.Context, d models.Domain, sinceDate string, recordedSince time.Time) ([]*models.RawEvent, error)
	WriteRollups(ctx context.Context, d models.Domain, rollups []*models.DailyRollup) error
	CurrentRollups(ctx context.Context, d models.Domain, sinceDate string) ([]*models.DailyRollup, error)
	WriteSnapshots(ctx context.Context, snaps []*models.FeatureSnapshot) error
	CurrentSnapshots(ctx context.Context, sinceDate string) ([]*models.FeatureSnapshot, error)
}

// Config configures a Pipeline.
type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
	Store  Store

	// WindowDays is the trailing number of days rebuilt each cycle.
	WindowDays int
}

// Validate checks required fields and fills defaults.
func (cfg *Config) Validate() error {
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.WindowDays <= 0 || cfg.WindowDays > MaxRollupWindowDays {
		cfg.WindowDays = MaxRollupWindowDays
	}
	return nil
}

// Pipeline runs the daily feature stages.
type Pipeline struct {
	log      *slog.Logger
	cfg      Config
	versions *versioner
}

// New creates a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &Pipeline{
		log:      cfg.Logger,
		cfg:      cfg,
		versions: newVersioner(cfg.Clock),
	}, nil
}

// window returns the first local date of the trailing window and the instant
// it starts, taken one day early to cover timezones ahead of UTC.
func (p *Pipeline) window() (string, time.Time) {
	now := p.cfg.Clock.Now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, -(p.cfg.WindowDays - 1))
	return start.Format(models.DateLayout), start.Add(-24 * time.Hour)
}

// BuildRollups rebuilds every domain's rollups over the trailing window.
func (p *Pipeline) BuildRollups(ctx context.Context) (int, error) {
	sinceDate, sinceTime := p.window()
	version := p.versions.next()

	var total int
	for _, spec := range models.RollupDomains {
		events, err := p.cfg.Store.ListRawEventsSince(ctx, spec.Domain, sinceDate, sinceTime)
		if err != nil {
			return total, fmt.Errorf("read raw %s: %w", spec.Domain, err)
		}

		var rollups []*models.DailyRollup
		for _, r := range BuildRollups(spec, events, version) {
			if r.LocalDate >= sinceDate {
				rollups = append(rollups, r)
			}
		}
		if err := p.cfg.Store.WriteRollups(ctx, spec.Domain, rollups); err != nil {
			return total, err
		}
		p.log.Debug("pipeline: rollups built", "domain", spec.Domain, "events", len(events), "rollups", len(rollups))
		total += len(rollups)
	}
	return total, nil
}

// AssembleSnapshots joins the current rollups into new assembled snapshots.
func (p *Pipeline) AssembleSnapshots(ctx context.Context) (int, error) {
	sinceDate, _ := p.window()

	rollups := make(map[models.Domain][]*models.DailyRollup, len(models.RollupDomains))
	for _, spec := range models.RollupDomains {
		rs, err := p.cfg.Store.CurrentRollups(ctx, spec.Domain, sinceDate)
		if err != nil {
			return 0, fmt.Errorf("read rollups %s: %w", spec.Domain, err)
		}
		rollups[spec.Domain] = rs
	}

	snaps := Assemble(rollups, p.versions.next())
	if err := p.cfg.Store.WriteSnapshots(ctx, snaps); err != nil {
		return 0, err
	}
	return len(snaps), nil
}

// EnrichSnapshots re-reads the current snapshots and writes enriched versions
// for the window. History reaches back far enough to fill the first days' windows.
func (p *Pipeline) EnrichSnapshots(ctx context.Context) (int, error) {
	sinceDate, _ := p.window()
	start, err := time.Parse(models.DateLayout, sinceDate)
	if err != nil {
		return 0, fmt.Errorf("parse window start: %w", err)
	}
	historyFrom := start.AddDate(0, 0, -(QualityWindowDays - 1)).Format(models.DateLayout)

	current, err := p.cfg.Store.CurrentSnapshots(ctx, historyFrom)
	if err != nil {
		return 0, fmt.Errorf("read snapshots: %w", err)
	}
	enriched, err := Enrich(current, p.versions.next())
	if err != nil {
		return 0, err
	}

	var out []*models.FeatureSnapshot
	for _, snap := range enriched {
		if snap.LocalDate >= sinceDate {
			out = append(out, snap)
		}
	}
	if err := p.cfg.Store.WriteSnapshots(ctx, out); err != nil {
		return 0, err
	}
	return len(out), nil
}

type stageFunc func(ctx context.Context) (int, error)

// RunHourly runs rollup, assembly and enrichment strictly in order. It
// returns one result per attempted stage; the first failure stops the cycle
// and is also returned as the error.
func (p *Pipeline) RunHourly(ctx context.Context) ([]models.JobResult, error) {
	jobID := uuid.New().String()
	stages := []struct {
		name string
		run  stageFunc
	}{
		{StageRollup, p.BuildRollups},
		{StageAssemble, p.AssembleSnapshots},
		{StageEnrich, p.EnrichSnapshots},
	}

	results := make([]models.JobResult, 0, len(stages))
	for _, stage := range stages {
		res := p.runStage(ctx, jobID, stage.name, stage.run)
		results = append(results, res)
		if !res.Success {
			return results, fmt.Errorf("stage %s: %s", stage.name, res.Error)
		}
	}
	return results, nil
}

func (p *Pipeline) runStage(ctx context.Context, jobID, name string, run stageFunc) (res models.JobResult) {
	start := p.cfg.Clock.Now()
	res = models.JobResult{JobID: jobID, Job: JobHourly, Stage: name, StartedAt: start.UTC()}

	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Error = fmt.Sprintf("panic: %v", r)
		}
		res.Duration = p.cfg.Clock.Since(start)

		var err error
		if !res.Success {
			err = errors.New(res.Error)
			p.log.Error("pipeline: stage failed", "stage", name, "job_id", jobID, "duration", res.Duration, "error", res.Error)
		} else {
			p.log.Info("pipeline: stage completed", "stage", name, "job_id", jobID, "duration", res.Duration, "rows", res.RowsAffected)
		}
		metrics.ObserveRun(JobHourly+"."+name, res.Duration.Seconds(), err)
	}()

	if err := ctx.Err(); err != nil {
		res.Error = err.Error()
		return res
	}
	n, err := run(ctx)
	res.RowsAffected = n
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = true
	return res
}
