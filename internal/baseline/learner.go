// ABOUTME: Population baseline learner over the designated training corpus.
// ABOUTME: Bootstraps a synthetic corpus when empty, then upserts every signal's baselines.
package baseline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jonboulle/clockwork"

	"github.com/harperreed/healthlake/internal/models"
)

// insertChunk bounds the rows sent in one corpus insert.
const insertChunk = 10000

// Store is the slice of the analytical store the learner uses.
type Store interface {
	CountTrainingReadings(ctx context.Context) (int, error)
	ListTrainingReadings(ctx context.Context, signal string) ([]*models.TrainingReading, error)
	InsertTrainingReadings(ctx context.Context, readings []*models.TrainingReading) error
	ClearTrainingCorpus(ctx context.Context) error
	UpsertBaselines(ctx context.Context, baselines []*models.PopulationBaseline) error
}

// Config configures a Learner.
type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
	Store  Store

	MinStratumSamples int
	MinDailySamples   int

	// OnTrained is called after baselines are written, e.g. to drop cached lookups.
	OnTrained func()
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
	if cfg.MinStratumSamples <= 0 {
		cfg.MinStratumSamples = DefaultMinStratumSamples
	}
	if cfg.MinDailySamples <= 0 {
		cfg.MinDailySamples = DefaultMinDailySamples
	}
	return nil
}

// TrainOptions control a training run.
type TrainOptions struct {
	// Regenerate replaces the corpus with a fresh synthetic one before training.
	Regenerate bool
	Subjects   int
	Days       int
	Seed       uint64

	// Signals limits training to the named signals; empty trains every signal.
	Signals []string
}

// TrainResult summarizes a training run.
type TrainResult struct {
	Generated    int                          `json:"generated"`
	ModelVersion string                       `json:"model_version"`
	Baselines    []*models.PopulationBaseline `json:"baselines"`
}

// Learner trains population baselines.
type Learner struct {
	log *slog.Logger
	cfg Config
}

// NewLearner creates a Learner.
func NewLearner(cfg Config) (*Learner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &Learner{log: cfg.Logger, cfg: cfg}, nil
}

// Train learns and upserts baselines for the requested signals.
func (l *Learner) Train(ctx context.Context, opts TrainOptions) (*TrainResult, error) {
	signals, err := resolveSignals(opts.Signals)
	if err != nil {
		return nil, err
	}

	now := l.cfg.Clock.Now().UTC()
	res := &TrainResult{ModelVersion: "pop-" + now.Format("20060102T150405Z")}

	generated, err := l.ensureCorpus(ctx, opts)
	if err != nil {
		return nil, err
	}
	res.Generated = generated

	params := Params{
		MinStratumSamples: l.cfg.MinStratumSamples,
		MinDailySamples:   l.cfg.MinDailySamples,
		ModelVersion:      res.ModelVersion,
		TrainedAt:         now,
	}
	for _, sig := range signals {
		readings, err := l.cfg.Store.ListTrainingReadings(ctx, sig.Name)
		if err != nil {
			return nil, fmt.Errorf("read corpus for %s: %w", sig.Name, err)
		}
		baselines := Learn(sig, readings, params)
		if len(baselines) == 0 {
			l.log.Warn("baseline: no stratum met the sample floor", "signal", sig.Name, "readings", len(readings))
			continue
		}
		if err := l.cfg.Store.UpsertBaselines(ctx, baselines); err != nil {
			return nil, fmt.Errorf("write baselines for %s: %w", sig.Name, err)
		}
		l.log.Info("baseline: trained", "signal", sig.Name, "readings", len(readings), "baselines", len(baselines))
		res.Baselines = append(res.Baselines, baselines...)
	}

	if l.cfg.OnTrained != nil {
		l.cfg.OnTrained()
	}
	return res, nil
}

// ensureCorpus generates a synthetic corpus when asked to, or when the
// corpus is empty. It returns the number of generated readings.
func (l *Learner) ensureCorpus(ctx context.Context, opts TrainOptions) (int, error) {
	if !opts.Regenerate {
		n, err := l.cfg.Store.CountTrainingReadings(ctx)
		if err != nil {
			return 0, fmt.Errorf("count corpus: %w", err)
		}
		if n > 0 {
			return 0, nil
		}
		l.log.Info("baseline: training corpus empty, generating synthetic corpus")
	} else if err := l.cfg.Store.ClearTrainingCorpus(ctx); err != nil {
		return 0, fmt.Errorf("clear corpus: %w", err)
	}

	days := opts.Days
	if days <= 0 {
		days = DefaultDays
	}
	readings := Generate(GenerateOptions{
		Subjects: opts.Subjects,
		Days:     days,
		Seed:     opts.Seed,
		Start:    l.cfg.Clock.Now().UTC().AddDate(0, 0, -days),
	})
	for start := 0; start < len(readings); start += insertChunk {
		end := min(start+insertChunk, len(readings))
		if err := l.cfg.Store.InsertTrainingReadings(ctx, readings[start:end]); err != nil {
			return 0, fmt.Errorf("insert synthetic corpus: %w", err)
		}
	}
	return len(readings), nil
}

func resolveSignals(names []string) ([]models.Signal, error) {
	if len(names) == 0 {
		for name := range models.Signals {
			names = append(names, name)
		}
		sort.Strings(names)
	}
	signals := make([]models.Signal, 0, len(names))
	for _, name := range names {
		sig, ok := models.LookupSignal(name)
		if !ok {
			return nil, fmt.Errorf("unknown signal %q", name)
		}
		signals = append(signals, sig)
	}
	return signals, nil
}
