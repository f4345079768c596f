// ABOUTME: Behavior-outcome correlation learner: prior-day behavior vs next-day subjective rating.
// ABOUTME: Every evaluated pair is upserted under a deterministic key so retraining overwrites.
package correlation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/jonboulle/clockwork"

	"github.com/harperreed/healthlake/internal/models"
	"github.com/harperreed/healthlake/internal/stats"
)

// Learning defaults.
const (
	DefaultMinSamples        = 7
	DefaultHighCutoff        = 7.0
	DefaultLowCutoff         = 4.0
	DefaultRelativeThreshold = 0.15
	DefaultMinGroupDays      = 2
	DefaultActionableSamples = 14
	DefaultWorkers           = 4
)

// Store is the slice of the analytical store the learner uses.
type Store interface {
	ListUsers(ctx context.Context, domains ...models.Domain) ([]string, error)
	ListUserRawEvents(ctx context.Context, d models.Domain, userID string) ([]*models.RawEvent, error)
	UpsertCorrelations(ctx context.Context, corrs []*models.Correlation) error
}

// Config configures a Learner.
type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
	Store  Store

	MinSamples        int
	HighCutoff        float64
	LowCutoff         float64
	RelativeThreshold float64
	MinGroupDays      int
	ActionableSamples int
	Workers           int
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
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = DefaultMinSamples
	}
	if cfg.HighCutoff == 0 {
		cfg.HighCutoff = DefaultHighCutoff
	}
	if cfg.LowCutoff == 0 {
		cfg.LowCutoff = DefaultLowCutoff
	}
	if cfg.LowCutoff >= cfg.HighCutoff {
		return errors.New("low cutoff must be below high cutoff")
	}
	if cfg.RelativeThreshold <= 0 {
		cfg.RelativeThreshold = DefaultRelativeThreshold
	}
	if cfg.MinGroupDays <= 0 {
		cfg.MinGroupDays = DefaultMinGroupDays
	}
	if cfg.ActionableSamples <= 0 {
		cfg.ActionableSamples = DefaultActionableSamples
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	return nil
}

// Learner discovers behavior-outcome correlations per user.
type Learner struct {
	log  *slog.Logger
	cfg  Config
	pool pond.ResultPool[[]*models.Correlation]
}

// NewLearner creates a Learner.
func NewLearner(cfg Config) (*Learner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &Learner{
		log:  cfg.Logger,
		cfg:  cfg,
		pool: pond.NewResultPool[[]*models.Correlation](cfg.Workers),
	}, nil
}

// Close waits for in-flight training and stops the worker pool.
func (l *Learner) Close() {
	l.pool.StopAndWait()
}

// dailyLatest keeps, per key and local date, the value of the latest-recorded event.
func dailyLatest(events []*models.RawEvent) map[string]map[string]float64 {
	sorted := append([]*models.RawEvent(nil), events...)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].RecordedAt.Equal(sorted[j].RecordedAt) {
			return sorted[i].RecordedAt.Before(sorted[j].RecordedAt)
		}
		return sorted[i].EventID < sorted[j].EventID
	})

	out := make(map[string]map[string]float64)
	for _, e := range sorted {
		for k, v := range e.Fields {
			if out[k] == nil {
				out[k] = make(map[string]float64)
			}
			out[k][e.LocalDate] = v
		}
	}
	return out
}

func previousDay(date string) (string, bool) {
	t, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return "", false
	}
	return t.AddDate(0, 0, -1).Format(models.DateLayout), true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Correlate evaluates every (behavior, outcome) pair for one user. Pairs
// without enough joined days or without both outcome groups are skipped.
func (l *Learner) Correlate(userID string, behaviors, surveys []*models.RawEvent, trainedAt time.Time) []*models.Correlation {
	behaviorDays := dailyLatest(behaviors)
	outcomeDays := dailyLatest(surveys)

	var out []*models.Correlation
	for _, behavior := range sortedKeys(behaviorDays) {
		byDay := behaviorDays[behavior]
		if len(byDay) < l.cfg.MinSamples {
			continue
		}
		for _, outcome := range sortedKeys(outcomeDays) {
			var high, low []float64
			n := 0
			for _, day := range sortedKeys(outcomeDays[outcome]) {
				prev, ok := previousDay(day)
				if !ok {
					continue
				}
				value, ok := byDay[prev]
				if !ok {
					continue
				}
				n++
				switch rating := outcomeDays[outcome][day]; {
				case rating >= l.cfg.HighCutoff:
					high = append(high, value)
				case rating <= l.cfg.LowCutoff:
					low = append(low, value)
				}
			}
			if n < l.cfg.MinSamples || len(high) < l.cfg.MinGroupDays || len(low) < l.cfg.MinGroupDays {
				continue
			}
			out = append(out, l.evaluate(userID, behavior, outcome, high, low, n, trainedAt))
		}
	}
	return out
}

func (l *Learner) evaluate(userID, behavior, outcome string, high, low []float64, n int, trainedAt time.Time) *models.Correlation {
	highMean, lowMean := stats.Mean(high), stats.Mean(low)
	diff := math.Abs(highMean - lowMean)
	avg := math.Abs((highMean + lowMean) / 2)

	c := &models.Correlation{
		Key:              models.CorrelationKey(userID, behavior, outcome),
		UserID:           userID,
		BehaviorKey:      behavior,
		OutcomeDimension: outcome,
		Direction:        models.DirectionLowerIsBetter,
		HighMean:         highMean,
		LowMean:          lowMean,
		SampleSize:       n,
		TrainedAt:        trainedAt,
	}
	if highMean > lowMean {
		c.Direction = models.DirectionHigherIsBetter
	}
	if avg > 0 {
		c.EffectSizePct = diff / avg * 100
		c.Significant = diff > l.cfg.RelativeThreshold*avg
	}
	c.Actionable = c.Significant && n >= l.cfg.ActionableSamples
	return c
}

// TrainUser trains and upserts one user's correlations.
func (l *Learner) TrainUser(ctx context.Context, userID string) ([]*models.Correlation, error) {
	behaviors, err := l.cfg.Store.ListUserRawEvents(ctx, models.DomainBehaviorFactor, userID)
	if err != nil {
		return nil, fmt.Errorf("read behavior factors: %w", err)
	}
	surveys, err := l.cfg.Store.ListUserRawEvents(ctx, models.DomainSurvey, userID)
	if err != nil {
		return nil, fmt.Errorf("read surveys: %w", err)
	}

	corrs := l.Correlate(userID, behaviors, surveys, l.cfg.Clock.Now().UTC())
	if err := l.cfg.Store.UpsertCorrelations(ctx, corrs); err != nil {
		return nil, fmt.Errorf("write correlations: %w", err)
	}

	significant := 0
	for _, c := range corrs {
		if c.Significant {
			significant++
		}
	}
	l.log.Info("correlation: trained", "user", userID, "evaluated", len(corrs), "significant", significant)
	return corrs, nil
}

// TrainAll trains every user with survey data across the worker pool.
func (l *Learner) TrainAll(ctx context.Context) ([]*models.Correlation, error) {
	users, err := l.cfg.Store.ListUsers(ctx, models.DomainSurvey)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	group := l.pool.NewGroupContext(ctx)
	for _, user := range users {
		group.SubmitErr(func() ([]*models.Correlation, error) {
			return l.TrainUser(ctx, user)
		})
	}
	results, err := group.Wait()
	if err != nil {
		return nil, fmt.Errorf("train correlations: %w", err)
	}

	var all []*models.Correlation
	for _, corrs := range results {
		all = append(all, corrs...)
	}
	return all, nil
}
