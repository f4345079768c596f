// ABOUTME: Anomaly scorer: z-score, percentile bucket, classification and confidence for one value.
// ABOUTME: Baselines are looked up stratum-first, then global, through a TTL cache.
package anomaly

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/harperreed/healthlake/internal/models"
)

// Scoring constants.
const (
	DefaultCacheTTL = 5 * time.Minute

	// ZThreshold is the |z| above which a value is unusual for its context.
	ZThreshold = 2.5

	MaxConfidence        = 0.95
	NoBaselineConfidence = 0.3
	GlobalMatchPenalty   = 0.8
)

// BaselineSource looks up the current baseline for one key; nil means none.
type BaselineSource interface {
	GetBaseline(ctx context.Context, baselineID string, pattern models.PatternType, stratum string) (*models.PopulationBaseline, error)
}

// Config configures a Scorer.
type Config struct {
	Logger   *slog.Logger
	Source   BaselineSource
	CacheTTL time.Duration
}

// Validate checks required fields and fills defaults.
func (cfg *Config) Validate() error {
	if cfg.Source == nil {
		return errors.New("baseline source is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	return nil
}

// Request is one value to score.
type Request struct {
	Signal  string             `json:"signal"`
	Value   float64            `json:"value"`
	Stratum string             `json:"stratum"`
	Pattern models.PatternType `json:"pattern,omitempty"`
}

// lookup wraps a cached baseline so misses are cached too.
type lookup struct {
	baseline *models.PopulationBaseline
}

// Scorer scores observed values against learned baselines.
type Scorer struct {
	log *slog.Logger
	cfg Config

	cache   *ttlcache.Cache[string, lookup]
	cacheMu sync.RWMutex
}

// NewScorer creates a Scorer.
func NewScorer(cfg Config) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	cache := ttlcache.New(
		ttlcache.WithTTL[string, lookup](cfg.CacheTTL),
		ttlcache.WithDisableTouchOnHit[string, lookup](),
	)
	return &Scorer{log: cfg.Logger, cfg: cfg, cache: cache}, nil
}

// Invalidate drops every cached baseline, e.g. after retraining.
func (s *Scorer) Invalidate() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cache.DeleteAll()
}

func (s *Scorer) baseline(ctx context.Context, signal string, pattern models.PatternType, stratum string) (*models.PopulationBaseline, error) {
	key := strings.Join([]string{signal, string(pattern), stratum}, "|")

	s.cacheMu.RLock()
	item := s.cache.Get(key)
	s.cacheMu.RUnlock()
	if item != nil {
		return item.Value().baseline, nil
	}

	b, err := s.cfg.Source.GetBaseline(ctx, signal, pattern, stratum)
	if err != nil {
		return nil, err
	}
	s.cacheMu.Lock()
	s.cache.Set(key, lookup{baseline: b}, ttlcache.DefaultTTL)
	s.cacheMu.Unlock()
	return b, nil
}

// Score classifies one value. Lookup failures degrade to the no-baseline
// result rather than failing the caller.
func (s *Scorer) Score(ctx context.Context, req Request) (*models.AnomalyScore, error) {
	sig, ok := models.LookupSignal(req.Signal)
	if !ok {
		return nil, fmt.Errorf("unknown signal %q", req.Signal)
	}
	pattern := req.Pattern
	if pattern == "" {
		pattern = models.PatternHourly
	}

	stratum := NormalizeStratum(pattern, req.Stratum)

	matched, matchedBy := s.match(ctx, sig.Name, pattern, stratum)
	return Evaluate(sig, req.Value, stratum, matched, matchedBy), nil
}

// NormalizeStratum canonicalizes hourly strata to the learner's unpadded
// hour keys, so "08" and " 8" both match "8".
func NormalizeStratum(pattern models.PatternType, stratum string) string {
	stratum = strings.TrimSpace(stratum)
	if pattern != models.PatternHourly {
		return stratum
	}
	if h, err := strconv.Atoi(stratum); err == nil && h >= 0 && h < 24 {
		return strconv.Itoa(h)
	}
	return stratum
}

func (s *Scorer) match(ctx context.Context, signal string, pattern models.PatternType, stratum string) (*models.PopulationBaseline, string) {
	if stratum != "" && stratum != models.GlobalStratum {
		b, err := s.baseline(ctx, signal, pattern, stratum)
		if err != nil {
			s.log.Warn("anomaly: stratum baseline lookup failed", "signal", signal, "stratum", stratum, "error", err)
		} else if b != nil {
			return b, models.MatchedStratum
		}
	}
	b, err := s.baseline(ctx, signal, models.PatternGlobal, models.GlobalStratum)
	if err != nil {
		s.log.Warn("anomaly: global baseline lookup failed", "signal", signal, "error", err)
		return nil, models.MatchNone
	}
	if b != nil {
		return b, models.MatchedGlobal
	}
	return nil, models.MatchNone
}

// Evaluate scores a value against an already matched baseline (or none).
func Evaluate(sig models.Signal, value float64, stratum string, b *models.PopulationBaseline, matchedBy string) *models.AnomalyScore {
	score := &models.AnomalyScore{
		Signal:    sig.Name,
		Value:     value,
		Stratum:   stratum,
		Bucket:    models.BucketUnknown,
		MatchedBy: models.MatchNone,
	}
	if b != nil {
		score.Z = (value - b.Mean) / math.Max(b.Std, 1)
		score.Bucket = Bucket(value, b.Percentiles)
		score.SampleCount = b.SampleCount
		score.MatchedBy = matchedBy
	}
	score.Classification = Classify(sig, value, score.Z)
	score.IsAnomaly = score.Classification != models.ClassNone
	score.Confidence = Confidence(score.MatchedBy, score.SampleCount)
	return score
}

// Bucket places a value on a percentile ladder.
func Bucket(value float64, p models.PercentileLadder) string {
	switch {
	case value <= p.P10:
		return models.BucketLeP10
	case value <= p.P25:
		return models.BucketP10P25
	case value <= p.P50:
		return models.BucketP25P50
	case value <= p.P75:
		return models.BucketP50P75
	case value <= p.P90:
		return models.BucketP75P90
	default:
		return models.BucketGtP90
	}
}

// Classify applies hard bounds first, then the z threshold.
func Classify(sig models.Signal, value, z float64) string {
	switch {
	case value < sig.HardLow:
		return models.ClassSevereLow
	case value > sig.HardHigh:
		return models.ClassSevereHigh
	case math.Abs(z) > ZThreshold:
		return models.ClassUnusualForContext
	default:
		return models.ClassNone
	}
}

// Confidence grows with the matched baseline's sample count toward
// MaxConfidence, is discounted for global matches, and is fixed without a baseline.
func Confidence(matchedBy string, sampleCount int) float64 {
	if matchedBy == models.MatchNone || matchedBy == "" {
		return NoBaselineConfidence
	}
	n := float64(max(sampleCount, 0))
	c := math.Min(MaxConfidence, 0.5+0.45*n/(n+100))
	if matchedBy == models.MatchedGlobal {
		c *= GlobalMatchPenalty
	}
	return c
}
