// ABOUTME: Change detector: scans raw tables for recent inserts and enqueues recompute signals.
// ABOUTME: One DATA_CHANGED entry per affected user per cycle, listing the tables that changed.
package changes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/harperreed/healthlake/internal/models"
	"github.com/harperreed/healthlake/internal/storage"
)

// DefaultInterval is the change-detection cadence and lookback.
const DefaultInterval = 10 * time.Minute

// Store is the slice of the analytical store the detector uses.
type Store interface {
	ChangedUsers(ctx context.Context, d models.Domain, since time.Time) ([]string, error)
	EnqueueRecompute(ctx context.Context, entries []*models.RecomputeEntry) error
}

// Config configures a Detector.
type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
	Store  Store

	// Interval is both the cycle cadence and the scan lookback.
	Interval time.Duration
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
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return nil
}

// Detector writes recompute signals for users with fresh raw data.
type Detector struct {
	log *slog.Logger
	cfg Config
}

// NewDetector creates a Detector.
func NewDetector(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &Detector{log: cfg.Logger, cfg: cfg}, nil
}

// Interval returns the configured cadence.
func (d *Detector) Interval() time.Duration {
	return d.cfg.Interval
}

// Scan returns one pending recompute entry per user with rows inserted into
// any raw table within the lookback window.
func (d *Detector) Scan(ctx context.Context) ([]*models.RecomputeEntry, error) {
	now := d.cfg.Clock.Now().UTC()
	since := now.Add(-d.cfg.Interval)

	tables := make(map[string][]string)
	for _, domain := range models.RawDomains {
		users, err := d.cfg.Store.ChangedUsers(ctx, domain, since)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", domain, err)
		}
		for _, u := range users {
			tables[u] = append(tables[u], storage.RawTable(domain).Name)
		}
	}

	users := make([]string, 0, len(tables))
	for u := range tables {
		users = append(users, u)
	}
	sort.Strings(users)

	entries := make([]*models.RecomputeEntry, 0, len(users))
	for _, u := range users {
		entries = append(entries, &models.RecomputeEntry{
			EventID:      uuid.New().String(),
			UserID:       u,
			Reason:       models.ReasonDataChanged,
			Priority:     models.DefaultRecomputePriority,
			QueuedAt:     now,
			SourceTables: tables[u],
		})
	}
	return entries, nil
}

// Run scans for changes and enqueues the resulting entries. It returns the
// number of entries written.
func (d *Detector) Run(ctx context.Context) (int, error) {
	entries, err := d.Scan(ctx)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		d.log.Debug("changes: no recent raw inserts")
		return 0, nil
	}
	if err := d.cfg.Store.EnqueueRecompute(ctx, entries); err != nil {
		return 0, fmt.Errorf("enqueue recompute: %w", err)
	}
	d.log.Info("changes: recompute signals queued", "users", len(entries))
	return len(entries), nil
}
