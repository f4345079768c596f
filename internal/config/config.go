// ABOUTME: healthlake configuration: JSON file, .env file, and HEALTHLAKE_* environment overrides.
// ABOUTME: Getters fill defaults and build the store options for the selected backend.

package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/harperreed/healthlake/internal/storage"
)

// Defaults.
const (
	DefaultHourlyInterval = time.Hour
	DefaultChangeInterval = 10 * time.Minute
	DefaultDBFile         = "healthlake.db"
)

// ClickHouse holds the columnar backend connection settings.
type ClickHouse struct {
	Addr     string `json:"addr,omitempty"`
	Database string `json:"database,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// Correlation tunes the behavior-outcome learner. Zero values use the learner defaults.
type Correlation struct {
	MinSamples        int     `json:"min_samples,omitempty"`
	HighCutoff        float64 `json:"high_cutoff,omitempty"`
	LowCutoff         float64 `json:"low_cutoff,omitempty"`
	RelativeThreshold float64 `json:"relative_threshold,omitempty"`
	Workers           int     `json:"workers,omitempty"`
}

// Baseline tunes the population baseline learner. Zero values use the learner defaults.
type Baseline struct {
	MinStratumSamples int `json:"min_stratum_samples,omitempty"`
	MinDailySamples   int `json:"min_daily_samples,omitempty"`
}

// Config stores healthlake configuration.
type Config struct {
	// Backend selects the analytical store: "sqlite" (default) or "clickhouse".
	Backend string `json:"backend,omitempty"`

	// DataDir holds the sqlite database. Supports ~ expansion.
	// Defaults to ~/.local/share/healthlake.
	DataDir string `json:"data_dir,omitempty"`

	ClickHouse ClickHouse `json:"clickhouse,omitempty"`

	// Intervals are Go duration strings, e.g. "1h" or "10m".
	HourlyInterval string `json:"hourly_interval,omitempty"`
	ChangeInterval string `json:"change_interval,omitempty"`

	RollupWindowDays int `json:"rollup_window_days,omitempty"`

	Correlation Correlation `json:"correlation,omitempty"`
	Baseline    Baseline    `json:"baseline,omitempty"`

	// MetricsAddr enables the prometheus endpoint in `healthlake serve`, e.g. ":9090".
	MetricsAddr string `json:"metrics_addr,omitempty"`
}

// GetBackend returns the configured backend, defaulting to "sqlite".
func (c *Config) GetBackend() string {
	if c.Backend == "" {
		return storage.BackendSQLite
	}
	return c.Backend
}

// GetDataDir returns the configured data directory with ~ expanded,
// defaulting to the standard XDG data directory.
func (c *Config) GetDataDir() string {
	if c.DataDir == "" {
		return DataDir()
	}
	return ExpandPath(c.DataDir)
}

// GetHourlyInterval returns the snapshot pipeline cadence.
func (c *Config) GetHourlyInterval() time.Duration {
	return parseInterval(c.HourlyInterval, DefaultHourlyInterval)
}

// GetChangeInterval returns the change detector cadence and lookback.
func (c *Config) GetChangeInterval() time.Duration {
	return parseInterval(c.ChangeInterval, DefaultChangeInterval)
}

func parseInterval(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Validate rejects settings that cannot be used.
func (c *Config) Validate() error {
	switch c.GetBackend() {
	case storage.BackendSQLite:
	case storage.BackendClickHouse:
		if c.ClickHouse.Addr == "" {
			return errors.New("clickhouse backend requires clickhouse.addr")
		}
	default:
		return fmt.Errorf("unknown backend: %q", c.Backend)
	}
	for name, s := range map[string]string{"hourly_interval": c.HourlyInterval, "change_interval": c.ChangeInterval} {
		if s == "" {
			continue
		}
		if d, err := time.ParseDuration(s); err != nil || d <= 0 {
			return fmt.Errorf("invalid %s: %q", name, s)
		}
	}
	if c.RollupWindowDays < 0 {
		return fmt.Errorf("invalid rollup_window_days: %d", c.RollupWindowDays)
	}
	return nil
}

// StoreOptions builds the storage options for the configured backend.
func (c *Config) StoreOptions() storage.Options {
	return storage.Options{
		Backend:    c.GetBackend(),
		SQLitePath: filepath.Join(c.GetDataDir(), DefaultDBFile),
		ClickHouse: storage.ClickHouseConfig{
			Addr:     c.ClickHouse.Addr,
			Database: c.ClickHouse.Database,
			Username: c.ClickHouse.Username,
			Password: c.ClickHouse.Password,
		},
	}
}

// DataDir returns the default data directory following XDG spec.
func DataDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "healthlake")
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// GetConfigPath returns the config file path.
func GetConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, _ := os.UserHomeDir()
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "healthlake", "config.json")
}

// LoadDotEnv loads the first readable .env file. Variables already set in
// the environment are left alone.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err == nil {
			return
		}
	}
}

// Load reads config from disk and applies environment overrides.
func Load() (*Config, error) {
	cfg, err := LoadFile(GetConfigPath())
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads one config file. A missing file yields an empty config.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// ApplyEnv overrides fields from HEALTHLAKE_* environment variables.
func (c *Config) ApplyEnv() error {
	strs := map[string]*string{
		"HEALTHLAKE_BACKEND":             &c.Backend,
		"HEALTHLAKE_DATA_DIR":            &c.DataDir,
		"HEALTHLAKE_CLICKHOUSE_ADDR":     &c.ClickHouse.Addr,
		"HEALTHLAKE_CLICKHOUSE_DATABASE": &c.ClickHouse.Database,
		"HEALTHLAKE_CLICKHOUSE_USERNAME": &c.ClickHouse.Username,
		"HEALTHLAKE_CLICKHOUSE_PASSWORD": &c.ClickHouse.Password,
		"HEALTHLAKE_HOURLY_INTERVAL":     &c.HourlyInterval,
		"HEALTHLAKE_CHANGE_INTERVAL":     &c.ChangeInterval,
		"HEALTHLAKE_METRICS_ADDR":        &c.MetricsAddr,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"HEALTHLAKE_ROLLUP_WINDOW_DAYS":      &c.RollupWindowDays,
		"HEALTHLAKE_CORRELATION_MIN_SAMPLES": &c.Correlation.MinSamples,
		"HEALTHLAKE_CORRELATION_WORKERS":     &c.Correlation.Workers,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = n
	}

	floats := map[string]*float64{
		"HEALTHLAKE_CORRELATION_HIGH_CUTOFF": &c.Correlation.HighCutoff,
		"HEALTHLAKE_CORRELATION_LOW_CUTOFF":  &c.Correlation.LowCutoff,
		"HEALTHLAKE_CORRELATION_THRESHOLD":   &c.Correlation.RelativeThreshold,
	}
	for key, dst := range floats {
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = f
	}
	return nil
}

// Save writes config to disk.
func (c *Config) Save() error {
	path := GetConfigPath()
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// OpenStore opens the analytical store for the configured backend.
func (c *Config) OpenStore(ctx context.Context, log *slog.Logger) (*storage.Store, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	opts := c.StoreOptions()
	if opts.Backend == storage.BackendSQLite {
		if err := os.MkdirAll(c.GetDataDir(), 0750); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	return storage.Open(ctx, log, opts)
}
