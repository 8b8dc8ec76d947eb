// Package config loads and validates scraper configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. HLTV_DATABASE_DSN.
const EnvPrefix = "HLTV"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Pacing    PacingConfig    `mapstructure:"pacing"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// AppConfig holds process-wide paths.
type AppConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// DatabaseConfig selects the store backend.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// FetchConfig configures the document fetchers and retry policy.
type FetchConfig struct {
	Engine              string        `mapstructure:"engine"`
	BaseURL             string        `mapstructure:"base_url"`
	UserAgent           string        `mapstructure:"user_agent"`
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxAttempts         int           `mapstructure:"max_attempts"`
	BackoffBase         time.Duration `mapstructure:"backoff_base"`
	BackoffMax          time.Duration `mapstructure:"backoff_max"`
	HeadlessMaxParallel int           `mapstructure:"headless_max_parallel"`
	ReadySelector       string        `mapstructure:"ready_selector"`
}

// PacingConfig shapes the per-slot and global governors and the rate cap.
type PacingConfig struct {
	Floor         time.Duration `mapstructure:"floor"`
	Ceiling       time.Duration `mapstructure:"ceiling"`
	BackoffFactor float64       `mapstructure:"backoff_factor"`
	RecoverFactor float64       `mapstructure:"recover_factor"`
	// GlobalFloor of zero disables the global governor.
	GlobalFloor   time.Duration `mapstructure:"global_floor"`
	GlobalCeiling time.Duration `mapstructure:"global_ceiling"`
	// MaxRPS of zero disables the aggregate cap.
	MaxRPS float64 `mapstructure:"max_rps"`
}

// DiscoveryConfig bounds listing enumeration.
type DiscoveryConfig struct {
	PageSize int    `mapstructure:"page_size"`
	Start    int    `mapstructure:"start"`
	End      int    `mapstructure:"end"`
	Mode     string `mapstructure:"mode"`
}

// PipelineConfig sizes the worker pool and failure policy.
type PipelineConfig struct {
	Workers          int           `mapstructure:"workers"`
	BatchSize        int           `mapstructure:"batch_size"`
	Stagger          time.Duration `mapstructure:"stagger"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	MaxItems         int           `mapstructure:"max_items"`
}

// ArchiveConfig selects where raw documents are kept.
type ArchiveConfig struct {
	Provider string `mapstructure:"provider"`
	Dir      string `mapstructure:"dir"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
}

// PublisherConfig selects where completion events go.
type PublisherConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig controls the ops HTTP server; an empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load builds a Config from defaults, an optional file and the environment.
// Variables from a .env file in the working directory are exported first;
// real environment variables win over them.
func Load(path string) (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.data_dir", "data")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("fetch.engine", "colly")
	v.SetDefault("fetch.base_url", "https://www.hltv.org")
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("fetch.timeout", "30s")
	v.SetDefault("fetch.max_attempts", 4)
	v.SetDefault("fetch.backoff_base", "2s")
	v.SetDefault("fetch.backoff_max", "1m")
	v.SetDefault("fetch.headless_max_parallel", 2)
	v.SetDefault("fetch.ready_selector", "")
	v.SetDefault("pacing.floor", "3s")
	v.SetDefault("pacing.ceiling", "2m")
	v.SetDefault("pacing.backoff_factor", 2.0)
	v.SetDefault("pacing.recover_factor", 0.95)
	v.SetDefault("pacing.global_floor", "1s")
	v.SetDefault("pacing.global_ceiling", "1m")
	v.SetDefault("pacing.max_rps", 0.0)
	v.SetDefault("discovery.page_size", 100)
	v.SetDefault("discovery.start", 0)
	v.SetDefault("discovery.end", 0)
	v.SetDefault("discovery.mode", "incremental")
	v.SetDefault("pipeline.workers", 2)
	v.SetDefault("pipeline.batch_size", 10)
	v.SetDefault("pipeline.stagger", "500ms")
	v.SetDefault("pipeline.failure_threshold", 5)
	v.SetDefault("pipeline.max_items", 0)
	v.SetDefault("archive.provider", "none")
	v.SetDefault("archive.dir", "")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "")
	v.SetDefault("publisher.provider", "none")
	v.SetDefault("publisher.project_id", "")
	v.SetDefault("publisher.topic", "hltv-units")
	v.SetDefault("metrics.addr", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	switch c.Database.Driver {
	case "sqlite":
		if c.App.DataDir == "" && c.Database.DSN == "" {
			add("app.data_dir or database.dsn is required for sqlite")
		}
	case "postgres":
		if c.Database.DSN == "" {
			add("database.dsn is required for postgres")
		}
	default:
		add("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}

	switch c.Fetch.Engine {
	case "colly":
	case "headless":
		if c.Fetch.HeadlessMaxParallel < 0 {
			add("fetch.headless_max_parallel must be >= 0")
		}
	default:
		add("fetch.engine must be colly or headless, got %q", c.Fetch.Engine)
	}
	if u, err := url.Parse(c.Fetch.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		add("fetch.base_url must be an absolute URL")
	}
	if c.Fetch.Timeout <= 0 {
		add("fetch.timeout must be > 0")
	}
	if c.Fetch.MaxAttempts < 1 {
		add("fetch.max_attempts must be >= 1")
	}
	if c.Fetch.BackoffBase <= 0 || c.Fetch.BackoffMax < c.Fetch.BackoffBase {
		add("fetch.backoff_base must be > 0 and <= fetch.backoff_max")
	}

	if c.Pacing.Floor <= 0 || c.Pacing.Ceiling < c.Pacing.Floor {
		add("pacing.floor must be > 0 and <= pacing.ceiling")
	}
	if c.Pacing.BackoffFactor < 1 {
		add("pacing.backoff_factor must be >= 1")
	}
	if c.Pacing.RecoverFactor <= 0 || c.Pacing.RecoverFactor >= 1 {
		add("pacing.recover_factor must be in (0, 1)")
	}
	if c.Pacing.GlobalFloor < 0 || (c.Pacing.GlobalFloor > 0 && c.Pacing.GlobalCeiling < c.Pacing.GlobalFloor) {
		add("pacing.global_floor must be >= 0 and <= pacing.global_ceiling")
	}
	if c.Pacing.MaxRPS < 0 {
		add("pacing.max_rps must be >= 0")
	}

	if c.Discovery.PageSize <= 0 {
		add("discovery.page_size must be > 0")
	}
	if c.Discovery.Mode != "incremental" && c.Discovery.Mode != "full" {
		add("discovery.mode must be incremental or full, got %q", c.Discovery.Mode)
	}

	if c.Pipeline.Workers <= 0 {
		add("pipeline.workers must be > 0")
	}
	if c.Pipeline.BatchSize <= 0 {
		add("pipeline.batch_size must be > 0")
	}
	if c.Pipeline.Stagger < 0 {
		add("pipeline.stagger must be >= 0")
	}
	if c.Pipeline.FailureThreshold < 0 {
		add("pipeline.failure_threshold must be >= 0")
	}
	if c.Pipeline.MaxItems < 0 {
		add("pipeline.max_items must be >= 0")
	}

	switch c.Archive.Provider {
	case "none":
	case "local":
		if c.Archive.Dir == "" && c.App.DataDir == "" {
			add("archive.dir is required for the local archive")
		}
	case "gcs":
		if c.Archive.Bucket == "" {
			add("archive.bucket is required for the gcs archive")
		}
	default:
		add("archive.provider must be none, local or gcs, got %q", c.Archive.Provider)
	}

	switch c.Publisher.Provider {
	case "none", "memory":
	case "pubsub":
		if c.Publisher.ProjectID == "" || c.Publisher.Topic == "" {
			add("publisher.project_id and publisher.topic are required for pubsub")
		}
	default:
		add("publisher.provider must be none, memory or pubsub, got %q", c.Publisher.Provider)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// ArchiveDir is where the local archive writes; it defaults under the data dir.
func (c Config) ArchiveDir() string {
	if c.Archive.Dir != "" {
		return c.Archive.Dir
	}
	return filepath.Join(c.App.DataDir, "raw")
}
