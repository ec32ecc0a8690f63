// Package config loads and validates award-digest configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/JakeFAU/award-digest/internal/award"
	"github.com/JakeFAU/award-digest/internal/cycle"
	"github.com/JakeFAU/award-digest/internal/digest"
	"github.com/JakeFAU/award-digest/internal/registry/anaf"
	"github.com/JakeFAU/award-digest/internal/sicap"
	pkgconfig "github.com/JakeFAU/award-digest/pkg/config"
)

// Store drivers.
const (
	StoreREST     = "rest"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Notify drivers.
const (
	NotifyPubSub = "pubsub"
	NotifyLog    = "log"
	NotifyNone   = "none"
)

// Archive drivers.
const (
	ArchiveNone  = "none"
	ArchiveLocal = "local"
	ArchiveGCS   = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Source   SourceConfig   `mapstructure:"source"`
	Window   WindowConfig   `mapstructure:"window"`
	Filter   FilterConfig   `mapstructure:"filter"`
	Store    StoreConfig    `mapstructure:"store"`
	Database DatabaseConfig `mapstructure:"database"`
	Digest   DigestConfig   `mapstructure:"digest"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Registry RegistryConfig `mapstructure:"registry"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// SourceConfig describes the award-notice endpoint and how hard to try it.
type SourceConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	PageSize    int           `mapstructure:"page_size"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	UserAgent   string        `mapstructure:"user_agent"`
	Origin      string        `mapstructure:"origin"`
	Referer     string        `mapstructure:"referer"`
	RateLimit   float64       `mapstructure:"rate_limit"`
}

// WindowConfig picks the default query window. Start and End pin an explicit
// YYYY-MM-DD range; otherwise the last LookbackDays days are queried.
type WindowConfig struct {
	LookbackDays int     `mapstructure:"lookback_days"`
	MinValue     float64 `mapstructure:"min_value"`
	Start        string  `mapstructure:"start"`
	End          string  `mapstructure:"end"`
}

// FilterConfig lists accepted classification-code prefixes.
type FilterConfig struct {
	Prefixes []string `mapstructure:"prefixes"`
}

// StoreConfig selects the record store.
type StoreConfig struct {
	Driver      string        `mapstructure:"driver"`
	URL         string        `mapstructure:"url"`
	APIKey      string        `mapstructure:"api_key"`
	Table       string        `mapstructure:"table"`
	BatchSize   int           `mapstructure:"batch_size"`
	Concurrency int           `mapstructure:"concurrency"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// DatabaseConfig controls access to Postgres.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DigestConfig shapes the daily digest.
type DigestConfig struct {
	PreviewSize int    `mapstructure:"preview_size"`
	Recipient   string `mapstructure:"recipient"`
	Currency    string `mapstructure:"currency"`
}

// NotifyConfig selects how the digest leaves the process.
type NotifyConfig struct {
	Driver string `mapstructure:"driver"`
}

// PubSubConfig holds the delivery topic.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ArchiveConfig selects where rendered digests are kept.
type ArchiveConfig struct {
	Driver  string `mapstructure:"driver"`
	BaseDir string `mapstructure:"base_dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// RegistryConfig points at the company registry.
type RegistryConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// CacheConfig enables the Redis listing cache when RedisAddr is set.
type CacheConfig struct {
	RedisAddr string        `mapstructure:"redis_addr"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// ScheduleConfig holds the cron expression for serve mode.
type ScheduleConfig struct {
	Cron string `mapstructure:"cron"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port       int    `mapstructure:"port"`
	APIKey     string `mapstructure:"api_key"`
	QueueDepth int    `mapstructure:"queue_depth"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk and the environment.
func Load(path string) (Config, error) {
	v, _, err := pkgconfig.New(path)
	if err != nil {
		return Config{}, fmt.Errorf("init config: %w", err)
	}
	return FromViper(v)
}

// FromViper applies defaults to v, decodes it and validates the result.
func FromViper(v *viper.Viper) (Config, error) {
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.endpoints", sicap.DefaultEndpoints)
	v.SetDefault("source.page_size", sicap.DefaultPageSize)
	v.SetDefault("source.timeout", "30s")
	v.SetDefault("source.max_attempts", sicap.DefaultMaxAttempts)
	v.SetDefault("source.backoff_base", sicap.DefaultBackoffBase)
	v.SetDefault("source.user_agent", "award-digest/1.0 (+https://github.com/JakeFAU/award-digest)")
	v.SetDefault("source.origin", "")
	v.SetDefault("source.referer", "")
	v.SetDefault("source.rate_limit", 2.0)
	v.SetDefault("window.lookback_days", 1)
	v.SetDefault("window.min_value", 0.0)
	v.SetDefault("window.start", "")
	v.SetDefault("window.end", "")
	v.SetDefault("filter.prefixes", award.DefaultPrefixes)
	v.SetDefault("store.driver", StoreMemory)
	v.SetDefault("store.url", "")
	v.SetDefault("store.api_key", "")
	v.SetDefault("store.table", "awards")
	v.SetDefault("store.batch_size", cycle.DefaultBatchSize)
	v.SetDefault("store.concurrency", 1)
	v.SetDefault("store.timeout", "15s")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 4)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime", "30m")
	v.SetDefault("digest.preview_size", digest.DefaultPreviewSize)
	v.SetDefault("digest.recipient", "")
	v.SetDefault("digest.currency", digest.DefaultCurrency)
	v.SetDefault("notify.driver", NotifyLog)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "award-digests")
	v.SetDefault("archive.driver", ArchiveNone)
	v.SetDefault("archive.base_dir", "data/digests")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "digests")
	v.SetDefault("registry.url", anaf.DefaultURL)
	v.SetDefault("registry.timeout", "10s")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.ttl", "30m")
	v.SetDefault("schedule.cron", "0 6 * * *")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.queue_depth", 8)
	v.SetDefault("logging.development", false)
}

func (c *Config) normalize() {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	c.Notify.Driver = strings.ToLower(strings.TrimSpace(c.Notify.Driver))
	c.Archive.Driver = strings.ToLower(strings.TrimSpace(c.Archive.Driver))
	c.Source.Endpoints = trimAll(c.Source.Endpoints)
	c.Filter.Prefixes = trimAll(c.Filter.Prefixes)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if len(c.Source.Endpoints) == 0 {
		errs = append(errs, errors.New("source.endpoints must list at least one address"))
	}
	for _, ep := range c.Source.Endpoints {
		if u, err := url.Parse(ep); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("source.endpoints: %q is not an absolute URL", ep))
		}
	}
	if c.Source.PageSize <= 0 {
		errs = append(errs, errors.New("source.page_size must be > 0"))
	}
	if c.Source.Timeout <= 0 {
		errs = append(errs, errors.New("source.timeout must be > 0"))
	}
	if c.Source.MaxAttempts <= 0 {
		errs = append(errs, errors.New("source.max_attempts must be > 0"))
	}
	if c.Source.BackoffBase <= 0 {
		errs = append(errs, errors.New("source.backoff_base must be > 0"))
	}
	if c.Window.LookbackDays < 0 {
		errs = append(errs, errors.New("window.lookback_days must be >= 0"))
	}
	if c.Window.MinValue < 0 {
		errs = append(errs, errors.New("window.min_value must be >= 0"))
	}
	if (c.Window.Start == "") != (c.Window.End == "") {
		errs = append(errs, errors.New("window.start and window.end must be set together"))
	}
	if len(c.Filter.Prefixes) == 0 {
		errs = append(errs, errors.New("filter.prefixes must not be empty"))
	}
	if c.Store.BatchSize <= 0 {
		errs = append(errs, errors.New("store.batch_size must be > 0"))
	}
	if c.Store.Concurrency <= 0 {
		errs = append(errs, errors.New("store.concurrency must be > 0"))
	}
	switch c.Store.Driver {
	case StoreMemory:
	case StoreREST:
		if c.Store.URL == "" || c.Store.APIKey == "" {
			errs = append(errs, errors.New("store.url and store.api_key are required for the rest driver"))
		}
	case StorePostgres:
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not one of rest, postgres, memory", c.Store.Driver))
	}
	if c.Database.MinConns > c.Database.MaxConns {
		errs = append(errs, errors.New("database.min_conns must not exceed database.max_conns"))
	}
	switch c.Notify.Driver {
	case NotifyLog, NotifyNone:
	case NotifyPubSub:
		if c.PubSub.ProjectID == "" || c.PubSub.Topic == "" {
			errs = append(errs, errors.New("pubsub.project_id and pubsub.topic are required for the pubsub notifier"))
		}
	default:
		errs = append(errs, fmt.Errorf("notify.driver %q is not one of pubsub, log, none", c.Notify.Driver))
	}
	switch c.Archive.Driver {
	case ArchiveNone:
	case ArchiveLocal:
		if c.Archive.BaseDir == "" {
			errs = append(errs, errors.New("archive.base_dir is required for the local archive"))
		}
	case ArchiveGCS:
		if c.Archive.Bucket == "" {
			errs = append(errs, errors.New("archive.bucket is required for the gcs archive"))
		}
	default:
		errs = append(errs, fmt.Errorf("archive.driver %q is not one of none, local, gcs", c.Archive.Driver))
	}
	if c.Digest.PreviewSize <= 0 {
		errs = append(errs, errors.New("digest.preview_size must be > 0"))
	}
	if c.Schedule.Cron != "" {
		if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
			errs = append(errs, fmt.Errorf("schedule.cron: %w", err))
		}
	}
	if c.Server.Port <= 0 {
		errs = append(errs, errors.New("server.port must be > 0"))
	}
	if c.Server.QueueDepth <= 0 {
		errs = append(errs, errors.New("server.queue_depth must be > 0"))
	}
	return errors.Join(errs...)
}

// QueryWindow returns the pinned window when configured, otherwise the
// lookback window ending at now.
func (c Config) QueryWindow(now time.Time) (award.Window, error) {
	if c.Window.Start == "" {
		return award.DefaultWindow(now, c.Window.LookbackDays, c.Window.MinValue)
	}
	start, err := award.ParseDate(c.Window.Start)
	if err != nil {
		return award.Window{}, fmt.Errorf("window.start: %w", err)
	}
	end, err := award.ParseDate(c.Window.End)
	if err != nil {
		return award.Window{}, fmt.Errorf("window.end: %w", err)
	}
	return award.NewWindow(start, end, c.Window.MinValue)
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
