// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"`
	Extractor ExtractorConfig `mapstructure:"extractor"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Graph     GraphConfig     `mapstructure:"graph"`
	Rank      RankConfig      `mapstructure:"rank"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// CrawlerConfig governs the frontier and worker pool.
type CrawlerConfig struct {
	Seed        string        `mapstructure:"seed"`
	Workers     int           `mapstructure:"workers"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

// FetcherConfig configures page retrieval.
type FetcherConfig struct {
	Mode           string        `mapstructure:"mode"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	UserAgents     []string      `mapstructure:"user_agents"`
	MaxBodyBytes   int           `mapstructure:"max_body_bytes"`
	MaxParallel    int           `mapstructure:"max_parallel"`
}

// Fetcher modes.
const (
	FetcherModeHTTP     = "http"
	FetcherModeHeadless = "headless"
)

// ExtractorConfig holds the page extraction options.
type ExtractorConfig struct {
	HeaderTags             []string `mapstructure:"header_tags"`
	TextTags               []string `mapstructure:"text_tags"`
	SaveContent            bool     `mapstructure:"save_content"`
	SaveHeaderArticlePairs bool     `mapstructure:"save_header_article_pairs"`
	MainContentClasses     []string `mapstructure:"main_content_classes"`
	BlacklistClasses       []string `mapstructure:"blacklist_classes"`
	BlacklistTags          []string `mapstructure:"blacklist_tags"`
	DomainSuffix           string   `mapstructure:"domain_suffix"`
}

// StorageConfig selects where records and artifacts live.
type StorageConfig struct {
	Backend       string `mapstructure:"backend"`
	BaseDir       string `mapstructure:"base_dir"`
	GCSBucket     string `mapstructure:"gcs_bucket"`
	RecordsPrefix string `mapstructure:"records_prefix"`
}

// Storage backends.
const (
	StorageLocal  = "local"
	StorageMemory = "memory"
	StorageGCS    = "gcs"
)

// GraphConfig locates graph artifacts.
type GraphConfig struct {
	Dir string `mapstructure:"dir"`
}

// RankConfig tunes the solver and its outputs.
type RankConfig struct {
	Dir           string         `mapstructure:"dir"`
	Damping       float64        `mapstructure:"damping"`
	Tolerance     float64        `mapstructure:"tolerance"`
	MaxIterations int            `mapstructure:"max_iterations"`
	Top           int            `mapstructure:"top"`
	Postgres      PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig configures the optional rank table sink.
type PostgresConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// NotifyConfig configures per-record notifications.
type NotifyConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Notification backends.
const (
	NotifyPubSub = "pubsub"
	NotifyMemory = "memory"
)

// MetricsConfig controls the ops HTTP server.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LoggingConfig controls logger construction.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
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

// LoadDotEnv exports KEY=VALUE pairs from a dotenv file into the process
// environment so CRAWLER_* overrides can be kept next to the binary.
// Variables already set in the environment win. A missing file is ignored.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("crawler.seed", "https://www.hse.ru/sitemap.html")
	v.SetDefault("crawler.workers", 4)
	v.SetDefault("crawler.idle_timeout", "60s")
	v.SetDefault("fetcher.mode", FetcherModeHTTP)
	v.SetDefault("fetcher.connect_timeout", "3s")
	v.SetDefault("fetcher.read_timeout", "30s")
	v.SetDefault("fetcher.user_agents", []string{})
	v.SetDefault("fetcher.max_body_bytes", 0)
	v.SetDefault("fetcher.max_parallel", 2)
	v.SetDefault("extractor.header_tags", []string{"h1", "h2"})
	v.SetDefault("extractor.text_tags", []string{"p", "span", "li", "a", "strong", "h3", "h4", "h5", "h6"})
	v.SetDefault("extractor.save_content", false)
	v.SetDefault("extractor.save_header_article_pairs", false)
	v.SetDefault("extractor.main_content_classes", []string{"main", "content"})
	v.SetDefault("extractor.blacklist_classes", []string{"sidebar", "footer"})
	v.SetDefault("extractor.blacklist_tags", []string{"footer"})
	v.SetDefault("extractor.domain_suffix", "hse.ru")
	v.SetDefault("storage.backend", StorageLocal)
	v.SetDefault("storage.base_dir", "data")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.records_prefix", "pages")
	v.SetDefault("graph.dir", "web_graph")
	v.SetDefault("rank.dir", "ranking")
	v.SetDefault("rank.damping", 0.85)
	v.SetDefault("rank.tolerance", 1e-6)
	v.SetDefault("rank.max_iterations", 1000)
	v.SetDefault("rank.top", 10)
	v.SetDefault("rank.postgres.enabled", false)
	v.SetDefault("rank.postgres.dsn", "")
	v.SetDefault("rank.postgres.table", "page_ranks")
	v.SetDefault("rank.postgres.max_conns", 4)
	v.SetDefault("rank.postgres.max_conn_lifetime", "30m")
	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.backend", NotifyPubSub)
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "crawl-records")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	if c.Fetcher.ConnectTimeout <= 0 || c.Fetcher.ReadTimeout <= 0 {
		return fmt.Errorf("fetcher.connect_timeout and fetcher.read_timeout must be > 0")
	}
	if c.Crawler.IdleTimeout <= c.MaxFetchDuration() {
		return fmt.Errorf("crawler.idle_timeout (%s) must exceed fetcher.connect_timeout + fetcher.read_timeout (%s)",
			c.Crawler.IdleTimeout, c.MaxFetchDuration())
	}
	switch c.Fetcher.Mode {
	case FetcherModeHTTP:
	case FetcherModeHeadless:
		if c.Fetcher.MaxParallel <= 0 {
			return fmt.Errorf("fetcher.max_parallel must be > 0 in headless mode")
		}
	default:
		return fmt.Errorf("fetcher.mode must be %q or %q, got %q", FetcherModeHTTP, FetcherModeHeadless, c.Fetcher.Mode)
	}
	if strings.TrimSpace(c.Extractor.DomainSuffix) == "" {
		return fmt.Errorf("extractor.domain_suffix is required")
	}
	if len(c.Extractor.HeaderTags) == 0 {
		return fmt.Errorf("extractor.header_tags must not be empty")
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if c.Rank.Damping <= 0 || c.Rank.Damping >= 1 {
		return fmt.Errorf("rank.damping must be in (0, 1)")
	}
	if c.Rank.Tolerance <= 0 {
		return fmt.Errorf("rank.tolerance must be > 0")
	}
	if c.Rank.MaxIterations <= 0 {
		return fmt.Errorf("rank.max_iterations must be > 0")
	}
	if c.Rank.Postgres.Enabled && c.Rank.Postgres.DSN == "" {
		return fmt.Errorf("rank.postgres.dsn must be set when rank.postgres is enabled")
	}
	if err := c.validateNotify(); err != nil {
		return err
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr must be set when metrics are enabled")
	}
	return nil
}

func (c Config) validateStorage() error {
	switch c.Storage.Backend {
	case StorageLocal:
		if strings.TrimSpace(c.Storage.BaseDir) == "" {
			return fmt.Errorf("storage.base_dir is required for the local backend")
		}
	case StorageGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("storage.backend must be one of local, memory, gcs; got %q", c.Storage.Backend)
	}
	return nil
}

func (c Config) validateNotify() error {
	if !c.Notify.Enabled {
		return nil
	}
	if c.Notify.Topic == "" {
		return fmt.Errorf("notify.topic must be set when notifications are enabled")
	}
	switch c.Notify.Backend {
	case NotifyPubSub:
		if c.Notify.ProjectID == "" {
			return fmt.Errorf("notify.project_id is required for the pubsub backend")
		}
	case NotifyMemory:
	default:
		return fmt.Errorf("notify.backend must be %q or %q, got %q", NotifyPubSub, NotifyMemory, c.Notify.Backend)
	}
	return nil
}

// MaxFetchDuration is the longest a single fetch may take.
func (c Config) MaxFetchDuration() time.Duration {
	return c.Fetcher.ConnectTimeout + c.Fetcher.ReadTimeout
}
