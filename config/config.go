// Package config loads linkfeed's YAML configuration and source list.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the structure of linkfeed.yaml.
type Config struct {
	Storage  StorageConfig  `yaml:"storage"`
	Crawler  CrawlerConfig  `yaml:"crawler"`
	Feeds    FeedsConfig    `yaml:"feeds"`
	Server   ServerConfig   `yaml:"server"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Log      LogConfig      `yaml:"log"`

	// SourcesFile optionally points at a separate JSON or YAML source list.
	// Relative paths are resolved against the config file's directory.
	SourcesFile string   `yaml:"sources_file"`
	Sources     []Source `yaml:"sources"`
}

// StorageConfig selects the database. Driver is "sqlite3" or "postgres".
type StorageConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// CrawlerConfig tunes fetching.
type CrawlerConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	MaxPDFBytes       int64         `yaml:"max_pdf_bytes"`
	UserAgents        []string      `yaml:"user_agents"`
}

// FeedsConfig controls where RSS documents are written.
type FeedsConfig struct {
	OutputDir string `yaml:"output_dir"`
}

// ServerConfig controls the query API listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// ScheduleConfig controls the periodic crawl.
type ScheduleConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level   string   `yaml:"level"`
	Outputs []string `yaml:"outputs"`
	Console bool     `yaml:"console"`
}

// Source is one crawl target: a page plus a link-selection rule. Field names
// match the crawler_config.json format.
type Source struct {
	FeedTitle       string `yaml:"feed_title" json:"feed_title"`
	OutputFilename  string `yaml:"output_filename" json:"output_filename"`
	SourceURL       string `yaml:"source_url" json:"source_url"`
	LinkSelector    string `yaml:"link_selector" json:"link_selector"`
	PDFOnly         bool   `yaml:"pdf_only" json:"pdf_only"`
	FeedDescription string `yaml:"feed_description" json:"feed_description"`
}

const (
	DefaultDriver          = "sqlite3"
	DefaultDSN             = "linkfeed.db"
	DefaultTimeout         = 10 * time.Second
	DefaultMaxDelay        = 50 * time.Millisecond
	DefaultMaxPDFBytes     = 50 << 20
	DefaultOutputDir       = "rss"
	DefaultAddr            = "localhost:5000"
	DefaultInterval        = 24 * time.Hour
	DefaultLogLevel        = "info"
	DefaultLinkSelector    = "a"
	DefaultFeedDescription = "Automatically generated feed"
)

// Load reads the YAML config at path, applies environment overrides and
// defaults, and loads the optional sources file. An empty path yields the
// defaults plus environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if cfg.SourcesFile != "" {
		sourcesPath := cfg.SourcesFile
		if !filepath.IsAbs(sourcesPath) && path != "" {
			sourcesPath = filepath.Join(filepath.Dir(path), sourcesPath)
		}
		extra, err := LoadSources(sourcesPath)
		if err != nil {
			return nil, err
		}
		cfg.Sources = append(cfg.Sources, extra...)
	}

	cfg.applyEnv()
	cfg.SetDefaults()

	return cfg, nil
}

// LoadSources reads a standalone source list. YAML is a superset of JSON, so
// both crawler_config.json style arrays and YAML lists are accepted.
func LoadSources(path string) ([]Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var sources []Source
	if err := yaml.Unmarshal(data, &sources); err != nil {
		return nil, fmt.Errorf("failed to parse sources file: %w", err)
	}

	return sources, nil
}

// applyEnv overrides file values with LINKFEED_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("LINKFEED_DB_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("LINKFEED_DB_DSN"); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv("LINKFEED_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LINKFEED_FEED_DIR"); v != "" {
		c.Feeds.OutputDir = v
	}
	if v := os.Getenv("LINKFEED_ADDR"); v != "" {
		c.Server.Addr = v
	}
}

// SetDefaults fills every unset field.
func (c *Config) SetDefaults() {
	if c.Storage.Driver == "" {
		c.Storage.Driver = DefaultDriver
	}
	if c.Storage.DSN == "" && c.Storage.Driver == DefaultDriver {
		c.Storage.DSN = DefaultDSN
	}
	if c.Crawler.Timeout <= 0 {
		c.Crawler.Timeout = DefaultTimeout
	}
	if c.Crawler.MaxDelay < 0 {
		c.Crawler.MaxDelay = 0
	} else if c.Crawler.MaxDelay == 0 {
		c.Crawler.MaxDelay = DefaultMaxDelay
	}
	if c.Crawler.MaxPDFBytes <= 0 {
		c.Crawler.MaxPDFBytes = DefaultMaxPDFBytes
	}
	if c.Feeds.OutputDir == "" {
		c.Feeds.OutputDir = DefaultOutputDir
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Schedule.Interval <= 0 {
		c.Schedule.Interval = DefaultInterval
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}

	for i := range c.Sources {
		c.Sources[i].SetDefaults()
	}
}

// SetDefaults fills the selector, description and output filename.
func (s *Source) SetDefaults() {
	s.FeedTitle = strings.TrimSpace(s.FeedTitle)
	s.SourceURL = strings.TrimSpace(s.SourceURL)
	if s.LinkSelector == "" {
		s.LinkSelector = DefaultLinkSelector
	}
	if s.FeedDescription == "" {
		s.FeedDescription = DefaultFeedDescription
	}
	if s.OutputFilename == "" && s.FeedTitle != "" {
		s.OutputFilename = strings.ReplaceAll(s.FeedTitle, " ", "_") + "_feed.xml"
	}
}

// Validate checks the storage driver and every source.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unsupported storage driver %q: must be sqlite3 or postgres", c.Storage.Driver)
	}
	if c.Storage.DSN == "" {
		return errors.New("storage dsn is required")
	}

	titles := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("source %d: %w", i+1, err)
		}
		if titles[s.FeedTitle] {
			return fmt.Errorf("source %d: duplicate feed_title %q", i+1, s.FeedTitle)
		}
		titles[s.FeedTitle] = true
	}

	return nil
}

// Validate checks that a source has a title and an absolute http(s) URL.
func (s Source) Validate() error {
	if s.FeedTitle == "" {
		return errors.New("feed_title is required")
	}
	if s.SourceURL == "" {
		return errors.New("source_url is required")
	}

	u, err := url.Parse(s.SourceURL)
	if err != nil {
		return fmt.Errorf("invalid source_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("source_url must use http or https scheme")
	}

	if strings.ContainsAny(s.OutputFilename, `/\`) || strings.Contains(s.OutputFilename, "..") {
		return fmt.Errorf("output_filename %q must be a plain file name", s.OutputFilename)
	}

	return nil
}
