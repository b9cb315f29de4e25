package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds scraper and dashboard configuration.
type Config struct {
	BaseURL            string        `yaml:"base_url"`
	MaxPages           int           `yaml:"max_pages"` // 0 walks until a page fails
	PageDelay          time.Duration `yaml:"page_delay"`
	Timeout            time.Duration `yaml:"timeout"`
	UserAgent          string        `yaml:"user_agent"`
	RespectRobotsTxt   bool          `yaml:"respect_robots_txt"`
	OutputFile         string        `yaml:"output_file"`
	OutputFormat       string        `yaml:"output_format"` // csv, json, dual, or sqlite
	PipelineBufferSize int           `yaml:"pipeline_buffer_size"`
	BatchSize          int           `yaml:"batch_size"`
	DedupeMaxSize      int           `yaml:"dedupe_max_size"`
	MetricsAddr        string        `yaml:"metrics_addr"`
	DashboardAddr      string        `yaml:"dashboard_addr"`
	DashboardPages     int           `yaml:"dashboard_pages"`
	CacheSize          int           `yaml:"cache_size"`
	LogLevel           string        `yaml:"log_level"`
	LogFile            string        `yaml:"log_file"`
	Verbose            bool          `yaml:"verbose"`
}

// DefaultConfig returns conservative defaults for the demo target.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:            "http://books.toscrape.com/",
		MaxPages:           50,
		PageDelay:          500 * time.Millisecond,
		Timeout:            10 * time.Second,
		UserAgent:          "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		RespectRobotsTxt:   false,
		OutputFile:         "books_data.csv",
		OutputFormat:       "csv",
		PipelineBufferSize: 256,
		BatchSize:          20,
		DedupeMaxSize:      10000,
		MetricsAddr:        "",
		DashboardAddr:      ":8501",
		DashboardPages:     5,
		CacheSize:          8,
		LogLevel:           "info",
		Verbose:            false,
	}
}

// LoadFile overlays values from a YAML file onto cfg. Keys missing from the
// file keep their current value.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %q: %w", path, err)
	}
	return nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.MaxPages < 0 {
		return fmt.Errorf("max pages cannot be negative")
	}
	if c.PageDelay < 0 {
		return fmt.Errorf("page delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	switch c.OutputFormat {
	case "csv", "json", "dual", "sqlite":
	default:
		return fmt.Errorf("output format must be csv, json, dual, or sqlite")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if c.DashboardPages < 1 || c.DashboardPages > 50 {
		return fmt.Errorf("dashboard pages must be between 1 and 50")
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("cache size must be positive")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be debug, info, warn, or error")
	}

	return nil
}
