package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvString returns the trimmed value of key when it is set and non-empty.
func EnvString(key string) (string, bool) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer. ok is false when the variable is unset.
func EnvInt(key string) (int, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}

// EnvDuration parses key with time.ParseDuration.
func EnvDuration(key string) (time.Duration, bool, error) {
	raw, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return value, true, nil
}

// ApplyEnv overlays the supported environment variables onto c.
func (c *Config) ApplyEnv() error {
	if value, ok, err := EnvInt("SCRAPER_PAGES"); err != nil {
		return err
	} else if ok {
		c.MaxPages = value
	}
	if value, ok, err := EnvDuration("SCRAPER_DELAY"); err != nil {
		return err
	} else if ok {
		c.PageDelay = value
	}
	if value, ok := EnvString("SCRAPER_BASE_URL"); ok {
		c.BaseURL = value
	}
	if value, ok := EnvString("SCRAPER_OUTPUT"); ok {
		c.OutputFile = value
	}
	if value, ok := EnvString("SCRAPER_METRICS_ADDR"); ok {
		c.MetricsAddr = value
	}
	if value, ok := EnvString("DASHBOARD_ADDR"); ok {
		c.DashboardAddr = value
	}
	if value, ok := EnvString("LOG_LEVEL"); ok {
		c.LogLevel = strings.ToLower(value)
	}
	if value, ok := EnvString("LOG_FILE"); ok {
		c.LogFile = value
	}
	return nil
}
