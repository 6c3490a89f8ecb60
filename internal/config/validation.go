package config

import (
	"fmt"
	"strings"
)

func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Feed.validate(); err != nil {
		return err
	}
	if err := c.CoinCap.validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Providers) == "" {
		return fmt.Errorf("providers_path cannot be empty")
	}
	return nil
}

func (a *AppConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(a.LogLevel)) {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("app.log_level must be one of debug/info/warn/error, got %q", a.LogLevel)
	}
}

func (f *FeedConfig) validate() error {
	if f.HistoryCapacity < 0 {
		return fmt.Errorf("feed.history_capacity must be >= 0")
	}
	if f.FailureThreshold < 0 {
		return fmt.Errorf("feed.failure_threshold must be >= 0")
	}
	if f.BackoffInitialSeconds < 0 || f.BackoffMaxSeconds < 0 {
		return fmt.Errorf("feed backoff settings must be >= 0")
	}
	if f.BackoffMaxSeconds > 0 && f.BackoffInitialSeconds > f.BackoffMaxSeconds {
		return fmt.Errorf("feed.backoff_initial_seconds exceeds feed.backoff_max_seconds")
	}
	if f.NoSourceCooldownSeconds < 0 {
		return fmt.Errorf("feed.no_source_cooldown_seconds must be >= 0")
	}
	return nil
}

func (c *CoinCapConfig) validate() error {
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("coincap.timeout_seconds must be >= 0")
	}
	if c.RequestsPerMinute < 0 {
		return fmt.Errorf("coincap.requests_per_minute must be >= 0")
	}
	return nil
}
