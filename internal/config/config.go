// SPDX-FileCopyrightText: The Weathervane Authors
//
// SPDX-License-Identifier: MIT

// Package config provides the weathervane configuration, loaded via fig from an optional
// config file with environment variable overrides.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kkyr/fig"
)

const configEnv = "WEATHERVANE"

// Config represents the application's configuration structure.
type Config struct {
	// Allowed values: metric, imperial
	Units    string     `fig:"units" default:"metric"`
	LogLevel slog.Level `fig:"loglevel" default:"0"`

	Cache struct {
		// Path to the cache database. Defaults to ~/.local/share/weathervane/cache.db
		Path      string        `fig:"path"`
		DailyTTL  time.Duration `fig:"daily_ttl" default:"3h"`
		HourlyTTL time.Duration `fig:"hourly_ttl" default:"1h"`
	} `fig:"cache"`

	Refresh struct {
		Interval        time.Duration `fig:"interval" default:"30m"`
		Workers         int           `fig:"workers" default:"4"`
		LocationTimeout time.Duration `fig:"location_timeout" default:"30s"`
	} `fig:"refresh"`

	Alerts struct {
		// Allowed values: minor, moderate, severe, extreme
		MinSeverity string `fig:"min_severity" default:"minor"`
		// Allowed values: desktop, log
		Notifier string `fig:"notifier" default:"desktop"`
	} `fig:"alerts"`

	Provider struct {
		// Contact is embedded in the User-Agent sent to provider APIs that require one
		Contact string `fig:"contact" default:"weathervane@localhost"`
	} `fig:"provider"`
}

// NewFromFile loads the configuration from the given path and file
func NewFromFile(path, file string) (*Config, error) {
	conf := new(Config)
	_, err := os.Stat(filepath.Join(path, file))
	if err != nil {
		return conf, fmt.Errorf("failed to read Config: %w", err)
	}
	if err = fig.Load(conf, fig.Dirs(path), fig.File(file), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

// New loads the configuration from the environment with defaults applied
func New() (*Config, error) {
	conf := new(Config)
	if err := fig.Load(conf, fig.AllowNoFile(), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

// Validate checks the loaded configuration for invalid values and fills in derived defaults
func (c *Config) Validate() error {
	if c.Units != "metric" && c.Units != "imperial" {
		return fmt.Errorf("invalid units: %s", c.Units)
	}
	if c.Cache.DailyTTL <= 0 || c.Cache.HourlyTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	if c.Refresh.Workers < 1 || c.Refresh.Workers > 16 {
		return fmt.Errorf("invalid refresh worker count: %d", c.Refresh.Workers)
	}
	if c.Refresh.LocationTimeout <= 0 {
		return fmt.Errorf("refresh location timeout must be positive")
	}
	switch c.Alerts.MinSeverity {
	case "minor", "moderate", "severe", "extreme":
	default:
		return fmt.Errorf("invalid minimum alert severity: %s", c.Alerts.MinSeverity)
	}
	switch c.Alerts.Notifier {
	case "desktop", "log":
	default:
		return fmt.Errorf("invalid notifier: %s", c.Alerts.Notifier)
	}
	if c.Cache.Path == "" {
		home, _ := os.UserHomeDir()
		c.Cache.Path = filepath.Join(home, ".local", "share", "weathervane", "cache.db")
	}

	return nil
}
