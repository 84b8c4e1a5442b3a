package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	MinWindowDays     = 7
	MaxWindowDays     = 90
	DefaultWindowDays = 30
)

// Config keeps runtime settings for the planner.
type Config struct {
	DatabaseURL   string `toml:"database-url"`
	HTTPAddr      string `toml:"http-addr"`
	TelegramToken string `toml:"telegram-token"`
	DigestTime    string `toml:"digest-time"`
	WindowDays    int    `toml:"window-days"`
	Timezone      string `toml:"timezone"`
	MediaDir      string `toml:"media-dir"`
	MediaBaseURL  string `toml:"media-base-url"`
	LogFormat     string `toml:"log-format"`
}

// Load reads the optional TOML file named by GYST_CONFIG, then applies
// environment variables on top, then fills in defaults.
func Load() (Config, error) {
	var cfg Config
	if path := strings.TrimSpace(os.Getenv("GYST_CONFIG")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}

	overrideString(&cfg.DatabaseURL, "DATABASE_URL")
	overrideString(&cfg.HTTPAddr, "HTTP_ADDR")
	overrideString(&cfg.TelegramToken, "TELEGRAM_TOKEN")
	overrideString(&cfg.DigestTime, "DIGEST_TIME")
	overrideString(&cfg.Timezone, "TIMEZONE")
	overrideString(&cfg.MediaDir, "MEDIA_DIR")
	overrideString(&cfg.MediaBaseURL, "MEDIA_BASE_URL")
	overrideString(&cfg.LogFormat, "LOG_FORMAT")
	if raw := strings.TrimSpace(os.Getenv("WINDOW_DAYS")); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil {
			return cfg, fmt.Errorf("WINDOW_DAYS: %w", err)
		}
		cfg.WindowDays = days
	}

	applyDefaults(&cfg)

	if _, err := cfg.Location(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func overrideString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "gyst.db"
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.DigestTime == "" {
		cfg.DigestTime = "07:00"
	}
	if cfg.MediaDir == "" {
		cfg.MediaDir = "media"
	}
	if cfg.MediaBaseURL == "" {
		cfg.MediaBaseURL = "/media"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	cfg.WindowDays = ClampWindow(cfg.WindowDays)
}

// ClampWindow bounds a materialization window to [MinWindowDays, MaxWindowDays].
// Zero selects DefaultWindowDays.
func ClampWindow(days int) int {
	switch {
	case days == 0:
		return DefaultWindowDays
	case days < MinWindowDays:
		return MinWindowDays
	case days > MaxWindowDays:
		return MaxWindowDays
	}
	return days
}

// Location resolves the configured time zone; empty means time.Local.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}
