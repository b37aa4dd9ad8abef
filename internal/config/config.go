// Package config loads runtime configuration with viper.
// Precedence: environment > config file > defaults; environment variables
// use the INAPPKIT_ prefix (INAPPKIT_APP_ID, INAPPKIT_CACHE_PATH, ...).
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// Config is the engine's runtime configuration.
type Config struct {
	// AppID names the host application and anchors the default surface
	// mobileapp://<AppID>.
	AppID string `mapstructure:"app_id"`
	// CachePath is the sqlite file backing the durable proposition cache.
	CachePath string `mapstructure:"cache_path"`
	// HistoryPath is the sqlite file backing the event-history store.
	HistoryPath string `mapstructure:"history_path"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`
}

// Load reads configuration from an optional file plus the environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("cache_path", "inappkit-cache.db")
	v.SetDefault("history_path", "inappkit-history.db")
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("INAPPKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		AppID:       v.GetString("app_id"),
		CachePath:   v.GetString("cache_path"),
		HistoryPath: v.GetString("history_path"),
		LogLevel:    v.GetString("log_level"),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.AppID == "" {
		return fmt.Errorf("app_id is required (set INAPPKIT_APP_ID or app_id in the config file)")
	}
	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a config log level string to its slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", level)
	}
}
