// Package config loads service configuration from an optional YAML file
// with environment-variable overrides on top. Missing files fall back to
// defaults so a bare binary still starts.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the aggregation service configuration. Durations are
// kept as integer seconds so they map cleanly onto YAML and env vars.
type Config struct {
	ListenAddr      string   `yaml:"listen_addr"`
	HistoryCapacity int      `yaml:"history_capacity"`
	APIToken        string   `yaml:"api_token"`
	DatabaseDSN     string   `yaml:"database_dsn"`
	ScanCommand     []string `yaml:"scan_command"`
	ScanTimeoutSec  int      `yaml:"scan_timeout_seconds"`
	TempDirs        []string `yaml:"temp_dirs"`
	TempMinAgeSec   int      `yaml:"temp_min_age_seconds"`
	LogBufferSize   int      `yaml:"log_buffer_size"`
}

// ScanTimeout returns the collector run timeout as a duration.
func (c Config) ScanTimeout() time.Duration {
	return time.Duration(c.ScanTimeoutSec) * time.Second
}

// TempMinAge returns the minimum temp-file age as a duration.
func (c Config) TempMinAge() time.Duration {
	return time.Duration(c.TempMinAgeSec) * time.Second
}

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() Config {
	return Config{
		ListenAddr:      ":8080",
		HistoryCapacity: 200,
		ScanTimeoutSec:  600,
		TempDirs:        []string{os.TempDir()},
		TempMinAgeSec:   3600,
		LogBufferSize:   64,
	}
}

// Load reads the YAML file at path (if any), applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(content, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	applyEnv(&cfg)

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = Default().ListenAddr
	}
	if cfg.HistoryCapacity <= 0 {
		cfg.HistoryCapacity = Default().HistoryCapacity
	}
	if cfg.ScanTimeoutSec <= 0 {
		cfg.ScanTimeoutSec = Default().ScanTimeoutSec
	}
	if len(cfg.TempDirs) == 0 {
		cfg.TempDirs = Default().TempDirs
	}
	if cfg.TempMinAgeSec < 0 {
		return Config{}, errors.New("temp_min_age_seconds must not be negative")
	}
	if cfg.LogBufferSize <= 0 {
		cfg.LogBufferSize = Default().LogBufferSize
	}
	return cfg, nil
}

// applyEnv lets the environment override individual fields, matching how
// the rest of the deployment is configured.
func applyEnv(cfg *Config) {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("HISTORY_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HistoryCapacity = n
		}
	}
	if v := os.Getenv("API_TOKEN"); v != "" {
		cfg.APIToken = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DatabaseDSN = v
	}
	if v := os.Getenv("SCAN_COMMAND"); v != "" {
		cfg.ScanCommand = strings.Fields(v)
	}
	if v := os.Getenv("SCAN_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ScanTimeoutSec = n
		}
	}
	if v := os.Getenv("TEMP_DIRS"); v != "" {
		cfg.TempDirs = strings.Split(v, string(os.PathListSeparator))
	}
	if v := os.Getenv("TEMP_MIN_AGE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TempMinAgeSec = n
		}
	}
	if v := os.Getenv("LOG_BUFFER_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LogBufferSize = n
		}
	}
}
