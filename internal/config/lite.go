// Package config loads the generator configuration. Manager reads
// cohortgen.yaml plus COHORTGEN_* variables through viper; LiteConfig is the
// environment-only variant used by the MCP server.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ortho-cohortgen/internal/domain"
)

// LiteConfig is a simplified configuration for standalone operation.
// It requires no external services and uses sensible defaults.
type LiteConfig struct {
	DataDir string // Base directory for the run store and exports

	CacheMaxItems int           // Datasets kept in the memory cache
	CacheTTL      time.Duration // Cache entry lifetime

	RuleSet    string // Default rule set for tool calls
	MaxSamples int    // Upper bound on samples per tool call

	LogLevel  string // debug, info, warn, error
	LogFormat string // json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".cohortgen")

	return &LiteConfig{
		DataDir:       dataDir,
		CacheMaxItems: 16,
		CacheTTL:      time.Hour,
		RuleSet:       "optimized-v2",
		MaxSamples:    100000,
		LogLevel:      "info",
		LogFormat:     "json",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("COHORTGEN_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	if v := os.Getenv("COHORTGEN_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv("COHORTGEN_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}

	if v := os.Getenv("COHORTGEN_RULE_SET"); v != "" {
		cfg.RuleSet = v
	}
	if v := os.Getenv("COHORTGEN_MAX_SAMPLES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxSamples = n
		}
	}

	if v := os.Getenv("COHORTGEN_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("COHORTGEN_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// RunStorePath returns the path to the SQLite run store.
func (c *LiteConfig) RunStorePath() string {
	return filepath.Join(c.DataDir, "runs.db")
}

// ExportDir returns the directory for dataset exports.
func (c *LiteConfig) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.ExportDir(), 0755)
}

// StorageConfig returns the SQLite storage section for the data dir.
func (c *LiteConfig) StorageConfig() domain.StorageConfig {
	return domain.StorageConfig{Driver: "sqlite", SQLitePath: c.RunStorePath()}
}

// CacheConfig returns a memory-only cache section.
func (c *LiteConfig) CacheConfig() domain.CacheConfig {
	return domain.CacheConfig{MemoryItems: c.CacheMaxItems, DefaultTTL: c.CacheTTL}
}

// LoggingConfig returns the logging section.
func (c *LiteConfig) LoggingConfig() domain.LoggingConfig {
	return domain.LoggingConfig{Level: c.LogLevel, Format: c.LogFormat}
}
