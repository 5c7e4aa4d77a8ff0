package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLiteConfig(t *testing.T) {
	cfg := DefaultLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 16, cfg.CacheMaxItems)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, "optimized-v2", cfg.RuleSet)
	assert.Equal(t, 100000, cfg.MaxSamples)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadLiteConfig_Defaults(t *testing.T) {
	clearEnvVars(t)

	cfg := LoadLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 16, cfg.CacheMaxItems)
	assert.Equal(t, "optimized-v2", cfg.RuleSet)
}

func TestLoadLiteConfig_EnvironmentOverrides(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("COHORTGEN_DATA_DIR", "/tmp/test-cohortgen")
	t.Setenv("COHORTGEN_CACHE_MAX_ITEMS", "500")
	t.Setenv("COHORTGEN_CACHE_TTL", "12h")
	t.Setenv("COHORTGEN_RULE_SET", "clinical-v3")
	t.Setenv("COHORTGEN_MAX_SAMPLES", "2500")
	t.Setenv("COHORTGEN_LOG_LEVEL", "debug")

	cfg := LoadLiteConfig()

	assert.Equal(t, "/tmp/test-cohortgen", cfg.DataDir)
	assert.Equal(t, 500, cfg.CacheMaxItems)
	assert.Equal(t, 12*time.Hour, cfg.CacheTTL)
	assert.Equal(t, "clinical-v3", cfg.RuleSet)
	assert.Equal(t, 2500, cfg.MaxSamples)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadLiteConfig_InvalidValues(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("COHORTGEN_CACHE_MAX_ITEMS", "invalid")
	t.Setenv("COHORTGEN_CACHE_TTL", "soon")
	t.Setenv("COHORTGEN_MAX_SAMPLES", "-5")

	cfg := LoadLiteConfig()

	assert.Equal(t, 16, cfg.CacheMaxItems)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, 100000, cfg.MaxSamples)
}

func TestLiteConfig_Paths(t *testing.T) {
	cfg := &LiteConfig{DataDir: "/home/user/.cohortgen"}

	assert.Equal(t, "/home/user/.cohortgen/runs.db", cfg.RunStorePath())
	assert.Equal(t, "/home/user/.cohortgen/exports", cfg.ExportDir())
	assert.Equal(t, "sqlite", cfg.StorageConfig().Driver)
	assert.Equal(t, cfg.RunStorePath(), cfg.StorageConfig().SQLitePath)
}

func TestLiteConfig_EnsureDataDir(t *testing.T) {
	cfg := &LiteConfig{DataDir: filepath.Join(t.TempDir(), "cohortgen")}

	require.NoError(t, cfg.EnsureDataDir())

	assert.DirExists(t, cfg.DataDir)
	assert.DirExists(t, cfg.ExportDir())
}

func clearEnvVars(t *testing.T) {
	t.Helper()
	vars := []string{
		"COHORTGEN_DATA_DIR",
		"COHORTGEN_CACHE_MAX_ITEMS",
		"COHORTGEN_CACHE_TTL",
		"COHORTGEN_RULE_SET",
		"COHORTGEN_MAX_SAMPLES",
		"COHORTGEN_LOG_LEVEL",
		"COHORTGEN_LOG_FORMAT",
	}
	for _, v := range vars {
		t.Setenv(v, "")
	}
}
