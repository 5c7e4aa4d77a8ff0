package domain

import (
	"time"
)

// DistributionKind selects how an attribute is sampled.
type DistributionKind string

const (
	DistUniformInt    DistributionKind = "uniform_int"
	DistUniformReal   DistributionKind = "uniform_real"
	DistCategorical   DistributionKind = "categorical"
	DistClippedNormal DistributionKind = "clipped_normal"
)

// IsValid checks if the distribution kind is known
func (k DistributionKind) IsValid() bool {
	switch k {
	case DistUniformInt, DistUniformReal, DistCategorical, DistClippedNormal:
		return true
	}
	return false
}

// DistributionConfig configures one attribute's sampler. Only the fields
// relevant to Kind are read. Categorical values and weights are parallel
// lists so that value order survives YAML and environment loading.
type DistributionConfig struct {
	Kind      DistributionKind `mapstructure:"kind" json:"kind" yaml:"kind"`
	Min       float64          `mapstructure:"min" json:"min,omitempty" yaml:"min,omitempty"`
	Max       float64          `mapstructure:"max" json:"max,omitempty" yaml:"max,omitempty"`
	Mean      float64          `mapstructure:"mean" json:"mean,omitempty" yaml:"mean,omitempty"`
	StdDev    float64          `mapstructure:"stddev" json:"stddev,omitempty" yaml:"stddev,omitempty"`
	Precision int              `mapstructure:"precision" json:"precision,omitempty" yaml:"precision,omitempty"`
	Values    []string         `mapstructure:"values" json:"values,omitempty" yaml:"values,omitempty"`
	Weights   []float64        `mapstructure:"weights" json:"weights,omitempty" yaml:"weights,omitempty"`
}

// ScenarioWeight is one entry of the ordered scenario distribution.
type ScenarioWeight struct {
	Name   Scenario `mapstructure:"name" json:"name" yaml:"name"`
	Weight float64  `mapstructure:"weight" json:"weight" yaml:"weight"`
}

// Config represents the main application configuration
type Config struct {
	Environment string          `mapstructure:"environment"`
	Generator   GeneratorConfig `mapstructure:"generator"`
	Server      ServerConfig    `mapstructure:"server"`
	Storage     StorageConfig   `mapstructure:"storage"`
	Cache       CacheConfig     `mapstructure:"cache"`
	Export      ExportConfig    `mapstructure:"export"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	MCP         MCPConfig       `mapstructure:"mcp"`
}

// GeneratorConfig holds the dataset generation parameters. Attributes and
// Scenarios override the selected rule set's defaults.
type GeneratorConfig struct {
	NumSamples int                           `mapstructure:"num_samples"`
	Seed       int64                         `mapstructure:"seed"`
	RuleSet    string                        `mapstructure:"rule_set"`
	BatchSize  int                           `mapstructure:"batch_size"`
	Workers    int                           `mapstructure:"workers"`
	Attributes map[string]DistributionConfig `mapstructure:"attributes"`
	Scenarios  []ScenarioWeight              `mapstructure:"scenarios"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	RateLimit     float64       `mapstructure:"rate_limit"`
	RateBurst     int           `mapstructure:"rate_burst"`
	MaxSamples    int           `mapstructure:"max_samples"`
	AllowedOrigin string        `mapstructure:"allowed_origin"`
}

// StorageConfig selects and configures the run store.
type StorageConfig struct {
	Driver          string        `mapstructure:"driver"` // "sqlite", "postgres", "none"
	SQLitePath      string        `mapstructure:"sqlite_path"`
	PostgresURL     string        `mapstructure:"postgres_url"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// CacheConfig represents cache configuration
type CacheConfig struct {
	MemoryItems int           `mapstructure:"memory_items"`
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
}

// ExportConfig controls where exported datasets land.
type ExportConfig struct {
	Dir    string   `mapstructure:"dir"`
	Format string   `mapstructure:"format"` // "csv", "json"
	S3     S3Config `mapstructure:"s3"`
}

// S3Config configures the optional object storage sink.
type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`
	Prefix    string `mapstructure:"prefix"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MCPConfig represents MCP server configuration
type MCPConfig struct {
	ServerName    string `mapstructure:"server_name"`
	ServerVersion string `mapstructure:"server_version"`
	MaxSamples    int    `mapstructure:"max_samples"`
}
