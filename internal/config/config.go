package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/ortho-cohortgen/internal/domain"
)

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v          *viper.Viper
	configFile string

	mu     sync.RWMutex
	config *domain.Config
}

// NewManager creates a new configuration manager. An empty configFile
// searches the default locations for cohortgen.yaml.
func NewManager(configFile string) (*Manager, error) {
	m := &Manager{v: viper.New(), configFile: configFile}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	v := m.v
	if m.configFile != "" {
		v.SetConfigFile(m.configFile)
	} else {
		v.SetConfigName("cohortgen")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/cohortgen/")
	}

	v.SetEnvPrefix("COHORTGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	m.setDefaults()

	// A missing file is fine; defaults and environment still apply
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.mu.Lock()
	m.config = config
	m.mu.Unlock()
	return nil
}

// setDefaults sets default configuration values
func (m *Manager) setDefaults() {
	v := m.v

	v.SetDefault("environment", "development")

	// Generator defaults
	v.SetDefault("generator.num_samples", 10000)
	v.SetDefault("generator.seed", 42)
	v.SetDefault("generator.rule_set", "optimized-v2")
	v.SetDefault("generator.batch_size", 0)
	v.SetDefault("generator.workers", 4)

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.rate_limit", 20)
	v.SetDefault("server.rate_burst", 40)
	v.SetDefault("server.max_samples", 1000000)
	v.SetDefault("server.allowed_origin", "*")

	// Storage defaults
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlite_path", "./data/cohortgen.db")
	v.SetDefault("storage.postgres_url", "")
	v.SetDefault("storage.max_conns", 10)
	v.SetDefault("storage.min_conns", 1)
	v.SetDefault("storage.conn_max_lifetime", "30m")
	v.SetDefault("storage.migrations_path", "")

	// Cache defaults
	v.SetDefault("cache.memory_items", 32)
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.default_ttl", "30m")
	v.SetDefault("cache.max_retries", 3)
	v.SetDefault("cache.pool_size", 10)

	// Export defaults
	v.SetDefault("export.dir", "./exports")
	v.SetDefault("export.format", "csv")
	v.SetDefault("export.s3.region", "us-east-1")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// MCP defaults
	v.SetDefault("mcp.server_name", "cohortgen")
	v.SetDefault("mcp.server_version", "1.0.0")
	v.SetDefault("mcp.max_samples", 100000)
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetGeneratorConfig returns generator configuration
func (m *Manager) GetGeneratorConfig() *domain.GeneratorConfig {
	return &m.GetConfig().Generator
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.GetConfig().Server
}

// GetStorageConfig returns storage configuration
func (m *Manager) GetStorageConfig() *domain.StorageConfig {
	return &m.GetConfig().Storage
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Watch reloads the configuration whenever the config file changes and
// passes the new value to onChange. Reload failures keep the previous
// configuration.
func (m *Manager) Watch(logger *logrus.Logger, onChange func(*domain.Config)) {
	m.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		previous := m.GetConfig()
		if err := m.loadConfig(); err != nil {
			logger.WithError(err).Warn("Config reload failed")
			return
		}
		if err := m.Validate(); err != nil {
			logger.WithError(err).Warn("Reloaded config is invalid, keeping previous")
			m.mu.Lock()
			m.config = previous
			m.mu.Unlock()
			return
		}
		logger.WithField("file", e.Name).Info("Configuration reloaded")
		if onChange != nil {
			onChange(m.GetConfig())
		}
	})
	m.v.WatchConfig()
}

var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.GetConfig()

	if config.Generator.NumSamples <= 0 {
		return domain.NewConfigurationError("generator.num_samples", fmt.Sprintf("must be positive, got %d", config.Generator.NumSamples))
	}
	if config.Generator.RuleSet == "" {
		return domain.NewConfigurationError("generator.rule_set", "rule set is required")
	}
	if config.Generator.BatchSize < 0 {
		return domain.NewConfigurationError("generator.batch_size", "must not be negative")
	}
	if config.Generator.Workers < 0 {
		return domain.NewConfigurationError("generator.workers", "must not be negative")
	}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return domain.NewConfigurationError("server.port", fmt.Sprintf("invalid server port: %d", config.Server.Port))
	}
	if config.Server.RateLimit < 0 {
		return domain.NewConfigurationError("server.rate_limit", "must not be negative")
	}

	switch config.Storage.Driver {
	case "sqlite":
		if config.Storage.SQLitePath == "" {
			return domain.NewConfigurationError("storage.sqlite_path", "path is required for the sqlite driver")
		}
	case "postgres":
		if config.Storage.PostgresURL == "" {
			return domain.NewConfigurationError("storage.postgres_url", "URL is required for the postgres driver")
		}
	case "none", "":
	default:
		return domain.NewConfigurationError("storage.driver", fmt.Sprintf("unknown driver %q", config.Storage.Driver))
	}

	switch config.Export.Format {
	case "csv", "json":
	default:
		return domain.NewConfigurationError("export.format", fmt.Sprintf("unsupported format %q", config.Export.Format))
	}

	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return domain.NewConfigurationError("logging.level", fmt.Sprintf("invalid log level: %s", config.Logging.Level))
	}

	return nil
}

// ConfigFileUsed returns the path of the loaded config file, if any.
func (m *Manager) ConfigFileUsed() string {
	return m.v.ConfigFileUsed()
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.GetConfig().Environment) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.GetConfig().Environment)
	return env == "development" || env == "dev" || env == ""
}
