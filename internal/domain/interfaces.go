package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Run is the persisted metadata of one dataset generation.
type Run struct {
	ID          uuid.UUID `json:"id"`
	RuleSet     string    `json:"rule_set"`
	Seed        int64     `json:"seed"`
	NumSamples  int       `json:"num_samples"`
	BatchSize   int       `json:"batch_size,omitempty"`
	Fingerprint string    `json:"fingerprint"`
	RecordCount int       `json:"record_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// RunRepository persists generation runs and their records.
type RunRepository interface {
	SaveRun(ctx context.Context, run *Run, records []CaseRecord) error
	GetRun(ctx context.Context, id uuid.UUID) (*Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	LoadRecords(ctx context.Context, id uuid.UUID) ([]CaseRecord, error)
	DeleteRun(ctx context.Context, id uuid.UUID) error
	CountRuns(ctx context.Context) (int, error)
	Close() error
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetGeneratorConfig() *GeneratorConfig
	GetServerConfig() *ServerConfig
	GetStorageConfig() *StorageConfig
	Reload() error
	Validate() error
	IsProduction() bool
	IsDevelopment() bool
}
