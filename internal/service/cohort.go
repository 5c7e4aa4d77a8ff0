package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ortho-cohortgen/internal/domain"
	"github.com/ortho-cohortgen/internal/metrics"
	"github.com/ortho-cohortgen/internal/rules"
)

// DatasetCache stores generated datasets by key.
type DatasetCache interface {
	Get(ctx context.Context, key string) ([]domain.CaseRecord, bool)
	Set(ctx context.Context, key string, records []domain.CaseRecord)
}

// GenerateRequest describes one dataset generation.
type GenerateRequest struct {
	RuleSet    string                               `json:"rule_set"`
	Seed       int64                                `json:"seed"`
	NumSamples int                                  `json:"num_samples"`
	BatchSize  int                                  `json:"batch_size,omitempty"`
	Workers    int                                  `json:"workers,omitempty"`
	Attributes map[string]domain.DistributionConfig `json:"attributes,omitempty"`
	Scenarios  []domain.ScenarioWeight              `json:"scenarios,omitempty"`
	Persist    bool                                 `json:"persist"`
}

// ResolveRequest fills what req leaves unset from the configured generator
// section. seed replaces gen.Seed when non-nil, so 0 stays a usable seed.
// Configured attribute overrides and scenario weights only apply when req
// targets the configured rule set, since their values belong to its
// vocabulary. Request overrides win per field.
func ResolveRequest(req GenerateRequest, seed *int64, gen domain.GeneratorConfig) GenerateRequest {
	if req.RuleSet == "" {
		req.RuleSet = gen.RuleSet
	}
	req.Seed = gen.Seed
	if seed != nil {
		req.Seed = *seed
	}
	if req.NumSamples == 0 {
		req.NumSamples = gen.NumSamples
	}
	if req.BatchSize == 0 {
		req.BatchSize = gen.BatchSize
	}
	if req.Workers == 0 {
		req.Workers = gen.Workers
	}
	if req.RuleSet != gen.RuleSet {
		return req
	}

	if len(gen.Attributes) > 0 {
		merged := make(map[string]domain.DistributionConfig, len(gen.Attributes)+len(req.Attributes))
		for name, cfg := range gen.Attributes {
			merged[name] = cfg
		}
		for name, cfg := range req.Attributes {
			merged[name] = cfg
		}
		req.Attributes = merged
	}
	if len(req.Scenarios) == 0 && len(gen.Scenarios) > 0 {
		req.Scenarios = append([]domain.ScenarioWeight(nil), gen.Scenarios...)
	}
	return req
}

// GenerateResult is a materialized dataset and its run metadata.
type GenerateResult struct {
	Run     *domain.Run         `json:"run"`
	Schema  domain.TableSchema  `json:"schema"`
	Records []domain.CaseRecord `json:"-"`
	Cached  bool                `json:"cached"`
}

// CohortService ties generation to caching, persistence and metrics. It is
// the single entry point for the CLI, HTTP API and MCP tools.
type CohortService struct {
	registry    *rules.Registry
	recommender *Recommender
	store       domain.RunRepository
	cache       DatasetCache
	metrics     *metrics.Collector
	logger      *logrus.Logger
	maxSamples  int
}

// CohortServiceConfig carries optional collaborators. Store and Cache may be
// nil.
type CohortServiceConfig struct {
	Store      domain.RunRepository
	Cache      DatasetCache
	Metrics    *metrics.Collector
	MaxSamples int
}

// NewCohortService creates the service.
func NewCohortService(registry *rules.Registry, logger *logrus.Logger, cfg CohortServiceConfig) *CohortService {
	return &CohortService{
		registry:    registry,
		recommender: NewRecommender(registry, logger, cfg.Metrics),
		store:       cfg.Store,
		cache:       cfg.Cache,
		metrics:     cfg.Metrics,
		logger:      logger,
		maxSamples:  cfg.MaxSamples,
	}
}

// Registry returns the rule-set registry.
func (s *CohortService) Registry() *rules.Registry {
	return s.registry
}

// Recommend labels a single case.
func (s *CohortService) Recommend(version string, scenario domain.Scenario, attrs domain.AttributeSet) (*Recommendation, error) {
	return s.recommender.Recommend(version, scenario, attrs)
}

// Prepare resolves and validates the plan for req.
func (s *CohortService) Prepare(req GenerateRequest) (*Plan, error) {
	if req.NumSamples <= 0 {
		return nil, domain.NewConfigurationError("num_samples", fmt.Sprintf("must be positive, got %d", req.NumSamples))
	}
	if s.maxSamples > 0 && req.NumSamples > s.maxSamples {
		return nil, domain.NewConfigurationError("num_samples", fmt.Sprintf("%d exceeds the limit of %d", req.NumSamples, s.maxSamples))
	}
	rs, err := s.registry.Get(req.RuleSet)
	if err != nil {
		return nil, err
	}
	return NewPlan(rs, req.Attributes, req.Scenarios)
}

// Generate builds a dataset, serving it from cache when the same plan, seed,
// count and batch size were generated before, and persists it on request.
func (s *CohortService) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	plan, err := s.Prepare(req)
	if err != nil {
		return nil, err
	}
	builder := NewDatasetBuilder(plan, s.logger, WithMetrics(s.metrics))

	key := cacheKey(plan, req)
	records, cached := s.lookup(ctx, key)
	if !cached {
		if req.BatchSize > 0 && req.BatchSize < req.NumSamples {
			records, err = builder.BuildParallel(ctx, req.Seed, req.NumSamples, req.BatchSize, req.Workers)
		} else {
			records, err = builder.Build(ctx, req.Seed, req.NumSamples)
		}
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			s.cache.Set(ctx, key, records)
		}
	}

	run := &domain.Run{
		ID:          uuid.New(),
		RuleSet:     plan.RuleSet().Version,
		Seed:        req.Seed,
		NumSamples:  req.NumSamples,
		BatchSize:   req.BatchSize,
		Fingerprint: plan.Fingerprint(),
		RecordCount: len(records),
		CreatedAt:   time.Now().UTC(),
	}

	if req.Persist {
		if s.store == nil {
			return nil, domain.NewConfigurationError("storage.driver", "run storage is disabled")
		}
		if err := s.store.SaveRun(ctx, run, records); err != nil {
			return nil, fmt.Errorf("failed to persist run %s: %w", run.ID, err)
		}
	}

	s.logger.WithFields(logrus.Fields{
		"run_id":    run.ID,
		"rule_set":  run.RuleSet,
		"seed":      run.Seed,
		"records":   run.RecordCount,
		"cached":    cached,
		"persisted": req.Persist,
	}).Info("Generated cohort")

	return &GenerateResult{Run: run, Schema: plan.Schema(), Records: records, Cached: cached}, nil
}

// Stream opens a lazy record stream for req on the sequential generator.
func (s *CohortService) Stream(ctx context.Context, req GenerateRequest) (*Stream, *Plan, error) {
	plan, err := s.Prepare(req)
	if err != nil {
		return nil, nil, err
	}
	stream, err := NewDatasetBuilder(plan, s.logger, WithMetrics(s.metrics)).Stream(ctx, req.Seed, req.NumSamples)
	if err != nil {
		return nil, nil, err
	}
	return stream, plan, nil
}

// GetRun returns stored run metadata.
func (s *CohortService) GetRun(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	if s.store == nil {
		return nil, domain.NewConfigurationError("storage.driver", "run storage is disabled")
	}
	return s.store.GetRun(ctx, id)
}

// ListRuns returns stored runs, newest first.
func (s *CohortService) ListRuns(ctx context.Context, limit, offset int) ([]*domain.Run, error) {
	if s.store == nil {
		return nil, domain.NewConfigurationError("storage.driver", "run storage is disabled")
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListRuns(ctx, limit, offset)
}

// Records loads a stored run with its records and tabular schema.
func (s *CohortService) Records(ctx context.Context, id uuid.UUID) (*domain.Run, []domain.CaseRecord, domain.TableSchema, error) {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, nil, domain.TableSchema{}, err
	}
	rs, err := s.registry.Get(run.RuleSet)
	if err != nil {
		return nil, nil, domain.TableSchema{}, err
	}
	records, err := s.store.LoadRecords(ctx, id)
	if err != nil {
		return nil, nil, domain.TableSchema{}, err
	}
	return run, records, rs.Schema(), nil
}

func (s *CohortService) lookup(ctx context.Context, key string) ([]domain.CaseRecord, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(ctx, key)
}

func cacheKey(plan *Plan, req GenerateRequest) string {
	batch := req.BatchSize
	if batch <= 0 || batch >= req.NumSamples {
		batch = 0
	}
	return fmt.Sprintf("%s:%d:%d:%d", plan.Fingerprint(), req.Seed, req.NumSamples, batch)
}
