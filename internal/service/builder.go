package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ortho-cohortgen/internal/domain"
	"github.com/ortho-cohortgen/internal/metrics"
	"github.com/ortho-cohortgen/internal/sampler"
)

// DatasetBuilder assembles CaseRecords from a Plan. It holds no random state;
// every stream owns its own generator.
type DatasetBuilder struct {
	plan    *Plan
	logger  *logrus.Logger
	metrics *metrics.Collector
}

// BuilderOption configures a DatasetBuilder.
type BuilderOption func(*DatasetBuilder)

// WithMetrics records per-case and per-build metrics.
func WithMetrics(m *metrics.Collector) BuilderOption {
	return func(b *DatasetBuilder) {
		b.metrics = m
	}
}

// NewDatasetBuilder creates a builder for plan.
func NewDatasetBuilder(plan *Plan, logger *logrus.Logger, opts ...BuilderOption) *DatasetBuilder {
	b := &DatasetBuilder{plan: plan, logger: logger}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Plan returns the builder's plan.
func (b *DatasetBuilder) Plan() *Plan {
	return b.plan
}

// Stream is a lazy, finite, non-restartable sequence of records. Draws happen
// strictly in order from one generator: attributes, then scenario, per case.
type Stream struct {
	ctx       context.Context
	plan      *Plan
	rng       *rand.Rand
	remaining int
	produced  int
	current   domain.CaseRecord
	err       error
	observe   func(domain.CaseRecord)
}

// Stream returns a stream of exactly n records on the sequential generator
// for seed. Records are checked against the vocabulary as they are produced.
func (b *DatasetBuilder) Stream(ctx context.Context, seed int64, n int) (*Stream, error) {
	if err := validateCount(n); err != nil {
		return nil, err
	}
	s := b.newStream(ctx, seed, 0, n)
	if b.metrics != nil {
		version := b.plan.ruleSet.Version
		s.observe = func(r domain.CaseRecord) { b.metrics.ObserveRecord(version, r) }
	}
	return s, nil
}

func (b *DatasetBuilder) newStream(ctx context.Context, seed int64, stream uint64, n int) *Stream {
	return &Stream{
		ctx:       ctx,
		plan:      b.plan,
		rng:       sampler.NewSource(seed, stream),
		remaining: n,
	}
}

// Next advances to the next record. It returns false when the stream is
// exhausted, the context is done or a record fails validation.
func (s *Stream) Next() bool {
	if s.err != nil || s.remaining <= 0 {
		return false
	}
	if err := s.ctx.Err(); err != nil {
		s.err = err
		return false
	}

	record, err := s.plan.assemble(s.rng)
	if err != nil {
		s.err = fmt.Errorf("record %d: %w", s.produced+1, err)
		return false
	}

	s.current = record
	s.remaining--
	s.produced++
	if s.observe != nil {
		s.observe(record)
	}
	return true
}

// Record returns the record produced by the last successful Next.
func (s *Stream) Record() domain.CaseRecord {
	return s.current
}

// Err returns the error that stopped the stream, if any.
func (s *Stream) Err() error {
	return s.err
}

// Produced returns how many records the stream has yielded.
func (s *Stream) Produced() int {
	return s.produced
}

// assemble draws one case and labels it.
func (p *Plan) assemble(r *rand.Rand) (domain.CaseRecord, error) {
	attrs := p.attributes.Sample(r)
	scenario := p.scenario.Sample(r)
	labels := p.ruleSet.Label(scenario, attrs)

	record := domain.CaseRecord{
		AttributeSet:         attrs,
		Scenario:             scenario,
		RecommendedImplant:   labels.Implant,
		RecommendedProcedure: labels.Procedure,
	}
	if err := p.ruleSet.Vocabulary.ValidateRecord(record); err != nil {
		return domain.CaseRecord{}, err
	}
	return record, nil
}

// Build materializes exactly n records. On any error, including context
// cancellation, it returns no records.
func (b *DatasetBuilder) Build(ctx context.Context, seed int64, n int) ([]domain.CaseRecord, error) {
	if err := validateCount(n); err != nil {
		return nil, err
	}
	start := time.Now()

	records, err := b.collect(b.newStream(ctx, seed, 0, n), n)
	if err != nil {
		b.metrics.ObserveGenerationError(b.plan.ruleSet.Version, err)
		return nil, err
	}

	b.finish(records, "sequential", start, seed)
	return records, nil
}

// BuildParallel splits n into batches of batchSize. Batch i draws from stream
// i of seed, so the output depends on batchSize but not on workers or
// scheduling. A single batch reproduces Build exactly.
func (b *DatasetBuilder) BuildParallel(ctx context.Context, seed int64, n, batchSize, workers int) ([]domain.CaseRecord, error) {
	if err := validateCount(n); err != nil {
		return nil, err
	}
	if batchSize <= 0 || batchSize > n {
		batchSize = n
	}
	if workers <= 0 {
		workers = 1
	}
	start := time.Now()

	batches := (n + batchSize - 1) / batchSize
	results := make([][]domain.CaseRecord, batches)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < batches; i++ {
		count := min(batchSize, n-i*batchSize)
		g.Go(func() error {
			records, err := b.collect(b.newStream(gctx, seed, uint64(i), count), count)
			if err != nil {
				return fmt.Errorf("batch %d: %w", i, err)
			}
			results[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		b.metrics.ObserveGenerationError(b.plan.ruleSet.Version, err)
		return nil, err
	}

	records := make([]domain.CaseRecord, 0, n)
	for _, batch := range results {
		records = append(records, batch...)
	}

	b.logger.WithFields(logrus.Fields{
		"batches": batches,
		"workers": workers,
	}).Debug("Merged parallel batches")
	b.finish(records, "parallel", start, seed)
	return records, nil
}

func (b *DatasetBuilder) collect(s *Stream, n int) ([]domain.CaseRecord, error) {
	records := make([]domain.CaseRecord, 0, n)
	for s.Next() {
		records = append(records, s.Record())
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (b *DatasetBuilder) finish(records []domain.CaseRecord, mode string, start time.Time, seed int64) {
	version := b.plan.ruleSet.Version
	elapsed := time.Since(start)
	if b.metrics != nil {
		for _, r := range records {
			b.metrics.ObserveRecord(version, r)
		}
		b.metrics.ObserveGeneration(version, mode, elapsed)
	}

	b.logger.WithFields(logrus.Fields{
		"rule_set":    version,
		"seed":        seed,
		"records":     len(records),
		"mode":        mode,
		"duration_ms": elapsed.Milliseconds(),
	}).Info("Built synthetic dataset")
}

func validateCount(n int) error {
	if n <= 0 {
		return domain.NewConfigurationError("num_samples", fmt.Sprintf("must be positive, got %d", n))
	}
	return nil
}
