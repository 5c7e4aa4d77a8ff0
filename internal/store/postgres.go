package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/ortho-cohortgen/internal/domain"
)

// PostgresStore implements domain.RunRepository using PostgreSQL. It expects
// the schema to already exist (created via migrations).
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
}

// NewPostgresStore creates a connection pool for cfg.PostgresURL.
func NewPostgresStore(ctx context.Context, cfg domain.StorageConfig, logger *logrus.Logger) (*PostgresStore, error) {
	if cfg.PostgresURL == "" {
		return nil, domain.NewConfigurationError("storage.postgres_url", "URL is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.PostgresURL)
	if err != nil {
		return nil, domain.NewConfigurationError("storage.postgres_url", err.Error())
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"host":      poolConfig.ConnConfig.Host,
		"database":  poolConfig.ConnConfig.Database,
		"max_conns": poolConfig.MaxConns,
		"min_conns": poolConfig.MinConns,
	}).Info("Database connection pool established")

	return &PostgresStore{pool: pool, log: logger}, nil
}

// SaveRun stores run and bulk-copies its records in one transaction.
func (s *PostgresStore) SaveRun(ctx context.Context, run *domain.Run, records []domain.CaseRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO runs (id, rule_set, seed, num_samples, batch_size, fingerprint, record_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.RuleSet, run.Seed, run.NumSamples, run.BatchSize,
		run.Fingerprint, len(records), run.CreatedAt,
	)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"run_id": run.ID,
			"error":  err,
		}).Error("Failed to create run")
		return fmt.Errorf("creating run: %w", err)
	}

	copied, err := tx.CopyFrom(ctx,
		pgx.Identifier{"case_records"},
		recordColumns,
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			return recordValues(run.ID, i, records[i]), nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copying records: %w", err)
	}
	if int(copied) != len(records) {
		return fmt.Errorf("copied %d of %d records", copied, len(records))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing run: %w", err)
	}
	run.RecordCount = len(records)

	s.log.WithFields(logrus.Fields{
		"run_id":  run.ID,
		"records": len(records),
		"driver":  DriverPostgres,
	}).Info("Run stored")
	return nil
}

// GetRun retrieves run metadata by id.
func (s *PostgresStore) GetRun(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	run := &domain.Run{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, rule_set, seed, num_samples, batch_size, fingerprint, record_count, created_at
		FROM runs
		WHERE id = $1`, id).Scan(
		&run.ID, &run.RuleSet, &run.Seed, &run.NumSamples, &run.BatchSize,
		&run.Fingerprint, &run.RecordCount, &run.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs with pagination, newest first.
func (s *PostgresStore) ListRuns(ctx context.Context, limit, offset int) ([]*domain.Run, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, rule_set, seed, num_samples, batch_size, fingerprint, record_count, created_at
		FROM runs
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	result := []*domain.Run{}
	for rows.Next() {
		run := &domain.Run{}
		if err := rows.Scan(
			&run.ID, &run.RuleSet, &run.Seed, &run.NumSamples, &run.BatchSize,
			&run.Fingerprint, &run.RecordCount, &run.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		result = append(result, run)
	}
	return result, rows.Err()
}

// LoadRecords returns the records of a run in generation order.
func (s *PostgresStore) LoadRecords(ctx context.Context, id uuid.UUID) ([]domain.CaseRecord, error) {
	if _, err := s.GetRun(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM case_records
		WHERE run_id = $1
		ORDER BY ordinal`, strings.Join(recordColumns[2:], ", ")), id)
	if err != nil {
		return nil, fmt.Errorf("loading records: %w", err)
	}
	defer rows.Close()

	records := []domain.CaseRecord{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// DeleteRun removes a run; its records cascade.
func (s *PostgresStore) DeleteRun(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM runs WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// CountRuns returns the number of stored runs.
func (s *PostgresStore) CountRuns(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM runs").Scan(&count)
	return count, err
}

// Health checks the database connection health
func (s *PostgresStore) Health(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Stats returns connection pool statistics
func (s *PostgresStore) Stats() *pgxpool.Stat {
	return s.pool.Stat()
}

// Close closes the database connection pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	s.log.Info("Database connection pool closed")
	return nil
}
