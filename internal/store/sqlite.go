package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/ortho-cohortgen/internal/domain"
)

// SQLiteStore implements domain.RunRepository using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	log    *logrus.Logger
}

// NewSQLiteStore opens or creates the database at dbPath and its schema.
func NewSQLiteStore(dbPath string, logger *logrus.Logger) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, domain.NewConfigurationError("storage.sqlite_path", "path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL lets API readers proceed while a run is being written
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.WithField("path", dbPath).Info("SQLite run store opened")
	return newSQLiteStore(db, dbPath, logger), nil
}

func newSQLiteStore(db *sql.DB, dbPath string, logger *logrus.Logger) *SQLiteStore {
	return &SQLiteStore{db: db, dbPath: dbPath, log: logger}
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		rule_set TEXT NOT NULL,
		seed INTEGER NOT NULL,
		num_samples INTEGER NOT NULL,
		batch_size INTEGER NOT NULL DEFAULT 0,
		fingerprint TEXT NOT NULL,
		record_count INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS case_records (
		run_id TEXT NOT NULL,
		ordinal INTEGER NOT NULL,
		age INTEGER NOT NULL,
		gender TEXT NOT NULL,
		bmi REAL NOT NULL,
		activity_level TEXT NOT NULL,
		comorbidity TEXT NOT NULL,
		smoking_status TEXT NOT NULL DEFAULT '',
		alcohol_use TEXT NOT NULL DEFAULT '',
		deformity TEXT NOT NULL,
		bone_quality TEXT NOT NULL,
		scenario TEXT NOT NULL,
		recommended_implant TEXT NOT NULL,
		recommended_procedure TEXT NOT NULL,
		PRIMARY KEY (run_id, ordinal)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
	CREATE INDEX IF NOT EXISTS idx_runs_fingerprint ON runs(fingerprint);
	`

	_, err := db.Exec(schema)
	return err
}

// SaveRun stores run and its records in a single transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *domain.Run, records []domain.CaseRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, rule_set, seed, num_samples, batch_size, fingerprint, record_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID.String(), run.RuleSet, run.Seed, run.NumSamples, run.BatchSize,
		run.Fingerprint, len(records), run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(recordColumns)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO case_records (%s) VALUES (%s)", strings.Join(recordColumns, ", "), placeholders,
	))
	if err != nil {
		return fmt.Errorf("failed to prepare record insert: %w", err)
	}
	defer stmt.Close()

	id := run.ID.String()
	for i, r := range records {
		if _, err := stmt.ExecContext(ctx, recordValues(id, i, r)...); err != nil {
			return fmt.Errorf("failed to insert record %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	run.RecordCount = len(records)

	s.log.WithFields(logrus.Fields{
		"run_id":  run.ID,
		"records": len(records),
		"driver":  DriverSQLite,
	}).Info("Run stored")
	return nil
}

// GetRun retrieves run metadata by id.
func (s *SQLiteStore) GetRun(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, rule_set, seed, num_samples, batch_size, fingerprint, record_count, created_at
		FROM runs
		WHERE id = ?
	`, id.String())

	run, err := scanSQLiteRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs with pagination, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*domain.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, rule_set, seed, num_samples, batch_size, fingerprint, record_count, created_at
		FROM runs
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	result := []*domain.Run{}
	for rows.Next() {
		run, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, run)
	}
	return result, rows.Err()
}

// LoadRecords returns the records of a run in generation order.
func (s *SQLiteStore) LoadRecords(ctx context.Context, id uuid.UUID) ([]domain.CaseRecord, error) {
	if _, err := s.GetRun(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM case_records
		WHERE run_id = ?
		ORDER BY ordinal
	`, strings.Join(recordColumns[2:], ", ")), id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	records := []domain.CaseRecord{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// DeleteRun removes a run and its records.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM case_records WHERE run_id = ?", id.String()); err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id.String())
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s: %w", id, domain.ErrNotFound)
	}
	return tx.Commit()
}

// CountRuns returns the number of stored runs.
func (s *SQLiteStore) CountRuns(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&count)
	return count, err
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanSQLiteRun(s scanner) (*domain.Run, error) {
	run := &domain.Run{}
	var id string
	err := s.Scan(
		&id, &run.RuleSet, &run.Seed, &run.NumSamples, &run.BatchSize,
		&run.Fingerprint, &run.RecordCount, &run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	run.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", id, err)
	}
	return run, nil
}
