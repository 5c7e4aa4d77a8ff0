// Package store persists generation runs and their records in SQLite or
// PostgreSQL.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ortho-cohortgen/internal/domain"
)

// Storage drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

// Open returns the run repository selected by cfg.Driver. It returns nil
// for the "none" driver.
func Open(ctx context.Context, cfg domain.StorageConfig, logger *logrus.Logger) (domain.RunRepository, error) {
	switch cfg.Driver {
	case "", DriverSQLite:
		s, err := NewSQLiteStore(cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverPostgres:
		s, err := NewPostgresStore(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverNone:
		return nil, nil
	default:
		return nil, domain.NewConfigurationError("storage.driver", fmt.Sprintf("unsupported driver %q", cfg.Driver))
	}
}

// recordColumns is the column order shared by both drivers.
var recordColumns = []string{
	"run_id", "ordinal", "age", "gender", "bmi", "activity_level", "comorbidity",
	"smoking_status", "alcohol_use", "deformity", "bone_quality",
	"scenario", "recommended_implant", "recommended_procedure",
}

// recordValues renders r for insertion. runID is a string for SQLite and a
// uuid.UUID for PostgreSQL.
func recordValues(runID interface{}, ordinal int, r domain.CaseRecord) []interface{} {
	return []interface{}{
		runID, ordinal, r.Age, r.Gender, r.BMI, r.ActivityLevel, r.Comorbidity,
		r.SmokingStatus, r.AlcoholUse, r.Deformity, r.BoneQuality,
		string(r.Scenario), string(r.RecommendedImplant), string(r.RecommendedProcedure),
	}
}

// scanner is an interface for sql.Row, sql.Rows and pgx.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (domain.CaseRecord, error) {
	var r domain.CaseRecord
	var scenario, implant, procedure string
	err := s.Scan(
		&r.Age, &r.Gender, &r.BMI, &r.ActivityLevel, &r.Comorbidity,
		&r.SmokingStatus, &r.AlcoholUse, &r.Deformity, &r.BoneQuality,
		&scenario, &implant, &procedure,
	)
	if err != nil {
		return domain.CaseRecord{}, err
	}
	r.Scenario = domain.Scenario(scenario)
	r.RecommendedImplant = domain.Implant(implant)
	r.RecommendedProcedure = domain.Procedure(procedure)
	return r, nil
}

// RunBundle is a run together with its records.
type RunBundle struct {
	Run     *domain.Run         `json:"run"`
	Records []domain.CaseRecord `json:"records"`
}

// RunExport is the JSON backup format for stored runs.
type RunExport struct {
	Version    string      `json:"version"`
	ExportedAt time.Time   `json:"exported_at"`
	Count      int         `json:"count"`
	Runs       []RunBundle `json:"runs"`
}

// maxExportRuns is the maximum number of runs exported at once.
const maxExportRuns = 100000

// ExportJSON writes every stored run with its records to writer.
func ExportJSON(ctx context.Context, repo domain.RunRepository, writer io.Writer) error {
	runs, err := repo.ListRuns(ctx, maxExportRuns, 0)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	export := &RunExport{
		Version:    "1.0",
		ExportedAt: time.Now().UTC(),
		Count:      len(runs),
		Runs:       make([]RunBundle, 0, len(runs)),
	}
	for _, run := range runs {
		records, err := repo.LoadRecords(ctx, run.ID)
		if err != nil {
			return fmt.Errorf("failed to load records for run %s: %w", run.ID, err)
		}
		export.Runs = append(export.Runs, RunBundle{Run: run, Records: records})
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// ImportJSON restores runs from reader, skipping ids that already exist.
func ImportJSON(ctx context.Context, repo domain.RunRepository, reader io.Reader) (imported int, skipped int, err error) {
	var export RunExport
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for _, bundle := range export.Runs {
		if bundle.Run == nil {
			skipped++
			continue
		}
		_, getErr := repo.GetRun(ctx, bundle.Run.ID)
		if getErr == nil {
			skipped++
			continue
		}
		if !errors.Is(getErr, domain.ErrNotFound) {
			return imported, skipped, fmt.Errorf("failed to check run %s: %w", bundle.Run.ID, getErr)
		}
		if err := repo.SaveRun(ctx, bundle.Run, bundle.Records); err != nil {
			return imported, skipped, fmt.Errorf("failed to save run %s: %w", bundle.Run.ID, err)
		}
		imported++
	}

	return imported, skipped, nil
}
