package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ortho-cohortgen/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testRun(createdAt time.Time) *domain.Run {
	return &domain.Run{
		ID:          uuid.New(),
		RuleSet:     "optimized-v2",
		Seed:        42,
		NumSamples:  2,
		Fingerprint: "abc123",
		CreatedAt:   createdAt.UTC(),
	}
}

func testRecords() []domain.CaseRecord {
	return []domain.CaseRecord{
		{
			AttributeSet: domain.AttributeSet{
				Age: 67, Gender: "Female", BMI: 31.4, ActivityLevel: "Low", Comorbidity: "Diabetes",
				SmokingStatus: "Non-smoker", AlcoholUse: "No", Deformity: "Varus", BoneQuality: "Osteoporotic",
			},
			Scenario:             domain.ScenarioOsteoarthritis,
			RecommendedImplant:   domain.ImplantTotalKnee,
			RecommendedProcedure: domain.ProcedureTotalKneeArthroplasty,
		},
		{
			AttributeSet: domain.AttributeSet{
				Age: 24, Gender: "Male", BMI: 22.0, ActivityLevel: "High", Comorbidity: "None",
				Deformity: "None", BoneQuality: "Normal",
			},
			Scenario:             domain.ScenarioPrimaryBoneTumor,
			RecommendedImplant:   domain.ImplantCustomTumorProsthesis,
			RecommendedProcedure: domain.ProcedureWideTumorExcision,
		},
	}
}

func TestNewSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "runs.db")

	store, err := NewSQLiteStore(dbPath, testLogger())
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "Database file should exist")
	assert.Equal(t, dbPath, store.Path())

	_, err = NewSQLiteStore("", testLogger())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestSQLiteStore_SaveAndLoad(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	run := testRun(time.Now())
	require.NoError(t, store.SaveRun(ctx, run, testRecords()))
	assert.Equal(t, 2, run.RecordCount)

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, run.RuleSet, got.RuleSet)
	assert.Equal(t, run.Seed, got.Seed)
	assert.Equal(t, run.Fingerprint, got.Fingerprint)
	assert.Equal(t, 2, got.RecordCount)
	assert.WithinDuration(t, run.CreatedAt, got.CreatedAt, time.Second)

	records, err := store.LoadRecords(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, testRecords(), records)
}

func TestSQLiteStore_NotFound(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()
	missing := uuid.New()

	_, err := store.GetRun(ctx, missing)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = store.LoadRecords(ctx, missing)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = store.DeleteRun(ctx, missing)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteStore_ListCountDelete(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		run := testRun(base.Add(time.Duration(i) * time.Hour))
		require.NoError(t, store.SaveRun(ctx, run, testRecords()))
		ids = append(ids, run.ID)
	}

	count, err := store.CountRuns(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	runs, err := store.ListRuns(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID, "newest first")
	assert.Equal(t, ids[1], runs[1].ID)

	rest, err := store.ListRuns(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, ids[0], rest[0].ID)

	require.NoError(t, store.DeleteRun(ctx, ids[1]))
	count, err = store.CountRuns(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	_, err = store.LoadRecords(ctx, ids[1])
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteStore_DuplicateRunRollsBack(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	run := testRun(time.Now())
	require.NoError(t, store.SaveRun(ctx, run, testRecords()))
	assert.Error(t, store.SaveRun(ctx, run, testRecords()))

	records, err := store.LoadRecords(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestSQLiteStore_RecordInsertFailureRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO runs").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectPrepare("INSERT INTO case_records").
		ExpectExec().
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	store := newSQLiteStore(db, "", testLogger())
	err = store.SaveRun(context.Background(), testRun(time.Now()), testRecords())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert record 0")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExportImportJSON(t *testing.T) {
	source := createTestStore(t)
	target := createTestStore(t)
	ctx := context.Background()

	first := testRun(time.Now().Add(-time.Minute))
	second := testRun(time.Now())
	require.NoError(t, source.SaveRun(ctx, first, testRecords()))
	require.NoError(t, source.SaveRun(ctx, second, testRecords()[:1]))
	require.NoError(t, target.SaveRun(ctx, testRun(time.Now()), nil))
	require.NoError(t, target.SaveRun(ctx, &domain.Run{
		ID: first.ID, RuleSet: first.RuleSet, Fingerprint: first.Fingerprint, CreatedAt: first.CreatedAt,
	}, nil))

	var buf bytes.Buffer
	require.NoError(t, ExportJSON(ctx, source, &buf))
	assert.Contains(t, buf.String(), `"count": 2`)

	imported, skipped, err := ImportJSON(ctx, target, &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, imported)
	assert.Equal(t, 1, skipped)

	records, err := target.LoadRecords(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, testRecords()[:1], records)
}

func TestOpen_Drivers(t *testing.T) {
	ctx := context.Background()

	repo, err := Open(ctx, domain.StorageConfig{Driver: DriverNone}, testLogger())
	require.NoError(t, err)
	assert.Nil(t, repo)

	repo, err = Open(ctx, domain.StorageConfig{Driver: "mongo"}, testLogger())
	assert.Nil(t, repo)
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	repo, err = Open(ctx, domain.StorageConfig{SQLitePath: filepath.Join(t.TempDir(), "runs.db")}, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, repo)
	assert.NoError(t, repo.Close())

	_, err = Open(ctx, domain.StorageConfig{Driver: DriverPostgres}, testLogger())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
