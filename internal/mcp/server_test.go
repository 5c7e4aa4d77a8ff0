package mcp

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ortho-cohortgen/internal/domain"
	"github.com/ortho-cohortgen/internal/export"
	"github.com/ortho-cohortgen/internal/rules"
	"github.com/ortho-cohortgen/internal/service"
	"github.com/ortho-cohortgen/internal/store"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fixture struct {
	server    *Server
	exportDir string
}

func newFixture(t *testing.T, withPublisher bool) fixture {
	t.Helper()
	logger := quietLogger()

	runs, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { runs.Close() })

	svc := service.NewCohortService(rules.NewRegistry(logger), logger, service.CohortServiceConfig{Store: runs})

	var opts []ServerOption
	dir := filepath.Join(t.TempDir(), "exports")
	if withPublisher {
		sink, err := export.NewFileSink(dir)
		require.NoError(t, err)
		pub, err := export.NewPublisher(sink, export.FormatCSV, logger)
		require.NoError(t, err)
		opts = append(opts, WithPublisher(pub))
	}

	s := NewServer(svc, Config{RuleSet: rules.VersionOptimizedV2, MaxSamples: 2000}, logger, opts...)
	return fixture{server: s, exportDir: dir}
}

func resultText(t *testing.T, res *mcp.CallToolResult, i int) string {
	t.Helper()
	require.Greater(t, len(res.Content), i)
	text, ok := res.Content[i].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func decodePayload(t *testing.T, res *mcp.CallToolResult, v interface{}) {
	t.Helper()
	require.False(t, res.IsError, resultText(t, res, 0))
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res, 1)), v))
}

func intPtr(n int) *int { return &n }

func seedPtr(n int64) *int64 { return &n }

func TestNewServer(t *testing.T) {
	f := newFixture(t, false)
	assert.NotNil(t, f.server.MCPServer())
	assert.Equal(t, "cohortgen", f.server.cfg.Name)
	assert.Equal(t, "v1.0.0", f.server.cfg.Version)
}

func TestGenerateCohort(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	res, _, err := f.server.handleGenerateCohort(ctx, nil, GenerateCohortParams{Seed: seedPtr(42), NumSamples: 200})
	require.NoError(t, err)

	var out GenerateCohortResult
	decodePayload(t, res, &out)
	assert.Equal(t, rules.VersionOptimizedV2, out.Run.RuleSet)
	assert.Equal(t, 200, out.Run.RecordCount)
	assert.Len(t, out.Preview, defaultPreviewRows)
	assert.Equal(t, "Recommended Procedure", out.Columns[len(out.Columns)-1])

	total := 0
	for _, n := range out.Scenarios {
		total += n
	}
	assert.Equal(t, 200, total)
	assert.Contains(t, resultText(t, res, 0), "Generated 200 optimized-v2 cases")

	again, _, err := f.server.handleGenerateCohort(ctx, nil, GenerateCohortParams{Seed: seedPtr(42), NumSamples: 200, PreviewRows: intPtr(0)})
	require.NoError(t, err)
	var second GenerateCohortResult
	decodePayload(t, again, &second)
	assert.Empty(t, second.Preview)
	assert.Equal(t, out.Implants, second.Implants)
}

func TestGenerateCohort_Errors(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	tests := []struct {
		name   string
		params GenerateCohortParams
		want   string
	}{
		{"over limit", GenerateCohortParams{NumSamples: 5000}, domain.ErrCodeConfiguration},
		{"zero samples", GenerateCohortParams{NumSamples: 0}, domain.ErrCodeConfiguration},
		{"unknown rule set", GenerateCohortParams{RuleSet: "v1", NumSamples: 5}, domain.ErrCodeConfiguration},
		{"scenario outside rule set", GenerateCohortParams{
			RuleSet: rules.VersionClinicalV3, NumSamples: 5,
			Scenarios: []domain.ScenarioWeight{{Name: domain.ScenarioOsteoarthritis, Weight: 1}},
		}, domain.ErrCodeDomainViolation},
		{"export without destination", GenerateCohortParams{NumSamples: 5, Export: true}, domain.ErrCodeConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, _, err := f.server.handleGenerateCohort(ctx, nil, tt.params)
			require.NoError(t, err)
			assert.True(t, res.IsError)
			assert.Contains(t, resultText(t, res, 0), tt.want)
		})
	}
}

func TestGenerateCohort_Export(t *testing.T) {
	f := newFixture(t, true)

	res, _, err := f.server.handleGenerateCohort(context.Background(), nil, GenerateCohortParams{
		RuleSet: rules.VersionClinicalV3, Seed: seedPtr(3), NumSamples: 15, Export: true, Format: export.FormatJSON,
	})
	require.NoError(t, err)

	var out GenerateCohortResult
	decodePayload(t, res, &out)
	require.NotNil(t, out.Manifest)
	assert.Equal(t, export.FormatJSON, out.Manifest.Format)
	assert.Equal(t, 15, out.Manifest.Records)

	data, err := os.ReadFile(filepath.Join(f.exportDir, out.Run.ID.String()+".json"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "["))
	assert.FileExists(t, filepath.Join(f.exportDir, out.Run.ID.String()+".manifest.yaml"))

	res, _, err = f.server.handleGenerateCohort(context.Background(), nil, GenerateCohortParams{
		NumSamples: 5, Export: true, Format: "parquet",
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestRecommendTreatment(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	res, _, err := f.server.handleRecommendTreatment(ctx, nil, RecommendTreatmentParams{
		Scenario: domain.ScenarioPrimaryBoneTumor,
		Attributes: domain.AttributeSet{
			Age: 38, Gender: "Male", BMI: 23.1, ActivityLevel: "High", Comorbidity: "None",
			SmokingStatus: "Non-smoker", AlcoholUse: "No", Deformity: "None", BoneQuality: "Normal",
		},
	})
	require.NoError(t, err)

	var rec service.Recommendation
	decodePayload(t, res, &rec)
	assert.Equal(t, domain.ImplantCustomTumorProsthesis, rec.Implant)
	assert.Equal(t, domain.ProcedureWideTumorExcision, rec.Procedure)

	res, _, err = f.server.handleRecommendTreatment(ctx, nil, RecommendTreatmentParams{
		Scenario:   domain.ScenarioPrimaryBoneTumor,
		Attributes: domain.AttributeSet{Age: 38, BMI: 23.1, Gender: "Unknown"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res, 0), domain.ErrCodeDomainViolation)

	res, _, err = f.server.handleRecommendTreatment(ctx, nil, RecommendTreatmentParams{})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestListRuleSets(t *testing.T) {
	f := newFixture(t, false)

	res, _, err := f.server.handleListRuleSets(context.Background(), nil, ListRuleSetsParams{})
	require.NoError(t, err)
	var out ListRuleSetsResult
	decodePayload(t, res, &out)
	assert.Equal(t, rules.DefaultVersion, out.Default)
	assert.Len(t, out.RuleSets, 2)

	res, _, err = f.server.handleListRuleSets(context.Background(), nil, ListRuleSetsParams{Version: rules.VersionClinicalV3})
	require.NoError(t, err)
	decodePayload(t, res, &out)
	require.Len(t, out.RuleSets, 1)
	assert.Equal(t, rules.VersionClinicalV3, out.RuleSets[0].Version)

	res, _, err = f.server.handleListRuleSets(context.Background(), nil, ListRuleSetsParams{Version: "v7"})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestGetCohortRun(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	res, _, err := f.server.handleGenerateCohort(ctx, nil, GenerateCohortParams{Seed: seedPtr(11), NumSamples: 30, Persist: true, PreviewRows: intPtr(3)})
	require.NoError(t, err)
	var generated GenerateCohortResult
	decodePayload(t, res, &generated)

	res, _, err = f.server.handleGetCohortRun(ctx, nil, GetCohortRunParams{RunID: generated.Run.ID.String(), PreviewRows: intPtr(3)})
	require.NoError(t, err)
	var out GetCohortRunResult
	decodePayload(t, res, &out)
	assert.Equal(t, generated.Run.ID, out.Run.ID)
	assert.Equal(t, 30, out.Run.RecordCount)
	assert.Equal(t, generated.Preview, out.Preview)

	res, _, err = f.server.handleGetCohortRun(ctx, nil, GetCohortRunParams{RunID: "nope"})
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, _, err = f.server.handleGetCohortRun(ctx, nil, GetCohortRunParams{RunID: "6f1c7a52-2a4e-4a53-9c53-0d9c2a6c1f00"})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res, 0), domain.ErrCodeNotFound)
}

func TestPreview(t *testing.T) {
	records := make([]domain.CaseRecord, 150)
	assert.Len(t, preview(records, nil), defaultPreviewRows)
	assert.Len(t, preview(records, intPtr(500)), maxPreviewRows)
	assert.Nil(t, preview(records, intPtr(-1)))
	assert.Len(t, preview(records[:2], intPtr(10)), 2)
}

func TestGenerateCohort_UsesConfiguredDefaults(t *testing.T) {
	logger := quietLogger()
	svc := service.NewCohortService(rules.NewRegistry(logger), logger, service.CohortServiceConfig{})
	s := NewServer(svc, Config{
		RuleSet: rules.VersionOptimizedV2,
		Defaults: domain.GeneratorConfig{
			Seed:       42,
			NumSamples: 50,
			Scenarios:  []domain.ScenarioWeight{{Name: domain.ScenarioPrimaryBoneTumor, Weight: 1}},
		},
	}, logger)
	ctx := context.Background()

	res, _, err := s.handleGenerateCohort(ctx, nil, GenerateCohortParams{})
	require.NoError(t, err)
	var out GenerateCohortResult
	decodePayload(t, res, &out)
	assert.Equal(t, int64(42), out.Run.Seed)
	assert.Equal(t, 50, out.Run.RecordCount)
	assert.Equal(t, map[string]int{string(domain.ScenarioPrimaryBoneTumor): 50}, out.Scenarios)

	res, _, err = s.handleGenerateCohort(ctx, nil, GenerateCohortParams{
		Seed:       seedPtr(0),
		NumSamples: 20,
		Attributes: map[string]domain.DistributionConfig{
			"age": {Kind: domain.DistUniformInt, Min: 80, Max: 84},
		},
	})
	require.NoError(t, err)
	var overridden GenerateCohortResult
	decodePayload(t, res, &overridden)
	assert.Equal(t, int64(0), overridden.Run.Seed)
	require.NotEmpty(t, overridden.Preview)
	for _, r := range overridden.Preview {
		assert.GreaterOrEqual(t, r.Age, 80)
	}
}
