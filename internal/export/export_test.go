package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ortho-cohortgen/internal/domain"
	"github.com/ortho-cohortgen/internal/rules"
	"github.com/ortho-cohortgen/internal/service"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func buildDataset(t *testing.T, version string, seed int64, n int) (domain.TableSchema, []domain.CaseRecord) {
	t.Helper()
	rs, err := rules.NewRegistry(testLogger()).Get(version)
	require.NoError(t, err)
	plan, err := service.NewPlan(rs, nil, nil)
	require.NoError(t, err)
	records, err := service.NewDatasetBuilder(plan, testLogger()).Build(context.Background(), seed, n)
	require.NoError(t, err)
	return plan.Schema(), records
}

func TestWriteCSV_DeterministicBytes(t *testing.T) {
	schemaA, recordsA := buildDataset(t, rules.VersionOptimizedV2, 42, 1000)
	schemaB, recordsB := buildDataset(t, rules.VersionOptimizedV2, 42, 1000)

	var a, b bytes.Buffer
	require.NoError(t, WriteCSV(&a, schemaA, recordsA))
	require.NoError(t, WriteCSV(&b, schemaB, recordsB))

	assert.Equal(t, a.Bytes(), b.Bytes())
}

func TestWriteCSV_HeaderAndRows(t *testing.T) {
	tests := []struct {
		version string
		header  []string
	}{
		{
			version: rules.VersionOptimizedV2,
			header: []string{
				"Age", "Gender", "BMI", "Activity Level", "Comorbidities", "Smoking Status",
				"Alcohol Use", "Deformity", "Bone Quality", "Scenario", "Recommended Implant", "Recommended Procedure",
			},
		},
		{
			version: rules.VersionClinicalV3,
			header: []string{
				"Age", "Gender", "BMI", "ActivityLevel", "Comorbidities", "Deformity", "BoneQuality",
				"Scenario", "RecommendedImplant", "RecommendedProcedure",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			schema, records := buildDataset(t, tt.version, 1, 25)

			var buf bytes.Buffer
			require.NoError(t, WriteCSV(&buf, schema, records))

			rows, err := csv.NewReader(&buf).ReadAll()
			require.NoError(t, err)
			require.Len(t, rows, 26)
			assert.Equal(t, tt.header, rows[0])
			for i, row := range rows[1:] {
				assert.Equal(t, records[i].Row(schema.Fields), row)
			}
		})
	}
}

func TestCSVWriter_EmptyWritesHeader(t *testing.T) {
	schema := domain.TableSchema{Fields: []domain.Field{domain.FieldAge}, Columns: []string{"Age", "Scenario", "Implant", "Procedure"}}

	var buf bytes.Buffer
	w := NewCSVWriter(&buf, schema)
	require.NoError(t, w.Flush())
	assert.Equal(t, "Age,Scenario,Implant,Procedure\n", buf.String())
}

func TestWriteJSON(t *testing.T) {
	schema, records := buildDataset(t, rules.VersionClinicalV3, 5, 3)

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, schema, records))

	var rows []map[string]interface{}
	decoder := json.NewDecoder(&buf)
	decoder.UseNumber()
	require.NoError(t, decoder.Decode(&rows))
	require.Len(t, rows, 3)
	assert.Equal(t, string(records[0].Scenario), rows[0]["Scenario"])
	assert.Equal(t, string(records[2].RecommendedProcedure), rows[2]["RecommendedProcedure"])
	assert.NotContains(t, rows[0], "Smoking Status")

	age, ok := rows[1]["Age"].(json.Number)
	require.True(t, ok, "Age should be a JSON number")
	assert.Equal(t, strconv.Itoa(records[1].Age), age.String())

	bmi, ok := rows[1]["BMI"].(json.Number)
	require.True(t, ok, "BMI should be a JSON number")
	assert.Equal(t, records[1].FormatField(domain.FieldBMI), bmi.String())
}

// relabel rebuilds a record from a CSV row and labels it again.
func relabel(t *testing.T, rs *rules.RuleSet, schema domain.TableSchema, row []string) rules.Labels {
	t.Helper()
	var attrs domain.AttributeSet
	for i, f := range schema.Fields {
		if f.IsNumeric() {
			v, err := strconv.ParseFloat(row[i], 64)
			require.NoError(t, err)
			attrs = attrs.WithNumeric(f, v)
			continue
		}
		attrs = attrs.With(f, row[i])
	}
	scenario := domain.Scenario(row[len(schema.Fields)])
	return rs.Label(scenario, attrs)
}

func TestWriteCSV_RowsRelabelToTheirOwnLabels(t *testing.T) {
	// BMI crowds the 30 threshold so rounding mistakes would flip labels.
	overrides := map[string]domain.DistributionConfig{
		"bmi": {Kind: domain.DistUniformReal, Min: 29.5, Max: 30.5, Precision: 1},
	}

	for _, version := range []string{rules.VersionOptimizedV2, rules.VersionClinicalV3} {
		t.Run(version, func(t *testing.T) {
			rs, err := rules.NewRegistry(testLogger()).Get(version)
			require.NoError(t, err)
			plan, err := service.NewPlan(rs, overrides, nil)
			require.NoError(t, err)
			records, err := service.NewDatasetBuilder(plan, testLogger()).Build(context.Background(), 11, 2000)
			require.NoError(t, err)

			var buf bytes.Buffer
			require.NoError(t, WriteCSV(&buf, plan.Schema(), records))
			rows, err := csv.NewReader(&buf).ReadAll()
			require.NoError(t, err)
			require.Len(t, rows, len(records)+1)

			n := len(plan.Schema().Fields)
			for i, row := range rows[1:] {
				labels := relabel(t, rs, plan.Schema(), row)
				require.Equal(t, row[n+1], string(labels.Implant), "row %d implant", i)
				require.Equal(t, row[n+2], string(labels.Procedure), "row %d procedure", i)
			}
		})
	}
}

func TestNewPlan_RejectsPrecisionTheTableCannotShow(t *testing.T) {
	rs, err := rules.NewRegistry(testLogger()).Get(rules.VersionOptimizedV2)
	require.NoError(t, err)

	_, err = service.NewPlan(rs, map[string]domain.DistributionConfig{
		"bmi": {Kind: domain.DistClippedNormal, Mean: 30.03, StdDev: 1e-4, Min: 18.5, Max: 40, Precision: 2},
	}, nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestWrite_UnknownFormat(t *testing.T) {
	err := Write(io.Discard, "parquet", domain.TableSchema{}, nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestManifest_RoundTrip(t *testing.T) {
	schema, records := buildDataset(t, rules.VersionOptimizedV2, 7, 50)
	run := &domain.Run{ID: uuid.New(), RuleSet: rules.VersionOptimizedV2, Seed: 7, Fingerprint: "f00d"}

	m := NewManifest(run, schema, FormatCSV, "x.csv", []byte("payload"), records)
	total := 0
	for _, n := range m.Scenarios {
		total += n
	}
	assert.Equal(t, 50, total)
	assert.Len(t, m.SHA256, 64)

	var buf bytes.Buffer
	require.NoError(t, m.Encode(&buf))
	assert.Contains(t, buf.String(), "rule_set: optimized-v2")

	decoded, err := DecodeManifest(&buf)
	require.NoError(t, err)
	assert.Equal(t, m.RunID, decoded.RunID)
	assert.Equal(t, m.SHA256, decoded.SHA256)
	assert.Equal(t, m.Columns, decoded.Columns)
	assert.Equal(t, m.Scenarios, decoded.Scenarios)
	assert.WithinDuration(t, m.ExportedAt, decoded.ExportedAt, time.Second)
}

func TestPublisher_FileSink(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir)
	require.NoError(t, err)
	pub, err := NewPublisher(sink, FormatCSV, testLogger())
	require.NoError(t, err)

	schema, records := buildDataset(t, rules.VersionOptimizedV2, 3, 10)
	run := &domain.Run{ID: uuid.New(), RuleSet: rules.VersionOptimizedV2, Seed: 3}

	manifest, err := pub.Publish(context.Background(), run, schema, records)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, run.ID.String()+".csv"), manifest.Location)

	data, err := os.ReadFile(manifest.Location)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "Age,Gender,BMI,Activity Level"))

	f, err := os.Open(filepath.Join(dir, run.ID.String()+".manifest.yaml"))
	require.NoError(t, err)
	defer f.Close()
	decoded, err := DecodeManifest(f)
	require.NoError(t, err)
	assert.Equal(t, manifest.SHA256, decoded.SHA256)
	assert.Equal(t, 10, decoded.Records)
}

func TestNewPublisher_RejectsFormat(t *testing.T) {
	_, err := NewPublisher(&FileSink{Dir: t.TempDir()}, "xml", testLogger())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

// recordingTransport accepts S3 PutObject calls and keeps the request paths.
type recordingTransport struct {
	mu     sync.Mutex
	puts   map[string]string
	bodies map[string][]byte
}

func (rt *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if req.Method == http.MethodPut {
		body, _ := io.ReadAll(req.Body)
		rt.puts[req.URL.Path] = req.Header.Get("Content-Type")
		rt.bodies[req.URL.Path] = body
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader(nil)),
			Header:     http.Header{"ETag": {"\"etag\""}},
		}, nil
	}
	return &http.Response{StatusCode: http.StatusNotImplemented, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}, nil
}

func TestPublisher_S3Sink(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIA")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "SECRET")

	rt := &recordingTransport{puts: map[string]string{}, bodies: map[string][]byte{}}
	sink, err := NewS3Sink(context.Background(), domain.S3Config{
		Bucket:    "cohorts",
		Endpoint:  "https://mock.s3.local",
		PathStyle: true,
		Prefix:    "exports",
	}, testLogger(), func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: rt}
		o.RetryMaxAttempts = 1
		o.Region = "us-east-1"
		o.Credentials = aws.AnonymousCredentials{}
	})
	require.NoError(t, err)

	pub, err := NewPublisher(sink, FormatJSON, testLogger())
	require.NoError(t, err)

	schema, records := buildDataset(t, rules.VersionClinicalV3, 9, 4)
	run := &domain.Run{ID: uuid.New(), RuleSet: rules.VersionClinicalV3, Seed: 9}

	manifest, err := pub.Publish(context.Background(), run, schema, records)
	require.NoError(t, err)
	assert.Equal(t, "s3://cohorts/exports/"+run.ID.String()+".json", manifest.Location)

	dataPath := "/cohorts/exports/" + run.ID.String() + ".json"
	assert.Equal(t, "application/json", rt.puts[dataPath])
	assert.Contains(t, string(rt.bodies[dataPath]), "RecommendedImplant")
	assert.Contains(t, rt.puts, "/cohorts/exports/"+run.ID.String()+".manifest.yaml")
}

func TestNewS3Sink_RequiresBucket(t *testing.T) {
	_, err := NewS3Sink(context.Background(), domain.S3Config{}, testLogger())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
