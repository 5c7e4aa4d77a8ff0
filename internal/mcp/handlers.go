package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/ortho-cohortgen/internal/domain"
	"github.com/ortho-cohortgen/internal/export"
	"github.com/ortho-cohortgen/internal/rules"
	"github.com/ortho-cohortgen/internal/service"
)

const (
	defaultPreviewRows = 5
	maxPreviewRows     = 100
)

// GenerateCohortParams defines parameters for the generate_cohort tool
type GenerateCohortParams struct {
	RuleSet     string                               `json:"rule_set,omitempty"`
	Seed        *int64                               `json:"seed,omitempty"`
	NumSamples  int                                  `json:"num_samples"`
	BatchSize   int                                  `json:"batch_size,omitempty"`
	Workers     int                                  `json:"workers,omitempty"`
	Attributes  map[string]domain.DistributionConfig `json:"attributes,omitempty"`
	Scenarios   []domain.ScenarioWeight              `json:"scenarios,omitempty"`
	Persist     bool                                 `json:"persist,omitempty"`
	Export      bool                                 `json:"export,omitempty"`
	Format      string                               `json:"format,omitempty"`
	PreviewRows *int                                 `json:"preview_rows,omitempty"`
}

// GenerateCohortResult defines the result structure for the generate_cohort tool
type GenerateCohortResult struct {
	Run       *domain.Run         `json:"run"`
	Columns   []string            `json:"columns"`
	Cached    bool                `json:"cached"`
	Scenarios map[string]int      `json:"scenario_counts"`
	Implants  map[string]int      `json:"implant_counts"`
	Preview   []domain.CaseRecord `json:"preview,omitempty"`
	Manifest  *export.Manifest    `json:"manifest,omitempty"`
}

// RecommendTreatmentParams defines parameters for the recommend_treatment tool
type RecommendTreatmentParams struct {
	RuleSet    string              `json:"rule_set,omitempty"`
	Scenario   domain.Scenario     `json:"scenario"`
	Attributes domain.AttributeSet `json:"attributes"`
}

// ListRuleSetsParams defines parameters for the list_rule_sets tool
type ListRuleSetsParams struct {
	Version string `json:"version,omitempty"`
}

// ListRuleSetsResult defines the result structure for the list_rule_sets tool
type ListRuleSetsResult struct {
	Default  string          `json:"default"`
	RuleSets []rules.Summary `json:"rule_sets"`
}

// GetCohortRunParams defines parameters for the get_cohort_run tool
type GetCohortRunParams struct {
	RunID       string `json:"run_id"`
	PreviewRows *int   `json:"preview_rows,omitempty"`
}

// GetCohortRunResult defines the result structure for the get_cohort_run tool
type GetCohortRunResult struct {
	Run     *domain.Run         `json:"run"`
	Columns []string            `json:"columns"`
	Preview []domain.CaseRecord `json:"preview,omitempty"`
}

// handleGenerateCohort handles the generate_cohort tool invocation
func (s *Server) handleGenerateCohort(ctx context.Context, _ *mcp.CallToolRequest, params GenerateCohortParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{
		"tool":        ToolGenerateCohort,
		"rule_set":    params.RuleSet,
		"num_samples": params.NumSamples,
	}).Info("Tool invoked")

	req := service.ResolveRequest(service.GenerateRequest{
		RuleSet:    params.RuleSet,
		NumSamples: params.NumSamples,
		BatchSize:  params.BatchSize,
		Workers:    params.Workers,
		Attributes: params.Attributes,
		Scenarios:  params.Scenarios,
		Persist:    params.Persist,
	}, params.Seed, s.cfg.Defaults)
	if s.cfg.MaxSamples > 0 && req.NumSamples > s.cfg.MaxSamples {
		return s.createErrorResult("Invalid parameters",
			domain.NewConfigurationError("num_samples", fmt.Sprintf("%d exceeds the limit of %d", req.NumSamples, s.cfg.MaxSamples))), nil, nil
	}
	if params.Export && s.publisher == nil {
		return s.createErrorResult("Export unavailable", domain.NewConfigurationError("export", "no export destination configured")), nil, nil
	}

	result, err := s.service.Generate(ctx, req)
	if err != nil {
		return s.createErrorResult("Generation failed", err), nil, nil
	}

	out := GenerateCohortResult{
		Run:       result.Run,
		Columns:   result.Schema.Columns,
		Cached:    result.Cached,
		Scenarios: make(map[string]int),
		Implants:  make(map[string]int),
		Preview:   preview(result.Records, params.PreviewRows),
	}
	for _, r := range result.Records {
		out.Scenarios[string(r.Scenario)]++
		out.Implants[string(r.RecommendedImplant)]++
	}

	if params.Export {
		publisher := s.publisher
		if params.Format != "" {
			if publisher, err = publisher.WithFormat(params.Format); err != nil {
				return s.createErrorResult("Invalid parameters", err), nil, nil
			}
		}
		manifest, err := publisher.Publish(ctx, result.Run, result.Schema, result.Records)
		if err != nil {
			return s.createErrorResult("Export failed", err), nil, nil
		}
		out.Manifest = manifest
	}

	summary := fmt.Sprintf("Generated %d %s cases (seed %d, run %s)",
		result.Run.RecordCount, result.Run.RuleSet, result.Run.Seed, result.Run.ID)
	return s.createJSONResult(summary, out), nil, nil
}

// handleRecommendTreatment handles the recommend_treatment tool invocation
func (s *Server) handleRecommendTreatment(_ context.Context, _ *mcp.CallToolRequest, params RecommendTreatmentParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{
		"tool":     ToolRecommendTreatment,
		"scenario": params.Scenario,
	}).Info("Tool invoked")

	if params.Scenario == "" {
		return s.createErrorResult("Missing required parameter", fmt.Errorf("scenario is required")), nil, nil
	}
	if params.RuleSet == "" {
		params.RuleSet = s.cfg.RuleSet
	}

	rec, err := s.service.Recommend(params.RuleSet, params.Scenario, params.Attributes)
	if err != nil {
		return s.createErrorResult("Recommendation failed", err), nil, nil
	}

	summary := fmt.Sprintf("%s: %s with %s", rec.Scenario, rec.Implant, rec.Procedure)
	return s.createJSONResult(summary, rec), nil, nil
}

// handleListRuleSets handles the list_rule_sets tool invocation
func (s *Server) handleListRuleSets(_ context.Context, _ *mcp.CallToolRequest, params ListRuleSetsParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolListRuleSets).Info("Tool invoked")

	registry := s.service.Registry()
	versions := registry.Versions()
	if params.Version != "" {
		versions = []string{params.Version}
	}

	out := ListRuleSetsResult{Default: rules.DefaultVersion}
	for _, v := range versions {
		rs, err := registry.Get(v)
		if err != nil {
			return s.createErrorResult("Unknown rule set", err), nil, nil
		}
		out.RuleSets = append(out.RuleSets, rs.Summarize())
	}

	return s.createJSONResult(fmt.Sprintf("%d rule set(s)", len(out.RuleSets)), out), nil, nil
}

// handleGetCohortRun handles the get_cohort_run tool invocation
func (s *Server) handleGetCohortRun(ctx context.Context, _ *mcp.CallToolRequest, params GetCohortRunParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithFields(logrus.Fields{
		"tool":   ToolGetCohortRun,
		"run_id": params.RunID,
	}).Info("Tool invoked")

	id, err := uuid.Parse(params.RunID)
	if err != nil {
		return s.createErrorResult("Invalid parameters", fmt.Errorf("run_id must be a UUID: %w", err)), nil, nil
	}

	run, records, schema, err := s.service.Records(ctx, id)
	if err != nil {
		return s.createErrorResult("Run lookup failed", err), nil, nil
	}

	out := GetCohortRunResult{Run: run, Columns: schema.Columns, Preview: preview(records, params.PreviewRows)}
	summary := fmt.Sprintf("Run %s: %d %s cases", run.ID, run.RecordCount, run.RuleSet)
	return s.createJSONResult(summary, out), nil, nil
}

func preview(records []domain.CaseRecord, rows *int) []domain.CaseRecord {
	n := defaultPreviewRows
	if rows != nil {
		n = *rows
	}
	if n > maxPreviewRows {
		n = maxPreviewRows
	}
	if n <= 0 {
		return nil
	}
	if n > len(records) {
		n = len(records)
	}
	return records[:n]
}

// createJSONResult renders a one-line summary followed by the JSON payload.
func (s *Server) createJSONResult(summary string, payload interface{}) *mcp.CallToolResult {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return s.createErrorResult("Failed to encode result", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: summary},
			&mcp.TextContent{Text: string(data)},
		},
	}
}

// createErrorResult creates a standardized error result for tool calls
func (s *Server) createErrorResult(message string, err error) *mcp.CallToolResult {
	errorText := fmt.Sprintf("Error: %s", message)
	if err != nil {
		errorText += fmt.Sprintf(" - [%s] %v", domain.CodeOf(err), err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: errorText},
		},
		IsError: true,
	}
}
