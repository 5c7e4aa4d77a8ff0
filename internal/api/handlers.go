package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ortho-cohortgen/internal/domain"
	"github.com/ortho-cohortgen/internal/export"
	"github.com/ortho-cohortgen/internal/middleware"
	"github.com/ortho-cohortgen/internal/rules"
	"github.com/ortho-cohortgen/internal/service"
)

// RecommendationRequest is the body of POST /api/v1/recommendations.
type RecommendationRequest struct {
	RuleSet    string              `json:"rule_set"`
	Scenario   domain.Scenario     `json:"scenario" binding:"required"`
	Attributes domain.AttributeSet `json:"attributes"`
}

// DatasetRequest is the body of POST /api/v1/datasets. Unset fields come
// from the server's generator configuration; a missing seed uses the
// configured one while an explicit 0 is honoured.
type DatasetRequest struct {
	RuleSet    string                               `json:"rule_set"`
	Seed       *int64                               `json:"seed"`
	NumSamples int                                  `json:"num_samples"`
	BatchSize  int                                  `json:"batch_size"`
	Workers    int                                  `json:"workers"`
	Attributes map[string]domain.DistributionConfig `json:"attributes"`
	Scenarios  []domain.ScenarioWeight              `json:"scenarios"`
	Persist    bool                                 `json:"persist"`
}

// DatasetResponse describes a generated dataset. Records are only included
// when asked for.
type DatasetResponse struct {
	Run     *domain.Run         `json:"run"`
	Schema  domain.TableSchema  `json:"schema"`
	Cached  bool                `json:"cached"`
	Records []domain.CaseRecord `json:"records,omitempty"`
}

func (s *Server) handleListRuleSets(c *gin.Context) {
	registry := s.service.Registry()
	summaries := make([]rules.Summary, 0, len(registry.Versions()))
	for _, v := range registry.Versions() {
		rs, err := registry.Get(v)
		if err != nil {
			s.fail(c, err)
			return
		}
		summaries = append(summaries, rs.Summarize())
	}
	c.JSON(http.StatusOK, gin.H{"rule_sets": summaries})
}

func (s *Server) handleGetRuleSet(c *gin.Context) {
	rs, err := s.service.Registry().Get(c.Param("version"))
	if err != nil {
		middleware.Abort(c, http.StatusNotFound, domain.ErrCodeNotFound, err.Error(), "")
		return
	}
	c.JSON(http.StatusOK, rs.Summarize())
}

func (s *Server) handleRecommend(c *gin.Context) {
	var req RecommendationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Abort(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid request body", err.Error())
		return
	}
	if req.RuleSet == "" {
		req.RuleSet = s.defaults.RuleSet
	}

	rec, err := s.service.Recommend(req.RuleSet, req.Scenario, req.Attributes)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleGenerate(c *gin.Context) {
	var body DatasetRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		middleware.Abort(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid request body", err.Error())
		return
	}
	req := service.ResolveRequest(service.GenerateRequest{
		RuleSet:    body.RuleSet,
		NumSamples: body.NumSamples,
		BatchSize:  body.BatchSize,
		Workers:    body.Workers,
		Attributes: body.Attributes,
		Scenarios:  body.Scenarios,
		Persist:    body.Persist,
	}, body.Seed, s.defaults)

	format := c.Query("format")
	if format != "" && format != export.FormatCSV && format != export.FormatJSON {
		middleware.Abort(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "format must be csv or json", "")
		return
	}
	if s.cfg.MaxSamples > 0 && req.NumSamples > s.cfg.MaxSamples {
		middleware.Abort(c, http.StatusBadRequest, domain.ErrCodeConfiguration, "num_samples exceeds the server limit", strconv.Itoa(s.cfg.MaxSamples))
		return
	}

	result, err := s.service.Generate(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.Header("X-Run-ID", result.Run.ID.String())
	if format != "" {
		s.writeDataset(c, format, result.Schema, result.Records)
		return
	}

	resp := DatasetResponse{Run: result.Run, Schema: result.Schema, Cached: result.Cached}
	if c.Query("include_records") == "true" {
		resp.Records = result.Records
	}
	status := http.StatusOK
	if req.Persist {
		status = http.StatusCreated
	}
	c.JSON(status, resp)
}

func (s *Server) handleListRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	runs, err := s.service.ListRuns(c.Request.Context(), limit, offset)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

func (s *Server) handleGetRun(c *gin.Context) {
	id, ok := s.runID(c)
	if !ok {
		return
	}
	run, err := s.service.GetRun(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (s *Server) handleGetRecords(c *gin.Context) {
	id, ok := s.runID(c)
	if !ok {
		return
	}
	format := c.DefaultQuery("format", export.FormatCSV)
	if format != export.FormatCSV && format != export.FormatJSON {
		middleware.Abort(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "format must be csv or json", "")
		return
	}

	run, records, schema, err := s.service.Records(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("X-Run-ID", run.ID.String())
	s.writeDataset(c, format, schema, records)
}

func (s *Server) writeDataset(c *gin.Context, format string, schema domain.TableSchema, records []domain.CaseRecord) {
	var buf bytes.Buffer
	if err := export.Write(&buf, format, schema, records); err != nil {
		s.fail(c, err)
		return
	}
	c.Data(http.StatusOK, export.ContentType(format), buf.Bytes())
}

func (s *Server) runID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		middleware.Abort(c, http.StatusBadRequest, domain.ErrCodeInvalidInput, "invalid run id", err.Error())
		return uuid.Nil, false
	}
	return id, true
}

// fail maps service errors onto HTTP statuses.
func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		middleware.Abort(c, status, domain.ErrCodeInternal, "internal error", "")
		return
	}
	middleware.Abort(c, status, domain.CodeOf(err), err.Error(), "")
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrDomainViolation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
