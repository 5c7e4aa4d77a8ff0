// Package mcp exposes cohort generation and treatment recommendation as
// Model Context Protocol tools.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/ortho-cohortgen/internal/domain"
	"github.com/ortho-cohortgen/internal/export"
	"github.com/ortho-cohortgen/internal/service"
)

// Tool names
const (
	ToolGenerateCohort     = "generate_cohort"
	ToolRecommendTreatment = "recommend_treatment"
	ToolListRuleSets       = "list_rule_sets"
	ToolGetCohortRun       = "get_cohort_run"
)

// Config configures the MCP server.
type Config struct {
	Name       string
	Version    string
	RuleSet    string // default when a call omits rule_set
	MaxSamples int
	// Defaults fills whatever a generate_cohort call leaves unset.
	Defaults domain.GeneratorConfig
}

// Server represents the cohort generator MCP server
type Server struct {
	cfg       Config
	mcpServer *mcp.Server
	service   *service.CohortService
	publisher *export.Publisher
	logger    *logrus.Logger
}

// ServerOption is a functional option for Server.
type ServerOption func(*Server)

// WithPublisher enables the export flag of generate_cohort.
func WithPublisher(p *export.Publisher) ServerOption {
	return func(s *Server) {
		s.publisher = p
	}
}

// NewServer creates a new MCP server instance with all tools registered.
func NewServer(svc *service.CohortService, cfg Config, logger *logrus.Logger, opts ...ServerOption) *Server {
	if cfg.Name == "" {
		cfg.Name = "cohortgen"
	}
	if cfg.Version == "" {
		cfg.Version = "v1.0.0"
	}
	if cfg.Defaults.RuleSet == "" {
		cfg.Defaults.RuleSet = cfg.RuleSet
	}

	s := &Server{
		cfg:     cfg,
		service: svc,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcpServer = mcp.NewServer(&mcp.Implementation{Name: cfg.Name, Version: cfg.Version}, nil)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	versions := s.service.Registry().Versions()

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolGenerateCohort,
		Description: "Generate a reproducible synthetic cohort of knee-implant cases labelled with recommended implant and procedure.",
		InputSchema: generateCohortSchema(versions),
	}, s.handleGenerateCohort)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolRecommendTreatment,
		Description: "Recommend an implant and surgical procedure for one patient and clinical scenario.",
		InputSchema: recommendTreatmentSchema(versions),
	}, s.handleRecommendTreatment)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolListRuleSets,
		Description: "Describe the available rule sets: columns, scenario weights and ordered decision branches.",
		InputSchema: listRuleSetsSchema(versions),
	}, s.handleListRuleSets)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolGetCohortRun,
		Description: "Fetch a stored cohort run and optionally preview its records.",
		InputSchema: getCohortRunSchema(),
	}, s.handleGetCohortRun)

	s.logger.WithField("tool_count", 4).Info("Registered MCP tools")
}

// Start serves MCP over stdio until ctx is cancelled or the client leaves.
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithFields(logrus.Fields{
		"name":    s.cfg.Name,
		"version": s.cfg.Version,
	}).Info("Starting MCP server on stdio")

	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}
