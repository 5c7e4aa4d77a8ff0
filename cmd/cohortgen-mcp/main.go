// Package main provides the stdio MCP entry point for the cohort generator.
// It needs no external services: runs are kept in SQLite under the data
// directory and datasets are cached in memory.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/ortho-cohortgen/internal/cache"
	"github.com/ortho-cohortgen/internal/config"
	"github.com/ortho-cohortgen/internal/export"
	"github.com/ortho-cohortgen/internal/mcp"
	"github.com/ortho-cohortgen/internal/rules"
	"github.com/ortho-cohortgen/internal/service"
	"github.com/ortho-cohortgen/internal/setup"
	"github.com/ortho-cohortgen/internal/store"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "setup" {
		if err := setup.NewCLI(os.Stdin, os.Stdout).Run(os.Args[2:]); err != nil {
			logrus.Fatalf("Setup failed: %v", err)
		}
		return
	}

	cfg := config.LoadLiteConfig()
	// stdout carries the protocol
	logger := config.NewLogger(cfg.LoggingConfig(), os.Stderr)

	if err := cfg.EnsureDataDir(); err != nil {
		logger.WithError(err).Fatal("Failed to create data directory")
	}
	logger.WithFields(logrus.Fields{
		"data_dir": cfg.DataDir,
		"rule_set": cfg.RuleSet,
	}).Info("Starting cohortgen MCP server")

	runs, err := store.NewSQLiteStore(cfg.RunStorePath(), logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open run store")
	}
	defer runs.Close()

	datasets, err := cache.NewDatasetCache(cfg.CacheConfig(), nil, nil, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create dataset cache")
	}
	defer datasets.Close()

	sink, err := export.NewFileSink(cfg.ExportDir())
	if err != nil {
		logger.WithError(err).Fatal("Failed to prepare export directory")
	}
	publisher, err := export.NewPublisher(sink, export.FormatCSV, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create publisher")
	}

	svc := service.NewCohortService(rules.NewRegistry(logger), logger, service.CohortServiceConfig{
		Store:      runs,
		Cache:      datasets,
		MaxSamples: cfg.MaxSamples,
	})
	server := mcp.NewServer(svc, mcp.Config{
		RuleSet:    cfg.RuleSet,
		MaxSamples: cfg.MaxSamples,
	}, logger, mcp.WithPublisher(publisher))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil && ctx.Err() == nil {
		logger.WithError(err).Error("MCP server failed")
		return
	}
	logger.Info("cohortgen MCP server stopped")
}
