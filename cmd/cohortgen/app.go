package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/ortho-cohortgen/internal/cache"
	"github.com/ortho-cohortgen/internal/config"
	"github.com/ortho-cohortgen/internal/domain"
	"github.com/ortho-cohortgen/internal/export"
	"github.com/ortho-cohortgen/internal/metrics"
	"github.com/ortho-cohortgen/internal/rules"
	"github.com/ortho-cohortgen/internal/service"
	"github.com/ortho-cohortgen/internal/store"
)

// app holds the wired components shared by the subcommands.
type app struct {
	manager  *config.Manager
	cfg      *domain.Config
	logger   *logrus.Logger
	registry *rules.Registry
	metrics  *metrics.Collector
	store    domain.RunRepository
	cache    *cache.DatasetCache
	service  *service.CohortService
}

type appOptions struct {
	withStore bool
	withCache bool
}

func newApp(ctx context.Context, configFile string, opts appOptions) (*app, error) {
	manager, err := config.NewManager(configFile)
	if err != nil {
		return nil, err
	}
	if err := manager.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	cfg := manager.GetConfig()

	a := &app{
		manager: manager,
		cfg:     cfg,
		logger:  config.NewLogger(cfg.Logging, os.Stderr),
		metrics: metrics.NewCollector(prometheus.DefaultRegisterer),
	}
	a.registry = rules.NewRegistry(a.logger)
	if file := manager.ConfigFileUsed(); file != "" {
		a.logger.WithField("file", file).Debug("Loaded configuration file")
	}

	if opts.withStore {
		a.store, err = store.Open(ctx, cfg.Storage, a.logger)
		if err != nil {
			return nil, err
		}
	}

	if opts.withCache {
		var remote *cache.RedisTier
		if cfg.Cache.RedisURL != "" {
			remote, err = cache.NewRedisTier(cfg.Cache, a.logger)
			if err != nil {
				a.Close()
				return nil, err
			}
			if err := remote.Ping(ctx); err != nil {
				a.logger.WithError(err).Warn("Redis unavailable, continuing with the memory cache")
			}
		}
		a.cache, err = cache.NewDatasetCache(cfg.Cache, remote, a.metrics, a.logger)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	svcCfg := service.CohortServiceConfig{
		Store:      a.store,
		Metrics:    a.metrics,
		MaxSamples: cfg.Server.MaxSamples,
	}
	if a.cache != nil {
		svcCfg.Cache = a.cache
	}
	a.service = service.NewCohortService(a.registry, a.logger, svcCfg)
	return a, nil
}

// publisher writes to S3 when a bucket is configured, else to the export dir.
func (a *app) publisher(ctx context.Context, format string) (*export.Publisher, error) {
	var sink export.Sink
	if a.cfg.Export.S3.Bucket != "" {
		s3Sink, err := export.NewS3Sink(ctx, a.cfg.Export.S3, a.logger)
		if err != nil {
			return nil, err
		}
		sink = s3Sink
	} else {
		fileSink, err := export.NewFileSink(a.cfg.Export.Dir)
		if err != nil {
			return nil, err
		}
		sink = fileSink
	}
	if format == "" {
		format = a.cfg.Export.Format
	}
	return export.NewPublisher(sink, format, a.logger)
}

func (a *app) Close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close cache")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close run store")
		}
	}
}
