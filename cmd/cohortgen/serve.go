package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ortho-cohortgen/internal/api"
	"github.com/ortho-cohortgen/internal/config"
	"github.com/ortho-cohortgen/internal/domain"
	"github.com/ortho-cohortgen/internal/store"
)

func serveCmd() *cobra.Command {
	var runMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if runMigrations {
				if err := migrateBeforeServe(ctx); err != nil {
					return err
				}
			}

			a, err := newApp(ctx, configFile, appOptions{withStore: true, withCache: true})
			if err != nil {
				return err
			}
			defer a.Close()

			a.manager.Watch(a.logger, func(cfg *domain.Config) {
				level, err := logrus.ParseLevel(cfg.Logging.Level)
				if err != nil {
					return
				}
				a.logger.SetLevel(level)
				a.logger.WithField("level", level.String()).Info("Applied reloaded log level")
			})

			a.logger.WithFields(logrus.Fields{
				"pid":       os.Getpid(),
				"rule_set":  a.cfg.Generator.RuleSet,
				"storage":   a.cfg.Storage.Driver,
				"redis":     a.cfg.Cache.RedisURL != "",
				"s3_bucket": a.cfg.Export.S3.Bucket,
			}).Info("Starting cohortgen server")

			server := api.NewServer(a.service, a.cfg.Server, a.logger,
				api.WithGatherer(prometheus.DefaultGatherer),
				api.WithDefaults(a.cfg.Generator),
			)
			if err := server.Start(ctx); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			a.logger.Info("Server stopped")
			return nil
		},
	}

	cmd.Flags().BoolVar(&runMigrations, "migrate", false, "apply PostgreSQL migrations before serving")
	return cmd
}

// migrateBeforeServe applies migrations from a standalone config load so the
// app is only wired once the schema exists.
func migrateBeforeServe(ctx context.Context) error {
	manager, err := config.NewManager(configFile)
	if err != nil {
		return err
	}
	cfg := manager.GetConfig()
	if cfg.Storage.Driver != store.DriverPostgres {
		return domain.NewConfigurationError("storage.driver", "--migrate requires the postgres driver")
	}
	logger := config.NewLogger(cfg.Logging, os.Stderr)
	return migrateUp(ctx, cfg.Storage, logger)
}
