package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ortho-cohortgen/internal/domain"
	"github.com/ortho-cohortgen/internal/store"
)

func newMigrationRunner(cfg domain.StorageConfig, logger *logrus.Logger) (*store.MigrationRunner, error) {
	if cfg.PostgresURL == "" {
		return nil, domain.NewConfigurationError("storage.postgres_url", "URL is required for migrations")
	}
	return store.NewMigrationRunner(cfg.PostgresURL, cfg.MigrationsPath, logger)
}

func migrateUp(ctx context.Context, cfg domain.StorageConfig, logger *logrus.Logger) error {
	runner, err := newMigrationRunner(cfg, logger)
	if err != nil {
		return err
	}
	defer runner.Close()
	return runner.Up(ctx)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the PostgreSQL run store schema",
	}

	withRunner := func(fn func(*cobra.Command, *store.MigrationRunner) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), configFile, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()
			runner, err := newMigrationRunner(a.cfg.Storage, a.logger)
			if err != nil {
				return err
			}
			defer runner.Close()
			return fn(cmd, runner)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: withRunner(func(cmd *cobra.Command, r *store.MigrationRunner) error {
			return r.Up(cmd.Context())
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		RunE: withRunner(func(cmd *cobra.Command, r *store.MigrationRunner) error {
			return r.Down(cmd.Context())
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: withRunner(func(cmd *cobra.Command, r *store.MigrationRunner) error {
			version, dirty, err := r.Version()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty=%t)\n", version, dirty)
			return nil
		}),
	})
	return cmd
}

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect and move persisted runs",
	}

	withStore := func(fn func(*cobra.Command, []string, *app) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), configFile, appOptions{withStore: true})
			if err != nil {
				return err
			}
			defer a.Close()
			if a.store == nil {
				return domain.NewConfigurationError("storage.driver", "no run store configured")
			}
			return fn(cmd, args, a)
		}
	}

	var limit, offset int
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		RunE: withStore(func(cmd *cobra.Command, _ []string, a *app) error {
			runs, err := a.service.ListRuns(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tRULE SET\tSEED\tRECORDS\tCREATED")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", r.ID, r.RuleSet, r.Seed, r.RecordCount, r.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		}),
	}
	list.Flags().IntVar(&limit, "limit", 50, "maximum runs to list")
	list.Flags().IntVar(&offset, "offset", 0, "runs to skip")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "export FILE",
		Short: "Write all runs and their records to a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, args []string, a *app) error {
			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", args[0], err)
			}
			defer f.Close()
			if err := store.ExportJSON(cmd.Context(), a.store, f); err != nil {
				return err
			}
			a.logger.WithField("file", args[0]).Info("Exported runs")
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "import FILE",
		Short: "Restore runs from a JSON export, skipping existing ids",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, args []string, a *app) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()
			imported, skipped, err := store.ImportJSON(cmd.Context(), a.store, f)
			if err != nil {
				return err
			}
			a.logger.WithFields(logrus.Fields{
				"imported": imported,
				"skipped":  skipped,
			}).Info("Imported runs")
			return nil
		}),
	})
	return cmd
}
