package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ortho-cohortgen/internal/domain"
	"github.com/ortho-cohortgen/internal/export"
	"github.com/ortho-cohortgen/internal/rules"
	"github.com/ortho-cohortgen/internal/service"
)

func generateCmd() *cobra.Command {
	var (
		ruleSet   string
		seed      int64
		samples   int
		batchSize int
		workers   int
		format    string
		out       string
		persist   bool
		publish   bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a labelled synthetic cohort",
		Long: `Generate draws patients and scenarios from the configured distributions,
labels each case with the rule set and writes the table as CSV or JSON.
Equal seeds and configuration give byte-identical output.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, configFile, appOptions{withStore: persist})
			if err != nil {
				return err
			}
			defer a.Close()

			var req service.GenerateRequest
			var seedOverride *int64
			flags := cmd.Flags()
			if flags.Changed("rule-set") {
				req.RuleSet = ruleSet
			}
			if flags.Changed("seed") {
				seedOverride = &seed
			}
			if flags.Changed("samples") {
				req.NumSamples = samples
			}
			if flags.Changed("batch-size") {
				req.BatchSize = batchSize
			}
			if flags.Changed("workers") {
				req.Workers = workers
			}
			req = service.ResolveRequest(req, seedOverride, a.cfg.Generator)
			req.Persist = persist
			if format == "" {
				format = a.cfg.Export.Format
			}

			result, err := a.service.Generate(ctx, req)
			if err != nil {
				return err
			}

			if publish {
				pub, err := a.publisher(ctx, format)
				if err != nil {
					return err
				}
				manifest, err := pub.Publish(ctx, result.Run, result.Schema, result.Records)
				if err != nil {
					return err
				}
				return manifest.Encode(cmd.OutOrStdout())
			}

			w, err := openOutput(cmd.OutOrStdout(), out)
			if err != nil {
				return err
			}
			defer w.Close()
			if err := export.Write(w, format, result.Schema, result.Records); err != nil {
				return err
			}

			a.logger.WithFields(logrus.Fields{
				"run_id":  result.Run.ID,
				"records": len(result.Records),
				"output":  outputName(out),
			}).Info("Wrote dataset")
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&ruleSet, "rule-set", "", "rule set version (optimized-v2, clinical-v3)")
	flags.Int64Var(&seed, "seed", 0, "generator seed")
	flags.IntVarP(&samples, "samples", "n", 0, "number of cases")
	flags.IntVar(&batchSize, "batch-size", 0, "generate in independently seeded batches of this size")
	flags.IntVar(&workers, "workers", 0, "parallel batch workers")
	flags.StringVarP(&format, "format", "f", "", "output format: csv or json")
	flags.StringVarP(&out, "out", "o", "-", "output file, - for stdout")
	flags.BoolVar(&persist, "persist", false, "store the run in the configured run store")
	flags.BoolVar(&publish, "publish", false, "publish dataset and manifest to the export directory or S3 bucket")
	return cmd
}

func outputName(out string) string {
	if out == "" || out == "-" {
		return "stdout"
	}
	return out
}

func recommendCmd() *cobra.Command {
	var (
		ruleSet  string
		scenario string
		attrs    domain.AttributeSet
	)

	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Recommend implant and procedure for one patient",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), configFile, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			if ruleSet == "" {
				ruleSet = a.cfg.Generator.RuleSet
			}
			rec, err := a.service.Recommend(ruleSet, domain.Scenario(scenario), attrs)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&ruleSet, "rule-set", "", "rule set version")
	flags.StringVar(&scenario, "scenario", "", "clinical scenario")
	flags.IntVar(&attrs.Age, "age", 0, "age in years")
	flags.StringVar(&attrs.Gender, "gender", "", "gender")
	flags.Float64Var(&attrs.BMI, "bmi", 0, "body mass index")
	flags.StringVar(&attrs.ActivityLevel, "activity", "", "activity level")
	flags.StringVar(&attrs.Comorbidity, "comorbidity", "None", "comorbidity")
	flags.StringVar(&attrs.SmokingStatus, "smoking", "", "smoking status (optimized-v2)")
	flags.StringVar(&attrs.AlcoholUse, "alcohol", "", "alcohol use (optimized-v2)")
	flags.StringVar(&attrs.Deformity, "deformity", "None", "deformity")
	flags.StringVar(&attrs.BoneQuality, "bone-quality", "Normal", "bone quality")
	_ = cmd.MarkFlagRequired("scenario")
	return cmd
}

func ruleSetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rulesets [version]",
		Short: "Describe the available rule sets",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), configFile, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			versions := a.registry.Versions()
			if len(args) == 1 {
				versions = args
			}
			var summaries []rules.Summary
			for _, v := range versions {
				rs, err := a.registry.Get(v)
				if err != nil {
					return err
				}
				summaries = append(summaries, rs.Summarize())
			}
			return printJSON(cmd.OutOrStdout(), summaries)
		},
	}
}
