package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dealgen/internal/config"
	"github.com/sells-group/dealgen/internal/dataset"
	"github.com/sells-group/dealgen/internal/engine"
	"github.com/sells-group/dealgen/internal/metrics"
	"github.com/sells-group/dealgen/internal/model"
	"github.com/sells-group/dealgen/internal/registry"
	"github.com/sells-group/dealgen/internal/store"
)

var generateCmd = &cobra.Command{
	Use:   "generate <companies.csv|companies.xlsx>",
	Short: "Generate deals and billing for a company list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyGenerateFlags(cmd, cfg)
		if err := cfg.Validate("generate"); err != nil {
			return err
		}

		save, _ := cmd.Flags().GetBool("save")
		rep, err := generate(ctx, cfg, args[0], save)
		if err != nil {
			return err
		}

		formatReport(os.Stdout, rep)
		return nil
	},
}

func init() {
	f := generateCmd.Flags()
	f.Uint64("seed", 0, "run seed (overrides run.seed)")
	f.Int("concurrency", 0, "max companies simulated at once (overrides run.concurrency)")
	f.String("output", "", "output directory (overrides run.output_dir)")
	f.String("format", "", "output format: csv, json or xlsx (overrides run.format)")
	f.String("snapshot", "", "freeze deals as of YYYY-MM-DD (overrides run.snapshot_date)")
	f.String("sim-config", "", "simulation config YAML (overrides input.simulation_path)")
	f.String("customers", "", "previous-customer list (overrides input.customers_path)")
	f.String("enrichment-cache", "", "directory of <domain>.json enrichment files (overrides input.enrichment_cache_dir)")
	f.String("metrics-textfile", "", "write Prometheus metrics to this file (overrides metrics.textfile_path)")
	f.Bool("save", false, "record the run and its rows in the configured store")
	rootCmd.AddCommand(generateCmd)
}

// applyGenerateFlags copies explicitly set flags over the loaded config.
func applyGenerateFlags(cmd *cobra.Command, c *config.Config) {
	f := cmd.Flags()
	if f.Changed("seed") {
		c.Run.Seed, _ = f.GetUint64("seed")
	}
	if f.Changed("concurrency") {
		c.Run.Concurrency, _ = f.GetInt("concurrency")
	}
	if f.Changed("output") {
		c.Run.OutputDir, _ = f.GetString("output")
	}
	if f.Changed("format") {
		c.Run.Format, _ = f.GetString("format")
	}
	if f.Changed("snapshot") {
		c.Run.SnapshotDate, _ = f.GetString("snapshot")
	}
	if f.Changed("sim-config") {
		c.Input.SimulationPath, _ = f.GetString("sim-config")
	}
	if f.Changed("customers") {
		c.Input.CustomersPath, _ = f.GetString("customers")
	}
	if f.Changed("enrichment-cache") {
		c.Input.EnrichmentCacheDir, _ = f.GetString("enrichment-cache")
	}
	if f.Changed("metrics-textfile") {
		c.Metrics.TextfilePath, _ = f.GetString("metrics-textfile")
	}
}

// generateReport is what a generate run produced.
type generateReport struct {
	RunID    string
	Seed     uint64
	Input    string
	Dropped  int
	Enriched int
	Summary  model.BatchSummary
	Files    []string
	Saved    int64
	Elapsed  time.Duration
}

// generate runs the whole pipeline for one input file.
func generate(ctx context.Context, c *config.Config, input string, save bool) (*generateReport, error) {
	start := time.Now()
	rep := &generateReport{Seed: c.Run.Seed, Input: input}

	sim, err := config.LoadSimulation(c.Input.SimulationPath)
	if err != nil {
		return nil, eris.Wrap(err, "generate: load simulation config")
	}

	var customers *registry.Customers
	if c.Input.CustomersPath != "" {
		if customers, err = registry.LoadCustomersFromFile(c.Input.CustomersPath); err != nil {
			return nil, eris.Wrap(err, "generate: load customers")
		}
	}

	snapshot, err := c.Run.SnapshotTime()
	if err != nil {
		return nil, err
	}

	companies, err := dataset.LoadCompanies(input)
	if err != nil {
		return nil, err
	}
	companies, rep.Dropped = dataset.Dedupe(companies)

	if c.Input.EnrichmentCacheDir != "" {
		if rep.Enriched, err = dataset.NewEnrichmentCache(c.Input.EnrichmentCacheDir).Attach(companies); err != nil {
			return nil, eris.Wrap(err, "generate: attach enrichment")
		}
	}

	rec := metrics.New()
	eng, err := engine.New(sim, engine.Options{
		Seed:        c.Run.Seed,
		Concurrency: c.Run.Concurrency,
		Snapshot:    snapshot,
		Customers:   customers,
		Recorder:    rec,
	})
	if err != nil {
		return nil, err
	}

	var st store.Store
	if save {
		if st, err = initStore(ctx, c.Store); err != nil {
			return nil, err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return nil, err
		}

		run, err := st.CreateRun(ctx, c.Run.Seed, input)
		if err != nil {
			return nil, err
		}
		rep.RunID = run.ID
	}

	if err := produce(ctx, c, eng, companies, st, rep); err != nil {
		if st != nil {
			// The signal context may already be done; the run row still needs closing.
			if ferr := st.FailRun(context.WithoutCancel(ctx), rep.RunID, err.Error()); ferr != nil {
				zap.L().Warn("generate: mark run failed", zap.String("run_id", rep.RunID), zap.Error(ferr))
			}
		}
		return nil, err
	}

	rep.Elapsed = time.Since(start)
	rec.ObserveRun(c.Run.Seed, rep.Elapsed)
	if c.Metrics.TextfilePath != "" {
		if err := rec.WriteTextfile(c.Metrics.TextfilePath); err != nil {
			return nil, err
		}
	}

	zap.L().Info("generate: complete",
		zap.String("run_id", rep.RunID),
		zap.Uint64("seed", c.Run.Seed),
		zap.Int("companies", len(companies)),
		zap.Int("duplicates_dropped", rep.Dropped),
		zap.Duration("elapsed", rep.Elapsed),
	)
	return rep, nil
}

// produce runs the engine, writes the output files and, when st is set,
// stores the results under rep.RunID.
func produce(ctx context.Context, c *config.Config, eng *engine.Engine, companies []model.Company, st store.Store, rep *generateReport) error {
	results, summary, err := eng.Run(ctx, companies)
	if err != nil {
		return err
	}
	rep.Summary = summary

	if rep.Files, err = dataset.Write(c.Run.OutputDir, dataset.Format(c.Run.Format), results, summary); err != nil {
		return err
	}
	if st == nil {
		return nil
	}

	if rep.Saved, err = st.SaveResults(ctx, rep.RunID, results); err != nil {
		return eris.Wrap(err, "generate: save run")
	}
	return eris.Wrap(st.CompleteRun(ctx, rep.RunID, summary), "generate: save run")
}

// formatReport writes the batch summary to w.
func formatReport(out io.Writer, rep *generateReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if rep.RunID != "" {
		_, _ = fmt.Fprintf(w, "Run:\t%s\n", rep.RunID)
	}
	_, _ = fmt.Fprintf(w, "Seed:\t%d\n", rep.Seed)
	_, _ = fmt.Fprintf(w, "Input:\t%s\n", rep.Input)
	_, _ = fmt.Fprintf(w, "Processed:\t%d\n", rep.Summary.Processed)
	_, _ = fmt.Fprintf(w, "Succeeded:\t%d\n", rep.Summary.Succeeded)
	_, _ = fmt.Fprintf(w, "Skipped:\t%d\n", rep.Summary.Skipped)
	if rep.Dropped > 0 {
		_, _ = fmt.Fprintf(w, "Duplicates dropped:\t%d\n", rep.Dropped)
	}
	if rep.Enriched > 0 {
		_, _ = fmt.Fprintf(w, "Enriched from cache:\t%d\n", rep.Enriched)
	}
	for _, o := range model.Outcomes {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", o, rep.Summary.Outcomes[o])
	}
	if rep.Saved > 0 {
		_, _ = fmt.Fprintf(w, "Rows saved:\t%d\n", rep.Saved)
	}
	for _, f := range rep.Files {
		_, _ = fmt.Fprintf(w, "Wrote:\t%s\n", f)
	}
	_, _ = fmt.Fprintf(w, "Elapsed:\t%s\n", rep.Elapsed.Round(time.Millisecond))
	_ = w.Flush()
}
