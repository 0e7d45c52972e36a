package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/user"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"actuarial_valuation/pkg/core/config"
	"actuarial_valuation/pkg/core/ingest"
	"actuarial_valuation/pkg/core/logging"
	"actuarial_valuation/pkg/core/metrics"
	"actuarial_valuation/pkg/core/pipeline"
	"actuarial_valuation/pkg/core/runlog"
	"actuarial_valuation/pkg/core/store"
	"actuarial_valuation/pkg/core/validate"
	"actuarial_valuation/pkg/core/valuation"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Project and value every model point set",
		Long: `Loads the assumption bundle and the model point sets named in the
settings, validates them, and runs one isolated projection per
(model point set, product group). Result tables are written to the output
directory; the batch is recorded in the run log.

Example:
  projector run --config configs/projector.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBatch(cmd.Context(), rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

func newLogger(s *config.Settings, verbose bool, w io.Writer) (*slog.Logger, error) {
	level := s.LogLevel
	if verbose {
		level = "debug"
	}
	return logging.New(logging.Config{Level: level, Format: s.LogFormat, Writer: w})
}

// loadSets reads and validates every model point set, in name order.
func loadSets(s *config.Settings, log *slog.Logger) ([]pipeline.ModelPointSet, error) {
	valDate, err := s.Date()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(s.ModelPoints))
	for name := range s.ModelPoints {
		names = append(names, name)
	}
	sort.Strings(names)

	sets := make([]pipeline.ModelPointSet, 0, len(names))
	for _, name := range names {
		policies, err := ingest.LoadModelPoints(s.ModelPoints[name])
		if err != nil {
			return nil, err
		}
		rep := validate.ModelPoints(policies, valDate)
		for _, issue := range rep.Issues {
			if issue.Severity == validate.SeverityWarning {
				log.Warn("model point warning", "set", name, "policy", issue.PolicyID, "field", issue.Field, "message", issue.Message)
			}
		}
		if err := rep.Err(); err != nil {
			return nil, fmt.Errorf("model point set %s: %w", name, err)
		}
		sets = append(sets, pipeline.ModelPointSet{Name: name, Policies: policies})
	}
	return sets, nil
}

func currentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return os.Getenv("USER")
}

func runBatch(ctx context.Context, opts *RootOptions, out, errOut io.Writer) error {
	s, err := opts.settings()
	if err != nil {
		return err
	}
	log, err := newLogger(s, opts.Verbose, errOut)
	if err != nil {
		return err
	}
	valDate, err := s.Date()
	if err != nil {
		return err
	}

	var bundleOpts []ingest.BundleOption
	if s.RepairBundle {
		bundleOpts = append(bundleOpts, ingest.WithRepair())
	}
	bundle, err := ingest.LoadBundle(s.AssumptionBundle, bundleOpts...)
	if err != nil {
		return err
	}
	sets, err := loadSets(s, log)
	if err != nil {
		return err
	}

	rec := metrics.NewRecorder()
	pipeOpts := []pipeline.Option{
		pipeline.WithLogger(log),
		pipeline.WithParallelism(s.Parallelism),
		pipeline.WithOutput(s.OutputDir, s.Formats...),
		pipeline.WithMetrics(rec),
	}

	if s.RunLogPath != "" {
		runs, err := runlog.Open(s.RunLogPath)
		if err != nil {
			return err
		}
		defer runs.Close()
		pipeOpts = append(pipeOpts, pipeline.WithRunLog(runs))
	}

	if s.DatabaseURL != "" {
		if err := store.InitDB(ctx, s.DatabaseURL, int32(s.Parallelism)); err != nil {
			return err
		}
		defer store.Close()
		repo := store.NewResultRepo(store.GetPool())
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		pipeOpts = append(pipeOpts, pipeline.WithRepository(repo))
	}

	inputs := map[string]string{"settings": opts.ConfigPath, "bundle": s.AssumptionBundle}
	for name, path := range s.ModelPoints {
		inputs["model_points."+name] = path
	}

	res, runErr := pipeline.NewOrchestrator(pipeOpts...).Run(ctx, pipeline.Batch{
		ValuationDate:  valDate,
		HorizonYears:   s.HorizonYears,
		Products:       s.Products,
		Bundle:         bundle,
		Sets:           sets,
		SnapshotPeriod: s.SnapshotPeriod,
		User:           currentUser(),
		Inputs:         inputs,
	})

	if s.MetricsTextfile != "" {
		if err := rec.WriteTextfile(s.MetricsTextfile); err != nil {
			log.Error("metrics not written", "error", err)
		}
	}
	if runErr != nil {
		return runErr
	}

	printResults(out, res)
	return nil
}

func printResults(w io.Writer, res *pipeline.BatchResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tPOLICIES\tBEL\tRA\tRI BEL\tCHECKS")
	for _, r := range res.Runs {
		bel, _ := r.Summary.Item(valuation.CellBEL)
		ra, _ := r.Summary.Item(valuation.CellRA)
		ri, _ := r.Summary.Item(valuation.CellRIBEL)
		checks := "ok"
		if !r.Reconciliation.AllPassed {
			checks = fmt.Sprintf("%d failed", len(r.Reconciliation.FailedChecks))
		}
		fmt.Fprintf(tw, "%s/%s\t%d\t%.2f\t%.2f\t%.2f\t%s\n",
			r.Set, r.Product, r.Summary.Policies, bel.Value, ra.Value, ri.Value, checks)
	}
	tw.Flush()
	for _, s := range res.Skipped {
		fmt.Fprintf(w, "skipped %s (no policies)\n", s)
	}
	fmt.Fprintf(w, "run %s", res.RunID)
	if res.OutputDir != "" {
		fmt.Fprintf(w, " written to %s", res.OutputDir)
	}
	fmt.Fprintln(w)
}
