// Package pipeline runs batches of projections: every (model point set,
// product) pair gets its own graph and cache, runs are executed in
// parallel, and the results are exported, persisted and logged.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"actuarial_valuation/pkg/core/assumption"
	"actuarial_valuation/pkg/core/population"
	"actuarial_valuation/pkg/core/projection"
	"actuarial_valuation/pkg/core/report"
	"actuarial_valuation/pkg/core/runlog"
	"actuarial_valuation/pkg/core/store"
	"actuarial_valuation/pkg/core/validate"
	"actuarial_valuation/pkg/core/valuation"
)

// ResultRepository persists run results.
type ResultRepository interface {
	Save(ctx context.Context, res store.Result) error
}

// RunLogger records the history of batches.
type RunLogger interface {
	Create(rec runlog.Record) error
}

// MetricsRecorder observes cell evaluations and finished runs.
type MetricsRecorder interface {
	projection.Observer
	ObserveRun(product, status string, d time.Duration, policies int)
}

// ModelPointSet is one named model point file.
type ModelPointSet struct {
	Name     string
	Policies []population.Policy
}

// Batch is the input of Orchestrator.Run.
type Batch struct {
	ValuationDate  time.Time
	HorizonYears   int
	Products       []string
	Bundle         *assumption.Bundle
	Sets           []ModelPointSet
	SnapshotPeriod int

	// Run log context.
	User   string
	Inputs map[string]string
}

// RunResult is the outcome of one (set, product) run.
type RunResult struct {
	Set            string
	Product        string
	Summary        valuation.Summary
	PeriodTable    *report.Table
	PolicyTable    *report.Table
	Reconciliation validate.LinkageReport
	Duration       time.Duration
}

// BatchResult collects the runs of a batch in (set, product) order.
type BatchResult struct {
	RunID     string
	Start     time.Time
	End       time.Time
	Runs      []RunResult
	Skipped   []string
	OutputDir string
}

// Orchestrator manages the end-to-end flow of a batch.
type Orchestrator struct {
	logger      *slog.Logger
	repo        ResultRepository
	runs        RunLogger
	metrics     MetricsRecorder
	parallelism int
	outputDir   string
	formats     []string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger (slog.Default otherwise).
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithRepository persists every run result.
func WithRepository(r ResultRepository) Option {
	return func(o *Orchestrator) { o.repo = r }
}

// WithRunLog records every batch.
func WithRunLog(r RunLogger) Option {
	return func(o *Orchestrator) { o.runs = r }
}

// WithMetrics records run and cell metrics.
func WithMetrics(m MetricsRecorder) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithParallelism bounds the number of concurrent runs.
func WithParallelism(n int) Option {
	return func(o *Orchestrator) { o.parallelism = n }
}

// WithOutput writes the result tables in formats under dir/<run id>.
func WithOutput(dir string, formats ...string) Option {
	return func(o *Orchestrator) {
		o.outputDir = dir
		o.formats = formats
	}
}

// NewOrchestrator creates an orchestrator. Without options it only
// computes.
func NewOrchestrator(opts ...Option) *Orchestrator {
	o := &Orchestrator{logger: slog.Default(), parallelism: 1}
	for _, opt := range opts {
		opt(o)
	}
	if o.parallelism < 1 {
		o.parallelism = 1
	}
	return o
}

type job struct {
	set     string
	product string
	pop     *population.Population
}

// Run executes a batch. The first failing run cancels the others; the
// failure is recorded in the run log and returned.
func (o *Orchestrator) Run(ctx context.Context, b Batch) (*BatchResult, error) {
	res := &BatchResult{RunID: uuid.NewString(), Start: time.Now().UTC()}
	log := o.logger.With("run_id", res.RunID)

	err := o.run(ctx, log, b, res)
	res.End = time.Now().UTC()

	if o.runs != nil {
		rec := runlog.Record{
			RunID:          res.RunID,
			Timestamp:      res.End,
			User:           b.User,
			Inputs:         b.Inputs,
			Start:          res.Start,
			End:            res.End,
			Status:         runlog.StatusSuccess,
			OutputLocation: res.OutputDir,
		}
		if err != nil {
			rec.Status = runlog.StatusFailed
			rec.ErrorMessage = err.Error()
		}
		if lerr := o.runs.Create(rec); lerr != nil {
			log.Error("failed to record run", "error", lerr)
		}
	}

	if err != nil {
		log.Error("batch failed", "error", err, "duration", res.End.Sub(res.Start))
		return res, fmt.Errorf("run %s: %w", res.RunID, err)
	}
	log.Info("batch completed", "runs", len(res.Runs), "skipped", len(res.Skipped), "duration", res.End.Sub(res.Start))
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, log *slog.Logger, b Batch, res *BatchResult) error {
	if b.Bundle == nil {
		return errors.New("no assumption bundle")
	}
	if len(b.Sets) == 0 {
		return errors.New("no model point sets")
	}
	if len(b.Products) == 0 {
		return errors.New("no product groups")
	}

	var jobs []job
	for _, set := range b.Sets {
		pop, err := population.New(set.Policies)
		if err != nil {
			return fmt.Errorf("model point set %s: %w", set.Name, err)
		}
		for _, product := range b.Products {
			sel, err := pop.Select(product)
			if err != nil {
				return fmt.Errorf("model point set %s: %w", set.Name, err)
			}
			if sel.Len() == 0 {
				log.Warn("no policies for product, skipping", "set", set.Name, "product", product)
				res.Skipped = append(res.Skipped, set.Name+"/"+product)
				continue
			}
			jobs = append(jobs, job{set: set.Name, product: product, pop: sel})
		}
	}
	log.Info("batch started", "runs", len(jobs), "parallelism", o.parallelism)

	results := make([]RunResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.parallelism)
	for i, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := o.project(b, j)
			status := "success"
			if err != nil {
				status = "failed"
			}
			if o.metrics != nil {
				o.metrics.ObserveRun(j.product, status, r.Duration, j.pop.Len())
			}
			if err != nil {
				return fmt.Errorf("%s/%s: %w", j.set, j.product, err)
			}
			log.Info("run finished", "set", j.set, "product", j.product,
				"policies", j.pop.Len(), "duration", r.Duration)
			if !r.Reconciliation.AllPassed {
				log.Warn("reconciliation failed", "set", j.set, "product", j.product,
					"checks", r.Reconciliation.FailedChecks)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	res.Runs = results

	if o.outputDir != "" {
		dir, err := o.writeOutputs(res, b.ValuationDate)
		if err != nil {
			return err
		}
		res.OutputDir = dir
	}
	if o.repo != nil {
		for _, r := range res.Runs {
			sr := store.NewResult(res.RunID, r.Set, b.ValuationDate, r.Summary, r.Reconciliation)
			if err := o.repo.Save(ctx, sr); err != nil {
				return fmt.Errorf("persist %s/%s: %w", r.Set, r.Product, err)
			}
		}
	}
	return nil
}

// project runs one isolated graph.
func (o *Orchestrator) project(b Batch, j job) (RunResult, error) {
	start := time.Now()
	r := RunResult{Set: j.set, Product: j.product}

	var opts []projection.Option
	if o.metrics != nil {
		opts = append(opts, projection.WithObserver(o.metrics))
	}
	rc := projection.RunContext{ValuationDate: b.ValuationDate, HorizonYears: b.HorizonYears, Product: j.product}
	g, err := projection.NewGraph(rc, j.pop, b.Bundle, opts...)
	if err != nil {
		r.Duration = time.Since(start)
		return r, err
	}
	if err := valuation.Attach(g); err != nil {
		r.Duration = time.Since(start)
		return r, err
	}

	err = func() error {
		if r.PeriodTable, err = report.PeriodTable(g); err != nil {
			return err
		}
		if r.PolicyTable, err = report.PolicyTable(g, b.SnapshotPeriod); err != nil {
			return err
		}
		if r.Summary, err = valuation.Summarize(g); err != nil {
			return err
		}
		r.Reconciliation = validate.Reconcile(r.PeriodTable, r.PolicyTable, b.SnapshotPeriod, validate.DefaultTolerance)
		return nil
	}()
	r.Duration = time.Since(start)
	return r, err
}
