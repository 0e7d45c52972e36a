// Package metrics records Prometheus metrics for projection runs.
//
// A Recorder owns its registry, so batch jobs can write a textfile for the
// node exporter at the end of a run and tests stay isolated. It implements
// projection.Observer to count cell evaluations and cache hits.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// =============================================================================
// Metric Definitions
// =============================================================================

const metricsNamespace = "projector"

// Cell evaluation outcomes.
const (
	ResultHit      = "hit"
	ResultComputed = "computed"
)

// Recorder holds the run and cell metrics.
type Recorder struct {
	reg *prometheus.Registry

	// RunsTotal counts finished runs. Labels: product, status.
	RunsTotal *prometheus.CounterVec

	// RunDurationSeconds measures one (model point set, product) run.
	// Labels: product.
	RunDurationSeconds *prometheus.HistogramVec

	// PoliciesTotal counts projected model points. Labels: product.
	PoliciesTotal *prometheus.CounterVec

	// CellEvaluationsTotal counts cell evaluations. Labels: cell, result.
	CellEvaluationsTotal *prometheus.CounterVec
}

// NewRecorder creates a Recorder with a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "runs_total",
				Help:      "Finished projection runs by product and status",
			},
			[]string{"product", "status"},
		),
		RunDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "run_duration_seconds",
				Help:      "Wall time of one projection run in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"product"},
		),
		PoliciesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "policies_total",
				Help:      "Model points projected by product",
			},
			[]string{"product"},
		),
		CellEvaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "cell",
				Name:      "evaluations_total",
				Help:      "Cell evaluations by cell and result (hit or computed)",
			},
			[]string{"cell", "result"},
		),
	}
	r.reg.MustRegister(r.RunsTotal, r.RunDurationSeconds, r.PoliciesTotal, r.CellEvaluationsTotal)
	return r
}

// Registry returns the registry the metrics are registered with.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.reg
}

// ObserveCell counts one cell evaluation.
func (r *Recorder) ObserveCell(cell string, hit bool) {
	result := ResultComputed
	if hit {
		result = ResultHit
	}
	r.CellEvaluationsTotal.WithLabelValues(cell, result).Inc()
}

// ObserveRun records a finished run.
func (r *Recorder) ObserveRun(product, status string, d time.Duration, policies int) {
	r.RunsTotal.WithLabelValues(product, status).Inc()
	r.RunDurationSeconds.WithLabelValues(product).Observe(d.Seconds())
	r.PoliciesTotal.WithLabelValues(product).Add(float64(policies))
}

// WriteTextfile writes the current metrics in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
