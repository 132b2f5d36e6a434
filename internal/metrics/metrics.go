// Package metrics counts the soft conditions of a pipeline run and can
// dump them in the Prometheus textfile format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the pipeline counters on a private registry
type Recorder struct {
	registry *prometheus.Registry

	rowsDropped    *prometheus.CounterVec
	rowsMerged     *prometheus.CounterVec
	cellsImputed   *prometheus.CounterVec
	divisionByZero *prometheus.CounterVec
	stageErrors    *prometheus.CounterVec
	apiRequests    *prometheus.CounterVec
	decisions      *prometheus.CounterVec
	modelR2        *prometheus.GaugeVec
	stageDuration  *prometheus.HistogramVec
}

// New creates a recorder with its own registry
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		rowsDropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockcast_merge_rows_dropped_total",
				Help: "Price bars dropped because no statement qualified",
			},
			[]string{"category"},
		),
		rowsMerged: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockcast_merge_rows_total",
				Help: "Rows produced by the temporal merge",
			},
			[]string{"category"},
		),
		cellsImputed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockcast_cells_imputed_total",
				Help: "Missing cells filled by the normalizer",
			},
			[]string{"category", "phase"},
		),
		divisionByZero: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockcast_ratio_division_by_zero_total",
				Help: "Ratio cells set to missing on a zero denominator",
			},
			[]string{"category"},
		),
		stageErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockcast_stage_errors_total",
				Help: "Fatal errors by pipeline stage",
			},
			[]string{"stage"},
		),
		apiRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockcast_api_requests_total",
				Help: "Alpha Vantage downloads by function and outcome",
			},
			[]string{"function", "outcome"},
		),
		decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockcast_decisions_total",
				Help: "Ensemble decisions by label",
			},
			[]string{"decision"},
		),
		modelR2: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stockcast_model_r2",
				Help: "Held-out R squared of the last trained model",
			},
			[]string{"category"},
		),
		stageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stockcast_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
	}
}

// Registry exposes the recorder's registry
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// RecordMerge records the merge outcome of a category
func (r *Recorder) RecordMerge(category string, merged, dropped int) {
	r.rowsMerged.WithLabelValues(category).Add(float64(merged))
	r.rowsDropped.WithLabelValues(category).Add(float64(dropped))
}

// RecordImputed records filled cells; phase is "prefill", "fill" or "rescale"
func (r *Recorder) RecordImputed(category, phase string, n int) {
	r.cellsImputed.WithLabelValues(category, phase).Add(float64(n))
}

// RecordDivisionByZero records ratio cells lost to zero denominators
func (r *Recorder) RecordDivisionByZero(category string, n int) {
	r.divisionByZero.WithLabelValues(category).Add(float64(n))
}

// RecordStageError records a fatal stage error
func (r *Recorder) RecordStageError(stage string) {
	r.stageErrors.WithLabelValues(stage).Inc()
}

// RecordRequest records a download outcome
func (r *Recorder) RecordRequest(function string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.apiRequests.WithLabelValues(function, outcome).Inc()
}

// RecordDecisions records n ensemble decisions of one label
func (r *Recorder) RecordDecisions(decision string, n int) {
	r.decisions.WithLabelValues(decision).Add(float64(n))
}

// RecordModel records the held-out R squared of a trained model
func (r *Recorder) RecordModel(category string, r2 float64) {
	r.modelR2.WithLabelValues(category).Set(r2)
}

// RecordStage records how long a stage took
func (r *Recorder) RecordStage(stage string, d time.Duration) {
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// WriteTextfile writes all metrics to filename in the textfile collector
// format
func (r *Recorder) WriteTextfile(filename string) error {
	return prometheus.WriteToTextfile(filename, r.registry)
}
