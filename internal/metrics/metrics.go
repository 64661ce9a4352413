// Package metrics records generation statistics in a Prometheus registry and
// exports them in the node_exporter textfile format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rotisserie/eris"

	"github.com/sells-group/dealgen/internal/model"
)

// Recorder implements engine.Recorder. A nil *Recorder is a no-op.
type Recorder struct {
	registry *prometheus.Registry

	Companies      *prometheus.CounterVec
	Skipped        *prometheus.CounterVec
	StageReached   *prometheus.CounterVec
	CreateProb     prometheus.Histogram
	SalesCycleDays prometheus.Histogram
	ARR            *prometheus.HistogramVec
	RunDuration    prometheus.Gauge
	LastRunSeed    prometheus.Gauge
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,

		Companies: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dealgen_companies_total",
			Help: "Companies simulated by final outcome",
		}, []string{"outcome"}),

		Skipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dealgen_companies_skipped_total",
			Help: "Companies excluded because of a configuration gap, by component",
		}, []string{"component"}),

		StageReached: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dealgen_stage_reached_total",
			Help: "Deals that entered each funnel stage",
		}, []string{"stage"}),

		CreateProb: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "dealgen_create_probability",
			Help:    "Composed deal-creation probability per company",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 9),
		}),

		SalesCycleDays: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "dealgen_sales_cycle_days",
			Help:    "Sales cycle length of closed deals",
			Buckets: []float64{7, 14, 30, 45, 60, 90, 120, 180, 365},
		}),

		ARR: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dealgen_billing_arr_usd",
			Help:    "Annual recurring revenue of won deals by size band",
			Buckets: prometheus.ExponentialBuckets(5000, 2, 9),
		}, []string{"size_band"}),

		RunDuration: f.NewGauge(prometheus.GaugeOpts{
			Name: "dealgen_last_run_duration_seconds",
			Help: "Wall time of the last generation run",
		}),

		LastRunSeed: f.NewGauge(prometheus.GaugeOpts{
			Name: "dealgen_last_run_seed",
			Help: "Run seed of the last generation run",
		}),
	}
}

// Registry returns the registry the metrics are registered with.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveResult records one simulated company.
func (r *Recorder) ObserveResult(res *model.CompanyResult) {
	if r == nil || res == nil {
		return
	}
	r.Companies.WithLabelValues(string(res.Outcome)).Inc()
	r.CreateProb.Observe(res.PCreate)

	if d := res.Deal; d != nil {
		for _, ev := range d.History {
			r.StageReached.WithLabelValues(string(ev.Stage)).Inc()
		}
		if d.ClosedAt != nil {
			r.SalesCycleDays.Observe(float64(d.SalesCycleDays))
		}
	}
	if b := res.Billing; b != nil {
		r.ARR.WithLabelValues(string(b.SizeBand)).Observe(float64(b.ARR))
	}
}

// ObserveSkip records a company excluded by a configuration error.
func (r *Recorder) ObserveSkip(component string) {
	if r == nil {
		return
	}
	r.Skipped.WithLabelValues(component).Inc()
}

// ObserveRun records run-level gauges.
func (r *Recorder) ObserveRun(seed uint64, d time.Duration) {
	if r == nil {
		return
	}
	r.RunDuration.Set(d.Seconds())
	r.LastRunSeed.Set(float64(seed))
}

// WriteTextfile writes every metric to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	return eris.Wrapf(prometheus.WriteToTextfile(path, r.registry), "metrics: write textfile %s", path)
}
