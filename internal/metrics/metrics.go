// Package metrics collects per-run Prometheus metrics and writes them in the
// node_exporter textfile format.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Ning0612/treeclean/internal/progress"
)

// DurationBuckets: 100ms to 1h for clean runs
var DurationBuckets = []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 3600}

// Collector holds the metrics of one clean run in its own registry
type Collector struct {
	registry *prometheus.Registry

	removed     *prometheus.CounterVec
	failures    *prometheus.CounterVec
	repairs     *prometheus.CounterVec
	excluded    prometheus.Counter
	lastRun     prometheus.Gauge
	lastSuccess prometheus.Gauge
	runDuration prometheus.Histogram
}

// New creates a collector with all metrics registered
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		removed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "treeclean_entries_removed_total",
			Help: "Entries removed (or already absent) by kind.",
		}, []string{"kind"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "treeclean_failures_total",
			Help: "Listing and removal failures by kind and operation.",
		}, []string{"kind", "op"}),
		repairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "treeclean_permission_repairs_total",
			Help: "Permission repair attempts by result.",
		}, []string{"result"}),
		excluded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "treeclean_entries_excluded_total",
			Help: "Entries skipped by exclude patterns.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "treeclean_last_run_timestamp_seconds",
			Help: "Unix timestamp of the last finished run.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "treeclean_last_run_success",
			Help: "1 if the last run finished without a fatal error.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "treeclean_run_duration_seconds",
			Help:    "Duration of clean runs in seconds.",
			Buckets: DurationBuckets,
		}),
	}

	c.registry.MustRegister(
		c.removed,
		c.failures,
		c.repairs,
		c.excluded,
		c.lastRun,
		c.lastSuccess,
		c.runDuration,
	)
	return c
}

// Registry exposes the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Report implements progress.Reporter
func (c *Collector) Report(ev progress.Event) {
	switch ev.Type {
	case progress.EventRemoved:
		c.removed.WithLabelValues(ev.Kind.String()).Inc()
	case progress.EventFailed:
		c.failures.WithLabelValues(ev.Kind.String(), ev.Op).Inc()
	case progress.EventRepaired:
		c.repairs.WithLabelValues("ok").Inc()
	case progress.EventRepairFailed:
		c.repairs.WithLabelValues("failed").Inc()
	case progress.EventExcluded:
		c.excluded.Inc()
	}
}

// ObserveRun records the outcome of a finished run
func (c *Collector) ObserveRun(start time.Time, err error) {
	now := time.Now()
	c.runDuration.Observe(now.Sub(start).Seconds())
	c.lastRun.Set(float64(now.Unix()))
	if err != nil {
		c.lastSuccess.Set(0)
	} else {
		c.lastSuccess.Set(1)
	}
}

// WriteTextfile atomically writes all metrics to path
func (c *Collector) WriteTextfile(path string) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create metrics directory %s: %w", dir, err)
		}
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

var _ progress.Reporter = (*Collector)(nil)
