// Package metrics exposes value-set engine activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iudanet/sessionstore/internal/valueset"
)

// Recorder is the metrics surface used by the data and sync services.
type Recorder interface {
	valueset.Observer
	RecordOperation(kind valueset.Kind, op string, changed bool)
	RecordReplMerge(kind valueset.Kind, skipped bool)
	RecordTrim(kind valueset.Kind, stats valueset.TrimStats)
	RecordTrimPass(duration time.Duration)
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordDropped(valueset.Kind, string)          {}
func (Nop) RecordOperation(valueset.Kind, string, bool)  {}
func (Nop) RecordReplMerge(valueset.Kind, bool)          {}
func (Nop) RecordTrim(valueset.Kind, valueset.TrimStats) {}
func (Nop) RecordTrimPass(time.Duration)                 {}

// Collector records metrics into a Prometheus registry.
type Collector struct {
	dropped    *prometheus.CounterVec
	operations *prometheus.CounterVec
	merges     *prometheus.CounterVec
	trimmed    *prometheus.CounterVec
	trimPass   prometheus.Histogram
}

var _ Recorder = (*Collector)(nil)

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessionstore_records_dropped_total",
			Help: "Persisted records left out on decode.",
		}, []string{"kind", "reason"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessionstore_operations_total",
			Help: "Value-set write operations by outcome.",
		}, []string{"kind", "op", "result"}),
		merges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessionstore_repl_merges_total",
			Help: "Replication merges applied or skipped as already converged.",
		}, []string{"kind", "outcome"}),
		trimmed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sessionstore_trimmed_total",
			Help: "Values removed by trim, by cause.",
		}, []string{"kind", "cause"}),
		trimPass: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sessionstore_trim_pass_seconds",
			Help:    "Duration of a full maintenance trim pass.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.dropped,
		c.operations,
		c.merges,
		c.trimmed,
		c.trimPass,
	)

	return c
}

// RecordDropped implements valueset.Observer.
func (c *Collector) RecordDropped(kind valueset.Kind, reason string) {
	c.dropped.WithLabelValues(kind.String(), reason).Inc()
}

// RecordOperation counts a write operation.
func (c *Collector) RecordOperation(kind valueset.Kind, op string, changed bool) {
	result := "noop"
	if changed {
		result = "changed"
	}
	c.operations.WithLabelValues(kind.String(), op, result).Inc()
}

// RecordReplMerge counts a replication merge.
func (c *Collector) RecordReplMerge(kind valueset.Kind, skipped bool) {
	outcome := "merged"
	if skipped {
		outcome = "skipped"
	}
	c.merges.WithLabelValues(kind.String(), outcome).Inc()
}

// RecordTrim counts values removed by a trim.
func (c *Collector) RecordTrim(kind valueset.Kind, stats valueset.TrimStats) {
	if stats.Expired > 0 {
		c.trimmed.WithLabelValues(kind.String(), "expired").Add(float64(stats.Expired))
	}
	if stats.Evicted > 0 {
		c.trimmed.WithLabelValues(kind.String(), "evicted").Add(float64(stats.Evicted))
	}
}

// RecordTrimPass observes the duration of a maintenance trim pass.
func (c *Collector) RecordTrimPass(duration time.Duration) {
	c.trimPass.Observe(duration.Seconds())
}

// Handler returns the Prometheus scrape handler.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
