// Package metrics exposes Prometheus collectors for the catalog.
//
// All recording methods are safe on a nil *Metrics so components can be
// constructed without instrumentation in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "odcat"

// Metrics holds a private registry and the catalog's collectors.
type Metrics struct {
	Registry *prometheus.Registry

	rankingHits     prometheus.Counter
	rankingMisses   prometheus.Counter
	refreshes       *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	imports         *prometheus.CounterVec
	datasets        prometheus.Gauge
	resources       prometheus.Gauge
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		rankingHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ranking_cache",
			Name:      "hits_total",
			Help:      "Ranking lookups served from the cache.",
		}),
		rankingMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ranking_cache",
			Name:      "misses_total",
			Help:      "Ranking lookups that queried the store.",
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Remote dataset refreshes by result.",
		}, []string{"result"}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Wall time of remote dataset refreshes.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_imports_total",
			Help:      "Snapshot imports by result (ok, skipped, error).",
		}, []string{"result"}),
		datasets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_datasets",
			Help:      "Datasets in the store at the last observation.",
		}),
		resources: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_resources",
			Help:      "Resources in the store at the last observation.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.rankingHits,
		m.rankingMisses,
		m.refreshes,
		m.refreshDuration,
		m.imports,
		m.datasets,
		m.resources,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// RankingHits adds n cache hits.
func (m *Metrics) RankingHits(n int) {
	if m != nil && n > 0 {
		m.rankingHits.Add(float64(n))
	}
}

// RankingMisses adds n cache misses.
func (m *Metrics) RankingMisses(n int) {
	if m != nil && n > 0 {
		m.rankingMisses.Add(float64(n))
	}
}

// ObserveRefresh records one refresh outcome and its duration.
func (m *Metrics) ObserveRefresh(ok bool, d time.Duration) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result(ok)).Inc()
	m.refreshDuration.Observe(d.Seconds())
}

// ObserveImport records one import outcome.
func (m *Metrics) ObserveImport(ok, skipped bool) {
	if m == nil {
		return
	}
	label := result(ok)
	if ok && skipped {
		label = "skipped"
	}
	m.imports.WithLabelValues(label).Inc()
}

// SetStoreSize records the current record counts.
func (m *Metrics) SetStoreSize(datasets, resources int) {
	if m == nil {
		return
	}
	m.datasets.Set(float64(datasets))
	m.resources.Set(float64(resources))
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
