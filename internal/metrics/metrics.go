// Package metrics exposes Prometheus collectors for the transform pipelines,
// the cache store and the live-reload hub.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for pipeline runs.
const (
	OutcomeHandled    = "handled"
	OutcomeNotHandled = "not_handled"
	OutcomeError      = "error"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "jitserve").
	Namespace string

	// Buckets are the histogram buckets for transform duration.
	// Default: 1ms to ~4s.
	Buckets []float64

	// Registry receives the collectors. Default: a fresh registry.
	Registry *prometheus.Registry
}

// Option configures Config.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// CacheStats is the snapshot read by the cache collectors.
type CacheStats struct {
	Entries       int
	Hits          int64
	Misses        int64
	Invalidations int64
	MirrorErrors  int64
}

// Metrics holds the jitserve collectors.
type Metrics struct {
	registry  *prometheus.Registry
	namespace string

	pipelineRuns     *prometheus.CounterVec
	pipelineDuration *prometheus.HistogramVec
	changeBatches    prometheus.Counter
	changedPaths     prometheus.Counter
	liveClients      prometheus.Gauge
}

// New registers the collectors.
func New(opts ...Option) *Metrics {
	config := Config{
		Namespace: "jitserve",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
	}

	factory := promauto.With(config.Registry)

	return &Metrics{
		registry:  config.Registry,
		namespace: config.Namespace,

		pipelineRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "pipeline_runs_total",
			Help:      "Total number of pipeline runs by pipeline and outcome",
		}, []string{"pipeline", "outcome"}),

		pipelineDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Pipeline run duration in seconds",
			Buckets:   config.Buckets,
		}, []string{"pipeline"}),

		changeBatches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "change_batches_total",
			Help:      "Total number of aggregated change notifications",
		}),

		changedPaths: factory.NewCounter(prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "changed_paths_total",
			Help:      "Total number of changed paths reported to clients",
		}),

		liveClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Name:      "live_reload_clients",
			Help:      "Number of connected live-reload clients",
		}),
	}
}

// ObservePipeline records one pipeline run.
func (m *Metrics) ObservePipeline(pipeline, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.pipelineRuns.WithLabelValues(pipeline, outcome).Inc()
	m.pipelineDuration.WithLabelValues(pipeline).Observe(d.Seconds())
}

// ObserveChanges records one aggregated change notification.
func (m *Metrics) ObserveChanges(paths int) {
	if m == nil {
		return
	}
	m.changeBatches.Inc()
	m.changedPaths.Add(float64(paths))
}

// SetLiveClients records the number of connected live-reload clients.
func (m *Metrics) SetLiveClients(n int) {
	if m == nil {
		return
	}
	m.liveClients.Set(float64(n))
}

// RegisterCache exposes cache statistics read from stats at scrape time.
func (m *Metrics) RegisterCache(stats func() CacheStats) {
	if m == nil {
		return
	}
	factory := promauto.With(m.registry)

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "cache",
		Name:      "entries",
		Help:      "Number of cached modules",
	}, func() float64 { return float64(stats().Entries) })

	counter := func(name, help string, read func(CacheStats) int64) {
		factory.NewCounterFunc(prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: "cache",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(read(stats())) })
	}
	counter("hits_total", "Cache hits since start", func(s CacheStats) int64 { return s.Hits })
	counter("misses_total", "Cache misses since start", func(s CacheStats) int64 { return s.Misses })
	counter("invalidations_total", "Cache invalidations since start", func(s CacheStats) int64 { return s.Invalidations })
	counter("mirror_errors_total", "Failed disk mirror writes since start", func(s CacheStats) int64 { return s.MirrorErrors })
}

// RegisterRuntime adds the Go runtime and process collectors.
func (m *Metrics) RegisterRuntime() {
	if m == nil {
		return
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
