package providers

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"ogd/internal/structures"
)

// ImportStatsSource exposes pipeline internals to gauge functions without
// making the orchestrator depend on the metrics provider.
type ImportStatsSource interface {
	QueueLength() int
	PendingWrites() int
	GamesImportedTotal() int64
	FlushesTotal() int64
	WriteErrorsTotal() int64
}

type MetricsProviderInterface interface {
	IncRequestsTotal(endpoint string, status int)
	ObserveRequestDuration(endpoint string, duration time.Duration)
	IncCacheHits()
	IncCacheMisses()
	ObserveFlushDuration(duration time.Duration)
}

type MetricsProvider struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	flushDuration   prometheus.Histogram
}

func (m *MetricsProvider) IncRequestsTotal(endpoint string, status int) {
	m.requestsTotal.WithLabelValues(endpoint, httpStatusBucket(status)).Inc()
}

func (m *MetricsProvider) ObserveRequestDuration(endpoint string, duration time.Duration) {
	m.requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (m *MetricsProvider) IncCacheHits() {
	m.cacheHits.Inc()
}

func (m *MetricsProvider) IncCacheMisses() {
	m.cacheMisses.Inc()
}

func (m *MetricsProvider) ObserveFlushDuration(duration time.Duration) {
	m.flushDuration.Observe(duration.Seconds())
}

func httpStatusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

func NewMetricsProvider(conf *structures.Config, source ImportStatsSource) MetricsProviderInterface {
	if !conf.Metrics.Enabled {
		return &noopMetrics{}
	}

	m := &MetricsProvider{
		requestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ogd_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"endpoint", "status"}),

		requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ogd_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),

		cacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ogd_cache_hits_total",
			Help: "Total number of cache hits",
		}),

		cacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ogd_cache_misses_total",
			Help: "Total number of cache misses",
		}),

		flushDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "ogd_flush_write_duration_seconds",
			Help:    "Duration of flush write operations in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}

	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ogd_import_queue_size",
		Help: "Current number of queued import tasks",
	}, func() float64 {
		return float64(source.QueueLength())
	})

	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ogd_pending_writes",
		Help: "Flushes accepted by the writer but not yet durably applied",
	}, func() float64 {
		return float64(source.PendingWrites())
	})

	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ogd_games_imported_total",
		Help: "Games processed across all import runs since start",
	}, func() float64 {
		return float64(source.GamesImportedTotal())
	})

	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ogd_flushes_total",
		Help: "Flush batches emitted by workers since start",
	}, func() float64 {
		return float64(source.FlushesTotal())
	})

	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "ogd_write_errors_total",
		Help: "Write failures observed by the writer since start",
	}, func() float64 {
		return float64(source.WriteErrorsTotal())
	})

	return m
}

// noopMetrics is a no-op implementation for when metrics are disabled.
type noopMetrics struct{}

func (n *noopMetrics) IncRequestsTotal(_ string, _ int)                 {}
func (n *noopMetrics) ObserveRequestDuration(_ string, _ time.Duration) {}
func (n *noopMetrics) IncCacheHits()                                    {}
func (n *noopMetrics) IncCacheMisses()                                  {}
func (n *noopMetrics) ObserveFlushDuration(_ time.Duration)             {}
