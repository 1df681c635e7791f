package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TrackedInstruments = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quote_tracked_instruments",
		Help: "Number of instruments with a live polling session",
	})

	Viewers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quote_viewers",
		Help: "Connected viewers",
	})
	ViewerEvictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quote_viewer_evictions_total",
		Help: "Viewers removed by the hub, partitioned by reason",
	}, []string{"reason"}) // send_failure/heartbeat_timeout/unregister

	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quote_ticks_total",
		Help: "Polling cycles executed",
	})
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quote_tick_duration_seconds",
		Help:    "Duration of one polling cycle",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms -> ~2s
	})
	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quote_batch_size",
		Help:    "Quotes per delivered batch",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
	})

	RetrievalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quote_retrievals_total",
		Help: "Per-instrument retrieval outcomes",
	}, []string{"result"}) // cache_hit/fetched/empty/timeout/failure

	CacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quote_cache_hits_total",
		Help: "Quote cache hits",
	})
	CacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quote_cache_misses_total",
		Help: "Quote cache misses",
	})

	MessagesOutTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quote_messages_out_total",
		Help: "Logical messages queued to viewers",
	}, []string{"type"})
	BytesOutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quote_bytes_out_total",
		Help: "Bytes queued to viewers",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quote_http_requests_total",
		Help: "HTTP requests served, partitioned by route and status code",
	}, []string{"method", "route", "status"})
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quote_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

func ObserveTick(started time.Time, batchN int) {
	TicksTotal.Inc()
	TickDuration.Observe(time.Since(started).Seconds())
	if batchN > 0 {
		BatchSize.Observe(float64(batchN))
	}
}

func ObserveRetrieval(result string) {
	RetrievalsTotal.WithLabelValues(result).Inc()
}

func ObserveSend(messageType string, bytes int) {
	MessagesOutTotal.WithLabelValues(messageType).Inc()
	if bytes > 0 {
		BytesOutTotal.Add(float64(bytes))
	}
}

func OnEvict(reason string) {
	ViewerEvictionsTotal.WithLabelValues(reason).Inc()
}

func ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
