package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zonefix",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "zonefix",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "zonefix",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Zone resolution metrics
	ZoneResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zonefix",
		Subsystem: "resolver",
		Name:      "resolutions_total",
		Help:      "Total zone resolutions by winning tier",
	}, []string{"tier"})

	ResolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "zonefix",
		Subsystem: "resolver",
		Name:      "resolve_duration_seconds",
		Help:      "Duration of a single fix resolution including the candidate read",
		Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	})

	ResolveConfidence = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "zonefix",
		Subsystem: "resolver",
		Name:      "confidence",
		Help:      "Confidence of resolved zones",
		Buckets:   []float64{0.1, 0.3, 0.5, 0.7, 0.8, 0.9, 1.0},
	})

	SkippedCandidates = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "zonefix",
		Subsystem: "resolver",
		Name:      "skipped_candidates_total",
		Help:      "Candidate zones skipped for malformed or unprojectable geometry",
	})

	ReviewFlagged = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "zonefix",
		Subsystem: "resolver",
		Name:      "review_flagged_total",
		Help:      "Resolutions flagged for manual review due to low confidence",
	})

	FixesConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zonefix",
		Subsystem: "intake",
		Name:      "fixes_consumed_total",
		Help:      "Fixes consumed from the bulk intake subject by outcome",
	}, []string{"outcome"})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zonefix",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zonefix",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "zonefix",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "zonefix",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "zonefix",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

// PoolStat is the subset of pgxpool.Stat reported as gauges.
type PoolStat interface {
	AcquiredConns() int32
	IdleConns() int32
	TotalConns() int32
}

// UpdateDBPoolMetrics updates database pool gauges from pool stats.
func UpdateDBPoolMetrics(s PoolStat) {
	DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
	DBPoolConnsIdle.Set(float64(s.IdleConns()))
	DBPoolConnsOpen.Set(float64(s.TotalConns()))
}
