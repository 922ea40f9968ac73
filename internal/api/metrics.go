package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evgraph_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"endpoint", "method", "status"},
	)
	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "evgraph_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"endpoint"},
	)
	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "evgraph_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"query"},
	)
	chartCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evgraph_chart_cache_lookups_total",
			Help: "Chart cache lookups by result",
		},
		[]string{"result"},
	)
	chartSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "evgraph_chart_sessions_active",
			Help: "Open WebSocket chart sessions",
		},
	)
	chartEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evgraph_chart_events_total",
			Help: "Gesture events applied in chart sessions",
		},
		[]string{"type"},
	)
)

// observeQuery records the duration of a storage call started at start.
func observeQuery(name string, start time.Time) {
	dbQueryDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
}

// metricsMiddleware counts requests per route template so path
// parameters do not explode label cardinality.
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		requestsTotal.WithLabelValues(endpoint, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}
