package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pool_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pool_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Ledger metrics
	LedgerOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pool_ledger_operations_total",
			Help: "Ledger mutations by pool, operation and outcome",
		},
		[]string{"pool", "operation", "status"},
	)

	LedgerConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pool_ledger_version_conflicts_total",
			Help: "Optimistic-lock conflicts rejected per pool",
		},
		[]string{"pool"},
	)

	LedgerTotalLiquidity = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pool_ledger_total_liquidity",
			Help: "Current total liquidity per pool",
		},
		[]string{"pool"},
	)

	// Snapshot metrics
	SnapshotsRecordedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pool_snapshots_recorded_total",
			Help: "Snapshots recorded by pool, kind and outcome (created/duplicate)",
		},
		[]string{"pool", "kind", "outcome"},
	)

	// Reconciliation metrics
	OrphansReconciledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pool_orphans_reconciled_total",
			Help: "Orphan distributions reconciled by pool and outcome",
		},
		[]string{"pool", "outcome"},
	)
)

// Middleware records request count and latency per route
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
		).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, endpoint).
			Observe(time.Since(start).Seconds())
	}
}
