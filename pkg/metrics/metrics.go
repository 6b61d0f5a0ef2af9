package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"operation", "table"},
	)

	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_count",
			Help: "Total number of queries slower than the configured threshold",
		},
		[]string{"statement"},
	)

	// ICS 代理抓取结果
	ICSFetchCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ics_fetch_count",
			Help: "Total number of calendar feed fetches by outcome",
		},
		[]string{"outcome"}, // ok, rejected, too_large, upstream_error, rate_limited
	)

	ICSFetchBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ics_fetch_bytes",
			Help:    "Size of successfully fetched calendar feeds in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8), // 1KiB to 16MiB
		},
	)

	// 同步操作计数
	SyncOperationCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_operation_count",
			Help: "Total number of sync pulls and pushes by status",
		},
		[]string{"operation", "status"},
	)

	IngestionSourceCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calendar_ingestion_source_count",
			Help: "Calendar sources processed per ingestion cycle by status",
		},
		[]string{"status"}, // ok, failed, skipped
	)
)

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordDBQueryDuration 记录数据库查询延迟
func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// IncrementSlowQuery counts a slow statement. The statement label is expected
// to be truncated by the caller.
func IncrementSlowQuery(statement string, _ time.Duration) {
	SlowQueryCount.WithLabelValues(statement).Inc()
}

// RecordICSFetch 记录一次 ICS 抓取
func RecordICSFetch(outcome string, bytes int64) {
	ICSFetchCount.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		ICSFetchBytes.Observe(float64(bytes))
	}
}

// IncrementSyncOperation 增加同步操作计数
func IncrementSyncOperation(operation, status string) {
	SyncOperationCount.WithLabelValues(operation, status).Inc()
}

// IncrementIngestionSource 增加日历源处理计数
func IncrementIngestionSource(status string) {
	IngestionSourceCount.WithLabelValues(status).Inc()
}
