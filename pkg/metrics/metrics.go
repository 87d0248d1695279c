package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 告警候选计数（Differ 产出）
	AlertCandidateCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_candidates_total",
			Help: "Total number of newly observed unread alerts handed to verification",
		},
		[]string{"role"},
	)

	// 每个 (alert, recipient) 的终态计数
	AlertDispatchCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alert_dispatch_total",
			Help: "Terminal outcome of alert dispatch attempts",
		},
		[]string{"role", "outcome"}, // outcome: rejected, deduped, sent, failed
	)

	// 推送发送延迟（秒）
	PushSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "push_send_duration_seconds",
			Help:    "Push transport send duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"status"},
	)

	// 去重表大小
	DedupEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dedup_entries",
			Help: "Number of (alert, recipient) entries held by the in-memory deduplicator",
		},
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "collection"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Total number of queries slower than the configured threshold",
		},
	)

	// 订阅重连计数
	WatcherReattachCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watcher_reattach_total",
			Help: "Total number of change feed re-subscriptions after an error",
		},
		[]string{"collection"},
	)
)

// IncrementCandidate 增加候选告警计数
func IncrementCandidate(role string) {
	AlertCandidateCount.WithLabelValues(role).Inc()
}

// IncrementDispatch 记录一次终态
func IncrementDispatch(role, outcome string) {
	AlertDispatchCount.WithLabelValues(role, outcome).Inc()
}

// RecordPushSendDuration 记录推送发送延迟
func RecordPushSendDuration(status string, duration time.Duration) {
	PushSendDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// SetDedupEntries 更新去重表大小
func SetDedupEntries(n int) {
	DedupEntries.Set(float64(n))
}

// RecordDBQueryDuration 记录数据库查询延迟
func RecordDBQueryDuration(operation, collection string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, collection).Observe(duration.Seconds())
}

// IncrementSlowQuery 增加慢查询计数
func IncrementSlowQuery(sql string, duration time.Duration) {
	SlowQueryCount.Inc()
}

// IncrementReattach 增加重连计数
func IncrementReattach(collection string) {
	WatcherReattachCount.WithLabelValues(collection).Inc()
}
