package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 记录写入/删除计数
	RecordWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_tracker_record_writes_total",
			Help: "Primary store writes by operation",
		},
		[]string{"operation", "status"}, // operation: save, delete, import
	)

	// 备份镜像失败计数
	BackupFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_tracker_backup_failures_total",
			Help: "Best-effort backup mirror failures",
		},
		[]string{"operation"},
	)

	// 捕获决策计数
	CaptureDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_tracker_capture_decisions_total",
			Help: "Capture state machine decisions by signal kind and outcome",
		},
		[]string{"kind", "outcome"}, // outcome: armed, prompt, suppressed, expired, mismatch, superseded, error
	)

	// 消息通道失败后 fail-open 的次数
	MessagingFailOpen = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_tracker_messaging_fail_open_total",
			Help: "Existence checks that failed and defaulted to showing the prompt",
		},
		[]string{"transport"},
	)

	// 消息处理计数
	MessagesHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_tracker_messages_handled_total",
			Help: "Messaging boundary requests by type and result",
		},
		[]string{"type", "status"},
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "table"},
	)

	SlowQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_queries_total",
			Help: "Queries slower than the configured threshold",
		},
		[]string{"operation"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "path", "status"},
	)

	// 备份修复任务
	BackupRepairs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_tracker_backup_repairs_total",
			Help: "Backup repair events processed by the worker",
		},
		[]string{"status"}, // status: repaired, skipped, failed, gave_up
	)
)

func RecordWrite(operation, status string) {
	RecordWrites.WithLabelValues(operation, status).Inc()
}

func IncrementBackupFailure(operation string) {
	BackupFailures.WithLabelValues(operation).Inc()
}

func RecordCaptureDecision(kind, outcome string) {
	CaptureDecisions.WithLabelValues(kind, outcome).Inc()
}

func IncrementFailOpen(transport string) {
	MessagingFailOpen.WithLabelValues(transport).Inc()
}

func RecordMessage(msgType, status string) {
	MessagesHandled.WithLabelValues(msgType, status).Inc()
}

// RecordDBQueryDuration 记录数据库查询延迟
func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

func IncrementSlowQuery(operation string) {
	SlowQueries.WithLabelValues(operation).Inc()
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

func RecordBackupRepair(status string) {
	BackupRepairs.WithLabelValues(status).Inc()
}
