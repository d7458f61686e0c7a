package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailsense_mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12),
		},
		[]string{"routing_key", "queue"},
	)

	// 模型调用延迟（毫秒）
	AICallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailsense_ai_call_latency_ms",
			Help:    "AI completion call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10),
		},
		[]string{"model", "status"}, // status: success, rate_limited, error, circuit_open
	)

	// prompt token 数
	PromptTokens = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailsense_prompt_tokens",
			Help:    "Estimated prompt size in tokens",
			Buckets: []float64{250, 500, 1000, 2000, 4000, 8000, 16000, 30000},
		},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailsense_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"operation"},
	)

	DBSlowQueries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailsense_db_slow_queries_total",
			Help: "Queries slower than the slow-query threshold",
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailsense_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"method", "path", "status"},
	)

	// 邮件处理结果
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsense_messages_processed_total",
			Help: "Messages handled by the pipeline, by outcome",
		},
		[]string{"outcome"}, // ai, draft, empty, token_limit, ai_error, skipped, fetch_failed
	)

	OutboxPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsense_outbox_published_total",
			Help: "Outbox events handled by the dispatcher",
		},
		[]string{"event_type", "status"},
	)
)

func RecordMQConsumeLatency(routingKey, queue string, d time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(d.Milliseconds()))
}

func RecordAICall(model, status string, d time.Duration) {
	AICallLatency.WithLabelValues(model, status).Observe(float64(d.Milliseconds()))
}

func RecordPromptTokens(n int) {
	PromptTokens.Observe(float64(n))
}

func RecordDBQueryDuration(operation string, d time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func RecordHTTPRequestDuration(method, path, status string, d time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
}

func IncMessageProcessed(outcome string) {
	MessagesProcessed.WithLabelValues(outcome).Inc()
}

func IncOutboxPublished(eventType, status string) {
	OutboxPublished.WithLabelValues(eventType, status).Inc()
}
