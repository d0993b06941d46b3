// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 连接器指标
	chatRequestsTotal   *prometheus.CounterVec
	chatRequestDuration *prometheus.HistogramVec
	probesTotal         *prometheus.CounterVec

	// 对局指标
	turnsTotal        *prometheus.CounterVec
	conversationsDone *prometheus.CounterVec
	tokensEstimated   *prometheus.CounterVec

	// 批处理指标
	batchRunsTotal  *prometheus.CounterVec
	batchJobsTotal  *prometheus.CounterVec
	batchQueueDepth prometheus.Gauge

	// 评测指标
	evaluationsTotal  *prometheus.CounterVec
	judgeParseResults *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 连接器指标
	c.chatRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Total number of backend chat requests",
		},
		[]string{"backend", "status"},
	)

	c.chatRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_request_duration_seconds",
			Help:      "Backend chat request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"backend"},
	)

	c.probesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_probes_total",
			Help:      "Total number of engine reachability probes",
		},
		[]string{"backend", "result"},
	)

	// 对局指标
	c.turnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_turns_total",
			Help:      "Total number of completed conversation turns",
		},
		[]string{"backend"},
	)

	c.conversationsDone = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversations_total",
			Help:      "Total number of terminated conversations",
		},
		[]string{"status"},
	)

	c.tokensEstimated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_estimated_total",
			Help:      "Total number of estimated tokens in generated replies",
		},
		[]string{"backend"},
	)

	// 批处理指标
	c.batchRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_runs_total",
			Help:      "Total number of executed batch runs",
		},
		[]string{"status"},
	)

	c.batchJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_jobs_total",
			Help:      "Total number of terminated batch jobs",
		},
		[]string{"status"},
	)

	c.batchQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_queue_depth",
			Help:      "Number of batch jobs waiting in the queue",
		},
	)

	// 评测指标
	c.evaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Total number of terminated evaluation jobs",
		},
		[]string{"status", "source"},
	)

	c.judgeParseResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "judge_parse_results_total",
			Help:      "Judge output parse outcomes",
		},
		[]string{"result"}, // direct, object_span, array_span, failed
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 🔌 连接器指标记录
// =============================================================================

// RecordChat 记录一次后端对话调用
func (c *Collector) RecordChat(backend, status string, duration time.Duration) {
	c.chatRequestsTotal.WithLabelValues(backend, status).Inc()
	c.chatRequestDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordProbe 记录一次引擎探活
func (c *Collector) RecordProbe(backend string, reachable bool) {
	result := "unreachable"
	if reachable {
		result = "reachable"
	}
	c.probesTotal.WithLabelValues(backend, result).Inc()
}

// =============================================================================
// 🥊 对局指标记录
// =============================================================================

// ObserveTurn 记录一个完成的回合
func (c *Collector) ObserveTurn(backend string) {
	c.turnsTotal.WithLabelValues(backend).Inc()
}

// RecordConversation 记录一场终止的对话
func (c *Collector) RecordConversation(status string, tokens int, backend string) {
	c.conversationsDone.WithLabelValues(status).Inc()
	c.tokensEstimated.WithLabelValues(backend).Add(float64(tokens))
}

// =============================================================================
// 📦 批处理指标记录
// =============================================================================

// RecordBatchRun 记录一次批处理 run
func (c *Collector) RecordBatchRun(status string) {
	c.batchRunsTotal.WithLabelValues(status).Inc()
}

// RecordBatchJob 记录一个终止的批处理任务
func (c *Collector) RecordBatchJob(status string) {
	c.batchJobsTotal.WithLabelValues(status).Inc()
}

// SetBatchQueueDepth 更新批处理队列深度
func (c *Collector) SetBatchQueueDepth(depth int) {
	c.batchQueueDepth.Set(float64(depth))
}

// =============================================================================
// ⚖️ 评测指标记录
// =============================================================================

// RecordEvaluation 记录一个终止的评测任务
func (c *Collector) RecordEvaluation(status, source string) {
	c.evaluationsTotal.WithLabelValues(status, source).Inc()
}

// RecordJudgeParse 记录一次裁判输出解析结果
func (c *Collector) RecordJudgeParse(result string) {
	c.judgeParseResults.WithLabelValues(result).Inc()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
