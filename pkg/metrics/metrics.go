package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "manager"

// Metrics 指标管理器，所有指标注册在独立的 Registry 上
type Metrics struct {
	registry *prometheus.Registry

	// HTTP请求指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 数据库指标
	dbQueryDuration *prometheus.HistogramVec
	dbQueryErrors   *prometheus.CounterVec

	// 声音克隆训练
	trainingStarted  prometheus.Counter
	trainingFinished *prometheus.CounterVec
	trainingDuration *prometheus.HistogramVec
}

// NewMetrics 创建指标管理器，同时注册 Go 运行时和进程指标
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpResponseSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),

		dbQueryDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "db_query_duration_seconds",
				Help:      "Database query duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),

		dbQueryErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_query_errors_total",
				Help:      "Total number of failed database queries",
			},
			[]string{"operation", "table"},
		),

		trainingStarted: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "voice_clone_training_started_total",
				Help:      "Total number of voice clone training attempts started",
			},
		),

		trainingFinished: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "voice_clone_training_finished_total",
				Help:      "Total number of voice clone training attempts finished",
			},
			[]string{"status"},
		),

		trainingDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "voice_clone_training_duration_seconds",
				Help:      "Voice clone training duration in seconds",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"status"},
		),
	}
}

// Registry 返回底层的 Registry，用于注册额外的采集器
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 暴露 Prometheus 指标
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest 记录HTTP请求指标
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, responseSize int64) {
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// RecordDBQuery 记录数据库查询指标
func (m *Metrics) RecordDBQuery(operation, table string, duration time.Duration, failed bool) {
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if failed {
		m.dbQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

func (m *Metrics) RecordTrainingStarted() {
	m.trainingStarted.Inc()
}

// RecordTrainingFinished status 为 SUCCESS 或 FAILED
func (m *Metrics) RecordTrainingFinished(status string, duration time.Duration) {
	m.trainingFinished.WithLabelValues(status).Inc()
	if duration > 0 {
		m.trainingDuration.WithLabelValues(status).Observe(duration.Seconds())
	}
}

// RegisterGaugeFunc 注册按需取值的仪表盘，比如进行中的训练数
func (m *Metrics) RegisterGaugeFunc(name, help string, fn func() float64) error {
	return m.registry.Register(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help},
		fn,
	))
}
