// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/vstream/vstream"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器，同时实现 vstream.Observer
type Collector struct {
	// 流指标
	blocksTotal        *prometheus.CounterVec
	xrunsTotal         *prometheus.CounterVec
	eosTotal           *prometheus.CounterVec
	startFailuresTotal *prometheus.CounterVec
	streamActive       *prometheus.GaugeVec
	blocksOwned        *prometheus.GaugeVec

	// 诊断 HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	logger *zap.Logger
}

var _ vstream.Observer = (*Collector)(nil)

// NewCollector 创建指标收集器并注册到默认 registry
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWith(prometheus.DefaultRegisterer, namespace, logger)
}

// NewCollectorWith 创建指标收集器并注册到 reg
func NewCollectorWith(reg prometheus.Registerer, namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.blocksTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_total",
			Help:      "Total number of blocks transferred by the peripheral",
		},
		[]string{"channel", "direction"},
	)

	c.xrunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "xruns_total",
			Help:      "Total number of buffer overflows and underflows",
		},
		[]string{"channel", "kind"},
	)

	c.eosTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "eos_total",
			Help:      "Total number of end-of-stream notifications",
		},
		[]string{"channel"},
	)

	c.startFailuresTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "start_failures_total",
			Help:      "Total number of Start calls the device did not activate",
		},
		[]string{"channel"},
	)

	c.streamActive = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_active",
			Help:      "Whether the stream is transferring (1) or idle (0)",
		},
		[]string{"channel"},
	)

	c.blocksOwned = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "blocks_owned",
			Help:      "Blocks currently held by the application",
		},
		[]string{"channel"},
	)

	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of diagnostic HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Diagnostic HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.logger.Debug("metrics collector registered", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 🎞️ 流指标记录（vstream.Observer）
// =============================================================================

// BlockTransferred 记录一次块传输
func (c *Collector) BlockTransferred(channel string, dir vstream.Direction) {
	c.blocksTotal.WithLabelValues(channel, dir.String()).Inc()
}

// Xrun 记录溢出（输入）或欠载（输出）
func (c *Collector) Xrun(channel string, dir vstream.Direction) {
	c.xrunsTotal.WithLabelValues(channel, xrunKind(dir)).Inc()
}

// EndOfStream 记录流结束
func (c *Collector) EndOfStream(channel string) {
	c.eosTotal.WithLabelValues(channel).Inc()
}

// StartFailed 记录启动失败
func (c *Collector) StartFailed(channel string) {
	c.startFailuresTotal.WithLabelValues(channel).Inc()
	c.logger.Warn("stream start failed", zap.String("channel", channel))
}

// ActiveChanged 更新活动状态
func (c *Collector) ActiveChanged(channel string, active bool) {
	v := 0.0
	if active {
		v = 1
	}
	c.streamActive.WithLabelValues(channel).Set(v)
}

// BlocksOwned 更新应用持有的块数
func (c *Collector) BlocksOwned(channel string, owned int) {
	c.blocksOwned.WithLabelValues(channel).Set(float64(owned))
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录诊断 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func xrunKind(dir vstream.Direction) string {
	if dir == vstream.DirectionOut {
		return "underflow"
	}
	return "overflow"
}

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
