package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 服务监控指标
type Metrics struct {
	Registry *prometheus.Registry

	// 样本处理指标（outcome: processed, unworn, malformed, stale, no_baseline,
	// unassigned, activity, out_of_order, error）
	SamplesTotal *prometheus.CounterVec

	// 准入决策指标（decision: admitted, cooldown-active, duplicate, error）
	AdmissionsTotal *prometheus.CounterVec

	// 分发指标（channel: push, mqtt, persist; result: ok, failed, suppressed）
	DispatchTotal *prometheus.CounterVec

	// 分发队列深度
	QueueDepth prometheus.Gauge

	// 分发队列溢出丢弃
	QueueDropsTotal prometheus.Counter

	// 当前维护窗口的用户数
	ActiveWindows prometheus.Gauge
}

// NewMetrics 创建并注册监控指标（独立 Registry，便于测试重复构建）
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		Registry: registry,

		SamplesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "anxiease_alert_samples_total",
				Help: "Total number of telemetry samples processed by outcome",
			},
			[]string{"outcome"},
		),

		AdmissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "anxiease_alert_admissions_total",
				Help: "Total number of candidate alert admission decisions",
			},
			[]string{"decision"},
		),

		DispatchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "anxiease_alert_dispatch_total",
				Help: "Total number of alert dispatch attempts by channel and result",
			},
			[]string{"channel", "result"},
		),

		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "anxiease_alert_dispatch_queue_depth",
				Help: "Current depth of the dispatch queue",
			},
		),

		QueueDropsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "anxiease_alert_dispatch_queue_drops_total",
				Help: "Total number of alerts dropped due to a full dispatch queue",
			},
		),

		ActiveWindows: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "anxiease_alert_active_windows",
				Help: "Number of per-user evaluation windows currently held in memory",
			},
		),
	}
}
