package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

const namespace = "mlm"

// CompensationMetrics 奖金引擎指标
type CompensationMetrics struct {
	registry *prometheus.Registry

	// 入账收益
	EarningsCreditedTotal  *prometheus.CounterVec
	EarningsCreditedAmount *prometheus.CounterVec

	// 对碰
	BinaryMatchesTotal  *prometheus.CounterVec
	BinaryMatchedVolume *prometheus.CounterVec

	// 失败与锁冲突
	OrchestrationFailuresTotal *prometheus.CounterVec
	LockContentionTotal        prometheus.Counter
}

// NewCompensationMetrics 创建指标并注册到独立的 registry
func NewCompensationMetrics() *CompensationMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &CompensationMetrics{
		registry: registry,

		EarningsCreditedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "earnings_credited_total",
				Help:      "入账收益笔数",
			},
			[]string{"type"},
		),
		EarningsCreditedAmount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "earnings_credited_amount_total",
				Help:      "入账收益金额",
			},
			[]string{"type"},
		),

		BinaryMatchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "binary_matches_total",
				Help:      "对碰触发次数",
			},
			[]string{"policy"},
		),
		BinaryMatchedVolume: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "binary_matched_volume_total",
				Help:      "对碰消耗的两侧业绩合计",
			},
			[]string{"policy"},
		),

		OrchestrationFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orchestration_failures_total",
				Help:      "奖金编排失败次数（按步骤）",
			},
			[]string{"step"},
		),
		LockContentionTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lock_contention_total",
				Help:      "会员锁获取失败次数",
			},
		),
	}
}

// EarningCredited 记录一笔入账收益
func (m *CompensationMetrics) EarningCredited(earningType string, amount decimal.Decimal) {
	m.EarningsCreditedTotal.WithLabelValues(earningType).Inc()
	m.EarningsCreditedAmount.WithLabelValues(earningType).Add(amount.InexactFloat64())
}

// BinaryMatched 记录一次对碰
func (m *CompensationMetrics) BinaryMatched(policy string, matchedVolume decimal.Decimal) {
	m.BinaryMatchesTotal.WithLabelValues(policy).Inc()
	m.BinaryMatchedVolume.WithLabelValues(policy).Add(matchedVolume.InexactFloat64())
}

// OrchestrationFailed 记录编排失败
func (m *CompensationMetrics) OrchestrationFailed(step string) {
	m.OrchestrationFailuresTotal.WithLabelValues(step).Inc()
}

// LockContended 记录锁冲突
func (m *CompensationMetrics) LockContended() {
	m.LockContentionTotal.Inc()
}

// Handler /metrics 输出
func (m *CompensationMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
