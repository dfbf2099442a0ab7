package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace 指标命名空间
const Namespace = "timingmesh"

// 标签值
const (
	ResultAdopted  = "adopted"
	ResultRejected = "rejected"
	ResultOpened   = "opened"
	ResultFailed   = "failed"
)

// Metrics 一个 Provider 的指标集合
type Metrics struct {
	LinksOpen        prometheus.Gauge
	Skew             prometheus.Gauge
	RelaySkew        prometheus.Gauge
	UpdatesBroadcast prometheus.Counter
	UpdatesReceived  *prometheus.CounterVec
	Negotiations     *prometheus.CounterVec
	RelayReconnects  prometheus.Counter
}

// New 在 reg 上注册指标，reg 为 nil 时使用私有 Registry
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		LinksOpen: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "links_open",
			Help:      "Number of open peer links.",
		}),
		Skew: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "skew_seconds",
			Help:      "Offset between the local clock and the authoritative remote clock.",
		}),
		RelaySkew: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "relay_skew_seconds",
			Help:      "Local clock minus the relay origin reported at connection time.",
		}),
		UpdatesBroadcast: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "updates_broadcast_total",
			Help:      "Vectors sent to peers.",
		}),
		UpdatesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "updates_received_total",
			Help:      "Vectors received from peers by merge result.",
		}, []string{"result"}),
		Negotiations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "negotiations_total",
			Help:      "Peer negotiations by result.",
		}, []string{"result"}),
		RelayReconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "relay_reconnects_total",
			Help:      "Relay connections lost.",
		}),
	}
}

// UpdateReceived 记录一次合并结果
func (m *Metrics) UpdateReceived(adopted bool) {
	result := ResultRejected
	if adopted {
		result = ResultAdopted
	}
	m.UpdatesReceived.WithLabelValues(result).Inc()
}

// Negotiation 记录一次协商结果
func (m *Metrics) Negotiation(opened bool) {
	result := ResultFailed
	if opened {
		result = ResultOpened
	}
	m.Negotiations.WithLabelValues(result).Inc()
}
