package sequencer

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics - Prometheus-метрики секвенсора
type Metrics struct {
	activations   *prometheus.CounterVec
	pruned        *prometheus.CounterVec
	candidates    prometheus.Counter
	residencyWait prometheus.Histogram
	transferred   *prometheus.CounterVec
}

// NewMetrics создаёт и регистрирует метрики. reg == nil - глобальный регистр.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "activations_total",
			Help:      "Активации узлов по итогу.",
		}, []string{"outcome"}),
		pruned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "members_pruned_total",
			Help:      "Узлы, удалённые из цепочек.",
		}, []string{"reason"}),
		candidates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "candidates_checked_total",
			Help:      "Кандидаты, проверенные после загрузки чанков.",
		}),
		residencyWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "portal",
			Name:      "residency_wait_seconds",
			Help:      "Ожидание загрузки чанков кандидата.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
		}),
		transferred: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "transferred_total",
			Help:      "Перенесённое содержимое по виду.",
		}, []string{"kind"}),
	}

	reg.MustRegister(m.activations, m.pruned, m.candidates, m.residencyWait, m.transferred)
	return m
}

func (m *Metrics) observeOutcome(o Outcome) {
	if m == nil {
		return
	}
	m.activations.WithLabelValues(o.Status.String()).Inc()
	if o.Status == StatusTeleported {
		m.transferred.WithLabelValues("blocks").Add(float64(o.Transfer.Blocks))
		m.transferred.WithLabelValues("entities").Add(float64(o.Transfer.Entities))
		m.transferred.WithLabelValues("players").Add(float64(o.Transfer.Players))
		m.transferred.WithLabelValues("failed").Add(float64(o.Transfer.Failed))
	}
}

func (m *Metrics) observePruned(reason string) {
	if m != nil {
		m.pruned.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) observeCandidate(waitSeconds float64) {
	if m != nil {
		m.candidates.Inc()
		m.residencyWait.Observe(waitSeconds)
	}
}
