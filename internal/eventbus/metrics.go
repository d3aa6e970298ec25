package eventbus

import (
	"context"
	"time"

	"github.com/annel0/portalnet/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsExporter переносит счётчики шины в Prometheus и считает события порталов по типам.
// Сам /metrics обслуживает сервер, экспортер только регистрирует метрики.
type MetricsExporter struct {
	bus      EventBus
	interval time.Duration
	sub      Subscription
	quit     chan struct{}
	done     chan struct{}

	published prometheus.Counter
	consumed  prometheus.Counter
	dropped   prometheus.Counter
	inflight  prometheus.Gauge
	events    *prometheus.CounterVec
}

// NewMetricsExporter регистрирует метрики шины в reg (nil - глобальный регистр)
func NewMetricsExporter(bus EventBus, reg prometheus.Registerer) *MetricsExporter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: "portalnet", Subsystem: "eventbus", Name: name, Help: help})
	}
	me := &MetricsExporter{
		bus:       bus,
		interval:  time.Second,
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		published: counter("published_total", "События активаций, принятые шиной."),
		consumed:  counter("consumed_total", "Доставки событий подписчикам."),
		dropped:   counter("dropped_total", "События, отброшенные при заполненном буфере."),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "portalnet", Subsystem: "eventbus", Name: "inflight",
			Help: "События в буфере, ещё не разосланные подписчикам.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portalnet", Name: "events_total",
			Help: "События портальной сети по типам.",
		}, []string{"type"}),
	}
	// Нулевые серии для всех типов, чтобы графики не начинались с пропуска
	for _, typ := range EventTypes() {
		me.events.WithLabelValues(typ)
	}

	reg.MustRegister(me.published, me.consumed, me.dropped, me.inflight, me.events)
	return me
}

// Start подписывается на события сервиса и запускает перенос счётчиков шины
func (m *MetricsExporter) Start() {
	sub, err := m.bus.Subscribe(context.Background(), Filter{Sources: []string{Source}}, func(_ context.Context, ev *Envelope) {
		m.events.WithLabelValues(ev.EventType).Inc()
	})
	if err != nil {
		logging.Warn("📈 Счётчик событий по типам не подписан: %v", err)
	} else {
		m.sub = sub
	}
	go m.loop()
}

// Stop снимает подписку и останавливает перенос счётчиков
func (m *MetricsExporter) Stop() {
	if m.sub != nil {
		m.sub.Unsubscribe()
	}
	close(m.quit)
	<-m.done
}

func (m *MetricsExporter) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	defer close(m.done)

	var prev Stats
	for {
		select {
		case <-ticker.C:
			prev = m.collect(prev)
		case <-m.quit:
			m.collect(prev)
			return
		}
	}
}

// collect добавляет к счётчикам прирост с прошлого снимка Stats
func (m *MetricsExporter) collect(prev Stats) Stats {
	stats := m.bus.Metrics()
	addDelta(m.published, prev.Published, stats.Published)
	addDelta(m.consumed, prev.Consumed, stats.Consumed)
	addDelta(m.dropped, prev.Dropped, stats.Dropped)
	m.inflight.Set(float64(stats.InFlight))
	return stats
}

// addDelta переносит в c только рост счётчика шины
func addDelta(c prometheus.Counter, prev, cur uint64) {
	if cur > prev {
		c.Add(float64(cur - prev))
	}
}
