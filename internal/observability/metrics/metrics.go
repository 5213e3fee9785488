package metrics

import "github.com/prometheus/client_golang/prometheus"

// EngineMetrics exposes counters and gauges for the booking and sync flows.
// All observe methods are nil-safe so callers can run without metrics wired.
type EngineMetrics struct {
	bookingsTotal *prometheus.CounterVec
	syncTotal     *prometheus.CounterVec
	webhooksTotal *prometheus.CounterVec
	outboxDepth   prometheus.Gauge
	outboxDead    prometheus.Gauge
	oldestDeadAge prometheus.Gauge
}

func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	m := &EngineMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Booking engine operations by outcome",
		}, []string{"op", "outcome"}),
		syncTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "sync",
			Name:      "attempts_total",
			Help:      "External calendar sync attempts by outcome",
		}, []string{"op", "outcome"}),
		webhooksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "webhook",
			Name:      "received_total",
			Help:      "Calendar webhook notifications by disposition",
		}, []string{"status"}),
		outboxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "booking",
			Subsystem: "sync",
			Name:      "outbox_depth",
			Help:      "Pending sync tasks",
		}),
		outboxDead: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "booking",
			Subsystem: "sync",
			Name:      "outbox_dead",
			Help:      "Dead sync tasks awaiting operator action",
		}),
		oldestDeadAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "booking",
			Subsystem: "sync",
			Name:      "oldest_dead_task_age_seconds",
			Help:      "Age of the oldest dead sync task",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.syncTotal, m.webhooksTotal,
		m.outboxDepth, m.outboxDead, m.oldestDeadAge)
	return m
}

func (m *EngineMetrics) ObserveBooking(op, outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(op, outcome).Inc()
}

func (m *EngineMetrics) ObserveSync(op, outcome string) {
	if m == nil {
		return
	}
	m.syncTotal.WithLabelValues(op, outcome).Inc()
}

func (m *EngineMetrics) ObserveWebhook(status string) {
	if m == nil {
		return
	}
	m.webhooksTotal.WithLabelValues(status).Inc()
}

func (m *EngineMetrics) SetOutboxStats(pending, dead int, oldestDeadAgeSeconds float64) {
	if m == nil {
		return
	}
	m.outboxDepth.Set(float64(pending))
	m.outboxDead.Set(float64(dead))
	m.oldestDeadAge.Set(oldestDeadAgeSeconds)
}
