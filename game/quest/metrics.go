package quest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts lifecycle transitions. A nil *Metrics records nothing.
type Metrics struct {
	started        prometheus.Counter
	completed      *prometheus.CounterVec
	gaveUp         *prometheus.CounterVec
	eventsResolved *prometheus.CounterVec
	active         prometheus.Gauge
}

// NewMetrics registers the quest metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		started: f.NewCounter(prometheus.CounterOpts{
			Name: "focusquest_quests_started_total",
			Help: "Total number of quests started.",
		}),
		completed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "focusquest_quests_completed_total",
			Help: "Total number of quests completed, partitioned by server validation.",
		}, []string{"validated"}),
		gaveUp: f.NewCounterVec(prometheus.CounterOpts{
			Name: "focusquest_quests_given_up_total",
			Help: "Total number of quests given up, partitioned by whether a curse was applied.",
		}, []string{"cursed"}),
		eventsResolved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "focusquest_events_resolved_total",
			Help: "Total number of quest events resolved, partitioned by event type.",
		}, []string{"type"}),
		active: f.NewGauge(prometheus.GaugeOpts{
			Name: "focusquest_quests_active",
			Help: "Number of quests currently running.",
		}),
	}
}

func (m *Metrics) questStarted() {
	if m == nil {
		return
	}
	m.started.Inc()
	m.active.Inc()
}

func (m *Metrics) questCompleted(validated bool) {
	if m == nil {
		return
	}
	m.completed.WithLabelValues(boolLabel(validated)).Inc()
	m.active.Dec()
}

func (m *Metrics) questGaveUp(cursed bool) {
	if m == nil {
		return
	}
	m.gaveUp.WithLabelValues(boolLabel(cursed)).Inc()
	m.active.Dec()
}

// questResumed counts a quest rehydrated after a restart as running.
func (m *Metrics) questResumed() {
	if m == nil {
		return
	}
	m.active.Inc()
}

func (m *Metrics) eventResolved(typ string) {
	if m == nil {
		return
	}
	m.eventsResolved.WithLabelValues(typ).Inc()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
