// Package metrics exposes gateway activity as Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"worldlink/core/event"
)

// OtherEvent labels every event outside the typed vocabulary. Peers choose those
// names freely, so they never become label values.
const OtherEvent = "other"

// Command outcomes recorded by ObserveCommand.
const (
	OutcomeOK            = "ok"
	OutcomeRemoteError   = "remote_error"
	OutcomeTimeout       = "timeout"
	OutcomeClosed        = "closed"
	OutcomeCanceled      = "canceled"
	OutcomeSendFailed    = "send_failed"
	OutcomeFireAndForget = "fire_and_forget"
)

// Metrics groups the gateway collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	sessionsActive  prometheus.Gauge
	sessionsTotal   prometheus.Counter
	commands        *prometheus.CounterVec
	commandDuration prometheus.Histogram
	eventsPublished *prometheus.CounterVec
	handlerPanics   *prometheus.CounterVec
	pendingEvicted  prometheus.Counter
	eventsDropped   prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "worldlink",
			Subsystem: "gateway",
			Name:      "sessions_active",
			Help:      "Sessions currently registered.",
		}),
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "worldlink",
			Subsystem: "gateway",
			Name:      "sessions_total",
			Help:      "Sessions accepted since start.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "worldlink",
			Subsystem: "session",
			Name:      "commands_total",
			Help:      "Commands issued, by outcome.",
		}, []string{"outcome"}),
		commandDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "worldlink",
			Subsystem: "session",
			Name:      "command_duration_seconds",
			Help:      "Time from sending a command to its correlated reply.",
			Buckets:   prometheus.DefBuckets,
		}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "worldlink",
			Subsystem: "eventbus",
			Name:      "events_published_total",
			Help:      "Events published, by event name; peer-defined events count as other.",
		}, []string{"event"}),
		handlerPanics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "worldlink",
			Subsystem: "eventbus",
			Name:      "handler_panics_total",
			Help:      "Event handlers that panicked, by event name.",
		}, []string{"event"}),
		pendingEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "worldlink",
			Subsystem: "session",
			Name:      "pending_evicted_total",
			Help:      "Uncollected replies evicted from correlation tables.",
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "worldlink",
			Subsystem: "session",
			Name:      "events_dropped_total",
			Help:      "Events dropped because a session's dispatch queue was full.",
		}),
	}

	collectors := []prometheus.Collector{
		m.sessionsActive, m.sessionsTotal, m.commands, m.commandDuration,
		m.eventsPublished, m.handlerPanics, m.pendingEvicted, m.eventsDropped,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// SessionOpened records an accepted session.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
	m.sessionsTotal.Inc()
}

// SessionClosed records a destroyed session.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

// ObserveCommand records the outcome of one IssueCommand call.
func (m *Metrics) ObserveCommand(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(outcome).Inc()
	if outcome == OutcomeOK || outcome == OutcomeRemoteError {
		m.commandDuration.Observe(elapsed.Seconds())
	}
}

// PendingEvicted records a reply dropped from a correlation table without being collected.
func (m *Metrics) PendingEvicted() {
	if m == nil {
		return
	}
	m.pendingEvicted.Inc()
}

// EventPublished implements eventbus.Observer.
func (m *Metrics) EventPublished(name string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(eventLabel(name)).Inc()
}

// HandlerPanicked implements eventbus.Observer.
func (m *Metrics) HandlerPanicked(name string) {
	if m == nil {
		return
	}
	m.handlerPanics.WithLabelValues(eventLabel(name)).Inc()
}

// EventDropped records an event discarded by a full dispatch queue.
func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}

func eventLabel(name string) string {
	if event.IsKnown(name) {
		return name
	}
	return OtherEvent
}
