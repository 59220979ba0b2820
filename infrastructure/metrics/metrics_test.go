package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	m.ObserveCommand(OutcomeOK, 20*time.Millisecond)
	m.ObserveCommand(OutcomeTimeout, 10*time.Second)
	m.ObserveCommand(OutcomeTimeout, 10*time.Second)
	m.EventPublished("PlayerJoin")
	m.HandlerPanicked("PlayerJoin")
	m.PendingEvicted()

	if got := testutil.ToFloat64(m.sessionsActive); got != 1 {
		t.Errorf("sessions_active = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.sessionsTotal); got != 2 {
		t.Errorf("sessions_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.commands.WithLabelValues(OutcomeTimeout)); got != 2 {
		t.Errorf("commands_total{timeout} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.eventsPublished.WithLabelValues("PlayerJoin")); got != 1 {
		t.Errorf("events_published_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.handlerPanics.WithLabelValues("PlayerJoin")); got != 1 {
		t.Errorf("handler_panics_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.pendingEvicted); got != 1 {
		t.Errorf("pending_evicted_total = %v, want 1", got)
	}
}

func TestMetrics_EventLabelsBounded(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	m.EventPublished("PlayerMessage")
	for i := 0; i < 50; i++ {
		name := fmt.Sprintf("Custom%d", i)
		m.EventPublished(name)
		m.HandlerPanicked(name)
	}

	if got := testutil.CollectAndCount(m.eventsPublished); got != 2 {
		t.Errorf("events_published_total has %d series, want 2", got)
	}
	if got := testutil.ToFloat64(m.eventsPublished.WithLabelValues(OtherEvent)); got != 50 {
		t.Errorf("events_published_total{other} = %v, want 50", got)
	}
	if got := testutil.CollectAndCount(m.handlerPanics); got != 1 {
		t.Errorf("handler_panics_total has %d series, want 1", got)
	}
}

func TestMetrics_DoubleRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(reg); err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := New(reg); err == nil {
		t.Error("registering twice on one registry should fail")
	}
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics

	// Must not panic
	m.SessionOpened()
	m.SessionClosed()
	m.ObserveCommand(OutcomeOK, time.Second)
	m.EventPublished("x")
	m.HandlerPanicked("x")
	m.PendingEvicted()
	m.EventDropped()
}
