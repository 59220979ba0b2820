package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"worldlink/core/event"
	"worldlink/core/eventbus"
	"worldlink/core/protocol"
)

// fakeConn is an in-memory transport.Conn that records outbound envelopes.
type fakeConn struct {
	mu      sync.Mutex
	sent    []*protocol.Envelope
	sentCh  chan *protocol.Envelope
	onSend  func(env *protocol.Envelope)
	sendErr error
	alive   atomic.Bool
}

func newFakeConn() *fakeConn {
	c := &fakeConn{sentCh: make(chan *protocol.Envelope, 64)}
	c.alive.Store(true)
	return c
}

func (c *fakeConn) Send(ctx context.Context, env *protocol.Envelope) error {
	c.mu.Lock()
	if c.sendErr != nil {
		err := c.sendErr
		c.mu.Unlock()
		return err
	}
	if !c.alive.Load() {
		c.mu.Unlock()
		return errors.New("closed")
	}
	c.sent = append(c.sent, env)
	onSend := c.onSend
	c.mu.Unlock()

	select {
	case c.sentCh <- env:
	default:
	}
	if onSend != nil {
		onSend(env)
	}
	return nil
}

func (c *fakeConn) Alive() bool        { return c.alive.Load() }
func (c *fakeConn) Close() error       { c.alive.Store(false); return nil }
func (c *fakeConn) RemoteAddr() string { return "fake:0" }

func (c *fakeConn) setOnSend(fn func(env *protocol.Envelope)) {
	c.mu.Lock()
	c.onSend = fn
	c.mu.Unlock()
}

func (c *fakeConn) sentEnvelopes() []*protocol.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*protocol.Envelope(nil), c.sent...)
}

// nextSent waits for the next outbound envelope.
func (c *fakeConn) nextSent(t *testing.T) *protocol.Envelope {
	t.Helper()
	select {
	case env := <-c.sentCh:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for outbound envelope")
		return nil
	}
}

// replyTo builds a reply envelope correlated with req.
func replyTo(req *protocol.Envelope, purpose protocol.Purpose, body protocol.Body) *protocol.Envelope {
	return &protocol.Envelope{
		Header: protocol.Header{Purpose: purpose, RequestID: req.Header.RequestID},
		Body:   body,
	}
}

func newTestSession(t *testing.T, conn *fakeConn, bus eventbus.EventBus) *Session {
	t.Helper()
	s := New(&Config{
		ID:             "session-1",
		Conn:           conn,
		EventBus:       bus,
		PollInterval:   5 * time.Millisecond,
		MaxAttempts:    100,
		RosterInterval: 10 * time.Millisecond,
	})
	t.Cleanup(s.Close)
	return s
}

// eventRecorder collects bus events by name.
type eventRecorder struct {
	mu     sync.Mutex
	events []event.Event
	notify chan struct{}
}

func newEventRecorder(bus eventbus.EventBus, names ...string) *eventRecorder {
	r := &eventRecorder{notify: make(chan struct{}, 256)}
	for _, name := range names {
		bus.Subscribe(name, func(e event.Event) {
			r.mu.Lock()
			r.events = append(r.events, e)
			r.mu.Unlock()
			r.notify <- struct{}{}
		})
	}
	return r
}

func (r *eventRecorder) snapshot() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Event(nil), r.events...)
}

// waitFor blocks until n events have been recorded.
func (r *eventRecorder) waitFor(t *testing.T, n int) []event.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if got := r.snapshot(); len(got) >= n {
			return got
		}
		select {
		case <-r.notify:
		case <-deadline:
			t.Fatalf("Timeout: recorded %d of %d events", len(r.snapshot()), n)
		}
	}
}
