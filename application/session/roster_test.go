package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"worldlink/core/event"
	"worldlink/core/protocol"
	"worldlink/domain/roster"
)

// scriptedSampler returns queued samples in order, then repeats the last one.
type scriptedSampler struct {
	mu      sync.Mutex
	samples []sampleResult
	calls   int
}

type sampleResult struct {
	players []string
	err     error
}

func (s *scriptedSampler) ListPlayers(ctx context.Context) (*roster.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.calls
	if i >= len(s.samples) {
		i = len(s.samples) - 1
	}
	s.calls++

	r := s.samples[i]
	if r.err != nil {
		return nil, r.err
	}
	return &roster.Snapshot{Players: r.players, Current: len(r.players), Max: 10}, nil
}

type stubPeer struct{}

func (stubPeer) ID() string { return "session-1" }

func (stubPeer) IssueCommand(ctx context.Context, commandLine string) (*protocol.Response, error) {
	return &protocol.Response{}, nil
}

func (stubPeer) SendMessage(ctx context.Context, target, message string) error { return nil }

type publishedEvents struct {
	mu     sync.Mutex
	events []event.Event
}

func (p *publishedEvents) publish(e event.Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *publishedEvents) take() []event.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.events
	p.events = nil
	return out
}

func newTestTracker(sampler RosterSampler, pub *publishedEvents) *RosterTracker {
	return NewRosterTracker(&RosterTrackerConfig{
		Source:   stubPeer{},
		Sampler:  sampler,
		Publish:  pub.publish,
		Interval: 5 * time.Millisecond,
	})
}

func TestRosterTracker_Diff(t *testing.T) {
	sampler := &scriptedSampler{samples: []sampleResult{
		{players: []string{"a", "b"}},
		{players: []string{"b", "c"}},
		{err: errors.New("response timeout")},
	}}
	pub := &publishedEvents{}
	tracker := newTestTracker(sampler, pub)
	ctx := context.Background()

	// First sample: everyone joins
	tracker.tick(ctx)
	events := pub.take()
	if len(events) != 1 {
		t.Fatalf("first tick published %d events, want 1", len(events))
	}
	if diff := cmp.Diff([]string{"a", "b"}, events[0].(*event.PlayerJoin).Joined); diff != "" {
		t.Errorf("first Joined mismatch (-want +got):\n%s", diff)
	}

	// ["a","b"] -> ["b","c"]
	tracker.tick(ctx)
	events = pub.take()
	if len(events) != 2 {
		t.Fatalf("second tick published %d events, want 2", len(events))
	}
	join, ok := events[0].(*event.PlayerJoin)
	if !ok {
		t.Fatalf("events[0] is %T, want *event.PlayerJoin", events[0])
	}
	if diff := cmp.Diff([]string{"c"}, join.Joined); diff != "" {
		t.Errorf("Joined mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"b", "c"}, join.Players); diff != "" {
		t.Errorf("Players mismatch (-want +got):\n%s", diff)
	}
	leave, ok := events[1].(*event.PlayerLeave)
	if !ok {
		t.Fatalf("events[1] is %T, want *event.PlayerLeave", events[1])
	}
	if diff := cmp.Diff([]string{"a"}, leave.Left); diff != "" {
		t.Errorf("Left mismatch (-want +got):\n%s", diff)
	}
	if leave.SessionID() != "session-1" {
		t.Errorf("SessionID() = %q", leave.SessionID())
	}
	if diff := cmp.Diff([]string{"b", "c"}, tracker.Snapshot()); diff != "" {
		t.Errorf("Snapshot mismatch (-want +got):\n%s", diff)
	}

	// Failed sample: no events, snapshot kept
	tracker.tick(ctx)
	if events := pub.take(); len(events) != 0 {
		t.Errorf("failed tick published %d events, want 0", len(events))
	}
	if diff := cmp.Diff([]string{"b", "c"}, tracker.Snapshot()); diff != "" {
		t.Errorf("Snapshot changed after failed sample (-want +got):\n%s", diff)
	}
}

func TestRosterTracker_RecoversAfterFailure(t *testing.T) {
	sampler := &scriptedSampler{samples: []sampleResult{
		{players: []string{"a"}},
		{err: errors.New("connection closed")},
		{players: []string{"a"}},
	}}
	pub := &publishedEvents{}
	tracker := newTestTracker(sampler, pub)
	ctx := context.Background()

	tracker.tick(ctx)
	pub.take()

	tracker.tick(ctx)
	tracker.tick(ctx)

	// A transient failure must not look like a mass leave and rejoin
	if events := pub.take(); len(events) != 0 {
		t.Errorf("published %d events around a transient failure, want 0", len(events))
	}
}

func TestRosterTracker_StartOnce(t *testing.T) {
	sampler := &scriptedSampler{samples: []sampleResult{{players: []string{"a"}}}}
	pub := &publishedEvents{}
	tracker := newTestTracker(sampler, pub)

	if tracker.Armed() {
		t.Fatal("tracker armed before Start")
	}
	if !tracker.Start(context.Background()) {
		t.Fatal("first Start() = false, want true")
	}
	if tracker.Start(context.Background()) {
		t.Error("second Start() = true, want false")
	}
	if !tracker.Armed() {
		t.Error("Armed() = false after Start")
	}

	tracker.Stop()
	tracker.Stop()

	// After Stop nothing else is published
	pub.take()
	time.Sleep(30 * time.Millisecond)
	if events := pub.take(); len(events) != 0 {
		t.Errorf("published %d events after Stop, want 0", len(events))
	}
	if tracker.Start(context.Background()) {
		t.Error("Start() after Stop = true, want false")
	}
}

func TestRosterTracker_StopBeforeStart(t *testing.T) {
	tracker := newTestTracker(&scriptedSampler{}, &publishedEvents{})

	// Must not block or panic
	tracker.Stop()
	if tracker.Start(context.Background()) {
		t.Error("Start() after Stop = true, want false")
	}
}

// blockingSampler blocks until its context is cancelled.
type blockingSampler struct {
	entered chan struct{}
	once    sync.Once
}

func (s *blockingSampler) ListPlayers(ctx context.Context) (*roster.Snapshot, error) {
	s.once.Do(func() { close(s.entered) })
	<-ctx.Done()
	return &roster.Snapshot{Players: []string{"late"}}, nil
}

func TestRosterTracker_TickAfterCancelIsNoop(t *testing.T) {
	sampler := &blockingSampler{entered: make(chan struct{})}
	pub := &publishedEvents{}
	tracker := newTestTracker(sampler, pub)

	tracker.Start(context.Background())
	select {
	case <-sampler.entered:
	case <-time.After(time.Second):
		t.Fatal("tick never started")
	}

	tracker.Stop()

	if events := pub.take(); len(events) != 0 {
		t.Errorf("cancelled tick published %d events, want 0", len(events))
	}
	if len(tracker.Snapshot()) != 0 {
		t.Errorf("cancelled tick updated the snapshot: %v", tracker.Snapshot())
	}
}

// stoppingSampler stops its tracker while a sample is in flight.
type stoppingSampler struct {
	tracker *RosterTracker
}

func (s *stoppingSampler) ListPlayers(ctx context.Context) (*roster.Snapshot, error) {
	s.tracker.Stop()
	return &roster.Snapshot{Players: []string{"late"}, Current: 1, Max: 10}, nil
}

func TestRosterTracker_StopDuringTickPublishesNothing(t *testing.T) {
	sampler := &stoppingSampler{}
	pub := &publishedEvents{}
	tracker := newTestTracker(sampler, pub)
	sampler.tracker = tracker

	// The tick's own context stays live; only Stop marks it obsolete
	tracker.tick(context.Background())

	if events := pub.take(); len(events) != 0 {
		t.Errorf("tick stopped mid-sample published %d events, want 0", len(events))
	}
	if len(tracker.Snapshot()) != 0 {
		t.Errorf("tick stopped mid-sample updated the snapshot: %v", tracker.Snapshot())
	}
}
