package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"worldlink/core/event"
	"worldlink/domain/roster"
)

// RosterSampler takes one roster sample. A failed sample returns an error.
type RosterSampler interface {
	ListPlayers(ctx context.Context) (*roster.Snapshot, error)
}

// RosterTracker periodically samples a world's roster and publishes PlayerJoin and
// PlayerLeave for the difference against the previous sample.
type RosterTracker struct {
	source   event.Peer
	sampler  RosterSampler
	publish  func(event.Event)
	interval time.Duration
	logger   *slog.Logger

	// Last sample
	last   []string
	lastMu sync.Mutex

	// Control
	armed   atomic.Bool
	stopped atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	ctrlMu  sync.Mutex
}

// RosterTrackerConfig holds configuration for a RosterTracker.
type RosterTrackerConfig struct {
	Source   event.Peer
	Sampler  RosterSampler
	// Publish must not block; it is called while Stop is held off.
	Publish  func(event.Event)
	Interval time.Duration
	Logger   *slog.Logger
}

// NewRosterTracker creates an unarmed roster tracker.
func NewRosterTracker(cfg *RosterTrackerConfig) *RosterTracker {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultRosterInterval
	}
	if cfg.Publish == nil {
		cfg.Publish = func(event.Event) {}
	}

	return &RosterTracker{
		source:   cfg.Source,
		sampler:  cfg.Sampler,
		publish:  cfg.Publish,
		interval: cfg.Interval,
		logger:   cfg.Logger,
	}
}

// Start arms the periodic timer. It returns false if the tracker was already armed
// or has been stopped; a tracker is armed at most once.
func (t *RosterTracker) Start(parent context.Context) bool {
	t.ctrlMu.Lock()
	defer t.ctrlMu.Unlock()

	if t.stopped.Load() || !t.armed.CompareAndSwap(false, true) {
		return false
	}

	t.ctx, t.cancel = context.WithCancel(parent)
	t.wg.Add(1)
	go t.run()
	return true
}

// Stop cancels the timer and waits for an in-flight tick to finish. A tick that
// completes after Stop publishes nothing.
func (t *RosterTracker) Stop() {
	t.ctrlMu.Lock()
	if t.stopped.Swap(true) {
		t.ctrlMu.Unlock()
		return
	}
	cancel := t.cancel
	t.ctrlMu.Unlock()

	if cancel == nil {
		return // Never armed
	}
	cancel()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.logger.Warn("Roster tracker stop timeout")
	}
}

// Armed returns true once Start has succeeded.
func (t *RosterTracker) Armed() bool {
	return t.armed.Load()
}

// Snapshot returns a copy of the last successful sample.
func (t *RosterTracker) Snapshot() []string {
	t.lastMu.Lock()
	defer t.lastMu.Unlock()
	return append([]string(nil), t.last...)
}

// run ticks sequentially; a slow sample delays the next tick instead of overlapping it.
func (t *RosterTracker) run() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			t.tick(t.ctx)
		}
	}
}

// tick samples once and publishes the difference against the previous sample.
// A failed sample is treated as "no observable change": nothing is published and
// the stored snapshot is kept.
func (t *RosterTracker) tick(ctx context.Context) {
	snap, err := t.sampler.ListPlayers(ctx)
	if ctx.Err() != nil || t.stopped.Load() {
		return
	}
	if err != nil {
		t.logger.Debug("Roster sample failed", "error", err)
		return
	}

	// Stop takes ctrlMu, so nothing is published once it has returned or started.
	t.ctrlMu.Lock()
	defer t.ctrlMu.Unlock()
	if t.stopped.Load() {
		return
	}

	t.lastMu.Lock()
	joined, left := roster.Diff(t.last, snap.Players)
	t.last = snap.Players
	t.lastMu.Unlock()

	change := event.RosterChange{
		Players: snap.Players,
		Current: snap.Current,
		Max:     snap.Max,
	}
	if len(joined) > 0 {
		t.logger.Debug("Players joined", "players", joined)
		t.publish(event.NewPlayerJoin(t.source, joined, change))
	}
	if len(left) > 0 {
		t.logger.Debug("Players left", "players", left)
		t.publish(event.NewPlayerLeave(t.source, left, change))
	}
}
