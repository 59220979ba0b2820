// Package session implements the per-connection protocol state of the gateway.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/jellydator/ttlcache/v3"

	"worldlink/core/command"
	"worldlink/core/event"
	"worldlink/core/eventbus"
	"worldlink/core/protocol"
	"worldlink/core/state"
	"worldlink/infrastructure/metrics"
	"worldlink/infrastructure/transport"
)

var (
	// ErrConnectionClosed is returned when the peer is not live while a reply is awaited.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrResponseTimeout is returned when no matching reply arrived within the wait window.
	ErrResponseTimeout = errors.New("response timeout")
)

// Session is the gateway's representation of one live remote connection.
// It correlates command replies, forwards inbound events to the bus and owns
// the roster tracker of its world.
type Session struct {
	// Identity
	id string

	// State
	state   state.SessionState
	stateMu sync.RWMutex

	// Correlation table: request ID -> reply, insert-once, read-once
	pending   *ttlcache.Cache[string, *protocol.Response]
	pendingMu sync.Mutex

	// Subscriptions requested from the peer
	subscribed   map[string]struct{}
	subscribedMu sync.Mutex

	// Components
	roster *RosterTracker

	// Dependencies
	conn     transport.Conn
	eventBus eventbus.EventBus
	metrics  *metrics.Metrics
	logger   *slog.Logger

	// Timing
	pollInterval time.Duration
	maxAttempts  int

	// Ordered event dispatch
	events     *queue.Queue
	eventsMu   sync.Mutex
	queueLimit int
	wake       chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// Config holds configuration for creating a new Session.
type Config struct {
	ID       string
	Conn     transport.Conn
	EventBus eventbus.EventBus
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	// PollInterval is the period at which a correlation wait checks for its reply.
	PollInterval time.Duration
	// MaxAttempts bounds the correlation wait: the timeout is PollInterval*MaxAttempts.
	MaxAttempts int
	// RosterInterval is the roster sampling period.
	RosterInterval time.Duration
	// PendingTTL evicts replies nobody collects.
	PendingTTL time.Duration
	// QueueLimit caps events waiting for dispatch; events beyond it are dropped
	// and logged. Replies are correlated before queueing and are never dropped.
	QueueLimit int
}

// Default timing values.
const (
	DefaultPollInterval   = 50 * time.Millisecond
	DefaultMaxAttempts    = 200
	DefaultRosterInterval = time.Second
	DefaultPendingTTL     = 30 * time.Second
	DefaultQueueLimit     = 4096
)

// New creates a new Session and starts its event dispatch loop.
func New(cfg *Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RosterInterval <= 0 {
		cfg.RosterInterval = DefaultRosterInterval
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = DefaultPendingTTL
	}
	if cfg.QueueLimit <= 0 {
		cfg.QueueLimit = DefaultQueueLimit
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		id:    cfg.ID,
		state: state.StateOpen,
		pending: ttlcache.New(
			ttlcache.WithTTL[string, *protocol.Response](cfg.PendingTTL),
			ttlcache.WithDisableTouchOnHit[string, *protocol.Response](),
		),
		subscribed:   make(map[string]struct{}),
		conn:         cfg.Conn,
		eventBus:     cfg.EventBus,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger.With("session_id", cfg.ID),
		pollInterval: cfg.PollInterval,
		maxAttempts:  cfg.MaxAttempts,
		events:       queue.New(),
		queueLimit:   cfg.QueueLimit,
		wake:         make(chan struct{}, 1),
		ctx:          ctx,
		cancel:       cancel,
	}

	s.pending.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *protocol.Response]) {
		if reason == ttlcache.EvictionReasonExpired {
			s.logger.Debug("Evicted uncollected reply", "request_id", item.Key())
			s.metrics.PendingEvicted()
		}
	})

	s.roster = NewRosterTracker(&RosterTrackerConfig{
		Source:   s,
		Sampler:  s,
		Publish:  s.Emit,
		Interval: cfg.RosterInterval,
		Logger:   s.logger,
	})

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.pending.Start()
	}()
	go s.dispatch()

	return s
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// State returns the current connection state.
func (s *Session) State() state.SessionState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Alive returns true while the session is open and its connection is live.
func (s *Session) Alive() bool {
	return s.State().IsLive() && s.conn.Alive()
}

// RemoteAddr returns the peer address.
func (s *Session) RemoteAddr() string {
	return s.conn.RemoteAddr()
}

// Subscriptions returns the event names requested from the peer.
func (s *Session) Subscriptions() []string {
	s.subscribedMu.Lock()
	defer s.subscribedMu.Unlock()

	names := make([]string, 0, len(s.subscribed))
	for name := range s.subscribed {
		names = append(names, name)
	}
	return names
}

// RosterTimerActive returns true once roster polling has been armed.
func (s *Session) RosterTimerActive() bool {
	return s.roster.Armed()
}

// Roster returns the most recent roster sample.
func (s *Session) Roster() []string {
	return s.roster.Snapshot()
}

// Subscribe asks the peer to start sending an event. Roster-derived names arm the
// roster timer instead of sending a packet.
func (s *Session) Subscribe(name string) error {
	s.subscribedMu.Lock()
	s.subscribed[name] = struct{}{}
	s.subscribedMu.Unlock()

	if event.IsRosterDerived(name) {
		if s.roster.Start(s.ctx) {
			s.logger.Debug("Roster timer armed")
		}
		return nil
	}

	if err := s.conn.Send(s.ctx, protocol.NewSubscribe(name)); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", name, err)
	}
	s.logger.Debug("Subscribed", "event", name)
	return nil
}

// HandleInbound processes one envelope from the peer without blocking. A reply is
// made collectable first, then packet and the named event are queued for publication
// in arrival order. Handlers run on the dispatch loop and may issue commands on this
// session; their replies never wait behind queued events.
func (s *Session) HandleInbound(env *protocol.Envelope) {
	if env.IsReply() {
		s.storeReply(env)
	}
	if s.ctx.Err() != nil {
		return
	}

	s.enqueue(event.NewPacket(s, env))
	if e := event.FromEnvelope(s, env); e != nil {
		s.enqueue(e)
	}
}

// Emit queues e for publication after every event already received from the peer.
// Handlers run on the dispatch loop, so they may issue commands on this session.
func (s *Session) Emit(e event.Event) {
	if e != nil {
		s.enqueue(e)
	}
}

// IssueCommand sends a command line and waits for its correlated reply.
// Replies flagged as errors by the peer are returned as a normal Response; only
// ErrConnectionClosed, ErrResponseTimeout, send failures and ctx cancellation are errors.
func (s *Session) IssueCommand(ctx context.Context, commandLine string) (*protocol.Response, error) {
	start := time.Now()
	env := protocol.NewCommand(commandLine)
	requestID := env.Header.RequestID

	if err := s.conn.Send(ctx, env); err != nil {
		s.metrics.ObserveCommand(metrics.OutcomeSendFailed, time.Since(start))
		return nil, fmt.Errorf("failed to send command: %w", err)
	}

	if command.FireAndForget(commandLine) {
		s.metrics.ObserveCommand(metrics.OutcomeFireAndForget, time.Since(start))
		return &protocol.Response{}, nil
	}

	resp, err := s.awaitReply(ctx, requestID)
	elapsed := time.Since(start)
	switch {
	case err == nil && resp.Failed():
		s.metrics.ObserveCommand(metrics.OutcomeRemoteError, elapsed)
	case err == nil:
		s.metrics.ObserveCommand(metrics.OutcomeOK, elapsed)
	case errors.Is(err, ErrConnectionClosed):
		s.metrics.ObserveCommand(metrics.OutcomeClosed, elapsed)
	case errors.Is(err, ErrResponseTimeout):
		s.metrics.ObserveCommand(metrics.OutcomeTimeout, elapsed)
	default:
		s.metrics.ObserveCommand(metrics.OutcomeCanceled, elapsed)
	}
	if err != nil {
		s.logger.Debug("Command failed", "command", commandLine, "request_id", requestID, "error", err)
	}
	return resp, err
}

// Run issues a typed command.
func (s *Session) Run(ctx context.Context, cmd command.Command) (*protocol.Response, error) {
	return s.IssueCommand(ctx, cmd.CommandLine())
}

// Close stops background work and marks the session closed. It does not close the
// connection, which belongs to the transport. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.transitionTo(state.StateClosing)

		s.roster.Stop()
		s.cancel()
		s.pending.Stop()

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(3 * time.Second):
			s.logger.Warn("Session close timeout")
		}

		s.pendingMu.Lock()
		s.pending.DeleteAll()
		s.pendingMu.Unlock()

		s.transitionTo(state.StateClosed)
		s.logger.Info("Session closed")
	})
}

// awaitReply polls the correlation table until the reply arrives, the connection
// drops, the attempt ceiling is reached or ctx is done.
func (s *Session) awaitReply(ctx context.Context, requestID string) (*protocol.Response, error) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for attempt := 0; ; attempt++ {
		if !s.Alive() {
			s.discard(requestID)
			return nil, ErrConnectionClosed
		}
		if resp := s.takeReply(requestID); resp != nil {
			return resp, nil
		}
		if attempt >= s.maxAttempts {
			s.discard(requestID)
			return nil, ErrResponseTimeout
		}

		select {
		case <-ctx.Done():
			s.discard(requestID)
			return nil, ctx.Err()
		case <-s.ctx.Done():
			// Loop once more so the closed state is reported
		case <-ticker.C:
		}
	}
}

// storeReply buffers a reply for its waiter. An occupied slot is never overwritten.
func (s *Session) storeReply(env *protocol.Envelope) {
	requestID := env.Header.RequestID
	if requestID == "" {
		return
	}

	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	if s.pending.Get(requestID) != nil {
		s.logger.Warn("Duplicate reply ignored", "request_id", requestID)
		return
	}
	s.pending.Set(requestID, protocol.NewResponse(env), ttlcache.DefaultTTL)
}

// takeReply removes and returns the reply for requestID, if present.
func (s *Session) takeReply(requestID string) *protocol.Response {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	item := s.pending.Get(requestID)
	if item == nil {
		return nil
	}
	s.pending.Delete(requestID)
	return item.Value()
}

// discard drops any reply buffered for requestID.
func (s *Session) discard(requestID string) {
	s.pendingMu.Lock()
	s.pending.Delete(requestID)
	s.pendingMu.Unlock()
}

// pendingCount returns the number of buffered replies.
func (s *Session) pendingCount() int {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return s.pending.Len()
}

// enqueue appends e to the dispatch queue. It never blocks; past the queue limit
// the event is dropped.
func (s *Session) enqueue(e event.Event) {
	if s.ctx.Err() != nil {
		return
	}

	s.eventsMu.Lock()
	if s.events.Length() >= s.queueLimit {
		s.eventsMu.Unlock()
		s.logger.Warn("Event queue full, dropping event", "event", e.EventName(), "limit", s.queueLimit)
		s.metrics.EventDropped()
		return
	}
	s.events.Add(e)
	s.eventsMu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// queuedEvents returns the number of events waiting for dispatch.
func (s *Session) queuedEvents() int {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()
	return s.events.Length()
}

// dispatch publishes queued events in order. Events accepted before Close are
// still delivered.
func (s *Session) dispatch() {
	defer s.wg.Done()

	for {
		select {
		case <-s.wake:
			s.drain()
		case <-s.ctx.Done():
			s.drain()
			return
		}
	}
}

func (s *Session) drain() {
	for {
		s.eventsMu.Lock()
		if s.events.Length() == 0 {
			s.eventsMu.Unlock()
			return
		}
		e := s.events.Remove().(event.Event)
		s.eventsMu.Unlock()

		s.publishEvent(e)
	}
}

func (s *Session) transitionTo(newState state.SessionState) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if !s.state.CanTransitionTo(newState) {
		s.logger.Debug("Ignoring state change", "error", state.NewTransitionError(s.state, newState, ""))
		return
	}
	s.logger.Debug("State changed", "from", s.state, "to", newState)
	s.state = newState
}

func (s *Session) publishEvent(e event.Event) {
	if e != nil && s.eventBus != nil {
		s.eventBus.Publish(e)
	}
}
