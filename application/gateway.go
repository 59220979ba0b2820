// Package application provides the session registry that owns every live session.
package application

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"worldlink/application/session"
	"worldlink/core/event"
	"worldlink/core/eventbus"
	"worldlink/core/protocol"
	"worldlink/infrastructure/metrics"
	"worldlink/infrastructure/transport"
)

// Gateway accepts connections, owns their sessions and replays global subscriptions
// to every session that joins.
type Gateway struct {
	// Sessions
	sessions   map[string]*session.Session
	sessionsMu sync.RWMutex

	// Event names ever requested through Subscribe, in first-request order
	subscribed   []string
	subscribedAt map[string]struct{}
	subsMu       sync.Mutex

	// Dependencies
	eventBus      eventbus.EventBus
	metrics       *metrics.Metrics
	sessionConfig session.Config
	newID         func() string
	logger        *slog.Logger
}

// GatewayConfig holds configuration for the Gateway.
type GatewayConfig struct {
	EventBus eventbus.EventBus
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	// Session supplies the timing fields for every new session; ID, Conn,
	// EventBus, Metrics and Logger are filled in by the gateway.
	Session session.Config
	// NewID overrides session ID generation.
	NewID func() string
}

// NewGateway creates a new session registry.
func NewGateway(cfg *GatewayConfig) *Gateway {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.EventBus == nil {
		cfg.EventBus = eventbus.New(&eventbus.Config{Logger: cfg.Logger, Observer: cfg.Metrics})
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}

	return &Gateway{
		sessions:      make(map[string]*session.Session),
		subscribedAt:  make(map[string]struct{}),
		eventBus:      cfg.EventBus,
		metrics:       cfg.Metrics,
		sessionConfig: cfg.Session,
		newID:         cfg.NewID,
		logger:        cfg.Logger,
	}
}

// EventBus returns the bus events are published on.
func (g *Gateway) EventBus() eventbus.EventBus {
	return g.eventBus
}

// Subscribe records name as globally subscribed and registers handler for it.
// Only sessions connecting after this call are asked for the event; sessions already
// connected are not retroactively subscribed.
func (g *Gateway) Subscribe(name string, handler eventbus.EventHandler) string {
	g.subsMu.Lock()
	if _, ok := g.subscribedAt[name]; !ok {
		g.subscribedAt[name] = struct{}{}
		g.subscribed = append(g.subscribed, name)
	}
	g.subsMu.Unlock()

	return g.eventBus.Subscribe(name, handler)
}

// OnConnection registers handler to be called with every newly connected session.
func (g *Gateway) OnConnection(handler func(*session.Session)) string {
	return g.Subscribe(event.NameOpen, func(e event.Event) {
		opened, ok := e.(*event.Opened)
		if !ok {
			return
		}
		if s, ok := opened.Source().(*session.Session); ok {
			handler(s)
		}
	})
}

// GlobalSubscriptions returns every event name requested through Subscribe.
func (g *Gateway) GlobalSubscriptions() []string {
	g.subsMu.Lock()
	defer g.subsMu.Unlock()
	return append([]string(nil), g.subscribed...)
}

// Connect creates and registers a session for a newly accepted connection, queues
// open ahead of anything the peer sends, subscribes to command responses, then
// replays the global subscriptions to it.
func (g *Gateway) Connect(conn transport.Conn) *session.Session {
	cfg := g.sessionConfig
	cfg.ID = g.newID()
	cfg.Conn = conn
	cfg.EventBus = g.eventBus
	cfg.Metrics = g.metrics
	cfg.Logger = g.logger
	sess := session.New(&cfg)

	g.sessionsMu.Lock()
	g.sessions[sess.ID()] = sess
	g.sessionsMu.Unlock()

	g.metrics.SessionOpened()
	g.logger.Info("Session opened", "session_id", sess.ID(), "remote", conn.RemoteAddr())

	sess.Emit(event.NewOpened(sess))

	// Ask the peer to push command replies addressed to other players as well
	if err := sess.Subscribe(string(protocol.PurposeCommandResponse)); err != nil {
		g.logger.Warn("Failed to subscribe to command responses", "session_id", sess.ID(), "error", err)
	}

	for _, name := range g.GlobalSubscriptions() {
		if event.IsLocal(name) {
			continue
		}
		if err := sess.Subscribe(name); err != nil {
			g.logger.Warn("Failed to replay subscription", "session_id", sess.ID(), "event", name, "error", err)
		}
	}

	return sess
}

// HandleMessage routes an inbound envelope to its session. Messages for sessions that
// are already gone are logged and dropped.
func (g *Gateway) HandleMessage(sessionID string, env *protocol.Envelope) {
	sess := g.Session(sessionID)
	if sess == nil {
		g.logger.Debug("Message for unknown session dropped", "session_id", sessionID)
		return
	}
	sess.HandleInbound(env)
}

// Disconnect destroys a session: its roster timer is cancelled, close is published and
// it leaves the registry. Repeated calls for the same ID are no-ops.
func (g *Gateway) Disconnect(sessionID string) {
	g.sessionsMu.Lock()
	sess, exists := g.sessions[sessionID]
	if exists {
		delete(g.sessions, sessionID)
	}
	g.sessionsMu.Unlock()

	if !exists {
		g.logger.Debug("Disconnect for unknown session ignored", "session_id", sessionID)
		return
	}

	sess.Close()
	g.eventBus.Publish(event.NewClosed(sess))
	g.metrics.SessionClosed()
	g.logger.Info("Session removed from gateway", "session_id", sessionID)
}

// Session returns a session by ID.
func (g *Gateway) Session(id string) *session.Session {
	g.sessionsMu.RLock()
	defer g.sessionsMu.RUnlock()
	return g.sessions[id]
}

// Sessions returns all registered sessions.
func (g *Gateway) Sessions() []*session.Session {
	g.sessionsMu.RLock()
	defer g.sessionsMu.RUnlock()

	sessions := make([]*session.Session, 0, len(g.sessions))
	for _, s := range g.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// SessionCount returns the number of registered sessions.
func (g *Gateway) SessionCount() int {
	g.sessionsMu.RLock()
	defer g.sessionsMu.RUnlock()
	return len(g.sessions)
}

// Stop disconnects every session.
func (g *Gateway) Stop() {
	g.sessionsMu.RLock()
	ids := make([]string, 0, len(g.sessions))
	for id := range g.sessions {
		ids = append(ids, id)
	}
	g.sessionsMu.RUnlock()

	// Disconnect all sessions in parallel
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			g.Disconnect(id)
		}(id)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		g.logger.Warn("Gateway stop timeout, some sessions may not have closed cleanly")
	}

	g.logger.Info("Gateway stopped", "sessions", len(ids))
}

// Hooks adapts the gateway to the transport server.
func (g *Gateway) Hooks() transport.Hooks {
	return transport.Hooks{
		OnOpen: func(conn transport.Conn) string {
			return g.Connect(conn).ID()
		},
		OnMessage: g.HandleMessage,
		OnClose:   g.Disconnect,
	}
}
