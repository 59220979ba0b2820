package transport

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"worldlink/core/protocol"
)

// Hooks connect the transport to the session registry.
type Hooks struct {
	// OnOpen registers a new connection and returns its session ID.
	OnOpen func(conn Conn) string
	// OnMessage delivers one decoded envelope, in arrival order per connection.
	OnMessage func(sessionID string, env *protocol.Envelope)
	// OnClose reports that the connection is gone.
	OnClose func(sessionID string)
}

// ServerConfig holds configuration for the websocket Server.
type ServerConfig struct {
	Hooks        Hooks
	Logger       *slog.Logger
	ReadLimit    int64
	WriteTimeout time.Duration
}

// Server accepts websocket upgrades and pumps decoded envelopes into Hooks.
type Server struct {
	hooks        Hooks
	logger       *slog.Logger
	readLimit    int64
	writeTimeout time.Duration

	conns   map[*WebSocketConn]struct{}
	connsMu sync.Mutex
}

// NewServer creates a websocket server.
func NewServer(cfg *ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 1 << 20
	}

	return &Server{
		hooks:        cfg.Hooks,
		logger:       cfg.Logger,
		readLimit:    cfg.ReadLimit,
		writeTimeout: cfg.WriteTimeout,
		conns:        make(map[*WebSocketConn]struct{}),
	}
}

// ServeHTTP upgrades the request and runs the read loop until the peer disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// World clients do not send an Origin header.
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.logger.Warn("Websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	ws.SetReadLimit(s.readLimit)

	conn := NewWebSocketConn(ws, r.RemoteAddr, s.writeTimeout)
	s.track(conn)
	defer s.untrack(conn)

	sessionID := s.hooks.OnOpen(conn)
	logger := s.logger.With("session_id", sessionID, "remote", r.RemoteAddr)
	logger.Debug("Connection opened")

	defer func() {
		// Report the drop before the close handshake, which may wait on a dead peer
		conn.markClosed()
		s.hooks.OnClose(sessionID)
		_ = ws.Close(websocket.StatusNormalClosure, "")
		logger.Debug("Connection closed")
	}()

	ctx := r.Context()
	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, ctx.Err()) {
				logger.Debug("Read failed", "error", err)
			}
			return
		}
		if typ != websocket.MessageText {
			logger.Debug("Ignoring binary message", "size", len(data))
			continue
		}

		env, err := protocol.Decode(data)
		if err != nil {
			logger.Warn("Dropping malformed message", "error", err)
			continue
		}
		s.hooks.OnMessage(sessionID, env)
	}
}

// Close terminates every connection still being served.
func (s *Server) Close() {
	s.connsMu.Lock()
	conns := make([]*WebSocketConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.connsMu.Unlock()

	for _, c := range conns {
		_ = c.conn.Close(websocket.StatusGoingAway, "server shutting down")
		c.markClosed()
	}
}

func (s *Server) track(c *WebSocketConn) {
	s.connsMu.Lock()
	s.conns[c] = struct{}{}
	s.connsMu.Unlock()
}

func (s *Server) untrack(c *WebSocketConn) {
	s.connsMu.Lock()
	delete(s.conns, c)
	s.connsMu.Unlock()
}
