// Package transport provides the connection layer between the gateway and remote world clients.
package transport

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"worldlink/core/protocol"
)

// Conn defines the interface for one remote connection.
// This abstraction lets sessions be driven by any transport, including in-memory fakes.
type Conn interface {
	// Send encodes and transmits an envelope.
	Send(ctx context.Context, env *protocol.Envelope) error

	// Alive returns true while the peer is connected.
	Alive() bool

	// Close terminates the connection.
	Close() error

	// RemoteAddr returns the peer address for logging.
	RemoteAddr() string
}

// WebSocketConn implements Conn over a coder/websocket connection.
type WebSocketConn struct {
	conn         *websocket.Conn
	remoteAddr   string
	writeTimeout time.Duration
	alive        atomic.Bool
}

// NewWebSocketConn wraps an accepted websocket connection.
func NewWebSocketConn(conn *websocket.Conn, remoteAddr string, writeTimeout time.Duration) *WebSocketConn {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	c := &WebSocketConn{
		conn:         conn,
		remoteAddr:   remoteAddr,
		writeTimeout: writeTimeout,
	}
	c.alive.Store(true)
	return c
}

// Send writes the envelope as one text message.
func (c *WebSocketConn) Send(ctx context.Context, env *protocol.Envelope) error {
	if !c.alive.Load() {
		return fmt.Errorf("connection to %s is closed", c.remoteAddr)
	}

	data, err := protocol.Encode(env)
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()

	if err := c.conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		c.markClosed()
		return fmt.Errorf("failed to write to %s: %w", c.remoteAddr, err)
	}
	return nil
}

// Alive returns true while the peer is connected.
func (c *WebSocketConn) Alive() bool {
	return c.alive.Load()
}

// Close closes the websocket with a normal closure status.
func (c *WebSocketConn) Close() error {
	if !c.alive.Swap(false) {
		return nil
	}
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

// RemoteAddr returns the peer address.
func (c *WebSocketConn) RemoteAddr() string {
	return c.remoteAddr
}

func (c *WebSocketConn) markClosed() {
	c.alive.Store(false)
}
