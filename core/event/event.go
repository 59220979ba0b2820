// Package event defines the events published on the gateway's event bus.
// The vocabulary is a closed set of typed events plus Remote, which carries any
// peer-declared event the gateway has no dedicated type for.
package event

import (
	"context"

	"worldlink/core/protocol"
)

// Event names known to the gateway.
const (
	NameOpen          = "open"
	NameClose         = "close"
	NamePacket        = "packet"
	NamePlayerJoin    = "PlayerJoin"
	NamePlayerLeave   = "PlayerLeave"
	NamePlayerMessage = "PlayerMessage"
)

// Event is the base interface for all events.
type Event interface {
	// EventName returns the bus topic the event is published under
	EventName() string
}

// Peer is the back-reference to the session an event originated from.
// Handlers use it to reply to the world that produced the event.
type Peer interface {
	ID() string
	IssueCommand(ctx context.Context, commandLine string) (*protocol.Response, error)
	SendMessage(ctx context.Context, target, message string) error
}

// SessionEvent is an event that originates from a specific session.
type SessionEvent interface {
	Event
	// SessionID returns the source session ID
	SessionID() string
	// Source returns the originating session
	Source() Peer
}

// IsLocal reports whether name is produced by the gateway itself and must never be
// requested from a peer.
func IsLocal(name string) bool {
	return name == NameOpen || name == NameClose || name == NamePacket
}

// IsRosterDerived reports whether name is synthesized by diffing roster samples.
func IsRosterDerived(name string) bool {
	return name == NamePlayerJoin || name == NamePlayerLeave
}

// IsReserved reports whether name belongs to the gateway. A peer can never publish
// under a reserved name; its envelope is still visible through packet.
func IsReserved(name string) bool {
	return IsLocal(name) || IsRosterDerived(name)
}

// IsKnown reports whether name is part of the typed event vocabulary.
func IsKnown(name string) bool {
	return IsReserved(name) || name == NamePlayerMessage
}

// baseSessionEvent provides common implementation for session events.
type baseSessionEvent struct {
	source Peer
}

func (e *baseSessionEvent) SessionID() string {
	if e.source == nil {
		return ""
	}
	return e.source.ID()
}

func (e *baseSessionEvent) Source() Peer {
	return e.source
}

// Opened is published when a connection has been accepted and registered.
type Opened struct {
	baseSessionEvent
}

func NewOpened(source Peer) *Opened {
	return &Opened{baseSessionEvent{source: source}}
}

func (e *Opened) EventName() string {
	return NameOpen
}

// Closed is published when a session has been destroyed.
type Closed struct {
	baseSessionEvent
}

func NewClosed(source Peer) *Closed {
	return &Closed{baseSessionEvent{source: source}}
}

func (e *Closed) EventName() string {
	return NameClose
}

// Packet carries every inbound envelope, untouched.
type Packet struct {
	baseSessionEvent
	Envelope *protocol.Envelope
}

func NewPacket(source Peer, env *protocol.Envelope) *Packet {
	return &Packet{baseSessionEvent: baseSessionEvent{source: source}, Envelope: env}
}

func (e *Packet) EventName() string {
	return NamePacket
}

// Remote is a peer-declared event without a dedicated type.
type Remote struct {
	baseSessionEvent
	Name    string
	Purpose protocol.Purpose
	Body    protocol.Body
}

func NewRemote(source Peer, name string, purpose protocol.Purpose, body protocol.Body) *Remote {
	return &Remote{
		baseSessionEvent: baseSessionEvent{source: source},
		Name:             name,
		Purpose:          purpose,
		Body:             body,
	}
}

func (e *Remote) EventName() string {
	return e.Name
}

// PlayerMessage is a chat message reported by the peer.
type PlayerMessage struct {
	baseSessionEvent
	Sender   string
	Receiver string
	Message  string
	Type     string
	Body     protocol.Body
}

func (e *PlayerMessage) EventName() string {
	return NamePlayerMessage
}

// FromEnvelope maps an inbound envelope to its typed event. Envelopes without an
// event name, or naming a reserved event, yield nil.
func FromEnvelope(source Peer, env *protocol.Envelope) Event {
	name := env.Header.EventName
	if name == "" || IsReserved(name) {
		return nil
	}
	switch name {
	case NamePlayerMessage:
		return &PlayerMessage{
			baseSessionEvent: baseSessionEvent{source: source},
			Sender:           env.Body.String("sender"),
			Receiver:         env.Body.String("receiver"),
			Message:          env.Body.String("message"),
			Type:             env.Body.String("type"),
			Body:             env.Body,
		}
	default:
		return NewRemote(source, name, env.Header.Purpose, env.Body)
	}
}
