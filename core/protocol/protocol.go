// Package protocol defines the JSON envelope exchanged with remote world clients.
package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Purpose is the header.messagePurpose value of an envelope.
type Purpose string

const (
	PurposeCommandRequest  Purpose = "commandRequest"
	PurposeCommandResponse Purpose = "commandResponse"
	PurposeSubscribe       Purpose = "subscribe"
	PurposeEvent           Purpose = "event"
	PurposeError           Purpose = "error"
)

// Version is the protocol version stamped on outbound envelopes.
const Version = 1

// Header is the routing part of an envelope.
type Header struct {
	Version     int     `json:"version,omitempty"`
	RequestID   string  `json:"requestId,omitempty"`
	Purpose     Purpose `json:"messagePurpose"`
	MessageType string  `json:"messageType,omitempty"`
	EventName   string  `json:"eventName,omitempty"`
}

// Envelope is one whole protocol message.
type Envelope struct {
	Header Header `json:"header"`
	Body   Body   `json:"body"`
}

// IsReply reports whether the envelope answers a request this side issued.
// Replies carrying a recipient marker are push notifications, not replies.
func (e *Envelope) IsReply() bool {
	if e.Header.Purpose != PurposeCommandResponse && e.Header.Purpose != PurposeError {
		return false
	}
	return !e.Body.Has("recipient")
}

// Body is the arbitrary structured payload of an envelope.
type Body map[string]any

// Has reports whether key is present.
func (b Body) Has(key string) bool {
	_, ok := b[key]
	return ok
}

// String returns the value at key as a string, or "" if absent or not a string.
func (b Body) String(key string) string {
	s, _ := b[key].(string)
	return s
}

// Int returns the value at key as an int. JSON numbers decode as float64, so both
// float and json.Number representations are accepted.
func (b Body) Int(key string) (int, bool) {
	switch v := b[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// Bool returns the value at key as a bool.
func (b Body) Bool(key string) bool {
	v, _ := b[key].(bool)
	return v
}

// NewRequestID returns a fresh request identifier.
func NewRequestID() string {
	return uuid.NewString()
}

// NewCommand builds a command request envelope for the given command line.
func NewCommand(commandLine string) *Envelope {
	return &Envelope{
		Header: Header{
			Version:     Version,
			RequestID:   NewRequestID(),
			Purpose:     PurposeCommandRequest,
			MessageType: string(PurposeCommandRequest),
		},
		Body: Body{
			"version":     Version,
			"commandLine": commandLine,
			"origin":      map[string]any{"type": "player"},
		},
	}
}

// NewSubscribe builds a declarative "start sending me this event" envelope.
func NewSubscribe(eventName string) *Envelope {
	return &Envelope{
		Header: Header{
			Version:     Version,
			RequestID:   NewRequestID(),
			Purpose:     PurposeSubscribe,
			MessageType: string(PurposeCommandRequest),
		},
		Body: Body{
			"eventName": eventName,
		},
	}
}

// Encode serializes an envelope for the wire.
func Encode(env *Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses a single wire message into an envelope.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if env.Body == nil {
		env.Body = Body{}
	}
	return &env, nil
}
