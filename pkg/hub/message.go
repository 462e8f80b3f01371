// Package hub provides a thread-safe websocket broadcast hub
// using the idiomatic Go channel-based fan-out pattern.
package hub

import (
	"encoding/json"
	"time"
)

// Message is one encoded frame queued for clients.
type Message struct {
	Data []byte
}

// Event is the JSON envelope every UI event is sent in.
type Event struct {
	Type string    `json:"type"`
	Data any       `json:"data,omitempty"`
	Time time.Time `json:"time"`
}

// NewJSONMessage creates a message from pre-encoded JSON.
func NewJSONMessage(data []byte) Message {
	return Message{Data: data}
}

// NewEvent encodes an Event envelope.
func NewEvent(eventType string, data any) (Message, error) {
	b, err := json.Marshal(Event{Type: eventType, Data: data, Time: time.Now()})
	if err != nil {
		return Message{}, err
	}
	return NewJSONMessage(b), nil
}
