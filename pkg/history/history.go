// Package history persists voice conversation transcripts.
//
// The Client side is what a running session uses to mirror its history
// to the server. The Store side backs the server's history API, in
// memory for development and in PostgreSQL for production.
package history

import (
	"context"
	"errors"
	"time"
)

// Role is who said a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one line of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Record is a stored conversation.
type Record struct {
	ID        string    `json:"id"`
	UserIP    string    `json:"userIp,omitempty"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ErrNotFound is returned for unknown record ids.
var ErrNotFound = errors.New("history: record not found")

// Writer saves the full message list of a conversation. An empty id
// creates a new record. The returned id identifies the record.
type Writer interface {
	Save(ctx context.Context, id string, messages []Message) (string, error)
}

// Store is the server-side persistence for history records.
type Store interface {
	// Save replaces the messages of record id, creating it when id is
	// empty or unknown. userIP is recorded on creation.
	Save(ctx context.Context, id, userIP string, messages []Message) (string, error)
	Get(ctx context.Context, id string) (*Record, error)
	Close() error
}
