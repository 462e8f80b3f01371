package realtime

import (
	"time"

	"github.com/teslashibe/go-concierge/pkg/history"
)

// ConnectionState mirrors the WebRTC peer connection state.
type ConnectionState string

const (
	ConnectionNew          ConnectionState = "new"
	ConnectionConnecting   ConnectionState = "connecting"
	ConnectionConnected    ConnectionState = "connected"
	ConnectionDisconnected ConnectionState = "disconnected"
	ConnectionFailed       ConnectionState = "failed"
	ConnectionClosed       ConnectionState = "closed"
)

// ChannelState is the event data channel state.
type ChannelState string

const (
	ChannelConnecting ChannelState = "connecting"
	ChannelOpen       ChannelState = "open"
	ChannelClosing    ChannelState = "closing"
	ChannelClosed     ChannelState = "closed"
)

// UIState is the coarse session state shown to the user.
type UIState string

const (
	StateIdle       UIState = "idle"
	StateProcessing UIState = "processing"
	StateListening  UIState = "listening"
	StateSpeaking   UIState = "speaking"
	StateError      UIState = "error"
)

// Speaker identifies who produced a transcript.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// TranscriptEvent is a transcript normalized out of a data channel frame.
type TranscriptEvent struct {
	Speaker   Speaker
	Text      string
	IsFinal   bool
	Timestamp time.Time
}

// ChatMessage is an utterance forwarded to the chat UI.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      Speaker   `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// LifecycleKind distinguishes session lifecycle signals.
type LifecycleKind string

const (
	LifecycleStarted LifecycleKind = "session_started"
	LifecycleEnded   LifecycleKind = "session_ended"
)

// LifecycleEvent is emitted once when the event channel opens and once
// when the session ends.
type LifecycleEvent struct {
	Kind      LifecycleKind `json:"kind"`
	SessionID string        `json:"session_id"`
	HistoryID string        `json:"history_id,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Snapshot is a point-in-time view of the controller.
type Snapshot struct {
	Active      bool            `json:"active"`
	SessionID   string          `json:"session_id,omitempty"`
	State       UIState         `json:"state"`
	Connection  ConnectionState `json:"connection,omitempty"`
	Channel     ChannelState    `json:"channel,omitempty"`
	Turn        TurnState       `json:"turn"`
	Language    Language        `json:"language"`
	Voice       string          `json:"voice,omitempty"`
	HistoryID   string          `json:"history_id,omitempty"`
	HistorySize int             `json:"history_size"`
}

// HistoryEntry is one line of the conversation history.
type HistoryEntry = history.Message
