package realtime

import (
	"context"
	"encoding/json"
	"sync"
)

// MockConnector is a Connector for testing. Every Open returns a new
// MockPeer wired to the handlers it was given.
type MockConnector struct {
	mu sync.Mutex

	// Configurable behavior
	OpenFunc func(ctx context.Context, credential string, h PeerHandlers) (Peer, error)

	// Captured calls for assertions
	Credentials []string
	Peers       []*MockPeer
}

// NewMockConnector creates a new MockConnector.
func NewMockConnector() *MockConnector {
	return &MockConnector{}
}

// Open implements Connector.
func (m *MockConnector) Open(ctx context.Context, credential string, h PeerHandlers) (Peer, error) {
	m.mu.Lock()
	m.Credentials = append(m.Credentials, credential)
	m.mu.Unlock()

	if m.OpenFunc != nil {
		return m.OpenFunc(ctx, credential, h)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := NewMockPeer(h)
	m.mu.Lock()
	m.Peers = append(m.Peers, p)
	m.mu.Unlock()
	return p, nil
}

// Last returns the most recently opened peer, or nil.
func (m *MockConnector) Last() *MockPeer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Peers) == 0 {
		return nil
	}
	return m.Peers[len(m.Peers)-1]
}

// Opens returns the number of Open calls.
func (m *MockConnector) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Credentials)
}

// MockPeer is a Peer for testing. Simulate helpers drive the handlers the
// way a live connection would; they do nothing once the peer is closed.
type MockPeer struct {
	mu sync.Mutex

	handlers PeerHandlers
	state    ConnectionState
	closed   bool
	closes   int

	// Configurable behavior
	SendFunc func(data []byte) error

	// Captured calls for assertions
	Sent [][]byte
}

// NewMockPeer creates a MockPeer delivering to h.
func NewMockPeer(h PeerHandlers) *MockPeer {
	return &MockPeer{handlers: h, state: ConnectionNew}
}

// Send implements Peer.
func (m *MockPeer) Send(data []byte) error {
	if m.SendFunc != nil {
		return m.SendFunc(data)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.Sent = append(m.Sent, append([]byte(nil), data...))
	return nil
}

// ConnectionState implements Peer.
func (m *MockPeer) ConnectionState() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Close implements Peer.
func (m *MockPeer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	if !m.closed {
		m.closed = true
		m.state = ConnectionClosed
	}
	return nil
}

// Closed reports whether Close was called.
func (m *MockPeer) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Closes returns the number of Close calls.
func (m *MockPeer) Closes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

// SentTypes returns the type field of every sent frame, in order.
func (m *MockPeer) SentTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, 0, len(m.Sent))
	for _, data := range m.Sent {
		var frame struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(data, &frame)
		types = append(types, frame.Type)
	}
	return types
}

// Frames returns the sent frames of type t.
func (m *MockPeer) Frames(t string) [][]byte {
	m.mu.Lock()
	sent := append([][]byte(nil), m.Sent...)
	m.mu.Unlock()

	var out [][]byte
	for _, data := range sent {
		var frame struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(data, &frame) == nil && frame.Type == t {
			out = append(out, data)
		}
	}
	return out
}

func (m *MockPeer) live() (PeerHandlers, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handlers, !m.closed
}

// SimulateState simulates a peer connection state change.
func (m *MockPeer) SimulateState(s ConnectionState) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.state = s
	fn := m.handlers.OnConnectionState
	m.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// SimulateOpen simulates the event channel opening.
func (m *MockPeer) SimulateOpen() {
	if h, ok := m.live(); ok && h.OnChannelOpen != nil {
		h.OnChannelOpen(m)
	}
}

// SimulateMessage simulates an inbound frame.
func (m *MockPeer) SimulateMessage(data []byte) {
	if h, ok := m.live(); ok && h.OnChannelMessage != nil {
		h.OnChannelMessage(data)
	}
}

// SimulateEvent marshals v and delivers it as an inbound frame.
func (m *MockPeer) SimulateEvent(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	m.SimulateMessage(data)
}

// SimulateClose simulates the remote end closing the event channel.
func (m *MockPeer) SimulateClose() {
	if h, ok := m.live(); ok && h.OnChannelClose != nil {
		h.OnChannelClose()
	}
}

// SimulateChannelError simulates an event channel error.
func (m *MockPeer) SimulateChannelError(err error) {
	if h, ok := m.live(); ok && h.OnChannelError != nil {
		h.OnChannelError(err)
	}
}
