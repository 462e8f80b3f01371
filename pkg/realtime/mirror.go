package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-concierge/pkg/history"
)

// historyMirror copies a session's history to a history.Writer in the
// background. Writes are serialized and coalesced: each write carries the
// full message list, so only the newest snapshot needs sending.
type historyMirror struct {
	writer  history.Writer
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	id      string
	latest  []history.Message
	pending bool
	closed  bool

	wake chan struct{}
	done chan struct{}
}

func newHistoryMirror(w history.Writer, timeout time.Duration, logger *slog.Logger) *historyMirror {
	m := &historyMirror{
		writer:  w,
		timeout: timeout,
		logger:  logger,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	if w == nil {
		close(m.done)
		return m
	}
	go m.run()
	return m
}

// ID returns the record id, empty until the first successful write.
func (m *historyMirror) ID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id
}

// push queues a snapshot. It never blocks.
func (m *historyMirror) push(snapshot []history.Message) {
	if m.writer == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.latest = snapshot
	m.pending = true
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// close stops accepting snapshots. A queued snapshot is still written.
func (m *historyMirror) close() {
	if m.writer == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.wake)
	}
}

// wait blocks until the writer goroutine has exited or timeout passes.
// It reports whether the writer finished.
func (m *historyMirror) wait(timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-m.done:
		return true
	case <-t.C:
		return false
	}
}

func (m *historyMirror) run() {
	defer close(m.done)
	for range m.wake {
		m.flush()
	}
	m.flush()
}

func (m *historyMirror) flush() {
	m.mu.Lock()
	if !m.pending {
		m.mu.Unlock()
		return
	}
	snapshot, id := m.latest, m.id
	m.pending = false
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	newID, err := m.writer.Save(ctx, id, snapshot)
	if err != nil {
		m.logger.Warn("history write failed", "error", err, "messages", len(snapshot))
	}
	if newID != "" {
		m.mu.Lock()
		m.id = newID
		m.mu.Unlock()
	}
}
