package realtime

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Sender writes one frame to the event data channel.
type Sender interface {
	Send(data []byte) error
}

// ChannelListener receives decoded protocol events. Calls arrive in frame
// order on the channel's delivery goroutine.
type ChannelListener interface {
	ChannelOpened()
	ChannelClosed()
	UserSpeechStarted()
	UserTranscript(ev TranscriptEvent)
	AssistantTranscript(ev TranscriptEvent)
	AssistantActivity()
	PlaybackEnded()
	ProtocolError(err error)
}

// ChannelHandler speaks the JSON event protocol over one data channel.
// It decodes inbound frames for a ChannelListener and encodes the three
// outbound frames. It holds no conversation state.
type ChannelHandler struct {
	listener ChannelListener
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time

	mu    sync.RWMutex
	out   Sender
	state ChannelState

	closeOnce sync.Once
}

// NewChannelHandler creates a handler delivering to l.
func NewChannelHandler(l ChannelListener, logger *slog.Logger, rec Recorder) *ChannelHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	return &ChannelHandler{
		listener: l,
		logger:   logger.With("component", "realtime.channel"),
		recorder: rec,
		now:      time.Now,
		state:    ChannelConnecting,
	}
}

// State returns the channel state.
func (h *ChannelHandler) State() ChannelState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Open reports whether frames can be sent.
func (h *ChannelHandler) Open() bool {
	return h.State() == ChannelOpen
}

// HandleOpen records the open channel and signals the listener. Later
// calls are ignored.
func (h *ChannelHandler) HandleOpen(out Sender) {
	h.mu.Lock()
	if h.state != ChannelConnecting {
		h.mu.Unlock()
		return
	}
	h.out = out
	h.state = ChannelOpen
	h.mu.Unlock()

	h.logger.Info("data channel open")
	h.recorder.Event("channel_open")
	h.listener.ChannelOpened()
}

// HandleClose marks the channel closed and signals the listener once.
func (h *ChannelHandler) HandleClose() {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.state = ChannelClosed
		h.out = nil
		h.mu.Unlock()

		h.logger.Info("data channel closed")
		h.recorder.Event("channel_close")
		h.listener.ChannelClosed()
	})
}

// Detach closes the handler without notifying the listener. Used on
// teardown when the session ends on its own terms.
func (h *ChannelHandler) Detach() {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.state = ChannelClosed
		h.out = nil
		h.mu.Unlock()
	})
}

// HandleMessage decodes one frame and dispatches it. Malformed frames are
// logged and reported; they never end the session.
func (h *ChannelHandler) HandleMessage(data []byte) {
	if h.State() == ChannelClosed {
		return
	}

	ev, err := ParseEvent(data)
	if err != nil {
		h.logger.Warn("malformed event", "error", err)
		h.recorder.Frame("in", "malformed")
		h.listener.ProtocolError(err)
		return
	}
	h.recorder.Frame("in", ev.Type)

	switch ev.Type {
	case EventUserTranscriptDone:
		t, _ := ev.TranscriptEvent(h.now())
		h.logger.Debug("user transcript", "text", t.Text)
		h.listener.UserTranscript(t)

	case EventUserTranscriptDelta:
		t, _ := ev.TranscriptEvent(h.now())
		h.listener.UserTranscript(t)

	case EventSpeechStarted:
		h.listener.UserSpeechStarted()

	case EventAssistantTranscript:
		t, _ := ev.TranscriptEvent(h.now())
		h.logger.Debug("assistant transcript", "text", t.Text)
		h.listener.AssistantTranscript(t)

	case EventAssistantTextDelta, EventAssistantAudioDelta, EventOutputAudioStarted:
		h.listener.AssistantActivity()

	case EventOutputAudioStopped, EventOutputAudioCleared:
		h.listener.PlaybackEnded()

	case EventError:
		merr := ev.ModelError()
		h.logger.Warn("model reported error", "code", merr.Code, "message", merr.Message)
		h.listener.ProtocolError(merr)

	default:
		// session.*, response.created/done, rate limits and other acks
		if !strings.HasPrefix(ev.Type, "session.") {
			h.logger.Debug("ignored event", "type", ev.Type)
		}
	}
}

// RequestResponse sends response.create.
func (h *ChannelHandler) RequestResponse() error {
	return h.send(EventResponseCreate, newResponseCreate())
}

// UpdateVoice sends response.settings.update for voice.
func (h *ChannelHandler) UpdateVoice(voice string) error {
	return h.send(EventSettingsUpdate, newSettingsUpdate(voice))
}

// SendText injects typed text. It returns false, without sending, when
// the channel is not open so the caller can fall back to another path.
func (h *ChannelHandler) SendText(text string) bool {
	err := ErrEmptyText
	if strings.TrimSpace(text) != "" {
		err = h.send(EventText, newTextMessage(text))
	}
	if err != nil {
		h.logger.Warn("text not sent", "error", err)
		return false
	}
	return true
}

func (h *ChannelHandler) send(frameType string, v any) error {
	h.mu.RLock()
	out, state := h.out, h.state
	h.mu.RUnlock()

	if state != ChannelOpen || out == nil {
		return ErrNotConnected
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("realtime: encode %s: %w", frameType, err)
	}
	if err := out.Send(data); err != nil {
		return fmt.Errorf("realtime: send %s: %w", frameType, err)
	}
	h.recorder.Frame("out", frameType)
	return nil
}
