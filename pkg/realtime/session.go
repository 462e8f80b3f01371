package realtime

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-concierge/pkg/history"
)

// Reasons a session ends.
const (
	EndUser          = "user"
	EndChannelClosed = "channel_closed"
	EndChannelError  = "channel_error"
	EndConnection    = "connection"
	EndStartFailed   = "start_failed"
)

// VoiceSession is one call: the peer, the protocol handler and all
// per-call conversation state. Handlers for one session run on the peer's
// delivery goroutines; mu serializes them.
type VoiceSession struct {
	id       string
	cfg      *Config
	logger   *slog.Logger
	recorder Recorder
	obs      *observers
	channel  *ChannelHandler
	mirror   *historyMirror

	// onEnd asks the controller to end this session.
	onEnd func(s *VoiceSession, reason string, cause error)

	mu                sync.Mutex
	peer              Peer
	attached          bool
	opened            bool
	ended             bool
	fatal             bool
	conn              ConnectionState
	language          Language
	voice             string
	agg               *Aggregator
	requestedResponse bool
	entries           []history.Message
	ui                UIState

	endOnce      sync.Once
	teardownOnce sync.Once
}

func newVoiceSession(cfg *Config, obs *observers, onEnd func(*VoiceSession, string, error)) *VoiceSession {
	rec := cfg.Recorder
	if rec == nil {
		rec = nopRecorder{}
	}
	id := uuid.NewString()
	logger := cfg.Logger.With("component", "realtime.session", "session_id", id)

	s := &VoiceSession{
		id:       id,
		cfg:      cfg,
		logger:   logger,
		recorder: rec,
		obs:      obs,
		onEnd:    onEnd,
		conn:     ConnectionNew,
		language: cfg.InitialLanguage,
		voice:    cfg.Voices.VoiceFor(cfg.InitialLanguage),
		agg:      NewAggregator(),
		ui:       StateProcessing,
	}
	s.channel = NewChannelHandler(s, logger, rec)
	s.mirror = newHistoryMirror(cfg.History, cfg.HistoryTimeout, logger)
	return s
}

// ID returns the session id.
func (s *VoiceSession) ID() string {
	return s.id
}

func (s *VoiceSession) peerHandlers() PeerHandlers {
	return PeerHandlers{
		OnConnectionState: s.connectionChanged,
		OnChannelOpen:     s.channel.HandleOpen,
		OnChannelMessage:  s.channel.HandleMessage,
		OnChannelClose:    s.channel.HandleClose,
		OnChannelError: func(err error) {
			s.end(EndChannelError, err)
		},
	}
}

// attach hands the negotiated peer to the session. It reports false when
// the session already ended; the caller still owns p then.
func (s *VoiceSession) attach(p Peer) (emissions, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return nil, false
	}
	s.peer = p
	s.attached = true
	s.recorder.SessionStarted()
	return s.refreshUILocked(), true
}

// end requests teardown from the controller. It runs on its own goroutine
// because teardown closes the peer whose callback may be calling us.
func (s *VoiceSession) end(reason string, cause error) {
	s.endOnce.Do(func() {
		if s.onEnd != nil {
			go s.onEnd(s, reason, cause)
		}
	})
}

// teardown releases everything the session holds and emits the end of
// the session lifecycle. Only the first call has any effect. A fatal
// teardown leaves the UI in the error state instead of idle. Media is
// released first; the final history write then gets up to the history
// timeout so the ended event carries its id.
func (s *VoiceSession) teardown(reason string, fatal bool) {
	s.teardownOnce.Do(func() {
		s.mu.Lock()
		s.ended = true
		s.fatal = fatal
		peer := s.peer
		s.peer = nil
		attached, opened := s.attached, s.opened
		var notes emissions
		pending := s.agg.Pending()
		if text, ok := s.agg.Stop(); ok {
			notes = append(notes, s.chatLocked(SpeakerUser, text))
		} else if pending != "" {
			s.logger.Info("pending user text discarded at stop", "text", pending)
		}
		s.conn = ConnectionClosed
		notes = append(notes, s.refreshUILocked()...)
		s.mu.Unlock()

		s.channel.Detach()
		if peer != nil {
			if err := peer.Close(); err != nil {
				s.logger.Debug("peer close", "error", err)
			}
		}
		s.mirror.close()
		if !s.mirror.wait(s.cfg.HistoryTimeout) {
			s.logger.Warn("final history write still running", "timeout", s.cfg.HistoryTimeout)
		}

		notes.run()
		if opened {
			s.obs.lifecycle(LifecycleEvent{
				Kind:      LifecycleEnded,
				SessionID: s.id,
				HistoryID: s.mirror.ID(),
				Reason:    reason,
				Timestamp: time.Now(),
			})
		}
		if attached {
			s.recorder.SessionEnded(reason)
		}
		s.logger.Info("session ended", "reason", reason)
	})
}

func (s *VoiceSession) connectionChanged(state ConnectionState) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.conn = state
	notes := s.refreshUILocked()
	s.mu.Unlock()

	s.recorder.Event("connection_" + string(state))
	notes.run()

	switch state {
	case ConnectionDisconnected, ConnectionFailed, ConnectionClosed:
		derr := &ConnectionDegradedError{State: state}
		if derr.Terminal() {
			s.end(EndConnection, derr)
		} else {
			s.logger.Warn("peer connection degraded", "state", state)
		}
	}
}

// ChannelOpened implements ChannelListener.
func (s *VoiceSession) ChannelOpened() {
	s.mu.Lock()
	if s.ended || s.opened {
		s.mu.Unlock()
		return
	}
	s.opened = true
	s.mu.Unlock()

	s.obs.lifecycle(LifecycleEvent{
		Kind:      LifecycleStarted,
		SessionID: s.id,
		Timestamp: time.Now(),
	})
}

// ChannelClosed implements ChannelListener.
func (s *VoiceSession) ChannelClosed() {
	s.end(EndChannelClosed, nil)
}

// UserSpeechStarted implements ChannelListener.
func (s *VoiceSession) UserSpeechStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.agg.UserSpeechStarted()
	}
}

// UserTranscript implements ChannelListener.
func (s *VoiceSession) UserTranscript(ev TranscriptEvent) {
	if !ev.IsFinal {
		s.mu.Lock()
		if !s.ended {
			s.agg.UserInterim(ev.Text)
		}
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	var notes emissions
	spoken := strings.TrimSpace(ev.Text) != ""
	if spoken {
		s.appendLocked(history.RoleUser, ev.Text)
	}
	if text, ok := s.agg.UserFinal(ev.Text); ok {
		notes = append(notes, s.chatLocked(SpeakerUser, text))
	}

	var voice string
	if lang := Detect(ev.Text); spoken && lang != s.language {
		s.logger.Info("language changed", "from", s.language, "to", lang)
		s.language = lang
		if next := s.cfg.Voices.VoiceFor(lang); next != s.voice {
			s.voice = next
			voice = next
		}
	}

	requestResponse := spoken && !s.requestedResponse
	if requestResponse {
		s.requestedResponse = true
	}
	notes = append(notes, s.refreshUILocked()...)
	s.mu.Unlock()

	notes.run()

	if voice != "" {
		if err := s.channel.UpdateVoice(voice); err != nil {
			s.logger.Warn("voice update not sent", "voice", voice, "error", err)
		}
	}
	if requestResponse {
		if err := s.channel.RequestResponse(); err != nil {
			s.logger.Warn("response request not sent", "error", err)
			s.mu.Lock()
			s.requestedResponse = false
			s.mu.Unlock()
		}
	}
}

// AssistantTranscript implements ChannelListener.
func (s *VoiceSession) AssistantTranscript(ev TranscriptEvent) {
	s.mu.Lock()
	if s.ended || strings.TrimSpace(ev.Text) == "" {
		s.mu.Unlock()
		return
	}
	s.appendLocked(history.RoleAssistant, ev.Text)
	notes := emissions{s.chatLocked(SpeakerAssistant, strings.TrimSpace(ev.Text))}
	s.mu.Unlock()

	notes.run()
}

// AssistantActivity implements ChannelListener.
func (s *VoiceSession) AssistantActivity() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.agg.AssistantActivity()
	notes := s.refreshUILocked()
	s.mu.Unlock()

	notes.run()
}

// PlaybackEnded implements ChannelListener.
func (s *VoiceSession) PlaybackEnded() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	var notes emissions
	if text, ok := s.agg.PlaybackEnded(); ok {
		notes = append(notes, s.chatLocked(SpeakerUser, text))
	}
	notes = append(notes, s.refreshUILocked()...)
	s.mu.Unlock()

	notes.run()
}

// ProtocolError implements ChannelListener. It reports without touching
// session state.
func (s *VoiceSession) ProtocolError(err error) {
	s.recorder.Error(errorKind(err))
	s.obs.error(err)
}

func (s *VoiceSession) sendText(text string) bool {
	return s.channel.SendText(text)
}

func (s *VoiceSession) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Active:      !s.ended,
		SessionID:   s.id,
		State:       s.ui,
		Connection:  s.conn,
		Channel:     s.channel.State(),
		Turn:        s.agg.State(),
		Language:    s.language,
		Voice:       s.voice,
		HistoryID:   s.mirror.ID(),
		HistorySize: len(s.entries),
	}
}

func (s *VoiceSession) history() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]HistoryEntry(nil), s.entries...)
}

func (s *VoiceSession) appendLocked(role history.Role, text string) {
	s.entries = append(s.entries, history.Message{Role: role, Content: strings.TrimSpace(text)})
	s.mirror.push(append([]history.Message(nil), s.entries...))
}

func (s *VoiceSession) chatLocked(role Speaker, text string) func() {
	msg := ChatMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		Timestamp: time.Now(),
	}
	return func() { s.obs.message(msg) }
}

// refreshUILocked derives the UI state and returns its emission if it changed.
func (s *VoiceSession) refreshUILocked() emissions {
	var next UIState
	switch {
	case s.ended && s.fatal:
		next = StateError
	case s.ended:
		next = StateIdle
	case s.agg.State() == TurnAssistantSpeaking:
		next = StateSpeaking
	case s.conn == ConnectionConnected:
		next = StateListening
	default:
		next = StateProcessing
	}
	if next == s.ui {
		return nil
	}
	s.ui = next
	return emissions{func() { s.obs.state(next) }}
}

// emissions are observer calls collected under the lock and run after it.
type emissions []func()

func (e emissions) run() {
	for _, fn := range e {
		fn()
	}
}
