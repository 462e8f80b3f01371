package realtime

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Controller runs at most one voice session at a time.
//
// Start is not reentrant: a Start while a session is active first stops
// it. Stop is idempotent and may be called concurrently, including while
// a Start is in flight; every call returns with the session fully torn
// down.
//
// Observers run synchronously on the goroutine that produced the event
// and must not call Start or Stop.
type Controller struct {
	cfg       *Config
	creds     CredentialSource
	connector Connector
	logger    *slog.Logger
	recorder  Recorder
	obs       *observers

	startMu sync.Mutex

	mu            sync.Mutex
	gen           uint64
	session       *VoiceSession
	cancelStart   context.CancelFunc
	startDone     chan struct{}
	closing       chan struct{}
	last          UIState
	lastHistory   []HistoryEntry
	lastHistoryID string
}

// NewController creates a controller that fetches a credential from creds
// and opens peers through connector.
func NewController(creds CredentialSource, connector Connector, opts ...Option) (*Controller, error) {
	if creds == nil {
		return nil, ErrMissingCredentialSource
	}
	if connector == nil {
		return nil, ErrMissingConnector
	}

	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}

	return &Controller{
		cfg:       cfg,
		creds:     creds,
		connector: connector,
		logger:    cfg.Logger.With("component", "realtime.controller"),
		recorder:  cfg.Recorder,
		obs:       &observers{},
		last:      StateIdle,
	}, nil
}

// OnState sets the UI state callback.
func (c *Controller) OnState(fn func(UIState)) {
	c.obs.mu.Lock()
	defer c.obs.mu.Unlock()
	c.obs.onState = fn
}

// OnMessage sets the chat message callback.
func (c *Controller) OnMessage(fn func(ChatMessage)) {
	c.obs.mu.Lock()
	defer c.obs.mu.Unlock()
	c.obs.onMessage = fn
}

// OnError sets the error callback. Fatal and non-fatal errors both arrive
// here; IsFatal tells them apart.
func (c *Controller) OnError(fn func(error)) {
	c.obs.mu.Lock()
	defer c.obs.mu.Unlock()
	c.obs.onError = fn
}

// OnLifecycle sets the session lifecycle callback.
func (c *Controller) OnLifecycle(fn func(LifecycleEvent)) {
	c.obs.mu.Lock()
	defer c.obs.mu.Unlock()
	c.obs.onLifecycle = fn
}

// Start opens a new session. It returns once the peer is negotiated; the
// event channel opens asynchronously. Start never retries: a failure
// releases everything acquired and is reported once through OnError.
func (c *Controller) Start(ctx context.Context) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.Stop()

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	s := newVoiceSession(c.cfg, c.obs, c.endSession)

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.session = s
	c.cancelStart = cancel
	c.startDone = done
	c.lastHistory = nil
	c.lastHistoryID = ""
	c.mu.Unlock()

	c.logger.Info("starting session", "session_id", s.ID(), "generation", gen)
	c.obs.state(StateProcessing)

	began := time.Now()
	notes, err := c.start(sctx, gen, s)

	c.mu.Lock()
	if c.startDone == done {
		c.startDone = nil
		c.cancelStart = nil
	}
	c.mu.Unlock()
	close(done)

	if err != nil {
		if !c.shutdown(s, EndStartFailed, err, true) || errors.Is(err, ErrStartAborted) {
			c.logger.Info("session start aborted", "session_id", s.ID())
			return ErrStartAborted
		}
		c.logger.Error("session start failed", "session_id", s.ID(), "error", err)
		return err
	}

	c.recorder.ObserveStart(time.Since(began))
	c.logger.Info("session started", "session_id", s.ID(), "elapsed", time.Since(began))
	notes.run()
	return nil
}

func (c *Controller) start(ctx context.Context, gen uint64, s *VoiceSession) (emissions, error) {
	token, err := c.creds.Token(ctx)
	if err != nil {
		return nil, err
	}
	if !c.current(gen, s) {
		return nil, ErrStartAborted
	}

	peer, err := c.connector.Open(ctx, token, s.peerHandlers())
	if err != nil {
		return nil, err
	}

	if !c.current(gen, s) {
		peer.Close()
		return nil, ErrStartAborted
	}
	notes, ok := s.attach(peer)
	if !ok {
		peer.Close()
		return nil, ErrStartAborted
	}
	return notes, nil
}

func (c *Controller) current(gen uint64, s *VoiceSession) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen && c.session == s
}

// Stop ends the active session, interrupting a Start in flight. It is a
// no-op when nothing is active.
func (c *Controller) Stop() {
	c.shutdown(nil, EndUser, nil, false)
}

// endSession is the session's request to end itself.
func (c *Controller) endSession(s *VoiceSession, reason string, cause error) {
	if cause != nil {
		c.logger.Warn("session ended unexpectedly", "session_id", s.ID(), "reason", reason, "error", cause)
	}
	c.shutdown(s, reason, cause, false)
}

// shutdown tears down the active session if it is match (or any session
// when match is nil) and reports whether it did. A nil match also waits
// for a teardown already in flight.
func (c *Controller) shutdown(match *VoiceSession, reason string, cause error, fatal bool) bool {
	c.mu.Lock()
	s := c.session
	if s == nil || (match != nil && s != match) {
		closing := c.closing
		c.mu.Unlock()
		if match == nil && closing != nil {
			<-closing
		}
		return false
	}
	closing := make(chan struct{})
	c.closing = closing
	c.session = nil
	cancel, done := c.cancelStart, c.startDone
	c.cancelStart, c.startDone = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	s.teardown(reason, fatal)
	if cause != nil {
		c.recorder.Error(errorKind(cause))
		c.obs.error(cause)
	}

	snap := s.snapshot()
	entries := s.history()

	c.mu.Lock()
	c.last = snap.State
	c.lastHistory = entries
	c.lastHistoryID = snap.HistoryID
	c.closing = nil
	c.mu.Unlock()
	close(closing)
	return true
}

// SendText sends typed text over the event channel. It reports false when
// no channel is open; the caller then falls back to the text chat API.
func (c *Controller) SendText(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	s := c.active()
	if s == nil {
		return false
	}
	return s.sendText(text)
}

// ChannelOpen reports whether the event channel is open.
func (c *Controller) ChannelOpen() bool {
	s := c.active()
	return s != nil && s.channel.Open()
}

// NotifyPlayback reports local playback of model audio starting or
// ending. It is authoritative alongside the channel's playback events.
func (c *Controller) NotifyPlayback(playing bool) {
	s := c.active()
	if s == nil {
		return
	}
	if playing {
		s.AssistantActivity()
	} else {
		s.PlaybackEnded()
	}
}

// Snapshot returns the current controller state. Once a session has
// ended it keeps that session's history id and size.
func (c *Controller) Snapshot() Snapshot {
	if s := c.active(); s != nil {
		return s.snapshot()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:       c.last,
		Turn:        TurnIdle,
		Language:    c.cfg.InitialLanguage,
		HistoryID:   c.lastHistoryID,
		HistorySize: len(c.lastHistory),
	}
}

// History returns the active session's conversation, or the last
// session's once it has ended.
func (c *Controller) History() []HistoryEntry {
	if s := c.active(); s != nil {
		return s.history()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]HistoryEntry(nil), c.lastHistory...)
}

func (c *Controller) active() *VoiceSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

type observers struct {
	mu          sync.RWMutex
	onState     func(UIState)
	onMessage   func(ChatMessage)
	onError     func(error)
	onLifecycle func(LifecycleEvent)
}

// Emit helpers

func (o *observers) state(st UIState) {
	o.mu.RLock()
	fn := o.onState
	o.mu.RUnlock()
	if fn != nil {
		fn(st)
	}
}

func (o *observers) message(msg ChatMessage) {
	o.mu.RLock()
	fn := o.onMessage
	o.mu.RUnlock()
	if fn != nil {
		fn(msg)
	}
}

func (o *observers) error(err error) {
	o.mu.RLock()
	fn := o.onError
	o.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

func (o *observers) lifecycle(ev LifecycleEvent) {
	o.mu.RLock()
	fn := o.onLifecycle
	o.mu.RUnlock()
	if fn != nil {
		fn(ev)
	}
}
