// Package server exposes the concierge over HTTP: the voice credential
// proxy, the history API, session control and the UI event feed.
package server

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/teslashibe/go-concierge/internal/metrics"
	"github.com/teslashibe/go-concierge/pkg/history"
	"github.com/teslashibe/go-concierge/pkg/hub"
	"github.com/teslashibe/go-concierge/pkg/realtime"
)

// UI event types sent on /ws/events.
const (
	EventState     = "state"
	EventMessage   = "message"
	EventError     = "error"
	EventLifecycle = "lifecycle"
	EventSnapshot  = "snapshot"
)

// Options configures a Server. Store is required; everything else is
// optional and disables its routes when nil.
type Options struct {
	Issuer     TokenIssuer
	Store      history.Store
	Controller *realtime.Controller
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Server is the concierge HTTP server
type Server struct {
	app    *fiber.App
	issuer TokenIssuer
	store  history.Store
	ctrl   *realtime.Controller
	hub    *hub.Hub
	logger *slog.Logger
}

// New creates a server and starts its event hub.
func New(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, errors.New("server: history store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		issuer: opts.Issuer,
		store:  opts.Store,
		ctrl:   opts.Controller,
		hub:    hub.New("events", logger),
		logger: logger.With("component", "server"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Concierge",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	app.Get("/health", s.handleHealth)
	if opts.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(opts.Metrics.Handler()))
	}

	api := app.Group("/api")
	api.Get("/voice", s.handleVoiceToken)
	api.Post("/history", s.handleSaveHistory)
	api.Get("/history/:id", s.handleGetHistory)

	session := api.Group("/session", s.requireSession)
	session.Get("/", s.handleSessionSnapshot)
	session.Post("/start", s.handleSessionStart)
	session.Post("/stop", s.handleSessionStop)
	session.Post("/text", s.handleSessionText)
	session.Post("/playback", s.handleSessionPlayback)
	session.Get("/history", s.handleSessionHistory)

	app.Use("/ws", hub.Upgrade)
	app.Get("/ws/events", s.hub.Handler())

	s.app = app
	if s.ctrl != nil {
		s.bridgeEvents()
	}
	go s.hub.Run()
	return s, nil
}

// bridgeEvents forwards controller observations to websocket clients.
func (s *Server) bridgeEvents() {
	broadcast := func(eventType string, data any) {
		if err := s.hub.BroadcastEvent(eventType, data); err != nil {
			s.logger.Warn("encode event", "type", eventType, "error", err)
		}
	}
	s.ctrl.OnState(func(st realtime.UIState) {
		broadcast(EventState, fiber.Map{"state": st})
	})
	s.ctrl.OnMessage(func(m realtime.ChatMessage) {
		broadcast(EventMessage, m)
	})
	s.ctrl.OnError(func(err error) {
		broadcast(EventError, fiber.Map{"message": err.Error(), "fatal": realtime.IsFatal(err)})
	})
	s.ctrl.OnLifecycle(func(ev realtime.LifecycleEvent) {
		broadcast(EventLifecycle, ev)
	})
	s.hub.OnJoin(func() []hub.Message {
		msg, err := hub.NewEvent(EventSnapshot, s.ctrl.Snapshot())
		if err != nil {
			return nil
		}
		return []hub.Message{msg}
	})
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops the event hub and the HTTP server.
func (s *Server) Shutdown() error {
	s.hub.Stop()
	return s.app.Shutdown()
}
