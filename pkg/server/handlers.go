package server

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-concierge/pkg/history"
	"github.com/teslashibe/go-concierge/pkg/realtime"
)

// ok writes the {success, data} envelope every API reply uses.
func ok(c *fiber.Ctx, data any) error {
	return c.JSON(fiber.Map{"success": true, "data": data})
}

func fail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"success": false, "message": message})
}

// handleHealth reports liveness
func (s *Server) handleHealth(c *fiber.Ctx) error {
	active := false
	if s.ctrl != nil {
		active = s.ctrl.Snapshot().Active
	}
	return c.JSON(fiber.Map{
		"status":         "ok",
		"event_clients":  s.hub.ClientCount(),
		"session_active": active,
	})
}

// handleVoiceToken issues an ephemeral realtime credential
func (s *Server) handleVoiceToken(c *fiber.Ctx) error {
	if s.issuer == nil {
		return fail(c, fiber.StatusServiceUnavailable, "Voice is not configured")
	}
	token, err := s.issuer.Token(c.UserContext())
	if err != nil {
		s.logger.Error("voice token", "error", err)
		return fail(c, fiber.StatusInternalServerError, "Failed to get voice token")
	}
	return ok(c, fiber.Map{"voiceToken": token})
}

// handleSaveHistory creates or replaces a conversation record
func (s *Server) handleSaveHistory(c *fiber.Ctx) error {
	var req history.SaveRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Messages == nil {
		return fail(c, fiber.StatusBadRequest, "Messages are required")
	}
	for _, m := range req.Messages {
		if m.Role != history.RoleUser && m.Role != history.RoleAssistant {
			return fail(c, fiber.StatusBadRequest, "Unknown role: "+string(m.Role))
		}
	}

	var id string
	if req.ID != nil {
		id = *req.ID
	}
	id, err := s.store.Save(c.UserContext(), id, clientIP(c), req.Messages)
	if err != nil {
		s.logger.Error("save history", "error", err)
		return fail(c, fiber.StatusInternalServerError, "Failed to update chat history")
	}
	return ok(c, fiber.Map{"id": id})
}

// handleGetHistory returns one conversation record
func (s *Server) handleGetHistory(c *fiber.Ctx) error {
	rec, err := s.store.Get(c.UserContext(), c.Params("id"))
	if errors.Is(err, history.ErrNotFound) {
		return fail(c, fiber.StatusNotFound, "Chat history not found")
	}
	if err != nil {
		s.logger.Error("get history", "error", err)
		return fail(c, fiber.StatusInternalServerError, "Failed to load chat history")
	}
	return ok(c, rec)
}

// handleSessionStart starts a voice session on the server's audio devices
func (s *Server) handleSessionStart(c *fiber.Ctx) error {
	err := s.ctrl.Start(c.UserContext())
	switch {
	case errors.Is(err, realtime.ErrStartAborted):
		return fail(c, fiber.StatusConflict, "Session start was interrupted")
	case err != nil:
		status := fiber.StatusBadGateway
		var media *realtime.MediaAccessError
		if errors.As(err, &media) {
			status = fiber.StatusServiceUnavailable
		}
		return fail(c, status, err.Error())
	}
	return ok(c, s.ctrl.Snapshot())
}

// handleSessionStop ends the active session
func (s *Server) handleSessionStop(c *fiber.Ctx) error {
	s.ctrl.Stop()
	return ok(c, s.ctrl.Snapshot())
}

type textRequest struct {
	Text string `json:"text"`
}

// handleSessionText injects typed text. sent=false tells the UI to use
// the text chat endpoint instead.
func (s *Server) handleSessionText(c *fiber.Ctx) error {
	var req textRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		return fail(c, fiber.StatusBadRequest, "Text is required")
	}
	return c.JSON(fiber.Map{"sent": s.ctrl.SendText(req.Text)})
}

type playbackRequest struct {
	Playing bool `json:"playing"`
}

// handleSessionPlayback relays local playback start and end
func (s *Server) handleSessionPlayback(c *fiber.Ctx) error {
	var req playbackRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	s.ctrl.NotifyPlayback(req.Playing)
	return ok(c, s.ctrl.Snapshot())
}

// handleSessionSnapshot returns the controller state
func (s *Server) handleSessionSnapshot(c *fiber.Ctx) error {
	return ok(c, s.ctrl.Snapshot())
}

// handleSessionHistory returns the session's conversation
func (s *Server) handleSessionHistory(c *fiber.Ctx) error {
	return ok(c, s.ctrl.History())
}

// requireSession rejects session routes when no controller is wired
func (s *Server) requireSession(c *fiber.Ctx) error {
	if s.ctrl == nil {
		return fail(c, fiber.StatusServiceUnavailable, "Voice sessions are not enabled")
	}
	return c.Next()
}

// clientIP prefers the first X-Forwarded-For hop.
func clientIP(c *fiber.Ctx) string {
	if fwd := c.Get(fiber.HeaderXForwardedFor); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return c.IP()
}
