package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	apperrors "github.com/gmsas95/ddtscan/internal/errors"
	"github.com/gmsas95/ddtscan/internal/session"
)

// handleSessionEvents streams session events as JSON until the session ends
// or the client goes away. The current status is sent first.
func (s *Server) handleSessionEvents(c *websocket.Conn) {
	defer c.Close()

	id := c.Params("id")
	acc, err := s.sessions.Get(id)
	if err != nil {
		_ = c.WriteJSON(errorResponse{Error: err.Error(), Code: apperrors.GetCode(err)})
		return
	}

	events, cancel := acc.Subscribe(16)
	defer cancel()

	if err := c.WriteJSON(fiber.Map{"type": "status", "status": acc.Status()}); err != nil {
		return
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := c.WriteJSON(ev); err != nil {
				s.logger.Debug("WebSocket write failed", zap.String("session_id", id), zap.Error(err))
				return
			}
			if ev.Type == session.EventAborted {
				return
			}
		}
	}
}
