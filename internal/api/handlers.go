package api

import (
	"bytes"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/gmsas95/ddtscan/internal/domain"
	apperrors "github.com/gmsas95/ddtscan/internal/errors"
	"github.com/gmsas95/ddtscan/internal/geometry"
	"github.com/gmsas95/ddtscan/internal/session"
)

// Version is reported by the health endpoint; the CLI overrides it at
// startup.
var Version = "dev"

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"version":   Version,
		"sessions":  s.sessions.Count(),
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleMetricsJSON(c *fiber.Ctx) error {
	return c.JSON(s.metrics.Snapshot())
}

// ==================== Sessions ====================

func (s *Server) session(c *fiber.Ctx) (*session.Accumulator, error) {
	return s.sessions.Get(c.Params("id"))
}

func (s *Server) handleListSessions(c *fiber.Ctx) error {
	return c.JSON(s.sessions.List())
}

func (s *Server) handleCreateSession(c *fiber.Ctx) error {
	var req struct {
		FolderID string `json:"folder_id"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.ErrBadRequest.Withf("invalid request")
		}
	}
	if req.FolderID != "" {
		if _, err := s.store.GetFolder(c.UserContext(), req.FolderID); err != nil {
			return err
		}
	}

	acc, err := s.sessions.Create(req.FolderID)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(acc.Status())
}

func (s *Server) handleGetSession(c *fiber.Ctx) error {
	acc, err := s.session(c)
	if err != nil {
		return err
	}
	return c.JSON(acc.Status())
}

func (s *Server) handleAbortSession(c *fiber.Ctx) error {
	if err := s.sessions.Remove(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// handleCapture accepts a multipart "image" field or a raw image body.
// Display dimensions come from form fields or query parameters.
func (s *Server) handleCapture(c *fiber.Ctx) error {
	acc, err := s.session(c)
	if err != nil {
		return err
	}

	data, err := readImage(c, "image")
	if err != nil {
		return err
	}

	source := domain.SourceKind(formOrQuery(c, "source"))
	switch source {
	case "":
		source = domain.SourceCamera
	case domain.SourceCamera, domain.SourceFile:
	default:
		return apperrors.ErrBadRequest.Withf("unknown source %q", source)
	}

	raw := domain.RawCapture{
		Data:          data,
		CapturedAt:    time.Now(),
		Source:        source,
		DisplayWidth:  atoi(formOrQuery(c, "display_width")),
		DisplayHeight: atoi(formOrQuery(c, "display_height")),
	}
	if err := acc.Capture(c.UserContext(), raw); err != nil {
		return err
	}
	return c.JSON(acc.Status())
}

func (s *Server) handleAddCorner(c *fiber.Ctx) error {
	acc, err := s.session(c)
	if err != nil {
		return err
	}
	var p geometry.Point
	if err := c.BodyParser(&p); err != nil {
		return apperrors.ErrBadRequest.Withf("invalid point")
	}
	n, err := acc.AddCorner(p)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"count": n, "status": acc.Status()})
}

func (s *Server) handleSetCorners(c *fiber.Ctx) error {
	acc, err := s.session(c)
	if err != nil {
		return err
	}
	var req struct {
		Points  []geometry.Point `json:"points"`
		Display bool             `json:"display"`
	}
	if err := c.BodyParser(&req); err != nil {
		return apperrors.ErrBadRequest.Withf("invalid corners")
	}
	if err := acc.SetCorners(req.Points, req.Display); err != nil {
		return err
	}
	return c.JSON(acc.Status())
}

func (s *Server) handleClearCorners(c *fiber.Ctx) error {
	acc, err := s.session(c)
	if err != nil {
		return err
	}
	if err := acc.ClearCorners(); err != nil {
		return err
	}
	return c.JSON(acc.Status())
}

func (s *Server) handleSuggestCorners(c *fiber.Ctx) error {
	acc, err := s.session(c)
	if err != nil {
		return err
	}
	points, err := acc.SuggestCorners(c.UserContext(), s.detector)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"mode": s.detector.Mode(), "corners": points})
}

func (s *Server) handleProcess(c *fiber.Ctx) error {
	acc, err := s.session(c)
	if err != nil {
		return err
	}
	out, err := acc.Process(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(processResponse{
		Status:     acc.Status(),
		Rung:       string(out.Rung),
		Warnings:   messages(out.Warnings),
		DurationMs: out.Duration.Milliseconds(),
	})
}

func (s *Server) handleReadyPage(c *fiber.Ctx) error {
	acc, err := s.session(c)
	if err != nil {
		return err
	}
	page, ok := acc.Ready()
	if !ok {
		return apperrors.ErrNotFound.Withf("no page awaiting confirmation")
	}
	return sendPage(c, *page)
}

func (s *Server) handleNextPage(c *fiber.Ctx) error {
	acc, err := s.session(c)
	if err != nil {
		return err
	}
	if err := acc.AddNextPage(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(acc.Status())
}

func (s *Server) handleCancelPage(c *fiber.Ctx) error {
	acc, err := s.session(c)
	if err != nil {
		return err
	}
	if err := acc.CancelPage(); err != nil {
		return err
	}
	return c.JSON(acc.Status())
}

// handleFinish closes the page set, persists it as a document and releases
// the session. A session left finalizing by a failed store write can retry.
func (s *Server) handleFinish(c *fiber.Ctx) error {
	acc, err := s.session(c)
	if err != nil {
		return err
	}
	var req struct {
		Name string `json:"name"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.ErrBadRequest.Withf("invalid request")
		}
	}

	ctx := c.UserContext()
	if acc.State() != session.StateFinalizing {
		if err := acc.Finish(ctx); err != nil {
			return err
		}
	}
	doc, err := s.workflow.Finalize(ctx, acc, req.Name)
	if err != nil {
		return err
	}
	if err := s.sessions.Remove(ctx, acc.ID()); err != nil {
		s.logger.Warn("Failed to release session", zap.String("session_id", acc.ID()), zap.Error(err))
	}
	return c.Status(fiber.StatusCreated).JSON(doc)
}

// ==================== Helpers ====================

func readImage(c *fiber.Ctx, field string) ([]byte, error) {
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		fh, err := c.FormFile(field)
		if err != nil {
			return nil, apperrors.ErrBadRequest.Withf("no %s provided", field)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, apperrors.ErrBadRequest.With(err)
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, apperrors.ErrBadRequest.With(err)
		}
		return data, nil
	}

	body := c.Body()
	if len(body) == 0 {
		return nil, apperrors.ErrBadRequest.Withf("empty body")
	}
	// fasthttp reuses the body buffer after the handler returns.
	return bytes.Clone(body), nil
}

func formOrQuery(c *fiber.Ctx, key string) string {
	if v := c.FormValue(key); v != "" {
		return v
	}
	return c.Query(key)
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func sendPage(c *fiber.Ctx, page domain.Page) error {
	c.Set(fiber.HeaderContentType, page.Format.ContentType())
	c.Set("X-Page-Width", strconv.Itoa(page.Width))
	c.Set("X-Page-Height", strconv.Itoa(page.Height))
	c.Set("X-Aspect-Warning", strconv.FormatBool(page.AspectWarning))
	return c.Send(page.Data)
}
