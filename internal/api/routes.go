package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
)

func (s *Server) setupRoutes() {
	s.app.Use(recover.New())
	s.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/metrics" || c.Path() == "/api/health"
		},
	}))
	s.app.Use(s.metricsMiddleware())
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(s.config.Security.AllowOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	s.app.Get("/api/health", s.handleHealth)
	s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))

	api := s.app.Group("/api", s.authMiddleware())

	api.Get("/metrics", s.handleMetricsJSON)

	sessions := api.Group("/sessions")
	sessions.Get("/", s.handleListSessions)
	sessions.Post("/", s.handleCreateSession)
	sessions.Get("/:id", s.handleGetSession)
	sessions.Delete("/:id", s.handleAbortSession)
	sessions.Post("/:id/capture", s.handleCapture)
	sessions.Post("/:id/corners", s.handleAddCorner)
	sessions.Put("/:id/corners", s.handleSetCorners)
	sessions.Delete("/:id/corners", s.handleClearCorners)
	sessions.Post("/:id/corners/suggest", s.handleSuggestCorners)
	sessions.Post("/:id/process", s.handleProcess)
	sessions.Get("/:id/ready", s.handleReadyPage)
	sessions.Post("/:id/next", s.handleNextPage)
	sessions.Post("/:id/cancel", s.handleCancelPage)
	sessions.Post("/:id/finish", s.handleFinish)

	docs := api.Group("/documents")
	docs.Get("/", s.handleListDocuments)
	docs.Post("/batch/sign", s.handleBatchSign)
	docs.Get("/:id", s.handleGetDocument)
	docs.Delete("/:id", s.handleDeleteDocument)
	docs.Get("/:id/pages/:n", s.handleDocumentPage)
	docs.Post("/:id/preview", s.handlePreview)
	docs.Post("/:id/sign", s.handleSign)
	docs.Get("/:id/artifact", s.handleArtifact)

	folders := api.Group("/folders")
	folders.Get("/", s.handleListFolders)
	folders.Post("/", s.handleCreateFolder)
	folders.Get("/:id", s.handleGetFolder)
	folders.Delete("/:id", s.handleDeleteFolder)
	folders.Get("/:id/documents", s.handleFolderDocuments)

	carriers := api.Group("/carriers")
	carriers.Get("/", s.handleListCarriers)
	carriers.Post("/", s.handleCreateCarrier)
	carriers.Get("/:id", s.handleGetCarrier)
	carriers.Delete("/:id", s.handleDeleteCarrier)

	s.app.Use("/ws", s.authMiddleware(), func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws/sessions/:id", websocket.New(s.handleSessionEvents))
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Address, s.config.Server.Port)
	s.logger.Sugar().Infof("API listening on %s", addr)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.app.ShutdownWithContext(ctx)
}
