// pkg/server/server.go
// Copyright(c) 2024-2026 Echo-Map contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package server is the daemon's HTTP surface: a small REST API for
// controlling navigation and a websocket endpoint that streams session
// notifications and accepts position fixes.
package server

import (
	"errors"

	"github.com/Milad9A/Echo-Map-sub001/pkg/log"
	"github.com/Milad9A/Echo-Map-sub001/pkg/nav"
	"github.com/Milad9A/Echo-Map-sub001/pkg/routing"
	"github.com/Milad9A/Echo-Map-sub001/pkg/session"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

type Server struct {
	App     *fiber.App
	Manager *Manager
	lg      *log.Logger
}

func NewServer(mgr *Manager, lg *log.Logger) *Server {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(recover.New())

	s := &Server{App: app, Manager: mgr, lg: lg}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.App.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(s.Manager.Hub().Stats())
	})

	g := s.App.Group("/nav")
	g.Post("/start", s.handleStart)
	g.Post("/stop", s.handleStop)
	g.Post("/pause", s.handlePause)
	g.Post("/resume", s.handleResume)
	g.Post("/position", s.handlePosition)
	g.Post("/emergency", s.handleEmergency)
	g.Post("/emergency/resolve", s.handleEmergencyResolve)
	g.Get("/status", s.handleStatus)

	s.Manager.Hub().RegisterRoutes(s.App)
}

// Listen blocks serving on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	return s.App.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.App.Shutdown()
}

func errStatus(err error) int {
	switch {
	case errors.Is(err, ErrNoActiveSession):
		return fiber.StatusNotFound
	case errors.Is(err, ErrSessionRunning):
		return fiber.StatusConflict
	case errors.Is(err, ErrNoDestination) || errors.Is(err, ErrNoOrigin):
		return fiber.StatusBadRequest
	case errors.Is(err, routing.ErrNoSuchPlace) || errors.Is(err, routing.ErrNoRouteFound):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, routing.ErrProviderOverloads):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func fail(c *fiber.Ctx, err error) error {
	return c.Status(errStatus(err)).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) handleStart(c *fiber.Ctx) error {
	var req StartRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	snap, err := s.Manager.Start(c.Context(), req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(snap)
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	if err := s.Manager.Stop(); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "stopped"})
}

func (s *Server) handlePause(c *fiber.Ctx) error {
	if err := s.Manager.Pause(); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "paused"})
}

func (s *Server) handleResume(c *fiber.Ctx) error {
	if err := s.Manager.Resume(); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "resumed"})
}

// handlePosition accepts fixes over REST for clients that don't hold a
// websocket open.
func (s *Server) handlePosition(c *fiber.Ctx) error {
	var p nav.Position
	if err := c.BodyParser(&p); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	s.Manager.HandlePosition(p)
	return c.JSON(fiber.Map{"status": "accepted"})
}

func (s *Server) handleEmergency(c *fiber.Ctx) error {
	var req session.EmergencyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := s.Manager.Emergency(req); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "emergency", "kind": req.Kind.String()})
}

func (s *Server) handleEmergencyResolve(c *fiber.Ctx) error {
	var req struct {
		Resolution string `json:"resolution"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := s.Manager.ResolveEmergency(req.Resolution); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "resolved"})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	snap, err := s.Manager.Status()
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(snap)
}
