package status

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Provider is what the endpoint reports on. The worker implements it.
type Provider interface {
	Connections() int
	Rooms() []string
	Uptime() time.Duration
	LoadedPlugins() []string
}

// Server exposes node health over HTTP for dashboards and orchestration
// probes. Read-only; mutation stays on the game protocol.
type Server struct {
	app      *fiber.App
	provider Provider
	logger   *slog.Logger
	name     string
}

func New(name string, provider Provider, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		app: fiber.New(fiber.Config{
			DisableStartupMessage: true,
		}),
		provider: provider,
		logger:   logger,
		name:     name,
	}

	s.app.Get("/health", s.health)
	s.app.Get("/connections", s.connections)
	s.app.Get("/rooms", s.rooms)
	return s
}

// Listen blocks serving until Shutdown.
func (s *Server) Listen(port int) error {
	s.logger.Info("status endpoint listening", "port", port)
	return s.app.Listen(fmt.Sprintf(":%d", port))
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"name":    s.name,
		"uptime":  s.provider.Uptime().Round(time.Second).String(),
		"plugins": s.provider.LoadedPlugins(),
	})
}

func (s *Server) connections(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"connections": s.provider.Connections(),
	})
}

func (s *Server) rooms(c *fiber.Ctx) error {
	rooms := s.provider.Rooms()
	return c.JSON(fiber.Map{
		"count": len(rooms),
		"rooms": rooms,
	})
}
