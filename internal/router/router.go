package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/sqlquest/sqlquest-api/internal/config"
	"github.com/sqlquest/sqlquest-api/internal/handler"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	SubmissionHandler *handler.SubmissionHandler
	GenerationHandler *handler.GenerationHandler
	ChallengeHandler  *handler.ChallengeHandler
	InstructorHandler *handler.InstructorHandler
	Sandbox           handler.SandboxPinger
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.Sandbox))

	if deps.SubmissionHandler != nil {
		deps.SubmissionHandler.Register(api.Group("/submissions"))
	}

	if deps.GenerationHandler != nil {
		deps.GenerationHandler.Register(api.Group("/generations"))
	}

	if deps.ChallengeHandler != nil {
		deps.ChallengeHandler.Register(api.Group("/challenges"))
	}

	if deps.InstructorHandler != nil {
		deps.InstructorHandler.Register(api.Group("/instructor"))
	}
}
