package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/sqlquest/sqlquest-api/internal/config"
	"github.com/sqlquest/sqlquest-api/internal/utils"
)

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Service     string    `json:"service"`
	Environment string    `json:"environment"`
	Sandbox     string    `json:"sandbox"`
}

// SandboxPinger reports whether the inventory sandbox is reachable.
type SandboxPinger interface {
	Ping() error
}

// HealthCheck returns a handler that reports application health, including
// the sandbox connection state.
func HealthCheck(cfg config.Config, sandbox SandboxPinger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     cfg.AppName,
			Environment: cfg.AppEnv,
			Sandbox:     "ok",
		}

		if sandbox != nil {
			if err := sandbox.Ping(); err != nil {
				payload.Status = "degraded"
				payload.Sandbox = err.Error()
			}
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
