package handler

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/sqlquest/sqlquest-api/internal/dto"
	"github.com/sqlquest/sqlquest-api/internal/service"
	"github.com/sqlquest/sqlquest-api/internal/utils"
)

// GenerationHandler exposes the AI query drafting endpoint.
type GenerationHandler struct {
	service service.GenerationService
	logger  zerolog.Logger
}

// NewGenerationHandler constructs the handler.
func NewGenerationHandler(svc service.GenerationService, logger zerolog.Logger) *GenerationHandler {
	return &GenerationHandler{
		service: svc,
		logger:  logger.With().Str("component", "generation_handler").Logger(),
	}
}

// Register wires the handler endpoints into the router group.
func (h *GenerationHandler) Register(router fiber.Router) {
	router.Post("", h.generate)
}

func (h *GenerationHandler) generate(c *fiber.Ctx) error {
	var payload dto.GenerateQueryRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	response, err := h.service.GenerateQuery(c.Context(), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "query drafted", response)
}

func (h *GenerationHandler) handleError(c *fiber.Ctx, err error) error {
	var limited *service.RateLimitedError
	switch {
	case errors.As(err, &limited):
		c.Set(fiber.HeaderRetryAfter, strconv.FormatInt(retryAfterSeconds(limited), 10))
		return c.Status(fiber.StatusTooManyRequests).JSON(utils.APIResponse{
			Success: false,
			Message: "rate limit exceeded",
			Data: dto.DenialResponse{
				Window:       limited.Decision.Window,
				RetryAfterMs: limited.Decision.RetryAfter.Milliseconds(),
			},
		})
	case errors.Is(err, service.ErrStudentNotFound), errors.Is(err, service.ErrChallengeNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrGeneratorUnavailable):
		return utils.SendError(c, fiber.StatusServiceUnavailable, err.Error())
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		h.logger.Error().Err(err).Msg("generation failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
