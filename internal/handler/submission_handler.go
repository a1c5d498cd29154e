package handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/sqlquest/sqlquest-api/internal/dto"
	"github.com/sqlquest/sqlquest-api/internal/service"
	"github.com/sqlquest/sqlquest-api/internal/utils"
)

// SubmissionHandler exposes the query submission endpoint.
type SubmissionHandler struct {
	service service.SubmissionService
	logger  zerolog.Logger
}

// NewSubmissionHandler constructs the handler.
func NewSubmissionHandler(svc service.SubmissionService, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		service: svc,
		logger:  logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register wires the handler endpoints into the router group.
func (h *SubmissionHandler) Register(router fiber.Router) {
	router.Post("", h.submit)
}

func (h *SubmissionHandler) submit(c *fiber.Ctx) error {
	var payload dto.SubmitQueryRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	response, err := h.service.SubmitQuery(c.Context(), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "attempt graded", response)
}

func (h *SubmissionHandler) handleError(c *fiber.Ctx, err error) error {
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
	case errors.Is(err, service.ErrSandboxBusy):
		return utils.SendError(c, fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.Canceled):
		// Client went away; Fiber still wants a response object.
		return utils.SendError(c, fiber.StatusRequestTimeout, "request canceled")
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		h.logger.Error().Err(err).Msg("submission failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}

func retryAfterSeconds(limited *service.RateLimitedError) int64 {
	seconds := int64(limited.Decision.RetryAfter.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}
