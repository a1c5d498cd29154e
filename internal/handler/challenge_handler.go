package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/sqlquest/sqlquest-api/internal/service"
	"github.com/sqlquest/sqlquest-api/internal/utils"
)

// ChallengeHandler serves challenges for the caller's current tier.
type ChallengeHandler struct {
	service service.ChallengeService
	logger  zerolog.Logger
}

// NewChallengeHandler constructs the handler.
func NewChallengeHandler(svc service.ChallengeService, logger zerolog.Logger) *ChallengeHandler {
	return &ChallengeHandler{
		service: svc,
		logger:  logger.With().Str("component", "challenge_handler").Logger(),
	}
}

// Register wires the handler endpoints into the router group.
func (h *ChallengeHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Get("/:slug", h.get)
}

func (h *ChallengeHandler) list(c *fiber.Ctx) error {
	studentID := callerID(c)
	if studentID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "missing "+userHeader+" header")
	}

	challenges, err := h.service.ListForStudent(c.Context(), studentID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "challenges retrieved", challenges)
}

func (h *ChallengeHandler) get(c *fiber.Ctx) error {
	challenge, err := h.service.GetBySlug(c.Context(), c.Params("slug"))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "challenge retrieved", challenge)
}

func (h *ChallengeHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrStudentNotFound), errors.Is(err, service.ErrChallengeNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	default:
		h.logger.Error().Err(err).Msg("challenge lookup failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
