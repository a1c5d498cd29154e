package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/sqlquest/sqlquest-api/internal/repository"
	"github.com/sqlquest/sqlquest-api/internal/service"
	"github.com/sqlquest/sqlquest-api/internal/utils"
)

// InstructorHandler exposes progress, the activity trail and the tier
// override to instructors.
type InstructorHandler struct {
	service service.InstructorService
	logger  zerolog.Logger
}

// NewInstructorHandler constructs the handler.
func NewInstructorHandler(svc service.InstructorService, logger zerolog.Logger) *InstructorHandler {
	return &InstructorHandler{
		service: svc,
		logger:  logger.With().Str("component", "instructor_handler").Logger(),
	}
}

// Register wires the handler endpoints into the router group.
func (h *InstructorHandler) Register(router fiber.Router) {
	router.Get("/students", h.listStudents)
	router.Get("/attempts", h.listAttempts)
	router.Get("/events", h.listEvents)
	router.Put("/students/:id/tier", h.overrideTier)
}

func (h *InstructorHandler) listStudents(c *fiber.Ctx) error {
	instructorID := callerID(c)
	if instructorID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "missing "+userHeader+" header")
	}

	students, err := h.service.ListStudents(c.Context(), instructorID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "students retrieved", students)
}

func (h *InstructorHandler) listAttempts(c *fiber.Ctx) error {
	instructorID := callerID(c)
	if instructorID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "missing "+userHeader+" header")
	}

	page, err := parseQueryInt(c, "page")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page")
	}
	pageSize, err := parseQueryInt(c, "page_size")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page_size")
	}
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}

	filter := service.AttemptQuery{
		Page:      page,
		PageSize:  pageSize,
		StudentID: strings.TrimSpace(c.Query("student_id")),
		Outcome:   strings.TrimSpace(c.Query("outcome")),
	}

	attempts, total, err := h.service.ListAttempts(c.Context(), instructorID, filter)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "attempts retrieved", fiber.Map{
		"attempts": attempts,
		"total":    total,
	})
}

func (h *InstructorHandler) listEvents(c *fiber.Ctx) error {
	instructorID := callerID(c)
	if instructorID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "missing "+userHeader+" header")
	}

	page, err := parseQueryInt(c, "page")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page")
	}
	pageSize, err := parseQueryInt(c, "page_size")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid page_size")
	}
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}

	filter := repository.EventFilter{
		Page:      page,
		PageSize:  pageSize,
		UserID:    strings.TrimSpace(c.Query("user_id")),
		EventType: strings.TrimSpace(c.Query("event_type")),
	}

	entries, total, err := h.service.ListEvents(c.Context(), instructorID, filter)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "events retrieved", fiber.Map{
		"events": entries,
		"total":  total,
	})
}

func (h *InstructorHandler) overrideTier(c *fiber.Ctx) error {
	instructorID := callerID(c)
	if instructorID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "missing "+userHeader+" header")
	}

	var payload struct {
		Tier string `json:"tier"`
	}
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.service.OverrideTier(c.Context(), instructorID, c.Params("id"), payload.Tier); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "tier updated", nil)
}

func (h *InstructorHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrNotInstructor):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrStudentNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidTier):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		h.logger.Error().Err(err).Msg("instructor request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
