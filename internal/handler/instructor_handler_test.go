package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sqlquest/sqlquest-api/internal/dto"
	"github.com/sqlquest/sqlquest-api/internal/handler"
	"github.com/sqlquest/sqlquest-api/internal/repository"
	"github.com/sqlquest/sqlquest-api/internal/service"
)

type mockInstructorService struct {
	students         []dto.StudentProgressResponse
	attempts         []dto.AttemptDetailResponse
	events           []dto.PipelineEventResponse
	total            int64
	lastFilter       repository.EventFilter
	lastAttemptQuery service.AttemptQuery
	lastTier         string
	err              error
}

func (m *mockInstructorService) ListStudents(_ context.Context, _ string) ([]dto.StudentProgressResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.students, nil
}

func (m *mockInstructorService) ListAttempts(_ context.Context, _ string, filter service.AttemptQuery) ([]dto.AttemptDetailResponse, int64, error) {
	m.lastAttemptQuery = filter
	if m.err != nil {
		return nil, 0, m.err
	}
	return m.attempts, m.total, nil
}

func (m *mockInstructorService) ListEvents(_ context.Context, _ string, filter repository.EventFilter) ([]dto.PipelineEventResponse, int64, error) {
	m.lastFilter = filter
	if m.err != nil {
		return nil, 0, m.err
	}
	return m.events, m.total, nil
}

func (m *mockInstructorService) OverrideTier(_ context.Context, _, _, tier string) error {
	m.lastTier = tier
	return m.err
}

func newInstructorApp(svc service.InstructorService) *fiber.App {
	app := fiber.New()
	handler.NewInstructorHandler(svc, zerolog.New(io.Discard)).Register(app.Group("/api/v1/instructor"))
	return app
}

func TestInstructorHandlerListStudents(t *testing.T) {
	svc := &mockInstructorService{students: []dto.StudentProgressResponse{
		{StudentID: "stu-1", Name: "Ada", Tier: "medium", Attempts: 4, AverageScore: 0.75},
	}}
	app := newInstructorApp(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/instructor/students", nil)
	req.Header.Set("X-User-ID", "teach-1")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var payload struct {
		Data []dto.StudentProgressResponse `json:"data"`
	}
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Len(t, payload.Data, 1)
	require.Equal(t, "medium", payload.Data[0].Tier)
}

func TestInstructorHandlerMissingCaller(t *testing.T) {
	app := newInstructorApp(&mockInstructorService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/instructor/students", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestInstructorHandlerForbidden(t *testing.T) {
	app := newInstructorApp(&mockInstructorService{err: service.ErrNotInstructor})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/instructor/students", nil)
	req.Header.Set("X-User-ID", "stu-1")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestInstructorHandlerListAttempts(t *testing.T) {
	svc := &mockInstructorService{
		attempts: []dto.AttemptDetailResponse{
			{AttemptID: 7, Outcome: "exact_match", Score: 1, AbuseSignals: []string{"duplicate_submission"}},
		},
		total: 1,
	}
	app := newInstructorApp(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/instructor/attempts?student_id=stu-1&outcome=exact_match", nil)
	req.Header.Set("X-User-ID", "teach-1")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	require.Equal(t, "stu-1", svc.lastAttemptQuery.StudentID)
	require.Equal(t, "exact_match", svc.lastAttemptQuery.Outcome)

	var payload struct {
		Data struct {
			Attempts []dto.AttemptDetailResponse `json:"attempts"`
			Total    int64                       `json:"total"`
		} `json:"data"`
	}
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Len(t, payload.Data.Attempts, 1)
	require.Equal(t, []string{"duplicate_submission"}, payload.Data.Attempts[0].AbuseSignals)
}

func TestInstructorHandlerListEventsFilter(t *testing.T) {
	svc := &mockInstructorService{total: 2}
	app := newInstructorApp(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/instructor/events?page=2&page_size=25&user_id=stu-1&event_type=grading_completed", nil)
	req.Header.Set("X-User-ID", "teach-1")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	require.Equal(t, 2, svc.lastFilter.Page)
	require.Equal(t, 25, svc.lastFilter.PageSize)
	require.Equal(t, "stu-1", svc.lastFilter.UserID)
	require.Equal(t, "grading_completed", svc.lastFilter.EventType)
}

func TestInstructorHandlerListEventsCapsPageSize(t *testing.T) {
	svc := &mockInstructorService{}
	app := newInstructorApp(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/instructor/events?page_size=5000", nil)
	req.Header.Set("X-User-ID", "teach-1")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, 50, svc.lastFilter.PageSize)
}

func TestInstructorHandlerOverrideTier(t *testing.T) {
	svc := &mockInstructorService{}
	app := newInstructorApp(svc)

	body, err := json.Marshal(map[string]string{"tier": "hard"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/instructor/students/stu-1/tier", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "teach-1")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "hard", svc.lastTier)
}

func TestInstructorHandlerOverrideInvalidTier(t *testing.T) {
	app := newInstructorApp(&mockInstructorService{err: service.ErrInvalidTier})

	body, err := json.Marshal(map[string]string{"tier": "impossible"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/instructor/students/stu-1/tier", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "teach-1")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
