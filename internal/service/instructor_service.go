package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/sqlquest/sqlquest-api/internal/adaptive"
	"github.com/sqlquest/sqlquest-api/internal/dto"
	"github.com/sqlquest/sqlquest-api/internal/models"
	"github.com/sqlquest/sqlquest-api/internal/repository"
)

// ErrNotInstructor indicates the caller lacks instructor privileges.
var ErrNotInstructor = errors.New("instructor role required")

// ErrInvalidTier indicates an unknown difficulty tier was supplied.
var ErrInvalidTier = errors.New("invalid difficulty tier")

// InstructorService exposes progress and the activity trail to instructors,
// plus the manual tier override.
type InstructorService interface {
	ListStudents(ctx context.Context, instructorID string) ([]dto.StudentProgressResponse, error)
	ListAttempts(ctx context.Context, instructorID string, filter AttemptQuery) ([]dto.AttemptDetailResponse, int64, error)
	ListEvents(ctx context.Context, instructorID string, filter repository.EventFilter) ([]dto.PipelineEventResponse, int64, error)
	OverrideTier(ctx context.Context, instructorID, studentID, tier string) error
}

// AttemptQuery narrows an instructor attempt listing. StudentID refers to the
// student's external identifier.
type AttemptQuery struct {
	Page      int
	PageSize  int
	StudentID string
	Outcome   string
}

type instructorService struct {
	students   repository.StudentRepository
	attempts   repository.AttemptRepository
	eventsRepo repository.EventRepository
	difficulty DifficultyController
	logger     zerolog.Logger
}

// NewInstructorService constructs an InstructorService instance.
func NewInstructorService(students repository.StudentRepository, attempts repository.AttemptRepository, eventsRepo repository.EventRepository, difficulty DifficultyController, logger zerolog.Logger) InstructorService {
	return &instructorService{
		students:   students,
		attempts:   attempts,
		eventsRepo: eventsRepo,
		difficulty: difficulty,
		logger:     logger.With().Str("component", "instructor_service").Logger(),
	}
}

func (s *instructorService) requireInstructor(ctx context.Context, externalID string) (models.Student, error) {
	instructor, err := s.students.GetByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Student{}, ErrStudentNotFound
		}
		return models.Student{}, err
	}
	if !instructor.IsInstructor() {
		return models.Student{}, ErrNotInstructor
	}
	return instructor, nil
}

func (s *instructorService) ListStudents(ctx context.Context, instructorID string) ([]dto.StudentProgressResponse, error) {
	instructor, err := s.requireInstructor(ctx, instructorID)
	if err != nil {
		return nil, err
	}

	students, err := s.students.ListByInstructor(ctx, instructor.ID)
	if err != nil {
		return nil, err
	}

	out := make([]dto.StudentProgressResponse, 0, len(students))
	for _, student := range students {
		attempts, total, err := s.attempts.List(ctx, repository.AttemptFilter{StudentID: &student.ID, PageSize: 100})
		if err != nil {
			return nil, err
		}

		var sum float64
		var counted int
		for _, attempt := range attempts {
			if attempt.Counted() {
				sum += attempt.Score
				counted++
			}
		}
		average := 0.0
		if counted > 0 {
			average = sum / float64(counted)
		}

		out = append(out, dto.StudentProgressResponse{
			StudentID:    student.ExternalID,
			Name:         student.Name,
			Tier:         string(s.difficulty.Tier(student.ExternalID)),
			Attempts:     total,
			AverageScore: average,
		})
	}

	return out, nil
}

func (s *instructorService) ListAttempts(ctx context.Context, instructorID string, filter AttemptQuery) ([]dto.AttemptDetailResponse, int64, error) {
	if _, err := s.requireInstructor(ctx, instructorID); err != nil {
		return nil, 0, err
	}

	repoFilter := repository.AttemptFilter{
		Page:     filter.Page,
		PageSize: filter.PageSize,
		Outcome:  filter.Outcome,
	}
	if filter.StudentID != "" {
		student, err := s.students.GetByExternalID(ctx, filter.StudentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, 0, ErrStudentNotFound
			}
			return nil, 0, err
		}
		repoFilter.StudentID = &student.ID
	}

	attempts, total, err := s.attempts.List(ctx, repoFilter)
	if err != nil {
		return nil, 0, err
	}

	out := make([]dto.AttemptDetailResponse, 0, len(attempts))
	for _, attempt := range attempts {
		out = append(out, dto.NewAttemptDetailResponse(attempt))
	}
	return out, total, nil
}

func (s *instructorService) ListEvents(ctx context.Context, instructorID string, filter repository.EventFilter) ([]dto.PipelineEventResponse, int64, error) {
	if _, err := s.requireInstructor(ctx, instructorID); err != nil {
		return nil, 0, err
	}

	entries, total, err := s.eventsRepo.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	return dto.NewPipelineEventResponseSlice(entries), total, nil
}

func (s *instructorService) OverrideTier(ctx context.Context, instructorID, studentID, tier string) error {
	if _, err := s.requireInstructor(ctx, instructorID); err != nil {
		return err
	}

	if !adaptive.Tier(tier).Valid() {
		return ErrInvalidTier
	}

	student, err := s.students.GetByExternalID(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrStudentNotFound
		}
		return err
	}

	if err := s.students.UpdateTier(ctx, student.ID, tier); err != nil {
		return err
	}
	s.difficulty.SetTier(student.ExternalID, adaptive.Tier(tier))

	s.logger.Info().
		Str("instructor", instructorID).
		Str("student", studentID).
		Str("tier", tier).
		Msg("tier manually overridden")

	return nil
}
