package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/sqlquest/sqlquest-api/internal/dto"
	"github.com/sqlquest/sqlquest-api/internal/events"
	"github.com/sqlquest/sqlquest-api/internal/ratelimit"
	"github.com/sqlquest/sqlquest-api/internal/repository"
	"github.com/sqlquest/sqlquest-api/internal/sqlcheck"
	"github.com/sqlquest/sqlquest-api/pkg/ai"
)

// ErrGeneratorUnavailable indicates the AI backend cannot serve drafts.
var ErrGeneratorUnavailable = errors.New("query generator unavailable")

// GenerationService turns natural-language questions into draft SELECT
// statements. The model's output is treated as untrusted input: it passes
// through the same validator as hand-written SQL before it reaches the
// student, and an invalid draft is returned flagged, never executed.
type GenerationService interface {
	GenerateQuery(ctx context.Context, payload dto.GenerateQueryRequest) (dto.GenerateQueryResponse, error)
}

type generationService struct {
	students   repository.StudentRepository
	challenges repository.ChallengeRepository
	limiter    Admitter
	generator  ai.Generator
	schema     sqlcheck.Schema
	sanitizer  *bluemonday.Policy
	dispatcher *events.Dispatcher
	validator  *validator.Validate
	logger     zerolog.Logger
	now        func() time.Time
}

// NewGenerationService constructs a GenerationService instance.
func NewGenerationService(students repository.StudentRepository, challenges repository.ChallengeRepository, limiter Admitter, generator ai.Generator, schema sqlcheck.Schema, dispatcher *events.Dispatcher, validate *validator.Validate, logger zerolog.Logger) GenerationService {
	return &generationService{
		students:   students,
		challenges: challenges,
		limiter:    limiter,
		generator:  generator,
		schema:     schema,
		sanitizer:  bluemonday.StrictPolicy(),
		dispatcher: dispatcher,
		validator:  validate,
		logger:     logger.With().Str("component", "generation_service").Logger(),
		now:        time.Now,
	}
}

func (s *generationService) GenerateQuery(ctx context.Context, payload dto.GenerateQueryRequest) (dto.GenerateQueryResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.GenerateQueryResponse{}, err
	}

	student, err := s.students.GetByExternalID(ctx, payload.StudentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.GenerateQueryResponse{}, ErrStudentNotFound
		}
		return dto.GenerateQueryResponse{}, err
	}

	challenge, err := s.challenges.GetBySlug(ctx, payload.ChallengeSlug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.GenerateQueryResponse{}, ErrChallengeNotFound
		}
		return dto.GenerateQueryResponse{}, err
	}

	role := ratelimit.RoleStudent
	if student.IsInstructor() {
		role = ratelimit.RoleInstructor
	}
	decision := s.limiter.Admit(student.ExternalID, role, s.now())
	if !decision.Allowed {
		s.dispatcher.Emit(events.TypeAdmissionDenied, student.ExternalID, map[string]any{
			"window":         decision.Window,
			"retry_after_ms": decision.RetryAfter.Milliseconds(),
			"challenge":      challenge.Slug,
			"operation":      "generate",
		})
		return dto.GenerateQueryResponse{}, &RateLimitedError{Decision: decision}
	}

	question := strings.TrimSpace(s.sanitizer.Sanitize(payload.Question))
	if question == "" {
		return dto.GenerateQueryResponse{
			SQL:          ai.SentinelInsufficient,
			Insufficient: true,
			Reason:       "question was empty after sanitization",
		}, nil
	}

	result, err := s.generator.GenerateSQL(ctx, ai.GenerationInput{
		Question:       question,
		SchemaMarkdown: SchemaMarkdown(s.schema),
		Tier:           challenge.Tier,
		Quality:        payload.Quality,
	})
	if err != nil {
		s.dispatcher.Emit(events.TypeGenerationFailed, student.ExternalID, map[string]any{
			"challenge": challenge.Slug,
			"error":     err.Error(),
		})
		if errors.Is(err, ai.ErrUnavailable) {
			return dto.GenerateQueryResponse{}, ErrGeneratorUnavailable
		}
		return dto.GenerateQueryResponse{}, err
	}

	response := dto.GenerateQueryResponse{
		SQL:          result.SQL,
		Insufficient: result.Insufficient,
		Model:        result.Model,
	}

	if !result.Insufficient {
		if _, rejection := sqlcheck.Validate(result.SQL, s.schema); rejection != nil {
			response.Valid = false
			response.Reason = rejection.Message
		} else {
			response.Valid = true
		}
	}

	s.dispatcher.Emit(events.TypeGenerationCompleted, student.ExternalID, map[string]any{
		"challenge":    challenge.Slug,
		"valid":        response.Valid,
		"insufficient": response.Insufficient,
		"model":        response.Model,
	})

	return response, nil
}

// SchemaMarkdown renders the published schema as a markdown table list for
// the generation prompt.
func SchemaMarkdown(schema sqlcheck.Schema) string {
	builder := strings.Builder{}
	for _, table := range schema.TablesSorted() {
		builder.WriteString("- ")
		builder.WriteString(table)
		builder.WriteString(" (")
		builder.WriteString(strings.Join(schema.Columns(table), ", "))
		builder.WriteString(")\n")
	}
	return builder.String()
}
