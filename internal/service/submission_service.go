package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/sqlquest/sqlquest-api/internal/adaptive"
	"github.com/sqlquest/sqlquest-api/internal/dto"
	"github.com/sqlquest/sqlquest-api/internal/events"
	"github.com/sqlquest/sqlquest-api/internal/grading"
	"github.com/sqlquest/sqlquest-api/internal/models"
	"github.com/sqlquest/sqlquest-api/internal/ratelimit"
	"github.com/sqlquest/sqlquest-api/internal/repository"
	"github.com/sqlquest/sqlquest-api/internal/sandbox"
	"github.com/sqlquest/sqlquest-api/internal/sqlcheck"
)

var (
	// ErrStudentNotFound indicates the submitting student is unknown.
	ErrStudentNotFound = errors.New("student not found")
	// ErrChallengeNotFound indicates the challenge slug is unknown.
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrSandboxBusy indicates the executor queue is full; the submission was
	// never run and does not count as an attempt.
	ErrSandboxBusy = errors.New("sandbox is busy, try again shortly")
)

// RateLimitedError carries the denial details for a refused submission.
type RateLimitedError struct {
	Decision ratelimit.Decision
}

// Error implements the error interface.
func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited by %s window, retry after %s", e.Decision.Window, e.Decision.RetryAfter)
}

// Admitter decides whether a submission may enter the pipeline.
type Admitter interface {
	Admit(userID string, role ratelimit.Role, now time.Time) ratelimit.Decision
}

// QueryExecutor runs a validated query against the sandbox.
type QueryExecutor interface {
	Execute(ctx context.Context, query string, budget sandbox.Budget) (grading.RowSet, *sandbox.ExecError)
}

// AbuseInspector records a submission and reports any abuse signals.
type AbuseInspector interface {
	Inspect(obs ratelimit.Observation) []ratelimit.Signal
}

// DifficultyController tracks per-student tiers from graded scores.
type DifficultyController interface {
	Tier(studentID string) adaptive.Tier
	SetTier(studentID string, tier adaptive.Tier)
	RecordScore(studentID string, score float64) adaptive.Transition
}

// ExpectedSource resolves a challenge's reference result set.
type ExpectedSource interface {
	Expected(ctx context.Context, challenge models.Challenge) (grading.Expected, error)
}

// SubmissionService runs student SQL through the full safety and grading
// pipeline: admission, validation, sandboxed execution, grading, abuse
// inspection, persistence and difficulty adjustment.
type SubmissionService interface {
	SubmitQuery(ctx context.Context, payload dto.SubmitQueryRequest) (dto.AttemptResponse, error)
}

type submissionService struct {
	students   repository.StudentRepository
	challenges repository.ChallengeRepository
	attempts   repository.AttemptRepository
	limiter    Admitter
	schema     sqlcheck.Schema
	executor   QueryExecutor
	budget     sandbox.Budget
	expected   ExpectedSource
	gradeCfg   grading.Config
	detector   AbuseInspector
	difficulty DifficultyController
	dispatcher *events.Dispatcher
	validator  *validator.Validate
	logger     zerolog.Logger
	now        func() time.Time
}

// SubmissionDeps groups the collaborators of the submission pipeline.
type SubmissionDeps struct {
	Students   repository.StudentRepository
	Challenges repository.ChallengeRepository
	Attempts   repository.AttemptRepository
	Limiter    Admitter
	Schema     sqlcheck.Schema
	Executor   QueryExecutor
	Budget     sandbox.Budget
	Expected   ExpectedSource
	GradeCfg   grading.Config
	Detector   AbuseInspector
	Difficulty DifficultyController
	Dispatcher *events.Dispatcher
	Validator  *validator.Validate
	Logger     zerolog.Logger
}

// NewSubmissionService constructs a SubmissionService instance.
func NewSubmissionService(deps SubmissionDeps) SubmissionService {
	return &submissionService{
		students:   deps.Students,
		challenges: deps.Challenges,
		attempts:   deps.Attempts,
		limiter:    deps.Limiter,
		schema:     deps.Schema,
		executor:   deps.Executor,
		budget:     deps.Budget,
		expected:   deps.Expected,
		gradeCfg:   deps.GradeCfg,
		detector:   deps.Detector,
		difficulty: deps.Difficulty,
		dispatcher: deps.Dispatcher,
		validator:  deps.Validator,
		logger:     deps.Logger.With().Str("component", "submission_service").Logger(),
		now:        time.Now,
	}
}

func (s *submissionService) SubmitQuery(ctx context.Context, payload dto.SubmitQueryRequest) (dto.AttemptResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AttemptResponse{}, err
	}

	student, err := s.students.GetByExternalID(ctx, payload.StudentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AttemptResponse{}, ErrStudentNotFound
		}
		return dto.AttemptResponse{}, err
	}

	challenge, err := s.challenges.GetBySlug(ctx, payload.ChallengeSlug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AttemptResponse{}, ErrChallengeNotFound
		}
		return dto.AttemptResponse{}, err
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
		})
		return dto.AttemptResponse{}, &RateLimitedError{Decision: decision}
	}

	canonical, rejection := sqlcheck.Validate(payload.SQL, s.schema)
	if rejection != nil {
		return s.recordRejection(ctx, student, challenge, payload, rejection)
	}

	start := s.now()
	rows, execErr := s.executor.Execute(ctx, canonical.Text, s.budget)
	duration := s.now().Sub(start)
	if execErr != nil {
		return s.handleExecError(ctx, student, challenge, payload, canonical, execErr, duration)
	}

	expected, err := s.expected.Expected(ctx, challenge)
	if err != nil {
		s.logger.Error().Err(err).Str("challenge", challenge.Slug).Msg("reference answer unusable")
		s.recordInternalError(ctx, student, challenge, payload, canonical, len(rows.Rows), duration)
		return dto.AttemptResponse{}, err
	}

	grade, err := grading.Grade(rows, expected, s.gradeCfg)
	if err != nil {
		s.logger.Error().Err(err).Str("challenge", challenge.Slug).Msg("grading failed")
		s.recordInternalError(ctx, student, challenge, payload, canonical, len(rows.Rows), duration)
		return dto.AttemptResponse{}, err
	}

	signals := s.detector.Inspect(ratelimit.Observation{
		StudentID:   student.ExternalID,
		Fingerprint: canonical.Fingerprint,
		Canonical:   canonical.Text,
		At:          s.now(),
	})

	attempt := models.Attempt{
		StudentID:    student.ID,
		ChallengeID:  challenge.ID,
		RawSQL:       payload.SQL,
		CanonicalSQL: canonical.Text,
		Fingerprint:  canonical.Fingerprint,
		Source:       sourceOrDefault(payload.Source),
		Outcome:      grade.Tag,
		Score:        grade.Score,
		Feedback:     feedbackFor(grade),
		RowCount:     len(rows.Rows),
		DurationMs:   duration.Milliseconds(),
		AbuseSignals: signalMap(signals),
	}
	if err := s.attempts.Create(ctx, &attempt); err != nil {
		return dto.AttemptResponse{}, err
	}

	transition := s.difficulty.RecordScore(student.ExternalID, grade.Score)
	if transition.Changed() {
		if err := s.students.UpdateTier(ctx, student.ID, string(transition.To)); err != nil {
			s.logger.Error().Err(err).Str("student", student.ExternalID).Msg("tier update failed")
		}
		s.dispatcher.Emit(events.TypeDifficultyChanged, student.ExternalID, map[string]any{
			"from":    string(transition.From),
			"to":      string(transition.To),
			"average": transition.Average,
		})
	}

	s.dispatcher.Emit(events.TypeGradingCompleted, student.ExternalID, map[string]any{
		"attempt_id": attempt.ID,
		"challenge":  challenge.Slug,
		"outcome":    grade.Tag,
		"score":      grade.Score,
	})
	for _, signal := range signals {
		s.dispatcher.Emit(events.TypeAbuseSignal, student.ExternalID, map[string]any{
			"signal":    string(signal),
			"challenge": challenge.Slug,
		})
	}

	return dto.NewAttemptResponse(attempt, string(transition.To), transition.Changed(), signalStrings(signals)), nil
}

func (s *submissionService) recordRejection(ctx context.Context, student models.Student, challenge models.Challenge, payload dto.SubmitQueryRequest, rejection *sqlcheck.Rejection) (dto.AttemptResponse, error) {
	attempt := models.Attempt{
		StudentID:   student.ID,
		ChallengeID: challenge.ID,
		RawSQL:      payload.SQL,
		Source:      sourceOrDefault(payload.Source),
		Outcome:     models.AttemptOutcomeRejected,
		Score:       0,
		Feedback:    rejection.Message,
	}
	if err := s.attempts.Create(ctx, &attempt); err != nil {
		return dto.AttemptResponse{}, err
	}

	s.dispatcher.Emit(events.TypeValidationRejected, student.ExternalID, map[string]any{
		"attempt_id": attempt.ID,
		"challenge":  challenge.Slug,
		"kind":       string(rejection.Kind),
		"reason":     rejection.Message,
	})

	tier := s.difficulty.Tier(student.ExternalID)
	return dto.NewAttemptResponse(attempt, string(tier), false, nil), nil
}

// recordInternalError marks an attempt whose query ran fine but could not be
// graded because the reference answer was unusable. The student only ever sees
// a generic failure; the real cause stays in the logs.
func (s *submissionService) recordInternalError(ctx context.Context, student models.Student, challenge models.Challenge, payload dto.SubmitQueryRequest, canonical sqlcheck.CanonicalQuery, rowCount int, duration time.Duration) {
	attempt := models.Attempt{
		StudentID:    student.ID,
		ChallengeID:  challenge.ID,
		RawSQL:       payload.SQL,
		CanonicalSQL: canonical.Text,
		Fingerprint:  canonical.Fingerprint,
		Source:       sourceOrDefault(payload.Source),
		Outcome:      models.AttemptOutcomeError,
		Score:        0,
		Feedback:     "Something went wrong while grading your query. Please try again later.",
		RowCount:     rowCount,
		DurationMs:   duration.Milliseconds(),
	}
	if err := s.attempts.Create(ctx, &attempt); err != nil {
		s.logger.Error().Err(err).Str("challenge", challenge.Slug).Msg("could not record grading error attempt")
		return
	}

	s.dispatcher.Emit(events.TypeExecutionFailed, student.ExternalID, map[string]any{
		"attempt_id": attempt.ID,
		"challenge":  challenge.Slug,
		"kind":       "grading_error",
	})
}

func (s *submissionService) handleExecError(ctx context.Context, student models.Student, challenge models.Challenge, payload dto.SubmitQueryRequest, canonical sqlcheck.CanonicalQuery, execErr *sandbox.ExecError, duration time.Duration) (dto.AttemptResponse, error) {
	switch execErr.Kind {
	case sandbox.KindCanceled:
		// The caller went away; nothing counts.
		return dto.AttemptResponse{}, context.Canceled
	case sandbox.KindQueueFull:
		s.dispatcher.Emit(events.TypeExecutionFailed, student.ExternalID, map[string]any{
			"challenge": challenge.Slug,
			"kind":      string(execErr.Kind),
		})
		return dto.AttemptResponse{}, ErrSandboxBusy
	}

	attempt := models.Attempt{
		StudentID:    student.ID,
		ChallengeID:  challenge.ID,
		RawSQL:       payload.SQL,
		CanonicalSQL: canonical.Text,
		Fingerprint:  canonical.Fingerprint,
		Source:       sourceOrDefault(payload.Source),
		Outcome:      execOutcome(execErr),
		Score:        0,
		Feedback:     execFeedback(execErr),
		DurationMs:   duration.Milliseconds(),
	}
	if err := s.attempts.Create(ctx, &attempt); err != nil {
		return dto.AttemptResponse{}, err
	}

	s.dispatcher.Emit(events.TypeExecutionFailed, student.ExternalID, map[string]any{
		"attempt_id": attempt.ID,
		"challenge":  challenge.Slug,
		"kind":       string(execErr.Kind),
	})

	tier := s.difficulty.Tier(student.ExternalID)
	return dto.NewAttemptResponse(attempt, string(tier), false, nil), nil
}

func sourceOrDefault(source string) string {
	if source == "" {
		return models.AttemptSourceManual
	}
	return source
}

func feedbackFor(grade grading.Result) string {
	switch grade.Tag {
	case grading.TagExactMatch:
		return "Correct! Your query returned exactly the expected result."
	case grading.TagPartialMatch:
		return fmt.Sprintf("Partially correct: %.0f%% of the expected rows matched.", grade.Score*100)
	case grading.TagNoResults:
		return "Your query ran but returned no rows; the expected answer is not empty."
	default:
		return "Your query ran but the result does not match the expected answer."
	}
}

// execOutcome keeps timeouts distinguishable from runtime errors in the
// attempt history so instructors can filter on them.
func execOutcome(execErr *sandbox.ExecError) string {
	if execErr.Kind == sandbox.KindTimeout {
		return models.AttemptOutcomeTimeout
	}
	return models.AttemptOutcomeFailed
}

func execFeedback(execErr *sandbox.ExecError) string {
	switch execErr.Kind {
	case sandbox.KindTimeout:
		return "Your query exceeded the execution time budget."
	case sandbox.KindResultTooLarge:
		return "Your query returned more rows than the sandbox allows."
	default:
		return "Your query failed to execute: " + execErr.Message
	}
}

func signalMap(signals []ratelimit.Signal) datatypes.JSONMap {
	if len(signals) == 0 {
		return nil
	}
	out := datatypes.JSONMap{}
	for _, signal := range signals {
		out[string(signal)] = true
	}
	return out
}

func signalStrings(signals []ratelimit.Signal) []string {
	if len(signals) == 0 {
		return nil
	}
	out := make([]string, 0, len(signals))
	for _, signal := range signals {
		out = append(out, string(signal))
	}
	return out
}
