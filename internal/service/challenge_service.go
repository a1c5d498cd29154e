package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/sqlquest/sqlquest-api/internal/dto"
	"github.com/sqlquest/sqlquest-api/internal/repository"
)

// ChallengeService serves challenges matched to a student's current tier.
type ChallengeService interface {
	ListForStudent(ctx context.Context, studentID string) ([]dto.ChallengeResponse, error)
	GetBySlug(ctx context.Context, slug string) (dto.ChallengeResponse, error)
}

type challengeService struct {
	students   repository.StudentRepository
	challenges repository.ChallengeRepository
	difficulty DifficultyController
	logger     zerolog.Logger
}

// NewChallengeService constructs a ChallengeService instance.
func NewChallengeService(students repository.StudentRepository, challenges repository.ChallengeRepository, difficulty DifficultyController, logger zerolog.Logger) ChallengeService {
	return &challengeService{
		students:   students,
		challenges: challenges,
		difficulty: difficulty,
		logger:     logger.With().Str("component", "challenge_service").Logger(),
	}
}

func (s *challengeService) ListForStudent(ctx context.Context, studentID string) ([]dto.ChallengeResponse, error) {
	student, err := s.students.GetByExternalID(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}

	tier := string(s.difficulty.Tier(student.ExternalID))
	challenges, err := s.challenges.ListActiveByTier(ctx, tier)
	if err != nil {
		return nil, err
	}

	return dto.NewChallengeResponseSlice(challenges), nil
}

func (s *challengeService) GetBySlug(ctx context.Context, slug string) (dto.ChallengeResponse, error) {
	challenge, err := s.challenges.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ChallengeResponse{}, ErrChallengeNotFound
		}
		return dto.ChallengeResponse{}, err
	}

	return dto.NewChallengeResponse(challenge), nil
}
