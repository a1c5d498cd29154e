package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/sqlquest/sqlquest-api/internal/models"
)

// AttemptFilter narrows attempt queries.
type AttemptFilter struct {
	Page        int
	PageSize    int
	StudentID   *uint
	ChallengeID *uint
	Outcome     string
}

// AttemptRepository persists graded submissions.
type AttemptRepository interface {
	Create(ctx context.Context, attempt *models.Attempt) error
	GetByID(ctx context.Context, id uint) (models.Attempt, error)
	List(ctx context.Context, filter AttemptFilter) ([]models.Attempt, int64, error)
	RecentScores(ctx context.Context, studentID uint, limit int) ([]float64, error)
}

type attemptRepository struct {
	db *gorm.DB
}

// NewAttemptRepository constructs an attempt repository.
func NewAttemptRepository(db *gorm.DB) AttemptRepository {
	return &attemptRepository{db: db}
}

func (r *attemptRepository) Create(ctx context.Context, attempt *models.Attempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

func (r *attemptRepository) GetByID(ctx context.Context, id uint) (models.Attempt, error) {
	var attempt models.Attempt
	if err := r.db.WithContext(ctx).First(&attempt, id).Error; err != nil {
		return models.Attempt{}, err
	}

	return attempt, nil
}

func (r *attemptRepository) List(ctx context.Context, filter AttemptFilter) ([]models.Attempt, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Attempt{})

	if filter.StudentID != nil {
		query = query.Where("student_id = ?", *filter.StudentID)
	}

	if filter.ChallengeID != nil {
		query = query.Where("challenge_id = ?", *filter.ChallengeID)
	}

	if filter.Outcome != "" {
		query = query.Where("outcome = ?", filter.Outcome)
	}

	countQuery := query.Session(&gorm.Session{})
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		offset := (page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	var attempts []models.Attempt
	if err := query.Order("created_at DESC").Find(&attempts).Error; err != nil {
		return nil, 0, err
	}

	return attempts, total, nil
}

func (r *attemptRepository) RecentScores(ctx context.Context, studentID uint, limit int) ([]float64, error) {
	if limit <= 0 {
		limit = 5
	}

	var scores []float64
	if err := r.db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("student_id = ? AND outcome NOT IN ?", studentID, []string{
			models.AttemptOutcomeRejected,
			models.AttemptOutcomeFailed,
			models.AttemptOutcomeTimeout,
			models.AttemptOutcomeError,
		}).
		Order("created_at DESC").
		Limit(limit).
		Pluck("score", &scores).Error; err != nil {
		return nil, err
	}

	return scores, nil
}
