package repository

import (
	"context"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/sqlquest/sqlquest-api/internal/models"
)

// ChallengeRepository provides access to SQL challenges.
type ChallengeRepository interface {
	GetByID(ctx context.Context, id uint) (models.Challenge, error)
	GetBySlug(ctx context.Context, slug string) (models.Challenge, error)
	ListActiveByTier(ctx context.Context, tier string) ([]models.Challenge, error)
	Create(ctx context.Context, challenge *models.Challenge) error
	UpdateExpectedRows(ctx context.Context, id uint, expected datatypes.JSON) error
	CountByTier(ctx context.Context) (map[string]int64, error)
}

type challengeRepository struct {
	db *gorm.DB
}

// NewChallengeRepository constructs a challenge repository.
func NewChallengeRepository(db *gorm.DB) ChallengeRepository {
	return &challengeRepository{db: db}
}

func (r *challengeRepository) GetByID(ctx context.Context, id uint) (models.Challenge, error) {
	var challenge models.Challenge
	if err := r.db.WithContext(ctx).First(&challenge, id).Error; err != nil {
		return models.Challenge{}, err
	}

	return challenge, nil
}

func (r *challengeRepository) GetBySlug(ctx context.Context, slug string) (models.Challenge, error) {
	var challenge models.Challenge
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&challenge).Error; err != nil {
		return models.Challenge{}, err
	}

	return challenge, nil
}

func (r *challengeRepository) ListActiveByTier(ctx context.Context, tier string) ([]models.Challenge, error) {
	var challenges []models.Challenge
	if err := r.db.WithContext(ctx).
		Where("active = ? AND tier = ?", true, tier).
		Order("id ASC").
		Find(&challenges).Error; err != nil {
		return nil, err
	}

	return challenges, nil
}

func (r *challengeRepository) Create(ctx context.Context, challenge *models.Challenge) error {
	return r.db.WithContext(ctx).Create(challenge).Error
}

func (r *challengeRepository) UpdateExpectedRows(ctx context.Context, id uint, expected datatypes.JSON) error {
	return r.db.WithContext(ctx).
		Model(&models.Challenge{}).
		Where("id = ?", id).
		Update("expected_rows", expected).Error
}

func (r *challengeRepository) CountByTier(ctx context.Context) (map[string]int64, error) {
	type tierCount struct {
		Tier  string
		Count int64
	}

	var rows []tierCount
	if err := r.db.WithContext(ctx).
		Model(&models.Challenge{}).
		Select("tier, COUNT(*) AS count").
		Where("active = ?", true).
		Group("tier").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Tier] = row.Count
	}

	return counts, nil
}
