package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/sqlquest/sqlquest-api/internal/models"
)

// StudentRepository provides access to student records.
type StudentRepository interface {
	GetByID(ctx context.Context, id uint) (models.Student, error)
	GetByExternalID(ctx context.Context, externalID string) (models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	UpdateTier(ctx context.Context, id uint, tier string) error
	ListByInstructor(ctx context.Context, instructorID uint) ([]models.Student, error)
	ListAll(ctx context.Context) ([]models.Student, error)
}

type studentRepository struct {
	db *gorm.DB
}

// NewStudentRepository constructs a student repository.
func NewStudentRepository(db *gorm.DB) StudentRepository {
	return &studentRepository{db: db}
}

func (r *studentRepository) GetByID(ctx context.Context, id uint) (models.Student, error) {
	var student models.Student
	if err := r.db.WithContext(ctx).First(&student, id).Error; err != nil {
		return models.Student{}, err
	}

	return student, nil
}

func (r *studentRepository) GetByExternalID(ctx context.Context, externalID string) (models.Student, error) {
	var student models.Student
	if err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&student).Error; err != nil {
		return models.Student{}, err
	}

	return student, nil
}

func (r *studentRepository) Create(ctx context.Context, student *models.Student) error {
	return r.db.WithContext(ctx).Create(student).Error
}

func (r *studentRepository) UpdateTier(ctx context.Context, id uint, tier string) error {
	return r.db.WithContext(ctx).
		Model(&models.Student{}).
		Where("id = ?", id).
		Update("tier", tier).Error
}

func (r *studentRepository) ListAll(ctx context.Context) ([]models.Student, error) {
	var students []models.Student
	if err := r.db.WithContext(ctx).Find(&students).Error; err != nil {
		return nil, err
	}

	return students, nil
}

func (r *studentRepository) ListByInstructor(ctx context.Context, instructorID uint) ([]models.Student, error) {
	var students []models.Student
	if err := r.db.WithContext(ctx).
		Where("instructor_id = ?", instructorID).
		Order("name ASC").
		Find(&students).Error; err != nil {
		return nil, err
	}

	return students, nil
}
