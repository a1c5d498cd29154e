package repository

import (
	"context"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/sqlquest/sqlquest-api/internal/events"
	"github.com/sqlquest/sqlquest-api/internal/models"
)

// EventFilter narrows pipeline event queries.
type EventFilter struct {
	Page      int
	PageSize  int
	UserID    string
	EventType string
}

// EventRepository persists the pipeline activity trail.
type EventRepository interface {
	SaveEvent(ctx context.Context, event events.Event) error
	List(ctx context.Context, filter EventFilter) ([]models.PipelineEvent, int64, error)
}

type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository constructs the pipeline event repository.
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) SaveEvent(ctx context.Context, event events.Event) error {
	entry := models.PipelineEvent{
		EventID:    event.ID,
		EventType:  string(event.Type),
		UserID:     event.UserID,
		OccurredAt: event.Timestamp,
		Payload:    datatypes.JSONMap(event.Payload),
	}

	return r.db.WithContext(ctx).Create(&entry).Error
}

func (r *eventRepository) List(ctx context.Context, filter EventFilter) ([]models.PipelineEvent, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.PipelineEvent{})

	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}

	if filter.EventType != "" {
		query = query.Where("event_type = ?", filter.EventType)
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

	var entries []models.PipelineEvent
	if err := query.Order("occurred_at DESC").Find(&entries).Error; err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}
