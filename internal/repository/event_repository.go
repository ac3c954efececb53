package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"literature-manager/internal/model"
)

type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Create(event *model.PaperEvent) error {
	if err := r.db.Create(event).Error; err != nil {
		return fmt.Errorf("create paper event failed: %w", err)
	}
	return nil
}

// Publish stores the event directly, for deployments without a broker.
func (r *EventRepository) Publish(ctx context.Context, event model.PaperEvent) error {
	if err := r.db.WithContext(ctx).Create(&event).Error; err != nil {
		return fmt.Errorf("create paper event failed: %w", err)
	}
	return nil
}

func (r *EventRepository) ListRecent(limit int) ([]model.PaperEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var events []model.PaperEvent
	if err := r.db.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list paper events failed: %w", err)
	}
	return events, nil
}

func (r *EventRepository) ListByPaperID(paperID int, limit int) ([]model.PaperEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var events []model.PaperEvent
	if err := r.db.Where("paper_id = ?", paperID).Order("created_at DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list paper events failed: %w", err)
	}
	return events, nil
}
