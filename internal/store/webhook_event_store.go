package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gridpick_backend/internal/model"
)

type WebhookEventStore struct {
	db *gorm.DB
}

func NewWebhookEventStore(db *gorm.DB) *WebhookEventStore {
	return &WebhookEventStore{db: db}
}

// Record stores the event unless one with the same Stripe id exists. It
// reports whether a new row was inserted and returns the stored row either way.
func (s *WebhookEventStore) Record(ctx context.Context, event *model.WebhookEvent) (bool, *model.WebhookEvent, error) {
	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stripe_event_id"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored model.WebhookEvent
	if err := s.db.WithContext(ctx).Where("stripe_event_id = ?", event.StripeEventID).First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (s *WebhookEventStore) MarkProcessed(ctx context.Context, id uuid.UUID, processingErr error) error {
	now := time.Now()
	msg := ""
	if processingErr != nil {
		msg = processingErr.Error()
	}
	return s.db.WithContext(ctx).Model(&model.WebhookEvent{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed_at":     &now,
			"processing_error": msg,
		}).Error
}
