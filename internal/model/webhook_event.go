package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// WebhookEvent records every verified Stripe delivery keyed by the Stripe
// event id, so redeliveries of an already processed event can be acknowledged
// without touching subscriptions again.
type WebhookEvent struct {
	ID              uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	StripeEventID   string         `json:"stripe_event_id" gorm:"type:varchar(191);not null;uniqueIndex"`
	EventType       string         `json:"event_type" gorm:"type:varchar(100);not null;index"`
	Payload         datatypes.JSON `json:"payload"`
	ProcessedAt     *time.Time     `json:"processed_at,omitempty"`
	ProcessingError string         `json:"processing_error" gorm:"type:text"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func (e *WebhookEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// Settled reports whether the event was already applied without error.
func (e *WebhookEvent) Settled() bool {
	return e.ProcessedAt != nil && e.ProcessingError == ""
}
