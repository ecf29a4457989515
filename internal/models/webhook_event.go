package models

import (
	"time"
)

// WebhookEvent stores every provider event we accept, keyed by the
// provider's event ID for at-least-once delivery deduplication.
type WebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	EventID         string     `gorm:"uniqueIndex;size:255;not null" json:"event_id"`
	Type            string     `gorm:"size:100;not null;index" json:"type"`
	Payload         string     `gorm:"type:text" json:"payload"`
	ProcessedAt     *time.Time `json:"processed_at"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `json:"created_at"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}
