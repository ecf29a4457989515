package repository

import (
	"time"

	"partsight/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WebhookEventRepository records accepted provider events for at-least-once
// delivery deduplication and for audit.
type WebhookEventRepository struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// Record inserts the event keyed by its provider ID. A duplicate delivery
// counts as seen only when the stored event was processed; an earlier
// attempt that failed before committing leaves the row unprocessed, so
// the redelivery runs the dispatch again.
func (r *WebhookEventRepository) Record(eventID, eventType string, payload []byte) (seen bool, err error) {
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&models.WebhookEvent{
		EventID: eventID,
		Type:    eventType,
		Payload: string(payload),
	})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return false, nil
	}
	existing, err := r.GetByEventID(eventID)
	if err != nil {
		return false, err
	}
	return existing.ProcessedAt != nil, nil
}

func (r *WebhookEventRepository) GetByEventID(eventID string) (*models.WebhookEvent, error) {
	var ev models.WebhookEvent
	if err := r.db.Where("event_id = ?", eventID).First(&ev).Error; err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *WebhookEventRepository) MarkProcessed(eventID string) error {
	return r.db.Model(&models.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Updates(map[string]interface{}{
			"processed_at":     time.Now(),
			"processing_error": "",
		}).Error
}

func (r *WebhookEventRepository) MarkFailed(eventID string, procErr error) error {
	return r.db.Model(&models.WebhookEvent{}).
		Where("event_id = ?", eventID).
		Update("processing_error", procErr.Error()).Error
}
