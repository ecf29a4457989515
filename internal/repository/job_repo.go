package repository

import (
	"time"

	"partsight/internal/domain"
	"partsight/internal/models"

	"gorm.io/gorm"
)

type AnalysisJobRepository struct {
	db *gorm.DB
}

func NewAnalysisJobRepository(db *gorm.DB) *AnalysisJobRepository {
	return &AnalysisJobRepository{db: db}
}

func (r *AnalysisJobRepository) Create(j *models.AnalysisJob) error {
	return r.db.Create(j).Error
}

func (r *AnalysisJobRepository) GetByID(id string) (*models.AnalysisJob, error) {
	var j models.AnalysisJob
	err := r.db.Where("id = ?", id).First(&j).Error
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *AnalysisJobRepository) Update(j *models.AnalysisJob) error {
	return r.db.Save(j).Error
}

func (r *AnalysisJobRepository) ListByUser(userID uint, limit, offset int) ([]models.AnalysisJob, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var jobs []models.AnalysisJob
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&jobs).Error
	return jobs, err
}

// ListRetryable returns failed jobs still under the retry cap, oldest
// first, bounded so one sweep cannot re-submit a thundering herd.
func (r *AnalysisJobRepository) ListRetryable(maxRetries, batch int) ([]models.AnalysisJob, error) {
	var jobs []models.AnalysisJob
	err := r.db.Where("status = ? AND retry_count < ?", domain.JobStatusFailed, maxRetries).
		Order("updated_at ASC").
		Limit(batch).
		Find(&jobs).Error
	return jobs, err
}

// MarkCompleted consumes the reservation: the debited credit is spent.
func (r *AnalysisJobRepository) MarkCompleted(id string, confidence float64, processingMS int64) error {
	now := time.Now()
	return r.db.Model(&models.AnalysisJob{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":          domain.JobStatusCompleted,
			"credit_reserved": false,
			"confidence":      confidence,
			"processing_ms":   processingMS,
			"error_message":   "",
			"error_kind":      "",
			"retry_suggested": false,
			"completed_at":    &now,
		}).Error
}

// MarkFailed records the failure outcome; the caller must have already
// refunded the reservation before this is written.
func (r *AnalysisJobRepository) MarkFailed(id, message, kind string, retrySuggested bool) error {
	return r.db.Model(&models.AnalysisJob{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":          domain.JobStatusFailed,
			"credit_reserved": false,
			"error_message":   message,
			"error_kind":      kind,
			"retry_suggested": retrySuggested,
		}).Error
}
