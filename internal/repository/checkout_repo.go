package repository

import (
	"errors"
	"time"

	"partsight/internal/domain"
	"partsight/internal/models"

	"gorm.io/gorm"
)

// ErrInvalidTransition means a checkout session was asked to move
// backwards; sessions only go created -> completed | failed.
var ErrInvalidTransition = errors.New("invalid checkout session transition")

type CheckoutRepository struct {
	db *gorm.DB
}

func NewCheckoutRepository(db *gorm.DB) *CheckoutRepository {
	return &CheckoutRepository{db: db}
}

func (r *CheckoutRepository) Create(cs *models.CheckoutSession) error {
	return r.db.Create(cs).Error
}

func (r *CheckoutRepository) GetByID(id string) (*models.CheckoutSession, error) {
	var cs models.CheckoutSession
	err := r.db.Where("id = ?", id).First(&cs).Error
	if err != nil {
		return nil, err
	}
	return &cs, nil
}

// MarkCompleted moves the session forward; completing an already-terminal
// session is rejected so webhook redelivery cannot flip state backwards.
func (r *CheckoutRepository) MarkCompleted(id string) error {
	return r.transition(id, domain.CheckoutStatusCompleted)
}

func (r *CheckoutRepository) MarkFailed(id string) error {
	return r.transition(id, domain.CheckoutStatusFailed)
}

func (r *CheckoutRepository) transition(id, to string) error {
	res := r.db.Model(&models.CheckoutSession{}).
		Where("id = ? AND status = ?", id, domain.CheckoutStatusCreated).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInvalidTransition
	}
	return nil
}
