package repository

import (
	"errors"

	"partsight/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidAmount       = errors.New("amount must be positive")
)

// CreditRepository owns the per-user credit balance and its append-only
// transaction log. Every balance mutation and its ledger row commit in the
// same database transaction, or neither does.
type CreditRepository struct {
	db *gorm.DB
}

func NewCreditRepository(db *gorm.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

func (r *CreditRepository) GetOrCreate(userID uint) (*models.CreditBalance, error) {
	b := &models.CreditBalance{UserID: userID}
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(b).Error
	if err != nil {
		return nil, err
	}
	var out models.CreditBalance
	if err := r.db.Where("user_id = ?", userID).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// GetBalance returns the current balance; a user without a row has zero.
func (r *CreditRepository) GetBalance(userID uint) (int64, error) {
	var b models.CreditBalance
	err := r.db.Where("user_id = ?", userID).First(&b).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return b.Balance, nil
}

type DebitResult struct {
	BalanceBefore int64
	BalanceAfter  int64
}

// TryDebit atomically deducts amount if the balance covers it. The guard is
// a single conditional UPDATE (balance = balance - amount WHERE balance >=
// amount), so two concurrent debits for the same user can never both
// succeed against one amount's worth of balance. Zero rows affected means
// insufficient credits and nothing is recorded.
func (r *CreditRepository) TryDebit(userID uint, amount int64, reason string) (*DebitResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if _, err := r.GetOrCreate(userID); err != nil {
		return nil, err
	}
	var res DebitResult
	err := r.db.Transaction(func(tx *gorm.DB) error {
		upd := tx.Model(&models.CreditBalance{}).
			Where("user_id = ? AND balance >= ?", userID, amount).
			Update("balance", gorm.Expr("balance - ?", amount))
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			return ErrInsufficientCredits
		}
		var b models.CreditBalance
		if err := tx.Where("user_id = ?", userID).First(&b).Error; err != nil {
			return err
		}
		res.BalanceAfter = b.Balance
		res.BalanceBefore = b.Balance + amount
		return tx.Create(&models.CreditTransaction{
			UserID:       userID,
			Delta:        -amount,
			Reason:       reason,
			BalanceAfter: b.Balance,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Credit adds amount to the balance. Grants and refunds are never capped.
func (r *CreditRepository) Credit(userID uint, amount int64, reason string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	if _, err := r.GetOrCreate(userID); err != nil {
		return 0, err
	}
	var after int64
	err := r.db.Transaction(func(tx *gorm.DB) error {
		upd := tx.Model(&models.CreditBalance{}).
			Where("user_id = ?", userID).
			Update("balance", gorm.Expr("balance + ?", amount))
		if upd.Error != nil {
			return upd.Error
		}
		var b models.CreditBalance
		if err := tx.Where("user_id = ?", userID).First(&b).Error; err != nil {
			return err
		}
		after = b.Balance
		return tx.Create(&models.CreditTransaction{
			UserID:       userID,
			Delta:        amount,
			Reason:       reason,
			BalanceAfter: b.Balance,
		}).Error
	})
	if err != nil {
		return 0, err
	}
	return after, nil
}

// Refund reverses a prior debit. It is a plain credit at the ledger level;
// double-refund prevention is the caller's job via the job's reservation
// flag, not the ledger's.
func (r *CreditRepository) Refund(userID uint, amount int64, reason string) (int64, error) {
	return r.Credit(userID, amount, reason)
}

// ListTransactions returns the transaction log, newest first.
func (r *CreditRepository) ListTransactions(userID uint, limit, offset int) ([]models.CreditTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var txns []models.CreditTransaction
	err := r.db.Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).Offset(offset).
		Find(&txns).Error
	return txns, err
}
