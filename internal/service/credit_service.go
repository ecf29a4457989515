package service

import (
	"partsight/internal/domain"
	"partsight/internal/models"
	"partsight/internal/repository"
)

// CreditService fronts the ledger and applies the administrative
// exemption: admin accounts are treated as having unlimited balance and
// never touch the ledger.
type CreditService struct {
	credits *repository.CreditRepository
	users   *repository.UserRepository
}

func NewCreditService(credits *repository.CreditRepository, users *repository.UserRepository) *CreditService {
	return &CreditService{credits: credits, users: users}
}

// Balance is the ledger view exposed to callers. Unlimited is a distinct
// sentinel for administrative accounts, never a numeric value.
type Balance struct {
	Amount    int64 `json:"balance"`
	Unlimited bool  `json:"unlimited"`
}

func (s *CreditService) GetBalance(userID uint) (Balance, error) {
	if s.isExempt(userID) {
		return Balance{Unlimited: true}, nil
	}
	amount, err := s.credits.GetBalance(userID)
	if err != nil {
		return Balance{}, err
	}
	return Balance{Amount: amount}, nil
}

// Reserve debits one credit for an analysis. Exempt accounts skip the
// check entirely and return unlimited=true with no ledger write.
func (s *CreditService) Reserve(userID uint) (result *repository.DebitResult, unlimited bool, err error) {
	if s.isExempt(userID) {
		return nil, true, nil
	}
	res, err := s.credits.TryDebit(userID, 1, domain.ReasonAnalysisDebit)
	if err != nil {
		return nil, false, err
	}
	return res, false, nil
}

// Refund returns one reserved credit. Callers guard against double refunds
// via the job's reservation flag.
func (s *CreditService) Refund(userID uint, reason string) error {
	_, err := s.credits.Refund(userID, 1, reason)
	return err
}

func (s *CreditService) Grant(userID uint, amount int64, reason string) (int64, error) {
	return s.credits.Credit(userID, amount, reason)
}

func (s *CreditService) ListTransactions(userID uint, limit, offset int) ([]models.CreditTransaction, error) {
	return s.credits.ListTransactions(userID, limit, offset)
}

// isExempt fails closed: a user we cannot load gets no exemption.
func (s *CreditService) isExempt(userID uint) bool {
	u, err := s.users.GetByID(userID)
	if err != nil {
		return false
	}
	return u.IsAdmin()
}
