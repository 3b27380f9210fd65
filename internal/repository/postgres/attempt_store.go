package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yourusername/fleet-api/internal/domain/entity"
)

// AttemptStore keeps the resend window on the accounts row; the row lock taken in
// Acquire serializes concurrent requests for the same account.
type AttemptStore struct {
	db *gorm.DB
}

// NewAttemptStore создает хранилище счетчиков попыток поверх таблицы accounts
func NewAttemptStore(db *gorm.DB) *AttemptStore {
	return &AttemptStore{db: db}
}

func (s *AttemptStore) Acquire(ctx context.Context, accountID uint, now time.Time, policy entity.AttemptPolicy) (entity.AttemptWindow, entity.AttemptOutcome, error) {
	var (
		window  entity.AttemptWindow
		outcome entity.AttemptOutcome
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var acc entity.Account
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "attempt_count", "blocked_until").
			First(&acc, accountID).Error; err != nil {
			return notFound(err)
		}

		window, outcome = acc.AttemptWindow().Next(now, policy)
		if outcome == entity.AttemptRejected {
			return nil
		}
		return tx.Model(&entity.Account{}).Where("id = ?", accountID).
			Updates(map[string]interface{}{
				"attempt_count": window.Count,
				"blocked_until": window.BlockedUntil,
			}).Error
	})
	if err != nil {
		return entity.AttemptWindow{}, entity.AttemptAllowed, err
	}
	return window, outcome, nil
}

func (s *AttemptStore) Peek(ctx context.Context, accountID uint) (entity.AttemptWindow, error) {
	var acc entity.Account
	err := s.db.WithContext(ctx).
		Select("id", "attempt_count", "blocked_until").
		First(&acc, accountID).Error
	if err != nil {
		return entity.AttemptWindow{}, notFound(err)
	}
	return acc.AttemptWindow(), nil
}

func (s *AttemptStore) Reset(ctx context.Context, accountID uint) error {
	return s.db.WithContext(ctx).Model(&entity.Account{}).Where("id = ?", accountID).
		Updates(map[string]interface{}{"attempt_count": 0, "blocked_until": nil}).Error
}
