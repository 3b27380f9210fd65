package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yourusername/fleet-api/internal/domain/entity"
	"github.com/yourusername/fleet-api/internal/domain/repository"
	apperrors "github.com/yourusername/fleet-api/internal/pkg/errors"
)

// VerificationCodeRepo реализует repository.VerificationCodeRepository
type VerificationCodeRepo struct {
	db *gorm.DB
}

// NewVerificationCodeRepo создает новый репозиторий одноразовых кодов
func NewVerificationCodeRepo(db *gorm.DB) *VerificationCodeRepo {
	return &VerificationCodeRepo{db: db}
}

// Replace locks the account row so that concurrent issues for the same account are
// serialized, drops the unused code for the purpose and inserts the new one.
// Partial unique index idx_verification_codes_active backs this: a lost race surfaces
// as 23505 and is reported as ErrConflict.
func (r *VerificationCodeRepo) Replace(ctx context.Context, code *entity.VerificationCode) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var acc entity.Account
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			First(&acc, code.AccountID).Error; err != nil {
			return notFound(err)
		}

		if err := tx.Where("account_id = ? AND purpose = ? AND used = ?", code.AccountID, code.Purpose, false).
			Delete(&entity.VerificationCode{}).Error; err != nil {
			return fmt.Errorf("drop previous %s code failed: %w", code.Purpose, err)
		}

		return tx.Create(code).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: concurrent %s code for account #%d", apperrors.ErrConflict, code.Purpose, code.AccountID)
		}
		return err
	}
	return nil
}

// GetLatestUnused возвращает последний неиспользованный код (в том числе истекший)
func (r *VerificationCodeRepo) GetLatestUnused(ctx context.Context, accountID uint, purpose entity.Purpose) (*entity.VerificationCode, error) {
	var code entity.VerificationCode
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND purpose = ? AND used = ?", accountID, purpose, false).
		Order("created_at DESC, id DESC").
		First(&code).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &code, nil
}

// Consume атомарно помечает код использованным.
// - RowsAffected == 0 → код уже использован, заменен или истек
// - accountUpdates применяются в той же транзакции
func (r *VerificationCodeRepo) Consume(ctx context.Context, code *entity.VerificationCode, now time.Time, accountUpdates map[string]interface{}) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&entity.VerificationCode{}).
			Where("id = ? AND used = ? AND expires_at >= ?", code.ID, false, now).
			Updates(map[string]interface{}{"used": true, "used_at": now})
		if result.Error != nil {
			return fmt.Errorf("consume code #%d failed: %w", code.ID, result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: code #%d", repository.ErrCodeNotConsumable, code.ID)
		}

		if len(accountUpdates) == 0 {
			return nil
		}
		updates := make(map[string]interface{}, len(accountUpdates)+1)
		for k, v := range accountUpdates {
			updates[k] = v
		}
		updates["updated_at"] = now

		result = tx.Model(&entity.Account{}).Where("id = ?", code.AccountID).Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("apply %s effects to account #%d failed: %w", code.Purpose, code.AccountID, result.Error)
		}
		if result.RowsAffected == 0 {
			return apperrors.ErrNotFound
		}
		used := now
		code.Used = true
		code.UsedAt = &used
		return nil
	})
}

// Delete удаляет код по ID. Отсутствие записи не считается ошибкой.
func (r *VerificationCodeRepo) Delete(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Delete(&entity.VerificationCode{}, id).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return nil
}

// DeleteExpired удаляет все коды, истекшие до cutoff
func (r *VerificationCodeRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("expires_at < ?", cutoff).Delete(&entity.VerificationCode{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete expired codes failed: %w", result.Error)
	}
	return result.RowsAffected, nil
}
