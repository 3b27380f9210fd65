package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yourusername/fleet-api/internal/domain/entity"
	apperrors "github.com/yourusername/fleet-api/internal/pkg/errors"
)

// TrustedDeviceRepo реализует repository.TrustedDeviceRepository
type TrustedDeviceRepo struct {
	db *gorm.DB
}

// NewTrustedDeviceRepo создает новый репозиторий доверенных устройств
func NewTrustedDeviceRepo(db *gorm.DB) *TrustedDeviceRepo {
	return &TrustedDeviceRepo{db: db}
}

// TouchActive обновляет last_used_at одним UPDATE и сообщает, нашлась ли активная запись
func (r *TrustedDeviceRepo) TouchActive(ctx context.Context, accountID uint, deviceID string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&entity.TrustedDevice{}).
		Where("account_id = ? AND device_id = ? AND active = ?", accountID, deviceID, true).
		Updates(map[string]interface{}{"last_used_at": now, "updated_at": now})
	if result.Error != nil {
		return false, fmt.Errorf("touch device %q for account #%d failed: %w", deviceID, accountID, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Trust upserts by (account_id, device_id). A deactivated row is reactivated in place,
// so the pair never has two rows.
func (r *TrustedDeviceRepo) Trust(ctx context.Context, device *entity.TrustedDevice) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		device.Active = true
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "device_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"device_name", "device_type", "last_used_at", "active", "updated_at"}),
		}).Create(device).Error
		if err != nil {
			return fmt.Errorf("trust device %q for account #%d failed: %w", device.DeviceID, device.AccountID, err)
		}

		result := tx.Model(&entity.Account{}).Where("id = ?", device.AccountID).
			Updates(map[string]interface{}{
				"two_factor_forced":  false,
				"last_two_factor_at": device.LastUsedAt,
				"updated_at":         device.LastUsedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperrors.ErrNotFound
		}
		return nil
	})
}

// Deactivate снимает доверие с устройства. Повторный вызов для уже неактивной записи не ошибка.
func (r *TrustedDeviceRepo) Deactivate(ctx context.Context, accountID uint, deviceID string) error {
	result := r.db.WithContext(ctx).Model(&entity.TrustedDevice{}).
		Where("account_id = ? AND device_id = ?", accountID, deviceID).
		Updates(map[string]interface{}{"active": false, "updated_at": time.Now()})
	if result.Error != nil {
		return fmt.Errorf("deactivate device %q for account #%d failed: %w", deviceID, accountID, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// DeactivateAll деактивирует все устройства и выставляет two_factor_forced в одной транзакции
func (r *TrustedDeviceRepo) DeactivateAll(ctx context.Context, accountID uint) (int64, error) {
	var affected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		result := tx.Model(&entity.TrustedDevice{}).
			Where("account_id = ? AND active = ?", accountID, true).
			Updates(map[string]interface{}{"active": false, "updated_at": now})
		if result.Error != nil {
			return result.Error
		}
		affected = result.RowsAffected

		result = tx.Model(&entity.Account{}).Where("id = ?", accountID).
			Updates(map[string]interface{}{"two_factor_forced": true, "updated_at": now})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperrors.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// ListActive возвращает активные устройства, последние использованные первыми
func (r *TrustedDeviceRepo) ListActive(ctx context.Context, accountID uint) ([]entity.TrustedDevice, error) {
	var devices []entity.TrustedDevice
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND active = ?", accountID, true).
		Order("last_used_at DESC, id DESC").
		Find(&devices).Error
	if err != nil {
		return nil, err
	}
	return devices, nil
}
