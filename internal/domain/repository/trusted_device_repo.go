package repository

import (
	"context"
	"time"

	"github.com/yourusername/fleet-api/internal/domain/entity"
)

// TrustedDeviceRepository persists trusted devices.
type TrustedDeviceRepository interface {
	// TouchActive bumps last_used_at on the active row for (accountID, deviceID) and
	// reports whether such a row exists.
	TouchActive(ctx context.Context, accountID uint, deviceID string, now time.Time) (bool, error)
	// Trust upserts the device by (account_id, device_id), reactivating it, and clears
	// the account's forced re-verification flag in the same transaction.
	Trust(ctx context.Context, device *entity.TrustedDevice) error
	// Deactivate returns apperrors.ErrNotFound when the pair was never trusted.
	Deactivate(ctx context.Context, accountID uint, deviceID string) error
	// DeactivateAll deactivates every device and forces re-verification on the account.
	DeactivateAll(ctx context.Context, accountID uint) (int64, error)
	ListActive(ctx context.Context, accountID uint) ([]entity.TrustedDevice, error)
}
