package repository

import (
	"context"
	"errors"
	"time"

	"github.com/yourusername/fleet-api/internal/domain/entity"
)

// ErrCodeNotConsumable is returned by Consume when the row is no longer unused and unexpired,
// either because another request consumed it first or because it was superseded.
var ErrCodeNotConsumable = errors.New("verification code is no longer consumable")

// VerificationCodeRepository persists one-time codes.
type VerificationCodeRepository interface {
	// Replace removes any unused code for (code.AccountID, code.Purpose) and stores code,
	// as one unit serialized per account.
	Replace(ctx context.Context, code *entity.VerificationCode) error
	// GetLatestUnused returns the newest unused code for the purpose, expired or not.
	GetLatestUnused(ctx context.Context, accountID uint, purpose entity.Purpose) (*entity.VerificationCode, error)
	// Consume flips used=false→true on the row if it is still unused and unexpired at now,
	// and applies accountUpdates to the owning account in the same transaction.
	Consume(ctx context.Context, code *entity.VerificationCode, now time.Time, accountUpdates map[string]interface{}) error
	Delete(ctx context.Context, id uint) error
	// DeleteExpired removes every row that expired before cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
