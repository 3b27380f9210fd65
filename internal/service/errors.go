package service

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/yourusername/fleet-api/internal/domain/entity"
	apperrors "github.com/yourusername/fleet-api/internal/pkg/errors"
)

// Verification errors used by handlers for stable error_type mapping.
var (
	ErrInvalidCode            = errors.New("invalid_code")
	ErrCodeExpired            = errors.New("code_expired")
	ErrCodeAlreadyUsed        = errors.New("code_already_used")
	ErrAlreadyVerified        = errors.New("already_verified")
	ErrBlocked                = errors.New("blocked")
	ErrDeliveryFailed         = errors.New("delivery_failed")
	ErrTwoFactorNotEnabled    = errors.New("two_factor_not_enabled")
	ErrUnsupportedChannel     = errors.New("unsupported_channel")
	ErrDeliveryAddressMissing = errors.New("delivery_address_missing")

	// ErrInvalidCodeFormat is an input error: it is returned before storage is touched.
	ErrInvalidCodeFormat = fmt.Errorf("%w: code must be %d digits", apperrors.ErrValidation, entity.CodeLength)
)

// BlockedError carries the lockout end so callers can show a countdown.
type BlockedError struct {
	Until      time.Time
	RetryAfter time.Duration
}

func newBlockedError(window entity.AttemptWindow, now time.Time) *BlockedError {
	e := &BlockedError{RetryAfter: window.RetryAfter(now)}
	if window.BlockedUntil != nil {
		e.Until = *window.BlockedUntil
	}
	return e
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("blocked: retry after %d seconds", e.RetryAfterSeconds())
}

func (e *BlockedError) Is(target error) bool {
	return target == ErrBlocked
}

// RetryAfterSeconds rounds up so a client never retries a moment too early.
func (e *BlockedError) RetryAfterSeconds() int {
	return int(math.Ceil(e.RetryAfter.Seconds()))
}
