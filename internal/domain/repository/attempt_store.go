package repository

import (
	"context"
	"time"

	"github.com/yourusername/fleet-api/internal/domain/entity"
)

// AttemptStore keeps the per-account code resend window. Acquire must read, heal,
// increment and write the window as one atomic unit.
type AttemptStore interface {
	Acquire(ctx context.Context, accountID uint, now time.Time, policy entity.AttemptPolicy) (entity.AttemptWindow, entity.AttemptOutcome, error)
	// Peek returns the stored window without counting anything.
	Peek(ctx context.Context, accountID uint) (entity.AttemptWindow, error)
	Reset(ctx context.Context, accountID uint) error
}
