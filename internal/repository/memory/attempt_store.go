package memory

import (
	"context"
	"time"

	"github.com/yourusername/fleet-api/internal/domain/entity"
	apperrors "github.com/yourusername/fleet-api/internal/pkg/errors"
)

// AttemptStore keeps the resend window on the in-memory account rows.
type AttemptStore struct {
	s *Store
}

func (a *AttemptStore) Acquire(ctx context.Context, accountID uint, now time.Time, policy entity.AttemptPolicy) (entity.AttemptWindow, entity.AttemptOutcome, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	acc, ok := a.s.accounts[accountID]
	if !ok {
		return entity.AttemptWindow{}, entity.AttemptAllowed, apperrors.ErrNotFound
	}

	window, outcome := acc.AttemptWindow().Next(now, policy)
	if outcome != entity.AttemptRejected {
		acc.AttemptCount = window.Count
		acc.BlockedUntil = timePtr(window.BlockedUntil)
	}
	return window, outcome, nil
}

func (a *AttemptStore) Peek(ctx context.Context, accountID uint) (entity.AttemptWindow, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	acc, ok := a.s.accounts[accountID]
	if !ok {
		return entity.AttemptWindow{}, apperrors.ErrNotFound
	}
	return entity.AttemptWindow{Count: acc.AttemptCount, BlockedUntil: timePtr(acc.BlockedUntil)}, nil
}

func (a *AttemptStore) Reset(ctx context.Context, accountID uint) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	acc, ok := a.s.accounts[accountID]
	if !ok {
		return apperrors.ErrNotFound
	}
	acc.AttemptCount = 0
	acc.BlockedUntil = nil
	return nil
}
