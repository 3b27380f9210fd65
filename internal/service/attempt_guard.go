package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/yourusername/fleet-api/internal/domain/entity"
	"github.com/yourusername/fleet-api/internal/domain/repository"
)

// AttemptGuard limits how many registration codes an account may request before a
// temporary lockout. The check and the increment happen in one store call.
type AttemptGuard struct {
	store  repository.AttemptStore
	policy entity.AttemptPolicy
	now    func() time.Time
}

func NewAttemptGuard(store repository.AttemptStore, policy entity.AttemptPolicy) (*AttemptGuard, error) {
	if store == nil {
		return nil, fmt.Errorf("attempt store is required")
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 5
	}
	if policy.Lockout <= 0 {
		policy.Lockout = 5 * time.Minute
	}
	return &AttemptGuard{store: store, policy: policy, now: time.Now}, nil
}

// CanIssue counts one send attempt. It returns nil to allow, ErrAlreadyVerified, or a
// *BlockedError. The attempt that trips the limit is itself blocked.
func (g *AttemptGuard) CanIssue(ctx context.Context, acc *entity.Account) error {
	if acc.RegistrationVerified {
		return fmt.Errorf("%w: registration already verified", ErrAlreadyVerified)
	}

	now := g.now()
	window, outcome, err := g.store.Acquire(ctx, acc.ID, now, g.policy)
	if err != nil {
		return fmt.Errorf("failed to count send attempt: %w", err)
	}

	switch outcome {
	case entity.AttemptTripped:
		slog.Warn("[AttemptGuard.CanIssue] attempt limit exceeded, account locked",
			"account_id", acc.ID, "attempts", window.Count, "blocked_until", window.BlockedUntil)
		return newBlockedError(window, now)
	case entity.AttemptRejected:
		return newBlockedError(window, now)
	}
	return nil
}

// CheckBlocked reports an active lockout without counting an attempt.
func (g *AttemptGuard) CheckBlocked(ctx context.Context, accountID uint) error {
	now := g.now()
	window, err := g.store.Peek(ctx, accountID)
	if err != nil {
		return fmt.Errorf("failed to read attempt window: %w", err)
	}
	if window.Blocked(now) {
		return newBlockedError(window, now)
	}
	return nil
}

// Window returns the stored window as seen at now, with an elapsed lockout already healed.
func (g *AttemptGuard) Window(ctx context.Context, accountID uint) (entity.AttemptWindow, error) {
	window, err := g.store.Peek(ctx, accountID)
	if err != nil {
		return entity.AttemptWindow{}, fmt.Errorf("failed to read attempt window: %w", err)
	}
	return window.Healed(g.now()), nil
}

func (g *AttemptGuard) Reset(ctx context.Context, accountID uint) error {
	return g.store.Reset(ctx, accountID)
}

func (g *AttemptGuard) Policy() entity.AttemptPolicy {
	return g.policy
}
