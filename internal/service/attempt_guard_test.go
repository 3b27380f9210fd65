package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/fleet-api/internal/domain/entity"
)

func TestNewAttemptGuard_Defaults(t *testing.T) {
	env := newTestEnv(t, nil)

	guard, err := NewAttemptGuard(env.store.Attempts(), entity.AttemptPolicy{})
	require.NoError(t, err)
	assert.Equal(t, entity.AttemptPolicy{MaxAttempts: 5, Lockout: 5 * time.Minute}, guard.Policy())

	_, err = NewAttemptGuard(nil, testPolicy)
	assert.Error(t, err)
}

func TestAttemptGuard_CanIssueRejectsVerified(t *testing.T) {
	env := newTestEnv(t, nil)
	acc := env.createAccount(t, entity.Account{RegistrationVerified: true})

	err := env.guard.CanIssue(context.Background(), acc)
	assert.ErrorIs(t, err, ErrAlreadyVerified)
	assert.Zero(t, env.account(t, acc.ID).AttemptCount, "nothing is counted for a verified account")
}

func TestAttemptGuard_ConcurrentAttemptsNeverExceedLimit(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	acc := env.createAccount(t, entity.Account{})

	const workers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
		blocked int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := env.guard.CanIssue(ctx, acc)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				allowed++
			case errors.Is(err, ErrBlocked):
				blocked++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, testPolicy.MaxAttempts, allowed)
	assert.Equal(t, workers-testPolicy.MaxAttempts, blocked)
}

func TestAttemptGuard_CheckBlockedDoesNotCount(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	acc := env.createAccount(t, entity.Account{})

	require.NoError(t, env.guard.CanIssue(ctx, acc))
	for i := 0; i < 10; i++ {
		require.NoError(t, env.guard.CheckBlocked(ctx, acc.ID))
	}

	window, err := env.guard.Window(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, window.Count)
}

func TestAttemptGuard_ResetClearsLockout(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	acc := env.createAccount(t, entity.Account{})

	for i := 0; i <= testPolicy.MaxAttempts; i++ {
		_ = env.guard.CanIssue(ctx, acc)
	}
	require.ErrorIs(t, env.guard.CheckBlocked(ctx, acc.ID), ErrBlocked)

	require.NoError(t, env.guard.Reset(ctx, acc.ID))
	assert.NoError(t, env.guard.CheckBlocked(ctx, acc.ID))
	assert.NoError(t, env.guard.CanIssue(ctx, acc))
}

func TestBlockedError_RoundsUp(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	until := now.Add(90*time.Second + time.Millisecond)

	err := newBlockedError(entity.AttemptWindow{Count: 6, BlockedUntil: &until}, now)

	assert.Equal(t, 91, err.RetryAfterSeconds())
	assert.Equal(t, until, err.Until)
	assert.ErrorIs(t, err, ErrBlocked)
	assert.Equal(t, "blocked: retry after 91 seconds", err.Error())
}
