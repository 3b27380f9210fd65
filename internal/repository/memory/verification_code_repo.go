package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/yourusername/fleet-api/internal/domain/entity"
	"github.com/yourusername/fleet-api/internal/domain/repository"
	apperrors "github.com/yourusername/fleet-api/internal/pkg/errors"
)

// VerificationCodeRepo реализует repository.VerificationCodeRepository в памяти
type VerificationCodeRepo struct {
	s *Store
}

func (r *VerificationCodeRepo) Replace(ctx context.Context, code *entity.VerificationCode) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.accounts[code.AccountID]; !ok {
		return apperrors.ErrNotFound
	}
	for id, existing := range r.s.codes {
		if existing.AccountID == code.AccountID && existing.Purpose == code.Purpose && !existing.Used {
			delete(r.s.codes, id)
		}
	}

	r.s.nextCodeID++
	code.ID = r.s.nextCodeID
	if code.CreatedAt.IsZero() {
		code.CreatedAt = time.Now()
	}
	r.s.codes[code.ID] = copyCode(code)
	return nil
}

func (r *VerificationCodeRepo) GetLatestUnused(ctx context.Context, accountID uint, purpose entity.Purpose) (*entity.VerificationCode, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var latest *entity.VerificationCode
	for _, code := range r.s.codes {
		if code.AccountID != accountID || code.Purpose != purpose || code.Used {
			continue
		}
		if latest == nil || code.ID > latest.ID {
			latest = code
		}
	}
	if latest == nil {
		return nil, apperrors.ErrNotFound
	}
	return copyCode(latest), nil
}

func (r *VerificationCodeRepo) Consume(ctx context.Context, code *entity.VerificationCode, now time.Time, accountUpdates map[string]interface{}) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.codes[code.ID]
	if !ok || stored.Used || now.After(stored.ExpiresAt) {
		return fmt.Errorf("%w: code #%d", repository.ErrCodeNotConsumable, code.ID)
	}

	acc, ok := r.s.accounts[stored.AccountID]
	if !ok {
		return apperrors.ErrNotFound
	}
	next := copyAccount(acc)
	if err := applyAccountUpdates(next, accountUpdates); err != nil {
		return err
	}
	if len(accountUpdates) > 0 {
		next.UpdatedAt = now
	}

	used := now
	stored.Used = true
	stored.UsedAt = &used
	r.s.accounts[next.ID] = next

	code.Used = true
	code.UsedAt = timePtr(&used)
	return nil
}

func (r *VerificationCodeRepo) Delete(ctx context.Context, id uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	delete(r.s.codes, id)
	return nil
}

func (r *VerificationCodeRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, code := range r.s.codes {
		if code.ExpiresAt.Before(cutoff) {
			delete(r.s.codes, id)
			n++
		}
	}
	return n, nil
}
