package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/yourusername/fleet-api/internal/domain/entity"
	apperrors "github.com/yourusername/fleet-api/internal/pkg/errors"
)

// AccountRepo реализует repository.AccountRepository в памяти
type AccountRepo struct {
	s *Store
}

func (r *AccountRepo) Create(ctx context.Context, account *entity.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	email := normalizeEmail(account.Email)
	for _, existing := range r.s.accounts {
		if normalizeEmail(existing.Email) == email {
			return fmt.Errorf("%w: email %s already registered", apperrors.ErrConflict, account.Email)
		}
	}

	r.s.nextAccountID++
	now := time.Now()
	account.ID = r.s.nextAccountID
	account.CreatedAt = now
	account.UpdatedAt = now
	r.s.accounts[account.ID] = copyAccount(account)
	return nil
}

func (r *AccountRepo) GetByID(ctx context.Context, id uint) (*entity.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	acc, ok := r.s.accounts[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return copyAccount(acc), nil
}
