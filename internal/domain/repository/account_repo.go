package repository

import (
	"context"

	"github.com/yourusername/fleet-api/internal/domain/entity"
)

// AccountRepository reads accounts and writes the verification columns on them.
type AccountRepository interface {
	Create(ctx context.Context, account *entity.Account) error
	GetByID(ctx context.Context, id uint) (*entity.Account, error)
}
