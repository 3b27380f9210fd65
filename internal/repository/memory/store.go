// Package memory keeps accounts, codes and devices in process memory. It backs the service
// tests.
package memory

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yourusername/fleet-api/internal/domain/entity"
)

type deviceKey struct {
	accountID uint
	deviceID  string
}

// Store holds every table behind one mutex, which gives the same atomicity the
// Postgres transactions provide.
type Store struct {
	mu sync.Mutex

	accounts map[uint]*entity.Account
	codes    map[uint]*entity.VerificationCode
	devices  map[deviceKey]*entity.TrustedDevice

	nextAccountID uint
	nextCodeID    uint
	nextDeviceID  uint
}

func NewStore() *Store {
	return &Store{
		accounts: make(map[uint]*entity.Account),
		codes:    make(map[uint]*entity.VerificationCode),
		devices:  make(map[deviceKey]*entity.TrustedDevice),
	}
}

func (s *Store) Accounts() *AccountRepo {
	return &AccountRepo{s: s}
}

func (s *Store) Codes() *VerificationCodeRepo {
	return &VerificationCodeRepo{s: s}
}

func (s *Store) Devices() *TrustedDeviceRepo {
	return &TrustedDeviceRepo{s: s}
}

func (s *Store) Attempts() *AttemptStore {
	return &AttemptStore{s: s}
}

// applyAccountUpdates mirrors gorm map updates for the columns this module writes.
func applyAccountUpdates(acc *entity.Account, updates map[string]interface{}) error {
	for column, value := range updates {
		switch column {
		case "name":
			acc.Name = value.(string)
		case "email":
			acc.Email = value.(string)
		case "phone":
			acc.Phone = value.(string)
		case "two_factor_enabled":
			acc.TwoFactorEnabled = value.(bool)
		case "two_factor_forced":
			acc.TwoFactorForced = value.(bool)
		case "registration_verified":
			acc.RegistrationVerified = value.(bool)
		case "attempt_count":
			acc.AttemptCount = value.(int)
		case "blocked_until":
			acc.BlockedUntil = timePtr(value)
		case "last_two_factor_at":
			acc.LastTwoFactorAt = timePtr(value)
		case "updated_at":
			acc.UpdatedAt = value.(time.Time)
		default:
			return fmt.Errorf("memory store: unknown account column %q", column)
		}
	}
	return nil
}

func timePtr(value interface{}) *time.Time {
	switch v := value.(type) {
	case time.Time:
		return &v
	case *time.Time:
		if v == nil {
			return nil
		}
		t := *v
		return &t
	}
	return nil
}

func copyAccount(acc *entity.Account) *entity.Account {
	cp := *acc
	cp.BlockedUntil = timePtr(acc.BlockedUntil)
	cp.LastTwoFactorAt = timePtr(acc.LastTwoFactorAt)
	return &cp
}

func copyCode(code *entity.VerificationCode) *entity.VerificationCode {
	cp := *code
	cp.UsedAt = timePtr(code.UsedAt)
	return &cp
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func sortDevices(devices []entity.TrustedDevice) {
	sort.Slice(devices, func(i, j int) bool {
		if devices[i].LastUsedAt.Equal(devices[j].LastUsedAt) {
			return devices[i].ID > devices[j].ID
		}
		return devices[i].LastUsedAt.After(devices[j].LastUsedAt)
	})
}
