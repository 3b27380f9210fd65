package postgres

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yourusername/fleet-api/internal/domain/entity"
	"github.com/yourusername/fleet-api/internal/domain/repository"
	apperrors "github.com/yourusername/fleet-api/internal/pkg/errors"
	"github.com/yourusername/fleet-api/pkg/database"
)

var testPolicy = entity.AttemptPolicy{MaxAttempts: 5, Lockout: 5 * time.Minute}

var (
	_ repository.AccountRepository          = (*AccountRepo)(nil)
	_ repository.VerificationCodeRepository = (*VerificationCodeRepo)(nil)
	_ repository.TrustedDeviceRepository    = (*TrustedDeviceRepo)(nil)
	_ repository.AttemptStore               = (*AttemptStore)(nil)
)

// setupTestDB connects to TEST_DATABASE_DSN, applies migrations and truncates all tables.
// Tests are skipped when the variable is not set.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set, skipping postgres integration tests")
	}

	db, err := database.NewPostgresDB(dsn, logger.Silent)
	require.NoError(t, err, "Failed to connect to test database")

	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok, "Failed to get current file path")
	migrations := filepath.Join(filepath.Dir(filename), "..", "..", "..", "migrations")
	require.NoError(t, database.MigrateDB(db, migrations), "Failed to run migrations")

	require.NoError(t, db.Exec("TRUNCATE trusted_devices, verification_codes, accounts RESTART IDENTITY CASCADE").Error)

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func createTestAccount(t *testing.T, db *gorm.DB, email string) *entity.Account {
	t.Helper()
	acc := &entity.Account{Name: "Test Driver", Email: email, Phone: "+5511999990000"}
	require.NoError(t, NewAccountRepo(db).Create(context.Background(), acc))
	return acc
}

func newCode(accountID uint, purpose entity.Purpose, expiresAt time.Time) *entity.VerificationCode {
	return &entity.VerificationCode{
		AccountID: accountID,
		Purpose:   purpose,
		Channel:   "email",
		CodeHash:  "hash",
		CodeSalt:  "salt",
		ExpiresAt: expiresAt,
	}
}

func TestAccountRepo(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewAccountRepo(db)
	acc := createTestAccount(t, db, "driver@fleet.test")

	t.Run("duplicate email", func(t *testing.T) {
		err := repo.Create(ctx, &entity.Account{Email: "DRIVER@fleet.test"})
		require.ErrorIs(t, err, apperrors.ErrConflict)
	})

	t.Run("get by id", func(t *testing.T) {
		got, err := repo.GetByID(ctx, acc.ID)
		require.NoError(t, err)
		assert.Equal(t, "driver@fleet.test", got.Email)
		assert.False(t, got.TwoFactorEnabled)
	})

	t.Run("missing account", func(t *testing.T) {
		_, err := repo.GetByID(ctx, 9999)
		require.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestVerificationCodeRepo_ReplaceKeepsSingleUnusedCode(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewVerificationCodeRepo(db)
	acc := createTestAccount(t, db, "driver@fleet.test")
	expires := time.Now().Add(10 * time.Minute)

	first := newCode(acc.ID, entity.PurposeLogin, expires)
	require.NoError(t, repo.Replace(ctx, first))
	second := newCode(acc.ID, entity.PurposeLogin, expires)
	require.NoError(t, repo.Replace(ctx, second))
	other := newCode(acc.ID, entity.PurposeSetup, expires)
	require.NoError(t, repo.Replace(ctx, other))

	var count int64
	require.NoError(t, db.Model(&entity.VerificationCode{}).
		Where("account_id = ? AND purpose = ? AND used = false", acc.ID, entity.PurposeLogin).
		Count(&count).Error)
	assert.EqualValues(t, 1, count)

	latest, err := repo.GetLatestUnused(ctx, acc.ID, entity.PurposeLogin)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	setup, err := repo.GetLatestUnused(ctx, acc.ID, entity.PurposeSetup)
	require.NoError(t, err, "other purposes are untouched")
	assert.Equal(t, other.ID, setup.ID)

	require.ErrorIs(t, repo.Replace(ctx, newCode(9999, entity.PurposeLogin, expires)), apperrors.ErrNotFound)
}

func TestVerificationCodeRepo_ConcurrentReplace(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewVerificationCodeRepo(db)
	acc := createTestAccount(t, db, "driver@fleet.test")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = repo.Replace(ctx, newCode(acc.ID, entity.PurposeLogin, time.Now().Add(time.Minute)))
		}()
	}
	wg.Wait()

	var count int64
	require.NoError(t, db.Model(&entity.VerificationCode{}).
		Where("account_id = ? AND purpose = ? AND used = false", acc.ID, entity.PurposeLogin).
		Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestVerificationCodeRepo_Consume(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewVerificationCodeRepo(db)
	acc := createTestAccount(t, db, "driver@fleet.test")
	now := time.Now()

	code := newCode(acc.ID, entity.PurposeSetup, now.Add(time.Minute))
	require.NoError(t, repo.Replace(ctx, code))

	require.NoError(t, repo.Consume(ctx, code, now, map[string]interface{}{"two_factor_enabled": true}))
	assert.True(t, code.Used)

	got, err := NewAccountRepo(db).GetByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.True(t, got.TwoFactorEnabled, "effects are applied with the consume")

	err = repo.Consume(ctx, code, now, nil)
	require.ErrorIs(t, err, repository.ErrCodeNotConsumable, "a code is consumed once")

	_, err = repo.GetLatestUnused(ctx, acc.ID, entity.PurposeSetup)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestVerificationCodeRepo_ConcurrentConsumeSucceedsOnce(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewVerificationCodeRepo(db)
	acc := createTestAccount(t, db, "driver@fleet.test")
	now := time.Now()

	code := newCode(acc.ID, entity.PurposeLogin, now.Add(time.Minute))
	require.NoError(t, repo.Replace(ctx, code))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := *code
			if err := repo.Consume(ctx, &c, now, nil); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
}

func TestVerificationCodeRepo_ConsumeRejectsExpired(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewVerificationCodeRepo(db)
	acc := createTestAccount(t, db, "driver@fleet.test")
	now := time.Now()

	code := newCode(acc.ID, entity.PurposeLogin, now.Add(-time.Second))
	require.NoError(t, repo.Replace(ctx, code))

	require.ErrorIs(t, repo.Consume(ctx, code, now, nil), repository.ErrCodeNotConsumable)
}

func TestVerificationCodeRepo_DeleteExpired(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewVerificationCodeRepo(db)
	acc := createTestAccount(t, db, "driver@fleet.test")
	now := time.Now()

	require.NoError(t, repo.Replace(ctx, newCode(acc.ID, entity.PurposeLogin, now.Add(-time.Hour))))
	alive := newCode(acc.ID, entity.PurposeSetup, now.Add(time.Hour))
	require.NoError(t, repo.Replace(ctx, alive))

	n, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := repo.GetLatestUnused(ctx, acc.ID, entity.PurposeSetup)
	require.NoError(t, err)
	assert.Equal(t, alive.ID, got.ID)

	require.NoError(t, repo.Delete(ctx, alive.ID))
	require.NoError(t, repo.Delete(ctx, alive.ID), "deleting twice is not an error")
}

func TestTrustedDeviceRepo_Lifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewTrustedDeviceRepo(db)
	accounts := NewAccountRepo(db)
	acc := createTestAccount(t, db, "driver@fleet.test")
	require.NoError(t, db.Model(&entity.Account{}).Where("id = ?", acc.ID).Update("two_factor_forced", true).Error)
	now := time.Now().Truncate(time.Microsecond)

	trusted, err := repo.TouchActive(ctx, acc.ID, "device-1", now)
	require.NoError(t, err)
	assert.False(t, trusted)

	require.NoError(t, repo.Trust(ctx, &entity.TrustedDevice{
		AccountID: acc.ID, DeviceID: "device-1", DeviceName: "Truck tablet", DeviceType: entity.DeviceTablet, LastUsedAt: now,
	}))
	got, err := accounts.GetByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.False(t, got.TwoFactorForced, "trust clears forced re-verification")
	require.NotNil(t, got.LastTwoFactorAt)

	trusted, err = repo.TouchActive(ctx, acc.ID, "device-1", now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, trusted)

	require.NoError(t, repo.Deactivate(ctx, acc.ID, "device-1"))
	trusted, err = repo.TouchActive(ctx, acc.ID, "device-1", now)
	require.NoError(t, err)
	assert.False(t, trusted)

	// Re-trusting reactivates the same row
	require.NoError(t, repo.Trust(ctx, &entity.TrustedDevice{
		AccountID: acc.ID, DeviceID: "device-1", DeviceName: "Renamed", DeviceType: entity.DeviceMobile, LastUsedAt: now,
	}))
	var rows int64
	require.NoError(t, db.Model(&entity.TrustedDevice{}).Where("account_id = ?", acc.ID).Count(&rows).Error)
	assert.EqualValues(t, 1, rows)

	devices, err := repo.ListActive(ctx, acc.ID)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "Renamed", devices[0].DeviceName)

	require.ErrorIs(t, repo.Deactivate(ctx, acc.ID, "unknown"), apperrors.ErrNotFound)
}

func TestTrustedDeviceRepo_DeactivateAllForces(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewTrustedDeviceRepo(db)
	acc := createTestAccount(t, db, "driver@fleet.test")
	now := time.Now()

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Trust(ctx, &entity.TrustedDevice{
			AccountID: acc.ID, DeviceID: id, DeviceType: entity.DeviceMobile, LastUsedAt: now.Add(time.Duration(i) * time.Minute),
		}))
	}

	devices, err := repo.ListActive(ctx, acc.ID)
	require.NoError(t, err)
	require.Len(t, devices, 3)
	assert.Equal(t, "c", devices[0].DeviceID, "most recently used first")

	n, err := repo.DeactivateAll(ctx, acc.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	devices, err = repo.ListActive(ctx, acc.ID)
	require.NoError(t, err)
	assert.Empty(t, devices)

	got, err := NewAccountRepo(db).GetByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.True(t, got.TwoFactorForced)
}

func TestAttemptStore_ConcurrentAcquireTripsOnce(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	store := NewAttemptStore(db)
	acc := createTestAccount(t, db, "driver@fleet.test")
	now := time.Now()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[entity.AttemptOutcome]int{}
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, outcome, err := store.Acquire(ctx, acc.ID, now, testPolicy)
			if err != nil {
				return
			}
			mu.Lock()
			outcomes[outcome]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, outcomes[entity.AttemptAllowed])
	assert.Equal(t, 1, outcomes[entity.AttemptTripped])
	assert.Equal(t, 4, outcomes[entity.AttemptRejected])

	window, err := store.Peek(ctx, acc.ID)
	require.NoError(t, err)
	assert.True(t, window.Blocked(now))

	require.NoError(t, store.Reset(ctx, acc.ID))
	window, err = store.Peek(ctx, acc.ID)
	require.NoError(t, err)
	assert.Zero(t, window.Count)
	assert.Nil(t, window.BlockedUntil)

	_, _, err = store.Acquire(ctx, 9999, now, testPolicy)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}
