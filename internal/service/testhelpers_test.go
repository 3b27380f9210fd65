package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/fleet-api/internal/delivery"
	"github.com/yourusername/fleet-api/internal/domain/entity"
	"github.com/yourusername/fleet-api/internal/repository/memory"
)

// ============================================================================
// Test doubles
// ============================================================================

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingChannel remembers every message and optionally fails or hangs.
type recordingChannel struct {
	kind string

	mu   sync.Mutex
	sent []delivery.Message
	err  error
	hang bool
}

func (c *recordingChannel) Kind() string { return c.kind }

func (c *recordingChannel) Send(ctx context.Context, msg delivery.Message) error {
	c.mu.Lock()
	err, hang := c.err, c.hang
	c.mu.Unlock()

	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.sent = append(c.sent, msg)
	c.mu.Unlock()
	return nil
}

func (c *recordingChannel) lastCode(t *testing.T) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.sent, "no message was delivered")
	return c.sent[len(c.sent)-1].Code
}

func (c *recordingChannel) fail(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

// MockAccountRepository реализует repository.AccountRepository
type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) Create(ctx context.Context, account *entity.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id uint) (*entity.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Account), args.Error(1)
}

// MockTrustedDeviceRepository реализует repository.TrustedDeviceRepository
type MockTrustedDeviceRepository struct {
	mock.Mock
}

func (m *MockTrustedDeviceRepository) TouchActive(ctx context.Context, accountID uint, deviceID string, now time.Time) (bool, error) {
	args := m.Called(ctx, accountID, deviceID, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockTrustedDeviceRepository) Trust(ctx context.Context, device *entity.TrustedDevice) error {
	args := m.Called(ctx, device)
	return args.Error(0)
}

func (m *MockTrustedDeviceRepository) Deactivate(ctx context.Context, accountID uint, deviceID string) error {
	args := m.Called(ctx, accountID, deviceID)
	return args.Error(0)
}

func (m *MockTrustedDeviceRepository) DeactivateAll(ctx context.Context, accountID uint) (int64, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTrustedDeviceRepository) ListActive(ctx context.Context, accountID uint) ([]entity.TrustedDevice, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.TrustedDevice), args.Error(1)
}

// ============================================================================
// Fixture
// ============================================================================

var testPolicy = entity.AttemptPolicy{MaxAttempts: 5, Lockout: 5 * time.Minute}

type testEnv struct {
	store *memory.Store
	clock *testClock
	email *recordingChannel
	sms   *recordingChannel
	codes *CodeManager
	guard *AttemptGuard
	svc   *VerificationService
}

func newTestEnv(t *testing.T, generator CodeGenerator) *testEnv {
	t.Helper()

	env := &testEnv{
		store: memory.NewStore(),
		clock: newTestClock(),
		email: &recordingChannel{kind: delivery.KindEmail},
		sms:   &recordingChannel{kind: delivery.KindSMS},
	}
	registry := delivery.NewRegistry(env.email, env.sms)

	codes, err := NewCodeManager(env.store.Codes(), registry, generator, CodeManagerConfig{
		TTL:             10 * time.Minute,
		DeliveryTimeout: 100 * time.Millisecond,
		Pepper:          "test-pepper",
	})
	require.NoError(t, err)
	codes.now = env.clock.Now

	guard, err := NewAttemptGuard(env.store.Attempts(), testPolicy)
	require.NoError(t, err)
	guard.now = env.clock.Now

	devices, err := NewDeviceRegistry(env.store.Devices())
	require.NoError(t, err)
	devices.now = env.clock.Now

	svc, err := NewVerificationService(env.store.Accounts(), codes, guard, devices)
	require.NoError(t, err)

	env.codes, env.guard, env.svc = codes, guard, svc
	return env
}

func (e *testEnv) createAccount(t *testing.T, acc entity.Account) *entity.Account {
	t.Helper()
	if acc.Email == "" {
		acc.Email = "driver@fleet.test"
	}
	if acc.Phone == "" {
		acc.Phone = "+5511999990000"
	}
	require.NoError(t, e.store.Accounts().Create(context.Background(), &acc))
	return &acc
}

func (e *testEnv) account(t *testing.T, id uint) *entity.Account {
	t.Helper()
	acc, err := e.store.Accounts().GetByID(context.Background(), id)
	require.NoError(t, err)
	return acc
}

func fixedGenerator(code string) CodeGenerator {
	return CodeGeneratorFunc(func() (string, error) { return code, nil })
}

var errGatewayDown = errors.New("gateway down")
