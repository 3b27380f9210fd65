package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/yourusername/fleet-api/internal/domain/entity"
	"github.com/yourusername/fleet-api/internal/domain/repository"
)

// VerificationStatus summarizes the verification state of an account.
type VerificationStatus struct {
	RegistrationVerified bool       `json:"registration_verified"`
	TwoFactorEnabled     bool       `json:"two_factor_enabled"`
	TwoFactorForced      bool       `json:"two_factor_forced"`
	Blocked              bool       `json:"blocked"`
	BlockedUntil         *time.Time `json:"blocked_until,omitempty"`
	RetryAfterSeconds    int        `json:"retry_after_seconds"`
	AttemptsRemaining    int        `json:"attempts_remaining"`
	Channels             []string   `json:"channels"`
}

// VerificationService is the entry point used by the login and registration handlers.
type VerificationService struct {
	accounts repository.AccountRepository
	codes    *CodeManager
	guard    *AttemptGuard
	devices  *DeviceRegistry
	engine   *DecisionEngine
}

func NewVerificationService(
	accounts repository.AccountRepository,
	codes *CodeManager,
	guard *AttemptGuard,
	devices *DeviceRegistry,
) (*VerificationService, error) {
	if accounts == nil {
		return nil, fmt.Errorf("account repository is required")
	}
	if codes == nil || guard == nil || devices == nil {
		return nil, fmt.Errorf("code manager, attempt guard and device registry are required")
	}
	return &VerificationService{
		accounts: accounts,
		codes:    codes,
		guard:    guard,
		devices:  devices,
		engine:   NewDecisionEngine(accounts, devices),
	}, nil
}

// RequestCode issues a code for purpose over channel. Only registration codes pass
// through the attempt guard, and only after the input checks succeed.
func (s *VerificationService) RequestCode(ctx context.Context, accountID uint, purpose entity.Purpose, channel string) (*IssuedCode, error) {
	acc, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if err := s.codes.Prepare(acc, purpose, channel); err != nil {
		return nil, err
	}
	if purpose == entity.PurposeRegistration {
		if err := s.guard.CanIssue(ctx, acc); err != nil {
			return nil, err
		}
	}
	return s.codes.Issue(ctx, acc, purpose, channel)
}

// SubmitCode validates and consumes a code. A locked registration cannot be completed
// until the lockout ends.
func (s *VerificationService) SubmitCode(ctx context.Context, accountID uint, purpose entity.Purpose, code string) error {
	if !entity.IsWellFormedCode(code) {
		return ErrInvalidCodeFormat
	}

	acc, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}

	if purpose == entity.PurposeRegistration && !acc.RegistrationVerified {
		if err := s.guard.CheckBlocked(ctx, accountID); err != nil {
			return err
		}
	}

	if err := s.codes.Verify(ctx, acc, purpose, code); err != nil {
		return err
	}

	if purpose == entity.PurposeRegistration {
		// The account row is already reset in the consume; this covers external stores.
		if err := s.guard.Reset(ctx, accountID); err != nil {
			slog.Warn("[VerificationService.SubmitCode] failed to reset attempt counter",
				"account_id", accountID, "error", err)
		}
	}
	return nil
}

func (s *VerificationService) EvaluateChallenge(ctx context.Context, accountID uint, deviceID string) Challenge {
	return s.engine.ShouldChallenge(ctx, accountID, deviceID)
}

// TrustCurrentDevice is called by the host after a successful login SubmitCode.
func (s *VerificationService) TrustCurrentDevice(ctx context.Context, accountID uint, deviceID, name, deviceType string) (*entity.TrustedDevice, error) {
	device, err := s.devices.Trust(ctx, accountID, deviceID, name, deviceType)
	if err != nil {
		return nil, err
	}
	slog.Info("[VerificationService.TrustCurrentDevice] device trusted",
		"account_id", accountID, "device_id", device.DeviceID, "device_type", string(device.DeviceType))
	return device, nil
}

func (s *VerificationService) ListTrustedDevices(ctx context.Context, accountID uint) ([]entity.TrustedDevice, error) {
	return s.devices.List(ctx, accountID)
}

func (s *VerificationService) RevokeDevice(ctx context.Context, accountID uint, deviceID string) error {
	if err := s.devices.Revoke(ctx, accountID, deviceID); err != nil {
		return err
	}
	slog.Info("[VerificationService.RevokeDevice] device revoked", "account_id", accountID, "device_id", deviceID)
	return nil
}

// RevokeAll returns the number of devices that were still active.
func (s *VerificationService) RevokeAll(ctx context.Context, accountID uint) (int64, error) {
	n, err := s.devices.RevokeAll(ctx, accountID)
	if err != nil {
		return 0, err
	}
	slog.Info("[VerificationService.RevokeAll] all devices revoked, re-verification forced",
		"account_id", accountID, "devices", n)
	return n, nil
}

func (s *VerificationService) Status(ctx context.Context, accountID uint) (*VerificationStatus, error) {
	acc, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	status := &VerificationStatus{
		RegistrationVerified: acc.RegistrationVerified,
		TwoFactorEnabled:     acc.TwoFactorEnabled,
		TwoFactorForced:      acc.TwoFactorForced,
		Channels:             s.codes.Channels(),
	}
	if acc.RegistrationVerified {
		return status, nil
	}

	window, err := s.guard.Window(ctx, accountID)
	if err != nil {
		return nil, err
	}
	now := s.guard.now()
	status.AttemptsRemaining = window.Remaining(now, s.guard.Policy())
	if window.Blocked(now) {
		blocked := newBlockedError(window, now)
		status.Blocked = true
		status.BlockedUntil = window.BlockedUntil
		status.RetryAfterSeconds = blocked.RetryAfterSeconds()
	}
	return status, nil
}
