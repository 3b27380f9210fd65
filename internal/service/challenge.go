package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/yourusername/fleet-api/internal/domain/repository"
)

// Challenge reasons.
const (
	ReasonTwoFactorDisabled = "2FA disabled"
	ReasonForced            = "forced re-verification"
	ReasonUnknownDevice     = "unknown device"
	ReasonTrustedDevice     = "trusted device"
	ReasonUntrustedDevice   = "untrusted device"
	ReasonEvaluationError   = "evaluation error"
)

// Challenge says whether a login must complete a second factor.
type Challenge struct {
	Required bool   `json:"required"`
	Reason   string `json:"reason"`
}

// DecisionEngine decides whether a login needs a second factor. It fails closed.
type DecisionEngine struct {
	accounts repository.AccountRepository
	devices  *DeviceRegistry
}

func NewDecisionEngine(accounts repository.AccountRepository, devices *DeviceRegistry) *DecisionEngine {
	return &DecisionEngine{accounts: accounts, devices: devices}
}

// ShouldChallenge evaluates in order: 2FA off, forced, no device id, registry lookup.
// Any error yields Required=true.
func (e *DecisionEngine) ShouldChallenge(ctx context.Context, accountID uint, deviceID string) Challenge {
	acc, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		slog.Error("[DecisionEngine.ShouldChallenge] account lookup failed, requiring 2FA",
			"account_id", accountID, "error", err)
		return Challenge{Required: true, Reason: ReasonEvaluationError}
	}

	if !acc.TwoFactorEnabled {
		return Challenge{Required: false, Reason: ReasonTwoFactorDisabled}
	}
	if acc.TwoFactorForced {
		return Challenge{Required: true, Reason: ReasonForced}
	}

	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return Challenge{Required: true, Reason: ReasonUnknownDevice}
	}

	trusted, err := e.devices.IsTrusted(ctx, accountID, deviceID)
	if err != nil {
		slog.Error("[DecisionEngine.ShouldChallenge] device lookup failed, requiring 2FA",
			"account_id", accountID, "device_id", deviceID, "error", err)
		return Challenge{Required: true, Reason: ReasonEvaluationError}
	}
	if trusted {
		return Challenge{Required: false, Reason: ReasonTrustedDevice}
	}
	return Challenge{Required: true, Reason: ReasonUntrustedDevice}
}
