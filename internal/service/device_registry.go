package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/yourusername/fleet-api/internal/domain/entity"
	"github.com/yourusername/fleet-api/internal/domain/repository"
	apperrors "github.com/yourusername/fleet-api/internal/pkg/errors"
)

const maxDeviceIDLength = 255
const maxDeviceNameLength = 100

// DeviceRegistry remembers devices that completed a second factor.
type DeviceRegistry struct {
	devices repository.TrustedDeviceRepository
	now     func() time.Time
}

func NewDeviceRegistry(devices repository.TrustedDeviceRepository) (*DeviceRegistry, error) {
	if devices == nil {
		return nil, fmt.Errorf("trusted device repository is required")
	}
	return &DeviceRegistry{devices: devices, now: time.Now}, nil
}

// IsTrusted bumps last_used_at when the device is trusted.
func (r *DeviceRegistry) IsTrusted(ctx context.Context, accountID uint, deviceID string) (bool, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return false, nil
	}
	return r.devices.TouchActive(ctx, accountID, deviceID, r.now())
}

// Trust upserts the device and clears the account's forced re-verification.
// An empty name or type falls back to the mobile defaults.
func (r *DeviceRegistry) Trust(ctx context.Context, accountID uint, deviceID, name, deviceType string) (*entity.TrustedDevice, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, fmt.Errorf("%w: device_id is required", apperrors.ErrValidation)
	}
	if utf8.RuneCountInString(deviceID) > maxDeviceIDLength {
		return nil, fmt.Errorf("%w: device_id longer than %d characters", apperrors.ErrValidation, maxDeviceIDLength)
	}

	kind, err := entity.ParseDeviceType(deviceType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = entity.DefaultDeviceName
	}
	// Column limits count characters, so cut on rune boundaries
	if utf8.RuneCountInString(name) > maxDeviceNameLength {
		name = string([]rune(name)[:maxDeviceNameLength])
	}

	device := &entity.TrustedDevice{
		AccountID:  accountID,
		DeviceID:   deviceID,
		DeviceName: name,
		DeviceType: kind,
		Active:     true,
		LastUsedAt: r.now(),
	}
	if err := r.devices.Trust(ctx, device); err != nil {
		return nil, err
	}
	return device, nil
}

// Revoke deactivates one device; revoking an already inactive device succeeds.
func (r *DeviceRegistry) Revoke(ctx context.Context, accountID uint, deviceID string) error {
	return r.devices.Deactivate(ctx, accountID, strings.TrimSpace(deviceID))
}

// RevokeAll deactivates every device and forces the next login anywhere to re-verify.
func (r *DeviceRegistry) RevokeAll(ctx context.Context, accountID uint) (int64, error) {
	return r.devices.DeactivateAll(ctx, accountID)
}

func (r *DeviceRegistry) List(ctx context.Context, accountID uint) ([]entity.TrustedDevice, error) {
	return r.devices.ListActive(ctx, accountID)
}
