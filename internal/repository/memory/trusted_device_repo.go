package memory

import (
	"context"
	"time"

	"github.com/yourusername/fleet-api/internal/domain/entity"
	apperrors "github.com/yourusername/fleet-api/internal/pkg/errors"
)

// TrustedDeviceRepo реализует repository.TrustedDeviceRepository в памяти
type TrustedDeviceRepo struct {
	s *Store
}

func (r *TrustedDeviceRepo) TouchActive(ctx context.Context, accountID uint, deviceID string, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	device, ok := r.s.devices[deviceKey{accountID, deviceID}]
	if !ok || !device.Active {
		return false, nil
	}
	device.LastUsedAt = now
	device.UpdatedAt = now
	return true, nil
}

func (r *TrustedDeviceRepo) Trust(ctx context.Context, device *entity.TrustedDevice) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	acc, ok := r.s.accounts[device.AccountID]
	if !ok {
		return apperrors.ErrNotFound
	}

	key := deviceKey{device.AccountID, device.DeviceID}
	now := time.Now()
	if existing, ok := r.s.devices[key]; ok {
		existing.DeviceName = device.DeviceName
		existing.DeviceType = device.DeviceType
		existing.LastUsedAt = device.LastUsedAt
		existing.Active = true
		existing.UpdatedAt = now
		*device = *existing
	} else {
		r.s.nextDeviceID++
		device.ID = r.s.nextDeviceID
		device.Active = true
		device.CreatedAt = now
		device.UpdatedAt = now
		cp := *device
		r.s.devices[key] = &cp
	}

	at := device.LastUsedAt
	acc.TwoFactorForced = false
	acc.LastTwoFactorAt = &at
	acc.UpdatedAt = now
	return nil
}

func (r *TrustedDeviceRepo) Deactivate(ctx context.Context, accountID uint, deviceID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	device, ok := r.s.devices[deviceKey{accountID, deviceID}]
	if !ok {
		return apperrors.ErrNotFound
	}
	device.Active = false
	device.UpdatedAt = time.Now()
	return nil
}

func (r *TrustedDeviceRepo) DeactivateAll(ctx context.Context, accountID uint) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	acc, ok := r.s.accounts[accountID]
	if !ok {
		return 0, apperrors.ErrNotFound
	}

	now := time.Now()
	var n int64
	for key, device := range r.s.devices {
		if key.accountID == accountID && device.Active {
			device.Active = false
			device.UpdatedAt = now
			n++
		}
	}
	acc.TwoFactorForced = true
	acc.UpdatedAt = now
	return n, nil
}

func (r *TrustedDeviceRepo) ListActive(ctx context.Context, accountID uint) ([]entity.TrustedDevice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	devices := make([]entity.TrustedDevice, 0)
	for key, device := range r.s.devices {
		if key.accountID == accountID && device.Active {
			devices = append(devices, *device)
		}
	}
	sortDevices(devices)
	return devices, nil
}
