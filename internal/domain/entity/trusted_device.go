package entity

import (
	"fmt"
	"strings"
	"time"
)

// DeviceType classifies a trusted device.
type DeviceType string

const (
	DeviceMobile DeviceType = "mobile"
	DeviceWeb    DeviceType = "web"
	DeviceTablet DeviceType = "tablet"
)

// DefaultDeviceName is used when a client does not name its device.
const DefaultDeviceName = "Mobile device"

// ParseDeviceType validates a device type, defaulting to mobile when empty.
func ParseDeviceType(raw string) (DeviceType, error) {
	t := DeviceType(strings.ToLower(strings.TrimSpace(raw)))
	switch t {
	case "":
		return DeviceMobile, nil
	case DeviceMobile, DeviceWeb, DeviceTablet:
		return t, nil
	}
	return "", fmt.Errorf("unknown device type %q", raw)
}

// TrustedDevice is a device that completed a second-factor challenge for an account.
// Rows are deactivated on revoke, never deleted.
type TrustedDevice struct {
	ID         uint       `gorm:"primaryKey" json:"-"`
	AccountID  uint       `gorm:"not null;uniqueIndex:idx_trusted_devices_account_device,priority:1" json:"-"`
	DeviceID   string     `gorm:"size:255;not null;uniqueIndex:idx_trusted_devices_account_device,priority:2" json:"device_id"`
	DeviceName string     `gorm:"size:100;not null;default:''" json:"device_name"`
	DeviceType DeviceType `gorm:"size:10;not null;default:'mobile'" json:"device_type"`
	Active     bool       `gorm:"not null;default:true" json:"active"`
	LastUsedAt time.Time  `gorm:"not null" json:"last_used_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"-"`
}

func (TrustedDevice) TableName() string {
	return "trusted_devices"
}
