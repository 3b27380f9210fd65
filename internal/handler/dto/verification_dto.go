package dto

import (
	"time"

	"github.com/yourusername/fleet-api/internal/domain/entity"
)

// RequestCodeRequest запрос на отправку кода
type RequestCodeRequest struct {
	Purpose string `json:"purpose" binding:"required,verification_purpose"`
	Channel string `json:"channel" binding:"required,oneof=email sms"`
}

// VerifyCodeRequest проверка кода. Поля устройства учитываются только для purpose=login:
// после успешной проверки устройство становится доверенным.
type VerifyCodeRequest struct {
	Purpose    string `json:"purpose" binding:"required,verification_purpose"`
	Code       string `json:"code" binding:"required,verification_code"`
	DeviceID   string `json:"device_id" binding:"omitempty,max=255"`
	DeviceName string `json:"device_name" binding:"omitempty,max=255"`
	DeviceType string `json:"device_type" binding:"omitempty,device_type"`
}

// ChallengeRequest запрос хоста: нужен ли второй фактор для входа
type ChallengeRequest struct {
	DeviceID string `json:"device_id" binding:"omitempty,max=255"`
}

// TrustDeviceRequest запрос хоста на добавление доверенного устройства
type TrustDeviceRequest struct {
	DeviceID   string `json:"device_id" binding:"required,max=255"`
	DeviceName string `json:"device_name" binding:"omitempty,max=255"`
	DeviceType string `json:"device_type" binding:"omitempty,device_type"`
}

// IssuedCodeResponse never carries the code itself.
type IssuedCodeResponse struct {
	Purpose   string    `json:"purpose"`
	Channel   string    `json:"channel"`
	ExpiresAt time.Time `json:"expires_at"`
	ExpiresIn int       `json:"expires_in"`
}

type VerifyCodeResponse struct {
	Success       bool `json:"success"`
	DeviceTrusted bool `json:"device_trusted"`
}

type DeviceResponse struct {
	DeviceID   string    `json:"device_id"`
	DeviceName string    `json:"device_name"`
	DeviceType string    `json:"device_type"`
	LastUsedAt time.Time `json:"last_used_at"`
	CreatedAt  time.Time `json:"created_at"`
}

type DevicesResponse struct {
	Devices []DeviceResponse `json:"devices"`
	Count   int              `json:"count"`
}

// NewDeviceResponse преобразует сущность в ответ API
func NewDeviceResponse(d entity.TrustedDevice) DeviceResponse {
	return DeviceResponse{
		DeviceID:   d.DeviceID,
		DeviceName: d.DeviceName,
		DeviceType: string(d.DeviceType),
		LastUsedAt: d.LastUsedAt,
		CreatedAt:  d.CreatedAt,
	}
}

func NewDevicesResponse(devices []entity.TrustedDevice) DevicesResponse {
	out := make([]DeviceResponse, 0, len(devices))
	for _, d := range devices {
		out = append(out, NewDeviceResponse(d))
	}
	return DevicesResponse{Devices: out, Count: len(out)}
}
