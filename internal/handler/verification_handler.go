package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/fleet-api/internal/domain/entity"
	"github.com/yourusername/fleet-api/internal/handler/dto"
	"github.com/yourusername/fleet-api/internal/middleware"
	apperrors "github.com/yourusername/fleet-api/internal/pkg/errors"
	"github.com/yourusername/fleet-api/internal/service"
)

// VerificationService is the part of service.VerificationService the HTTP layer needs.
type VerificationService interface {
	RequestCode(ctx context.Context, accountID uint, purpose entity.Purpose, channel string) (*service.IssuedCode, error)
	SubmitCode(ctx context.Context, accountID uint, purpose entity.Purpose, code string) error
	EvaluateChallenge(ctx context.Context, accountID uint, deviceID string) service.Challenge
	TrustCurrentDevice(ctx context.Context, accountID uint, deviceID, name, deviceType string) (*entity.TrustedDevice, error)
	ListTrustedDevices(ctx context.Context, accountID uint) ([]entity.TrustedDevice, error)
	RevokeDevice(ctx context.Context, accountID uint, deviceID string) error
	RevokeAll(ctx context.Context, accountID uint) (int64, error)
	Status(ctx context.Context, accountID uint) (*service.VerificationStatus, error)
}

// VerificationHandler serves both the account-facing routes (account from the JWT)
// and the internal host routes (account from the path). Either way the account id is
// read from the gin context under middleware.AccountIDKey.
type VerificationHandler struct {
	svc VerificationService
}

func NewVerificationHandler(svc VerificationService) *VerificationHandler {
	return &VerificationHandler{svc: svc}
}

// RequestCode отправляет одноразовый код по выбранному каналу
func (h *VerificationHandler) RequestCode(c *gin.Context) {
	accountID, ok := accountIDFrom(c)
	if !ok {
		return
	}

	var req dto.RequestCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "error_type": "validation_error", "details": err.Error()})
		return
	}
	purpose, _ := entity.ParsePurpose(req.Purpose)

	issued, err := h.svc.RequestCode(c.Request.Context(), accountID, purpose, req.Channel)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.IssuedCodeResponse{
		Purpose:   string(issued.Purpose),
		Channel:   issued.Channel,
		ExpiresAt: issued.ExpiresAt,
		ExpiresIn: issued.ExpiresIn,
	})
}

// VerifyCode проверяет код; при успешном login доверяет устройству из запроса
func (h *VerificationHandler) VerifyCode(c *gin.Context) {
	accountID, ok := accountIDFrom(c)
	if !ok {
		return
	}

	var req dto.VerifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "error_type": "validation_error", "details": err.Error()})
		return
	}
	purpose, _ := entity.ParsePurpose(req.Purpose)

	if err := h.svc.SubmitCode(c.Request.Context(), accountID, purpose, req.Code); err != nil {
		h.handleError(c, err)
		return
	}

	resp := dto.VerifyCodeResponse{Success: true}
	if purpose == entity.PurposeLogin && req.DeviceID != "" {
		// The code is already consumed; a failed trust only means the next login is challenged.
		if _, err := h.svc.TrustCurrentDevice(c.Request.Context(), accountID, req.DeviceID, req.DeviceName, req.DeviceType); err != nil {
			slog.Error("[VerificationHandler.VerifyCode] failed to trust device after login",
				"account_id", accountID, "device_id", req.DeviceID, "error", err)
		} else {
			resp.DeviceTrusted = true
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (h *VerificationHandler) Status(c *gin.Context) {
	accountID, ok := accountIDFrom(c)
	if !ok {
		return
	}

	status, err := h.svc.Status(c.Request.Context(), accountID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Challenge отвечает хосту, требуется ли второй фактор. Ошибки внутри оценки
// уже превращены в Required=true.
func (h *VerificationHandler) Challenge(c *gin.Context) {
	accountID, ok := accountIDFrom(c)
	if !ok {
		return
	}

	var req dto.ChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "error_type": "validation_error", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, h.svc.EvaluateChallenge(c.Request.Context(), accountID, req.DeviceID))
}

func (h *VerificationHandler) TrustDevice(c *gin.Context) {
	accountID, ok := accountIDFrom(c)
	if !ok {
		return
	}

	var req dto.TrustDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "error_type": "validation_error", "details": err.Error()})
		return
	}

	device, err := h.svc.TrustCurrentDevice(c.Request.Context(), accountID, req.DeviceID, req.DeviceName, req.DeviceType)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewDeviceResponse(*device))
}

func (h *VerificationHandler) ListDevices(c *gin.Context) {
	accountID, ok := accountIDFrom(c)
	if !ok {
		return
	}

	devices, err := h.svc.ListTrustedDevices(c.Request.Context(), accountID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewDevicesResponse(devices))
}

func (h *VerificationHandler) RevokeDevice(c *gin.Context) {
	accountID, ok := accountIDFrom(c)
	if !ok {
		return
	}

	deviceID := c.Param("device_id")
	if err := h.svc.RevokeDevice(c.Request.Context(), accountID, deviceID); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Device revoked", "device_id": deviceID})
}

// RevokeAllDevices отзывает все устройства; следующий вход потребует второй фактор
func (h *VerificationHandler) RevokeAllDevices(c *gin.Context) {
	accountID, ok := accountIDFrom(c)
	if !ok {
		return
	}

	n, err := h.svc.RevokeAll(c.Request.Context(), accountID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "All devices revoked", "revoked": n})
}

func accountIDFrom(c *gin.Context) (uint, bool) {
	raw, exists := c.Get(middleware.AccountIDKey)
	id, ok := raw.(uint)
	if !exists || !ok || id == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "error_type": "token_missing"})
		return 0, false
	}
	return id, true
}

// handleError maps service errors to a status and a stable error_type.
func (h *VerificationHandler) handleError(c *gin.Context, err error) {
	var blocked *service.BlockedError

	switch {
	case errors.As(err, &blocked):
		seconds := blocked.RetryAfterSeconds()
		c.Header("Retry-After", strconv.Itoa(seconds))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":         "Too many verification attempts",
			"error_type":    "blocked",
			"retry_after":   seconds,
			"blocked_until": blocked.Until,
		})
	case errors.Is(err, service.ErrInvalidCode):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid verification code", "error_type": "invalid_code"})
	case errors.Is(err, service.ErrCodeExpired):
		c.JSON(http.StatusGone, gin.H{"error": "Verification code expired", "error_type": "code_expired"})
	case errors.Is(err, service.ErrCodeAlreadyUsed):
		c.JSON(http.StatusConflict, gin.H{"error": "Verification code already used", "error_type": "code_already_used"})
	case errors.Is(err, service.ErrAlreadyVerified):
		c.JSON(http.StatusConflict, gin.H{"error": "Already verified", "error_type": "already_verified"})
	case errors.Is(err, service.ErrTwoFactorNotEnabled):
		c.JSON(http.StatusConflict, gin.H{"error": "Two-factor authentication is not enabled", "error_type": "two_factor_not_enabled"})
	case errors.Is(err, service.ErrUnsupportedChannel):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Delivery channel is not available", "error_type": "unsupported_channel"})
	case errors.Is(err, service.ErrDeliveryAddressMissing):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "No address on file for this channel", "error_type": "delivery_address_missing"})
	case errors.Is(err, service.ErrDeliveryFailed):
		slog.Error("[VerificationHandler] delivery failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to deliver verification code", "error_type": "delivery_failed"})
	case errors.Is(err, apperrors.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation error", "error_type": "validation_error", "details": err.Error()})
	case errors.Is(err, apperrors.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Resource not found", "error_type": "not_found"})
	case errors.Is(err, apperrors.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Data conflict", "error_type": "conflict"})
	default:
		slog.Error("[VerificationHandler] internal error", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "error_type": "internal_server_error"})
	}
}
