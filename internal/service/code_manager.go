package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/fleet-api/internal/delivery"
	"github.com/yourusername/fleet-api/internal/domain/entity"
	"github.com/yourusername/fleet-api/internal/domain/repository"
	apperrors "github.com/yourusername/fleet-api/internal/pkg/errors"
)

// CodeGenerator produces the plaintext one-time code.
type CodeGenerator interface {
	Generate() (string, error)
}

// CodeGeneratorFunc adapts a plain function to CodeGenerator.
type CodeGeneratorFunc func() (string, error)

func (f CodeGeneratorFunc) Generate() (string, error) { return f() }

// RandomCodeGenerator draws codes uniformly from 000000-999999 using crypto/rand.
type RandomCodeGenerator struct{}

func (RandomCodeGenerator) Generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// purposeRule is everything that differs between purposes; the lifecycle itself is shared.
type purposeRule struct {
	// precondition rejects issue/verify for an account in the wrong state
	precondition func(acc *entity.Account) error
	// effects are account columns written in the same transaction as the consume
	effects func() map[string]interface{}
}

var purposeRules = map[entity.Purpose]purposeRule{
	entity.PurposeLogin: {
		precondition: requireTwoFactorEnabled,
		effects:      func() map[string]interface{} { return nil },
	},
	entity.PurposeSetup: {
		precondition: func(acc *entity.Account) error {
			if acc.TwoFactorEnabled {
				return fmt.Errorf("%w: two-factor already enabled", ErrAlreadyVerified)
			}
			return nil
		},
		effects: func() map[string]interface{} {
			return map[string]interface{}{"two_factor_enabled": true}
		},
	},
	entity.PurposeDisable: {
		precondition: requireTwoFactorEnabled,
		effects: func() map[string]interface{} {
			return map[string]interface{}{"two_factor_enabled": false}
		},
	},
	entity.PurposeRegistration: {
		precondition: func(acc *entity.Account) error {
			if acc.RegistrationVerified {
				return fmt.Errorf("%w: registration already verified", ErrAlreadyVerified)
			}
			return nil
		},
		effects: func() map[string]interface{} {
			return map[string]interface{}{
				"registration_verified": true,
				"attempt_count":         0,
				"blocked_until":         nil,
			}
		},
	},
}

func requireTwoFactorEnabled(acc *entity.Account) error {
	if !acc.TwoFactorEnabled {
		return ErrTwoFactorNotEnabled
	}
	return nil
}

func ruleFor(purpose entity.Purpose) (purposeRule, error) {
	rule, ok := purposeRules[purpose]
	if !ok {
		return purposeRule{}, fmt.Errorf("%w: unknown purpose %q", apperrors.ErrValidation, purpose)
	}
	return rule, nil
}

// IssuedCode is what the caller learns about a sent code. The code itself never leaves
// the manager except through a delivery channel.
type IssuedCode struct {
	Purpose   entity.Purpose `json:"purpose"`
	Channel   string         `json:"channel"`
	ExpiresAt time.Time      `json:"expires_at"`
	ExpiresIn int            `json:"expires_in"` // seconds
}

// CodeManagerConfig задает параметры жизненного цикла кодов
type CodeManagerConfig struct {
	TTL             time.Duration
	DeliveryTimeout time.Duration
	Pepper          string
}

// CodeManager issues, validates and consumes one-time codes for every purpose.
type CodeManager struct {
	codes           repository.VerificationCodeRepository
	channels        *delivery.Registry
	generator       CodeGenerator
	ttl             time.Duration
	deliveryTimeout time.Duration
	pepper          string
	now             func() time.Time
}

func NewCodeManager(
	codes repository.VerificationCodeRepository,
	channels *delivery.Registry,
	generator CodeGenerator,
	cfg CodeManagerConfig,
) (*CodeManager, error) {
	if codes == nil {
		return nil, fmt.Errorf("verification code repository is required")
	}
	if channels == nil {
		return nil, fmt.Errorf("delivery registry is required")
	}
	if generator == nil {
		generator = RandomCodeGenerator{}
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 10 * time.Second
	}

	return &CodeManager{
		codes:           codes,
		channels:        channels,
		generator:       generator,
		ttl:             cfg.TTL,
		deliveryTimeout: cfg.DeliveryTimeout,
		pepper:          cfg.Pepper,
		now:             time.Now,
	}, nil
}

// issueTarget is a request that passed every check Issue can make without storage.
type issueTarget struct {
	channel delivery.Channel
	address string
}

func (m *CodeManager) prepare(acc *entity.Account, purpose entity.Purpose, channel string) (*issueTarget, error) {
	rule, err := ruleFor(purpose)
	if err != nil {
		return nil, err
	}
	if err := rule.precondition(acc); err != nil {
		return nil, err
	}

	ch, err := m.channels.Select(channel)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedChannel, channel)
	}
	address := acc.ContactFor(channel)
	if address == "" {
		return nil, fmt.Errorf("%w: account #%d has no %s address", ErrDeliveryAddressMissing, acc.ID, channel)
	}
	return &issueTarget{channel: ch, address: address}, nil
}

// Prepare runs the purpose precondition and resolves the channel and address.
// Callers that count attempts call it first so rejected input is never counted.
func (m *CodeManager) Prepare(acc *entity.Account, purpose entity.Purpose, channel string) error {
	_, err := m.prepare(acc, purpose, channel)
	return err
}

// Issue replaces any unused code for (account, purpose) with a fresh one and delivers it.
// A failed delivery deletes the new code before returning ErrDeliveryFailed.
func (m *CodeManager) Issue(ctx context.Context, acc *entity.Account, purpose entity.Purpose, channel string) (*IssuedCode, error) {
	target, err := m.prepare(acc, purpose, channel)
	if err != nil {
		return nil, err
	}

	code, err := m.generator.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate verification code: %w", err)
	}
	salt, err := generateSalt()
	if err != nil {
		return nil, fmt.Errorf("failed to generate verification salt: %w", err)
	}

	now := m.now()
	record := &entity.VerificationCode{
		AccountID: acc.ID,
		Purpose:   purpose,
		Channel:   channel,
		CodeHash:  hashCode(code, salt, m.pepper),
		CodeSalt:  salt,
		ExpiresAt: now.Add(m.ttl),
		CreatedAt: now,
	}
	if err := m.codes.Replace(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store verification code: %w", err)
	}

	// The issue outlives a client that disconnects mid-request; only the delivery
	// timeout bounds the send.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.deliveryTimeout)
	defer cancel()

	err = target.channel.Send(sendCtx, delivery.Message{
		To:             target.address,
		RecipientName:  acc.DisplayName(),
		Code:           code,
		Purpose:        purpose,
		ExpiresIn:      m.ttl,
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		slog.Error("[CodeManager.Issue] delivery failed, rolling back code",
			"account_id", acc.ID, "purpose", string(purpose), "channel", channel, "error", err)
		if delErr := m.codes.Delete(context.WithoutCancel(ctx), record.ID); delErr != nil {
			slog.Error("[CodeManager.Issue] rollback of undelivered code failed",
				"account_id", acc.ID, "code_id", record.ID, "error", delErr)
			return nil, fmt.Errorf("%w: %v (rollback failed: %v)", ErrDeliveryFailed, err, delErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	slog.Info("[CodeManager.Issue] code sent",
		"account_id", acc.ID, "purpose", string(purpose), "channel", channel, "expires_at", record.ExpiresAt)

	return &IssuedCode{
		Purpose:   purpose,
		Channel:   channel,
		ExpiresAt: record.ExpiresAt,
		ExpiresIn: int(m.ttl.Seconds()),
	}, nil
}

// Verify checks code against the newest unused code for the purpose and consumes it,
// applying the purpose effects to the account in the same unit.
func (m *CodeManager) Verify(ctx context.Context, acc *entity.Account, purpose entity.Purpose, code string) error {
	if !entity.IsWellFormedCode(code) {
		return ErrInvalidCodeFormat
	}
	rule, err := ruleFor(purpose)
	if err != nil {
		return err
	}
	if err := rule.precondition(acc); err != nil {
		return err
	}

	record, err := m.codes.GetLatestUnused(ctx, acc.ID, purpose)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return ErrInvalidCode
		}
		return fmt.Errorf("failed to load verification code: %w", err)
	}

	matches := subtle.ConstantTimeCompare([]byte(hashCode(code, record.CodeSalt, m.pepper)), []byte(record.CodeHash)) == 1
	now := m.now()

	if record.IsExpired(now) {
		if !matches {
			return ErrInvalidCode
		}
		// Lazy expiry: the caller has to request a new code
		if err := m.codes.Delete(ctx, record.ID); err != nil {
			slog.Warn("[CodeManager.Verify] failed to delete expired code", "code_id", record.ID, "error", err)
		}
		return ErrCodeExpired
	}
	if !matches {
		return ErrInvalidCode
	}

	if err := m.codes.Consume(ctx, record, now, rule.effects()); err != nil {
		if errors.Is(err, repository.ErrCodeNotConsumable) {
			return ErrCodeAlreadyUsed
		}
		return fmt.Errorf("failed to consume verification code: %w", err)
	}

	slog.Info("[CodeManager.Verify] code accepted", "account_id", acc.ID, "purpose", string(purpose))
	return nil
}

// Channels lists the delivery kinds this manager can send through.
func (m *CodeManager) Channels() []string {
	return m.channels.Kinds()
}

func generateSalt() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashCode(code, salt, pepper string) string {
	sum := sha256.Sum256([]byte(pepper + ":" + salt + ":" + code))
	return hex.EncodeToString(sum[:])
}
