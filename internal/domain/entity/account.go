package entity

import (
	"strings"
	"time"
)

// Account is the host-owned driver account. This module reads contact data and owns
// the verification columns (two-factor flags and the resend attempt window).
type Account struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	Name                 string     `gorm:"size:100;not null;default:''" json:"name"`
	Email                string     `gorm:"size:100;not null;uniqueIndex" json:"email"`
	Phone                string     `gorm:"size:20;not null;default:''" json:"phone"`
	TwoFactorEnabled     bool       `gorm:"not null;default:false" json:"two_factor_enabled"`
	TwoFactorForced      bool       `gorm:"not null;default:false" json:"two_factor_forced"`
	RegistrationVerified bool       `gorm:"not null;default:false" json:"registration_verified"`
	AttemptCount         int        `gorm:"not null;default:0" json:"-"`
	BlockedUntil         *time.Time `gorm:"type:timestamptz" json:"-"`
	LastTwoFactorAt      *time.Time `gorm:"type:timestamptz" json:"last_two_factor_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (Account) TableName() string {
	return "accounts"
}

// AttemptWindow returns the resend counters carried on the row.
func (a *Account) AttemptWindow() AttemptWindow {
	return AttemptWindow{Count: a.AttemptCount, BlockedUntil: a.BlockedUntil}
}

// ContactFor returns the address used to reach the account over the given channel kind.
func (a *Account) ContactFor(kind string) string {
	switch kind {
	case "email":
		return strings.TrimSpace(a.Email)
	case "sms":
		return strings.TrimSpace(a.Phone)
	}
	return ""
}

// DisplayName falls back to the mailbox part of the email when no name was captured.
func (a *Account) DisplayName() string {
	if name := strings.TrimSpace(a.Name); name != "" {
		return name
	}
	email := strings.TrimSpace(a.Email)
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}
