package entity

import (
	"fmt"
	"strings"
	"time"
)

// Purpose is the business reason a one-time code was issued.
type Purpose string

const (
	PurposeLogin        Purpose = "login"
	PurposeSetup        Purpose = "setup"
	PurposeDisable      Purpose = "disable"
	PurposeRegistration Purpose = "registration"
)

// Purposes lists every purpose a code can be issued for.
var Purposes = []Purpose{PurposeLogin, PurposeSetup, PurposeDisable, PurposeRegistration}

// ParsePurpose normalizes and validates a purpose coming from a request.
func ParsePurpose(raw string) (Purpose, error) {
	p := Purpose(strings.ToLower(strings.TrimSpace(raw)))
	if !p.Valid() {
		return "", fmt.Errorf("unknown purpose %q", raw)
	}
	return p, nil
}

// Valid reports whether p is one of the known purposes.
func (p Purpose) Valid() bool {
	for _, known := range Purposes {
		if p == known {
			return true
		}
	}
	return false
}

// CodeLength is the number of digits in a one-time code.
const CodeLength = 6

// IsWellFormedCode reports whether code is exactly CodeLength ASCII digits.
func IsWellFormedCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// VerificationCode stores a hashed one-time code for a single purpose.
// At most one unused row exists per (account_id, purpose); see the partial unique index
// idx_verification_codes_active in migrations.
type VerificationCode struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	AccountID uint       `gorm:"not null;index:idx_verification_codes_lookup,priority:1" json:"account_id"`
	Purpose   Purpose    `gorm:"size:20;not null;index:idx_verification_codes_lookup,priority:2" json:"purpose"`
	Channel   string     `gorm:"size:10;not null" json:"channel"`
	CodeHash  string     `gorm:"size:64;not null" json:"-"`
	CodeSalt  string     `gorm:"size:64;not null" json:"-"`
	ExpiresAt time.Time  `gorm:"not null;index" json:"expires_at"`
	Used      bool       `gorm:"not null;default:false;index:idx_verification_codes_lookup,priority:3" json:"used"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (VerificationCode) TableName() string {
	return "verification_codes"
}

func (c *VerificationCode) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
