package models

import (
	"time"

	"github.com/google/uuid"
)

// VerificationCode — одна выдача кода. Храним только bcrypt-хэш кода и
// SHA-256 email, сам адрес в таблицу не попадает.
type VerificationCode struct {
	ID          uuid.UUID  `json:"id"`
	EmailHash   string     `json:"-"`
	CodeHash    string     `json:"-"`
	CreatedAt   time.Time  `json:"createdAt"`
	ExpiresAt   time.Time  `json:"expiresAt"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"maxAttempts"`
	Verified    bool       `json:"verified"`
	VerifiedAt  *time.Time `json:"verifiedAt,omitempty"`
	SourceIP    string     `json:"-"`
}

func (v *VerificationCode) IsExpired(now time.Time) bool {
	return !now.Before(v.ExpiresAt)
}

// IsActive: не просрочен и ещё не подтверждён.
func (v *VerificationCode) IsActive(now time.Time) bool {
	return !v.Verified && !v.IsExpired(now)
}

func (v *VerificationCode) Exhausted() bool {
	return v.Attempts >= v.MaxAttempts
}

func (v *VerificationCode) RemainingAttempts() int {
	if r := v.MaxAttempts - v.Attempts; r > 0 {
		return r
	}
	return 0
}
