package otp

import (
	"time"

	"onboarding/internal/application/models"
	id "onboarding/pkg/domain"
)

// DefaultMaxAttempts is how many wrong codes a record absorbs before locking.
const DefaultMaxAttempts = 5

type Status string

const (
	StatusPending            Status = "PENDING"
	StatusVerified           Status = "VERIFIED"
	StatusExpired            Status = "EXPIRED"
	StatusMaxAttemptsReached Status = "MAX_ATTEMPTS_EXCEEDED"
)

// Outcome is the result of presenting a code to a verification record.
type Outcome string

const (
	OutcomeVerified Outcome = "verified"
	OutcomeInvalid  Outcome = "invalid"
	OutcomeExpired  Outcome = "expired"
	OutcomeLocked   Outcome = "locked"
)

// Verification tracks one issued code for one application channel.
type Verification struct {
	ID            id.VerificationID
	ApplicationID id.ApplicationID
	Channel       models.Channel
	CodeHash      string
	Status        Status
	Attempts      int
	MaxAttempts   int
	ExpiresAt     time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	VerifiedAt    *time.Time
}

func NewVerification(appID id.ApplicationID, channel models.Channel, codeHash string, expiresAt time.Time, maxAttempts int, now time.Time) *Verification {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Verification{
		ID:            id.NewVerificationID(),
		ApplicationID: appID,
		Channel:       channel,
		CodeHash:      codeHash,
		Status:        StatusPending,
		MaxAttempts:   maxAttempts,
		ExpiresAt:     expiresAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// IsExpiredAt reports whether the code can no longer be used at now.
func (v *Verification) IsExpiredAt(now time.Time) bool {
	return now.After(v.ExpiresAt)
}

// Expire closes a pending record. Other statuses are left alone.
func (v *Verification) Expire(now time.Time) {
	if v.Status != StatusPending {
		return
	}
	v.Status = StatusExpired
	v.UpdatedAt = now
}

// RegisterAttempt applies one code presentation. Expiry is checked first and
// does not consume an attempt; a mismatch on the last allowed attempt locks
// the record.
func (v *Verification) RegisterAttempt(matched bool, now time.Time) Outcome {
	switch v.Status {
	case StatusVerified:
		return OutcomeInvalid
	case StatusExpired:
		return OutcomeExpired
	case StatusMaxAttemptsReached:
		return OutcomeLocked
	}
	if v.IsExpiredAt(now) {
		v.Expire(now)
		return OutcomeExpired
	}

	v.Attempts++
	v.UpdatedAt = now
	if matched {
		v.Status = StatusVerified
		v.VerifiedAt = &now
		return OutcomeVerified
	}
	if v.Attempts >= v.MaxAttempts {
		v.Status = StatusMaxAttemptsReached
		return OutcomeLocked
	}
	return OutcomeInvalid
}

// RemainingAttempts is zero once the record is no longer pending.
func (v *Verification) RemainingAttempts() int {
	if v.Status != StatusPending {
		return 0
	}
	return max(v.MaxAttempts-v.Attempts, 0)
}
