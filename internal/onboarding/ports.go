package onboarding

import (
	"context"
	"time"

	"onboarding/internal/accountnumber"
	"onboarding/internal/application/duplicate"
	"onboarding/internal/application/models"
	"onboarding/internal/otp"
	"onboarding/internal/token"
	id "onboarding/pkg/domain"
)

// ApplicationStore persists the aggregate with an optimistic version check.
type ApplicationStore interface {
	FindByID(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
	Save(ctx context.Context, app *models.Application) error
	ExistsByAccountNumber(ctx context.Context, accountNumber string) (bool, error)
}

// DuplicateChecker screens identifying fields before an application exists.
type DuplicateChecker interface {
	Check(ctx context.Context, ssn, email, phone string) (duplicate.Type, error)
}

// VerificationStore keeps OTP verification records.
type VerificationStore interface {
	Save(ctx context.Context, v *otp.Verification) error
	FindLatestPending(ctx context.Context, appID id.ApplicationID, channel models.Channel) (*otp.Verification, error)
	ExpirePending(ctx context.Context, appID id.ApplicationID, channel models.Channel, now time.Time) (int, error)
	// RecordAttempt stores v after one code presentation, provided the stored
	// record is still pending with seen attempts. Otherwise it stores nothing
	// and returns sentinel.ErrConflict.
	RecordAttempt(ctx context.Context, v *otp.Verification, seen int) error
}

// Codes issues and checks one-time passwords.
type Codes interface {
	GenerateCode() (string, error)
	Hash(code string) (string, error)
	Verify(candidate, hash string) (bool, error)
	ExpiryFromNow() time.Time
}

// SessionStarter issues access/refresh pairs.
type SessionStarter interface {
	Start(ctx context.Context, role token.Role, subject token.Subject) (token.Pair, error)
}

// AccountNumbers hands out account numbers no other application holds.
type AccountNumbers interface {
	EnsureUnique(ctx context.Context, exists accountnumber.ExistsFunc) (string, error)
}

// EventPublisher dispatches the aggregate's pending events.
type EventPublisher interface {
	Publish(ctx context.Context, events ...models.Event) error
}

// Notifier delivers a plaintext code to the applicant.
type Notifier interface {
	Send(ctx context.Context, appID id.ApplicationID, channel models.Channel, destination, code string) error
}
