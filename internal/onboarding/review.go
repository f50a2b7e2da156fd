package onboarding

import (
	"context"
	"time"

	"onboarding/internal/application/models"
	id "onboarding/pkg/domain"
	dErrors "onboarding/pkg/domain-errors"
)

func (s *Service) Assign(ctx context.Context, appID id.ApplicationID, reviewer id.UserID) (*models.Application, error) {
	return s.mutate(ctx, "Assign", appID, func(app *models.Application, now time.Time) error {
		return app.AssignTo(reviewer, now)
	})
}

func (s *Service) Verify(ctx context.Context, appID id.ApplicationID, by id.UserID) (*models.Application, error) {
	return s.mutate(ctx, "Verify", appID, func(app *models.Application, now time.Time) error {
		return app.Verify(by, now)
	})
}

func (s *Service) RequestMoreInfo(ctx context.Context, appID id.ApplicationID, reason string) (*models.Application, error) {
	return s.mutate(ctx, "RequestMoreInfo", appID, func(app *models.Application, now time.Time) error {
		return app.RequestMoreInfo(reason, now)
	})
}

func (s *Service) Flag(ctx context.Context, appID id.ApplicationID, reason string) (*models.Application, error) {
	return s.mutate(ctx, "Flag", appID, func(app *models.Application, now time.Time) error {
		return app.FlagSuspicious(reason, now)
	})
}

// Approve assigns a new customer id and a unique account number. The number
// is only generated once the status allows approval.
func (s *Service) Approve(ctx context.Context, appID id.ApplicationID, by id.UserID) (*models.Application, error) {
	return s.mutate(ctx, "Approve", appID, func(app *models.Application, now time.Time) error {
		if st := app.Status(); st != models.StatusVerified && st != models.StatusFlaggedSuspicious {
			return dErrors.New(dErrors.CodeInvalidStateTransition, "cannot approve application in status "+st.String())
		}
		accountNumber, err := s.accounts.EnsureUnique(ctx, s.apps.ExistsByAccountNumber)
		if err != nil {
			return err
		}
		return app.Approve(id.NewCustomerID(), accountNumber, by, now)
	})
}

func (s *Service) Reject(ctx context.Context, appID id.ApplicationID, reason string) (*models.Application, error) {
	return s.mutate(ctx, "Reject", appID, func(app *models.Application, now time.Time) error {
		return app.Reject(reason, now)
	})
}

func (s *Service) MarkForDeletion(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	return s.mutate(ctx, "MarkForDeletion", appID, func(app *models.Application, now time.Time) error {
		return app.MarkForDeletion(now)
	})
}

// Anonymize scrubs personal data from an application that was marked for
// deletion. Anonymized applications no longer block new applicants.
func (s *Service) Anonymize(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	return s.mutate(ctx, "Anonymize", appID, func(app *models.Application, now time.Time) error {
		if !app.MarkedForDeletion {
			return dErrors.New(dErrors.CodeInvalidStateTransition, "application is not marked for deletion")
		}
		app.Anonymize(now)
		return nil
	})
}
