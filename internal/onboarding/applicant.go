package onboarding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"onboarding/internal/application/duplicate"
	"onboarding/internal/application/models"
	"onboarding/internal/otp"
	"onboarding/internal/token"
	id "onboarding/pkg/domain"
	dErrors "onboarding/pkg/domain-errors"
	"onboarding/pkg/platform/privacy"
	"onboarding/pkg/platform/sentinel"
	"onboarding/pkg/requestcontext"
)

// commitAttempts bounds how often a verified channel is reapplied to a
// freshly loaded application after a version conflict.
const commitAttempts = 3

type CreateApplicationInput struct {
	Personal models.Personal
	Contact  models.Contact
}

// OTPChallenge describes a code that was just sent. The code itself is
// never returned.
type OTPChallenge struct {
	VerificationID id.VerificationID
	Channel        models.Channel
	ExpiresAt      time.Time
}

// VerifyOTPResult carries the verified application and the applicant session
// bound to it.
type VerifyOTPResult struct {
	Application *models.Application
	Session     token.Pair
}

type UploadDocumentInput struct {
	Kind        models.DocumentKind
	StorageKey  string
	FileName    string
	ContentType string
	SizeBytes   int64
}

type GrantConsentInput struct {
	Type              models.ConsentType
	Granted           bool
	DisclosureVersion string
}

// CreateApplication validates the applicant data and opens a new application
// once no existing one holds the same national id, email or phone.
func (s *Service) CreateApplication(ctx context.Context, in CreateApplicationInput) (*models.Application, error) {
	ctx, span := s.start(ctx, "CreateApplication", id.ApplicationID{})
	defer span.End()
	if s.metrics != nil {
		defer s.metrics.ObserveAction("CreateApplication", time.Now())
	}

	app, err := models.NewApplication(in.Personal, in.Contact, s.clock())
	if err != nil {
		return nil, s.fail(span, err)
	}
	dup, err := s.duplicates.Check(ctx, app.Personal.SSN, app.Contact.Email, app.Contact.Phone)
	if err != nil {
		return nil, s.fail(span, err)
	}
	if dup != duplicate.TypeNone {
		if s.metrics != nil {
			s.metrics.IncrementDuplicateRejection(dup.String())
		}
		s.logger.InfoContext(ctx, "duplicate application refused",
			"field", dup,
			"ip_prefix", privacy.AnonymizeIP(requestcontext.ClientIP(ctx)),
		)
		return nil, s.fail(span, duplicate.Error(dup))
	}

	if err := s.commit(ctx, app, ""); err != nil {
		return nil, s.fail(span, err)
	}
	if s.metrics != nil {
		s.metrics.IncrementApplicationsCreated()
	}
	span.SetAttributes(attribute.String("application.id", app.ID.String()))
	s.logger.InfoContext(ctx, "application created", "application_id", app.ID.String())
	return app, nil
}

// SendOTP issues a fresh code for channel. Any code still pending for the
// same channel is expired first so only the latest one can be redeemed.
func (s *Service) SendOTP(ctx context.Context, appID id.ApplicationID, channel models.Channel) (*OTPChallenge, error) {
	ctx, span := s.start(ctx, "SendOTP", appID)
	defer span.End()
	if s.metrics != nil {
		defer s.metrics.ObserveAction("SendOTP", time.Now())
	}

	if !channel.IsValid() {
		return nil, s.fail(span, dErrors.New(dErrors.CodeInvalidInput, "channel must be EMAIL or PHONE"))
	}
	app, err := s.load(ctx, appID)
	if err != nil {
		return nil, s.fail(span, err)
	}
	if app.Status().IsTerminal() || app.MarkedForDeletion || app.Anonymized {
		return nil, s.fail(span, dErrors.New(dErrors.CodeInvalidStateTransition,
			fmt.Sprintf("cannot send a code for application in status %s", app.Status())))
	}
	if channelVerified(app, channel) {
		return nil, s.fail(span, dErrors.New(dErrors.CodeInvalidStateTransition,
			fmt.Sprintf("%s is already verified", channel)))
	}

	now := s.clock()
	expired, err := s.verifications.ExpirePending(ctx, appID, channel, now)
	if err != nil {
		return nil, s.fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to expire pending codes"))
	}
	code, err := s.codes.GenerateCode()
	if err != nil {
		return nil, s.fail(span, err)
	}
	hash, err := s.codes.Hash(code)
	if err != nil {
		return nil, s.fail(span, err)
	}
	v := otp.NewVerification(appID, channel, hash, s.codes.ExpiryFromNow(), s.maxAttempts, now)
	if err := s.verifications.Save(ctx, v); err != nil {
		return nil, s.fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store verification"))
	}
	if err := s.notifier.Send(ctx, appID, channel, destination(app, channel), code); err != nil {
		return nil, s.fail(span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to deliver code"))
	}

	if s.metrics != nil {
		s.metrics.IncrementOTPSent(channel.String())
	}
	s.logger.InfoContext(ctx, "otp sent",
		"application_id", appID.String(),
		"channel", channel,
		"superseded", expired,
	)
	return &OTPChallenge{VerificationID: v.ID, Channel: channel, ExpiresAt: v.ExpiresAt}, nil
}

// VerifyOTP checks code against the latest pending verification for channel.
// A match verifies the channel and starts an applicant session. The
// application is checked first so a code is never spent on an application
// that cannot take the verification.
func (s *Service) VerifyOTP(ctx context.Context, appID id.ApplicationID, channel models.Channel, code string) (*VerifyOTPResult, error) {
	ctx, span := s.start(ctx, "VerifyOTP", appID)
	defer span.End()
	if s.metrics != nil {
		defer s.metrics.ObserveAction("VerifyOTP", time.Now())
	}

	if !channel.IsValid() {
		return nil, s.fail(span, dErrors.New(dErrors.CodeInvalidInput, "channel must be EMAIL or PHONE"))
	}
	app, err := s.load(ctx, appID)
	if err != nil {
		return nil, s.fail(span, err)
	}
	if err := verifiable(app); err != nil {
		return nil, s.fail(span, err)
	}

	v, outcome, err := s.presentCode(ctx, appID, channel, code)
	if err != nil {
		return nil, s.fail(span, err)
	}
	if s.metrics != nil {
		s.metrics.IncrementOTPVerification(string(outcome))
	}
	span.SetAttributes(attribute.String("otp.outcome", string(outcome)))

	switch outcome {
	case otp.OutcomeVerified:
	case otp.OutcomeExpired:
		return nil, s.fail(span, dErrors.New(dErrors.CodeValidation, "code has expired, request a new one"))
	case otp.OutcomeLocked:
		s.logger.WarnContext(ctx, "otp verification locked",
			"application_id", appID.String(),
			"channel", channel,
			"ip_prefix", privacy.AnonymizeIP(requestcontext.ClientIP(ctx)),
		)
		return nil, s.fail(span, dErrors.New(dErrors.CodeForbidden, "too many incorrect codes, request a new one"))
	default:
		return nil, s.fail(span, dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("incorrect code, %d attempts remaining", v.RemainingAttempts())))
	}

	app, err = s.markVerified(ctx, app, channel)
	if err != nil {
		return nil, s.fail(span, err)
	}
	pair, err := s.sessions.Start(ctx, token.RoleApplicant, token.Subject{ApplicationID: appID})
	if err != nil {
		return nil, s.fail(span, err)
	}
	return &VerifyOTPResult{Application: app, Session: pair}, nil
}

// verifiable rejects applications a code may no longer be redeemed against.
func verifiable(app *models.Application) error {
	if app.Status().IsTerminal() || app.MarkedForDeletion || app.Anonymized {
		return dErrors.New(dErrors.CodeInvalidStateTransition,
			fmt.Sprintf("cannot verify a code for application in status %s", app.Status()))
	}
	return nil
}

// presentCode registers one presentation of code against the latest pending
// record. The write is conditional on the attempt count the presentation
// started from; losing that race reloads the record and presents again, so
// concurrent guesses each consume an attempt. Every lost race means another
// presentation was stored, so a caller that loses more often than the record
// allows attempts finds it locked or gone.
func (s *Service) presentCode(ctx context.Context, appID id.ApplicationID, channel models.Channel, code string) (*otp.Verification, otp.Outcome, error) {
	var (
		comparedWith string
		matched      bool
	)
	for range s.maxAttempts + 1 {
		v, err := s.verifications.FindLatestPending(ctx, appID, channel)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, "", dErrors.New(dErrors.CodeNotFound, "no pending code for this channel")
			}
			return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to load verification")
		}
		if v.CodeHash != comparedWith {
			if matched, err = s.codes.Verify(code, v.CodeHash); err != nil {
				return nil, "", err
			}
			comparedWith = v.CodeHash
		}

		seen := v.Attempts
		outcome := v.RegisterAttempt(matched, s.clock())
		err = s.verifications.RecordAttempt(ctx, v, seen)
		if err == nil {
			return v, outcome, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to store verification")
		}
	}
	return nil, "", dErrors.New(dErrors.CodeConflict, "code is being verified concurrently, retry")
}

// markVerified commits the channel verification. The code is spent by now,
// so a version conflict reloads the application and applies the change again
// instead of failing the request.
func (s *Service) markVerified(ctx context.Context, app *models.Application, channel models.Channel) (*models.Application, error) {
	for attempt := 1; ; attempt++ {
		before := app.Status()
		if err := app.VerifyChannel(channel, s.clock()); err != nil {
			return nil, err
		}
		err := s.commit(ctx, app, before)
		if err == nil {
			return app, nil
		}
		if !dErrors.HasCode(err, dErrors.CodeConflict) || attempt == commitAttempts {
			return nil, err
		}
		if app, err = s.load(ctx, app.ID); err != nil {
			return nil, err
		}
		if err := verifiable(app); err != nil {
			return nil, err
		}
	}
}

func (s *Service) UploadDocument(ctx context.Context, appID id.ApplicationID, in UploadDocumentInput) (*models.Application, error) {
	return s.mutate(ctx, "UploadDocument", appID, func(app *models.Application, now time.Time) error {
		doc, err := models.NewDocument(in.Kind, in.StorageKey, in.FileName, in.ContentType, in.SizeBytes, now)
		if err != nil {
			return err
		}
		return app.AddDocument(doc, now)
	})
}

// GrantConsent records the applicant's answer together with the caller IP.
func (s *Service) GrantConsent(ctx context.Context, appID id.ApplicationID, in GrantConsentInput) (*models.Application, error) {
	ip := requestcontext.ClientIP(ctx)
	return s.mutate(ctx, "GrantConsent", appID, func(app *models.Application, now time.Time) error {
		c, err := models.NewConsent(in.Type, in.Granted, in.DisclosureVersion, ip, now)
		if err != nil {
			return err
		}
		return app.AddConsent(c, now)
	})
}

func (s *Service) RevokeConsent(ctx context.Context, appID id.ApplicationID, consentType models.ConsentType) (*models.Application, error) {
	return s.mutate(ctx, "RevokeConsent", appID, func(app *models.Application, now time.Time) error {
		return app.RevokeConsent(consentType, now)
	})
}

func (s *Service) Submit(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	return s.mutate(ctx, "Submit", appID, func(app *models.Application, now time.Time) error {
		return app.Submit(now)
	})
}

func (s *Service) ProvideMoreInfo(ctx context.Context, appID id.ApplicationID, info string) (*models.Application, error) {
	return s.mutate(ctx, "ProvideMoreInfo", appID, func(app *models.Application, now time.Time) error {
		return app.ProvideMoreInfo(info, now)
	})
}

func channelVerified(app *models.Application, channel models.Channel) bool {
	if channel == models.ChannelEmail {
		return app.EmailVerified
	}
	return app.PhoneVerified
}

func destination(app *models.Application, channel models.Channel) string {
	if channel == models.ChannelEmail {
		return app.Contact.Email
	}
	return app.Contact.Phone
}
