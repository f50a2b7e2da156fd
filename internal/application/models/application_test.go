package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "onboarding/pkg/domain"
	dErrors "onboarding/pkg/domain-errors"
)

// =============================================================================
// Application Aggregate Test Suite
// =============================================================================

type ApplicationSuite struct {
	suite.Suite
	now time.Time
}

func TestApplicationSuite(t *testing.T) {
	suite.Run(t, new(ApplicationSuite))
}

func (s *ApplicationSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
}

func (s *ApplicationSuite) newApp() *Application {
	app, err := NewApplication(
		Personal{FirstName: "Ada", LastName: "Lovelace", SSN: "123-45-6789", Nationality: "GB"},
		Contact{Email: "Ada@Example.com ", Phone: "+441234567890"},
		s.now,
	)
	s.Require().NoError(err)
	return app
}

func (s *ApplicationSuite) doc(kind DocumentKind) Document {
	d, err := NewDocument(kind, "applications/"+string(kind), "scan.pdf", "application/pdf", 2048, s.now)
	s.Require().NoError(err)
	return d
}

func (s *ApplicationSuite) consent(t ConsentType) Consent {
	c, err := NewConsent(t, true, "v1", "203.0.113.7", s.now)
	s.Require().NoError(err)
	return c
}

// appIn drives a fresh application through the happy path up to target.
func (s *ApplicationSuite) appIn(target Status) *Application {
	app := s.newApp()
	steps := []struct {
		reached Status
		apply   func() error
	}{
		{StatusOtpVerified, func() error { return app.VerifyChannel(ChannelEmail, s.now) }},
		{StatusDocumentsUploaded, func() error {
			s.Require().NoError(app.AddDocument(s.doc(DocumentKindIdentity), s.now))
			return app.AddDocument(s.doc(DocumentKindProofOfAddress), s.now)
		}},
		{StatusSubmitted, func() error {
			s.Require().NoError(app.AddConsent(s.consent(ConsentTermsOfService), s.now))
			s.Require().NoError(app.AddConsent(s.consent(ConsentPrivacyPolicy), s.now))
			return app.Submit(s.now)
		}},
		{StatusUnderReview, func() error { return app.AssignTo(id.NewUserID(), s.now) }},
	}
	if target == StatusInitiated {
		app.ClearEvents()
		return app
	}
	for _, step := range steps {
		s.Require().NoError(step.apply())
		if step.reached == target {
			app.ClearEvents()
			return app
		}
	}
	switch target {
	case StatusVerified:
		s.Require().NoError(app.Verify(id.NewUserID(), s.now))
	case StatusRequiresMoreInfo:
		s.Require().NoError(app.RequestMoreInfo("blurry id", s.now))
	case StatusFlaggedSuspicious:
		s.Require().NoError(app.FlagSuspicious("sanctions hit", s.now))
	case StatusApproved:
		s.Require().NoError(app.Verify(id.NewUserID(), s.now))
		s.Require().NoError(app.Approve(id.NewCustomerID(), "NL91ABNA0417164300", id.NewUserID(), s.now))
	case StatusRejected:
		s.Require().NoError(app.Reject("fraud", s.now))
	}
	s.Require().Equal(target, app.Status())
	app.ClearEvents()
	return app
}

func (s *ApplicationSuite) lastEvent(app *Application) Event {
	events := app.PendingEvents()
	s.Require().NotEmpty(events)
	return events[len(events)-1]
}

func (s *ApplicationSuite) TestNewApplication() {
	s.Run("starts initiated with a created event", func() {
		app := s.newApp()
		s.Equal(StatusInitiated, app.Status())
		s.Equal("ada@example.com", app.Contact.Email)
		s.Require().Len(app.PendingEvents(), 1)
		s.Equal(EventApplicationCreated, app.PendingEvents()[0].EventType())
		s.Equal(app.ID, app.PendingEvents()[0].AggregateID())
	})

	s.Run("rejects missing identity fields", func() {
		_, err := NewApplication(Personal{FirstName: "Ada"}, Contact{Email: "a@b.c", Phone: "1"}, s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejects malformed email", func() {
		_, err := NewApplication(
			Personal{FirstName: "Ada", LastName: "L", SSN: "1"},
			Contact{Email: "not-an-email", Phone: "1"}, s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ApplicationSuite) TestVerifyChannel() {
	s.Run("initiated advances to otp verified and emits event", func() {
		app := s.appIn(StatusInitiated)
		s.Require().NoError(app.VerifyChannel(ChannelEmail, s.now))

		s.Equal(StatusOtpVerified, app.Status())
		s.True(app.EmailVerified)
		evt, ok := s.lastEvent(app).(OtpVerified)
		s.Require().True(ok)
		s.Equal(app.ID, evt.AggregateID())
		s.Equal(ChannelEmail, evt.Channel)
	})

	s.Run("re-verifying a channel is a no-op", func() {
		app := s.appIn(StatusInitiated)
		s.Require().NoError(app.VerifyChannel(ChannelEmail, s.now))
		before := len(app.PendingEvents())

		s.Require().NoError(app.VerifyChannel(ChannelEmail, s.now.Add(time.Minute)))
		s.Equal(StatusOtpVerified, app.Status())
		s.Len(app.PendingEvents(), before)
	})

	s.Run("second channel sets flag without another event", func() {
		app := s.appIn(StatusOtpVerified)
		s.Require().NoError(app.VerifyChannel(ChannelPhone, s.now))
		s.True(app.PhoneVerified)
		s.Equal(StatusOtpVerified, app.Status())
		s.Empty(app.PendingEvents())
	})

	s.Run("later statuses keep their status", func() {
		app := s.appIn(StatusUnderReview)
		s.Require().NoError(app.VerifyChannel(ChannelPhone, s.now))
		s.Equal(StatusUnderReview, app.Status())
	})

	s.Run("unknown channel rejected", func() {
		app := s.appIn(StatusInitiated)
		err := app.VerifyChannel(Channel("FAX"), s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
		s.Equal(StatusInitiated, app.Status())
	})
}

func (s *ApplicationSuite) TestAddDocument() {
	s.Run("requires otp verification", func() {
		app := s.appIn(StatusInitiated)
		err := app.AddDocument(s.doc(DocumentKindIdentity), s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))
		s.Empty(app.Documents())
	})

	s.Run("one kind keeps status and emits upload", func() {
		app := s.appIn(StatusOtpVerified)
		s.Require().NoError(app.AddDocument(s.doc(DocumentKindIdentity), s.now))
		s.Equal(StatusOtpVerified, app.Status())
		evt, ok := s.lastEvent(app).(DocumentUploaded)
		s.Require().True(ok)
		s.False(evt.Replaced)
	})

	s.Run("both kinds advance to documents uploaded", func() {
		app := s.appIn(StatusOtpVerified)
		s.Require().NoError(app.AddDocument(s.doc(DocumentKindIdentity), s.now))
		s.Require().NoError(app.AddDocument(s.doc(DocumentKindProofOfAddress), s.now))
		s.Equal(StatusDocumentsUploaded, app.Status())
	})

	s.Run("same kind replaces the previous document", func() {
		app := s.appIn(StatusDocumentsUploaded)
		newer := s.doc(DocumentKindIdentity)
		newer.StorageKey = "applications/id-v2"

		s.Require().NoError(app.AddDocument(newer, s.now))

		count := 0
		for _, d := range app.Documents() {
			if d.Kind == DocumentKindIdentity {
				count++
				s.Equal(newer.ID, d.ID)
				s.Equal("applications/id-v2", d.StorageKey)
			}
		}
		s.Equal(1, count)
		s.Equal(StatusDocumentsUploaded, app.Status())
		evt := s.lastEvent(app).(DocumentUploaded)
		s.True(evt.Replaced)
	})

	s.Run("returned documents are a copy", func() {
		app := s.appIn(StatusDocumentsUploaded)
		docs := app.Documents()
		docs[0].StorageKey = "tampered"
		s.NotEqual("tampered", app.Documents()[0].StorageKey)
	})
}

func (s *ApplicationSuite) TestConsents() {
	s.Run("add consent works in any status without changing it", func() {
		app := s.appIn(StatusInitiated)
		s.Require().NoError(app.AddConsent(s.consent(ConsentMarketing), s.now))
		s.Equal(StatusInitiated, app.Status())
		s.IsType(ConsentGranted{}, s.lastEvent(app))
		s.True(app.HasActiveConsent(ConsentMarketing))
	})

	s.Run("revoke stamps revoke time", func() {
		app := s.appIn(StatusInitiated)
		s.Require().NoError(app.AddConsent(s.consent(ConsentMarketing), s.now))
		s.Require().NoError(app.RevokeConsent(ConsentMarketing, s.now.Add(time.Hour)))

		s.False(app.HasActiveConsent(ConsentMarketing))
		s.Require().NotNil(app.Consents()[0].RevokedAt)
		s.IsType(ConsentRevoked{}, s.lastEvent(app))
	})

	s.Run("revoke without active consent is not found", func() {
		app := s.appIn(StatusInitiated)
		err := app.RevokeConsent(ConsentPrivacyPolicy, s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ApplicationSuite) TestSubmit() {
	s.Run("succeeds with documents and mandatory consents", func() {
		app := s.appIn(StatusDocumentsUploaded)
		s.Require().NoError(app.AddConsent(s.consent(ConsentTermsOfService), s.now))
		s.Require().NoError(app.AddConsent(s.consent(ConsentPrivacyPolicy), s.now))

		s.Require().NoError(app.Submit(s.now))
		s.Equal(StatusSubmitted, app.Status())
		s.Require().NotNil(app.SubmittedAt)
		s.IsType(ApplicationSubmitted{}, s.lastEvent(app))
	})

	s.Run("fails when a mandatory consent is missing", func() {
		app := s.appIn(StatusDocumentsUploaded)
		s.Require().NoError(app.AddConsent(s.consent(ConsentTermsOfService), s.now))

		err := app.Submit(s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))
		s.Equal(StatusDocumentsUploaded, app.Status())
	})

	s.Run("fails when a mandatory consent was revoked", func() {
		app := s.appIn(StatusDocumentsUploaded)
		s.Require().NoError(app.AddConsent(s.consent(ConsentTermsOfService), s.now))
		s.Require().NoError(app.AddConsent(s.consent(ConsentPrivacyPolicy), s.now))
		s.Require().NoError(app.RevokeConsent(ConsentPrivacyPolicy, s.now))

		err := app.Submit(s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))
		s.Equal(StatusDocumentsUploaded, app.Status())
	})

	s.Run("fails when only one document is present", func() {
		app := s.appIn(StatusOtpVerified)
		s.Require().NoError(app.AddDocument(s.doc(DocumentKindIdentity), s.now))
		s.Require().NoError(app.AddConsent(s.consent(ConsentTermsOfService), s.now))
		s.Require().NoError(app.AddConsent(s.consent(ConsentPrivacyPolicy), s.now))

		err := app.Submit(s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))
		s.Equal(StatusOtpVerified, app.Status())
	})
}

func (s *ApplicationSuite) TestReview() {
	reviewer := id.NewUserID()

	s.Run("assign moves submitted into review", func() {
		app := s.appIn(StatusSubmitted)
		s.Require().NoError(app.AssignTo(reviewer, s.now))
		s.Equal(StatusUnderReview, app.Status())
		s.Equal(reviewer, *app.AssignedTo)
	})

	s.Run("reassign keeps under review", func() {
		app := s.appIn(StatusUnderReview)
		s.Require().NoError(app.AssignTo(reviewer, s.now))
		s.Equal(StatusUnderReview, app.Status())
		s.IsType(ApplicationAssigned{}, s.lastEvent(app))
	})

	s.Run("verify marks every document verified", func() {
		app := s.appIn(StatusUnderReview)
		s.Require().NoError(app.Verify(reviewer, s.now))
		s.Equal(StatusVerified, app.Status())
		for _, d := range app.Documents() {
			s.Equal(DocumentStatusVerified, d.Status)
			s.Equal(reviewer, *d.VerifiedBy)
		}
	})

	s.Run("more info loops back to review", func() {
		app := s.appIn(StatusUnderReview)
		s.Require().NoError(app.RequestMoreInfo("need utility bill", s.now))
		s.Equal(StatusRequiresMoreInfo, app.Status())
		s.Equal("need utility bill", app.ReviewReason)

		s.Require().NoError(app.ProvideMoreInfo("uploaded bill", s.now))
		s.Equal(StatusUnderReview, app.Status())
		s.Empty(app.ReviewReason)
		s.IsType(AdditionalInfoProvided{}, s.lastEvent(app))
	})

	s.Run("flag sets manual review", func() {
		app := s.appIn(StatusUnderReview)
		s.Require().NoError(app.FlagSuspicious("pep match", s.now))
		s.Equal(StatusFlaggedSuspicious, app.Status())
		s.True(app.RequiresManualReview)
	})

	s.Run("verify outside review fails", func() {
		app := s.appIn(StatusSubmitted)
		err := app.Verify(reviewer, s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))
		s.Equal(StatusSubmitted, app.Status())
	})
}

func (s *ApplicationSuite) TestApprove() {
	customer := id.NewCustomerID()
	by := id.NewUserID()

	for _, from := range []Status{StatusVerified, StatusFlaggedSuspicious} {
		s.Run("from "+from.String(), func() {
			app := s.appIn(from)
			s.Require().NoError(app.Approve(customer, "NL91ABNA0417164300", by, s.now))
			s.Equal(StatusApproved, app.Status())
			s.Equal("NL91ABNA0417164300", app.AccountNumber)
			s.Require().NotNil(app.RetentionUntil)
			s.Equal(s.now.Add(5*365*24*time.Hour), *app.RetentionUntil)
			evt := s.lastEvent(app).(ApplicationApproved)
			s.Equal(customer, evt.CustomerID)
		})
	}

	s.Run("under review cannot approve", func() {
		app := s.appIn(StatusUnderReview)
		err := app.Approve(customer, "NL91ABNA0417164300", by, s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))
	})
}

func (s *ApplicationSuite) TestReject() {
	s.Run("empty reason fails and status is unchanged", func() {
		app := s.appIn(StatusUnderReview)
		err := app.Reject("", s.now)
		s.Require().Error(err)
		s.Equal(StatusUnderReview, app.Status())
		s.Empty(app.PendingEvents())
	})

	s.Run("sets ninety day retention", func() {
		app := s.appIn(StatusVerified)
		s.Require().NoError(app.Reject("document forged", s.now))
		s.Equal(StatusRejected, app.Status())
		s.Equal(s.now.Add(90*24*time.Hour), *app.RetentionUntil)
		s.IsType(ApplicationRejected{}, s.lastEvent(app))
	})

	s.Run("terminal states refuse further transitions", func() {
		app := s.appIn(StatusApproved)
		err := app.Reject("late", s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))
		s.Equal(StatusApproved, app.Status())
	})
}

func (s *ApplicationSuite) TestMarkForDeletionAndAnonymize() {
	s.Run("only rejected applications can be marked", func() {
		app := s.appIn(StatusUnderReview)
		err := app.MarkForDeletion(s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidStateTransition))
	})

	s.Run("marking twice emits once", func() {
		app := s.appIn(StatusRejected)
		s.Require().NoError(app.MarkForDeletion(s.now))
		s.Require().NoError(app.MarkForDeletion(s.now))
		s.True(app.MarkedForDeletion)
		s.Len(app.PendingEvents(), 1)
		s.IsType(DataDeletionRequested{}, app.PendingEvents()[0])
	})

	s.Run("anonymize scrubs personal data without events", func() {
		app := s.appIn(StatusRejected)
		app.Anonymize(s.now)
		s.True(app.Anonymized)
		s.NotEqual("123-45-6789", app.Personal.SSN)
		s.NotContains(app.Contact.Email, "example.com")
		s.Nil(app.Personal.DateOfBirth)
		for _, c := range app.Consents() {
			s.Empty(c.IPAddress)
		}
		s.Empty(app.PendingEvents())
	})
}

func (s *ApplicationSuite) TestRestore() {
	app := s.appIn(StatusDocumentsUploaded)
	app.Version = 3

	restored := Restore(*app, app.Status(), app.Documents(), app.Consents())
	s.Equal(StatusDocumentsUploaded, restored.Status())
	s.Equal(int64(3), restored.Version)
	s.Len(restored.Documents(), 2)
	s.Empty(restored.PendingEvents())
}

func (s *ApplicationSuite) TestStatusOrder() {
	s.Less(StatusInitiated.Rank(), StatusOtpVerified.Rank())
	s.Less(StatusUnderReview.Rank(), StatusApproved.Rank())
	s.Equal(-1, Status("BOGUS").Rank())
	s.True(StatusRejected.IsTerminal())
	s.False(StatusFlaggedSuspicious.IsTerminal())

	_, err := ParseStatus("BOGUS")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
