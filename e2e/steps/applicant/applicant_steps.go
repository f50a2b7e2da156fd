package applicant

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	GET(path string) error
	DELETE(path string) error
	SetBearer(token string)
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	GetApplicationID() string
	SetApplicationID(appID string)
	SetRefreshToken(token string)
	GetRefreshToken() string
	DeliveredCode(channel string) (string, error)
}

// RegisterSteps registers the applicant journey step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &applicantSteps{tc: tc}

	ctx.Step(`^I start an application for "([^"]*)" with SSN "([^"]*)" and phone "([^"]*)"$`, steps.startApplication)
	ctx.Step(`^I start an application with email "([^"]*)"$`, steps.startApplicationWithEmail)
	ctx.Step(`^I request a verification code by (EMAIL|PHONE)$`, steps.requestCode)
	ctx.Step(`^I enter the (EMAIL|PHONE) code I received$`, steps.enterDeliveredCode)
	ctx.Step(`^I enter the wrong (EMAIL|PHONE) code$`, steps.enterWrongCode)
	ctx.Step(`^I have a verified application$`, steps.verifiedApplication)
	ctx.Step(`^I upload a "([^"]*)" document$`, steps.uploadDocument)
	ctx.Step(`^I (grant|decline) "([^"]*)" consent$`, steps.consent)
	ctx.Step(`^I revoke "([^"]*)" consent$`, steps.revokeConsent)
	ctx.Step(`^I have completed and submitted my application$`, steps.completedAndSubmitted)
	ctx.Step(`^I submit my application$`, steps.submit)
	ctx.Step(`^I provide the additional information "([^"]*)"$`, steps.provideInfo)
	ctx.Step(`^I view my application$`, steps.view)
	ctx.Step(`^I refresh my session$`, steps.refresh)
	ctx.Step(`^I log out$`, steps.logout)
}

type applicantSteps struct {
	tc     TestContext
	access string
}

func applicationBody(email, ssn, phone string) map[string]any {
	return map[string]any{
		"first_name":    "Ada",
		"last_name":     "Lovelace",
		"date_of_birth": "1991-12-10",
		"ssn":           ssn,
		"email":         email,
		"phone":         phone,
		"address": map[string]string{
			"line1": "12 Canal St", "city": "Amsterdam", "postal_code": "1011AB", "country": "NL",
		},
	}
}

func (s *applicantSteps) path(suffix string) string {
	return "/applications/" + s.tc.GetApplicationID() + suffix
}

func (s *applicantSteps) startApplication(ctx context.Context, email, ssn, phone string) error {
	s.tc.SetBearer("")
	if err := s.tc.POST("/applications", applicationBody(email, ssn, phone)); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() != 201 {
		return nil
	}
	appID, err := s.tc.GetResponseField("id")
	if err != nil {
		return err
	}
	s.tc.SetApplicationID(fmt.Sprint(appID))
	return nil
}

func (s *applicantSteps) startApplicationWithEmail(ctx context.Context, email string) error {
	return s.startApplication(ctx, email, "123-45-6789", "+31611111111")
}

func (s *applicantSteps) requestCode(ctx context.Context, channel string) error {
	return s.tc.POST(s.path("/otp"), map[string]string{"channel": channel})
}

func (s *applicantSteps) verify(channel, code string) error {
	if err := s.tc.POST(s.path("/otp/verify"), map[string]string{"channel": channel, "code": code}); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() != 200 {
		return nil
	}
	access, err := s.tc.GetResponseField("session.access_token")
	if err != nil {
		return err
	}
	refresh, err := s.tc.GetResponseField("session.refresh_token")
	if err != nil {
		return err
	}
	s.access = fmt.Sprint(access)
	s.tc.SetRefreshToken(fmt.Sprint(refresh))
	s.tc.SetBearer(s.access)
	return nil
}

func (s *applicantSteps) enterDeliveredCode(ctx context.Context, channel string) error {
	code, err := s.tc.DeliveredCode(channel)
	if err != nil {
		return err
	}
	return s.verify(channel, code)
}

func (s *applicantSteps) enterWrongCode(ctx context.Context, channel string) error {
	code, err := s.tc.DeliveredCode(channel)
	if err != nil {
		return err
	}
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	return s.verify(channel, wrong)
}

// expect fails the step unless the last response had the given status.
func (s *applicantSteps) expect(status int) error {
	if got := s.tc.GetLastResponseStatus(); got != status {
		return fmt.Errorf("expected status %d, got %d: %s", status, got, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *applicantSteps) verifiedApplication(ctx context.Context) error {
	if err := s.startApplicationWithEmail(ctx, "ada@example.com"); err != nil {
		return err
	}
	if err := s.expect(201); err != nil {
		return err
	}
	if err := s.requestCode(ctx, "EMAIL"); err != nil {
		return err
	}
	if err := s.expect(202); err != nil {
		return err
	}
	if err := s.enterDeliveredCode(ctx, "EMAIL"); err != nil {
		return err
	}
	return s.expect(200)
}

func (s *applicantSteps) uploadDocument(ctx context.Context, kind string) error {
	return s.tc.POST(s.path("/documents"), map[string]any{
		"kind":         kind,
		"storage_key":  "s3://onboarding-docs/" + kind,
		"file_name":    "scan.pdf",
		"content_type": "application/pdf",
		"size_bytes":   4096,
	})
}

func (s *applicantSteps) consent(ctx context.Context, verb, consentType string) error {
	return s.tc.POST(s.path("/consents"), map[string]any{
		"type":               consentType,
		"granted":            verb == "grant",
		"disclosure_version": "2026-01",
	})
}

func (s *applicantSteps) revokeConsent(ctx context.Context, consentType string) error {
	return s.tc.DELETE(s.path("/consents/" + consentType))
}

func (s *applicantSteps) completedAndSubmitted(ctx context.Context) error {
	if err := s.verifiedApplication(ctx); err != nil {
		return err
	}
	actions := []func() error{
		func() error { return s.uploadDocument(ctx, "ID_DOCUMENT") },
		func() error { return s.uploadDocument(ctx, "PROOF_OF_ADDRESS") },
		func() error { return s.consent(ctx, "grant", "TERMS_OF_SERVICE") },
		func() error { return s.consent(ctx, "grant", "PRIVACY_POLICY") },
	}
	for _, action := range actions {
		if err := action(); err != nil {
			return err
		}
		if err := s.expect(201); err != nil {
			return err
		}
	}
	if err := s.submit(ctx); err != nil {
		return err
	}
	return s.expect(200)
}

func (s *applicantSteps) submit(ctx context.Context) error {
	s.tc.SetBearer(s.access)
	return s.tc.POST(s.path("/submit"), nil)
}

func (s *applicantSteps) provideInfo(ctx context.Context, info string) error {
	s.tc.SetBearer(s.access)
	return s.tc.POST(s.path("/info"), map[string]string{"info": info})
}

func (s *applicantSteps) view(ctx context.Context) error {
	s.tc.SetBearer(s.access)
	return s.tc.GET(s.path(""))
}

func (s *applicantSteps) refresh(ctx context.Context) error {
	presented := s.tc.GetRefreshToken()
	if err := s.tc.POST("/auth/refresh", map[string]string{"refresh_token": presented}); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() != 200 {
		return nil
	}
	refresh, err := s.tc.GetResponseField("refresh_token")
	if err != nil {
		return err
	}
	s.tc.SetRefreshToken(fmt.Sprint(refresh))
	return nil
}

func (s *applicantSteps) logout(ctx context.Context) error {
	return s.tc.POST("/auth/logout", map[string]string{"refresh_token": s.tc.GetRefreshToken()})
}
