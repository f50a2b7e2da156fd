package review

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	SetBearer(token string)
	GetApplicationID() string
	EmployeeToken(role string) (string, error)
}

// RegisterSteps registers reviewer and admin step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &reviewSteps{tc: tc}

	ctx.Step(`^I am signed in as (?:a|an) (COMPLIANCE_OFFICER|ADMIN)$`, steps.signInAs)
	ctx.Step(`^I (assign|verify|approve|mark-for-deletion|anonymize) the application$`, steps.act)
	ctx.Step(`^I (reject|flag|request-info for) the application with reason "([^"]*)"$`, steps.actWithReason)
	ctx.Step(`^a compliance officer assigns, verifies and approves the application$`, steps.approveAsOfficer)
}

type reviewSteps struct {
	tc TestContext
}

func (s *reviewSteps) signInAs(ctx context.Context, role string) error {
	token, err := s.tc.EmployeeToken(role)
	if err != nil {
		return err
	}
	s.tc.SetBearer(token)
	return nil
}

func (s *reviewSteps) path(action string) string {
	return "/applications/" + s.tc.GetApplicationID() + "/" + action
}

func (s *reviewSteps) act(ctx context.Context, action string) error {
	if action == "mark-for-deletion" {
		action = "deletion"
	}
	return s.tc.POST(s.path(action), nil)
}

func (s *reviewSteps) actWithReason(ctx context.Context, action, reason string) error {
	if action == "request-info for" {
		action = "request-info"
	}
	return s.tc.POST(s.path(action), map[string]string{"reason": reason})
}

func (s *reviewSteps) approveAsOfficer(ctx context.Context) error {
	if err := s.signInAs(ctx, "COMPLIANCE_OFFICER"); err != nil {
		return err
	}
	for _, action := range []string{"assign", "verify", "approve"} {
		if err := s.tc.POST(s.path(action), nil); err != nil {
			return fmt.Errorf("%s: %w", action, err)
		}
	}
	return nil
}
