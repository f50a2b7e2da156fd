package e2e

import (
	"github.com/cucumber/godog"

	"onboarding/e2e/steps/applicant"
	"onboarding/e2e/steps/common"
	"onboarding/e2e/steps/ratelimit"
	"onboarding/e2e/steps/review"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (generic requests, assertions)
	common.RegisterSteps(ctx, tc)

	// Register applicant journey steps
	applicant.RegisterSteps(ctx, tc)

	// Register reviewer and admin steps
	review.RegisterSteps(ctx, tc)

	// Register rate limiting steps
	ratelimit.RegisterSteps(ctx, tc)
}
