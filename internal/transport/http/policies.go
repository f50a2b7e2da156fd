package httptransport

import (
	"net/http"

	"onboarding/internal/platform/config"
	rlmw "onboarding/internal/ratelimit/middleware"
	"onboarding/internal/ratelimit/models"
)

// RateLimitPolicies maps the configured limits onto the routes they guard.
// OTP verification counts both the caller IP and the targeted application.
func RateLimitPolicies(cfg config.RateLimitConfig) []rlmw.Policy {
	return []rlmw.Policy{
		{
			Method:   http.MethodPost,
			Pattern:  "/applications",
			Resource: models.ResourceApplicationCreate,
			Rules:    []rlmw.Rule{rule(models.KeySourceIP, cfg.CreateByIP)},
		},
		{
			Method:   http.MethodPost,
			Pattern:  "/applications/{applicationID}/otp/verify",
			Resource: models.ResourceOTPVerify,
			Rules: []rlmw.Rule{
				rule(models.KeySourceIP, cfg.OTPVerifyByIP),
				rule(models.KeySourceApplication, cfg.OTPVerifyByApp),
			},
			Param: applicationParam,
		},
		{
			Method:   http.MethodPost,
			Pattern:  "/applications/{applicationID}/otp",
			Resource: models.ResourceOTPSend,
			Rules:    []rlmw.Rule{rule(models.KeySourceIP, cfg.OTPSendByIP)},
			Param:    applicationParam,
		},
		{
			Method:   http.MethodPost,
			Pattern:  "/applications/{applicationID}/documents",
			Resource: models.ResourceDocumentUpload,
			Rules:    []rlmw.Rule{rule(models.KeySourceApplication, cfg.DocumentsByApp)},
			Param:    applicationParam,
		},
	}
}

func rule(source models.KeySource, l config.Limit) rlmw.Rule {
	return rlmw.Rule{Source: source, Limit: l.Requests, Window: l.Window}
}
