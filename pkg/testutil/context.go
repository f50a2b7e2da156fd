package testutil

import (
	"net/http"

	id "onboarding/pkg/domain"
	"onboarding/pkg/requestcontext"
)

// WithPrincipal attaches p to the request context.
// This simulates what the auth middleware would do for authenticated requests.
func WithPrincipal(req *http.Request, p requestcontext.Principal) *http.Request {
	return req.WithContext(requestcontext.WithPrincipal(req.Context(), p))
}

// AsApplicant authenticates req as the applicant bound to appID.
func AsApplicant(req *http.Request, appID id.ApplicationID) *http.Request {
	return WithPrincipal(req, requestcontext.Principal{
		Subject:       appID.String(),
		Role:          "APPLICANT",
		ApplicationID: appID,
	})
}

// AsEmployee authenticates req as an employee with the given role.
func AsEmployee(req *http.Request, role string, userID id.UserID) *http.Request {
	return WithPrincipal(req, requestcontext.Principal{
		Subject:   userID.String(),
		Role:      role,
		UserID:    userID,
		SessionID: id.NewSessionID(),
	})
}

// WithClientIP sets the client metadata the ClientMetadata middleware would.
func WithClientIP(req *http.Request, ip string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), ip, req.UserAgent()))
}
