package token

import (
	"github.com/golang-jwt/jwt/v5"

	id "onboarding/pkg/domain"
)

// Role selects the claim set and lifetime of an issued token.
type Role string

const (
	RoleApplicant         Role = "APPLICANT"
	RoleComplianceOfficer Role = "COMPLIANCE_OFFICER"
	RoleAdmin             Role = "ADMIN"
)

func (r Role) IsValid() bool {
	_, ok := profiles[r]
	return ok
}

// IsEmployee reports whether r is bound to a user rather than an application.
func (r Role) IsEmployee() bool {
	p, ok := profiles[r]
	return ok && p.binding == bindUser
}

func (r Role) String() string { return string(r) }

// Claims is the signed claim set. Only the fields of the role's binding are set.
type Claims struct {
	Role          Role   `json:"role"`
	ApplicationID string `json:"application_id,omitempty"`
	UserID        string `json:"user_id,omitempty"`
	SessionID     string `json:"session_id,omitempty"`
	jwt.RegisteredClaims
}

// RoleOf returns the role of c, or false for nil claims or unknown roles.
func RoleOf(c *Claims) (Role, bool) {
	if c == nil || !c.Role.IsValid() {
		return "", false
	}
	return c.Role, true
}

// ApplicationIDOf returns the bound application, failing closed on missing or
// malformed values.
func ApplicationIDOf(c *Claims) (id.ApplicationID, bool) {
	if c == nil {
		return id.ApplicationID{}, false
	}
	appID, err := id.ParseApplicationID(c.ApplicationID)
	if err != nil {
		return id.ApplicationID{}, false
	}
	return appID, true
}

func UserIDOf(c *Claims) (id.UserID, bool) {
	if c == nil {
		return id.UserID{}, false
	}
	userID, err := id.ParseUserID(c.UserID)
	if err != nil {
		return id.UserID{}, false
	}
	return userID, true
}

func SessionIDOf(c *Claims) (id.SessionID, bool) {
	if c == nil {
		return id.SessionID{}, false
	}
	sessionID, err := id.ParseSessionID(c.SessionID)
	if err != nil {
		return id.SessionID{}, false
	}
	return sessionID, true
}
