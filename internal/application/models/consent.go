package models

import (
	"strings"
	"time"

	id "onboarding/pkg/domain"
	dErrors "onboarding/pkg/domain-errors"
)

// ConsentType names a disclosure the applicant agrees to.
type ConsentType string

const (
	ConsentTermsOfService ConsentType = "TERMS_OF_SERVICE"
	ConsentPrivacyPolicy  ConsentType = "PRIVACY_POLICY"
	ConsentMarketing      ConsentType = "MARKETING"
)

// MandatoryConsentTypes must be active before submission.
var MandatoryConsentTypes = []ConsentType{ConsentTermsOfService, ConsentPrivacyPolicy}

func ParseConsentType(s string) (ConsentType, error) {
	t := ConsentType(s)
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown consent type: "+s)
	}
	return t, nil
}

func (t ConsentType) IsValid() bool {
	switch t {
	case ConsentTermsOfService, ConsentPrivacyPolicy, ConsentMarketing:
		return true
	}
	return false
}

// Consent is immutable once recorded, except for RevokedAt.
type Consent struct {
	ID                id.ConsentID
	Type              ConsentType
	Granted           bool
	GrantedAt         time.Time
	RevokedAt         *time.Time
	DisclosureVersion string
	IPAddress         string
}

// NewConsent records the applicant's answer for one disclosure version.
func NewConsent(consentType ConsentType, granted bool, disclosureVersion, ipAddress string, now time.Time) (Consent, error) {
	if !consentType.IsValid() {
		return Consent{}, dErrors.New(dErrors.CodeInvalidInput, "invalid consent type")
	}
	if strings.TrimSpace(disclosureVersion) == "" {
		return Consent{}, dErrors.New(dErrors.CodeValidation, "disclosure version is required")
	}
	return Consent{
		ID:                id.NewConsentID(),
		Type:              consentType,
		Granted:           granted,
		GrantedAt:         now,
		DisclosureVersion: disclosureVersion,
		IPAddress:         ipAddress,
	}, nil
}

// IsActive reports granted and not revoked.
func (c Consent) IsActive() bool {
	return c.Granted && c.RevokedAt == nil
}
