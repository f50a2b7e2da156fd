package httptransport

import (
	"time"

	"onboarding/internal/application/models"
	"onboarding/internal/onboarding"
	"onboarding/internal/token"
	id "onboarding/pkg/domain"
	"onboarding/pkg/platform/privacy"
)

type documentResponse struct {
	ID          id.DocumentID `json:"id"`
	Kind        string        `json:"kind"`
	StorageKey  string        `json:"storage_key"`
	FileName    string        `json:"file_name,omitempty"`
	ContentType string        `json:"content_type,omitempty"`
	SizeBytes   int64         `json:"size_bytes"`
	Status      string        `json:"status"`
	UploadedAt  time.Time     `json:"uploaded_at"`
	VerifiedAt  *time.Time    `json:"verified_at,omitempty"`
}

type consentResponse struct {
	ID                id.ConsentID `json:"id"`
	Type              string       `json:"type"`
	Granted           bool         `json:"granted"`
	Active            bool         `json:"active"`
	DisclosureVersion string       `json:"disclosure_version"`
	GrantedAt         time.Time    `json:"granted_at"`
	RevokedAt         *time.Time   `json:"revoked_at,omitempty"`
}

// applicationResponse is the public view of an application. The national id
// is never returned and the email is masked.
type applicationResponse struct {
	ID                   id.ApplicationID   `json:"id"`
	Status               string             `json:"status"`
	FirstName            string             `json:"first_name"`
	LastName             string             `json:"last_name"`
	Email                string             `json:"email"`
	EmailVerified        bool               `json:"email_verified"`
	PhoneVerified        bool               `json:"phone_verified"`
	CustomerID           *id.CustomerID     `json:"customer_id,omitempty"`
	AccountNumber        string             `json:"account_number,omitempty"`
	AssignedTo           *id.UserID         `json:"assigned_to,omitempty"`
	ReviewReason         string             `json:"review_reason,omitempty"`
	RequiresManualReview bool               `json:"requires_manual_review"`
	MarkedForDeletion    bool               `json:"marked_for_deletion"`
	Anonymized           bool               `json:"anonymized"`
	Documents            []documentResponse `json:"documents"`
	Consents             []consentResponse  `json:"consents"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
	SubmittedAt          *time.Time         `json:"submitted_at,omitempty"`
	ApprovedAt           *time.Time         `json:"approved_at,omitempty"`
	RejectedAt           *time.Time         `json:"rejected_at,omitempty"`
	RetentionUntil       *time.Time         `json:"retention_until,omitempty"`
	Version              int64              `json:"version"`
}

func toApplicationResponse(app *models.Application) applicationResponse {
	resp := applicationResponse{
		ID:                   app.ID,
		Status:               app.Status().String(),
		FirstName:            app.Personal.FirstName,
		LastName:             app.Personal.LastName,
		Email:                privacy.MaskEmail(app.Contact.Email),
		EmailVerified:        app.EmailVerified,
		PhoneVerified:        app.PhoneVerified,
		CustomerID:           app.CustomerID,
		AccountNumber:        app.AccountNumber,
		AssignedTo:           app.AssignedTo,
		ReviewReason:         app.ReviewReason,
		RequiresManualReview: app.RequiresManualReview,
		MarkedForDeletion:    app.MarkedForDeletion,
		Anonymized:           app.Anonymized,
		Documents:            []documentResponse{},
		Consents:             []consentResponse{},
		CreatedAt:            app.CreatedAt,
		UpdatedAt:            app.UpdatedAt,
		SubmittedAt:          app.SubmittedAt,
		ApprovedAt:           app.ApprovedAt,
		RejectedAt:           app.RejectedAt,
		RetentionUntil:       app.RetentionUntil,
		Version:              app.Version,
	}
	for _, d := range app.Documents() {
		resp.Documents = append(resp.Documents, documentResponse{
			ID:          d.ID,
			Kind:        string(d.Kind),
			StorageKey:  d.StorageKey,
			FileName:    d.FileName,
			ContentType: d.ContentType,
			SizeBytes:   d.SizeBytes,
			Status:      string(d.Status),
			UploadedAt:  d.UploadedAt,
			VerifiedAt:  d.VerifiedAt,
		})
	}
	for _, c := range app.Consents() {
		resp.Consents = append(resp.Consents, consentResponse{
			ID:                c.ID,
			Type:              string(c.Type),
			Granted:           c.Granted,
			Active:            c.IsActive(),
			DisclosureVersion: c.DisclosureVersion,
			GrantedAt:         c.GrantedAt,
			RevokedAt:         c.RevokedAt,
		})
	}
	return resp
}

type otpChallengeResponse struct {
	VerificationID id.VerificationID `json:"verification_id"`
	Channel        string            `json:"channel"`
	ExpiresAt      time.Time         `json:"expires_at"`
}

func toOTPChallengeResponse(c *onboarding.OTPChallenge) otpChallengeResponse {
	return otpChallengeResponse{
		VerificationID: c.VerificationID,
		Channel:        c.Channel.String(),
		ExpiresAt:      c.ExpiresAt,
	}
}

type sessionResponse struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	Role         string    `json:"role"`
	ExpiresAt    time.Time `json:"expires_at"`
	RefreshToken string    `json:"refresh_token"`
}

func toSessionResponse(p token.Pair) sessionResponse {
	return sessionResponse{
		AccessToken:  p.Access.Token,
		TokenType:    "Bearer",
		Role:         p.Access.Role.String(),
		ExpiresAt:    p.Access.ExpiresAt,
		RefreshToken: p.Refresh.Token,
	}
}

type verifyOTPResponse struct {
	Application applicationResponse `json:"application"`
	Session     sessionResponse     `json:"session"`
}
