package models

import (
	"fmt"
	"net/mail"
	"slices"
	"strings"
	"time"

	id "onboarding/pkg/domain"
	dErrors "onboarding/pkg/domain-errors"
)

const (
	approvedRetention = 5 * 365 * 24 * time.Hour
	rejectedRetention = 90 * 24 * time.Hour

	anonymizedName  = "ANONYMIZED"
	anonymizedSSN   = "000-00-0000"
	anonymizedPhone = "+00000000000"
)

// Address is the applicant's residential address.
type Address struct {
	Line1      string
	Line2      string
	City       string
	PostalCode string
	Country    string
}

// Personal holds identity data collected at creation.
type Personal struct {
	FirstName   string
	LastName    string
	DateOfBirth *time.Time
	SSN         string
	Nationality string
}

// Contact holds the channels OTPs are delivered to.
type Contact struct {
	Email   string
	Phone   string
	Address Address
}

// Application is the onboarding aggregate root. It is not safe for concurrent
// mutation; the repository's version check serializes writers.
type Application struct {
	ID       id.ApplicationID
	Personal Personal
	Contact  Contact

	EmailVerified bool
	PhoneVerified bool

	CustomerID    *id.CustomerID
	AccountNumber string

	AssignedTo           *id.UserID
	ReviewReason         string
	RequiresManualReview bool
	AdditionalInfo       string

	MarkedForDeletion bool
	Anonymized        bool
	RetentionUntil    *time.Time

	CreatedAt   time.Time
	UpdatedAt   time.Time
	SubmittedAt *time.Time
	ApprovedAt  *time.Time
	RejectedAt  *time.Time
	ApprovedBy  *id.UserID
	VerifiedBy  *id.UserID

	// Version is the persisted revision; zero means never saved.
	Version int64

	status    Status
	documents []Document
	consents  []Consent
	events    []Event
}

// NewApplication starts an onboarding case in INITIATED.
func NewApplication(personal Personal, contact Contact, now time.Time) (*Application, error) {
	personal.FirstName = strings.TrimSpace(personal.FirstName)
	personal.LastName = strings.TrimSpace(personal.LastName)
	personal.SSN = strings.TrimSpace(personal.SSN)
	contact.Email = strings.ToLower(strings.TrimSpace(contact.Email))
	contact.Phone = strings.TrimSpace(contact.Phone)

	if personal.FirstName == "" || personal.LastName == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "first and last name are required")
	}
	if personal.SSN == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "national id is required")
	}
	if _, err := mail.ParseAddress(contact.Email); err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "email is invalid")
	}
	if contact.Phone == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "phone is required")
	}

	app := &Application{
		ID:        id.NewApplicationID(),
		Personal:  personal,
		Contact:   contact,
		CreatedAt: now,
		UpdatedAt: now,
		status:    StatusInitiated,
	}
	app.record(ApplicationCreated{eventBase: newBase(app.ID, now)})
	return app, nil
}

// Restore rehydrates an application from storage without emitting events.
func Restore(a Application, status Status, documents []Document, consents []Consent) *Application {
	a.status = status
	a.documents = slices.Clone(documents)
	a.consents = slices.Clone(consents)
	a.events = nil
	return &a
}

func (a *Application) Status() Status { return a.status }

// Documents returns a copy of the attached documents in upload order.
func (a *Application) Documents() []Document { return slices.Clone(a.documents) }

// Consents returns a copy of the consent history in grant order.
func (a *Application) Consents() []Consent { return slices.Clone(a.consents) }

// PendingEvents returns the events not yet dispatched, oldest first.
func (a *Application) PendingEvents() []Event { return slices.Clone(a.events) }

// ClearEvents drops pending events once they have been published.
func (a *Application) ClearEvents() { a.events = nil }

// DocumentOf returns the current document of the given kind.
func (a *Application) DocumentOf(kind DocumentKind) (Document, bool) {
	for _, d := range a.documents {
		if d.Kind == kind {
			return d, true
		}
	}
	return Document{}, false
}

// HasActiveConsent reports whether the latest consent of t is active.
func (a *Application) HasActiveConsent(t ConsentType) bool {
	for i := len(a.consents) - 1; i >= 0; i-- {
		if a.consents[i].Type == t {
			return a.consents[i].IsActive()
		}
	}
	return false
}

// VerifyChannel marks a channel as proven. Only the first verification while
// INITIATED advances the status and emits OtpVerified.
func (a *Application) VerifyChannel(channel Channel, now time.Time) error {
	switch channel {
	case ChannelEmail:
		if a.EmailVerified {
			return nil
		}
		a.EmailVerified = true
	case ChannelPhone:
		if a.PhoneVerified {
			return nil
		}
		a.PhoneVerified = true
	default:
		return dErrors.New(dErrors.CodeInvalidInput, "channel must be EMAIL or PHONE")
	}
	a.UpdatedAt = now
	if a.status == StatusInitiated {
		a.status = StatusOtpVerified
		a.record(OtpVerified{eventBase: newBase(a.ID, now), Channel: channel})
	}
	return nil
}

// AddDocument attaches doc, replacing any document of the same kind.
func (a *Application) AddDocument(doc Document, now time.Time) error {
	if err := a.requireStatus("add document to", StatusOtpVerified, StatusDocumentsUploaded); err != nil {
		return err
	}
	if !doc.Kind.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid document kind")
	}
	replaced := false
	a.documents = slices.DeleteFunc(a.documents, func(d Document) bool {
		if d.Kind == doc.Kind {
			replaced = true
			return true
		}
		return false
	})
	a.documents = append(a.documents, doc)
	if a.hasRequiredDocuments() {
		a.status = StatusDocumentsUploaded
	}
	a.UpdatedAt = now
	a.record(DocumentUploaded{
		eventBase:  newBase(a.ID, now),
		DocumentID: doc.ID,
		Kind:       doc.Kind,
		Replaced:   replaced,
	})
	return nil
}

// AddConsent records a consent answer in any status.
func (a *Application) AddConsent(c Consent, now time.Time) error {
	if !c.Type.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid consent type")
	}
	a.consents = append(a.consents, c)
	a.UpdatedAt = now
	a.record(ConsentGranted{
		eventBase:         newBase(a.ID, now),
		ConsentID:         c.ID,
		ConsentType:       c.Type,
		Granted:           c.Granted,
		DisclosureVersion: c.DisclosureVersion,
	})
	return nil
}

// RevokeConsent stamps the revoke time on the active consent of type t.
func (a *Application) RevokeConsent(t ConsentType, now time.Time) error {
	for i := len(a.consents) - 1; i >= 0; i-- {
		c := &a.consents[i]
		if c.Type != t || !c.IsActive() {
			continue
		}
		c.RevokedAt = &now
		a.UpdatedAt = now
		a.record(ConsentRevoked{eventBase: newBase(a.ID, now), ConsentID: c.ID, ConsentType: t})
		return nil
	}
	return dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("no active %s consent", t))
}

// Submit hands the application to compliance review.
func (a *Application) Submit(now time.Time) error {
	if err := a.requireStatus("submit", StatusDocumentsUploaded); err != nil {
		return err
	}
	if !a.hasRequiredDocuments() {
		return dErrors.New(dErrors.CodeInvalidStateTransition, "cannot submit application without all required documents")
	}
	for _, t := range MandatoryConsentTypes {
		if !a.HasActiveConsent(t) {
			return dErrors.New(dErrors.CodeInvalidStateTransition, fmt.Sprintf("cannot submit application without active %s consent", t))
		}
	}
	a.status = StatusSubmitted
	a.SubmittedAt = &now
	a.UpdatedAt = now
	a.record(ApplicationSubmitted{eventBase: newBase(a.ID, now)})
	return nil
}

// AssignTo sets the reviewer, moving a submitted application into review.
func (a *Application) AssignTo(reviewer id.UserID, now time.Time) error {
	if err := a.requireStatus("assign", StatusSubmitted, StatusUnderReview); err != nil {
		return err
	}
	if reviewer.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "reviewer is required")
	}
	a.AssignedTo = &reviewer
	if a.status == StatusSubmitted {
		a.status = StatusUnderReview
	}
	a.UpdatedAt = now
	a.record(ApplicationAssigned{eventBase: newBase(a.ID, now), ReviewerID: reviewer})
	return nil
}

// Verify records that the reviewer checked every attached document.
func (a *Application) Verify(by id.UserID, now time.Time) error {
	if err := a.requireStatus("verify", StatusUnderReview); err != nil {
		return err
	}
	for i := range a.documents {
		a.documents[i].markVerified(by, now)
	}
	a.status = StatusVerified
	a.VerifiedBy = &by
	a.UpdatedAt = now
	a.record(ApplicationVerified{eventBase: newBase(a.ID, now), VerifiedBy: by})
	return nil
}

func (a *Application) RequestMoreInfo(reason string, now time.Time) error {
	if err := a.requireStatus("request more info for", StatusUnderReview); err != nil {
		return err
	}
	a.status = StatusRequiresMoreInfo
	a.ReviewReason = reason
	a.UpdatedAt = now
	a.record(MoreInfoRequested{eventBase: newBase(a.ID, now), Reason: reason})
	return nil
}

// FlagSuspicious routes the application to manual review.
func (a *Application) FlagSuspicious(reason string, now time.Time) error {
	if err := a.requireStatus("flag", StatusUnderReview); err != nil {
		return err
	}
	a.status = StatusFlaggedSuspicious
	a.ReviewReason = reason
	a.RequiresManualReview = true
	a.UpdatedAt = now
	a.record(ApplicationFlagged{eventBase: newBase(a.ID, now), Reason: reason})
	return nil
}

func (a *Application) ProvideMoreInfo(info string, now time.Time) error {
	if err := a.requireStatus("provide more info for", StatusRequiresMoreInfo); err != nil {
		return err
	}
	a.status = StatusUnderReview
	a.ReviewReason = ""
	a.AdditionalInfo = info
	a.UpdatedAt = now
	a.record(AdditionalInfoProvided{eventBase: newBase(a.ID, now), Info: info})
	return nil
}

// Approve issues the customer id and account number. Retention runs five years.
func (a *Application) Approve(customerID id.CustomerID, accountNumber string, by id.UserID, now time.Time) error {
	if err := a.requireStatus("approve", StatusVerified, StatusFlaggedSuspicious); err != nil {
		return err
	}
	if customerID.IsNil() || strings.TrimSpace(accountNumber) == "" {
		return dErrors.New(dErrors.CodeValidation, "customer id and account number are required")
	}
	retention := now.Add(approvedRetention)
	a.status = StatusApproved
	a.CustomerID = &customerID
	a.AccountNumber = accountNumber
	a.ApprovedBy = &by
	a.ApprovedAt = &now
	a.RetentionUntil = &retention
	a.UpdatedAt = now
	a.record(ApplicationApproved{
		eventBase:     newBase(a.ID, now),
		CustomerID:    customerID,
		AccountNumber: accountNumber,
		ApprovedBy:    by,
	})
	return nil
}

// Reject closes the application. A non-empty reason is mandatory.
func (a *Application) Reject(reason string, now time.Time) error {
	if err := a.requireStatus("reject", StatusUnderReview, StatusVerified, StatusFlaggedSuspicious); err != nil {
		return err
	}
	if strings.TrimSpace(reason) == "" {
		return dErrors.New(dErrors.CodeValidation, "rejection reason is required")
	}
	retention := now.Add(rejectedRetention)
	a.status = StatusRejected
	a.ReviewReason = reason
	a.RejectedAt = &now
	a.RetentionUntil = &retention
	a.UpdatedAt = now
	a.record(ApplicationRejected{eventBase: newBase(a.ID, now), Reason: reason})
	return nil
}

// MarkForDeletion records an erasure request. Repeated calls are no-ops.
func (a *Application) MarkForDeletion(now time.Time) error {
	if err := a.requireStatus("mark for deletion", StatusRejected); err != nil {
		return err
	}
	if a.MarkedForDeletion {
		return nil
	}
	a.MarkedForDeletion = true
	a.UpdatedAt = now
	a.record(DataDeletionRequested{eventBase: newBase(a.ID, now)})
	return nil
}

// Anonymize overwrites personal data with placeholders. It emits no event.
func (a *Application) Anonymize(now time.Time) {
	a.Personal = Personal{
		FirstName: anonymizedName,
		LastName:  anonymizedName,
		SSN:       anonymizedSSN,
	}
	a.Contact = Contact{
		Email: "anonymized+" + a.ID.String() + "@invalid",
		Phone: anonymizedPhone,
	}
	for i := range a.consents {
		a.consents[i].IPAddress = ""
	}
	for i := range a.documents {
		a.documents[i].FileName = ""
	}
	a.Anonymized = true
	a.UpdatedAt = now
}

func (a *Application) hasRequiredDocuments() bool {
	for _, kind := range RequiredDocumentKinds {
		if _, ok := a.DocumentOf(kind); !ok {
			return false
		}
	}
	return true
}

func (a *Application) requireStatus(action string, allowed ...Status) error {
	if slices.Contains(allowed, a.status) {
		return nil
	}
	return dErrors.New(dErrors.CodeInvalidStateTransition,
		fmt.Sprintf("cannot %s application in status %s", action, a.status))
}

func (a *Application) record(e Event) {
	a.events = append(a.events, e)
}
