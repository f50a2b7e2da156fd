package models

import (
	"time"

	id "onboarding/pkg/domain"
)

// EventType is the stable name of a domain event.
type EventType string

const (
	EventApplicationCreated     EventType = "ApplicationCreated"
	EventOtpVerified            EventType = "OtpVerified"
	EventDocumentUploaded       EventType = "DocumentUploaded"
	EventConsentGranted         EventType = "ConsentGranted"
	EventConsentRevoked         EventType = "ConsentRevoked"
	EventApplicationSubmitted   EventType = "ApplicationSubmitted"
	EventApplicationAssigned    EventType = "ApplicationAssigned"
	EventApplicationVerified    EventType = "ApplicationVerified"
	EventMoreInfoRequested      EventType = "MoreInfoRequested"
	EventApplicationFlagged     EventType = "ApplicationFlagged"
	EventAdditionalInfoProvided EventType = "AdditionalInfoProvided"
	EventApplicationApproved    EventType = "ApplicationApproved"
	EventApplicationRejected    EventType = "ApplicationRejected"
	EventDataDeletionRequested  EventType = "DataDeletionRequested"
)

// Event is an immutable fact emitted by the aggregate. Exported fields of the
// concrete types form the payload; identity and time come from the envelope.
type Event interface {
	EventID() id.EventID
	EventType() EventType
	AggregateID() id.ApplicationID
	OccurredAt() time.Time
}

type eventBase struct {
	id  id.EventID
	app id.ApplicationID
	at  time.Time
}

func newBase(app id.ApplicationID, at time.Time) eventBase {
	return eventBase{id: id.NewEventID(), app: app, at: at}
}

func (b eventBase) EventID() id.EventID           { return b.id }
func (b eventBase) AggregateID() id.ApplicationID { return b.app }
func (b eventBase) OccurredAt() time.Time         { return b.at }

type ApplicationCreated struct {
	eventBase
}

func (ApplicationCreated) EventType() EventType { return EventApplicationCreated }

type OtpVerified struct {
	eventBase
	Channel Channel `json:"channel"`
}

func (OtpVerified) EventType() EventType { return EventOtpVerified }

type DocumentUploaded struct {
	eventBase
	DocumentID id.DocumentID `json:"document_id"`
	Kind       DocumentKind  `json:"kind"`
	Replaced   bool          `json:"replaced"`
}

func (DocumentUploaded) EventType() EventType { return EventDocumentUploaded }

type ConsentGranted struct {
	eventBase
	ConsentID         id.ConsentID `json:"consent_id"`
	ConsentType       ConsentType  `json:"consent_type"`
	Granted           bool         `json:"granted"`
	DisclosureVersion string       `json:"disclosure_version"`
}

func (ConsentGranted) EventType() EventType { return EventConsentGranted }

type ConsentRevoked struct {
	eventBase
	ConsentID   id.ConsentID `json:"consent_id"`
	ConsentType ConsentType  `json:"consent_type"`
}

func (ConsentRevoked) EventType() EventType { return EventConsentRevoked }

type ApplicationSubmitted struct {
	eventBase
}

func (ApplicationSubmitted) EventType() EventType { return EventApplicationSubmitted }

type ApplicationAssigned struct {
	eventBase
	ReviewerID id.UserID `json:"reviewer_id"`
}

func (ApplicationAssigned) EventType() EventType { return EventApplicationAssigned }

type ApplicationVerified struct {
	eventBase
	VerifiedBy id.UserID `json:"verified_by"`
}

func (ApplicationVerified) EventType() EventType { return EventApplicationVerified }

type MoreInfoRequested struct {
	eventBase
	Reason string `json:"reason"`
}

func (MoreInfoRequested) EventType() EventType { return EventMoreInfoRequested }

type ApplicationFlagged struct {
	eventBase
	Reason string `json:"reason"`
}

func (ApplicationFlagged) EventType() EventType { return EventApplicationFlagged }

type AdditionalInfoProvided struct {
	eventBase
	Info string `json:"info"`
}

func (AdditionalInfoProvided) EventType() EventType { return EventAdditionalInfoProvided }

type ApplicationApproved struct {
	eventBase
	CustomerID    id.CustomerID `json:"customer_id"`
	AccountNumber string        `json:"account_number"`
	ApprovedBy    id.UserID     `json:"approved_by"`
}

func (ApplicationApproved) EventType() EventType { return EventApplicationApproved }

type ApplicationRejected struct {
	eventBase
	Reason string `json:"reason"`
}

func (ApplicationRejected) EventType() EventType { return EventApplicationRejected }

type DataDeletionRequested struct {
	eventBase
}

func (DataDeletionRequested) EventType() EventType { return EventDataDeletionRequested }
