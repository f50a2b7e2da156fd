package models

import (
	dErrors "onboarding/pkg/domain-errors"
)

// Status is the lifecycle state of an onboarding application.
type Status string

const (
	StatusInitiated         Status = "INITIATED"
	StatusOtpVerified       Status = "OTP_VERIFIED"
	StatusDocumentsUploaded Status = "DOCUMENTS_UPLOADED"
	StatusSubmitted         Status = "SUBMITTED"
	StatusUnderReview       Status = "UNDER_REVIEW"
	StatusVerified          Status = "VERIFIED"
	StatusRequiresMoreInfo  Status = "REQUIRES_MORE_INFO"
	StatusFlaggedSuspicious Status = "FLAGGED_SUSPICIOUS"
	StatusApproved          Status = "APPROVED"
	StatusRejected          Status = "REJECTED"
)

// statusRank orders the reachable states from initial to terminal.
var statusRank = map[Status]int{
	StatusInitiated:         0,
	StatusOtpVerified:       1,
	StatusDocumentsUploaded: 2,
	StatusSubmitted:         3,
	StatusUnderReview:       4,
	StatusVerified:          5,
	StatusRequiresMoreInfo:  6,
	StatusFlaggedSuspicious: 7,
	StatusApproved:          8,
	StatusRejected:          9,
}

// ParseStatus validates a persisted or external status value.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown application status: "+s)
	}
	return st, nil
}

func (s Status) IsValid() bool {
	_, ok := statusRank[s]
	return ok
}

// Rank returns the position of s in the lifecycle order, or -1 when unknown.
func (s Status) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

func (s Status) String() string {
	return string(s)
}

// Channel is an OTP delivery channel whose ownership the applicant proves.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelPhone Channel = "PHONE"
)

func ParseChannel(s string) (Channel, error) {
	c := Channel(s)
	if !c.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "channel must be EMAIL or PHONE")
	}
	return c, nil
}

func (c Channel) IsValid() bool {
	return c == ChannelEmail || c == ChannelPhone
}

func (c Channel) String() string {
	return string(c)
}
