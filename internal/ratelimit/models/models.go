package models

import "time"

// Resource names a protected operation. Counters are kept per (key, resource).
type Resource string

const (
	ResourceApplicationCreate Resource = "application_create"
	ResourceOTPSend           Resource = "otp_send"
	ResourceOTPVerify         Resource = "otp_verify"
	ResourceDocumentUpload    Resource = "document_upload"
)

func (r Resource) String() string { return string(r) }

// KeySource says which request attribute identifies the caller for a limit.
type KeySource string

const (
	KeySourceIP          KeySource = "ip"
	KeySourceApplication KeySource = "application"
)

// Decision is what a check concluded for one counter. RetryAfter is the
// wait in whole seconds and is zero while requests are allowed.
type Decision struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"`
}

// Check is one (key, resource, limit, window) tuple evaluated by CheckAll.
type Check struct {
	Key      string
	Resource Resource
	Limit    int
	Window   time.Duration
}
