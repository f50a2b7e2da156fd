package models

import (
	"strings"
	"time"

	id "onboarding/pkg/domain"
	dErrors "onboarding/pkg/domain-errors"
)

// DocumentKind identifies one of the documents an applicant must provide.
type DocumentKind string

const (
	DocumentKindIdentity       DocumentKind = "ID_DOCUMENT"
	DocumentKindProofOfAddress DocumentKind = "PROOF_OF_ADDRESS"
)

// RequiredDocumentKinds must all be attached before submission.
var RequiredDocumentKinds = []DocumentKind{DocumentKindIdentity, DocumentKindProofOfAddress}

func ParseDocumentKind(s string) (DocumentKind, error) {
	k := DocumentKind(s)
	if !k.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown document kind: "+s)
	}
	return k, nil
}

func (k DocumentKind) IsValid() bool {
	return k == DocumentKindIdentity || k == DocumentKindProofOfAddress
}

// DocumentStatus moves from uploaded to either verified or rejected.
type DocumentStatus string

const (
	DocumentStatusUploaded DocumentStatus = "UPLOADED"
	DocumentStatusVerified DocumentStatus = "VERIFIED"
	DocumentStatusRejected DocumentStatus = "REJECTED"
)

func ParseDocumentStatus(s string) (DocumentStatus, error) {
	switch st := DocumentStatus(s); st {
	case DocumentStatusUploaded, DocumentStatusVerified, DocumentStatusRejected:
		return st, nil
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, "unknown document status: "+s)
}

// Document references a file held in the binary object store.
type Document struct {
	ID          id.DocumentID
	Kind        DocumentKind
	StorageKey  string
	FileName    string
	ContentType string
	SizeBytes   int64
	Status      DocumentStatus
	UploadedAt  time.Time
	VerifiedAt  *time.Time
	VerifiedBy  *id.UserID
}

// NewDocument builds an uploaded document after checking its metadata.
func NewDocument(kind DocumentKind, storageKey, fileName, contentType string, sizeBytes int64, now time.Time) (Document, error) {
	if !kind.IsValid() {
		return Document{}, dErrors.New(dErrors.CodeInvalidInput, "invalid document kind")
	}
	if strings.TrimSpace(storageKey) == "" {
		return Document{}, dErrors.New(dErrors.CodeValidation, "storage key is required")
	}
	if sizeBytes <= 0 {
		return Document{}, dErrors.New(dErrors.CodeValidation, "document size must be positive")
	}
	return Document{
		ID:          id.NewDocumentID(),
		Kind:        kind,
		StorageKey:  storageKey,
		FileName:    fileName,
		ContentType: contentType,
		SizeBytes:   sizeBytes,
		Status:      DocumentStatusUploaded,
		UploadedAt:  now,
	}, nil
}

func (d *Document) markVerified(by id.UserID, now time.Time) {
	d.Status = DocumentStatusVerified
	d.VerifiedAt = &now
	d.VerifiedBy = &by
}
