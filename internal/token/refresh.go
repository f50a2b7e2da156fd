package token

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"time"

	dErrors "onboarding/pkg/domain-errors"
	"onboarding/pkg/platform/sentinel"
)

const (
	refreshTokenBytes = 32
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// RefreshToken pairs the opaque value handed to the caller with the hash kept
// server-side. Only Hash is ever persisted.
type RefreshToken struct {
	Token string
	Hash  string
}

// RefreshRecord is what a RefreshStore keeps per refresh token.
type RefreshRecord struct {
	Hash      string
	Role      Role
	Subject   Subject
	ExpiresAt time.Time
}

// RefreshStore persists refresh token hashes. Consume must return and remove
// the record atomically so a token is usable once.
type RefreshStore interface {
	Save(ctx context.Context, record RefreshRecord) error
	Consume(ctx context.Context, hash string, now time.Time) (*RefreshRecord, error)
}

// Pair is an access token with its refresh token.
type Pair struct {
	Access  Issued
	Refresh RefreshToken
}

// IssueRefreshToken returns an opaque token drawn from the service's random
// source and its SHA-256 hash.
func (s *Service) IssueRefreshToken() (RefreshToken, error) {
	return issueRefreshToken(s.random)
}

func issueRefreshToken(r io.Reader) (RefreshToken, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return RefreshToken{}, dErrors.Wrap(err, dErrors.CodeInternal, "generate refresh token")
	}
	opaque := base64.RawURLEncoding.EncodeToString(buf)
	return RefreshToken{Token: opaque, Hash: HashRefreshToken(opaque)}, nil
}

// HashRefreshToken is the lookup key for an opaque refresh token.
func HashRefreshToken(opaque string) string {
	sum := sha256.Sum256([]byte(opaque))
	return hex.EncodeToString(sum[:])
}

// Sessions issues and rotates access/refresh token pairs.
type Sessions struct {
	tokens     *Service
	store      RefreshStore
	refreshTTL time.Duration
}

func NewSessions(tokens *Service, store RefreshStore, refreshTTL time.Duration) (*Sessions, error) {
	if tokens == nil {
		return nil, errors.New("token service is required")
	}
	if store == nil {
		return nil, errors.New("refresh store is required")
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	return &Sessions{tokens: tokens, store: store, refreshTTL: refreshTTL}, nil
}

// Start issues a new pair for subject and stores the refresh hash.
func (s *Sessions) Start(ctx context.Context, role Role, subject Subject) (Pair, error) {
	access, err := s.tokens.Issue(role, subject)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := s.tokens.IssueRefreshToken()
	if err != nil {
		return Pair{}, err
	}
	record := RefreshRecord{
		Hash:      refresh.Hash,
		Role:      role,
		Subject:   subject,
		ExpiresAt: s.tokens.clock().Add(s.refreshTTL),
	}
	if err := s.store.Save(ctx, record); err != nil {
		return Pair{}, dErrors.Wrap(err, dErrors.CodeInternal, "store refresh token")
	}
	return Pair{Access: access, Refresh: refresh}, nil
}

// Refresh consumes opaque and issues a fresh pair for the same subject.
// Unknown, expired and reused tokens all fail with CodeTokenInvalid.
func (s *Sessions) Refresh(ctx context.Context, opaque string) (Pair, error) {
	if opaque == "" {
		return Pair{}, dErrors.New(dErrors.CodeTokenInvalid, "refresh token is required")
	}
	record, err := s.store.Consume(ctx, HashRefreshToken(opaque), s.tokens.clock())
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) || errors.Is(err, sentinel.ErrExpired) {
			s.tokens.logger.WarnContext(ctx, "refresh token rejected", "reason", err.Error())
			return Pair{}, dErrors.New(dErrors.CodeTokenInvalid, "invalid refresh token")
		}
		return Pair{}, dErrors.Wrap(err, dErrors.CodeInternal, "consume refresh token")
	}
	return s.Start(ctx, record.Role, record.Subject)
}

// Revoke drops a refresh token. Unknown tokens are ignored.
func (s *Sessions) Revoke(ctx context.Context, opaque string) error {
	_, err := s.store.Consume(ctx, HashRefreshToken(opaque), s.tokens.clock())
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) && !errors.Is(err, sentinel.ErrExpired) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "revoke refresh token")
	}
	return nil
}
