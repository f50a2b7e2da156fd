// Package otp issues and checks one-time passwords that prove an applicant
// controls an email address or phone number.
//
// Service is stateless: it generates codes, hashes them and compares
// candidates. Attempt counting and expiry live on Verification records.
package otp

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"time"

	dErrors "onboarding/pkg/domain-errors"
)

const (
	DefaultLength   = 6
	DefaultValidity = 10 * time.Minute
	maxLength       = 10
)

// Hasher is a one-way adaptive hash for codes.
type Hasher interface {
	Hash(plain string) (string, error)
	Matches(plain, hash string) bool
}

type Service struct {
	hasher   Hasher
	random   io.Reader
	clock    func() time.Time
	length   int
	validity time.Duration
	space    *big.Int
	logger   *slog.Logger
}

type Option func(*Service)

// WithRandom replaces crypto/rand.Reader. The reader must be safe for
// concurrent use.
func WithRandom(r io.Reader) Option {
	return func(s *Service) {
		if r != nil {
			s.random = r
		}
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithLength(n int) Option {
	return func(s *Service) { s.length = n }
}

func WithValidity(d time.Duration) Option {
	return func(s *Service) { s.validity = d }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(hasher Hasher, opts ...Option) (*Service, error) {
	if hasher == nil {
		return nil, errors.New("otp hasher is required")
	}
	s := &Service{
		hasher:   hasher,
		random:   rand.Reader,
		clock:    time.Now,
		length:   DefaultLength,
		validity: DefaultValidity,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.length < 4 || s.length > maxLength {
		return nil, fmt.Errorf("otp length must be between 4 and %d, got %d", maxLength, s.length)
	}
	if s.validity <= 0 {
		return nil, errors.New("otp validity must be positive")
	}
	s.space = new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(s.length)), nil)
	return s, nil
}

// GenerateCode returns a zero-padded numeric code drawn uniformly from
// [0, 10^length).
func (s *Service) GenerateCode() (string, error) {
	n, err := rand.Int(s.random, s.space)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "generate otp")
	}
	return fmt.Sprintf("%0*d", s.length, n), nil
}

// Hash returns the stored form of code.
func (s *Service) Hash(code string) (string, error) {
	if strings.TrimSpace(code) == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "otp code is required")
	}
	hash, err := s.hasher.Hash(code)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "hash otp")
	}
	return hash, nil
}

// Verify compares candidate with hash using the hasher's own matcher.
// Empty arguments are rejected rather than reported as a mismatch.
func (s *Service) Verify(candidate, hash string) (bool, error) {
	if candidate == "" || hash == "" {
		return false, dErrors.New(dErrors.CodeBadRequest, "otp code and hash are required")
	}
	return s.hasher.Matches(candidate, hash), nil
}

// ExpiryFromNow is the expiry instant for a code issued now.
func (s *Service) ExpiryFromNow() time.Time {
	return s.clock().Add(s.validity)
}

// IsExpired reports whether expiresAt has passed.
func (s *Service) IsExpired(expiresAt time.Time) bool {
	return s.clock().After(expiresAt)
}

func (s *Service) Now() time.Time {
	return s.clock()
}
