// Package token issues and validates HS256 session tokens for applicants and
// employees, and pairs them with opaque single-use refresh tokens.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"onboarding/internal/platform/metrics"
	id "onboarding/pkg/domain"
	dErrors "onboarding/pkg/domain-errors"
	"onboarding/pkg/requestcontext"
)

// MinKeyBytes is the minimum HS256 key length accepted for signing.
const MinKeyBytes = 32

type binding int

const (
	bindApplication binding = iota
	bindUser
)

type profile struct {
	binding binding
	ttl     time.Duration
}

var profiles = map[Role]profile{
	RoleApplicant:         {binding: bindApplication, ttl: 30 * time.Minute},
	RoleComplianceOfficer: {binding: bindUser, ttl: 8 * time.Hour},
	RoleAdmin:             {binding: bindUser, ttl: time.Hour},
}

// Subject identifies who a token is issued to. Applicant tokens use
// ApplicationID; employee tokens use UserID and SessionID.
type Subject struct {
	ApplicationID id.ApplicationID
	UserID        id.UserID
	SessionID     id.SessionID
}

// Issued is a signed access token.
type Issued struct {
	Token     string
	Role      Role
	ExpiresAt time.Time
}

type Service struct {
	key     []byte
	issuer  string
	ttls    map[Role]time.Duration
	clock   func() time.Time
	random  io.Reader
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

// WithTTL overrides the lifetime of one role.
func WithTTL(role Role, ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttls[role] = ttl
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

// WithRandom sets the source refresh tokens are drawn from. It must be
// cryptographically secure and safe for concurrent use.
func WithRandom(r io.Reader) Option {
	return func(s *Service) {
		if r != nil {
			s.random = r
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New builds a token service. A secret shorter than MinKeyBytes is stretched
// deterministically and a warning is logged.
func New(secret, issuer string, opts ...Option) (*Service, error) {
	if secret == "" {
		return nil, errors.New("token secret is required")
	}
	if issuer == "" {
		return nil, errors.New("token issuer is required")
	}
	s := &Service{
		issuer: issuer,
		ttls:   make(map[Role]time.Duration, len(profiles)),
		clock:  time.Now,
		random: rand.Reader,
		logger: slog.Default(),
	}
	for role, p := range profiles {
		s.ttls[role] = p.ttl
	}
	for _, opt := range opts {
		opt(s)
	}
	s.key = []byte(secret)
	if len(s.key) < MinKeyBytes {
		s.logger.Warn("token secret shorter than minimum, padding deterministically",
			"configured_bytes", len(s.key),
			"minimum_bytes", MinKeyBytes,
		)
		s.key = padKey(s.key)
	}
	return s, nil
}

// padKey appends SHA-256 digests of the secret until the key is long enough.
func padKey(secret []byte) []byte {
	key := append([]byte(nil), secret...)
	sum := sha256.Sum256(secret)
	for len(key) < MinKeyBytes {
		key = append(key, sum[:]...)
		sum = sha256.Sum256(sum[:])
	}
	return key
}

// Issue signs a token for subject with the claim set and lifetime of role.
func (s *Service) Issue(role Role, subject Subject) (Issued, error) {
	p, ok := profiles[role]
	if !ok {
		return Issued{}, dErrors.New(dErrors.CodeBadRequest, "unknown role: "+string(role))
	}
	claims := Claims{Role: role}
	switch p.binding {
	case bindApplication:
		if subject.ApplicationID.IsNil() {
			return Issued{}, dErrors.New(dErrors.CodeBadRequest, "application id is required for "+string(role))
		}
		claims.ApplicationID = subject.ApplicationID.String()
		claims.Subject = claims.ApplicationID
	case bindUser:
		if subject.UserID.IsNil() || subject.SessionID.IsNil() {
			return Issued{}, dErrors.New(dErrors.CodeBadRequest, "user id and session id are required for "+string(role))
		}
		claims.UserID = subject.UserID.String()
		claims.SessionID = subject.SessionID.String()
		claims.Subject = claims.UserID
	}

	now := s.clock()
	expiresAt := now.Add(s.ttls[role])
	claims.RegisteredClaims.Issuer = s.issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.NotBefore = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(expiresAt)
	claims.ID = uuid.NewString()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return Issued{}, dErrors.Wrap(err, dErrors.CodeInternal, "sign token")
	}
	if s.metrics != nil {
		s.metrics.IncrementTokensIssued(string(role))
	}
	return Issued{Token: signed, Role: role, ExpiresAt: expiresAt}, nil
}

func (s *Service) IssueApplicantToken(appID id.ApplicationID) (Issued, error) {
	return s.Issue(RoleApplicant, Subject{ApplicationID: appID})
}

// IssueEmployeeToken issues a compliance officer or admin token.
func (s *Service) IssueEmployeeToken(role Role, userID id.UserID, sessionID id.SessionID) (Issued, error) {
	if !role.IsEmployee() {
		return Issued{}, dErrors.New(dErrors.CodeBadRequest, "not an employee role: "+string(role))
	}
	return s.Issue(role, Subject{UserID: userID, SessionID: sessionID})
}

// Parse verifies signature, issuer, expiry and role binding. All failures
// carry CodeTokenInvalid.
func (s *Service) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.Wrap(err, dErrors.CodeTokenInvalid, "token has expired")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeTokenInvalid, "invalid token")
	}
	if err := checkBinding(claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// Validate returns the claims of a valid token, or false. It never panics;
// expired tokens are logged at debug and tampered ones at warn.
func (s *Service) Validate(tokenString string) (claims *Claims, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("token validation panicked", "panic", fmt.Sprint(r))
			claims, ok = nil, false
		}
	}()
	claims, err := s.Parse(tokenString)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			s.logger.Debug("token expired")
		} else {
			s.logger.Warn("token rejected", "reason", dErrors.MessageOf(err), "error", err)
		}
		return nil, false
	}
	return claims, true
}

// Authenticate resolves a bearer token to the caller it identifies.
func (s *Service) Authenticate(tokenString string) (requestcontext.Principal, error) {
	claims, ok := s.Validate(tokenString)
	if !ok {
		return requestcontext.Principal{}, dErrors.New(dErrors.CodeTokenInvalid, "invalid or expired token")
	}
	p := requestcontext.Principal{Subject: claims.Subject, Role: claims.Role.String()}
	p.ApplicationID, _ = ApplicationIDOf(claims)
	p.UserID, _ = UserIDOf(claims)
	p.SessionID, _ = SessionIDOf(claims)
	return p, nil
}

func checkBinding(c *Claims) error {
	role, ok := RoleOf(c)
	if !ok {
		return dErrors.New(dErrors.CodeTokenInvalid, "token has unknown role")
	}
	switch profiles[role].binding {
	case bindApplication:
		if _, ok := ApplicationIDOf(c); !ok {
			return dErrors.New(dErrors.CodeTokenInvalid, "token missing application binding")
		}
	case bindUser:
		_, userOK := UserIDOf(c)
		_, sessionOK := SessionIDOf(c)
		if !userOK || !sessionOK {
			return dErrors.New(dErrors.CodeTokenInvalid, "token missing user binding")
		}
	}
	return nil
}
