package duplicate

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	dErrors "onboarding/pkg/domain-errors"
)

// Type names the identifying field that already belongs to another application.
type Type string

const (
	TypeSSN   Type = "SSN"
	TypeEmail Type = "EMAIL"
	TypePhone Type = "PHONE"
	TypeNone  Type = "NONE"
)

func (t Type) String() string { return string(t) }

// Lookup answers existence questions against stored applications.
type Lookup interface {
	ExistsBySSN(ctx context.Context, ssn string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByPhone(ctx context.Context, phone string) (bool, error)
}

// Detector checks identifying fields in fixed priority order: SSN, email, phone.
type Detector struct {
	lookup Lookup
	logger *slog.Logger
}

type Option func(*Detector)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func New(lookup Lookup, opts ...Option) (*Detector, error) {
	if lookup == nil {
		return nil, errors.New("duplicate lookup is required")
	}
	d := &Detector{lookup: lookup, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

type check struct {
	kind  Type
	value string
	exist func(context.Context, string) (bool, error)
}

func (d *Detector) checks(ssn, email, phone string) ([]check, error) {
	ssn, email, phone = strings.TrimSpace(ssn), strings.TrimSpace(email), strings.TrimSpace(phone)
	if ssn == "" || email == "" || phone == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "ssn, email and phone are required for duplicate checks")
	}
	return []check{
		{TypeSSN, ssn, d.lookup.ExistsBySSN},
		{TypeEmail, email, d.lookup.ExistsByEmail},
		{TypePhone, phone, d.lookup.ExistsByPhone},
	}, nil
}

// Check returns the highest-priority field that is already registered, or
// TypeNone. Lookups stop at the first match.
func (d *Detector) Check(ctx context.Context, ssn, email, phone string) (Type, error) {
	checks, err := d.checks(ssn, email, phone)
	if err != nil {
		return TypeNone, err
	}
	for _, c := range checks {
		found, err := c.exist(ctx, c.value)
		if err != nil {
			return TypeNone, dErrors.Wrap(err, dErrors.CodeInternal, "duplicate lookup failed")
		}
		if found {
			d.logger.InfoContext(ctx, "duplicate identity detected", "field", c.kind)
			return c.kind, nil
		}
	}
	return TypeNone, nil
}

// FindAll runs every lookup concurrently and returns all matches in priority
// order. An empty result means no duplicates.
func (d *Detector) FindAll(ctx context.Context, ssn, email, phone string) ([]Type, error) {
	checks, err := d.checks(ssn, email, phone)
	if err != nil {
		return nil, err
	}
	found := make([]bool, len(checks))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range checks {
		g.Go(func() error {
			ok, err := c.exist(gctx, c.value)
			if err != nil {
				return err
			}
			found[i] = ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "duplicate lookup failed")
	}

	var matches []Type
	for i, ok := range found {
		if ok {
			matches = append(matches, checks[i].kind)
		}
	}
	return matches, nil
}

// Error converts a detected duplicate into a duplicate_identity error.
// TypeNone yields nil.
func Error(t Type) error {
	if t == TypeNone || t == "" {
		return nil
	}
	return dErrors.New(dErrors.CodeDuplicateIdentity, "an application with this "+strings.ToLower(string(t))+" already exists")
}
