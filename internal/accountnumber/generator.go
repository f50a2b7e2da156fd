// Package accountnumber issues IBAN-style account numbers: country code, two
// check digits, bank code and a random ten digit body, checked with ISO 7064
// mod 97-10.
package accountnumber

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"strings"

	"onboarding/internal/platform/metrics"
	dErrors "onboarding/pkg/domain-errors"
)

const (
	bodyLength = 10
	// MaxAttempts bounds EnsureUnique before it gives up.
	MaxAttempts = 10
)

var bodyRange = new(big.Int).Exp(big.NewInt(10), big.NewInt(bodyLength), nil)

// ExistsFunc reports whether an account number is already issued.
type ExistsFunc func(ctx context.Context, accountNumber string) (bool, error)

type Generator struct {
	countryCode string
	bankCode    string
	random      io.Reader
	maxAttempts int
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

type Option func(*Generator)

// WithRandom replaces crypto/rand as the source of account bodies.
func WithRandom(r io.Reader) Option {
	return func(g *Generator) {
		if r != nil {
			g.random = r
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Generator) {
		g.metrics = m
	}
}

// New creates a generator for a two-letter country code and a four character
// alphanumeric bank code.
func New(countryCode, bankCode string, opts ...Option) (*Generator, error) {
	countryCode = strings.ToUpper(strings.TrimSpace(countryCode))
	bankCode = strings.ToUpper(strings.TrimSpace(bankCode))
	if len(countryCode) != 2 || !isLetters(countryCode) {
		return nil, errors.New("country code must be two letters")
	}
	if len(bankCode) != 4 || !isAlphanumeric(bankCode) {
		return nil, errors.New("bank code must be four alphanumeric characters")
	}
	g := &Generator{
		countryCode: countryCode,
		bankCode:    bankCode,
		random:      rand.Reader,
		maxAttempts: MaxAttempts,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Generate returns a fresh account number. Uniqueness is not checked; use
// EnsureUnique for numbers that will be issued.
func (g *Generator) Generate() (string, error) {
	n, err := rand.Int(g.random, bodyRange)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate account number")
	}
	body := fmt.Sprintf("%0*d", bodyLength, n.Int64())
	check := CalculateCheckDigits(g.bankCode, body, g.countryCode)
	return g.countryCode + check + g.bankCode + body, nil
}

// EnsureUnique generates numbers until exists reports one as free. After
// maxAttempts collisions it fails with generation_exhausted and alerts.
func (g *Generator) EnsureUnique(ctx context.Context, exists ExistsFunc) (string, error) {
	if exists == nil {
		return "", dErrors.New(dErrors.CodeBadRequest, "uniqueness check is required")
	}
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		candidate, err := g.Generate()
		if err != nil {
			return "", err
		}
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to check account number uniqueness")
		}
		if !taken {
			if g.metrics != nil {
				g.metrics.IncrementAccountNumbersGenerated()
			}
			return candidate, nil
		}
		g.logger.DebugContext(ctx, "account number collision", "attempt", attempt)
	}

	if g.metrics != nil {
		g.metrics.IncrementAccountNumberExhausted()
	}
	g.logger.ErrorContext(ctx, "account number generation exhausted",
		"alert", true,
		"attempts", g.maxAttempts,
		"country_code", g.countryCode,
		"bank_code", g.bankCode,
	)
	return "", dErrors.New(dErrors.CodeGenerationExhausted,
		fmt.Sprintf("could not generate a unique account number after %d attempts", g.maxAttempts))
}

// CalculateCheckDigits returns the two check digits for bankCode+body in
// country: 98 minus the mod 97 remainder of bank+body+country+"00".
func CalculateCheckDigits(bankCode, body, countryCode string) string {
	rem := mod97(strings.ToUpper(bankCode + body + countryCode + "00"))
	return fmt.Sprintf("%02d", 98-rem)
}

// Validate reports whether iban has a correct checksum: the first four
// characters are moved to the end and the numeric value mod 97 must be 1.
func Validate(iban string) bool {
	iban = strings.ToUpper(strings.ReplaceAll(iban, " ", ""))
	if len(iban) < 5 || !isLetters(iban[:2]) || !isDigits(iban[2:4]) || !isAlphanumeric(iban) {
		return false
	}
	return mod97(iban[4:]+iban[:4]) == 1
}

// mod97 maps letters to 10..35 and reduces the resulting decimal string
// digit by digit. Input must be upper-case alphanumeric.
func mod97(s string) int {
	rem := 0
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			rem = (rem*10 + int(c-'0')) % 97
		case c >= 'A' && c <= 'Z':
			v := int(c-'A') + 10
			rem = (rem*100 + v) % 97
		}
	}
	return rem
}

func isLetters(s string) bool {
	for _, c := range s {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func isAlphanumeric(s string) bool {
	for _, c := range s {
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
