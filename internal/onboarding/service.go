// Package onboarding runs the onboarding use cases: each action loads the
// application, applies one aggregate transition, saves it under the version
// check and dispatches the events it produced.
package onboarding

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"onboarding/internal/application/models"
	"onboarding/internal/otp"
	"onboarding/internal/platform/metrics"
	id "onboarding/pkg/domain"
	dErrors "onboarding/pkg/domain-errors"
	"onboarding/pkg/platform/sentinel"
)

var tracer = otel.Tracer("onboarding")

// Deps are the collaborators every Service needs.
type Deps struct {
	Applications   ApplicationStore
	Duplicates     DuplicateChecker
	Verifications  VerificationStore
	Codes          Codes
	Notifier       Notifier
	Sessions       SessionStarter
	AccountNumbers AccountNumbers
	Events         EventPublisher
}

type Service struct {
	apps          ApplicationStore
	duplicates    DuplicateChecker
	verifications VerificationStore
	codes         Codes
	notifier      Notifier
	sessions      SessionStarter
	accounts      AccountNumbers
	events        EventPublisher

	maxAttempts int
	clock       func() time.Time
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMaxOTPAttempts sets how many wrong codes a verification absorbs.
func WithMaxOTPAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func New(deps Deps, opts ...Option) (*Service, error) {
	switch {
	case deps.Applications == nil:
		return nil, errors.New("application store is required")
	case deps.Duplicates == nil:
		return nil, errors.New("duplicate checker is required")
	case deps.Verifications == nil:
		return nil, errors.New("verification store is required")
	case deps.Codes == nil:
		return nil, errors.New("otp codes are required")
	case deps.Notifier == nil:
		return nil, errors.New("otp notifier is required")
	case deps.Sessions == nil:
		return nil, errors.New("session starter is required")
	case deps.AccountNumbers == nil:
		return nil, errors.New("account number generator is required")
	case deps.Events == nil:
		return nil, errors.New("event publisher is required")
	}
	s := &Service{
		apps:          deps.Applications,
		duplicates:    deps.Duplicates,
		verifications: deps.Verifications,
		codes:         deps.Codes,
		notifier:      deps.Notifier,
		sessions:      deps.Sessions,
		accounts:      deps.AccountNumbers,
		events:        deps.Events,
		maxAttempts:   otp.DefaultMaxAttempts,
		clock:         time.Now,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get returns the current state of an application.
func (s *Service) Get(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	ctx, span := s.start(ctx, "Get", appID)
	defer span.End()

	app, err := s.load(ctx, appID)
	return app, s.fail(span, err)
}

// mutate is the shared shape of every transition: load, apply, commit.
func (s *Service) mutate(ctx context.Context, action string, appID id.ApplicationID, apply func(app *models.Application, now time.Time) error) (*models.Application, error) {
	ctx, span := s.start(ctx, action, appID)
	defer span.End()
	if s.metrics != nil {
		defer s.metrics.ObserveAction(action, time.Now())
	}

	app, err := s.load(ctx, appID)
	if err != nil {
		return nil, s.fail(span, err)
	}
	if app.Anonymized {
		return nil, s.fail(span, dErrors.New(dErrors.CodeInvalidStateTransition, "application has been anonymized"))
	}
	before := app.Status()
	if err := apply(app, s.clock()); err != nil {
		return nil, s.fail(span, err)
	}
	if err := s.commit(ctx, app, before); err != nil {
		return nil, s.fail(span, err)
	}
	span.SetAttributes(attribute.String("application.status", app.Status().String()))
	return app, nil
}

func (s *Service) load(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	app, err := s.apps.FindByID(ctx, appID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "application not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load application")
	}
	return app, nil
}

// commit saves app and dispatches its pending events. A concurrent writer
// surfaces as a conflict. Dispatch failures are logged: the state change is
// already durable and consumers tolerate redelivery, not loss of the save.
func (s *Service) commit(ctx context.Context, app *models.Application, before models.Status) error {
	if err := s.apps.Save(ctx, app); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrConflict), errors.Is(err, sentinel.ErrAlreadyExists):
			return dErrors.Wrap(err, dErrors.CodeConflict, "application was modified concurrently, reload and retry")
		case errors.Is(err, sentinel.ErrNotFound):
			return dErrors.New(dErrors.CodeNotFound, "application not found")
		default:
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save application")
		}
	}

	if pending := app.PendingEvents(); len(pending) > 0 {
		if err := s.events.Publish(ctx, pending...); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish application events",
				"application_id", app.ID.String(),
				"events", len(pending),
				"error", err,
			)
		}
	}
	app.ClearEvents()

	if s.metrics != nil && app.Status() != before {
		s.metrics.IncrementTransition(app.Status().String())
	}
	return nil
}

func (s *Service) start(ctx context.Context, action string, appID id.ApplicationID) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "Onboarding."+action)
	if !appID.IsNil() {
		span.SetAttributes(attribute.String("application.id", appID.String()))
	}
	return ctx, span
}

func (s *Service) fail(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	return err
}
