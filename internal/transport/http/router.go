// Package httptransport is the thin HTTP boundary. Handlers decode and
// validate requests, delegate to the onboarding service and encode results;
// no business rule lives here.
package httptransport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"onboarding/internal/application/models"
	"onboarding/internal/onboarding"
	platformmw "onboarding/internal/platform/middleware"
	"onboarding/internal/token"
	id "onboarding/pkg/domain"
	"onboarding/pkg/platform/middleware/auth"
	"onboarding/pkg/platform/middleware/metadata"
)

const applicationParam = "applicationID"

// Onboarding is the use-case surface the handlers drive.
type Onboarding interface {
	Get(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
	CreateApplication(ctx context.Context, in onboarding.CreateApplicationInput) (*models.Application, error)
	SendOTP(ctx context.Context, appID id.ApplicationID, channel models.Channel) (*onboarding.OTPChallenge, error)
	VerifyOTP(ctx context.Context, appID id.ApplicationID, channel models.Channel, code string) (*onboarding.VerifyOTPResult, error)
	UploadDocument(ctx context.Context, appID id.ApplicationID, in onboarding.UploadDocumentInput) (*models.Application, error)
	GrantConsent(ctx context.Context, appID id.ApplicationID, in onboarding.GrantConsentInput) (*models.Application, error)
	RevokeConsent(ctx context.Context, appID id.ApplicationID, consentType models.ConsentType) (*models.Application, error)
	Submit(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
	ProvideMoreInfo(ctx context.Context, appID id.ApplicationID, info string) (*models.Application, error)

	Assign(ctx context.Context, appID id.ApplicationID, reviewer id.UserID) (*models.Application, error)
	Verify(ctx context.Context, appID id.ApplicationID, by id.UserID) (*models.Application, error)
	RequestMoreInfo(ctx context.Context, appID id.ApplicationID, reason string) (*models.Application, error)
	Flag(ctx context.Context, appID id.ApplicationID, reason string) (*models.Application, error)
	Approve(ctx context.Context, appID id.ApplicationID, by id.UserID) (*models.Application, error)
	Reject(ctx context.Context, appID id.ApplicationID, reason string) (*models.Application, error)
	MarkForDeletion(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
	Anonymize(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
}

// Sessions rotates and revokes refresh tokens.
type Sessions interface {
	Refresh(ctx context.Context, opaque string) (token.Pair, error)
	Revoke(ctx context.Context, opaque string) error
}

// Handler serves the onboarding API.
type Handler struct {
	onboarding Onboarding
	sessions   Sessions
	validate   *validator.Validate
	logger     *slog.Logger
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func NewHandler(svc Onboarding, sessions Sessions, opts ...Option) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("onboarding service is required")
	}
	if sessions == nil {
		return nil, errors.New("sessions are required")
	}
	h := &Handler{
		onboarding: svc,
		sessions:   sessions,
		validate:   newValidator(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// RouterConfig carries the collaborators NewRouter mounts around the handler.
type RouterConfig struct {
	Handler       *Handler
	Authenticator auth.Authenticator
	// RateLimit screens requests before authentication. Nil disables it.
	RateLimit func(http.Handler) http.Handler
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
	Timeout time.Duration
	// Readiness names the backend checks /readyz runs.
	Readiness map[string]func(context.Context) error
}

// NewRouter wires every public endpoint.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	h := cfg.Handler

	r := chi.NewRouter()
	r.Use(metadata.ClientMetadata)
	r.Use(platformmw.Recovery(logger))
	r.Use(platformmw.Logger(logger))
	r.Use(chimw.Timeout(timeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readiness(cfg.Readiness, logger))
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	requireAuth := auth.RequireAuth(cfg.Authenticator, logger)
	applicant := auth.RequireApplication(logger, applicationParam, token.RoleApplicant.String())
	reader := auth.RequireApplication(logger, applicationParam, token.RoleApplicant.String(),
		token.RoleComplianceOfficer.String(), token.RoleAdmin.String())
	reviewer := auth.RequireRole(logger, token.RoleComplianceOfficer.String(), token.RoleAdmin.String())
	admin := auth.RequireRole(logger, token.RoleAdmin.String())

	r.Group(func(r chi.Router) {
		r.Use(chimw.AllowContentType("application/json"))
		if cfg.RateLimit != nil {
			r.Use(cfg.RateLimit)
		}

		r.Post("/auth/refresh", h.handleRefresh)
		r.Post("/auth/logout", h.handleLogout)

		r.Post("/applications", h.handleCreateApplication)
		r.Post("/applications/{applicationID}/otp", h.handleSendOTP)
		r.Post("/applications/{applicationID}/otp/verify", h.handleVerifyOTP)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.With(reader).Get("/applications/{applicationID}", h.handleGetApplication)

			r.Group(func(r chi.Router) {
				r.Use(applicant)
				r.Post("/applications/{applicationID}/documents", h.handleUploadDocument)
				r.Post("/applications/{applicationID}/consents", h.handleGrantConsent)
				r.Delete("/applications/{applicationID}/consents/{consentType}", h.handleRevokeConsent)
				r.Post("/applications/{applicationID}/submit", h.handleSubmit)
				r.Post("/applications/{applicationID}/info", h.handleProvideMoreInfo)
			})

			r.Group(func(r chi.Router) {
				r.Use(reviewer)
				r.Post("/applications/{applicationID}/assign", h.handleAssign)
				r.Post("/applications/{applicationID}/verify", h.handleVerify)
				r.Post("/applications/{applicationID}/request-info", h.handleRequestMoreInfo)
				r.Post("/applications/{applicationID}/flag", h.handleFlag)
				r.Post("/applications/{applicationID}/approve", h.handleApprove)
				r.Post("/applications/{applicationID}/reject", h.handleReject)
			})

			r.Group(func(r chi.Router) {
				r.Use(admin)
				r.Post("/applications/{applicationID}/deletion", h.handleMarkForDeletion)
				r.Post("/applications/{applicationID}/anonymize", h.handleAnonymize)
			})
		})
	})
	return r
}

// readiness reports 503 naming every check that failed. Check errors are
// logged, never returned.
func readiness(checks map[string]func(context.Context) error, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := make(map[string]string, len(checks))
		code := http.StatusOK
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				logger.WarnContext(r.Context(), "readiness check failed", "backend", name, "error", err)
				status[name] = "unavailable"
				code = http.StatusServiceUnavailable
				continue
			}
			status[name] = "ok"
		}
		writeJSON(w, code, map[string]any{"ready": code == http.StatusOK, "backends": status})
	}
}
