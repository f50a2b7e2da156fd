package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "onboarding/pkg/domain"
	"onboarding/pkg/requestcontext"
	"onboarding/pkg/testutil"
)

type stubAuthenticator map[string]requestcontext.Principal

func (s stubAuthenticator) Authenticate(token string) (requestcontext.Principal, error) {
	p, ok := s[token]
	if !ok {
		return requestcontext.Principal{}, errors.New("unknown token")
	}
	return p, nil
}

func TestRequireAuth(t *testing.T) {
	appID := id.NewApplicationID()
	authn := stubAuthenticator{"good": {Role: "APPLICANT", ApplicationID: appID}}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic good", http.StatusUnauthorized},
		{"unknown token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer good", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got requestcontext.Principal
			h := RequireAuth(authn, slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = requestcontext.CurrentPrincipal(r.Context())
			}))
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)

			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, appID, got.ApplicationID)
			} else {
				assert.JSONEq(t, `{"error":"unauthorized","error_description":"`+errorDescription(tt.header)+`"}`, w.Body.String())
			}
		})
	}
}

func errorDescription(header string) string {
	if header == "Bearer nope" {
		return "Invalid or expired token"
	}
	return "Missing or invalid Authorization header"
}

func TestRequireRole(t *testing.T) {
	h := RequireRole(slog.Default(), "COMPLIANCE_OFFICER", "ADMIN")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	for role, want := range map[string]int{
		"ADMIN":              http.StatusOK,
		"COMPLIANCE_OFFICER": http.StatusOK,
	} {
		r := testutil.AsEmployee(testutil.Request(t, http.MethodPost, "/applications/x/approve", nil), role, id.NewUserID())
		testutil.ExpectStatus(t, testutil.Serve(h, r), want)
	}

	applicant := testutil.AsApplicant(testutil.Request(t, http.MethodPost, "/applications/x/approve", nil), id.NewApplicationID())
	testutil.ExpectError(t, testutil.Serve(h, applicant), http.StatusForbidden, "forbidden")

	anonymous := testutil.Serve(h, testutil.Request(t, http.MethodGet, "/", nil))
	testutil.ExpectStatus(t, anonymous, http.StatusForbidden)
}

func TestRequireApplication(t *testing.T) {
	bound := id.NewApplicationID()
	router := chi.NewRouter()
	router.With(
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				p := requestcontext.Principal{Role: r.Header.Get("X-Role")}
				if r.Header.Get("X-Bound") == "yes" {
					p.ApplicationID = bound
				}
				next.ServeHTTP(w, r.WithContext(requestcontext.WithPrincipal(r.Context(), p)))
			})
		},
		RequireApplication(slog.Default(), "applicationID", "APPLICANT", "ADMIN"),
	).Get("/applications/{applicationID}", func(http.ResponseWriter, *http.Request) {})

	tests := []struct {
		name   string
		target id.ApplicationID
		role   string
		bound  bool
		want   int
	}{
		{"own application", bound, "APPLICANT", true, http.StatusOK},
		{"someone else's application", id.NewApplicationID(), "APPLICANT", true, http.StatusForbidden},
		{"applicant without binding", bound, "APPLICANT", false, http.StatusForbidden},
		{"employee role not listed", bound, "COMPLIANCE_OFFICER", false, http.StatusForbidden},
		{"pass role", id.NewApplicationID(), "ADMIN", false, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/applications/"+tt.target.String(), nil)
			r.Header.Set("X-Role", tt.role)
			if tt.bound {
				r.Header.Set("X-Bound", "yes")
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, r)
			require.Equal(t, tt.want, w.Code)
		})
	}
}
