// Package e2e runs the Gherkin scenarios under features/ against the full
// HTTP stack wired in-process with in-memory backends and a controllable clock.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"onboarding/internal/accountnumber"
	"onboarding/internal/application/duplicate"
	"onboarding/internal/application/models"
	appstore "onboarding/internal/application/store"
	"onboarding/internal/events"
	"onboarding/internal/onboarding"
	"onboarding/internal/otp"
	otpstore "onboarding/internal/otp/store"
	"onboarding/internal/platform/config"
	"onboarding/internal/platform/metrics"
	"onboarding/internal/ratelimit"
	rlmw "onboarding/internal/ratelimit/middleware"
	"onboarding/internal/ratelimit/store/bucket"
	"onboarding/internal/token"
	tokenstore "onboarding/internal/token/store"
	httptransport "onboarding/internal/transport/http"
	id "onboarding/pkg/domain"
)

const defaultClientIP = "198.51.100.10"

// TestContext holds one scenario's server and the state carried between steps.
type TestContext struct {
	mu  sync.Mutex
	now time.Time

	router http.Handler
	tokens *token.Service
	inbox  *inbox
	events *events.Recorder

	clientIP      string
	bearer        string
	applicationID string
	refreshToken  string

	lastStatus int
	lastHeader http.Header
	lastBody   []byte
}

// Reset wires a fresh stack with the production rate-limit defaults and
// clears the state carried between steps.
func (tc *TestContext) Reset() error {
	tc.mu.Lock()
	tc.now = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	tc.mu.Unlock()
	tc.inbox = &inbox{codes: map[string]string{}}
	tc.events = events.NewRecorder()
	tc.clientIP = defaultClientIP
	tc.bearer, tc.applicationID, tc.refreshToken = "", "", ""
	tc.lastStatus, tc.lastHeader, tc.lastBody = 0, nil, nil
	clock := tc.clock

	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegisterer(reg)
	apps := appstore.NewInMemory()
	detector, err := duplicate.New(apps)
	if err != nil {
		return err
	}
	hasher, err := otp.NewBcryptHasher(bcrypt.MinCost)
	if err != nil {
		return err
	}
	codes, err := otp.New(hasher, otp.WithClock(clock))
	if err != nil {
		return err
	}
	tc.tokens, err = token.New("e2e-signing-secret-0123456789abcdef", "onboarding-e2e", token.WithClock(clock), token.WithMetrics(m))
	if err != nil {
		return err
	}
	sessions, err := token.NewSessions(tc.tokens, tokenstore.NewInMemory(), 24*time.Hour)
	if err != nil {
		return err
	}
	accounts, err := accountnumber.New("NL", "ABCB", accountnumber.WithMetrics(m))
	if err != nil {
		return err
	}
	svc, err := onboarding.New(onboarding.Deps{
		Applications:   apps,
		Duplicates:     detector,
		Verifications:  otpstore.NewInMemory(),
		Codes:          codes,
		Notifier:       tc.inbox,
		Sessions:       sessions,
		AccountNumbers: accounts,
		Events:         tc.events,
	}, onboarding.WithClock(clock), onboarding.WithMetrics(m))
	if err != nil {
		return err
	}

	limiter, err := ratelimit.New(bucket.NewInMemoryBucketStore(bucket.WithClock(clock)), ratelimit.WithClock(clock))
	if err != nil {
		return err
	}
	rl, err := rlmw.New(limiter, httptransport.RateLimitPolicies(config.RateLimitConfig{
		Enabled:        true,
		CreateByIP:     config.Limit{Requests: 5, Window: time.Hour},
		OTPSendByIP:    config.Limit{Requests: 10, Window: time.Hour},
		OTPVerifyByIP:  config.Limit{Requests: 20, Window: time.Hour},
		OTPVerifyByApp: config.Limit{Requests: 5, Window: 15 * time.Minute},
		DocumentsByApp: config.Limit{Requests: 20, Window: time.Hour},
	}))
	if err != nil {
		return err
	}

	handler, err := httptransport.NewHandler(svc, sessions)
	if err != nil {
		return err
	}
	tc.router = httptransport.NewRouter(httptransport.RouterConfig{
		Handler:       handler,
		Authenticator: tc.tokens,
		RateLimit:     rl.Handler,
		Metrics:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	return nil
}

func (tc *TestContext) clock() time.Time {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.now
}

// Advance moves the scenario clock forward.
func (tc *TestContext) Advance(d time.Duration) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.now = tc.now.Add(d)
}

func (tc *TestContext) do(method, path string, body any) error {
	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = tc.clientIP + ":40000"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tc.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+tc.bearer)
	}
	rec := httptest.NewRecorder()
	tc.router.ServeHTTP(rec, req)

	tc.lastStatus = rec.Code
	tc.lastHeader = rec.Header()
	tc.lastBody = rec.Body.Bytes()
	return nil
}

func (tc *TestContext) POST(path string, body any) error {
	return tc.do(http.MethodPost, path, body)
}

func (tc *TestContext) GET(path string) error {
	return tc.do(http.MethodGet, path, nil)
}

func (tc *TestContext) DELETE(path string) error {
	return tc.do(http.MethodDelete, path, nil)
}

func (tc *TestContext) SetClientIP(ip string) { tc.clientIP = ip }

func (tc *TestContext) SetBearer(token string) { tc.bearer = token }

func (tc *TestContext) GetLastResponseStatus() int { return tc.lastStatus }

func (tc *TestContext) GetLastResponseBody() []byte { return tc.lastBody }

func (tc *TestContext) GetLastResponseHeader(name string) string {
	return tc.lastHeader.Get(name)
}

// GetResponseField walks a dot-separated path through the last JSON body.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var current any
	if err := json.Unmarshal(tc.lastBody, &current); err != nil {
		return nil, fmt.Errorf("response is not JSON: %w", err)
	}
	for _, key := range strings.Split(field, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field %q: %q is not an object", field, key)
		}
		if current, ok = obj[key]; !ok {
			return nil, fmt.Errorf("field %q not found in response", field)
		}
	}
	return current, nil
}

func (tc *TestContext) GetApplicationID() string { return tc.applicationID }

func (tc *TestContext) SetApplicationID(appID string) { tc.applicationID = appID }

func (tc *TestContext) GetRefreshToken() string { return tc.refreshToken }

func (tc *TestContext) SetRefreshToken(t string) { tc.refreshToken = t }

// DeliveredCode returns the last code sent for the current application.
func (tc *TestContext) DeliveredCode(channel string) (string, error) {
	code, ok := tc.inbox.code(tc.applicationID, channel)
	if !ok {
		return "", fmt.Errorf("no %s code delivered for application %s", channel, tc.applicationID)
	}
	return code, nil
}

// EmployeeToken issues an access token for a fresh employee with role.
func (tc *TestContext) EmployeeToken(role string) (string, error) {
	issued, err := tc.tokens.IssueEmployeeToken(token.Role(role), id.NewUserID(), id.NewSessionID())
	if err != nil {
		return "", err
	}
	return issued.Token, nil
}

// PublishedEventTypes lists the domain events dispatched so far, in order.
func (tc *TestContext) PublishedEventTypes() []string {
	types := tc.events.Types()
	out := make([]string, 0, len(types))
	for _, t := range types {
		out = append(out, string(t))
	}
	return out
}

// inbox stands in for the email and SMS gateways.
type inbox struct {
	mu    sync.Mutex
	codes map[string]string
}

func (i *inbox) Send(_ context.Context, appID id.ApplicationID, channel models.Channel, _, code string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.codes[appID.String()+"/"+channel.String()] = code
	return nil
}

func (i *inbox) code(appID, channel string) (string, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	code, ok := i.codes[appID+"/"+channel]
	return code, ok
}
