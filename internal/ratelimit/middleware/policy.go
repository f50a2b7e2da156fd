package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"onboarding/internal/ratelimit/models"
)

// Rule is one counter a policy applies: who is counted and how much they get.
type Rule struct {
	Source models.KeySource
	Limit  int
	Window time.Duration
}

// Policy binds a route to a limited resource. Every rule must pass.
type Policy struct {
	Method   string
	Pattern  string
	Resource models.Resource
	Rules    []Rule
	// Param names the chi URL parameter holding the application id for
	// KeySourceApplication rules. Defaults to "applicationID".
	Param string
}

type compiledPolicy struct {
	Policy
	router *chi.Mux
}

func compile(policies []Policy) []compiledPolicy {
	out := make([]compiledPolicy, 0, len(policies))
	for _, p := range policies {
		if p.Param == "" {
			p.Param = "applicationID"
		}
		router := chi.NewRouter()
		router.MethodFunc(p.Method, p.Pattern, func(http.ResponseWriter, *http.Request) {})
		out = append(out, compiledPolicy{Policy: p, router: router})
	}
	return out
}

// match returns the first policy matching the request and the route context
// holding its URL parameters. Order is significant.
func match(policies []compiledPolicy, r *http.Request) (*compiledPolicy, *chi.Context) {
	path := r.URL.RawPath
	if path == "" {
		path = r.URL.Path
	}
	for i := range policies {
		rctx := chi.NewRouteContext()
		if policies[i].router.Match(rctx, r.Method, path) {
			return &policies[i], rctx
		}
	}
	return nil, nil
}
