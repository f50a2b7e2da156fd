package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	SetBearer(token string)
	SetClientIP(ip string)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	Advance(d time.Duration)
}

// RegisterSteps registers rate-limiting step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &ratelimitSteps{tc: tc}

	ctx.Step(`^I am calling from IP "([^"]*)"$`, steps.callingFromIP)
	ctx.Step(`^I start (\d+) distinct applications$`, steps.startDistinctApplications)
	ctx.Step(`^all of them should succeed$`, steps.allShouldSucceed)
	ctx.Step(`^(\d+) minutes pass$`, steps.minutesPass)
}

type ratelimitSteps struct {
	tc TestContext
	// State for tracking across steps
	seq      int
	statuses []int
}

func (s *ratelimitSteps) callingFromIP(ctx context.Context, ip string) error {
	s.tc.SetClientIP(ip)
	return nil
}

// startDistinctApplications sends n create requests with unique identities so
// only the rate limit, never duplicate detection, can refuse them.
func (s *ratelimitSteps) startDistinctApplications(ctx context.Context, n int) error {
	s.tc.SetBearer("")
	s.statuses = s.statuses[:0]
	for range n {
		s.seq++
		body := map[string]any{
			"first_name": "Rate",
			"last_name":  "Limited",
			"ssn":        fmt.Sprintf("900-00-%04d", s.seq),
			"email":      fmt.Sprintf("applicant%d@example.com", s.seq),
			"phone":      fmt.Sprintf("+3162000%04d", s.seq),
		}
		if err := s.tc.POST("/applications", body); err != nil {
			return err
		}
		s.statuses = append(s.statuses, s.tc.GetLastResponseStatus())
	}
	return nil
}

func (s *ratelimitSteps) allShouldSucceed(ctx context.Context) error {
	for i, status := range s.statuses {
		if status != 201 {
			return fmt.Errorf("request %d returned %d: %s", i+1, status, s.tc.GetLastResponseBody())
		}
	}
	return nil
}

func (s *ratelimitSteps) minutesPass(ctx context.Context, minutes int) error {
	s.tc.Advance(time.Duration(minutes) * time.Minute)
	return nil
}
