package otp

import (
	"bytes"
	"crypto/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	dErrors "onboarding/pkg/domain-errors"
)

type ServiceSuite struct {
	suite.Suite
	now     time.Time
	service *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	hasher, err := NewBcryptHasher(bcrypt.MinCost)
	s.Require().NoError(err)
	s.service, err = New(hasher, WithClock(func() time.Time { return s.now }))
	s.Require().NoError(err)
}

func (s *ServiceSuite) TestNew() {
	s.Run("nil hasher", func() {
		_, err := New(nil)
		s.Require().Error(err)
		s.Contains(err.Error(), "otp hasher is required")
	})

	s.Run("length out of range", func() {
		_, err := New(&BcryptHasher{cost: bcrypt.MinCost}, WithLength(2))
		s.Error(err)
	})

	s.Run("invalid bcrypt cost", func() {
		_, err := NewBcryptHasher(bcrypt.MaxCost + 1)
		s.Error(err)
	})
}

func (s *ServiceSuite) TestGenerateCode() {
	s.Run("six zero-padded digits", func() {
		for range 200 {
			code, err := s.service.GenerateCode()
			s.Require().NoError(err)
			s.Len(code, 6)
			s.Equal("", strings.Trim(code, "0123456789"))
		}
	})

	s.Run("zero value is padded", func() {
		svc, err := New(&BcryptHasher{cost: bcrypt.MinCost}, WithRandom(bytes.NewReader(make([]byte, 64))))
		s.Require().NoError(err)
		code, err := svc.GenerateCode()
		s.Require().NoError(err)
		s.Equal("000000", code)
	})

	s.Run("random source failure is internal", func() {
		svc, err := New(&BcryptHasher{cost: bcrypt.MinCost}, WithRandom(bytes.NewReader(nil)))
		s.Require().NoError(err)
		_, err = svc.GenerateCode()
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("safe for concurrent use", func() {
		svc, err := New(&BcryptHasher{cost: bcrypt.MinCost}, WithRandom(rand.Reader), WithLength(8))
		s.Require().NoError(err)
		var wg sync.WaitGroup
		codes := make(chan string, 64)
		for range 64 {
			wg.Go(func() {
				code, err := svc.GenerateCode()
				if err == nil {
					codes <- code
				}
			})
		}
		wg.Wait()
		close(codes)
		count := 0
		for code := range codes {
			s.Len(code, 8)
			count++
		}
		s.Equal(64, count)
	})
}

func (s *ServiceSuite) TestHashAndVerify() {
	hash, err := s.service.Hash("482913")
	s.Require().NoError(err)
	s.NotContains(hash, "482913")

	ok, err := s.service.Verify("482913", hash)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.service.Verify("482914", hash)
	s.Require().NoError(err)
	s.False(ok)

	_, err = s.service.Verify("", hash)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

	_, err = s.service.Verify("482913", "")
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

	_, err = s.service.Hash(" ")
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *ServiceSuite) TestExpiry() {
	expiresAt := s.service.ExpiryFromNow()
	s.Equal(s.now.Add(10*time.Minute), expiresAt)
	s.False(s.service.IsExpired(expiresAt))

	s.now = s.now.Add(10*time.Minute + time.Second)
	s.True(s.service.IsExpired(expiresAt))
}
