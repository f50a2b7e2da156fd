package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"onboarding/internal/application/models"
	"onboarding/internal/otp"
	id "onboarding/pkg/domain"
	"onboarding/pkg/platform/sentinel"
)

type verificationStore interface {
	Save(ctx context.Context, v *otp.Verification) error
	FindLatestPending(ctx context.Context, appID id.ApplicationID, channel models.Channel) (*otp.Verification, error)
	ExpirePending(ctx context.Context, appID id.ApplicationID, channel models.Channel, now time.Time) (int, error)
	RecordAttempt(ctx context.Context, v *otp.Verification, seen int) error
}

type StoreSuite struct {
	suite.Suite
	newStore func() verificationStore
	store    verificationStore
	ctx      context.Context
	now      time.Time
	appID    id.ApplicationID
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, &StoreSuite{newStore: func() verificationStore { return NewInMemory() }})
}

func (s *StoreSuite) SetupTest() {
	s.store = s.newStore()
	s.ctx = context.Background()
	s.now = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	s.appID = id.NewApplicationID()
}

func (s *StoreSuite) pending(channel models.Channel, at time.Time) *otp.Verification {
	v := otp.NewVerification(s.appID, channel, "$2a$04$hash", at.Add(10*time.Minute), 5, at)
	s.Require().NoError(s.store.Save(s.ctx, v))
	return v
}

func (s *StoreSuite) TestFindLatestPending() {
	s.Run("none stored", func() {
		_, err := s.store.FindLatestPending(s.ctx, id.NewApplicationID(), models.ChannelEmail)
		s.True(errors.Is(err, sentinel.ErrNotFound))
	})

	s.Run("newest pending for the channel wins", func() {
		s.pending(models.ChannelEmail, s.now)
		newer := s.pending(models.ChannelEmail, s.now.Add(time.Minute))
		s.pending(models.ChannelPhone, s.now.Add(2*time.Minute))

		got, err := s.store.FindLatestPending(s.ctx, s.appID, models.ChannelEmail)
		s.Require().NoError(err)
		s.Equal(newer.ID, got.ID)
		s.Equal(models.ChannelEmail, got.Channel)
		s.Equal(otp.StatusPending, got.Status)
	})
}

func (s *StoreSuite) TestSaveUpdatesAttempts() {
	v := s.pending(models.ChannelPhone, s.now)
	v.RegisterAttempt(false, s.now)
	s.Require().NoError(s.store.Save(s.ctx, v))

	got, err := s.store.FindLatestPending(s.ctx, s.appID, models.ChannelPhone)
	s.Require().NoError(err)
	s.Equal(1, got.Attempts)

	v.RegisterAttempt(true, s.now)
	s.Require().NoError(s.store.Save(s.ctx, v))
	_, err = s.store.FindLatestPending(s.ctx, s.appID, models.ChannelPhone)
	s.True(errors.Is(err, sentinel.ErrNotFound))
}

func (s *StoreSuite) TestExpirePending() {
	s.pending(models.ChannelEmail, s.now)
	s.pending(models.ChannelEmail, s.now.Add(time.Second))
	phone := s.pending(models.ChannelPhone, s.now)

	n, err := s.store.ExpirePending(s.ctx, s.appID, models.ChannelEmail, s.now.Add(time.Minute))
	s.Require().NoError(err)
	s.Equal(2, n)

	_, err = s.store.FindLatestPending(s.ctx, s.appID, models.ChannelEmail)
	s.True(errors.Is(err, sentinel.ErrNotFound))

	got, err := s.store.FindLatestPending(s.ctx, s.appID, models.ChannelPhone)
	s.Require().NoError(err)
	s.Equal(phone.ID, got.ID)
}

func (s *StoreSuite) TestRecordAttempt() {
	v := s.pending(models.ChannelEmail, s.now)

	s.Run("stale copy is refused", func() {
		stale := *v
		fresh := *v
		fresh.RegisterAttempt(false, s.now)
		s.Require().NoError(s.store.RecordAttempt(s.ctx, &fresh, 0))

		stale.RegisterAttempt(false, s.now)
		err := s.store.RecordAttempt(s.ctx, &stale, 0)
		s.True(errors.Is(err, sentinel.ErrConflict))

		got, err := s.store.FindLatestPending(s.ctx, s.appID, models.ChannelEmail)
		s.Require().NoError(err)
		s.Equal(1, got.Attempts)
	})

	s.Run("closed record is refused", func() {
		got, err := s.store.FindLatestPending(s.ctx, s.appID, models.ChannelEmail)
		s.Require().NoError(err)
		seen := got.Attempts
		got.RegisterAttempt(true, s.now)
		s.Require().NoError(s.store.RecordAttempt(s.ctx, got, seen))

		again := *got
		again.Status = otp.StatusPending
		again.Attempts = seen + 1
		err = s.store.RecordAttempt(s.ctx, &again, seen+1)
		s.True(errors.Is(err, sentinel.ErrConflict))
	})
}

func (s *StoreSuite) TestRecordAttemptSerializesConcurrentCopies() {
	v := s.pending(models.ChannelPhone, s.now)

	const callers = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		stored    int
		conflicts int
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := *v
			c.RegisterAttempt(false, s.now)
			err := s.store.RecordAttempt(s.ctx, &c, 0)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				stored++
			case errors.Is(err, sentinel.ErrConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	s.Equal(1, stored)
	s.Equal(callers-1, conflicts)
	got, err := s.store.FindLatestPending(s.ctx, s.appID, models.ChannelPhone)
	s.Require().NoError(err)
	s.Equal(1, got.Attempts)
}
