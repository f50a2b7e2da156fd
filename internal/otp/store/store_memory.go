package store

import (
	"context"
	"sync"
	"time"

	"onboarding/internal/application/models"
	"onboarding/internal/otp"
	id "onboarding/pkg/domain"
	"onboarding/pkg/platform/sentinel"
)

// InMemoryStore keeps verification records in insertion order.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.VerificationID]otp.Verification
	order   []id.VerificationID
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{records: make(map[id.VerificationID]otp.Verification)}
}

// Save inserts or replaces v.
func (s *InMemoryStore) Save(_ context.Context, v *otp.Verification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[v.ID]; !ok {
		s.order = append(s.order, v.ID)
	}
	s.records[v.ID] = *v
	return nil
}

// RecordAttempt replaces the stored record with v only while it is still
// pending with seen attempts.
func (s *InMemoryStore) RecordAttempt(_ context.Context, v *otp.Verification, seen int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.records[v.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if cur.Status != otp.StatusPending || cur.Attempts != seen {
		return sentinel.ErrConflict
	}
	s.records[v.ID] = *v
	return nil
}

// FindLatestPending returns the newest pending record for the channel.
func (s *InMemoryStore) FindLatestPending(_ context.Context, appID id.ApplicationID, channel models.Channel) (*otp.Verification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.order) - 1; i >= 0; i-- {
		v := s.records[s.order[i]]
		if v.ApplicationID == appID && v.Channel == channel && v.Status == otp.StatusPending {
			return &v, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// ExpirePending closes every pending record for the channel and reports how
// many were closed.
func (s *InMemoryStore) ExpirePending(_ context.Context, appID id.ApplicationID, channel models.Channel, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, v := range s.records {
		if v.ApplicationID == appID && v.Channel == channel && v.Status == otp.StatusPending {
			v.Expire(now)
			s.records[key] = v
			n++
		}
	}
	return n, nil
}
