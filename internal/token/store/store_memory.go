package store

import (
	"context"
	"sync"
	"time"

	"onboarding/internal/token"
	"onboarding/pkg/platform/sentinel"
)

// InMemoryRefreshStore keeps refresh token records keyed by hash.
type InMemoryRefreshStore struct {
	mu      sync.Mutex
	records map[string]token.RefreshRecord
}

func NewInMemory() *InMemoryRefreshStore {
	return &InMemoryRefreshStore{records: make(map[string]token.RefreshRecord)}
}

func (s *InMemoryRefreshStore) Save(_ context.Context, record token.RefreshRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Hash] = record
	return nil
}

// Consume removes and returns the record for hash.
func (s *InMemoryRefreshStore) Consume(_ context.Context, hash string, now time.Time) (*token.RefreshRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[hash]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	delete(s.records, hash)
	if now.After(record.ExpiresAt) {
		return nil, sentinel.ErrExpired
	}
	return &record, nil
}
