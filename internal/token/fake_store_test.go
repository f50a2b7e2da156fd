package token

import (
	"context"
	"sync"
	"time"

	"onboarding/pkg/platform/sentinel"
)

type fakeRefreshStore struct {
	mu      sync.Mutex
	records map[string]RefreshRecord
}

func newFakeRefreshStore() *fakeRefreshStore {
	return &fakeRefreshStore{records: map[string]RefreshRecord{}}
}

func (f *fakeRefreshStore) Save(_ context.Context, r RefreshRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[r.Hash] = r
	return nil
}

func (f *fakeRefreshStore) Consume(_ context.Context, hash string, now time.Time) (*RefreshRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[hash]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	delete(f.records, hash)
	if now.After(r.ExpiresAt) {
		return nil, sentinel.ErrExpired
	}
	return &r, nil
}
