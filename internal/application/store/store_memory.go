package store

import (
	"context"
	"strings"
	"sync"

	"onboarding/internal/application/models"
	id "onboarding/pkg/domain"
	"onboarding/pkg/platform/sentinel"
)

// InMemoryStore keeps application snapshots in memory. Loaded aggregates are
// detached copies, so callers mutate them freely until Save.
type InMemoryStore struct {
	mu   sync.RWMutex
	apps map[id.ApplicationID]snapshot
}

type snapshot struct {
	app       models.Application
	status    models.Status
	documents []models.Document
	consents  []models.Consent
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{apps: make(map[id.ApplicationID]snapshot)}
}

func (s *InMemoryStore) FindByID(_ context.Context, appID id.ApplicationID) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.apps[appID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return snap.restore(), nil
}

// Save inserts when Version is zero, otherwise replaces the stored snapshot
// only if its version still matches. The aggregate's Version is bumped.
func (s *InMemoryStore) Save(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.apps[app.ID]
	switch {
	case app.Version == 0 && exists:
		return sentinel.ErrAlreadyExists
	case app.Version != 0 && !exists:
		return sentinel.ErrNotFound
	case app.Version != 0 && current.app.Version != app.Version:
		return sentinel.ErrConflict
	}

	app.Version++
	s.apps[app.ID] = takeSnapshot(app)
	return nil
}

func (s *InMemoryStore) ExistsBySSN(_ context.Context, ssn string) (bool, error) {
	return s.exists(func(a *models.Application) bool { return a.Personal.SSN == ssn }), nil
}

func (s *InMemoryStore) ExistsByEmail(_ context.Context, email string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return s.exists(func(a *models.Application) bool { return a.Contact.Email == email }), nil
}

func (s *InMemoryStore) ExistsByPhone(_ context.Context, phone string) (bool, error) {
	return s.exists(func(a *models.Application) bool { return a.Contact.Phone == phone }), nil
}

func (s *InMemoryStore) ExistsByAccountNumber(_ context.Context, accountNumber string) (bool, error) {
	if accountNumber == "" {
		return false, nil
	}
	return s.exists(func(a *models.Application) bool { return a.AccountNumber == accountNumber }), nil
}

func (s *InMemoryStore) FindByAccountNumber(_ context.Context, accountNumber string) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, snap := range s.apps {
		if snap.app.AccountNumber != "" && snap.app.AccountNumber == accountNumber {
			return snap.restore(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) exists(match func(*models.Application) bool) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, snap := range s.apps {
		if snap.app.Anonymized {
			continue
		}
		if match(&snap.app) {
			return true
		}
	}
	return false
}

func takeSnapshot(app *models.Application) snapshot {
	return snapshot{
		app:       *models.Restore(*app, app.Status(), nil, nil),
		status:    app.Status(),
		documents: app.Documents(),
		consents:  app.Consents(),
	}
}

func (s snapshot) restore() *models.Application {
	return models.Restore(s.app, s.status, s.documents, s.consents)
}
