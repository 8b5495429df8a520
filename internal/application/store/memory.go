package store

import (
	"context"
	"strings"
	"sync"

	"gatekeeper/internal/application/models"
	id "gatekeeper/pkg/domain"
	"gatekeeper/pkg/platform/sentinel"
)

// InMemory is a map-backed application store for unit tests and local
// development. It mirrors the postgres store's contract, including
// case-insensitive name uniqueness.
type InMemory struct {
	mu     sync.RWMutex
	byID   map[id.ApplicationID]*models.Application
	byName map[string]id.ApplicationID // lowercased name -> id
}

// NewInMemory creates an empty in-memory application store.
func NewInMemory() *InMemory {
	return &InMemory{
		byID:   make(map[id.ApplicationID]*models.Application),
		byName: make(map[string]id.ApplicationID),
	}
}

// CreateIfNameAvailable inserts the application unless its name is taken.
// Returns sentinel.ErrAlreadyUsed on a name collision.
func (s *InMemory) CreateIfNameAvailable(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(app.Name)
	if _, taken := s.byName[key]; taken {
		return sentinel.ErrAlreadyUsed
	}

	s.byID[app.ID] = app.Clone()
	s.byName[key] = app.ID
	return nil
}

// FindByID returns a copy of the stored aggregate.
// Returns sentinel.ErrNotFound when absent.
func (s *InMemory) FindByID(_ context.Context, appID id.ApplicationID) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	app, ok := s.byID[appID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return app.Clone(), nil
}

// FindByName looks up an application case-insensitively.
// Returns sentinel.ErrNotFound when absent.
func (s *InMemory) FindByName(_ context.Context, name string) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	appID, ok := s.byName[strings.ToLower(name)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.byID[appID].Clone(), nil
}

// Update replaces the stored aggregate state.
// Returns sentinel.ErrNotFound when the application was never created.
func (s *InMemory) Update(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[app.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.byID[app.ID] = app.Clone()
	return nil
}
