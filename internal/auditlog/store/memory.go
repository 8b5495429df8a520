package store

import (
	"context"
	"sync"

	"gatekeeper/internal/auditlog"
	id "gatekeeper/pkg/domain"
	"gatekeeper/pkg/platform/sentinel"
)

// InMemory is a map-backed audit store for unit tests and local development.
// It enforces the same write-once contract as the postgres store.
type InMemory struct {
	mu           sync.RWMutex
	byEvaluation map[id.EvaluationID]*auditlog.AuditLog
	order        []id.EvaluationID // append order, newest last
}

// NewInMemory creates an empty in-memory audit store.
func NewInMemory() *InMemory {
	return &InMemory{byEvaluation: make(map[id.EvaluationID]*auditlog.AuditLog)}
}

// Append stores the record. A second append for the same evaluation returns
// sentinel.ErrConflict.
func (s *InMemory) Append(_ context.Context, log *auditlog.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEvaluation[log.EvaluationID]; exists {
		return sentinel.ErrConflict
	}
	s.byEvaluation[log.EvaluationID] = log
	s.order = append(s.order, log.EvaluationID)
	return nil
}

// FindByEvaluationID returns the record for one evaluation.
// Returns sentinel.ErrNotFound when absent.
func (s *InMemory) FindByEvaluationID(_ context.Context, evalID id.EvaluationID) (*auditlog.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.byEvaluation[evalID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return log, nil
}

// ListByApplication returns records for an application, newest first.
func (s *InMemory) ListByApplication(_ context.Context, appID id.ApplicationID, limit int) ([]*auditlog.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var logs []*auditlog.AuditLog
	for i := len(s.order) - 1; i >= 0; i-- {
		log := s.byEvaluation[s.order[i]]
		if log.ApplicationID != appID {
			continue
		}
		logs = append(logs, log)
		if limit > 0 && len(logs) == limit {
			break
		}
	}
	return logs, nil
}
