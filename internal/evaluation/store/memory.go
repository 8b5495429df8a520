package store

import (
	"context"
	"sync"

	"gatekeeper/internal/evaluation"
	id "gatekeeper/pkg/domain"
	"gatekeeper/pkg/platform/sentinel"
)

// InMemory is a map-backed evaluation store for unit tests and local
// development.
type InMemory struct {
	mu   sync.RWMutex
	byID map[id.EvaluationID]*evaluation.ComplianceEvaluation
}

// NewInMemory creates an empty in-memory evaluation store.
func NewInMemory() *InMemory {
	return &InMemory{byID: make(map[id.EvaluationID]*evaluation.ComplianceEvaluation)}
}

// Save stores the evaluation. Evaluations are write-once; saving the same ID
// twice returns sentinel.ErrConflict.
func (s *InMemory) Save(_ context.Context, eval *evaluation.ComplianceEvaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[eval.ID]; exists {
		return sentinel.ErrConflict
	}
	s.byID[eval.ID] = eval
	return nil
}

// FindByID returns the stored evaluation.
// Returns sentinel.ErrNotFound when absent.
func (s *InMemory) FindByID(_ context.Context, evalID id.EvaluationID) (*evaluation.ComplianceEvaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	eval, ok := s.byID[evalID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return eval, nil
}
