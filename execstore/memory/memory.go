// Package memory is an in-memory execstore.Store for tests and
// single-process deployments.
package memory

import (
	"context"
	"sync"

	"github.com/tiercade/tiercade/execstore"
	"github.com/tiercade/tiercade/types"
)

// Store is a mutex-protected map of execution id to ExecutionRecord.
type Store struct {
	mu      sync.Mutex
	records map[string]*types.ExecutionRecord
}

var _ execstore.Store = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{records: map[string]*types.ExecutionRecord{}}
}

// Put implements execstore.Store.
func (s *Store) Put(_ context.Context, executionID string, record *types.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *record
	s.records[executionID] = &cp
	return nil
}

// Get implements execstore.Store.
func (s *Store) Get(_ context.Context, executionID string) (*types.ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[executionID]
	if !ok {
		return nil, execstore.ErrNotFound
	}
	cp := *record
	return &cp, nil
}
