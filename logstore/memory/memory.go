// Package memory is an in-memory logstore.Store for tests and
// single-process deployments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tiercade/tiercade/logstore"
	"github.com/tiercade/tiercade/types"
)

// Store is a mutex-protected, per-function slice of LogEntry records.
type Store struct {
	mu      sync.Mutex
	entries map[string][]types.LogEntry
}

var _ logstore.Store = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{entries: map[string][]types.LogEntry{}}
}

// Append implements logstore.Store.
func (s *Store) Append(_ context.Context, functionID string, entry types.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[functionID] = append(s.entries[functionID], entry)
	return nil
}

// List implements logstore.Store.
func (s *Store) List(_ context.Context, functionID string, since time.Time, limit int) ([]types.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.entries[functionID]
	out := make([]types.LogEntry, 0, len(all))
	for _, e := range all {
		if !since.IsZero() && e.Timestamp.Before(since) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
