// Package memory provides an in-memory implementation of the registry
// metadata and code stores.
//
// Suitable for development, testing, and single-node deployments where
// persistence across restarts is not required.
package memory

import (
	"context"
	"sync"

	"github.com/tiercade/tiercade/registry/store"
	"github.com/tiercade/tiercade/types"
)

// MetadataStore is an in-memory implementation of store.MetadataStore. It
// is safe for concurrent use.
type MetadataStore struct {
	mu   sync.RWMutex
	meta map[string]*types.FunctionMetadata
}

var _ store.MetadataStore = (*MetadataStore)(nil)

// NewMetadataStore creates a new in-memory metadata store.
func NewMetadataStore() *MetadataStore {
	return &MetadataStore{meta: make(map[string]*types.FunctionMetadata)}
}

// SaveMetadata stores or replaces the metadata for an id.
func (s *MetadataStore) SaveMetadata(ctx context.Context, meta *types.FunctionMetadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := *meta
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta[meta.ID] = &cp
	return nil
}

// GetMetadata retrieves metadata by id.
func (s *MetadataStore) GetMetadata(ctx context.Context, id string) (*types.FunctionMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.meta[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

// DeleteMetadata removes metadata by id.
func (s *MetadataStore) DeleteMetadata(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.meta[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.meta, id)
	return nil
}

// ListMetadata returns all registered function ids' metadata.
func (s *MetadataStore) ListMetadata(ctx context.Context) ([]*types.FunctionMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.FunctionMetadata, 0, len(s.meta))
	for _, m := range s.meta {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

// CodeStore is an in-memory implementation of store.CodeStore.
type CodeStore struct {
	mu        sync.RWMutex
	artifacts map[string]*types.CodeArtifact // key: id + "\x00" + version
}

var _ store.CodeStore = (*CodeStore)(nil)

// NewCodeStore creates a new in-memory code store.
func NewCodeStore() *CodeStore {
	return &CodeStore{artifacts: make(map[string]*types.CodeArtifact)}
}

func artifactKey(id, version string) string { return id + "\x00" + version }

// SaveArtifact stores the artifact for (id, version).
func (s *CodeStore) SaveArtifact(ctx context.Context, id, version string, artifact *types.CodeArtifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := *artifact
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[artifactKey(id, version)] = &cp
	return nil
}

// GetArtifact retrieves the artifact for (id, version).
func (s *CodeStore) GetArtifact(ctx context.Context, id, version string) (*types.CodeArtifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.artifacts[artifactKey(id, version)]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// SaveCompiled caches a pre-compiled artifact for (id, version).
func (s *CodeStore) SaveCompiled(ctx context.Context, id, version string, compiled []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.artifacts[artifactKey(id, version)]
	if !ok {
		return store.ErrNotFound
	}
	cp := *a
	cp.CompiledSource = compiled
	s.artifacts[artifactKey(id, version)] = &cp
	return nil
}

// DeleteArtifacts removes all artifacts for id across every version.
func (s *CodeStore) DeleteArtifacts(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := id + "\x00"
	for k := range s.artifacts {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(s.artifacts, k)
		}
	}
	return nil
}
