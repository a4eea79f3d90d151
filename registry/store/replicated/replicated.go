// Package replicated provides a Pulse replicated-map backed implementation
// of the registry metadata store.
//
// The store persists FunctionMetadata in a Pulse replicated map (rmap),
// itself backed by Redis. Writes made on one node become visible on every
// other node subscribed to the same map within its propagation delay —
// this is the concrete mechanism realizing the "≤2s typical" eventual
// consistency window spec §4.1 allows readers to observe after a Deploy.
// Code artifacts are not replicated here: they are expected to live in a
// shared CodeStore (e.g. registry/store/mongo) reachable from every node.
package replicated

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tiercade/tiercade/registry/store"
	"github.com/tiercade/tiercade/types"
)

// Map is the minimal replicated-map contract required by this store.
//
// Satisfied by *rmap.Map from goa.design/pulse/rmap. Defined as a narrow
// interface here so the store is unit-testable without Redis.
type Map interface {
	Delete(ctx context.Context, key string) (string, error)
	Get(key string) (string, bool)
	Keys() []string
	Set(ctx context.Context, key, value string) (string, error)
}

// MetadataStore persists FunctionMetadata in a replicated map. Safe for
// concurrent use when backed by a concurrent-safe Map (such as rmap.Map).
type MetadataStore struct {
	m Map
}

const metaKeyPrefix = "registry:function:"

// New creates a replicated metadata store backed by m.
func New(m Map) *MetadataStore {
	return &MetadataStore{m: m}
}

var _ store.MetadataStore = (*MetadataStore)(nil)

// SaveMetadata stores or replaces the metadata for an id.
func (s *MetadataStore) SaveMetadata(ctx context.Context, meta *types.FunctionMetadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata %q: %w", meta.ID, err)
	}
	if _, err := s.m.Set(ctx, metaKey(meta.ID), string(b)); err != nil {
		return fmt.Errorf("store metadata %q: %w", meta.ID, err)
	}
	return nil
}

// GetMetadata retrieves metadata by id.
func (s *MetadataStore) GetMetadata(ctx context.Context, id string) (*types.FunctionMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	val, ok := s.m.Get(metaKey(id))
	if !ok {
		return nil, store.ErrNotFound
	}
	var m types.FunctionMetadata
	if err := json.Unmarshal([]byte(val), &m); err != nil {
		return nil, fmt.Errorf("unmarshal metadata %q: %w", id, err)
	}
	return &m, nil
}

// DeleteMetadata removes metadata by id.
func (s *MetadataStore) DeleteMetadata(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := metaKey(id)
	if _, ok := s.m.Get(key); !ok {
		return store.ErrNotFound
	}
	if _, err := s.m.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete metadata %q: %w", id, err)
	}
	return nil
}

// ListMetadata returns every registered function's metadata visible to
// this node.
func (s *MetadataStore) ListMetadata(ctx context.Context) ([]*types.FunctionMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]*types.FunctionMetadata, 0)
	for _, k := range s.m.Keys() {
		if !strings.HasPrefix(k, metaKeyPrefix) {
			continue
		}
		id := strings.TrimPrefix(k, metaKeyPrefix)
		m, err := s.GetMetadata(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func metaKey(id string) string { return metaKeyPrefix + id }
