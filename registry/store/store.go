// Package store defines the persistence layer for the function registry.
//
// Two interfaces are defined: MetadataStore for FunctionMetadata records
// (the `meta:{id}` keyspace) and CodeStore for versioned artifacts
// (`code:{id}:{version}[:compiled|:map]`). Available implementations:
//
//   - memory: in-memory, single-process (development/testing)
//   - mongo: MongoDB-backed durable storage (production)
//   - replicated: Pulse replicated-map backed storage (multi-node, the
//     concrete mechanism behind the ≤2s propagation window in spec §4.1)
//
// To add a new backend, implement both interfaces and return ErrNotFound
// for missing records.
package store

import (
	"context"
	"errors"

	"github.com/tiercade/tiercade/types"
)

// ErrNotFound is returned when a function, version, or artifact does not
// exist in the store.
var ErrNotFound = errors.New("not found")

// MetadataStore persists FunctionMetadata. Implementations must be safe
// for concurrent use; callers (the Registry) are responsible for
// serializing mutations per FunctionId (spec §4.1 "Consistency").
type MetadataStore interface {
	// SaveMetadata stores or replaces the metadata for an id.
	SaveMetadata(ctx context.Context, meta *types.FunctionMetadata) error
	// GetMetadata retrieves metadata by id. Returns ErrNotFound if absent.
	GetMetadata(ctx context.Context, id string) (*types.FunctionMetadata, error)
	// DeleteMetadata removes metadata by id. Returns ErrNotFound if absent.
	DeleteMetadata(ctx context.Context, id string) error
	// ListMetadata returns all registered function ids' metadata.
	ListMetadata(ctx context.Context) ([]*types.FunctionMetadata, error)
}

// CodeStore persists per-(id,version) code artifacts.
type CodeStore interface {
	// SaveArtifact stores the artifact for (id, version), replacing any
	// existing one.
	SaveArtifact(ctx context.Context, id, version string, artifact *types.CodeArtifact) error
	// GetArtifact retrieves the artifact for (id, version).
	GetArtifact(ctx context.Context, id, version string) (*types.CodeArtifact, error)
	// SaveCompiled caches a pre-compiled artifact produced by on-demand
	// compilation back to `code:{id}:{version}:compiled`.
	SaveCompiled(ctx context.Context, id, version string, compiled []byte) error
	// DeleteArtifacts removes all artifacts for id across every version.
	// Best-effort: implementations should not fail the overall Delete when
	// individual artifact removal fails (spec §4.1 "best-effort on artifact
	// cleanup").
	DeleteArtifacts(ctx context.Context, id string) error
}
