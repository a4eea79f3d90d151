// Package registry implements the Registry & Code Store component (§4.1):
// deploy/rollback/delete of function metadata and code artifacts, sequenced
// per FunctionId by a per-id lock, with lock-free reads.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/tiercade/tiercade/errs"
	"github.com/tiercade/tiercade/registry/store"
	"github.com/tiercade/tiercade/types"
)

// keyedMutex is a sharded set of per-key locks, grounded on the teacher's
// per-toolset lock-free-read / locked-write split in registry/store/memory:
// reads never block on it, only Deploy/Rollback/Delete for the same id do.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Registry composes a metadata store and a code store behind the Deploy /
// Rollback / Get / Delete / GetCompiled operations of spec §4.1.
type Registry struct {
	meta  store.MetadataStore
	code  store.CodeStore
	locks *keyedMutex
}

// New creates a Registry backed by the given metadata and code stores.
// code may be nil for deployments that never carry a CodeArtifact (e.g. an
// installation serving only generative/agentic/cascade functions).
func New(meta store.MetadataStore, code store.CodeStore) *Registry {
	return &Registry{meta: meta, code: code, locks: newKeyedMutex()}
}

// DeployRequest carries the fields a caller supplies to Deploy. Exactly one
// of the type-specific config pointers is expected to be set, matching
// metadata.Type.
type DeployRequest struct {
	ID             string
	Type           types.FunctionType
	Version        string
	Owner          string
	ScopesRequired []string

	Code       *types.CodeConfig
	Generative *types.GenerativeConfig
	Agentic    *types.AgenticConfig
	Cascade    *types.CascadeConfig

	// Source is the code artifact source. Deploy stores it (with Language
	// and EntryPoint) only for code-type deployments.
	Source     []byte
	Language   string
	EntryPoint string
}

// Deploy validates req.ID, then creates or appends a version under a per-id
// lock. Code artifacts are written before the metadata pointer update is
// published, so a reader that observes the new ActiveVersion is guaranteed
// to see its artifact (write-then-publish ordering, §4.1).
func (r *Registry) Deploy(ctx context.Context, req DeployRequest) (*types.FunctionMetadata, error) {
	if !types.ValidFunctionID(req.ID) {
		return nil, errs.New(errs.KindInvalidIdentifier, "invalid function id %q", req.ID)
	}

	unlock := r.locks.lock(req.ID)
	defer unlock()

	existing, err := r.meta.GetMetadata(ctx, req.ID)
	if err != nil && err != store.ErrNotFound {
		return nil, errs.Wrap(errs.KindRuntimeError, err, "load metadata %q", req.ID)
	}

	now := time.Now()
	var m *types.FunctionMetadata
	if existing == nil {
		m = &types.FunctionMetadata{
			ID:             req.ID,
			Type:           req.Type,
			ActiveVersion:  req.Version,
			Versions:       []string{req.Version},
			CreatedAt:      now,
			UpdatedAt:      now,
			Owner:          req.Owner,
			ScopesRequired: req.ScopesRequired,
		}
	} else {
		if existing.HasVersion(req.Version) {
			return nil, errs.New(errs.KindDuplicateVersion, "version %q already exists for function %q", req.Version, req.ID)
		}
		cp := *existing
		cp.Versions = append(append([]string{}, existing.Versions...), req.Version)
		cp.ActiveVersion = req.Version
		cp.UpdatedAt = now
		cp.RolledBackFrom = ""
		m = &cp
	}

	m.Code = req.Code
	m.Generative = req.Generative
	m.Agentic = req.Agentic
	m.Cascade = req.Cascade

	if req.Type == types.FunctionTypeCode && r.code != nil {
		artifact := &types.CodeArtifact{
			Source:     req.Source,
			Language:   req.Language,
			EntryPoint: req.EntryPoint,
		}
		if err := r.code.SaveArtifact(ctx, req.ID, req.Version, artifact); err != nil {
			return nil, errs.Wrap(errs.KindRuntimeError, err, "save artifact %q/%q", req.ID, req.Version)
		}
	}

	if err := r.meta.SaveMetadata(ctx, m); err != nil {
		return nil, errs.Wrap(errs.KindRuntimeError, err, "publish metadata %q", req.ID)
	}
	return m, nil
}

// Rollback sets activeVersion to toVersion and records rolledBackFrom,
// without mutating the versions list. Fails with KindVersionNotFound if
// toVersion was never deployed.
func (r *Registry) Rollback(ctx context.Context, id, toVersion string) (*types.FunctionMetadata, error) {
	unlock := r.locks.lock(id)
	defer unlock()

	m, err := r.meta.GetMetadata(ctx, id)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, errs.New(errs.KindFunctionNotFound, "function %q not found", id)
		}
		return nil, errs.Wrap(errs.KindRuntimeError, err, "load metadata %q", id)
	}
	if !m.HasVersion(toVersion) {
		return nil, errs.New(errs.KindVersionNotFound, "version %q not found for function %q", toVersion, id)
	}

	cp := *m
	cp.RolledBackFrom = cp.ActiveVersion
	cp.ActiveVersion = toVersion
	cp.UpdatedAt = time.Now()

	if err := r.meta.SaveMetadata(ctx, &cp); err != nil {
		return nil, errs.Wrap(errs.KindRuntimeError, err, "publish rollback %q", id)
	}
	return &cp, nil
}

// Get retrieves metadata by id. Reads are lock-free, per §4.1.
func (r *Registry) Get(ctx context.Context, id string) (*types.FunctionMetadata, error) {
	m, err := r.meta.GetMetadata(ctx, id)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, errs.New(errs.KindFunctionNotFound, "function %q not found", id)
		}
		return nil, errs.Wrap(errs.KindRuntimeError, err, "load metadata %q", id)
	}
	return m, nil
}

// List returns every registered function's metadata. Lock-free.
func (r *Registry) List(ctx context.Context) ([]*types.FunctionMetadata, error) {
	all, err := r.meta.ListMetadata(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.KindRuntimeError, err, "list metadata")
	}
	return all, nil
}

// Delete removes metadata and, if present, every code artifact version for
// id, sequenced under the same per-id lock as Deploy/Rollback.
func (r *Registry) Delete(ctx context.Context, id string) error {
	unlock := r.locks.lock(id)
	defer unlock()

	if err := r.meta.DeleteMetadata(ctx, id); err != nil {
		if err == store.ErrNotFound {
			return errs.New(errs.KindFunctionNotFound, "function %q not found", id)
		}
		return errs.Wrap(errs.KindRuntimeError, err, "delete metadata %q", id)
	}
	if r.code != nil {
		// Artifact cleanup is best-effort: once the metadata is gone the
		// function no longer exists, so a cleanup failure does not fail Delete.
		_ = r.code.DeleteArtifacts(ctx, id)
	}
	return nil
}

// GetCompiled returns the code artifact stored for the given version of id,
// for the code executor to select between pre-compiled and source forms.
func (r *Registry) GetCompiled(ctx context.Context, id, version string) (*types.CodeArtifact, error) {
	if r.code == nil {
		return nil, errs.New(errs.KindFunctionNotFound, "no code store configured")
	}
	artifact, err := r.code.GetArtifact(ctx, id, version)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, errs.New(errs.KindVersionNotFound, "artifact %q/%q not found", id, version)
		}
		return nil, errs.Wrap(errs.KindRuntimeError, err, "load artifact %q/%q", id, version)
	}
	return artifact, nil
}

// SaveCompiled caches a pre-compiled artifact for (id, version), used by the
// code executor after a fallback compilation so subsequent invocations can
// prefer the pre-compiled form.
func (r *Registry) SaveCompiled(ctx context.Context, id, version string, compiled []byte) error {
	if r.code == nil {
		return nil
	}
	if err := r.code.SaveCompiled(ctx, id, version, compiled); err != nil {
		return errs.Wrap(errs.KindRuntimeError, err, "cache compiled artifact %q/%q", id, version)
	}
	return nil
}
