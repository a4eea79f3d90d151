// Package mongo provides a MongoDB implementation of the registry
// metadata and code stores, suitable for production deployments that need
// durability across restarts.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/tiercade/tiercade/registry/store"
	"github.com/tiercade/tiercade/types"
)

// MetadataStore is a MongoDB implementation of store.MetadataStore.
type MetadataStore struct {
	collection *mongo.Collection
}

var _ store.MetadataStore = (*MetadataStore)(nil)

// metadataDocument is the MongoDB document representation of
// FunctionMetadata. Type-specific configs are stored as raw BSON so the
// schema does not need to change when a config shape evolves.
type metadataDocument struct {
	ID             string    `bson:"_id"`
	Type           string    `bson:"type"`
	ActiveVersion  string    `bson:"active_version"`
	Versions       []string  `bson:"versions"`
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"`
	Owner          string    `bson:"owner"`
	ScopesRequired []string  `bson:"scopes_required,omitempty"`
	RolledBackFrom string    `bson:"rolled_back_from,omitempty"`
	Config         bson.Raw  `bson:"config,omitempty"`
}

// NewMetadataStore creates a MetadataStore backed by the given collection.
func NewMetadataStore(collection *mongo.Collection) *MetadataStore {
	return &MetadataStore{collection: collection}
}

// SaveMetadata upserts the metadata document for meta.ID.
func (s *MetadataStore) SaveMetadata(ctx context.Context, meta *types.FunctionMetadata) error {
	doc, err := toDocument(meta)
	if err != nil {
		return fmt.Errorf("mongodb encode metadata %q: %w", meta.ID, err)
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"_id": meta.ID}, doc, opts); err != nil {
		return fmt.Errorf("mongodb save metadata %q: %w", meta.ID, err)
	}
	return nil
}

// GetMetadata retrieves metadata by id.
func (s *MetadataStore) GetMetadata(ctx context.Context, id string) (*types.FunctionMetadata, error) {
	var doc metadataDocument
	if err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("mongodb get metadata %q: %w", id, err)
	}
	return fromDocument(&doc)
}

// DeleteMetadata removes metadata by id.
func (s *MetadataStore) DeleteMetadata(ctx context.Context, id string) error {
	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("mongodb delete metadata %q: %w", id, err)
	}
	if result.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListMetadata returns every registered function's metadata.
func (s *MetadataStore) ListMetadata(ctx context.Context) ([]*types.FunctionMetadata, error) {
	cursor, err := s.collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("mongodb list metadata: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var docs []metadataDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongodb list metadata decode: %w", err)
	}
	out := make([]*types.FunctionMetadata, 0, len(docs))
	for i := range docs {
		m, err := fromDocument(&docs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func toDocument(m *types.FunctionMetadata) (*metadataDocument, error) {
	var cfg any
	switch m.Type {
	case types.FunctionTypeCode:
		cfg = m.Code
	case types.FunctionTypeGenerative:
		cfg = m.Generative
	case types.FunctionTypeAgentic:
		cfg = m.Agentic
	case types.FunctionTypeCascade:
		cfg = m.Cascade
	}
	raw, err := bson.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	return &metadataDocument{
		ID:             m.ID,
		Type:           string(m.Type),
		ActiveVersion:  m.ActiveVersion,
		Versions:       m.Versions,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
		Owner:          m.Owner,
		ScopesRequired: m.ScopesRequired,
		RolledBackFrom: m.RolledBackFrom,
		Config:         raw,
	}, nil
}

func fromDocument(doc *metadataDocument) (*types.FunctionMetadata, error) {
	m := &types.FunctionMetadata{
		ID:             doc.ID,
		Type:           types.FunctionType(doc.Type),
		ActiveVersion:  doc.ActiveVersion,
		Versions:       doc.Versions,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
		Owner:          doc.Owner,
		ScopesRequired: doc.ScopesRequired,
		RolledBackFrom: doc.RolledBackFrom,
	}
	if len(doc.Config) == 0 {
		return m, nil
	}
	switch m.Type {
	case types.FunctionTypeCode:
		m.Code = &types.CodeConfig{}
		return m, bson.Unmarshal(doc.Config, m.Code)
	case types.FunctionTypeGenerative:
		m.Generative = &types.GenerativeConfig{}
		return m, bson.Unmarshal(doc.Config, m.Generative)
	case types.FunctionTypeAgentic:
		m.Agentic = &types.AgenticConfig{}
		return m, bson.Unmarshal(doc.Config, m.Agentic)
	case types.FunctionTypeCascade:
		m.Cascade = &types.CascadeConfig{}
		return m, bson.Unmarshal(doc.Config, m.Cascade)
	}
	return m, nil
}

// CodeStore is a MongoDB implementation of store.CodeStore.
type CodeStore struct {
	collection *mongo.Collection
}

var _ store.CodeStore = (*CodeStore)(nil)

type artifactDocument struct {
	ID             string `bson:"_id"` // id + "\x00" + version
	Source         []byte `bson:"source"`
	CompiledSource []byte `bson:"compiled_source,omitempty"`
	SourceMap      []byte `bson:"source_map,omitempty"`
	Language       string `bson:"language"`
	EntryPoint     string `bson:"entry_point"`
}

// NewCodeStore creates a CodeStore backed by the given collection.
func NewCodeStore(collection *mongo.Collection) *CodeStore {
	return &CodeStore{collection: collection}
}

func artifactID(id, version string) string { return id + "\x00" + version }

// SaveArtifact upserts the artifact document for (id, version).
func (s *CodeStore) SaveArtifact(ctx context.Context, id, version string, artifact *types.CodeArtifact) error {
	doc := artifactDocument{
		ID:             artifactID(id, version),
		Source:         artifact.Source,
		CompiledSource: artifact.CompiledSource,
		SourceMap:      artifact.SourceMap,
		Language:       artifact.Language,
		EntryPoint:     artifact.EntryPoint,
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, opts); err != nil {
		return fmt.Errorf("mongodb save artifact %q/%q: %w", id, version, err)
	}
	return nil
}

// GetArtifact retrieves the artifact for (id, version).
func (s *CodeStore) GetArtifact(ctx context.Context, id, version string) (*types.CodeArtifact, error) {
	var doc artifactDocument
	if err := s.collection.FindOne(ctx, bson.M{"_id": artifactID(id, version)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("mongodb get artifact %q/%q: %w", id, version, err)
	}
	return &types.CodeArtifact{
		Source:         doc.Source,
		CompiledSource: doc.CompiledSource,
		SourceMap:      doc.SourceMap,
		Language:       doc.Language,
		EntryPoint:     doc.EntryPoint,
	}, nil
}

// SaveCompiled caches a pre-compiled artifact for (id, version).
func (s *CodeStore) SaveCompiled(ctx context.Context, id, version string, compiled []byte) error {
	result, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": artifactID(id, version)},
		bson.M{"$set": bson.M{"compiled_source": compiled}},
	)
	if err != nil {
		return fmt.Errorf("mongodb cache compiled artifact %q/%q: %w", id, version, err)
	}
	if result.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteArtifacts removes all artifacts for id across every version,
// best-effort: a failed delete here does not fail the overall registry
// Delete operation (spec §4.1).
func (s *CodeStore) DeleteArtifacts(ctx context.Context, id string) error {
	_, err := s.collection.DeleteMany(ctx, bson.M{"_id": bson.M{"$regex": "^" + id + "\x00"}})
	if err != nil {
		return fmt.Errorf("mongodb delete artifacts %q: %w", id, err)
	}
	return nil
}
