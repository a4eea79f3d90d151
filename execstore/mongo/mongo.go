// Package mongo is a MongoDB-backed execstore.Store, grounded on
// features/run/mongo/store.go's thin upsert-by-id/load-by-id delegation to
// a driver-backed collection (matching registry/store/mongo's direct-driver
// style rather than the teacher's extra client-interface layer, since this
// module already has exactly one such layer in registry/store/mongo and
// duplicating it here would add no testability the fake driver doesn't
// already provide).
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/tiercade/tiercade/execstore"
	"github.com/tiercade/tiercade/types"
)

// Store implements execstore.Store.
type Store struct {
	collection *mongo.Collection
}

var _ execstore.Store = (*Store)(nil)

type executionDocument struct {
	ID             string                    `bson:"_id"`
	Invocation     types.Invocation          `bson:"invocation"`
	Output         bson.Raw                  `bson:"output,omitempty"`
	Error          *types.ErrorDetail        `bson:"error,omitempty"`
	GenerativeMeta *types.GenerativeMetadata `bson:"generative_meta,omitempty"`
	AgenticResult  *types.AgenticResult      `bson:"agentic_result,omitempty"`
	CascadeResult  *types.CascadeResult      `bson:"cascade_result,omitempty"`
}

// NewStore creates a Store backed by collection.
func NewStore(collection *mongo.Collection) *Store {
	return &Store{collection: collection}
}

// Put implements execstore.Store.
func (s *Store) Put(ctx context.Context, executionID string, record *types.ExecutionRecord) error {
	doc, err := toDocument(executionID, record)
	if err != nil {
		return fmt.Errorf("mongodb encode execution %q: %w", executionID, err)
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"_id": executionID}, doc, opts); err != nil {
		return fmt.Errorf("mongodb save execution %q: %w", executionID, err)
	}
	return nil
}

// Get implements execstore.Store.
func (s *Store) Get(ctx context.Context, executionID string) (*types.ExecutionRecord, error) {
	var doc executionDocument
	if err := s.collection.FindOne(ctx, bson.M{"_id": executionID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, execstore.ErrNotFound
		}
		return nil, fmt.Errorf("mongodb get execution %q: %w", executionID, err)
	}
	return fromDocument(&doc)
}

func toDocument(executionID string, record *types.ExecutionRecord) (*executionDocument, error) {
	doc := &executionDocument{
		ID:             executionID,
		Invocation:     record.Invocation,
		Error:          record.Error,
		GenerativeMeta: record.GenerativeMeta,
		AgenticResult:  record.AgenticResult,
		CascadeResult:  record.CascadeResult,
	}
	if record.Output != nil {
		raw, err := bson.Marshal(bson.M{"value": record.Output})
		if err != nil {
			return nil, err
		}
		doc.Output = raw
	}
	return doc, nil
}

func fromDocument(doc *executionDocument) (*types.ExecutionRecord, error) {
	record := &types.ExecutionRecord{
		Invocation:     doc.Invocation,
		Error:          doc.Error,
		GenerativeMeta: doc.GenerativeMeta,
		AgenticResult:  doc.AgenticResult,
		CascadeResult:  doc.CascadeResult,
	}
	if len(doc.Output) > 0 {
		var wrapper struct {
			Value any `bson:"value"`
		}
		if err := bson.Unmarshal(doc.Output, &wrapper); err != nil {
			return nil, err
		}
		record.Output = wrapper.Value
	}
	return record, nil
}
