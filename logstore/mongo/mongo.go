// Package mongo is a MongoDB-backed logstore.Store, one document per log
// line, indexed by (function id, timestamp) for the
// GET /api/functions/{id}/logs?since&limit query (§6).
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/tiercade/tiercade/logstore"
	"github.com/tiercade/tiercade/types"
)

// Store implements logstore.Store.
type Store struct {
	collection *mongo.Collection
}

var _ logstore.Store = (*Store)(nil)

type logDocument struct {
	FunctionID string    `bson:"function_id"`
	Timestamp  time.Time `bson:"timestamp"`
	Level      string    `bson:"level"`
	Message    string    `bson:"message"`
}

// NewStore creates a Store backed by collection. Grounded on
// features/runlog/mongo/clients/mongo/client.go's (run_id, _id)-ordered
// index, adapted to (function_id, timestamp) since log lines have no
// analogous monotonically-increasing cursor id of their own in SPEC_FULL.
func NewStore(ctx context.Context, collection *mongo.Collection) (*Store, error) {
	index := mongo.IndexModel{
		Keys: bson.D{{Key: "function_id", Value: 1}, {Key: "timestamp", Value: 1}},
	}
	if _, err := collection.Indexes().CreateOne(ctx, index); err != nil {
		return nil, fmt.Errorf("mongodb ensure log index: %w", err)
	}
	return &Store{collection: collection}, nil
}

// Append implements logstore.Store.
func (s *Store) Append(ctx context.Context, functionID string, entry types.LogEntry) error {
	doc := logDocument{FunctionID: functionID, Timestamp: entry.Timestamp.UTC(), Level: entry.Level, Message: entry.Message}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("mongodb append log for %q: %w", functionID, err)
	}
	return nil
}

// List implements logstore.Store.
func (s *Store) List(ctx context.Context, functionID string, since time.Time, limit int) ([]types.LogEntry, error) {
	filter := bson.M{"function_id": functionID}
	if !since.IsZero() {
		filter["timestamp"] = bson.M{"$gte": since.UTC()}
	}

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb list logs for %q: %w", functionID, err)
	}
	defer cur.Close(ctx)

	var out []types.LogEntry
	for cur.Next(ctx) {
		var doc logDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongodb decode log for %q: %w", functionID, err)
		}
		out = append(out, types.LogEntry{Timestamp: doc.Timestamp, Level: doc.Level, Message: doc.Message})
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("mongodb iterate logs for %q: %w", functionID, err)
	}
	return out, nil
}
