// Package mongo persists agentic-function conversation history across
// invocations, backing AgenticConfig.EnableMemory. It follows the same
// thin-wrapper-over-a-collection shape as registry/store/mongo.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/tiercade/tiercade/runtime/agentexec"
	"github.com/tiercade/tiercade/runtime/model"
)

// Store implements agentexec.Memory backed by a single MongoDB collection,
// one document per (functionID, sessionKey) pair.
type Store struct {
	collection *mongo.Collection
}

var _ agentexec.Memory = (*Store)(nil)

type messageDocument struct {
	Role    string `bson:"role"`
	Content string `bson:"content"`
}

type historyDocument struct {
	ID       string            `bson:"_id"`
	Messages []messageDocument `bson:"messages"`
}

// NewStore creates a Store backed by collection.
func NewStore(collection *mongo.Collection) *Store {
	return &Store{collection: collection}
}

func docID(key *agentexec.MemoryKey) string {
	return key.FunctionID + "/" + key.SessionKey
}

// Load returns the conversation history for key, or an empty slice if none
// has been recorded yet.
func (s *Store) Load(key *agentexec.MemoryKey) ([]model.Message, error) {
	ctx := context.Background()
	var doc historyDocument
	if err := s.collection.FindOne(ctx, bson.M{"_id": docID(key)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("mongodb load memory %q: %w", docID(key), err)
	}
	out := make([]model.Message, 0, len(doc.Messages))
	for _, m := range doc.Messages {
		out = append(out, model.Message{Role: model.ConversationRole(m.Role), Content: m.Content})
	}
	return out, nil
}

// Append replaces the stored history for key with messages, upserting the
// document if this is the first turn recorded for key.
func (s *Store) Append(key *agentexec.MemoryKey, messages []model.Message) error {
	ctx := context.Background()
	docs := make([]messageDocument, 0, len(messages))
	for _, m := range messages {
		docs = append(docs, messageDocument{Role: string(m.Role), Content: m.Content})
	}
	opts := options.Replace().SetUpsert(true)
	_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": docID(key)}, historyDocument{ID: docID(key), Messages: docs}, opts)
	if err != nil {
		return fmt.Errorf("mongodb append memory %q: %w", docID(key), err)
	}
	return nil
}
