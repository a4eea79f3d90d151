// Package execstore persists ExecutionRecord documents, one per
// invocation, for GET /cascades/{id}/executions/{executionId} (§6) and for
// any caller that needs to inspect a past invocation's output, error, or
// cascade history after the fact.
//
// Available implementations:
//   - memory: in-memory, single-process (development/testing)
//   - mongo: MongoDB-backed durable storage (production)
package execstore

import (
	"context"
	"errors"

	"github.com/tiercade/tiercade/types"
)

// ErrNotFound is returned when an execution id has no stored record.
var ErrNotFound = errors.New("execution record not found")

// Store persists ExecutionRecord documents keyed by execution id.
type Store interface {
	// Put upserts the record for executionID, overwriting any prior record
	// for the same id (a cascade updates its record as tiers escalate).
	Put(ctx context.Context, executionID string, record *types.ExecutionRecord) error
	// Get retrieves the record for executionID, or ErrNotFound.
	Get(ctx context.Context, executionID string) (*types.ExecutionRecord, error)
}
