// Package logstore persists the per-function log lines served by
// GET /api/functions/{id}/logs (§6), append-only and queryable by a
// since-timestamp plus a result limit.
//
// Available implementations:
//   - memory: in-memory, single-process (development/testing)
//   - mongo: MongoDB-backed durable storage (production)
package logstore

import (
	"context"
	"time"

	"github.com/tiercade/tiercade/types"
)

// Store persists LogEntry records under a function id.
type Store interface {
	// Append records one log line for functionID.
	Append(ctx context.Context, functionID string, entry types.LogEntry) error
	// List returns entries for functionID with Timestamp >= since (zero
	// means no lower bound), oldest first, capped at limit entries.
	List(ctx context.Context, functionID string, since time.Time, limit int) ([]types.LogEntry, error)
}
