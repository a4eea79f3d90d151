// Package cache implements the generative-response content-addressed cache
// (§4.3 step 4): a collision-resistant digest over the resolved call shape
// keys a stored output with a TTL.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Key is the cache digest for one generative call.
type Key string

// Digest computes the cache key as the hex-encoded SHA-256 of the canonical
// JSON encoding of the resolved call shape: model, system prompt, user
// prompt template, resolved variables, and output schema (Open Question
// decision recorded in SPEC_FULL.md §9). The function id, version and
// temperature are not part of the digest, so calls that differ only in
// those share one cache entry.
func Digest(model, systemPrompt, userPromptTemplate string, variables map[string]any, outputSchema []byte) (Key, error) {
	type shape struct {
		Model        string         `json:"model"`
		SystemPrompt string         `json:"systemPrompt"`
		UserPrompt   string         `json:"userPromptTemplate"`
		Variables    map[string]any `json:"variables"`
		OutputSchema string         `json:"outputSchema"`
	}
	canonical, err := json.Marshal(shape{
		Model:        model,
		SystemPrompt: systemPrompt,
		UserPrompt:   userPromptTemplate,
		Variables:    variables,
		OutputSchema: string(outputSchema),
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return Key(hex.EncodeToString(sum[:])), nil
}

// Store is the cache contract the Generative Executor consults. Get reports
// whether the key was present; a miss is not an error.
type Store interface {
	Get(ctx context.Context, key Key) (value []byte, ok bool, err error)
	Set(ctx context.Context, key Key, value []byte, ttl time.Duration) error
}
