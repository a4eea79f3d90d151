package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tiercade/tiercade/errs"
	"github.com/tiercade/tiercade/execstore"
	"github.com/tiercade/tiercade/runtime/engine"
	"github.com/tiercade/tiercade/types"
)

type cascadeInvokeBody struct {
	Payload   any      `json:"payload"`
	Assignees []string `json:"assignees"`
}

// handleCascadeInvoke runs POST /cascades/{id}/invoke, returning either the
// final result envelope or the pending-human envelope (spec §6).
func (s *Server) handleCascadeInvoke(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body cascadeInvokeBody
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, errs.New(errs.KindSchemaValidation, "invalid request body: %v", err))
			return
		}
	}

	executionID := uuid.NewString()
	startedAt := time.Now()
	wfCtx := engine.NewInMemContext(r.Context())

	result, err := s.Cascade.Run(wfCtx, id, "", body.Payload, body.Assignees)
	if err != nil && result == nil {
		s.recordInvocation(r.Context(), executionID, id, startedAt, nil, err, nil, nil, nil)
		writeError(w, err)
		return
	}
	s.recordInvocation(r.Context(), executionID, id, startedAt, result.Output, nil, nil, nil, result)

	if result.Pending != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "pending",
			"taskId":    result.Pending.TaskID,
			"taskUrl":   result.Pending.TaskURL,
			"tier":      "human",
			"assignees": result.Pending.Assignees,
			"expiresAt": result.Pending.ExpiresAt,
		})
		return
	}

	body2 := map[string]any{
		"output":       result.Output,
		"successTier":  result.SuccessTier,
		"history":      historyBody(result.History),
		"skippedTiers": result.SkippedTiers,
		"metrics": map[string]any{
			"totalDurationMs": result.TotalDurationMs,
			"tierDurations":   result.TierDurations,
			"escalations":     result.Escalations,
			"totalRetries":    result.TotalRetries,
			"tokens":          tokensBody(result.Tokens),
		},
	}
	if err != nil {
		// every tier failed/timed out: still 200 with the full history per
		// the cascade envelope contract, surfaced via the error field.
		body2["error"] = errorDetail(err)
	}
	writeJSON(w, http.StatusOK, body2)
}

func historyBody(history []types.CascadeAttempt) []map[string]any {
	out := make([]map[string]any, len(history))
	for i, a := range history {
		entry := map[string]any{
			"tier":       a.Tier,
			"attempt":    a.Attempt,
			"status":     a.Status,
			"durationMs": a.DurationMs,
		}
		if a.Error != nil {
			entry["error"] = a.Error
		}
		out[i] = entry
	}
	return out
}

// handleGetExecution serves GET /cascades/{id}/executions/{executionId}.
func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	record, err := s.Execs.Get(r.Context(), r.PathValue("executionId"))
	if errors.Is(err, execstore.ErrNotFound) {
		writeError(w, errs.New(errs.KindFunctionNotFound, "execution %q not found", r.PathValue("executionId")))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}
