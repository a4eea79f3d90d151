package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tiercade/tiercade/errs"
	"github.com/tiercade/tiercade/runtime/engine"
	"github.com/tiercade/tiercade/types"
)

// handleInvoke dispatches POST /functions/{id}/invoke by the deployed
// function's type, building the response envelope spec §6 names for that
// type and persisting an ExecutionRecord.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var payload any
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, errs.New(errs.KindSchemaValidation, "invalid request body: %v", err))
			return
		}
	}

	meta, err := s.Registry.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	executionID := uuid.NewString()
	startedAt := time.Now()

	switch meta.Type {
	case types.FunctionTypeCode:
		output, execMeta, execErr := s.Code.Execute(r.Context(), id, "", payload)
		s.recordInvocation(r.Context(), executionID, id, startedAt, output, execErr, nil, nil, nil)
		if execErr != nil {
			writeError(w, execErr)
			return
		}
		w.Header().Set("X-Duration", time.Duration(execMeta.DurationMs*int64(time.Millisecond)).String())
		writeJSON(w, http.StatusOK, map[string]any{
			"output": output,
			"_meta": map[string]any{
				"duration":         execMeta.DurationMs,
				"usedPrecompiled":  execMeta.UsedPrecompiled,
				"fallbackReason":   execMeta.FallbackReason,
				"version":          meta.ActiveVersion,
			},
		})

	case types.FunctionTypeGenerative:
		vars, _ := payload.(map[string]any)
		output, genMeta, execErr := s.Gen.Execute(r.Context(), id, "", vars)
		genRecord := &types.GenerativeMetadata{Model: genMeta.Model, Tokens: genMeta.Tokens, Cached: genMeta.Cached, LatencyMs: genMeta.LatencyMs, StopReason: genMeta.StopReason}
		s.recordInvocation(r.Context(), executionID, id, startedAt, output, execErr, genRecord, nil, nil)
		if execErr != nil {
			writeError(w, execErr)
			return
		}
		body := map[string]any{"output": output}
		if r.URL.Query().Get("includeMetadata") == "true" {
			body["metadata"] = map[string]any{
				"model":      genMeta.Model,
				"tokens":     tokensBody(genMeta.Tokens),
				"cached":     genMeta.Cached,
				"latencyMs":  genMeta.LatencyMs,
				"stopReason": genMeta.StopReason,
			}
		}
		writeJSON(w, http.StatusOK, body)

	case types.FunctionTypeAgentic:
		wfCtx := engine.NewInMemContext(r.Context())
		result, execErr := s.Agent.Run(wfCtx, id, "", payload)
		if execErr != nil {
			s.recordInvocation(r.Context(), executionID, id, startedAt, nil, execErr, nil, nil, nil)
			writeError(w, execErr)
			return
		}
		s.recordInvocation(r.Context(), executionID, id, startedAt, result.Output, nil, nil, result, nil)
		writeJSON(w, http.StatusOK, agenticResponseBody(executionID, id, meta.ActiveVersion, startedAt, result))

	default:
		writeError(w, errs.New(errs.KindInvalidIdentifier, "function %q has unsupported type %q for direct invoke", id, meta.Type))
	}
}

func agenticResponseBody(executionID, functionID, version string, startedAt time.Time, result *types.AgenticResult) map[string]any {
	body := map[string]any{
		"executionId":     executionID,
		"functionId":      functionID,
		"functionVersion": version,
		"status":          result.Status,
		"metrics": map[string]any{
			"durationMs": time.Since(startedAt).Milliseconds(),
			"tokens":     tokensBody(result.TotalTokens),
		},
		"agenticExecution": map[string]any{
			"model":            result.Model,
			"totalTokens":      tokensBody(result.TotalTokens),
			"iterations":       result.Iterations,
			"trace":            traceBody(result.Trace),
			"toolsUsed":        result.ToolsUsed,
			"goalAchieved":     result.GoalAchieved,
			"reasoningSummary": result.ReasoningSummary,
		},
	}
	if result.Output != nil {
		body["output"] = result.Output
	}
	if result.Error != nil {
		body["error"] = result.Error
	}
	return body
}

func traceBody(trace []types.Iteration) []map[string]any {
	out := make([]map[string]any, len(trace))
	for i, it := range trace {
		calls := make([]map[string]any, len(it.ToolCalls))
		for j, c := range it.ToolCalls {
			calls[j] = map[string]any{
				"toolName":   c.ToolName,
				"input":      c.Input,
				"output":     c.Output,
				"durationMs": c.DurationMs,
				"success":    c.Success,
				"error":      c.Error,
			}
		}
		out[i] = map[string]any{
			"index":          it.Index,
			"timestampStart": it.TimestampStart,
			"durationMs":     it.DurationMs,
			"reasoning":      it.Reasoning,
			"toolCalls":      calls,
			"tokens":         tokensBody(it.Tokens),
		}
	}
	return out
}

func tokensBody(t types.TokenUsage) map[string]int {
	return map[string]int{"input": t.InputTokens, "output": t.OutputTokens, "total": t.Total()}
}

// recordInvocation persists an ExecutionRecord best-effort: a store
// failure never fails the invocation response itself.
func (s *Server) recordInvocation(ctx context.Context, executionID, functionID string, startedAt time.Time, output any, execErr error, genMeta *types.GenerativeMetadata, agentic *types.AgenticResult, cascade *types.CascadeResult) {
	status := types.StatusCompleted
	var detail *types.ErrorDetail
	if execErr != nil {
		status = types.StatusFailed
		detail = errorDetail(execErr)
	}
	record := &types.ExecutionRecord{
		Invocation: types.Invocation{
			ExecutionID: executionID,
			FunctionID:  functionID,
			Status:      status,
			StartedAt:   startedAt,
			EndedAt:     time.Now(),
		},
		Output:         output,
		Error:          detail,
		GenerativeMeta: genMeta,
		AgenticResult:  agentic,
		CascadeResult:  cascade,
	}
	if s.Execs != nil {
		_ = s.Execs.Put(ctx, executionID, record)
	}
}

func errorDetail(err error) *types.ErrorDetail {
	if e, ok := err.(*errs.Error); ok {
		return &types.ErrorDetail{Kind: string(e.Kind), Message: e.Message, Stack: e.Stack}
	}
	return &types.ErrorDetail{Kind: string(errs.KindRuntimeError), Message: err.Error()}
}
