// Package agentexec implements the Agentic Executor (§4.4): a bounded
// think-act loop that drives an LLM through a tool catalog, recording an
// always-returned execution trace that is complete on success and partial
// on timeout or failure.
//
// The loop is written against engine.WorkflowContext (teacher:
// runtime/agent/runtime/workflow_loop.go), so the same code runs against any
// WorkflowContext. The tests, the HTTP API and the Cascade Executor (as
// driven by the HTTP API) all run it over the in-memory engine.
package agentexec

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/tiercade/tiercade/errs"
	"github.com/tiercade/tiercade/registry"
	"github.com/tiercade/tiercade/runtime/engine"
	"github.com/tiercade/tiercade/runtime/model"
	"github.com/tiercade/tiercade/runtime/tooldispatch"
	"github.com/tiercade/tiercade/types"
)

// Memory persists conversation history across invocations of the same
// agentic function when AgenticConfig.EnableMemory is set.
type Memory interface {
	Load(key *MemoryKey) ([]model.Message, error)
	Append(key *MemoryKey, messages []model.Message) error
}

// MemoryKey addresses one conversation's history.
type MemoryKey struct {
	FunctionID string
	SessionKey string
}

// Executor runs agentic functions.
type Executor struct {
	reg      *registry.Registry
	client   model.Client
	dispatch *tooldispatch.Dispatcher
	memory   Memory
}

// New creates an Executor. memory may be nil when no deployed function sets
// enableMemory.
func New(reg *registry.Registry, client model.Client, dispatch *tooldispatch.Dispatcher, memory Memory) *Executor {
	return &Executor{reg: reg, client: client, dispatch: dispatch, memory: memory}
}

// Execute runs the agentic function id's given (or active) version against
// input under wfCtx. It is identical to Run, which the Cascade Executor
// calls directly with its own engine.WorkflowContext.
func (e *Executor) Execute(wfCtx engine.WorkflowContext, id, version string, input any) (*types.AgenticResult, error) {
	return e.Run(wfCtx, id, version, input)
}

// Run drives the bounded think-act loop to completion, returning the full
// AgenticResult (§4.4) regardless of whether it terminates Completed,
// Failed, Timeout, or Cancelled -- the trace is always populated.
func (e *Executor) Run(wfCtx engine.WorkflowContext, id, version string, input any) (*types.AgenticResult, error) {
	meta, err := e.reg.Get(wfCtx.Context(), id)
	if err != nil {
		if wfCtx.Context().Err() != nil {
			return &types.AgenticResult{Status: types.StatusCancelled}, nil
		}
		return nil, err
	}
	if meta.Type != types.FunctionTypeAgentic || meta.Agentic == nil {
		return nil, errs.New(errs.KindInvalidIdentifier, "function %q is not an agentic function", id)
	}
	if version != "" && version != meta.ActiveVersion && !meta.HasVersion(version) {
		return nil, errs.New(errs.KindInvalidIdentifier, "function %q has no version %q", id, version)
	}
	// FunctionMetadata carries a single AgenticConfig, not one per version
	// (§3), so a valid non-active version still runs against the active
	// config; per-version agentic config resolution is out of scope (see
	// DESIGN.md).
	cfg := meta.Agentic.WithDefaults()

	var schema *jsonschema.Schema
	if len(cfg.OutputSchema) > 0 {
		schema, err = compileSchema(cfg.OutputSchema)
		if err != nil {
			return nil, errs.Wrap(errs.KindImpossibleSchema, err, "output schema for %q is not satisfiable", id)
		}
	}

	memKey := &MemoryKey{FunctionID: id}
	messages := []model.Message{{Role: model.RoleUser, Content: goalPrompt(cfg.Goal, input)}}
	if cfg.EnableMemory && e.memory != nil {
		if history, err := e.memory.Load(memKey); err == nil {
			messages = append(history, messages...)
		}
	}

	deadline := wfCtx.Now().Add(cfg.Timeout)
	toolsUsedOrder := []string{}
	toolsUsedSeen := map[string]bool{}
	var trace []types.Iteration
	var totalTokens types.TokenUsage
	var reasoningParts []string

	status := types.StatusCompleted
	var finalOutput any
	var goalAchieved bool
	var resultErr *types.ErrorDetail

	for index := 1; ; index++ {
		remaining := deadline.Sub(wfCtx.Now())
		if remaining <= 0 {
			status = types.StatusTimeout
			break
		}
		if index > cfg.MaxIterations {
			status = types.StatusCompleted
			goalAchieved = false
			break
		}
		select {
		case <-wfCtx.Context().Done():
			status = types.StatusCancelled
			goto done
		default:
		}

		iterStart := wfCtx.Now()
		iter := types.Iteration{Index: index, TimestampStart: iterStart}

		req := &model.Request{
			Model:        cfg.Model,
			System:       cfg.SystemPrompt,
			Messages:     messages,
			Tools:        toModelTools(cfg.Tools),
			OutputSchema: cfg.OutputSchema,
		}
		resp, callErr := e.client.Complete(wfCtx.Context(), req)
		if callErr != nil {
			status = types.StatusFailed
			resultErr = &types.ErrorDetail{Kind: "UpstreamError", Message: callErr.Error()}
			break
		}
		iter.Tokens = types.TokenUsage{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens}
		totalTokens = totalTokens.Add(iter.Tokens)
		if cfg.EnableReasoning {
			iter.Reasoning = resp.Reasoning
			if resp.Reasoning != "" {
				reasoningParts = append(reasoningParts, resp.Reasoning)
			}
		}

		if len(resp.ToolCalls) > 0 {
			calls := resp.ToolCalls
			if len(calls) > cfg.MaxToolCallsPerIteration {
				calls = calls[:cfg.MaxToolCallsPerIteration]
			}
			records := e.dispatchParallel(wfCtx, cfg.Tools, calls, remaining)
			iter.ToolCalls = records

			messages = append(messages, model.Message{Role: model.RoleAssistant, Content: resp.Text})
			for _, rec := range records {
				if !toolsUsedSeen[rec.ToolName] {
					toolsUsedSeen[rec.ToolName] = true
					toolsUsedOrder = append(toolsUsedOrder, rec.ToolName)
				}
				messages = append(messages, model.Message{Role: model.RoleTool, Content: toolResultMessage(rec)})
			}

			iter.DurationMs = wfCtx.Now().Sub(iterStart).Milliseconds()
			trace = append(trace, iter)
			continue
		}

		var output any
		if err := json.Unmarshal([]byte(resp.Text), &output); err != nil {
			messages = append(messages, model.Message{Role: model.RoleAssistant, Content: resp.Text})
			messages = append(messages, model.Message{Role: model.RoleUser, Content: "Your previous response was not valid JSON matching the required output schema. Respond again with valid JSON only."})
			iter.DurationMs = wfCtx.Now().Sub(iterStart).Milliseconds()
			trace = append(trace, iter)
			continue
		}
		if schema != nil {
			if verr := schema.Validate(output); verr != nil {
				messages = append(messages, model.Message{Role: model.RoleAssistant, Content: resp.Text})
				messages = append(messages, model.Message{Role: model.RoleUser, Content: fmt.Sprintf("Your previous response failed schema validation: %s. Respond again with a value matching the schema.", verr)})
				iter.DurationMs = wfCtx.Now().Sub(iterStart).Milliseconds()
				trace = append(trace, iter)
				continue
			}
		}

		finalOutput = output
		goalAchieved = true
		status = types.StatusCompleted
		iter.DurationMs = wfCtx.Now().Sub(iterStart).Milliseconds()
		trace = append(trace, iter)
		break
	}

done:
	if cfg.EnableMemory && e.memory != nil {
		_ = e.memory.Append(memKey, messages)
	}

	result := &types.AgenticResult{
		Status:       status,
		Output:       finalOutput,
		Error:        resultErr,
		Model:        cfg.Model,
		TotalTokens:  totalTokens,
		Iterations:   len(trace),
		Trace:        trace,
		ToolsUsed:    toolsUsedOrder,
		GoalAchieved: goalAchieved,
	}
	if cfg.EnableReasoning {
		result.ReasoningSummary = strings.Join(reasoningParts, " ")
	}
	return result, nil
}

// dispatchParallel executes calls concurrently, writing each ToolCallRecord
// into its emission-order slot so the recorded order matches what the model
// emitted even though completion order is concurrent and unordered --
// generalizing the teacher's dispatch-then-merge-in-call-order pattern
// (runtime/agent/runtime/tool_calls.go: dispatchToolCalls +
// mergeToolResultsInCallOrder) to direct index writes since this loop has no
// child-workflow fan-out to track.
func (e *Executor) dispatchParallel(wfCtx engine.WorkflowContext, toolDefs []types.ToolDefinition, calls []model.ToolCall, remaining time.Duration) []types.ToolCallRecord {
	byName := make(map[string]*types.ToolDefinition, len(toolDefs))
	for i := range toolDefs {
		byName[toolDefs[i].Name] = &toolDefs[i]
	}

	records := make([]types.ToolCallRecord, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call model.ToolCall) {
			defer wg.Done()
			def, ok := byName[call.Name]
			if !ok {
				records[i] = types.ToolCallRecord{ToolName: call.Name, Input: call.Payload, Success: false, Error: fmt.Sprintf("unknown tool %q", call.Name)}
				return
			}
			rec := e.dispatch.Dispatch(wfCtx.Context(), def, call.Payload, remaining)
			records[i] = types.ToolCallRecord{
				ToolName:   call.Name,
				Input:      call.Payload,
				Output:     rec.Output,
				DurationMs: rec.DurationMs,
				Success:    rec.Success,
				Error:      rec.Error,
			}
		}(i, call)
	}
	wg.Wait()
	return records
}

func toModelTools(defs []types.ToolDefinition) []model.ToolDefinition {
	out := make([]model.ToolDefinition, 0, len(defs))
	for _, d := range defs {
		out = append(out, model.ToolDefinition{Name: d.Name, Description: d.Description, InputSchema: d.InputSchema})
	}
	return out
}

func goalPrompt(goal string, input any) string {
	payload, _ := json.Marshal(input)
	return fmt.Sprintf("%s\n\nInput: %s", goal, payload)
}

func toolResultMessage(rec types.ToolCallRecord) string {
	if !rec.Success {
		return fmt.Sprintf("Tool %q failed: %s", rec.ToolName, rec.Error)
	}
	payload, _ := json.Marshal(rec.Output)
	return fmt.Sprintf("Tool %q returned: %s", rec.ToolName, payload)
}

func compileSchema(raw []byte) (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse output schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile("schema.json")
}
