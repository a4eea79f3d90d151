// Package cascade implements the Cascade Executor (§4.6): an ordered
// escalation across the code, generative, agentic, and human tiers behind a
// single logical invocation, bounded by a global deadline and forwarding
// each failed tier's error into the next tier's context.
//
// Like runtime/agentexec, the driving loop is written against
// engine.WorkflowContext (teacher: runtime/agent/runtime/workflow_loop.go's
// runDeadlines budget/hard-deadline split). The tests and the HTTP API run
// it over the in-memory engine; no Temporal workflow is registered for it.
package cascade

import (
	"fmt"
	"time"

	"github.com/tiercade/tiercade/errs"
	"github.com/tiercade/tiercade/registry"
	"github.com/tiercade/tiercade/runtime/agentexec"
	"github.com/tiercade/tiercade/runtime/codeexec"
	"github.com/tiercade/tiercade/runtime/engine"
	"github.com/tiercade/tiercade/runtime/genexec"
	"github.com/tiercade/tiercade/types"
)

const defaultTierTimeout = 30 * time.Second

// allTiers is the fixed ordering every cascade's active sequence is a
// sub-sequence of (§4.6 "ordered tier list").
var allTiers = []types.FunctionType{
	types.FunctionTypeCode,
	types.FunctionTypeGenerative,
	types.FunctionTypeAgentic,
	types.FunctionType("human"),
}

// Executor drives cascade invocations, composing the three invocable tier
// executors plus the human-task terminal sink.
type Executor struct {
	reg   *registry.Registry
	code  *codeexec.Executor
	gen   *genexec.Executor
	agent *agentexec.Executor

	// newTaskID produces the identifier for a pending HumanTask. Overridden
	// in tests; defaults to a timestamp-based id since math/rand and
	// crypto/rand are both replay-unsafe inside a Temporal workflow.
	newTaskID func(wfCtx engine.WorkflowContext) string
}

// New creates an Executor.
func New(reg *registry.Registry, code *codeexec.Executor, gen *genexec.Executor, agent *agentexec.Executor) *Executor {
	return &Executor{reg: reg, code: code, gen: gen, agent: agent, newTaskID: defaultTaskID}
}

func defaultTaskID(wfCtx engine.WorkflowContext) string {
	return fmt.Sprintf("human-task-%d", wfCtx.Now().UnixNano())
}

// Run executes the cascade function id against payload, escalating through
// its active tier sequence until one tier succeeds, the human tier is
// reached, or the global deadline expires.
func (e *Executor) Run(wfCtx engine.WorkflowContext, id, version string, payload any, assignees []string) (*types.CascadeResult, error) {
	meta, err := e.reg.Get(wfCtx.Context(), id)
	if err != nil {
		return nil, err
	}
	if meta.Type != types.FunctionTypeCascade || meta.Cascade == nil {
		return nil, errs.New(errs.KindInvalidIdentifier, "function %q is not a cascade function", id)
	}
	cfg := meta.Cascade

	tiers, skipped := activeTiers(cfg)

	totalTimeout := cfg.TotalTimeout
	if totalTimeout <= 0 {
		totalTimeout = 5 * time.Minute
	}
	globalDeadline := wfCtx.Now().Add(totalTimeout)
	cascadeStart := wfCtx.Now()

	result := &types.CascadeResult{
		SkippedTiers:  skipped,
		TierDurations: map[types.FunctionType]int64{},
	}

	var previousError *types.ErrorDetail
	var previousTier types.FunctionType

	for i, tier := range tiers {
		remaining := globalDeadline.Sub(wfCtx.Now())
		if remaining <= 0 {
			result.History = append(result.History, types.CascadeAttempt{
				Tier: tier, Attempt: 1, Status: types.AttemptTimeout,
				Error: &types.ErrorDetail{Kind: string(errs.KindTimeout), Message: "cascade total timeout exhausted before this tier started"},
			})
			result.Escalations++
			result.SkippedTiers = append(result.SkippedTiers, tiers[i+1:]...)
			return finalizeFailed(result, cascadeStart, wfCtx.Now(), errs.New(errs.KindTimeout, "cascade %q: total timeout exhausted", id))
		}

		if tier == "human" {
			taskID := e.newTaskID(wfCtx)
			task := &types.HumanTask{
				TaskID:    taskID,
				TaskURL:   fmt.Sprintf("/cascades/%s/tasks/%s", id, taskID),
				Assignees: assignees,
				ExpiresAt: wfCtx.Now().Add(remaining),
			}
			result.History = append(result.History, types.CascadeAttempt{Tier: tier, Attempt: 1, Status: types.AttemptCompleted})
			result.Pending = task
			result.TotalDurationMs = wfCtx.Now().Sub(cascadeStart).Milliseconds()
			return result, nil
		}

		tierTimeout := defaultTierTimeout
		if tierTimeout > remaining {
			tierTimeout = remaining
		}

		attemptStart := wfCtx.Now()
		childCtx, cancel := wfCtx.WithCancel()
		timerCtx := childCtx.Context()
		timer, timerErr := childCtx.NewTimer(timerCtx, tierTimeout)

		output, attemptErr, timedOut, tokens := e.invokeTier(childCtx, cfg, tier, payload, previousTier, previousError, timer, timerErr)
		cancel()
		duration := wfCtx.Now().Sub(attemptStart)
		result.TierDurations[tier] += duration.Milliseconds()
		result.Tokens = result.Tokens.Add(tokens)

		switch {
		case attemptErr == nil && !timedOut:
			result.History = append(result.History, types.CascadeAttempt{Tier: tier, Attempt: 1, Status: types.AttemptCompleted, DurationMs: duration.Milliseconds()})
			result.Output = output
			result.SuccessTier = tier
			result.TotalDurationMs = wfCtx.Now().Sub(cascadeStart).Milliseconds()
			result.SkippedTiers = append(result.SkippedTiers, tiers[i+1:]...)
			return result, nil

		case timedOut:
			detail := &types.ErrorDetail{Kind: string(errs.KindTimeout), Message: fmt.Sprintf("tier %q timed out after %s", tier, tierTimeout)}
			result.History = append(result.History, types.CascadeAttempt{Tier: tier, Attempt: 1, Status: types.AttemptTimeout, DurationMs: duration.Milliseconds(), Error: detail})
			result.Escalations++
			previousError = detail
			previousTier = tier

		default:
			detail := errorDetail(attemptErr)
			result.History = append(result.History, types.CascadeAttempt{Tier: tier, Attempt: 1, Status: types.AttemptFailed, DurationMs: duration.Milliseconds(), Error: detail})
			result.Escalations++
			previousError = detail
			previousTier = tier
		}
	}

	if !wfCtx.Now().Before(globalDeadline) {
		return finalizeFailed(result, cascadeStart, wfCtx.Now(), errs.New(errs.KindTimeout, "cascade %q: total timeout exhausted", id))
	}
	result.TotalDurationMs = wfCtx.Now().Sub(cascadeStart).Milliseconds()
	msg := "all cascade tiers exhausted"
	if previousError != nil {
		msg = previousError.Message
	}
	return result, errs.New(errs.KindRuntimeError, "%s", msg)
}

// invokeTier dispatches to the tier's underlying executor, racing its
// context against the per-tier timer future. The timer and the call share
// childCtx's cancellable context so a tier that finishes first cancels the
// other branch.
func (e *Executor) invokeTier(
	wfCtx engine.WorkflowContext,
	cfg *types.CascadeConfig,
	tier types.FunctionType,
	payload any,
	previousTier types.FunctionType,
	previousError *types.ErrorDetail,
	timer engine.Future[time.Time],
	timerErr error,
) (output any, err error, timedOut bool, tokens types.TokenUsage) {
	if timerErr != nil {
		return nil, timerErr, false, types.TokenUsage{}
	}

	fnID, ok := cfg.TierFunctions[tier]
	if !ok || fnID == "" {
		return nil, errs.New(errs.KindInvalidIdentifier, "cascade has no function bound to tier %q", tier), false, types.TokenUsage{}
	}

	type callResult struct {
		output any
		err    error
		tokens types.TokenUsage
	}
	done := make(chan callResult, 1)
	go func() {
		switch tier {
		case types.FunctionTypeCode:
			out, _, cerr := e.code.Execute(wfCtx.Context(), fnID, "", payload)
			done <- callResult{output: out, err: cerr}
		case types.FunctionTypeGenerative:
			vars := withPreviousErrorVars(payload, previousTier, previousError)
			out, md, gerr := e.gen.Execute(wfCtx.Context(), fnID, "", vars)
			done <- callResult{output: out, err: gerr, tokens: md.Tokens}
		case types.FunctionTypeAgentic:
			in := withPreviousErrorInput(payload, previousTier, previousError)
			res, aerr := e.agent.Run(wfCtx, fnID, "", in)
			if aerr != nil {
				done <- callResult{err: aerr}
				return
			}
			if res.Status != types.StatusCompleted || !res.GoalAchieved {
				msg := "agentic tier did not complete"
				if res.Error != nil {
					msg = res.Error.Message
				}
				done <- callResult{err: errs.New(errs.KindRuntimeError, "%s", msg), tokens: res.TotalTokens}
				return
			}
			done <- callResult{output: res.Output, tokens: res.TotalTokens}
		default:
			done <- callResult{err: errs.New(errs.KindInvalidIdentifier, "unknown tier %q", tier)}
		}
	}()

	fired := make(chan struct{}, 1)
	go func() {
		timer.Get(wfCtx.Context())
		fired <- struct{}{}
	}()

	select {
	case r := <-done:
		return r.output, r.err, false, r.tokens
	case <-fired:
		select {
		case r := <-done:
			return r.output, r.err, false, r.tokens
		default:
			return nil, nil, true, types.TokenUsage{}
		}
	}
}

// activeTiers removes tiers before cfg.StartTier and any named in
// cfg.SkipTiers from cfg.Tiers, returning the remaining sequence plus the
// tiers marked skipped (§4.6 step 1).
func activeTiers(cfg *types.CascadeConfig) (active []types.FunctionType, skipped []types.FunctionType) {
	tiers := cfg.Tiers
	if len(tiers) == 0 {
		tiers = allTiers
	}
	skip := make(map[types.FunctionType]bool, len(cfg.SkipTiers))
	for _, t := range cfg.SkipTiers {
		skip[t] = true
	}

	started := cfg.StartTier == ""
	for _, t := range tiers {
		if !started {
			if t == cfg.StartTier {
				started = true
			} else {
				skipped = append(skipped, t)
				continue
			}
		}
		if skip[t] {
			skipped = append(skipped, t)
			continue
		}
		active = append(active, t)
	}
	return active, skipped
}

func errorDetail(err error) *types.ErrorDetail {
	if e, ok := err.(*errs.Error); ok {
		return &types.ErrorDetail{Kind: string(e.Kind), Message: e.Message, Stack: e.Stack}
	}
	return &types.ErrorDetail{Kind: string(errs.KindRuntimeError), Message: err.Error()}
}

func finalizeFailed(result *types.CascadeResult, start, now time.Time, err error) (*types.CascadeResult, error) {
	result.TotalDurationMs = now.Sub(start).Milliseconds()
	return result, err
}

// withPreviousErrorVars builds the generative executor's template variable
// map from the original payload plus the previousError/previousTier
// context (§4.6 "Context passed into AI tiers"), nested under a "context"
// key so a prompt template reads {{context.previousError.message}} -- the
// same path the agentic branch's withPreviousErrorInput already nests under.
func withPreviousErrorVars(payload any, previousTier types.FunctionType, previousError *types.ErrorDetail) map[string]any {
	vars, _ := payload.(map[string]any)
	if vars == nil {
		vars = map[string]any{"input": payload}
	} else {
		copied := make(map[string]any, len(vars)+1)
		for k, v := range vars {
			copied[k] = v
		}
		vars = copied
	}
	if previousError != nil {
		vars["context"] = map[string]any{
			"previousError": map[string]any{"tier": string(previousTier), "message": previousError.Message},
			"previousTier":  string(previousTier),
		}
	}
	return vars
}

// withPreviousErrorInput wraps payload for the agentic tier's input,
// attaching the same previousError/previousTier context so the agent's
// goal prompt can reference what the prior tier attempted and why it
// failed.
func withPreviousErrorInput(payload any, previousTier types.FunctionType, previousError *types.ErrorDetail) any {
	if previousError == nil {
		return payload
	}
	return map[string]any{
		"input": payload,
		"context": map[string]any{
			"previousError": map[string]any{"tier": string(previousTier), "message": previousError.Message},
			"previousTier":  string(previousTier),
		},
	}
}
