// Package tooldispatch implements the Tool Dispatcher (§4.5): executes a
// single tool call in one of its four implementation variants and always
// returns a record rather than raising to the agent loop.
package tooldispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tiercade/tiercade/runtime/codeexec"
	"github.com/tiercade/tiercade/runtime/sandbox"
	"github.com/tiercade/tiercade/types"
)

const defaultInlineTimeout = 30 * time.Second

// Builtin executes one of the closed-set builtin tools (web_search,
// web_fetch, file_read, file_write, shell_exec, database_query, email_send,
// slack_send). Implementations are registered by name; an unregistered
// builtin name is itself a dispatch failure, not a panic.
type Builtin interface {
	Invoke(ctx context.Context, input any) (output any, err error)
}

// Dispatcher executes ToolDefinitions.
type Dispatcher struct {
	codeExec *codeexec.Executor
	builtins map[string]Builtin
	httpDo   func(*http.Request) (*http.Response, error)
}

// New creates a Dispatcher. codeExec is used for function-ref tools;
// builtins maps the closed builtin names to their implementations; any name
// not present yields a failure record rather than a panic.
func New(codeExec *codeexec.Executor, builtins map[string]Builtin) *Dispatcher {
	return &Dispatcher{codeExec: codeExec, builtins: builtins, httpDo: http.DefaultClient.Do}
}

// Record is the always-returned outcome of one tool call (§4.5).
type Record struct {
	Output     any
	Success    bool
	Error      string
	DurationMs int64
}

// Dispatch executes one tool call against def, bounded by remainingBudget
// (the agent's remaining wall-clock budget), never returning an error to
// the caller -- failures are reported inside Record.
func (d *Dispatcher) Dispatch(ctx context.Context, def *types.ToolDefinition, input any, remainingBudget time.Duration) Record {
	start := time.Now()
	output, err := d.dispatch(ctx, def, input, remainingBudget)
	rec := Record{Output: output, DurationMs: time.Since(start).Milliseconds()}
	if err != nil {
		rec.Success = false
		rec.Error = err.Error()
		return rec
	}
	rec.Success = true
	return rec
}

func (d *Dispatcher) dispatch(ctx context.Context, def *types.ToolDefinition, input any, remainingBudget time.Duration) (any, error) {
	switch def.Implementation {
	case types.ToolImplInline:
		return d.dispatchInline(ctx, def, input, remainingBudget)
	case types.ToolImplFunctionRef:
		return d.dispatchFunctionRef(ctx, def, input)
	case types.ToolImplAPI:
		return d.dispatchAPI(ctx, def, input)
	case types.ToolImplBuiltin:
		return d.dispatchBuiltin(ctx, def, input)
	default:
		return nil, fmt.Errorf("unknown tool implementation %q for tool %q", def.Implementation, def.Name)
	}
}

func (d *Dispatcher) dispatchInline(ctx context.Context, def *types.ToolDefinition, input any, remainingBudget time.Duration) (any, error) {
	if def.Inline == nil {
		return nil, fmt.Errorf("tool %q declares inline implementation with no source", def.Name)
	}
	deadline := defaultInlineTimeout
	if remainingBudget > 0 && remainingBudget < deadline {
		deadline = remainingBudget
	}
	result, err := sandbox.Run(ctx, def.Inline.Source, "handler", input, deadline, nil)
	if err != nil {
		return nil, err
	}
	return result.Output, nil
}

func (d *Dispatcher) dispatchFunctionRef(ctx context.Context, def *types.ToolDefinition, input any) (any, error) {
	if d.codeExec == nil {
		return nil, fmt.Errorf("tool %q references function %q but no code executor is configured", def.Name, def.FunctionRef)
	}
	output, _, err := d.codeExec.Execute(ctx, def.FunctionRef, "", input)
	if err != nil {
		return nil, err
	}
	return output, nil
}

func (d *Dispatcher) dispatchAPI(ctx context.Context, def *types.ToolDefinition, input any) (any, error) {
	if def.API == nil {
		return nil, fmt.Errorf("tool %q declares api implementation with no call template", def.Name)
	}
	method := def.API.Method
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if method != http.MethodGet {
		payload, err := json.Marshal(input)
		if err != nil {
			return nil, fmt.Errorf("encode tool %q input: %w", def.Name, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, def.API.Endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request for tool %q: %w", def.Name, err)
	}
	for k, v := range def.API.Headers {
		req.Header.Set(k, v)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.httpDo(req)
	if err != nil {
		return nil, fmt.Errorf("tool %q request failed: %w", def.Name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tool %q: read response: %w", def.Name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("tool %q: non-2xx response %d: %s", def.Name, resp.StatusCode, respBody)
	}

	var output any
	if err := json.Unmarshal(respBody, &output); err != nil {
		return string(respBody), nil
	}
	return output, nil
}

func (d *Dispatcher) dispatchBuiltin(ctx context.Context, def *types.ToolDefinition, input any) (any, error) {
	if !types.BuiltinNames[def.Builtin] {
		return nil, fmt.Errorf("%q is not a registered builtin tool", def.Builtin)
	}
	impl, ok := d.builtins[def.Builtin]
	if !ok {
		return nil, fmt.Errorf("builtin %q has no implementation registered", def.Builtin)
	}
	return impl.Invoke(ctx, input)
}
