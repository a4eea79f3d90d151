// Package genexec implements the Generative Executor (§4.3): prompt
// templating, pre-call schema validation, content-addressed response
// caching, LLM dispatch, and output-schema validation.
package genexec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/tiercade/tiercade/errs"
	"github.com/tiercade/tiercade/registry"
	"github.com/tiercade/tiercade/runtime/cache"
	"github.com/tiercade/tiercade/runtime/model"
	"github.com/tiercade/tiercade/types"
)

// placeholderPattern finds {{name}} and {{name.field}} references for the
// MissingVariable pre-flight check (§4.3 step 2), independent of
// text/template's own {{.name}} dot-access syntax. Dotted paths (e.g.
// previousError.message, used by the Cascade Executor's AI-tier context
// injection, §4.6) resolve via text/template's native nested-map traversal
// once rewritten to dot-access form; only the base segment is checked here.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*(?:\.[a-zA-Z_][a-zA-Z0-9_]*)*)\s*\}\}`)

// Executor runs generative functions against a Registry, a model.Client,
// and a response cache.
type Executor struct {
	reg    *registry.Registry
	client model.Client
	store  cache.Store
}

// New creates an Executor.
func New(reg *registry.Registry, client model.Client, store cache.Store) *Executor {
	return &Executor{reg: reg, client: client, store: store}
}

// Metadata is returned alongside output on every call (§4.3 step 7).
type Metadata struct {
	Model      string
	Tokens     types.TokenUsage
	Cached     bool
	LatencyMs  int64
	StopReason string
}

// Execute runs the generative function id's active (or given) version
// against variables.
func (e *Executor) Execute(ctx context.Context, id, version string, variables map[string]any) (any, Metadata, error) {
	meta, err := e.reg.Get(ctx, id)
	if err != nil {
		return nil, Metadata{}, err
	}
	if meta.Type != types.FunctionTypeGenerative || meta.Generative == nil {
		return nil, Metadata{}, errs.New(errs.KindInvalidIdentifier, "function %q is not a generative function", id)
	}
	cfg := meta.Generative
	if version != "" && version != meta.ActiveVersion && !meta.HasVersion(version) {
		return nil, Metadata{}, errs.New(errs.KindInvalidIdentifier, "function %q has no version %q", id, version)
	}
	// FunctionMetadata carries a single GenerativeConfig, not one per
	// version (§3), so a valid non-active version still runs against the
	// active config; per-version generative config resolution is out of
	// scope (see DESIGN.md).

	prompt, err := renderPrompt(cfg.UserPromptTemplate, variables)
	if err != nil {
		return nil, Metadata{}, err
	}

	var schema *jsonschema.Schema
	if len(cfg.OutputSchema) > 0 {
		schema, err = compileSchema(cfg.OutputSchema)
		if err != nil {
			return nil, Metadata{}, errs.Wrap(errs.KindImpossibleSchema, err, "output schema for %q is not satisfiable", id)
		}
	}

	var cacheKey cache.Key
	if cfg.CacheEnabled && e.store != nil {
		cacheKey, err = cache.Digest(cfg.Model, cfg.SystemPrompt, cfg.UserPromptTemplate, variables, cfg.OutputSchema)
		if err != nil {
			return nil, Metadata{}, errs.Wrap(errs.KindRuntimeError, err, "compute cache digest for %q", id)
		}
		if raw, ok, err := e.store.Get(ctx, cacheKey); err == nil && ok {
			var output any
			if err := json.Unmarshal(raw, &output); err == nil {
				return output, Metadata{Model: cfg.Model, Cached: true}, nil
			}
		}
	}

	req := &model.Request{
		Model:       cfg.Model,
		System:      cfg.SystemPrompt,
		Messages:    []model.Message{{Role: model.RoleUser, Content: prompt}},
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}
	for _, ex := range cfg.Examples {
		req.Examples = append(req.Examples, model.Example{Input: ex.Input, Output: ex.Output})
	}

	start := time.Now()
	resp, err := e.client.Complete(ctx, req)
	latency := time.Since(start)
	if err != nil {
		return nil, Metadata{}, errs.Wrap(errs.KindUpstreamError, err, "generative call for %q failed", id)
	}

	var output any
	if err := json.Unmarshal([]byte(resp.Text), &output); err != nil {
		return nil, Metadata{}, errs.Wrap(errs.KindSchemaValidation, err, "response for %q is not valid JSON", id)
	}
	if schema != nil {
		if err := schema.Validate(output); err != nil {
			return nil, Metadata{}, errs.Wrap(errs.KindSchemaValidation, err, "response for %q failed output schema validation", id)
		}
	}

	if cfg.CacheEnabled && e.store != nil {
		if raw, err := json.Marshal(output); err == nil {
			ttl := cfg.CacheTTL
			if ttl <= 0 {
				ttl = 5 * time.Minute
			}
			_ = e.store.Set(ctx, cacheKey, raw, ttl)
		}
	}

	md := Metadata{
		Model:      cfg.Model,
		Tokens:     types.TokenUsage{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens},
		Cached:     false,
		LatencyMs:  latency.Milliseconds(),
		StopReason: resp.StopReason,
	}
	return output, md, nil
}

// renderPrompt substitutes {{name}} placeholders from variables, failing
// with MissingVariable before any LLM call when a referenced placeholder
// has no binding (§4.3 step 2).
func renderPrompt(tmpl string, variables map[string]any) (string, error) {
	for _, match := range placeholderPattern.FindAllStringSubmatch(tmpl, -1) {
		base, _, _ := strings.Cut(match[1], ".")
		if _, ok := variables[base]; !ok {
			return "", errs.New(errs.KindMissingVariable, "template references undefined variable %q", base)
		}
	}

	t, err := template.New("prompt").Option("missingkey=error").Parse(toDotAccess(tmpl))
	if err != nil {
		return "", errs.Wrap(errs.KindRuntimeError, err, "parse prompt template")
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, variables); err != nil {
		return "", errs.Wrap(errs.KindRuntimeError, err, "render prompt template")
	}
	return buf.String(), nil
}

// toDotAccess rewrites {{name}} into {{.name}} so text/template's standard
// dot-field syntax resolves against the variables map.
func toDotAccess(tmpl string) string {
	return placeholderPattern.ReplaceAllString(tmpl, "{{.$1}}")
}

// compileSchema compiles the output schema and rejects impossible schemas
// (e.g. min > max) before any LLM call (§4.3 step 3).
func compileSchema(raw []byte) (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse output schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	if err := checkSatisfiable(doc); err != nil {
		return nil, err
	}
	return schema, nil
}

// checkSatisfiable performs the shallow, spec-named impossibility checks
// (min > max on numeric/string/array bounds) that a generic schema compiler
// does not reject outright since they are syntactically valid JSON Schema.
func checkSatisfiable(doc any) error {
	m, ok := doc.(map[string]any)
	if !ok {
		return nil
	}
	pairs := [][2]string{
		{"minimum", "maximum"},
		{"minLength", "maxLength"},
		{"minItems", "maxItems"},
	}
	for _, p := range pairs {
		min, minOK := asFloat(m[p[0]])
		max, maxOK := asFloat(m[p[1]])
		if minOK && maxOK && min > max {
			return fmt.Errorf("%s (%v) > %s (%v)", p[0], min, p[1], max)
		}
	}
	return nil
}

func asFloat(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}
