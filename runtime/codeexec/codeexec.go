// Package codeexec implements the Code Executor (§4.2): artifact
// selection (pre-compiled preferred, fallback compilation on miss),
// bounded-timeout sandboxed execution, and structured error/metadata
// reporting.
package codeexec

import (
	"context"
	"time"

	"github.com/tiercade/tiercade/errs"
	"github.com/tiercade/tiercade/registry"
	"github.com/tiercade/tiercade/runtime/sandbox"
	"github.com/tiercade/tiercade/telemetry"
	"github.com/tiercade/tiercade/types"
)

const defaultTimeout = 5 * time.Second

// Compiler performs on-demand compilation of artifact source when no
// pre-compiled form is cached. Implementations wrap an external toolchain;
// this package never compiles source itself.
type Compiler interface {
	Compile(ctx context.Context, language string, source []byte) (compiled []byte, err error)
}

// Transformer strips types (or otherwise normalizes source) for languages
// that can run without a full compile step, used when Compiler is nil or
// unavailable (§4.2 fallback path).
type Transformer interface {
	Transform(ctx context.Context, language string, source []byte) ([]byte, error)
}

// Executor runs code functions against artifacts fetched from a Registry.
type Executor struct {
	reg         *registry.Registry
	compiler    Compiler
	transformer Transformer
	logger      telemetry.Logger
}

// New creates an Executor. compiler and transformer may be nil; when both
// are nil, artifacts lacking a pre-compiled form run their source as-is,
// with FallbackReason "no_compiler_no_transformer".
func New(reg *registry.Registry, compiler Compiler, transformer Transformer, logger telemetry.Logger) *Executor {
	if logger == nil {
		logger = telemetry.NoopLogger{}
	}
	return &Executor{reg: reg, compiler: compiler, transformer: transformer, logger: logger}
}

// ExecutionMetadata is returned alongside output on every call, success or
// failure (§4.2 "Metadata").
type ExecutionMetadata struct {
	DurationMs      int64
	UsedPrecompiled bool
	FallbackReason  string
	MappedStack     string
}

// Execute runs the function's active-version (or the given version, if
// non-empty) artifact against payload, bounded by the artifact's
// configured timeout or defaultTimeout.
func (e *Executor) Execute(ctx context.Context, id, version string, payload any) (any, ExecutionMetadata, error) {
	meta, err := e.reg.Get(ctx, id)
	if err != nil {
		return nil, ExecutionMetadata{}, err
	}
	if meta.Type != types.FunctionTypeCode {
		return nil, ExecutionMetadata{}, errs.New(errs.KindInvalidIdentifier, "function %q is not a code function", id)
	}
	if version == "" {
		version = meta.ActiveVersion
	}

	timeout := defaultTimeout
	if meta.Code != nil && meta.Code.Timeout > 0 {
		timeout = meta.Code.Timeout
	}

	artifact, err := e.reg.GetCompiled(ctx, id, version)
	if err != nil {
		return nil, ExecutionMetadata{}, err
	}

	source := artifact.CompiledSource
	usedPrecompiled := len(source) > 0
	fallbackReason := ""

	if !usedPrecompiled {
		source, fallbackReason, err = e.compileOrTransform(ctx, id, version, artifact)
		if err != nil {
			return nil, ExecutionMetadata{}, err
		}
	}

	start := time.Now()
	result, runErr := sandbox.Run(ctx, source, artifact.EntryPoint, payload, timeout, artifact.SourceMap)
	elapsed := time.Since(start)

	out := ExecutionMetadata{DurationMs: elapsed.Milliseconds(), UsedPrecompiled: usedPrecompiled, FallbackReason: fallbackReason}
	if runErr != nil {
		if result != nil {
			out.MappedStack = result.MappedStack
		}
		return nil, out, runErr
	}
	return result.Output, out, nil
}

// compileOrTransform performs the §4.2 artifact-selection fallback chain:
// try the external compiler, then the type-stripping transformer, caching
// a successful compilation back to the code store.
func (e *Executor) compileOrTransform(ctx context.Context, id, version string, artifact *types.CodeArtifact) ([]byte, string, error) {
	if e.compiler != nil {
		compiled, err := e.compiler.Compile(ctx, artifact.Language, artifact.Source)
		if err == nil {
			if cacheErr := e.reg.SaveCompiled(ctx, id, version, compiled); cacheErr != nil {
				e.logger.Warn(ctx, "cache compiled artifact failed", "id", id, "version", version, "error", cacheErr)
			}
			return compiled, "", nil
		}
		e.logger.Warn(ctx, "compiler unavailable, falling back", "id", id, "version", version, "error", err)
	}

	if e.transformer != nil {
		transformed, err := e.transformer.Transform(ctx, artifact.Language, artifact.Source)
		if err != nil {
			return nil, "", errs.Wrap(errs.KindRuntimeError, err, "fallback transform failed for %q/%q", id, version)
		}
		return transformed, "compiler_unavailable", nil
	}

	return artifact.Source, "no_compiler_no_transformer", nil
}
