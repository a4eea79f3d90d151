// Package types defines the data model shared by every component: function
// metadata, code artifacts, per-type configs, invocations, and the agentic
// and cascade trace structures (spec §3).
package types

import (
	"regexp"
	"time"
)

// FunctionType enumerates the four escalating capability classes plus the
// cascade composition.
type FunctionType string

const (
	FunctionTypeCode       FunctionType = "code"
	FunctionTypeGenerative FunctionType = "generative"
	FunctionTypeAgentic    FunctionType = "agentic"
	FunctionTypeCascade    FunctionType = "cascade"
)

// functionIDPattern enforces the 1-128 char, URL-safe identifier rule (§3).
var functionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

// ValidFunctionID reports whether id satisfies the FunctionId format rule.
func ValidFunctionID(id string) bool {
	return functionIDPattern.MatchString(id)
}

// FunctionMetadata is the durable record the Registry keeps per FunctionId.
type FunctionMetadata struct {
	ID             string
	Type           FunctionType
	ActiveVersion  string
	Versions       []string // ordered, append-only
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Owner          string
	ScopesRequired []string
	RolledBackFrom string // set by Rollback; empty otherwise

	Code       *CodeConfig
	Generative *GenerativeConfig
	Agentic    *AgenticConfig
	Cascade    *CascadeConfig
}

// HasVersion reports whether v is present in Versions.
func (m *FunctionMetadata) HasVersion(v string) bool {
	for _, x := range m.Versions {
		if x == v {
			return true
		}
	}
	return false
}

// CodeConfig carries the per-version settings for a code function. The
// source/compiled artifact bytes themselves live in the CodeArtifact
// record kept by the code store, not here, so metadata stays small.
type CodeConfig struct {
	Language   string
	EntryPoint string
	Timeout    time.Duration // default 5s, applied by the code executor
}

// CodeArtifact is the immutable, versioned executable form of a code
// function (spec Glossary: Artifact).
type CodeArtifact struct {
	Source          []byte
	CompiledSource  []byte // nil when no pre-compiled artifact is stored
	SourceMap       []byte // nil when absent
	Language        string
	EntryPoint      string
}

// GenerativeConfig is the immutable, per-version configuration for a
// generative function.
type GenerativeConfig struct {
	Model              string
	SystemPrompt       string
	UserPromptTemplate string
	OutputSchema       []byte // JSON Schema document
	Temperature        float64
	MaxTokens          int
	Examples           []GenerativeExample
	CacheEnabled       bool
	CacheTTL           time.Duration
}

// GenerativeExample is a single few-shot example attached to a
// GenerativeConfig.
type GenerativeExample struct {
	Input  string
	Output string
}

// AgenticConfig is the immutable, per-version configuration for an agentic
// function.
type AgenticConfig struct {
	Model                    string
	SystemPrompt             string
	Goal                     string
	Tools                    []ToolDefinition
	MaxIterations            int           // default 10
	MaxToolCallsPerIteration int           // default 5
	EnableReasoning          bool
	EnableMemory             bool
	OutputSchema             []byte
	Timeout                  time.Duration // default 5 * time.Minute
}

// WithDefaults returns a copy of c with zero-valued fields replaced by the
// spec-mandated defaults (§3).
func (c AgenticConfig) WithDefaults() AgenticConfig {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 10
	}
	if c.MaxToolCallsPerIteration <= 0 {
		c.MaxToolCallsPerIteration = 5
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Minute
	}
	return c
}

// ToolImplementation names one of the closed set of tool implementation
// variants (§3, §4.5).
type ToolImplementation string

const (
	ToolImplInline       ToolImplementation = "inline"
	ToolImplFunctionRef  ToolImplementation = "function-ref"
	ToolImplAPI          ToolImplementation = "api"
	ToolImplBuiltin      ToolImplementation = "builtin"
)

// ToolDefinition describes one tool available to an agentic function.
type ToolDefinition struct {
	Name           string
	Description    string
	InputSchema    []byte
	Implementation ToolImplementation

	// Inline carries the sandboxed source when Implementation == inline.
	Inline *InlineTool
	// FunctionRef names another deployed function when Implementation == function-ref.
	FunctionRef string
	// API carries the HTTP call template when Implementation == api.
	API *APITool
	// Builtin names one of the closed builtin set when Implementation == builtin.
	Builtin string
}

// InlineTool carries the sandboxed source for an inline tool implementation.
type InlineTool struct {
	Source   []byte
	Language string
}

// APITool carries the HTTP call template for an api tool implementation.
type APITool struct {
	Endpoint string
	Method   string
	Headers  map[string]string
}

// BuiltinNames is the closed set of builtin tool identifiers (§4.5).
var BuiltinNames = map[string]bool{
	"web_search":      true,
	"web_fetch":       true,
	"file_read":       true,
	"file_write":      true,
	"shell_exec":      true,
	"database_query":  true,
	"email_send":      true,
	"slack_send":      true,
}

// CascadeConfig is the immutable, per-version configuration for a cascade
// function.
type CascadeConfig struct {
	Tiers         []FunctionType // ordered tier list
	StartTier     FunctionType
	SkipTiers     []FunctionType
	TotalTimeout  time.Duration
	TierFunctions map[FunctionType]string // tier -> deployed function id invoked for that tier; no entry for "human"
}

// InvocationStatus enumerates the terminal and in-flight states an
// Invocation can be in.
type InvocationStatus string

const (
	StatusCompleted InvocationStatus = "completed"
	StatusFailed    InvocationStatus = "failed"
	StatusTimeout   InvocationStatus = "timeout"
	StatusCancelled InvocationStatus = "cancelled"
	StatusPending   InvocationStatus = "pending"
)

// Invocation is the root record for a single call into any function type.
type Invocation struct {
	ExecutionID     string
	FunctionID      string
	Version         string
	Status          InvocationStatus
	StartedAt       time.Time
	EndedAt         time.Time
	InputSizeBytes  int
	OutputSizeBytes int
}

// TokenUsage tracks input/output/total tokens for a single LLM call or an
// aggregate across many.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// Total returns InputTokens + OutputTokens, the invariant enforced
// throughout the spec (`total = input + output`).
func (t TokenUsage) Total() int { return t.InputTokens + t.OutputTokens }

// Add returns the element-wise sum of t and o.
func (t TokenUsage) Add(o TokenUsage) TokenUsage {
	return TokenUsage{InputTokens: t.InputTokens + o.InputTokens, OutputTokens: t.OutputTokens + o.OutputTokens}
}

// ToolCallRecord captures one tool invocation attempted during an
// Iteration.
type ToolCallRecord struct {
	ToolName   string
	Input      any
	Output     any
	DurationMs int64
	Success    bool
	Error      string
}

// Iteration is one think-act cycle of the agentic executor.
type Iteration struct {
	Index          int // 1-based, sequential, no gaps
	TimestampStart time.Time
	DurationMs     int64
	Reasoning      string // empty unless EnableReasoning
	ToolCalls      []ToolCallRecord
	Tokens         TokenUsage
}

// CascadeAttemptStatus enumerates the per-tier outcome recorded in cascade
// history.
type CascadeAttemptStatus string

const (
	AttemptCompleted CascadeAttemptStatus = "completed"
	AttemptFailed    CascadeAttemptStatus = "failed"
	AttemptTimeout   CascadeAttemptStatus = "timeout"
	AttemptSkipped   CascadeAttemptStatus = "skipped"
)

// CascadeAttempt is one tier evaluation in a cascade invocation's history.
type CascadeAttempt struct {
	Tier       FunctionType
	Attempt    int // >= 1
	Status     CascadeAttemptStatus
	DurationMs int64
	Error      *ErrorDetail
}

// ErrorDetail is a structured, JSON-round-trippable error record (kept
// distinct from errs.Error, which is the in-process error type; this is
// the persisted/observed shape).
type ErrorDetail struct {
	Kind    string
	Message string
	Stack   string
}

// HumanTask records the pending-human envelope a cascade emits when it
// escalates all the way to the human tier without any prior tier
// succeeding (§4.6 step 4).
type HumanTask struct {
	TaskID    string
	TaskURL   string
	Assignees []string
	ExpiresAt time.Time
}

// LogEntry is one line returned by GET /api/functions/{id}/logs.
type LogEntry struct {
	Timestamp time.Time
	Level     string
	Message   string
}

// ExecutionRecord is the retained, queryable join of an Invocation with its
// type-specific result, addressed by ExecutionID. It backs
// GET /cascades/{id}/executions/{executionId}.
type ExecutionRecord struct {
	Invocation Invocation
	Output     any
	Error      *ErrorDetail

	// Populated only for the matching function type.
	GenerativeMeta *GenerativeMetadata
	AgenticResult  *AgenticResult
	CascadeResult  *CascadeResult
}

// GenerativeMetadata is returned alongside a generative function's output
// when the caller requests includeMetadata=true.
type GenerativeMetadata struct {
	Model      string
	Tokens     TokenUsage
	Cached     bool
	LatencyMs  int64
	StopReason string
}

// AgenticResult is the full envelope returned by an agentic invocation.
type AgenticResult struct {
	Status           InvocationStatus
	Output           any
	Error            *ErrorDetail
	Model            string
	TotalTokens      TokenUsage
	Iterations       int
	Trace            []Iteration
	ToolsUsed        []string // insertion-ordered, deduplicated
	GoalAchieved     bool
	ReasoningSummary string
}

// CascadeResult is the full envelope returned by a cascade invocation.
type CascadeResult struct {
	Output         any
	SuccessTier    FunctionType // empty when no tier succeeded
	History        []CascadeAttempt
	SkippedTiers   []FunctionType
	TotalDurationMs int64
	TierDurations  map[FunctionType]int64
	Escalations    int
	TotalRetries   int
	Tokens         TokenUsage
	Pending        *HumanTask // set when the cascade reaches the human tier
}
