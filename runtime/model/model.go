// Package model defines the provider-agnostic request/response shapes the
// Generative and Agentic Executors dispatch through (§4.3 step 5, §4.4),
// and the Client interface each LLM adapter implements.
package model

import (
	"encoding/json"
	"errors"

	"context"
)

// ConversationRole is the role of one message in a request.
type ConversationRole string

const (
	RoleSystem    ConversationRole = "system"
	RoleUser      ConversationRole = "user"
	RoleAssistant ConversationRole = "assistant"
	RoleTool      ConversationRole = "tool"
)

// Message is one turn in the conversation sent to the model.
type Message struct {
	Role    ConversationRole
	Content string
}

// ToolDefinition describes one tool the model may call, translated from
// types.ToolDefinition by the agentic executor.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// ToolCall is a tool invocation the model requested.
type ToolCall struct {
	ID      string
	Name    string
	Payload any
}

// Example is a few-shot example attached to a generative request.
type Example struct {
	Input  string
	Output string
}

// Request is one round-trip call to an LLM adapter.
type Request struct {
	Model        string
	System       string
	Messages     []Message
	Tools        []ToolDefinition
	OutputSchema json.RawMessage
	Temperature  float64
	MaxTokens    int
	Examples     []Example
}

// TokenUsage reports the token accounting for one model call.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// Total returns InputTokens + OutputTokens.
func (t TokenUsage) Total() int { return t.InputTokens + t.OutputTokens }

// Response is the normalized result of one model call.
type Response struct {
	Text       string
	ToolCalls  []ToolCall
	Usage      TokenUsage
	StopReason string

	// Reasoning carries the model's chain-of-thought summary when the caller
	// requested it (AgenticConfig.EnableReasoning). Adapters that cannot
	// produce one leave it empty.
	Reasoning string
}

// ErrRateLimited is returned (wrapped) by adapters when the upstream
// provider signals a rate limit. The adaptive limiter (ratelimit.go) backs
// off on it and WithRetry (retry.go) retries it; the generative and agentic
// executors do not map it to errs.KindRateLimited.
var ErrRateLimited = errors.New("model: rate limited by provider")

// Client is implemented by every provider adapter (Anthropic, OpenAI,
// Bedrock) and by the rate-limiting middleware that wraps them.
type Client interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}
