// Adapted from features/model/anthropic/client.go: a model.Client backed by
// the Anthropic Claude Messages API, narrowed to the single-round-trip
// shape the Generative and Agentic Executors need (no streaming, no
// thinking/citation parts).
package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicMessages captures the subset of the Anthropic SDK client used by
// the adapter, so tests can substitute a stub.
type AnthropicMessages interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicClient implements Client on top of Anthropic Claude Messages.
type AnthropicClient struct {
	msg          AnthropicMessages
	defaultModel string
}

// NewAnthropicClient builds an adapter from an Anthropic Messages client and
// the model identifier used when Request.Model is empty.
func NewAnthropicClient(msg AnthropicMessages, defaultModel string) (*AnthropicClient, error) {
	if msg == nil {
		return nil, errors.New("anthropic client is required")
	}
	if defaultModel == "" {
		return nil, errors.New("default model identifier is required")
	}
	return &AnthropicClient{msg: msg, defaultModel: defaultModel}, nil
}

// NewAnthropicFromAPIKey constructs an adapter using the SDK's default HTTP
// client, authenticated with apiKey.
func NewAnthropicFromAPIKey(apiKey, defaultModel string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	return NewAnthropicClient(&c.Messages, defaultModel)
}

// Complete issues a single Messages.New call and translates the response.
func (c *AnthropicClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	if len(req.Messages) == 0 {
		return nil, errors.New("anthropic: at least one message is required")
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	msgs := make([]sdk.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleUser:
			msgs = append(msgs, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case RoleAssistant:
			msgs = append(msgs, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		case RoleSystem:
			// folded into params.System below
		}
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(modelID),
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}
	if tools, err := encodeAnthropicTools(req.Tools); err != nil {
		return nil, err
	} else if len(tools) > 0 {
		params.Tools = tools
	}

	msg, err := c.msg.New(ctx, params)
	if err != nil {
		if isAnthropicRateLimited(err) {
			return nil, fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
		return nil, fmt.Errorf("anthropic messages.new: %w", err)
	}
	return translateAnthropicResponse(msg), nil
}

func encodeAnthropicTools(defs []ToolDefinition) ([]sdk.ToolUnionParam, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	out := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		var schema map[string]any
		if len(def.InputSchema) > 0 {
			if err := json.Unmarshal(def.InputSchema, &schema); err != nil {
				return nil, fmt.Errorf("anthropic: tool %q schema: %w", def.Name, err)
			}
		}
		u := sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{ExtraFields: schema}, def.Name)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(def.Description)
		}
		out = append(out, u)
	}
	return out, nil
}

func translateAnthropicResponse(msg *sdk.Message) *Response {
	resp := &Response{}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			resp.Text += block.Text
		case "tool_use":
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{ID: block.ID, Name: block.Name, Payload: block.Input})
		}
	}
	resp.Usage = TokenUsage{InputTokens: int(msg.Usage.InputTokens), OutputTokens: int(msg.Usage.OutputTokens)}
	resp.StopReason = string(msg.StopReason)
	return resp
}

func isAnthropicRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
