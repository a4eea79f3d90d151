// Adapted from features/model/openai/client.go's adapter shape (a narrow
// interface over the provider's chat-completions call plus a translate
// step), rebound to github.com/openai/openai-go -- the dependency this
// module's go.mod actually carries, rather than the teacher file's
// undeclared sashabaranov/go-openai import.
package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIChatCompletions captures the subset of the OpenAI SDK used by the
// adapter, so tests can substitute a stub.
type OpenAIChatCompletions interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAIClient implements Client on top of OpenAI Chat Completions.
type OpenAIClient struct {
	chat         OpenAIChatCompletions
	defaultModel string
}

// NewOpenAIClient builds an adapter from a Chat Completions client and the
// model identifier used when Request.Model is empty.
func NewOpenAIClient(chat OpenAIChatCompletions, defaultModel string) (*OpenAIClient, error) {
	if chat == nil {
		return nil, errors.New("openai client is required")
	}
	if defaultModel == "" {
		return nil, errors.New("default model identifier is required")
	}
	return &OpenAIClient{chat: chat, defaultModel: defaultModel}, nil
}

// NewOpenAIFromAPIKey constructs an adapter using the SDK's default HTTP
// client, authenticated with apiKey.
func NewOpenAIFromAPIKey(apiKey, defaultModel string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	c := openai.NewClient(option.WithAPIKey(apiKey))
	return NewOpenAIClient(&c.Chat.Completions, defaultModel)
}

// Complete issues a single chat completion call and translates the response.
func (c *OpenAIClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	if len(req.Messages) == 0 && req.System == "" {
		return nil, errors.New("openai: at least one message is required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleUser:
			messages = append(messages, openai.UserMessage(m.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		}
	}

	tools, err := encodeOpenAITools(req.Tools)
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    modelID,
		Messages: messages,
		Tools:    tools,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := c.chat.New(ctx, params)
	if err != nil {
		if isOpenAIRateLimited(err) {
			return nil, fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	return translateOpenAIResponse(resp), nil
}

func encodeOpenAITools(defs []ToolDefinition) ([]openai.ChatCompletionToolParam, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	out := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, def := range defs {
		var schema map[string]any
		if len(def.InputSchema) > 0 {
			if err := json.Unmarshal(def.InputSchema, &schema); err != nil {
				return nil, fmt.Errorf("openai: tool %q schema: %w", def.Name, err)
			}
		}
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  schema,
			},
		})
	}
	return out, nil
}

func translateOpenAIResponse(resp *openai.ChatCompletion) *Response {
	out := &Response{}
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		out.Text = choice.Message.Content
		out.StopReason = string(choice.FinishReason)
		for _, call := range choice.Message.ToolCalls {
			var payload any
			if err := json.Unmarshal([]byte(call.Function.Arguments), &payload); err != nil {
				payload = map[string]any{"raw": call.Function.Arguments}
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{ID: call.ID, Name: call.Function.Name, Payload: payload})
		}
	}
	out.Usage = TokenUsage{InputTokens: int(resp.Usage.PromptTokens), OutputTokens: int(resp.Usage.CompletionTokens)}
	return out
}

func isOpenAIRateLimited(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}
