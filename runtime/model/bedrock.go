// Adapted from features/model/bedrock/client.go, narrowed to a single
// InvokeModel round trip against the Anthropic Claude Messages body format
// Bedrock hosts, which is the shape Bedrock-hosted Claude models expect on
// the wire regardless of SDK.
package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"
)

// BedrockInvoker captures the subset of the Bedrock Runtime client used by
// the adapter, so tests can substitute a stub.
type BedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockClient implements Client on top of Bedrock Runtime's InvokeModel,
// targeting Claude-on-Bedrock's message body format.
type BedrockClient struct {
	rt        BedrockInvoker
	defaultID string // Bedrock model id, e.g. "anthropic.claude-3-5-sonnet-20241022-v2:0"
}

// NewBedrockClient builds an adapter from a Bedrock Runtime client and the
// model id used when Request.Model is empty.
func NewBedrockClient(rt BedrockInvoker, defaultModelID string) (*BedrockClient, error) {
	if rt == nil {
		return nil, errors.New("bedrock runtime client is required")
	}
	if defaultModelID == "" {
		return nil, errors.New("default bedrock model id is required")
	}
	return &BedrockClient{rt: rt, defaultID: defaultModelID}, nil
}

type bedrockMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockRequestBody struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
	Temperature      float64          `json:"temperature,omitempty"`
}

type bedrockContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type bedrockResponseBody struct {
	Content    []bedrockContentBlock `json:"content"`
	StopReason string                `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Complete issues a single InvokeModel call and translates the response.
func (c *BedrockClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("bedrock: at least one message is required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultID
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	msgs := make([]bedrockMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			continue
		}
		msgs = append(msgs, bedrockMessage{Role: string(m.Role), Content: m.Content})
	}

	body, err := json.Marshal(bedrockRequestBody{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        maxTokens,
		System:           req.System,
		Messages:         msgs,
		Temperature:      req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock: encode request body: %w", err)
	}

	out, err := c.rt.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &modelID,
		ContentType: strPtr("application/json"),
		Body:        body,
	})
	if err != nil {
		if isBedrockThrottled(err) {
			return nil, fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
		return nil, fmt.Errorf("bedrock invoke model: %w", err)
	}

	var parsed bedrockResponseBody
	if err := json.Unmarshal(out.Body, &parsed); err != nil {
		return nil, fmt.Errorf("bedrock: decode response body: %w", err)
	}

	resp := &Response{StopReason: parsed.StopReason}
	for _, block := range parsed.Content {
		if block.Type == "text" {
			resp.Text += block.Text
		}
	}
	resp.Usage = TokenUsage{InputTokens: parsed.Usage.InputTokens, OutputTokens: parsed.Usage.OutputTokens}
	return resp, nil
}

func isBedrockThrottled(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "ThrottlingException"
	}
	return false
}

func strPtr(s string) *string { return &s }
