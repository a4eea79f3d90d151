package model

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/require"
)

type stubBedrockInvoker struct {
	respBody []byte
	err      error
}

func (s *stubBedrockInvoker) InvokeModel(_ context.Context, _ *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: s.respBody}, nil
}

func TestBedrockCompleteTranslatesTextResponse(t *testing.T) {
	body, err := json.Marshal(bedrockResponseBody{
		Content:    []bedrockContentBlock{{Type: "text", Text: "world"}},
		StopReason: "end_turn",
	})
	require.NoError(t, err)
	body2 := mustSetUsage(t, body, 10, 5)

	stub := &stubBedrockInvoker{respBody: body2}
	cl, err := NewBedrockClient(stub, "anthropic.claude-3-5-sonnet-20241022-v2:0")
	require.NoError(t, err)

	resp, err := cl.Complete(context.Background(), &Request{Messages: []Message{{Role: RoleUser, Content: "hello"}}})
	require.NoError(t, err)
	require.Equal(t, "world", resp.Text)
	require.Equal(t, 15, resp.Usage.Total())
}

func TestBedrockCompleteRequiresMessages(t *testing.T) {
	cl, err := NewBedrockClient(&stubBedrockInvoker{}, "anthropic.claude-3-5-sonnet-20241022-v2:0")
	require.NoError(t, err)
	_, err = cl.Complete(context.Background(), &Request{})
	require.Error(t, err)
}

func mustSetUsage(t *testing.T, body []byte, in, out int) []byte {
	t.Helper()
	var parsed bedrockResponseBody
	require.NoError(t, json.Unmarshal(body, &parsed))
	parsed.Usage.InputTokens = in
	parsed.Usage.OutputTokens = out
	b, err := json.Marshal(parsed)
	require.NoError(t, err)
	return b
}
