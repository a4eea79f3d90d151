package model

import (
	"context"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/require"
)

type stubAnthropicMessages struct {
	lastParams sdk.MessageNewParams
	resp       *sdk.Message
	err        error
}

func (s *stubAnthropicMessages) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.lastParams = body
	return s.resp, s.err
}

func TestAnthropicCompleteTranslatesTextResponse(t *testing.T) {
	stub := &stubAnthropicMessages{resp: &sdk.Message{
		Content:    []sdk.ContentBlockUnion{{Type: "text", Text: "world"}},
		StopReason: sdk.StopReasonEndTurn,
		Usage:      sdk.Usage{InputTokens: 10, OutputTokens: 5},
	}}
	cl, err := NewAnthropicClient(stub, "claude-3-5-sonnet")
	require.NoError(t, err)

	resp, err := cl.Complete(context.Background(), &Request{Messages: []Message{{Role: RoleUser, Content: "hello"}}})
	require.NoError(t, err)
	require.Equal(t, "world", resp.Text)
	require.Equal(t, 15, resp.Usage.Total())
}

func TestAnthropicCompleteTranslatesRateLimitError(t *testing.T) {
	stub := &stubAnthropicMessages{err: ErrRateLimited}
	cl, err := NewAnthropicClient(stub, "claude-3-5-sonnet")
	require.NoError(t, err)

	_, err = cl.Complete(context.Background(), &Request{Messages: []Message{{Role: RoleUser, Content: "hello"}}})
	require.ErrorIs(t, err, ErrRateLimited)
}

func TestAnthropicCompleteRequiresMessages(t *testing.T) {
	cl, err := NewAnthropicClient(&stubAnthropicMessages{}, "claude-3-5-sonnet")
	require.NoError(t, err)
	_, err = cl.Complete(context.Background(), &Request{})
	require.Error(t, err)
}
