package provider

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencode-ai/core/pkg/types"
)

// chunkStream is a scripted CompletionStream.
type chunkStream struct {
	chunks []*schema.Message
	err    error
	pos    int
}

func (s *chunkStream) Recv() (*schema.Message, error) {
	if s.pos >= len(s.chunks) {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	msg := s.chunks[s.pos]
	s.pos++
	return msg, nil
}

func (s *chunkStream) Close() {}

func drain(t *testing.T, d *Decoder) []StreamEvent {
	t.Helper()
	var events []StreamEvent
	for {
		e, err := d.Next()
		if err == io.EOF {
			return events
		}
		require.NoError(t, err)
		events = append(events, e)
	}
}

func TestDecoderTextStream(t *testing.T) {
	d := NewDecoder(&chunkStream{chunks: []*schema.Message{
		{Content: "hel"},
		{Content: "lo"},
		{ResponseMeta: &schema.ResponseMeta{
			FinishReason: "stop",
			Usage:        &schema.TokenUsage{PromptTokens: 12, CompletionTokens: 3},
		}},
	}})

	events := drain(t, d)
	require.Len(t, events, 4)
	assert.Equal(t, TextDelta{Text: "hel"}, events[0])
	assert.Equal(t, TextDelta{Text: "lo"}, events[1])
	assert.Equal(t, TextEnd{}, events[2])

	finish := events[3].(FinishStep)
	assert.Equal(t, "stop", finish.Reason)
	assert.Equal(t, 12, finish.Usage.Input)
	assert.Equal(t, 3, finish.Usage.Output)
}

func TestDecoderToolCallAccumulatesArguments(t *testing.T) {
	d := NewDecoder(&chunkStream{chunks: []*schema.Message{
		{ToolCalls: []schema.ToolCall{{ID: "call_1", Function: schema.FunctionCall{Name: "read", Arguments: `{"filePa`}}}},
		{ToolCalls: []schema.ToolCall{{ID: "call_1", Function: schema.FunctionCall{Arguments: `th":"./X"}`}}}},
		{ResponseMeta: &schema.ResponseMeta{FinishReason: "tool_calls"}},
	}})

	events := drain(t, d)
	require.Len(t, events, 2)

	call := events[0].(ToolCall)
	assert.Equal(t, "call_1", call.ID)
	assert.Equal(t, "read", call.Name)
	assert.JSONEq(t, `{"filePath":"./X"}`, string(call.Input))

	assert.Equal(t, "tool_calls", events[1].(FinishStep).Reason)
}

func TestDecoderReasoningThenText(t *testing.T) {
	d := NewDecoder(&chunkStream{chunks: []*schema.Message{
		{ReasoningContent: "thinking..."},
		{Content: "answer"},
		{ResponseMeta: &schema.ResponseMeta{FinishReason: "stop"}},
	}})

	events := drain(t, d)
	require.Len(t, events, 5)
	assert.Equal(t, ReasoningDelta{Text: "thinking..."}, events[0])
	assert.Equal(t, ReasoningEnd{}, events[1])
	assert.Equal(t, TextDelta{Text: "answer"}, events[2])
}

func TestDecoderStreamError(t *testing.T) {
	d := NewDecoder(&chunkStream{
		chunks: []*schema.Message{{Content: "partial"}},
		err:    errors.New("connection reset"),
	})

	e, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, TextDelta{Text: "partial"}, e)

	e, err = d.Next()
	require.NoError(t, err)
	assert.IsType(t, StreamError{}, e)

	_, err = d.Next()
	assert.Equal(t, io.EOF, err)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, types.ErrAuth, Classify("anthropic", errors.New("401 unauthorized")).Name)
	assert.Equal(t, "anthropic", Classify("anthropic", errors.New("invalid api key")).Data.ProviderID)
	assert.Equal(t, types.ErrAborted, Classify("openai", context.Canceled).Name)
	assert.Equal(t, types.ErrUnknown, Classify("openai", errors.New("boom")).Name)
	assert.Nil(t, Classify("openai", nil))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(errors.New("429 rate limit exceeded")))
	assert.True(t, Retryable(errors.New("server overloaded")))
	assert.False(t, Retryable(errors.New("401 unauthorized")))
	assert.False(t, Retryable(context.Canceled))
	assert.False(t, Retryable(nil))
}

func TestRegistryResolvesModels(t *testing.T) {
	r := NewRegistry("fake/model-a")
	r.Register(&fakeProvider{id: "fake", models: []types.Model{
		{ID: "model-a", ProviderID: "fake", ContextWindow: 1000},
	}})

	m, err := r.GetModel("fake", "model-a")
	require.NoError(t, err)
	assert.Equal(t, 1000, m.ContextWindow)

	_, err = r.GetModel("fake", "ghost")
	assert.ErrorIs(t, err, &types.NamedError{Name: types.ErrNotFound})

	def, err := r.DefaultModel()
	require.NoError(t, err)
	assert.Equal(t, "model-a", def.ID)
}

type fakeProvider struct {
	id     string
	models []types.Model
}

func (f *fakeProvider) ID() string            { return f.id }
func (f *fakeProvider) Name() string          { return f.id }
func (f *fakeProvider) Models() []types.Model { return f.models }
func (f *fakeProvider) CreateCompletion(context.Context, *CompletionRequest) (CompletionStream, error) {
	return &chunkStream{}, nil
}
