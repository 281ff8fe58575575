package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"copilots/internal/chat"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fakeModel struct {
	chunks   []string
	content  string
	toolCall *llms.ToolCall
	err      error

	gotMessages []llms.MessageContent
	gotOpts     llms.CallOptions
	returned    chan struct{}
}

func (m *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if m.returned != nil {
		defer close(m.returned)
	}
	m.gotMessages = messages
	for _, opt := range options {
		opt(&m.gotOpts)
	}
	if m.err != nil {
		return nil, m.err
	}
	if m.gotOpts.StreamingFunc != nil {
		for _, c := range m.chunks {
			if err := m.gotOpts.StreamingFunc(ctx, []byte(c)); err != nil {
				return nil, err
			}
		}
	}
	choice := &llms.ContentChoice{Content: m.content}
	if m.toolCall != nil {
		choice.ToolCalls = []llms.ToolCall{*m.toolCall}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{choice}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestLangchainStreamsChunks(t *testing.T) {
	model := &fakeModel{chunks: []string{"The answer is ", "2."}, content: "The answer is 2."}
	a := NewLangchainAdapter(model, "llama3.1:8b-instruct-q6_K")

	stream, err := a.Complete(context.Background(), chat.CompletionRequest{
		System:   "sys",
		Messages: []chat.Message{{Role: chat.MessageRoleUser, Content: "1+1?"}},
		Params:   chat.Params{Temperature: 0.2},
	})
	require.NoError(t, err)
	events, err := drain(t, stream)
	require.NoError(t, err)
	assert.Equal(t, []chat.Event{chat.TextDelta("The answer is "), chat.TextDelta("2.")}, events)

	assert.Equal(t, "llama3.1:8b-instruct-q6_K", model.gotOpts.Model)
	assert.InDelta(t, 0.2, model.gotOpts.Temperature, 1e-9)
	require.Len(t, model.gotMessages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.gotMessages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.gotMessages[1].Role)
}

func TestLangchainSurfacesToolCall(t *testing.T) {
	model := &fakeModel{toolCall: &llms.ToolCall{
		ID:           "t1",
		Type:         "function",
		FunctionCall: &llms.FunctionCall{Name: "get_widget_data", Arguments: `{"widget_uuid":"w1"}`},
	}}
	a := NewLangchainAdapter(model, "")

	stream, err := a.Complete(context.Background(), chat.CompletionRequest{
		Messages:  []chat.Message{{Role: chat.MessageRoleUser, Content: "chart?"}},
		Functions: []chat.FunctionSpec{{Name: "get_widget_data"}},
	})
	require.NoError(t, err)
	events, err := drain(t, stream)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "w1", events[0].Call.Arguments["widget_uuid"])
	assert.Nil(t, model.gotOpts.StreamingFunc)
	require.Len(t, model.gotOpts.Tools, 1)
}

func TestLangchainUnstreamedAnswerWithFunctions(t *testing.T) {
	model := &fakeModel{content: "no data needed"}
	a := NewLangchainAdapter(model, "")

	stream, err := a.Complete(context.Background(), chat.CompletionRequest{
		Functions: []chat.FunctionSpec{{Name: "get_widget_data"}},
	})
	require.NoError(t, err)
	events, err := drain(t, stream)
	require.NoError(t, err)
	assert.Equal(t, []chat.Event{chat.TextDelta("no data needed")}, events)
}

func TestLangchainMapsErrors(t *testing.T) {
	a := NewLangchainAdapter(&fakeModel{err: errors.New("connection refused")}, "")
	stream, err := a.Complete(context.Background(), chat.CompletionRequest{})
	require.NoError(t, err)
	_, err = drain(t, stream)
	assert.ErrorIs(t, err, chat.ErrUpstreamUnavailable)
}

func TestCallbackStreamCloseStopsProducer(t *testing.T) {
	model := &fakeModel{chunks: []string{"a", "b", "c"}, returned: make(chan struct{})}
	a := NewLangchainAdapter(model, "")

	stream, err := a.Complete(context.Background(), chat.CompletionRequest{})
	require.NoError(t, err)
	ev, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "a", ev.Delta)

	require.NoError(t, stream.Close())
	select {
	case <-model.returned:
	case <-time.After(time.Second):
		t.Fatal("producer did not stop after Close")
	}
	require.NoError(t, stream.Close())
}
