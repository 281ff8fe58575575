package chat_test

import (
	"context"
	"testing"

	"copilots/internal/chat"
	"copilots/internal/chat/mocks"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeDrainsStream(t *testing.T) {
	ctrl := gomock.NewController(t)
	adapter := mocks.NewMockAdapter(ctrl)
	adapter.EXPECT().Complete(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req chat.CompletionRequest) (chat.Stream, error) {
			assert.Contains(t, req.System, "expert financial analyst")
			assert.Empty(t, req.Functions)
			assert.Equal(t, "gpt-4o", req.Params.Model)
			require.Len(t, req.Messages, 1)
			assert.Equal(t, chat.MessageRoleUser, req.Messages[0].Role)
			assert.Equal(t,
				"## Context\n\nYou have the following context available to answer your query:\nAAPL closed at {200}\n\n## User query\nBuy?",
				req.Messages[0].Content)
			return chat.StreamOf(chat.TextDelta("Sure, "), chat.TextDelta("if you like risk.")), nil
		})

	svc := chat.NewService(adapter, chat.WithPrompt(chat.Prompt{Params: chat.Params{Model: "gpt-4o"}}))
	resp, err := svc.Analyze(context.Background(), &chat.AnalystRequest{Query: "Buy?", Context: "AAPL closed at {200}"})
	require.NoError(t, err)
	assert.Equal(t, "Sure, if you like risk.", resp.Output)
}

func TestAnalyzeEmptyQuery(t *testing.T) {
	ctrl := gomock.NewController(t)
	svc := chat.NewService(mocks.NewMockAdapter(ctrl))
	_, err := svc.Analyze(context.Background(), &chat.AnalystRequest{Query: "  "})
	assert.ErrorIs(t, err, chat.ErrEmptyConversation)
}

func TestAnalyzeRejectsFunctionCall(t *testing.T) {
	ctrl := gomock.NewController(t)
	adapter := mocks.NewMockAdapter(ctrl)
	adapter.EXPECT().Complete(gomock.Any(), gomock.Any()).
		Return(chat.StreamOf(chat.CallEvent(&chat.FunctionCall{Function: "get_widget_data"})), nil)

	_, err := chat.NewService(adapter).Analyze(context.Background(), &chat.AnalystRequest{Query: "q"})
	assert.ErrorIs(t, err, chat.ErrUpstreamProtocol)
}
