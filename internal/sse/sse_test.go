package sse

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"copilots/internal/chat"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterChunks(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewWriter(rec)
	assert.False(t, w.Started())

	require.NoError(t, w.Send(chat.TextDelta("The answer is ")))
	require.NoError(t, w.Send(chat.TextDelta("<2>.")))
	assert.True(t, w.Started())

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.True(t, rec.Flushed)
	assert.Equal(t,
		"event: copilotMessageChunk\ndata: {\"delta\":\"The answer is \"}\n\n"+
			"event: copilotMessageChunk\ndata: {\"delta\":\"<2>.\"}\n\n",
		rec.Body.String())
}

func TestWriterFunctionCallEndsStream(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewWriter(rec)

	call := &chat.FunctionCall{Function: "get_widget_data", Arguments: map[string]any{"widget_uuid": "w1"}}
	require.NoError(t, w.Send(chat.CallEvent(call)))
	assert.ErrorIs(t, w.Send(chat.TextDelta("late")), ErrClosed)

	assert.Equal(t,
		"event: copilotFunctionCall\ndata: {\"function\":\"get_widget_data\",\"input_arguments\":{\"widget_uuid\":\"w1\"},\"copilot_function_call_arguments\":{\"widget_uuid\":\"w1\"}}\n\n",
		rec.Body.String())
}

func TestWriterNoEventsNoHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewWriter(rec)
	assert.Error(t, w.Send(chat.Event{}))
	assert.False(t, w.Started())
	assert.Empty(t, rec.Header().Get("Content-Type"))
}

func TestReaderRoundTrip(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewWriter(rec)
	require.NoError(t, w.Send(chat.TextDelta("a\nb")))
	require.NoError(t, w.Send(chat.CallEvent(&chat.FunctionCall{Function: "get_widget_data", Arguments: map[string]any{"widget_uuid": "x"}})))

	r := NewReader(rec.Body)
	ev, err := r.Recv()
	require.NoError(t, err)
	assert.Equal(t, chat.TextDelta("a\nb"), ev)

	ev, err = r.Recv()
	require.NoError(t, err)
	assert.Equal(t, chat.EventFunctionCall, ev.Kind)
	assert.Equal(t, "x", ev.Call.Arguments["widget_uuid"])

	_, err = r.Recv()
	assert.True(t, errors.Is(err, io.EOF))
}

func TestReaderToleratesCommentsAndCRLFlessTail(t *testing.T) {
	r := NewReader(strings.NewReader(": ping\n\nevent: copilotMessageChunk\ndata: {\"delta\":\"hi\"}"))
	ev, err := r.Recv()
	require.NoError(t, err)
	assert.Equal(t, "hi", ev.Delta)
	_, err = r.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderUnknownEvent(t *testing.T) {
	r := NewReader(strings.NewReader("event: other\ndata: {}\n\n"))
	_, err := r.Recv()
	assert.Error(t, err)
}
