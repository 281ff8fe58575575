// Package sse encodes copilot events as server-sent events and reads them back.
package sse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"copilots/internal/chat"
)

const (
	EventMessageChunk = "copilotMessageChunk"
	EventFunctionCall = "copilotFunctionCall"
)

// ErrClosed is returned for events sent after a function call.
var ErrClosed = errors.New("sse: stream already ended with a function call")

type chunkData struct {
	Delta string `json:"delta"`
}

type functionCallData struct {
	Function     string         `json:"function"`
	Arguments    map[string]any `json:"input_arguments"`
	CallArgument map[string]any `json:"copilot_function_call_arguments"`
}

// Writer is a chat.EventSink over an http.ResponseWriter. Headers are written
// with the first event, so a handler can still send a plain error response
// if nothing was emitted.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
	closed  bool
}

func NewWriter(w http.ResponseWriter) *Writer {
	f, _ := w.(http.Flusher)
	return &Writer{w: w, flusher: f}
}

// Started reports whether the stream headers have been written.
func (s *Writer) Started() bool { return s.started }

func (s *Writer) Send(ev chat.Event) error {
	if s.closed {
		return ErrClosed
	}

	var (
		name string
		data any
	)
	switch ev.Kind {
	case chat.EventTextDelta:
		name, data = EventMessageChunk, chunkData{Delta: ev.Delta}
	case chat.EventFunctionCall:
		if ev.Call == nil {
			return fmt.Errorf("sse: function call event without a call")
		}
		args := ev.Call.Arguments
		if args == nil {
			args = map[string]any{}
		}
		name, data = EventFunctionCall, functionCallData{
			Function:     ev.Call.Function,
			Arguments:    args,
			CallArgument: args,
		}
		s.closed = true
	default:
		return fmt.Errorf("sse: unknown event kind %d", ev.Kind)
	}

	frame, err := encode(name, data)
	if err != nil {
		return err
	}
	s.Start()
	if _, err := s.w.Write(frame); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// Start writes the stream headers if they have not been written yet.
func (s *Writer) Start() {
	if s.started {
		return
	}
	s.started = true
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

func encode(name string, data any) ([]byte, error) {
	var payload bytes.Buffer
	enc := json.NewEncoder(&payload)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		return nil, fmt.Errorf("sse: encode %s: %w", name, err)
	}

	var frame bytes.Buffer
	frame.WriteString("event: ")
	frame.WriteString(name)
	frame.WriteString("\ndata: ")
	frame.Write(bytes.TrimRight(payload.Bytes(), "\n"))
	frame.WriteString("\n\n")
	return frame.Bytes(), nil
}
