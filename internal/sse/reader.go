package sse

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"copilots/internal/chat"
)

// Reader decodes the stream produced by Writer.
type Reader struct {
	scanner *bufio.Scanner
	done    bool
}

func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 4<<20)
	return &Reader{scanner: sc}
}

// Recv returns the next event, or io.EOF at the end of the stream.
func (r *Reader) Recv() (chat.Event, error) {
	if r.done {
		return chat.Event{}, io.EOF
	}
	var (
		name string
		data strings.Builder
	)
	for r.scanner.Scan() {
		line := r.scanner.Text()
		switch {
		case line == "":
			if name == "" && data.Len() == 0 {
				continue
			}
			return r.decode(name, data.String())
		case strings.HasPrefix(line, ":"):
			// comment
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := r.scanner.Err(); err != nil {
		return chat.Event{}, err
	}
	r.done = true
	if name != "" || data.Len() > 0 {
		return r.decode(name, data.String())
	}
	return chat.Event{}, io.EOF
}

func (r *Reader) decode(name, data string) (chat.Event, error) {
	switch name {
	case EventMessageChunk:
		var c chunkData
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return chat.Event{}, fmt.Errorf("sse: decode %s: %w", name, err)
		}
		return chat.TextDelta(c.Delta), nil
	case EventFunctionCall:
		var f functionCallData
		if err := json.Unmarshal([]byte(data), &f); err != nil {
			return chat.Event{}, fmt.Errorf("sse: decode %s: %w", name, err)
		}
		r.done = true
		return chat.CallEvent(&chat.FunctionCall{Function: f.Function, Arguments: f.Arguments}), nil
	default:
		return chat.Event{}, fmt.Errorf("sse: unexpected event %q", name)
	}
}
