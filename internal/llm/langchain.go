package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"copilots/internal/chat"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
)

// LangchainAdapter drives any langchaingo model.
//
// When functions are offered the completion is not streamed: some langchaingo
// providers pass tool-call argument chunks to the streaming callback, which
// would leak into the text. The answer is then emitted as a single delta.
type LangchainAdapter struct {
	model llms.Model
	name  string
}

func NewLangchainAdapter(model llms.Model, defaultModel string) *LangchainAdapter {
	return &LangchainAdapter{model: model, name: defaultModel}
}

func (a *LangchainAdapter) Complete(ctx context.Context, req chat.CompletionRequest) (chat.Stream, error) {
	messages, err := toLangchainMessages(req)
	if err != nil {
		return nil, err
	}

	opts := make([]llms.CallOption, 0, 4)
	switch {
	case req.Params.Model != "":
		opts = append(opts, llms.WithModel(req.Params.Model))
	case a.name != "":
		opts = append(opts, llms.WithModel(a.name))
	}
	if req.Params.Temperature != 0 {
		opts = append(opts, llms.WithTemperature(req.Params.Temperature))
	}
	if req.Params.MaxTokens != 0 {
		opts = append(opts, llms.WithMaxTokens(req.Params.MaxTokens))
	}
	tools := toLangchainTools(req.Functions)
	if len(tools) > 0 {
		opts = append(opts, llms.WithTools(tools))
	}

	return startStream(ctx, func(ctx context.Context, emit func(chat.Event) error) error {
		streamed := false
		callOpts := opts
		if len(tools) == 0 {
			callOpts = append(callOpts, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
				if len(chunk) == 0 {
					return nil
				}
				streamed = true
				return emit(chat.TextDelta(string(chunk)))
			}))
		}

		resp, err := a.model.GenerateContent(ctx, messages, callOpts...)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("%w: %v", chat.ErrUpstreamUnavailable, err)
		}
		if resp == nil || len(resp.Choices) == 0 {
			return fmt.Errorf("%w: empty response", chat.ErrUpstreamProtocol)
		}

		choice := resp.Choices[0]
		if len(choice.ToolCalls) > 0 {
			call, err := fromLangchainToolCall(choice.ToolCalls[0])
			if err != nil {
				return err
			}
			return emit(chat.CallEvent(call))
		}
		if !streamed && choice.Content != "" {
			return emit(chat.TextDelta(choice.Content))
		}
		return nil
	}), nil
}

func toLangchainMessages(req chat.CompletionRequest) ([]llms.MessageContent, error) {
	out := make([]llms.MessageContent, 0, len(req.Messages)+1)
	if req.System != "" {
		out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	for _, m := range req.Messages {
		switch {
		case m.Role == chat.MessageRoleTool:
			out = append(out, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: m.CallID,
					Name:       m.Function,
					Content:    m.Content,
				}},
			})
		case m.Call != nil:
			args, err := json.Marshal(m.Call.Arguments)
			if err != nil {
				return nil, fmt.Errorf("%w: function arguments: %v", chat.ErrInvalidConversationState, err)
			}
			out = append(out, llms.MessageContent{
				Role: llms.ChatMessageTypeAI,
				Parts: []llms.ContentPart{llms.ToolCall{
					ID:   m.Call.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      m.Call.Function,
						Arguments: string(args),
					},
				}},
			})
		case m.Role == chat.MessageRoleAssistant:
			out = append(out, llms.TextParts(llms.ChatMessageTypeAI, m.Content))
		case m.Role == chat.MessageRoleSystem:
			out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, m.Content))
		default:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, m.Content))
		}
	}
	return out, nil
}

func toLangchainTools(specs []chat.FunctionSpec) []llms.Tool {
	tools := make([]llms.Tool, 0, len(specs))
	for _, s := range specs {
		tools = append(tools, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		})
	}
	return tools
}

func fromLangchainToolCall(tc llms.ToolCall) (*chat.FunctionCall, error) {
	if tc.FunctionCall == nil || tc.FunctionCall.Name == "" {
		return nil, fmt.Errorf("%w: tool call without a function name", chat.ErrUpstreamProtocol)
	}
	args := map[string]any{}
	if tc.FunctionCall.Arguments != "" {
		if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &args); err != nil {
			return nil, fmt.Errorf("%w: tool call arguments: %v", chat.ErrUpstreamProtocol, err)
		}
	}
	id := tc.ID
	if id == "" {
		id = uuid.NewString()
	}
	return &chat.FunctionCall{ID: id, Function: tc.FunctionCall.Name, Arguments: args}, nil
}

// callbackStream turns a callback-driven producer into a pull-based Stream.
// The channel is unbuffered so the producer blocks until the consumer pulls.
type callbackStream struct {
	events chan chat.Event
	done   chan struct{}
	err    error
	cancel context.CancelFunc
	once   sync.Once
}

func startStream(ctx context.Context, run func(ctx context.Context, emit func(chat.Event) error) error) *callbackStream {
	ctx, cancel := context.WithCancel(ctx)
	s := &callbackStream{
		events: make(chan chat.Event),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go func() {
		defer close(s.done)
		s.err = run(ctx, func(ev chat.Event) error {
			select {
			case s.events <- ev:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()
	return s
}

func (s *callbackStream) Recv() (chat.Event, error) {
	select {
	case ev := <-s.events:
		return ev, nil
	case <-s.done:
		if s.err != nil && !errors.Is(s.err, io.EOF) {
			return chat.Event{}, s.err
		}
		return chat.Event{}, io.EOF
	}
}

// Close cancels the producer and waits for it to return.
func (s *callbackStream) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}
