package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"

	"copilots/internal/chat"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
)

// OpenAIAdapter talks to any OpenAI-compatible chat completions endpoint.
type OpenAIAdapter struct {
	client *openai.Client
	model  string
}

func NewOpenAIAdapter(cfg Config) *OpenAIAdapter {
	oc := openai.DefaultConfig(cfg.APIKey)
	if base := cfg.BaseURLOrDefault(); base != "" {
		oc.BaseURL = strings.TrimRight(base, "/")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if len(cfg.Headers) > 0 {
		base := httpClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		wrapped := *httpClient
		wrapped.Transport = &headerTransport{base: base, headers: cfg.Headers}
		httpClient = &wrapped
	}
	oc.HTTPClient = httpClient
	return &OpenAIAdapter{client: openai.NewClientWithConfig(oc), model: cfg.Model}
}

func (a *OpenAIAdapter) Complete(ctx context.Context, req chat.CompletionRequest) (chat.Stream, error) {
	creq := openai.ChatCompletionRequest{
		Model:       a.model,
		Messages:    toOpenAIMessages(req),
		Tools:       toOpenAITools(req.Functions),
		Temperature: float32(req.Params.Temperature),
		MaxTokens:   req.Params.MaxTokens,
		Stream:      true,
	}
	if req.Params.Model != "" {
		creq.Model = req.Params.Model
	}

	stream, err := a.client.CreateChatCompletionStream(ctx, creq)
	if err != nil {
		return nil, classifyOpenAIError(ctx, err)
	}
	return &openAIStream{ctx: ctx, stream: stream, calls: map[int]*partialCall{}}, nil
}

func toOpenAIMessages(req chat.CompletionRequest) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		switch {
		case m.Role == chat.MessageRoleTool:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    m.Content,
				Name:       m.Function,
				ToolCallID: m.CallID,
			})
		case m.Call != nil:
			args, _ := json.Marshal(m.Call.Arguments)
			out = append(out, openai.ChatCompletionMessage{
				Role: openai.ChatMessageRoleAssistant,
				ToolCalls: []openai.ToolCall{{
					ID:   m.Call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      m.Call.Function,
						Arguments: string(args),
					},
				}},
			})
		case m.Role == chat.MessageRoleAssistant:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content})
		case m.Role == chat.MessageRoleSystem:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: m.Content})
		default:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content})
		}
	}
	return out
}

func toOpenAITools(specs []chat.FunctionSpec) []openai.Tool {
	if len(specs) == 0 {
		return nil
	}
	tools := make([]openai.Tool, 0, len(specs))
	for _, s := range specs {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		})
	}
	return tools
}

type partialCall struct {
	id        string
	name      string
	arguments strings.Builder
}

type openAIStream struct {
	ctx    context.Context
	stream *openai.ChatCompletionStream
	calls  map[int]*partialCall
	done   bool
}

func (s *openAIStream) Recv() (chat.Event, error) {
	for {
		if s.done {
			return chat.Event{}, io.EOF
		}
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return s.finish()
		}
		if err != nil {
			return chat.Event{}, classifyOpenAIError(s.ctx, err)
		}
		if len(resp.Choices) == 0 {
			continue
		}

		choice := resp.Choices[0]
		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			p := s.calls[idx]
			if p == nil {
				p = &partialCall{}
				s.calls[idx] = p
			}
			if tc.ID != "" {
				p.id = tc.ID
			}
			if tc.Function.Name != "" {
				p.name = tc.Function.Name
			}
			p.arguments.WriteString(tc.Function.Arguments)
		}
		if choice.Delta.Content != "" {
			return chat.TextDelta(choice.Delta.Content), nil
		}
		if choice.FinishReason == openai.FinishReasonToolCalls {
			return s.finish()
		}
	}
}

// finish surfaces the lowest-indexed accumulated call, if any, and ends the
// stream.
func (s *openAIStream) finish() (chat.Event, error) {
	s.done = true
	if len(s.calls) == 0 {
		return chat.Event{}, io.EOF
	}
	indexes := make([]int, 0, len(s.calls))
	for i := range s.calls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	p := s.calls[indexes[0]]
	if p.name == "" {
		return chat.Event{}, fmt.Errorf("%w: tool call without a function name", chat.ErrUpstreamProtocol)
	}

	args := map[string]any{}
	if raw := strings.TrimSpace(p.arguments.String()); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return chat.Event{}, fmt.Errorf("%w: tool call arguments: %v", chat.ErrUpstreamProtocol, err)
		}
	}
	id := p.id
	if id == "" {
		id = uuid.NewString()
	}
	return chat.CallEvent(&chat.FunctionCall{ID: id, Function: p.name, Arguments: args}), nil
}

func (s *openAIStream) Close() error {
	s.done = true
	return s.stream.Close()
}

func classifyOpenAIError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var (
		apiErr    *openai.APIError
		reqErr    *openai.RequestError
		netErr    net.Error
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &apiErr):
		return fmt.Errorf("%w: status %d: %s", chat.ErrUpstreamUnavailable, apiErr.HTTPStatusCode, apiErr.Message)
	case errors.As(err, &reqErr):
		return fmt.Errorf("%w: status %d", chat.ErrUpstreamUnavailable, reqErr.HTTPStatusCode)
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr), errors.Is(err, openai.ErrTooManyEmptyStreamMessages):
		return fmt.Errorf("%w: %v", chat.ErrUpstreamProtocol, err)
	case errors.As(err, &netErr), errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: %v", chat.ErrUpstreamUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", chat.ErrUpstreamUnavailable, err)
	}
}

type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}
