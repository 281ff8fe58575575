package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// DefaultMaxFunctionCalls bounds server-side function rounds per query.
const DefaultMaxFunctionCalls = 5

// ContextMode selects where the serialized context goes.
type ContextMode int

const (
	// ContextInSystem substitutes it into the system prompt's {context}.
	ContextInSystem ContextMode = iota
	// ContextAsMessage injects it as a user message after the first turn.
	ContextAsMessage
)

// Prompt is the copilot persona a service runs with.
type Prompt struct {
	System      string
	ContextMode ContextMode
	Params      Params
}

// Service runs queries against one adapter.
type Service struct {
	adapter  Adapter
	resolver Resolver
	prompt   Prompt
	logger   log.FieldLogger
	maxCalls int
	timeout  time.Duration
	now      func() time.Time
}

type ServiceOption func(*Service)

func WithResolver(r Resolver) ServiceOption {
	return func(s *Service) {
		s.resolver = r
	}
}

func WithPrompt(p Prompt) ServiceOption {
	return func(s *Service) {
		s.prompt = p
	}
}

func WithLogger(l log.FieldLogger) ServiceOption {
	return func(s *Service) {
		s.logger = l
	}
}

func WithMaxFunctionCalls(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxCalls = n
		}
	}
}

// WithTimeout bounds the whole upstream exchange of one query.
func WithTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.timeout = d
	}
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(adapter Adapter, opts ...ServiceOption) *Service {
	s := &Service{
		adapter:  adapter,
		logger:   log.StandardLogger(),
		maxCalls: DefaultMaxFunctionCalls,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Query normalizes req, asks the provider, resolves server-side function
// calls and hands text deltas or a delegated function call to sink.
//
// An error returned before sink received anything is a request failure; any
// later error only truncates the stream.
func (s *Service) Query(ctx context.Context, req *QueryRequest, sink EventSink) error {
	if req == nil || len(req.Messages) == 0 {
		return ErrEmptyConversation
	}

	conv, err := Normalize(req.Messages, req.Context, req.Widgets)
	if err != nil {
		return err
	}

	vars := Vars{
		"context": conv.Context,
		"widgets": conv.Widgets,
		"today":   s.now().Format("2006-01-02"),
	}
	system, err := Render(s.prompt.System, vars)
	if err != nil {
		return fmt.Errorf("system prompt: %w", err)
	}
	history := conv.Messages
	if s.prompt.ContextMode == ContextAsMessage {
		history = injectContext(history, conv.Context)
	}
	history, err = RenderMessages(history, vars)
	if err != nil {
		return err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	scope := Scope{Widgets: req.Widgets, Context: req.Context}
	var specs []FunctionSpec
	if s.resolver != nil {
		specs = s.resolver.Specs(scope)
	}

	calls := 0
	for {
		stream, err := s.adapter.Complete(ctx, CompletionRequest{
			System:    system,
			Messages:  history,
			Functions: specs,
			Params:    s.prompt.Params,
		})
		if err != nil {
			return err
		}
		call, err := forward(stream, sink)
		stream.Close()
		if err != nil || call == nil {
			return err
		}

		if s.resolver == nil || len(specs) == 0 {
			return fmt.Errorf("%w: model called %q but no functions were offered", ErrUpstreamProtocol, call.Function)
		}
		// A call past the limit is refused before it runs.
		if calls >= s.maxCalls {
			return fmt.Errorf("%w: limit is %d", ErrTooManyFunctionCalls, s.maxCalls)
		}
		res, err := s.resolver.Resolve(ctx, call, scope)
		if err != nil {
			return err
		}
		logger := s.logger.WithField("function", call.Function)
		if res.Delegate {
			logger.Info("delegating function call to client")
			return sink.Send(CallEvent(call))
		}

		calls++
		logger.WithField("round", calls).Debug("resolved function call")

		if call.ID == "" {
			call.ID = uuid.NewString()
		}
		history = append(history,
			Message{Role: MessageRoleAssistant, Call: call},
			Message{Role: MessageRoleTool, Content: res.Content, CallID: call.ID, Function: call.Function},
		)
	}
}

// forward pulls stream into sink until it ends. If the provider chose a
// function call instead of answering, the call is returned and nothing is
// sent.
func forward(stream Stream, sink EventSink) (*FunctionCall, error) {
	streamed := false
	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		switch ev.Kind {
		case EventFunctionCall:
			if streamed {
				return nil, fmt.Errorf("%w: function call after text", ErrUpstreamProtocol)
			}
			if ev.Call == nil {
				return nil, fmt.Errorf("%w: empty function call", ErrUpstreamProtocol)
			}
			return ev.Call, nil
		case EventTextDelta:
			if ev.Delta == "" {
				continue
			}
			streamed = true
			if err := sink.Send(ev); err != nil {
				return nil, err
			}
		}
	}
}

func injectContext(msgs []Message, context string) []Message {
	ctxMsg := Message{Role: MessageRoleUser, Content: Sanitize("# Context\n" + context)}
	out := make([]Message, 0, len(msgs)+1)
	if len(msgs) == 0 {
		return append(out, ctxMsg)
	}
	out = append(out, msgs[0], ctxMsg)
	return append(out, msgs[1:]...)
}
