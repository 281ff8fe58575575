package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

const analystSystem = "You are an expert financial analyst with 30 years of experience. " +
	"You write answers that are extremely concise and short, but slightly sarcastic."

// AnalystRequest is the body of POST /gohanalyst.
type AnalystRequest struct {
	Query   string `json:"query"`
	Context string `json:"context"`
}

// AnalystResponse is the single document returned by Analyze.
type AnalystResponse struct {
	Output string `json:"output"`
}

// Analyze answers one query against free-text context in a single response.
// It uses the service's adapter and sampling params but none of its prompt,
// history handling or functions.
func (s *Service) Analyze(ctx context.Context, req *AnalystRequest) (*AnalystResponse, error) {
	if req == nil || strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("%w: query cannot be empty", ErrEmptyConversation)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	stream, err := s.adapter.Complete(ctx, CompletionRequest{
		System: analystSystem,
		Messages: []Message{{
			Role: MessageRoleUser,
			Content: "## Context\n\nYou have the following context available to answer your query:\n" +
				req.Context + "\n\n## User query\n" + req.Query,
		}},
		Params: s.prompt.Params,
	})
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var out strings.Builder
	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if ev.Kind == EventFunctionCall {
			return nil, fmt.Errorf("%w: function call from analyst", ErrUpstreamProtocol)
		}
		out.WriteString(ev.Delta)
	}
	s.logger.WithField("chars", out.Len()).Debug("analyst answered")
	return &AnalystResponse{Output: out.String()}, nil
}
