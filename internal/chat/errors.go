package chat

import (
	"context"
	"errors"
	"net/http"
)

var (
	ErrEmptyConversation        = errors.New("messages list cannot be empty")
	ErrInvalidConversationState = errors.New("invalid conversation state")
	ErrUnknownWidget            = errors.New("unknown widget")
	ErrUpstreamUnavailable      = errors.New("upstream unavailable")
	ErrUpstreamProtocol         = errors.New("upstream protocol error")
	ErrTooManyFunctionCalls     = errors.New("too many function calls")
)

// StatusCode maps an orchestrator error to the HTTP status reported to the
// caller when nothing has been streamed yet.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrEmptyConversation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrInvalidConversationState), errors.Is(err, ErrUnknownWidget):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the text safe to show to the client. Protocol errors
// never echo the upstream fragment.
func PublicMessage(err error) string {
	switch {
	case errors.Is(err, ErrUpstreamProtocol):
		return ErrUpstreamProtocol.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "upstream timed out"
	default:
		return err.Error()
	}
}
