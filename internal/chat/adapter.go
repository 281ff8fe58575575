package chat

//go:generate mockgen -source=adapter.go -destination=mocks/adapter.go -package=mocks

import "context"

// Adapter abstracts chat completion providers.
type Adapter interface {
	// Complete starts one completion. The returned stream yields either only
	// text deltas or exactly one function call, then io.EOF.
	Complete(ctx context.Context, req CompletionRequest) (Stream, error)
}

// Stream is a lazily pulled provider response.
type Stream interface {
	// Recv blocks until the next event is available. It returns io.EOF once
	// the provider signals the end of the response.
	Recv() (Event, error)
	// Close releases the upstream connection. It is safe to call more than once.
	Close() error
}

// CompletionRequest is what an adapter sends upstream.
type CompletionRequest struct {
	System    string
	Messages  []Message
	Functions []FunctionSpec
	Params    Params
}

// FunctionSpec describes a callable function to the provider.
type FunctionSpec struct {
	Name        string
	Description string
	// Parameters is a JSON schema object.
	Parameters map[string]any
}

// Params are per-profile sampling settings. Zero values mean provider default.
type Params struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// EventSink receives events in emission order.
type EventSink interface {
	Send(Event) error
}
