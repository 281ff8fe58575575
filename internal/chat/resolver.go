package chat

import "context"

// Scope is the per-request data a function may resolve against.
type Scope struct {
	Widgets []Widget
	Context *Context
}

// Resolution is the outcome of a function call.
type Resolution struct {
	// Delegate means the call must be forwarded to the client, which fetches
	// the data itself and replays it as a tool turn.
	Delegate bool
	Content  string
}

// Resolver offers functions to the model and resolves the calls it makes.
type Resolver interface {
	Specs(scope Scope) []FunctionSpec
	Resolve(ctx context.Context, call *FunctionCall, scope Scope) (Resolution, error)
}
