// Package functions holds the functions a copilot can offer to the model.
package functions

import (
	"context"
	"encoding/json"
	"fmt"

	"copilots/internal/chat"

	"github.com/invopop/jsonschema"
	"github.com/samber/lo"
)

// Function is a callable the model may choose instead of answering.
type Function interface {
	// Name returns the unique name the model calls the function by.
	Name() string
	// Description returns a human-readable description for the model.
	Description() string
	// Parameters returns the JSON schema for the arguments.
	Parameters() map[string]any
	// Available reports whether the function can be offered for a request.
	Available(scope chat.Scope) bool
	// Resolve runs the call, or asks for it to be delegated to the client.
	Resolve(ctx context.Context, args map[string]any, scope chat.Scope) (chat.Resolution, error)
}

// Registry holds the functions of one copilot.
type Registry struct {
	funcs map[string]Function
	order []string
}

func NewRegistry(fns ...Function) *Registry {
	r := &Registry{funcs: make(map[string]Function)}
	for _, fn := range fns {
		r.Register(fn)
	}
	return r
}

func (r *Registry) Register(fn Function) {
	if _, ok := r.funcs[fn.Name()]; !ok {
		r.order = append(r.order, fn.Name())
	}
	r.funcs[fn.Name()] = fn
}

func (r *Registry) Get(name string) (Function, bool) {
	fn, ok := r.funcs[name]
	return fn, ok
}

// List returns the functions in registration order.
func (r *Registry) List() []Function {
	return lo.Map(r.order, func(name string, _ int) Function { return r.funcs[name] })
}

// Specs describes the functions available for scope.
func (r *Registry) Specs(scope chat.Scope) []chat.FunctionSpec {
	return lo.FilterMap(r.List(), func(fn Function, _ int) (chat.FunctionSpec, bool) {
		if !fn.Available(scope) {
			return chat.FunctionSpec{}, false
		}
		return chat.FunctionSpec{
			Name:        fn.Name(),
			Description: fn.Description(),
			Parameters:  fn.Parameters(),
		}, true
	})
}

// Resolve dispatches call. Calling a function that was not offered for scope
// is a provider protocol violation.
func (r *Registry) Resolve(ctx context.Context, call *chat.FunctionCall, scope chat.Scope) (chat.Resolution, error) {
	fn, ok := r.Get(call.Function)
	if !ok || !fn.Available(scope) {
		return chat.Resolution{}, fmt.Errorf("%w: model called unknown function %q", chat.ErrUpstreamProtocol, call.Function)
	}
	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}
	return fn.Resolve(ctx, args, scope)
}

var reflector = &jsonschema.Reflector{
	ExpandedStruct: true,
	DoNotReference: true,
}

// schemaOf reflects an argument struct into a JSON schema object.
func schemaOf(v any) map[string]any {
	raw, err := json.Marshal(reflector.Reflect(v))
	if err != nil {
		panic(fmt.Sprintf("functions: reflect schema: %v", err))
	}
	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		panic(fmt.Sprintf("functions: reflect schema: %v", err))
	}
	delete(schema, "$schema")
	return schema
}

// decodeArgs converts loosely typed call arguments into a typed struct.
func decodeArgs(args map[string]any, dst any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
