package chat

import "encoding/json"

// Role is the author of an inbound turn as the terminal names it.
type Role string

const (
	RoleHuman Role = "human"
	RoleAI    Role = "ai"
	RoleTool  Role = "tool"
)

// MessageRole is the provider-side role after normalization.
type MessageRole string

const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleTool      MessageRole = "tool"
)

// FunctionCall is a model request to run a named function.
type FunctionCall struct {
	// ID correlates a replayed call with its result for providers that need it.
	ID        string         `json:"-"`
	Function  string         `json:"function"`
	Arguments map[string]any `json:"input_arguments"`
}

// FunctionResult is a resolved FunctionCall, replayed as a tool turn.
type FunctionResult struct {
	Function  string         `json:"function"`
	Arguments map[string]any `json:"input_arguments,omitempty"`
	Content   string         `json:"content"`
}

// Turn is one entry of the inbound conversation. Exactly one of Text, Call and
// Result is meaningful.
type Turn struct {
	Role   Role
	Text   string
	Call   *FunctionCall
	Result *FunctionResult
}

// ContextItem is pre-attached widget data.
type ContextItem struct {
	UUID        string         `json:"uuid"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata"`
	Content     string         `json:"content"`
}

// Widget describes a data source the model may ask for.
type Widget struct {
	UUID        string         `json:"uuid"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata"`
}

// Context is either free text or a list of items.
type Context struct {
	Text  string
	Items []ContextItem
}

func (c *Context) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		c.Text = text
		return nil
	}
	return json.Unmarshal(data, &c.Items)
}

func (c Context) MarshalJSON() ([]byte, error) {
	if c.Items != nil {
		return json.Marshal(c.Items)
	}
	return json.Marshal(c.Text)
}

// QueryRequest is the body of POST /v1/query.
type QueryRequest struct {
	Messages []Turn   `json:"messages"`
	Context  *Context `json:"context,omitempty"`
	Widgets  []Widget `json:"widgets,omitempty"`
	UseDocs  *bool    `json:"use_docs,omitempty"`
}

// Message is a provider-agnostic chat message.
type Message struct {
	Role    MessageRole
	Content string

	// Set on assistant messages that called a function.
	Call *FunctionCall

	// Set on tool messages: the call being answered.
	CallID   string
	Function string
}

// EventKind discriminates Event.
type EventKind int

const (
	EventTextDelta EventKind = iota + 1
	EventFunctionCall
)

// Event is the unit a provider stream yields.
type Event struct {
	Kind  EventKind
	Delta string
	Call  *FunctionCall
}

func TextDelta(s string) Event {
	return Event{Kind: EventTextDelta, Delta: s}
}

func CallEvent(c *FunctionCall) Event {
	return Event{Kind: EventFunctionCall, Call: c}
}
