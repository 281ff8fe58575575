package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Conversation is the provider-agnostic form of a query.
type Conversation struct {
	Messages []Message
	Context  string
	Widgets  string
}

// Normalize maps inbound turns to provider messages and serializes context
// and widgets for prompt substitution. Text is brace-escaped so it renders
// back to itself.
func Normalize(turns []Turn, ctx *Context, widgets []Widget) (*Conversation, error) {
	if len(turns) == 0 {
		return nil, ErrEmptyConversation
	}

	msgs := make([]Message, 0, len(turns))
	var pending *FunctionCall
	for i, t := range turns {
		switch {
		case t.Result != nil:
			if t.Role != RoleTool {
				return nil, fmt.Errorf("%w: message %d: function result on %q message", ErrInvalidConversationState, i, t.Role)
			}
			if pending == nil {
				return nil, fmt.Errorf("%w: message %d: tool result without a preceding function call", ErrInvalidConversationState, i)
			}
			msgs = append(msgs, Message{
				Role:     MessageRoleTool,
				Content:  Sanitize(t.Result.Content),
				CallID:   pending.ID,
				Function: t.Result.Function,
			})
			pending = nil

		case t.Role == RoleTool:
			return nil, fmt.Errorf("%w: message %d: tool message must carry a function result", ErrInvalidConversationState, i)

		case t.Call != nil:
			if mapRole(t.Role) != MessageRoleAssistant {
				return nil, fmt.Errorf("%w: message %d: %s messages can only be text", ErrInvalidConversationState, i, t.Role)
			}
			call := *t.Call
			if call.ID == "" {
				call.ID = uuid.NewString()
			}
			msgs = append(msgs, Message{Role: MessageRoleAssistant, Call: &call})
			pending = &call

		default:
			msgs = append(msgs, Message{Role: mapRole(t.Role), Content: Sanitize(t.Text)})
		}
	}

	contextStr, err := serializeContext(ctx)
	if err != nil {
		return nil, err
	}
	widgetsStr, err := serializeWidgets(widgets)
	if err != nil {
		return nil, err
	}

	return &Conversation{
		Messages: msgs,
		Context:  contextStr,
		Widgets:  widgetsStr,
	}, nil
}

func mapRole(r Role) MessageRole {
	switch strings.ToLower(string(r)) {
	case "ai", "assistant":
		return MessageRoleAssistant
	default:
		// human, user and anything unrecognized
		return MessageRoleUser
	}
}

func serializeContext(ctx *Context) (string, error) {
	if ctx == nil {
		return "", nil
	}
	if ctx.Items == nil {
		return ctx.Text, nil
	}
	var b strings.Builder
	for _, item := range ctx.Items {
		line, err := compactJSON(item)
		if err != nil {
			return "", fmt.Errorf("%w: context %q: %v", ErrInvalidConversationState, item.UUID, err)
		}
		b.WriteString(line)
		b.WriteString("\n\n")
	}
	return b.String(), nil
}

func serializeWidgets(widgets []Widget) (string, error) {
	var b strings.Builder
	for _, w := range widgets {
		line, err := compactJSON(w)
		if err != nil {
			return "", fmt.Errorf("%w: widget %q: %v", ErrInvalidConversationState, w.UUID, err)
		}
		b.WriteString(line)
		b.WriteString("\n\n")
	}
	return b.String(), nil
}

func compactJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
