package chat

import (
	"encoding/json"
	"fmt"
	"strings"
)

type wireTurn struct {
	Role      Role            `json:"role"`
	Content   json.RawMessage `json:"content"`
	Function  *string         `json:"function"`
	Arguments map[string]any  `json:"input_arguments"`
}

// UnmarshalJSON accepts the three shapes the terminal sends: plain text, a
// previously emitted function call echoed back as a JSON string, and a
// function result carrying a "function" field.
func (t *Turn) UnmarshalJSON(data []byte) error {
	var w wireTurn
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	if w.Function != nil {
		var content string
		if err := json.Unmarshal(w.Content, &content); err != nil {
			return fmt.Errorf("function result content must be a string: %w", err)
		}
		t.Role = w.Role
		if t.Role == "" {
			t.Role = RoleTool
		}
		t.Result = &FunctionResult{
			Function:  *w.Function,
			Arguments: w.Arguments,
			Content:   content,
		}
		return nil
	}

	t.Role = w.Role
	if len(w.Content) == 0 || string(w.Content) == "null" {
		return nil
	}

	var text string
	if err := json.Unmarshal(w.Content, &text); err == nil {
		if call, ok := DecodeFunctionCall(text); ok {
			t.Call = call
			return nil
		}
		t.Text = text
		return nil
	}

	var call FunctionCall
	if err := json.Unmarshal(w.Content, &call); err != nil || call.Function == "" {
		return fmt.Errorf("message content must be a string or a function call")
	}
	t.Call = &call
	return nil
}

func (t Turn) MarshalJSON() ([]byte, error) {
	switch {
	case t.Result != nil:
		return json.Marshal(struct {
			Role Role `json:"role"`
			FunctionResult
		}{t.Role, *t.Result})
	case t.Call != nil:
		encoded, err := json.Marshal(t.Call)
		if err != nil {
			return nil, err
		}
		return json.Marshal(struct {
			Role    Role   `json:"role"`
			Content string `json:"content"`
		}{t.Role, string(encoded)})
	default:
		return json.Marshal(struct {
			Role    Role   `json:"role"`
			Content string `json:"content"`
		}{t.Role, t.Text})
	}
}

// DecodeFunctionCall recovers a function call the client echoed back as text.
// The terminal sometimes string-encodes the object twice, so a decode that
// yields a string is decoded once more.
func DecodeFunctionCall(s string) (*FunctionCall, bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '"') {
		return nil, false
	}

	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return nil, false
	}
	if inner, ok := v.(string); ok {
		if err := json.Unmarshal([]byte(inner), &v); err != nil {
			return nil, false
		}
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	name, ok := obj["function"].(string)
	if !ok || name == "" {
		return nil, false
	}
	args, ok := obj["input_arguments"].(map[string]any)
	if !ok {
		return nil, false
	}
	return &FunctionCall{Function: name, Arguments: args}, true
}
