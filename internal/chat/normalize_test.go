package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"plain":         "plain",
		"{x}":           "{{x}}",
		"{{x}}":         "{{x}}",
		`{"a": {"b":1}}`: `{{"a": {{"b":1}}`,
		"a } b { c":     "a }} b {{ c",
	}
	for in, want := range cases {
		got := Sanitize(in)
		assert.Equal(t, want, got, in)
		assert.Equal(t, got, Sanitize(got), "idempotent for %q", in)
	}
}

func TestSanitizeRoundTripsThroughRender(t *testing.T) {
	for _, in := range []string{"{x}", `{"widget_uuid": "abc"}`, "no braces", "} {"} {
		out, err := Render(Sanitize(in), Vars{})
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestDecodeTurnShapes(t *testing.T) {
	body := `[
		{"role": "human", "content": "What is the price?"},
		{"role": "ai", "content": "{\"function\": \"get_widget_data\", \"input_arguments\": {\"widget_uuid\": \"w1\"}}"},
		{"role": "tool", "function": "get_widget_data", "input_arguments": {"widget_uuid": "w1"}, "content": "42"},
		{"role": "ai", "content": "\"{\\\"function\\\": \\\"get_widget_data\\\", \\\"input_arguments\\\": {}}\""}
	]`
	var turns []Turn
	require.NoError(t, json.Unmarshal([]byte(body), &turns))
	require.Len(t, turns, 4)

	assert.Equal(t, "What is the price?", turns[0].Text)

	require.NotNil(t, turns[1].Call)
	assert.Equal(t, "get_widget_data", turns[1].Call.Function)
	assert.Equal(t, "w1", turns[1].Call.Arguments["widget_uuid"])

	require.NotNil(t, turns[2].Result)
	assert.Equal(t, RoleTool, turns[2].Role)
	assert.Equal(t, "42", turns[2].Result.Content)

	require.NotNil(t, turns[3].Call, "double-encoded call")
	assert.Equal(t, "get_widget_data", turns[3].Call.Function)
}

func TestDecodeFunctionCallRejectsLookalikes(t *testing.T) {
	for _, s := range []string{
		"",
		"hello",
		`{"function": "x"}`,
		`{"input_arguments": {}}`,
		`{"function": 3, "input_arguments": {}}`,
		`["function"]`,
	} {
		_, ok := DecodeFunctionCall(s)
		assert.False(t, ok, s)
	}
}

func TestNormalizeMapsRolesAndCorrelatesCalls(t *testing.T) {
	turns := []Turn{
		{Role: RoleHuman, Text: "show {it}"},
		{Role: RoleAI, Call: &FunctionCall{Function: "get_widget_data", Arguments: map[string]any{"widget_uuid": "w1"}}},
		{Role: RoleTool, Result: &FunctionResult{Function: "get_widget_data", Content: "[1,2]"}},
		{Role: "mystery", Text: "?"},
	}
	conv, err := Normalize(turns, nil, nil)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 4)

	assert.Equal(t, Message{Role: MessageRoleUser, Content: "show {{it}}"}, conv.Messages[0])
	assert.Equal(t, MessageRoleAssistant, conv.Messages[1].Role)
	require.NotNil(t, conv.Messages[1].Call)
	assert.NotEmpty(t, conv.Messages[1].Call.ID)
	assert.Equal(t, MessageRoleTool, conv.Messages[2].Role)
	assert.Equal(t, conv.Messages[1].Call.ID, conv.Messages[2].CallID)
	assert.Equal(t, MessageRoleUser, conv.Messages[3].Role)

	// The inbound call is never mutated.
	assert.Empty(t, turns[1].Call.ID)
}

func TestNormalizeRejectsInvalidStates(t *testing.T) {
	cases := map[string][]Turn{
		"result without call": {
			{Role: RoleHuman, Text: "hi"},
			{Role: RoleTool, Result: &FunctionResult{Function: "get_widget_data", Content: "x"}},
		},
		"tool without result": {
			{Role: RoleTool, Text: "x"},
		},
		"human function call": {
			{Role: RoleHuman, Call: &FunctionCall{Function: "get_widget_data"}},
		},
		"result on ai turn": {
			{Role: RoleAI, Call: &FunctionCall{Function: "get_widget_data"}},
			{Role: RoleAI, Result: &FunctionResult{Function: "get_widget_data"}},
		},
	}
	for name, turns := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Normalize(turns, nil, nil)
			assert.ErrorIs(t, err, ErrInvalidConversationState)
		})
	}
}

func TestNormalizeEmpty(t *testing.T) {
	_, err := Normalize(nil, nil, nil)
	assert.ErrorIs(t, err, ErrEmptyConversation)
}

func TestNormalizeSerializesContextAndWidgets(t *testing.T) {
	ctx := &Context{Items: []ContextItem{{UUID: "c1", Name: "Prices", Content: "<b>1</b>"}}}
	widgets := []Widget{{UUID: "w1", Name: "Chart"}, {UUID: "w2", Name: "Table"}}

	conv, err := Normalize([]Turn{{Role: RoleHuman, Text: "hi"}}, ctx, widgets)
	require.NoError(t, err)
	assert.Equal(t, `{"uuid":"c1","name":"Prices","description":"","metadata":null,"content":"<b>1</b>"}`+"\n\n", conv.Context)
	assert.Equal(t,
		`{"uuid":"w1","name":"Chart","description":"","metadata":null}`+"\n\n"+
			`{"uuid":"w2","name":"Table","description":"","metadata":null}`+"\n\n",
		conv.Widgets)
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, 422, StatusCode(ErrEmptyConversation))
	assert.Equal(t, 400, StatusCode(ErrUnknownWidget))
	assert.Equal(t, 400, StatusCode(ErrInvalidConversationState))
	assert.Equal(t, 500, StatusCode(ErrUpstreamUnavailable))
	assert.Equal(t, "upstream protocol error", PublicMessage(ErrUpstreamProtocol))

	timeout := fmt.Errorf("openai: %w", context.DeadlineExceeded)
	assert.Equal(t, 500, StatusCode(timeout))
	assert.Equal(t, "upstream timed out", PublicMessage(timeout))
}
