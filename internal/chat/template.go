package chat

import (
	"fmt"

	"github.com/tmc/langchaingo/prompts"
)

// Vars are the template variables available to system prompts and messages.
type Vars map[string]any

// Render formats an f-string template ("{name}" placeholders, "{{" and "}}"
// escapes) with vars.
func Render(tmpl string, vars Vars) (string, error) {
	out, err := prompts.RenderTemplate(tmpl, prompts.TemplateFormatFString, vars)
	if err != nil {
		return "", fmt.Errorf("%w: render template: %v", ErrInvalidConversationState, err)
	}
	return out, nil
}

// RenderMessages renders the text of every message. Assistant function-call
// messages carry no text and are passed through.
func RenderMessages(msgs []Message, vars Vars) ([]Message, error) {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m
		if m.Content == "" {
			continue
		}
		rendered, err := Render(m.Content, vars)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		out[i].Content = rendered
	}
	return out, nil
}
