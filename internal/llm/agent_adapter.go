package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"copilots/internal/chat"

	"github.com/tidwall/gjson"
)

// AgentAdapter forwards the transcript to an agent service that answers with
// a single {"output": "..."} document.
type AgentAdapter struct {
	url    string
	token  string
	client *http.Client
}

func NewAgentAdapter(cfg Config) (*AgentAdapter, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("agent provider needs a base URL")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &AgentAdapter{url: cfg.BaseURL, token: cfg.APIKey, client: client}, nil
}

func (a *AgentAdapter) Complete(ctx context.Context, req chat.CompletionRequest) (chat.Stream, error) {
	body, err := json.Marshal(map[string]string{"input": transcript(req.Messages)})
	if err != nil {
		return nil, err
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	hreq.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		hreq.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(hreq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", chat.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read agent response: %v", chat.ErrUpstreamUnavailable, err)
	}
	if resp.StatusCode/100 != 2 {
		msg := gjson.GetBytes(raw, "error.message").String()
		if msg == "" {
			msg = gjson.GetBytes(raw, "error").String()
		}
		if msg == "" {
			msg = "an unknown error occurred"
		}
		return nil, fmt.Errorf("%w: agent status %d: %s", chat.ErrUpstreamUnavailable, resp.StatusCode, msg)
	}

	output := gjson.GetBytes(raw, "output")
	if !output.Exists() {
		return nil, fmt.Errorf("%w: agent response has no output", chat.ErrUpstreamProtocol)
	}
	if output.String() == "" {
		return chat.StreamOf(), nil
	}
	return chat.StreamOf(chat.TextDelta(output.String())), nil
}

func transcript(msgs []chat.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		switch m.Role {
		case chat.MessageRoleUser:
			b.WriteString("User: ")
		case chat.MessageRoleAssistant:
			if m.Call != nil {
				continue
			}
			b.WriteString("Assistant: ")
		default:
			continue
		}
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}
