package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"copilots/internal/chat"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentAdapter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer pat", r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "User: hi\nAssistant: hello\nUser: price of AAPL?\n", body["input"])
		_, _ = io.WriteString(w, `{"output":"AAPL trades at 200."}`)
	}))
	defer srv.Close()

	a, err := NewAgentAdapter(Config{Provider: ProviderAgent, BaseURL: srv.URL, APIKey: "pat"})
	require.NoError(t, err)
	stream, err := a.Complete(context.Background(), chat.CompletionRequest{Messages: []chat.Message{
		{Role: chat.MessageRoleUser, Content: "hi"},
		{Role: chat.MessageRoleAssistant, Content: "hello"},
		{Role: chat.MessageRoleUser, Content: "price of AAPL?"},
	}})
	require.NoError(t, err)
	events, err := drain(t, stream)
	require.NoError(t, err)
	assert.Equal(t, []chat.Event{chat.TextDelta("AAPL trades at 200.")}, events)
}

func TestAgentAdapterError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"invalid PAT"}}`)
	}))
	defer srv.Close()

	a, err := NewAgentAdapter(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = a.Complete(context.Background(), chat.CompletionRequest{})
	assert.ErrorIs(t, err, chat.ErrUpstreamUnavailable)
	assert.Contains(t, err.Error(), "invalid PAT")
}

func TestAgentAdapterNeedsURL(t *testing.T) {
	_, err := NewAgentAdapter(Config{})
	assert.Error(t, err)
}
