package profiles

import (
	"testing"

	"copilots/internal/chat"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinPromptsRender(t *testing.T) {
	vars := chat.Vars{"context": "ctx", "widgets": "w", "today": "2024-09-03"}
	for _, name := range Names() {
		p, ok := Get(name)
		require.True(t, ok, name)
		out, err := chat.Render(p.Prompt, vars)
		require.NoError(t, err, name)
		if p.ContextMode == chat.ContextInSystem && p.Prompt != "" {
			assert.Contains(t, out, "ctx", name)
		}
	}
}

func TestProfileDetails(t *testing.T) {
	findb, ok := Get("FinDB")
	require.True(t, ok)
	assert.True(t, findb.Offers(FuncSearchDocuments))
	assert.False(t, findb.Offers(FuncWidgetData))
	assert.Contains(t, findb.Prompt, "{today}")

	llama, _ := Get("llama")
	assert.Equal(t, chat.ContextAsMessage, llama.ContextMode)

	liquid, _ := Get("liquid")
	assert.Equal(t, "OpenBB", liquid.Headers["X-Title"])

	_, ok = Get("missing")
	assert.False(t, ok)
}

func TestDescriptor(t *testing.T) {
	p, _ := Get("mistral")
	d := p.Descriptor("http://localhost:7777/v1/query")
	entry := d["mistral_copilot"].(map[string]any)
	assert.Equal(t, true, entry["hasFunctionCalling"])
	assert.Equal(t, "http://localhost:7777/v1/query", entry["endpoints"].(map[string]any)["query"])
}
