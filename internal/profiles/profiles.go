// Package profiles defines the built-in copilot personas.
package profiles

import (
	"embed"
	"fmt"
	"sort"
	"strings"

	"copilots/internal/chat"
	"copilots/internal/llm"
)

//go:embed prompts
var promptFiles embed.FS

// Function names a profile may offer.
const (
	FuncWidgetData      = "get_widget_data"
	FuncSearchDocuments = "search_documents"
)

type Profile struct {
	Name        string
	DisplayName string
	Description string

	Provider    llm.Provider
	Model       string
	Temperature float64
	Headers     map[string]string

	Functions   []string
	ContextMode chat.ContextMode
	// Prompt is the system prompt template. It may use {context}, {widgets}
	// and {today}.
	Prompt string
}

// Offers reports whether the profile offers the named function.
func (p Profile) Offers(name string) bool {
	for _, f := range p.Functions {
		if f == name {
			return true
		}
	}
	return false
}

// ChatPrompt is the persona as the orchestrator consumes it.
func (p Profile) ChatPrompt(params chat.Params) chat.Prompt {
	return chat.Prompt{System: p.Prompt, ContextMode: p.ContextMode, Params: params}
}

// Descriptor is the /copilots.json document for the profile.
func (p Profile) Descriptor(queryURL string) map[string]any {
	return map[string]any{
		p.Name + "_copilot": map[string]any{
			"name":               p.DisplayName,
			"description":        p.Description,
			"image":              "https://github.com/OpenBB-finance/copilot-for-terminal-pro/assets/14093308/7da2a512-93b9-478d-90bc-b8c3dd0cabcf",
			"hasStreaming":       true,
			"hasDocuments":       false,
			"hasFunctionCalling": len(p.Functions) > 0,
			"endpoints": map[string]any{
				"query": queryURL,
			},
		},
	}
}

var builtin = map[string]Profile{
	"example": {
		Name:        "example",
		DisplayName: "Example Copilot",
		Description: "AI-powered financial copilot that uses OpenAI's GPT-4o.",
		Provider:    llm.ProviderOpenAI,
		Model:       "gpt-4o",
		Prompt:      mustPrompt("example"),
	},
	"mistral": {
		Name:        "mistral",
		DisplayName: "Mistral Copilot",
		Description: "AI-powered financial copilot that uses Mistral Large and can retrieve widget data.",
		Provider:    llm.ProviderMistral,
		Model:       "mistral-large-2407",
		Temperature: 0.2,
		Functions:   []string{FuncWidgetData},
		Prompt:      mustPrompt("mistral"),
	},
	"perplexity": {
		Name:        "perplexity",
		DisplayName: "Perplexity Copilot",
		Description: "AI-powered financial copilot with online search, using Perplexity's Sonar models.",
		Provider:    llm.ProviderPerplexity,
		Model:       "llama-3-sonar-large-32k-online",
		Prompt:      mustPrompt("perplexity"),
	},
	"liquid": {
		Name:        "liquid",
		DisplayName: "Liquid LFM-40B Copilot",
		Description: "AI-powered financial copilot that uses Liquid's LFM-40B through OpenRouter.",
		Provider:    llm.ProviderOpenRouter,
		Model:       "liquid/lfm-40b:free",
		Headers:     map[string]string{"HTTP-Referer": "pro.openbb.co", "X-Title": "OpenBB"},
		Prompt:      mustPrompt("liquid"),
	},
	"llama": {
		Name:        "llama",
		DisplayName: "Llama 3.1 Local Copilot",
		Description: "AI-powered financial copilot running Llama 3.1 8B locally through Ollama.",
		Provider:    llm.ProviderOllama,
		Model:       "llama3.1:8b-instruct-q6_K",
		ContextMode: chat.ContextAsMessage,
		Prompt:      mustPrompt("llama"),
	},
	"findb": {
		Name:        "findb",
		DisplayName: "FinDB Copilot",
		Description: "AI-powered financial copilot that searches SEC filings and earnings transcripts.",
		Provider:    llm.ProviderOpenAI,
		Model:       "gpt-4o-mini",
		Temperature: 0.2,
		Functions:   []string{FuncSearchDocuments},
		Prompt:      mustPrompt("findb"),
	},
	"agent": {
		Name:        "agent",
		DisplayName: "OpenBB Agent Copilot",
		Description: "AI-powered financial copilot backed by the OpenBB agent framework.",
		Provider:    llm.ProviderAgent,
		Model:       "openbb-agent",
	},
}

func Get(name string) (Profile, bool) {
	p, ok := builtin[strings.ToLower(name)]
	return p, ok
}

// Names returns the built-in profile names, sorted.
func Names() []string {
	names := make([]string, 0, len(builtin))
	for n := range builtin {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func mustPrompt(name string) string {
	b, err := promptFiles.ReadFile("prompts/" + name + ".md")
	if err != nil {
		panic(fmt.Sprintf("profiles: missing prompt %s: %v", name, err))
	}
	return string(b)
}
