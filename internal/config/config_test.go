package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadDefaultsFromProfile(t *testing.T) {
	cfg, err := load("", envOf(map[string]string{
		"COPILOT_PROFILE": "mistral",
		"MISTRAL_API_KEY": "mk",
	}))
	require.NoError(t, err)
	assert.Equal(t, "mistral", cfg.Provider)
	assert.Equal(t, "mistral-large-2407", cfg.Model)
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.2, *cfg.Temperature, 1e-9)
	assert.Equal(t, "mk", cfg.APIKey)
	assert.Equal(t, DefaultAddr, cfg.Addr)
	assert.Equal(t, DefaultUpstreamTimeout, cfg.UpstreamTimeout.Std())
	require.NoError(t, cfg.Validate())
}

func TestFileThenEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"profile": "llama",
		"addr": ":9000",
		"model": "llama3.2",
		"upstream_timeout": "30s",
		"allowed_origins": ["http://example.test"]
	}`), 0o644))

	cfg, err := load(path, envOf(map[string]string{"COPILOT_ADDR": ":9100"}))
	require.NoError(t, err)
	assert.Equal(t, "llama", cfg.Profile)
	assert.Equal(t, ":9100", cfg.Addr)
	assert.Equal(t, "llama3.2", cfg.Model)
	assert.Equal(t, "ollama", cfg.Provider)
	assert.Equal(t, 30*time.Second, cfg.UpstreamTimeout.Std())
	assert.Equal(t, []string{"http://example.test"}, cfg.AllowedOrigins)
	require.NoError(t, cfg.Validate())
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Profile = "findb"
	cfg.Provider = "openai"
	cfg.LogFormat = "xml"
	cfg.MaxFunctionCalls = 0

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "OPENAI_API_KEY")
	assert.Contains(t, msg, "FIN_DB_HOST_URL")
	assert.Contains(t, msg, "SECRET_KEY")
	assert.Contains(t, msg, "log_format")
	assert.Contains(t, msg, "max_function_calls")
}

func TestValidateUnknownProfileAndProvider(t *testing.T) {
	cfg := Default()
	cfg.Profile = "nope"
	cfg.Provider = "carrier-pigeon"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown profile "nope"`)
	assert.Contains(t, err.Error(), "unsupported provider")
}

func TestAgentNeedsURL(t *testing.T) {
	cfg, err := load("", envOf(map[string]string{"COPILOT_PROFILE": "agent"}))
	require.NoError(t, err)
	assert.ErrorContains(t, cfg.Validate(), "OPENBB_AGENT_URL")

	cfg, err = load("", envOf(map[string]string{"COPILOT_PROFILE": "agent", "OPENBB_AGENT_URL": "http://agent"}))
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())
}

func TestDurationAcceptsSeconds(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte("90")))
	assert.Equal(t, 90*time.Second, d.Std())
	assert.Error(t, d.UnmarshalJSON([]byte(`"soon"`)))
}

func TestReadDotenvFromParent(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("COPILOT_TEST_VALUE=from-dotenv\n"), 0o644))
	child := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(child, 0o755))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(child))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	env, err := readDotenv()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", env["COPILOT_TEST_VALUE"])
	_, set := os.LookupEnv("COPILOT_TEST_VALUE")
	assert.False(t, set)
}

func TestOverrideSelectsProfileBeforeDefaults(t *testing.T) {
	cfg, err := load("", envOf(map[string]string{"COPILOT_PROFILE": "example", "MISTRAL_API_KEY": "m"}),
		func(c *Config) { c.Profile = "mistral" })
	require.NoError(t, err)
	assert.Equal(t, "mistral", cfg.Profile)
	assert.Equal(t, "mistral", cfg.Provider)
	assert.Equal(t, "m", cfg.APIKey)
}

func TestGoogleAIRejectsBaseURL(t *testing.T) {
	cfg, err := load("", envOf(map[string]string{
		"COPILOT_PROVIDER": "gemini",
		"COPILOT_BASE_URL": "https://proxy.internal",
		"GOOGLE_API_KEY":   "g",
	}))
	require.NoError(t, err)
	assert.ErrorContains(t, cfg.Validate(), "base_url is not supported for googleai")

	cfg.BaseURL = ""
	assert.NoError(t, cfg.Validate())
}
