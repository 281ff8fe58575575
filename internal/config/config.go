// Package config loads the service settings from a .env file, an optional
// JSON file and the environment, in increasing order of precedence.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"copilots/internal/chat"
	"copilots/internal/llm"
	"copilots/internal/profiles"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultAddr            = ":7777"
	DefaultProfile         = "example"
	DefaultUpstreamTimeout = 5 * time.Minute
)

// DefaultOrigins are the host terminal origins allowed by CORS.
var DefaultOrigins = []string{
	"http://localhost",
	"http://localhost:1420",
	"http://localhost:5050",
	"https://pro.openbb.dev",
	"https://pro.openbb.co",
}

type Config struct {
	Profile          string   `json:"profile"`
	Addr             string   `json:"addr"`
	Provider         string   `json:"provider"`
	Model            string   `json:"model"`
	BaseURL          string   `json:"base_url,omitempty"`
	APIKey           string   `json:"api_key,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxTokens        int      `json:"max_tokens,omitempty"`
	UpstreamTimeout  Duration `json:"upstream_timeout"`
	MaxFunctionCalls int      `json:"max_function_calls"`
	CopilotsFile     string   `json:"copilots_file,omitempty"`
	AllowedOrigins   []string `json:"allowed_origins"`
	LogLevel         string   `json:"log_level"`
	LogFormat        string   `json:"log_format"`
	FindbURL         string   `json:"findb_url,omitempty"`
	FindbSecret      string   `json:"findb_secret,omitempty"`
	AgentURL         string   `json:"agent_url,omitempty"`
	OpenBBPAT        string   `json:"openbb_pat,omitempty"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Profile:          DefaultProfile,
		Addr:             DefaultAddr,
		UpstreamTimeout:  Duration(DefaultUpstreamTimeout),
		MaxFunctionCalls: chat.DefaultMaxFunctionCalls,
		AllowedOrigins:   append([]string(nil), DefaultOrigins...),
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// Override adjusts a configuration after the file and environment are merged
// and before profile defaults are filled in. Command line flags use it.
type Override func(*Config)

// Load resolves the configuration. path may be empty. The process
// environment is read, never written.
func Load(path string, overrides ...Override) (Config, error) {
	dotenv, err := readDotenv()
	if err != nil {
		return Config{}, err
	}
	return load(path, func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return dotenv[key]
	}, overrides...)
}

func load(path string, getenv func(string) string, overrides ...Override) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv(getenv)
	for _, o := range overrides {
		o(&cfg)
	}
	cfg.applyProfile()
	if cfg.APIKey == "" {
		cfg.APIKey = getenv(apiKeyEnv(cfg.Provider))
	}
	return cfg, nil
}

// mergeFile overlays a JSON config file. A leading ~/ expands to the home
// directory.
func (c *Config) mergeFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		path = filepath.Join(home, path[2:])
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Profile, "COPILOT_PROFILE")
	set(&c.Addr, "COPILOT_ADDR")
	set(&c.Provider, "COPILOT_PROVIDER")
	set(&c.Model, "COPILOT_MODEL")
	set(&c.BaseURL, "COPILOT_BASE_URL")
	set(&c.LogLevel, "COPILOT_LOG_LEVEL")
	set(&c.FindbURL, "FIN_DB_HOST_URL")
	set(&c.FindbSecret, "SECRET_KEY")
	set(&c.AgentURL, "OPENBB_AGENT_URL")
	set(&c.OpenBBPAT, "OPENBB_PAT")
}

// WithProfileDefaults returns c with the provider settings of its profile
// filled in where unset.
func WithProfileDefaults(c Config) Config {
	c.applyProfile()
	return c
}

// applyProfile fills the provider settings the user left unset.
func (c *Config) applyProfile() {
	p, ok := profiles.Get(c.Profile)
	if !ok {
		return
	}
	if c.Provider == "" {
		c.Provider = string(p.Provider)
	}
	if c.Model == "" {
		c.Model = p.Model
	}
	if c.Temperature == nil && p.Temperature != 0 {
		t := p.Temperature
		c.Temperature = &t
	}
}

func apiKeyEnv(provider string) string {
	switch llm.Provider(strings.ToLower(provider)) {
	case llm.ProviderOpenAI:
		return "OPENAI_API_KEY"
	case llm.ProviderMistral:
		return "MISTRAL_API_KEY"
	case llm.ProviderPerplexity:
		return "PERPLEXITY_API_KEY"
	case llm.ProviderOpenRouter:
		return "OPENROUTER_API_KEY"
	case llm.ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case llm.ProviderGoogleAI, "gemini":
		return "GOOGLE_API_KEY"
	default:
		return ""
	}
}

// Validate reports every problem with the configuration at once.
func (c Config) Validate() error {
	var result *multierror.Error

	p, ok := profiles.Get(c.Profile)
	if !ok {
		result = multierror.Append(result, fmt.Errorf("unknown profile %q (known: %s)", c.Profile, strings.Join(profiles.Names(), ", ")))
	}

	provider, err := llm.ParseProvider(c.Provider)
	if err != nil {
		result = multierror.Append(result, err)
	} else {
		if provider.RequiresAPIKey() && c.APIKey == "" {
			result = multierror.Append(result, fmt.Errorf("provider %s needs an API key (set %s)", provider, apiKeyEnv(string(provider))))
		}
		if provider == llm.ProviderAgent && c.AgentURL == "" && c.BaseURL == "" {
			result = multierror.Append(result, errors.New("agent provider needs OPENBB_AGENT_URL"))
		}
		if provider == llm.ProviderGoogleAI && c.BaseURL != "" {
			result = multierror.Append(result, errors.New("base_url is not supported for googleai"))
		}
	}

	if ok && p.Offers(profiles.FuncSearchDocuments) {
		if c.FindbURL == "" {
			result = multierror.Append(result, errors.New("FIN_DB_HOST_URL not set"))
		}
		if c.FindbSecret == "" {
			result = multierror.Append(result, errors.New("SECRET_KEY not set"))
		}
	}

	if c.Addr == "" {
		result = multierror.Append(result, errors.New("addr is empty"))
	}
	if c.MaxFunctionCalls < 1 {
		result = multierror.Append(result, fmt.Errorf("max_function_calls must be at least 1, got %d", c.MaxFunctionCalls))
	}
	if c.UpstreamTimeout <= 0 {
		result = multierror.Append(result, errors.New("upstream_timeout must be positive"))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		result = multierror.Append(result, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		result = multierror.Append(result, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}

	return result.ErrorOrNil()
}

// readDotenv looks for a .env file in the working directory and its parents.
func readDotenv() (map[string]string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, nil
	}
	for {
		path := filepath.Join(dir, ".env")
		if _, err := os.Stat(path); err == nil {
			env, err := godotenv.Read(path)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", path, err)
			}
			return env, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// Duration is a time.Duration that reads as "90s" or a number of seconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}
	secs, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("duration must be a string like \"5m\" or seconds: %s", b)
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}
