package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Names of the credentials the analyzer and notifier need.
const (
	EnvGroqAPIKey      = "GROQ_API_KEY"
	EnvSlackWebhookURL = "SLACK_WEBHOOK_URL"
)

type Config struct {
	Server      ServerConfig      `yaml:"server" toml:"server"`
	Analyzer    AnalyzerConfig    `yaml:"analyzer" toml:"analyzer"`
	Credentials CredentialsConfig `yaml:"credentials" toml:"credentials"`
	Agent       AgentConfig       `yaml:"agent" toml:"agent"`
	Log         LogConfig         `yaml:"log" toml:"log"`
}

type ServerConfig struct {
	Port           int      `yaml:"port" toml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes" toml:"max_body_bytes"`
	RateLimit      struct {
		Capacity        int `yaml:"capacity" toml:"capacity"`
		RefillPerSecond int `yaml:"refill_per_second" toml:"refill_per_second"`
	} `yaml:"rate_limit" toml:"rate_limit"`
}

// AnalyzerConfig describes how the external analyzer is run.
type AnalyzerConfig struct {
	Command           string        `yaml:"command" toml:"command"`
	Args              []string      `yaml:"args" toml:"args"`
	TempDir           string        `yaml:"temp_dir" toml:"temp_dir"`
	Timeout           time.Duration `yaml:"timeout" toml:"timeout"`
	BenignDiagnostics []string      `yaml:"benign_diagnostics" toml:"benign_diagnostics"`
	InheritEnv        []string      `yaml:"inherit_env" toml:"inherit_env"`
	MaxConcurrent     int64         `yaml:"max_concurrent" toml:"max_concurrent"`
	Fallback          bool          `yaml:"fallback" toml:"fallback"`
}

type CredentialsConfig struct {
	GroqAPIKey      string `yaml:"groq_api_key" toml:"groq_api_key"`
	SlackWebhookURL string `yaml:"slack_webhook_url" toml:"slack_webhook_url"`
}

// AgentConfig configures the bundled threat-agent analyzer.
type AgentConfig struct {
	Model       string `yaml:"model" toml:"model"`
	BaseURL     string `yaml:"base_url" toml:"base_url"`
	AlertOnHigh bool   `yaml:"alert_on_high" toml:"alert_on_high"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"*"},
			MaxBodyBytes:   1 << 20,
		},
		Analyzer: AnalyzerConfig{
			Command:           "threat-agent",
			TempDir:           "temp",
			Timeout:           120 * time.Second,
			BenignDiagnostics: []string{"InsecureRequestWarning"},
			InheritEnv:        []string{"PATH"},
			Fallback:          true,
		},
		Agent: AgentConfig{
			Model:       "llama-3.3-70b-versatile",
			BaseURL:     "https://api.groq.com/openai/v1",
			AlertOnHigh: true,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
	cfg.Server.RateLimit.Capacity = 30
	cfg.Server.RateLimit.RefillPerSecond = 1
	return cfg
}

// Load reads a YAML (or .toml) file over the defaults, applies environment
// overrides for credentials and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".toml":
			if _, err := toml.Decode(string(data), cfg); err != nil {
				return nil, fmt.Errorf("decode %s: %w", path, err)
			}
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("decode %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv lets the environment supply secrets, as deployments usually do.
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvGroqAPIKey); v != "" {
		c.Credentials.GroqAPIKey = v
	}
	if v := os.Getenv(EnvSlackWebhookURL); v != "" {
		c.Credentials.SlackWebhookURL = v
	}
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive")
	}
	if strings.TrimSpace(c.Analyzer.Command) == "" {
		return fmt.Errorf("analyzer.command is required")
	}
	if c.Analyzer.Timeout < 0 {
		return fmt.Errorf("analyzer.timeout must not be negative")
	}
	if c.Analyzer.MaxConcurrent < 0 {
		return fmt.Errorf("analyzer.max_concurrent must not be negative")
	}
	if c.Analyzer.TempDir == "" {
		c.Analyzer.TempDir = "temp"
	}
	if u := c.Credentials.SlackWebhookURL; u != "" {
		parsed, err := url.Parse(u)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return fmt.Errorf("credentials.slack_webhook_url is not a valid http(s) url")
		}
	}
	c.Log.Format = strings.ToLower(c.Log.Format)
	switch c.Log.Format {
	case "json", "console":
	case "":
		c.Log.Format = "json"
	default:
		return fmt.Errorf("unsupported log.format: %q", c.Log.Format)
	}
	return nil
}

// Probe is the result of the credential check.
type Probe struct {
	Missing  []string `json:"missing"`
	Complete bool     `json:"complete"`
}

// Probe lists unset credentials by their environment variable name. No side effects.
func (c *Config) Probe() Probe {
	missing := []string{}
	if c.Credentials.GroqAPIKey == "" {
		missing = append(missing, EnvGroqAPIKey)
	}
	if c.Credentials.SlackWebhookURL == "" {
		missing = append(missing, EnvSlackWebhookURL)
	}
	return Probe{Missing: missing, Complete: len(missing) == 0}
}

// AnalyzerEnv is the explicit set of values forwarded to the analyzer process.
func (c *Config) AnalyzerEnv() map[string]string {
	return map[string]string{
		EnvGroqAPIKey:      c.Credentials.GroqAPIKey,
		EnvSlackWebhookURL: c.Credentials.SlackWebhookURL,
	}
}
