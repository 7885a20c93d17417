package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeTestConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func clearCredentialEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvGroqAPIKey, "")
	t.Setenv(EnvSlackWebhookURL, "")
}

func TestLoad_Defaults(t *testing.T) {
	clearCredentialEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Analyzer.Timeout != 120*time.Second {
		t.Errorf("timeout = %s", cfg.Analyzer.Timeout)
	}
	if !cfg.Analyzer.Fallback {
		t.Error("fallback should default to true")
	}
	if !reflect.DeepEqual(cfg.Analyzer.BenignDiagnostics, []string{"InsecureRequestWarning"}) {
		t.Errorf("benign diagnostics = %v", cfg.Analyzer.BenignDiagnostics)
	}
}

func TestLoad_YAML(t *testing.T) {
	clearCredentialEnv(t)
	path := writeTestConfig(t, "config.yaml", `
server:
  port: 9090
  allowed_origins: ["https://console.example.com"]
analyzer:
  command: python3
  args: ["threat_agent.py"]
  timeout: 45s
  max_concurrent: 4
  fallback: false
credentials:
  groq_api_key: gsk_file
log:
  level: debug
  format: Console
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Analyzer.Command != "python3" || !reflect.DeepEqual(cfg.Analyzer.Args, []string{"threat_agent.py"}) {
		t.Errorf("analyzer = %+v", cfg.Analyzer)
	}
	if cfg.Analyzer.Timeout != 45*time.Second {
		t.Errorf("timeout = %s, want 45s", cfg.Analyzer.Timeout)
	}
	if cfg.Analyzer.Fallback {
		t.Error("fallback should be disabled")
	}
	if cfg.Credentials.GroqAPIKey != "gsk_file" {
		t.Errorf("api key = %q", cfg.Credentials.GroqAPIKey)
	}
	if cfg.Log.Format != "console" {
		t.Errorf("log format = %q, want console", cfg.Log.Format)
	}
	// untouched sections keep their defaults
	if cfg.Server.RateLimit.Capacity != 30 {
		t.Errorf("rate limit capacity = %d", cfg.Server.RateLimit.Capacity)
	}
}

func TestLoad_TOML(t *testing.T) {
	clearCredentialEnv(t)
	path := writeTestConfig(t, "config.toml", `
[analyzer]
command = "threat-agent"
timeout = "30s"
inherit_env = ["PATH", "HOME"]

[credentials]
slack_webhook_url = "https://hooks.slack.com/services/T000/B000/XXX"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Analyzer.Timeout != 30*time.Second {
		t.Errorf("timeout = %s, want 30s", cfg.Analyzer.Timeout)
	}
	if !reflect.DeepEqual(cfg.Analyzer.InheritEnv, []string{"PATH", "HOME"}) {
		t.Errorf("inherit_env = %v", cfg.Analyzer.InheritEnv)
	}
	if cfg.Credentials.SlackWebhookURL == "" {
		t.Error("webhook url not loaded")
	}
}

func TestLoad_EnvOverridesCredentials(t *testing.T) {
	t.Setenv(EnvGroqAPIKey, "gsk_env")
	t.Setenv(EnvSlackWebhookURL, "https://hooks.example.com/x")
	path := writeTestConfig(t, "config.yaml", "credentials:\n  groq_api_key: gsk_file\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Credentials.GroqAPIKey != "gsk_env" {
		t.Errorf("api key = %q, want env value", cfg.Credentials.GroqAPIKey)
	}
	env := cfg.AnalyzerEnv()
	if env[EnvGroqAPIKey] != "gsk_env" || env[EnvSlackWebhookURL] != "https://hooks.example.com/x" {
		t.Errorf("analyzer env = %v", env)
	}
}

func TestLoad_Invalid(t *testing.T) {
	clearCredentialEnv(t)
	cases := map[string]string{
		"bad port":    "server:\n  port: 70000\n",
		"no command":  "analyzer:\n  command: \"\"\n",
		"bad webhook": "credentials:\n  slack_webhook_url: ftp://x\n",
		"bad format":  "log:\n  format: xml\n",
		"neg timeout": "analyzer:\n  timeout: -1s\n",
		"broken yaml": "server: [",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeTestConfig(t, "config.yaml", content)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestProbe(t *testing.T) {
	cfg := Default()
	p := cfg.Probe()
	if p.Complete || !reflect.DeepEqual(p.Missing, []string{EnvGroqAPIKey, EnvSlackWebhookURL}) {
		t.Errorf("probe = %+v", p)
	}

	cfg.Credentials.GroqAPIKey = "k"
	p = cfg.Probe()
	if p.Complete || !reflect.DeepEqual(p.Missing, []string{EnvSlackWebhookURL}) {
		t.Errorf("probe = %+v", p)
	}

	cfg.Credentials.SlackWebhookURL = "https://hooks.example.com/x"
	p = cfg.Probe()
	if !p.Complete || len(p.Missing) != 0 || p.Missing == nil {
		t.Errorf("probe = %+v, want complete with empty (non-nil) list", p)
	}
}
