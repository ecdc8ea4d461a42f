package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
agent:
  server_endpoint: "localhost:50051"
  experiment_id: "exp-1"
`

func TestLoad_Valid(t *testing.T) {
	yaml := `
agent:
  server_endpoint: "localhost:50051"
  experiment_id: "exp-42"
  poll_interval: 10s
  write_rate: 2.5
  sources:
    - id: trainer
      type: prometheus
      endpoint: "http://localhost:9090/metrics"
      auth:
        mode: none
    - id: evals
      type: textfile
      path: /var/lib/evals
      run: eval
`
	cfg := loadFromString(t, yaml)

	if cfg.Agent.ServerEndpoint != "localhost:50051" {
		t.Errorf("server_endpoint: got %q", cfg.Agent.ServerEndpoint)
	}
	if cfg.Agent.ExperimentID != "exp-42" {
		t.Errorf("experiment_id: got %q", cfg.Agent.ExperimentID)
	}
	if cfg.Agent.PollInterval != 10*time.Second {
		t.Errorf("poll_interval: got %v", cfg.Agent.PollInterval)
	}
	if cfg.Agent.WriteRate != 2.5 {
		t.Errorf("write_rate: got %v", cfg.Agent.WriteRate)
	}
	if len(cfg.Agent.Sources) != 2 {
		t.Fatalf("sources: got %d, want 2", len(cfg.Agent.Sources))
	}
	if got := cfg.Agent.Sources[0].RunName(); got != "trainer" {
		t.Errorf("sources[0] run: got %q, want trainer", got)
	}
	if got := cfg.Agent.Sources[1].RunName(); got != "eval" {
		t.Errorf("sources[1] run: got %q, want eval", got)
	}
	if cfg.Agent.Sources[1].Path != "/var/lib/evals" {
		t.Errorf("sources[1] path: got %q", cfg.Agent.Sources[1].Path)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadFromString(t, minimalYAML)

	if cfg.Agent.PollInterval != DefaultPollInterval {
		t.Errorf("default poll_interval: got %v, want %v", cfg.Agent.PollInterval, DefaultPollInterval)
	}
	if cfg.Agent.WriteRate != DefaultWriteRate {
		t.Errorf("default write_rate: got %v, want %v", cfg.Agent.WriteRate, DefaultWriteRate)
	}
	if cfg.Agent.SendTimeout != DefaultSendTimeout {
		t.Errorf("default send_timeout: got %v, want %v", cfg.Agent.SendTimeout, DefaultSendTimeout)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SCALARSHIP_SERVER_ENDPOINT", "collector:443")
	t.Setenv("SCALARSHIP_EXPERIMENT_ID", "from-env")
	t.Setenv("SCALARSHIP_POLL_INTERVAL", "1m")
	t.Setenv("SCALARSHIP_WRITE_RATE", "0.5")

	cfg := loadFromString(t, minimalYAML)

	if cfg.Agent.ServerEndpoint != "collector:443" {
		t.Errorf("server_endpoint: got %q", cfg.Agent.ServerEndpoint)
	}
	if cfg.Agent.ExperimentID != "from-env" {
		t.Errorf("experiment_id: got %q", cfg.Agent.ExperimentID)
	}
	if cfg.Agent.PollInterval != time.Minute {
		t.Errorf("poll_interval: got %v", cfg.Agent.PollInterval)
	}
	if cfg.Agent.WriteRate != 0.5 {
		t.Errorf("write_rate: got %v", cfg.Agent.WriteRate)
	}
}

func TestLoad_EnvSuppliesRequiredField(t *testing.T) {
	t.Setenv("SCALARSHIP_EXPERIMENT_ID", "from-env")
	cfg := loadFromString(t, `
agent:
  server_endpoint: "localhost:50051"
`)
	if cfg.Agent.ExperimentID != "from-env" {
		t.Errorf("experiment_id: got %q", cfg.Agent.ExperimentID)
	}
}

func TestLoad_BadEnvValue(t *testing.T) {
	t.Setenv("SCALARSHIP_POLL_INTERVAL", "soon")
	_, err := loadStringErr(t, minimalYAML)
	if err == nil || !strings.Contains(err.Error(), "parse env") {
		t.Fatalf("want parse env error, got %v", err)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing server_endpoint", `
agent:
  experiment_id: x
`},
		{"missing experiment_id", `
agent:
  server_endpoint: "localhost:50051"
`},
		{"negative write_rate", minimalYAML + "  write_rate: -1\n"},
		{"zero poll_interval", minimalYAML + "  poll_interval: 0s\n"},
		{"unknown server auth", minimalYAML + "  server_auth:\n    mode: bearer\n"},
		{"unknown source type", minimalYAML + `  sources:
    - id: mystery
      type: otelcol
      endpoint: "http://localhost:8888/metrics"
`},
		{"prometheus without endpoint", minimalYAML + `  sources:
    - id: prom
      type: prometheus
`},
		{"textfile without path", minimalYAML + `  sources:
    - id: files
      type: textfile
`},
		{"duplicate id", minimalYAML + `  sources:
    - id: a
      type: textfile
      path: /tmp/a
    - id: a
      type: textfile
      path: /tmp/b
`},
		{"unknown source auth", minimalYAML + `  sources:
    - id: prom
      type: prometheus
      endpoint: "http://localhost:9090/metrics"
      auth:
        mode: magictoken
`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := loadStringErr(t, tc.yaml); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestAuthConfig_Key(t *testing.T) {
	t.Setenv("TEST_API_KEY", "supersecret")
	a := AuthConfig{Mode: "apikey", KeyEnv: "TEST_API_KEY"}
	if got := a.Key(); got != "supersecret" {
		t.Errorf("Key(): got %q, want %q", got, "supersecret")
	}
}

func TestAuthConfig_Key_Empty(t *testing.T) {
	a := AuthConfig{Mode: "apikey"}
	if got := a.Key(); got != "" {
		t.Errorf("Key() with no KeyEnv: got %q, want empty", got)
	}
}

func TestAuthConfig_HeaderName(t *testing.T) {
	if got := (AuthConfig{}).HeaderName(); got != "x-api-key" {
		t.Errorf("default header: got %q", got)
	}
	if got := (AuthConfig{Header: "authorization"}).HeaderName(); got != "authorization" {
		t.Errorf("custom header: got %q", got)
	}
}

func TestAuthConfig_Token(t *testing.T) {
	t.Setenv("TEST_BEARER_TOKEN", "mytoken")
	a := AuthConfig{Mode: "bearer", TokenEnv: "TEST_BEARER_TOKEN"}
	if got := a.Token(); got != "mytoken" {
		t.Errorf("Token(): got %q, want %q", got, "mytoken")
	}
}

func TestLoad_MultipleAuthModes(t *testing.T) {
	tests := []struct {
		name string
		mode string
	}{
		{"apikey", "apikey"},
		{"bearer", "bearer"},
		{"basic", "basic"},
		{"none", "none"},
		{"empty", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			yaml := minimalYAML + `  sources:
    - id: src
      type: prometheus
      endpoint: "http://localhost:9090/metrics"
      auth:
        mode: "` + tc.mode + `"
`
			cfg := loadFromString(t, yaml)
			if cfg.Agent.Sources[0].Auth.Mode != tc.mode {
				t.Errorf("auth mode: got %q, want %q", cfg.Agent.Sources[0].Auth.Mode, tc.mode)
			}
		})
	}
}

// loadFromString writes yaml to a temp file and calls Load, failing on error.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return cfg
}

// loadStringErr writes yaml to a temp file and calls Load, returning any error.
func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return Load(path)
}
