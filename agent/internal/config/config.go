package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultWriteRate    = 1.0 // WriteScalar calls per second
	DefaultSendTimeout  = 10 * time.Second
	DefaultAPIKeyHeader = "x-api-key"
)

// Config is the top-level agent configuration.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
}

// AgentConfig holds all agent-side settings. Scalar fields can be
// overridden by SCALARSHIP_* environment variables.
type AgentConfig struct {
	// ServerEndpoint is the gRPC address of the collector (host:port).
	ServerEndpoint string `yaml:"server_endpoint" env:"SCALARSHIP_SERVER_ENDPOINT"`

	// ExperimentID names the experiment every batch is written to.
	ExperimentID string `yaml:"experiment_id" env:"SCALARSHIP_EXPERIMENT_ID"`

	// PollInterval is the minimum spacing between upload cycles.
	PollInterval time.Duration `yaml:"poll_interval" env:"SCALARSHIP_POLL_INTERVAL"`

	// WriteRate caps WriteScalar calls per second. Zero disables pacing.
	WriteRate float64 `yaml:"write_rate" env:"SCALARSHIP_WRITE_RATE"`

	// SendTimeout bounds a single WriteScalar attempt.
	SendTimeout time.Duration `yaml:"send_timeout" env:"SCALARSHIP_SEND_TIMEOUT"`

	// Sources lists where scalar records are read from.
	Sources []Source `yaml:"sources"`

	// ServerAuth configures how the agent authenticates to the collector.
	// Supports mtls | apikey | none.
	ServerAuth AuthConfig `yaml:"server_auth"`
}

// Source describes one origin of scalar records. Each source becomes one run.
type Source struct {
	// ID is a unique, human-readable identifier for this source.
	ID string `yaml:"id"`

	// Type is the source type: prometheus | textfile.
	Type string `yaml:"type"`

	// Endpoint is the metrics URL scraped by a prometheus source.
	Endpoint string `yaml:"endpoint"`

	// Path is the directory of *.prom files read by a textfile source.
	Path string `yaml:"path"`

	// Run is the run name records are filed under. Defaults to ID.
	Run string `yaml:"run"`

	// Auth configures how the agent authenticates to this source.
	Auth AuthConfig `yaml:"auth"`

	// TLS holds optional TLS dial options.
	TLS TLSConfig `yaml:"tls"`
}

// RunName returns Run, or ID when Run is unset.
func (s Source) RunName() string {
	if s.Run != "" {
		return s.Run
	}
	return s.ID
}

// AuthConfig specifies an authentication mode.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// mTLS fields: used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// API key fields: used when Mode == "apikey".
	// Header is the header (or gRPC metadata key) to send the key in.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv holds the bearer token variable name (Mode == "bearer").
	TokenEnv string `yaml:"token_env"`

	// Basic auth fields: used when Mode == "basic".
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// HeaderName returns Header, or "x-api-key" when unset.
func (a AuthConfig) HeaderName() string {
	if a.Header != "" {
		return a.Header
	}
	return DefaultAPIKeyHeader
}

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string {
	if a.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.PasswordEnv)
}

// TLSConfig holds per-source TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// Load reads and parses the YAML config file at path, then applies
// SCALARSHIP_* environment overrides. Missing optional fields are filled
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return parse(data)
}

// parse builds a validated Config from YAML bytes plus the environment.
func parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			PollInterval: DefaultPollInterval,
			WriteRate:    DefaultWriteRate,
			SendTimeout:  DefaultSendTimeout,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	a := cfg.Agent
	if a.ServerEndpoint == "" {
		return fmt.Errorf("agent.server_endpoint is required")
	}
	if a.ExperimentID == "" {
		return fmt.Errorf("agent.experiment_id is required")
	}
	if a.PollInterval <= 0 {
		return fmt.Errorf("agent.poll_interval must be positive")
	}
	if a.WriteRate < 0 {
		return fmt.Errorf("agent.write_rate must not be negative")
	}
	if a.SendTimeout <= 0 {
		return fmt.Errorf("agent.send_timeout must be positive")
	}
	switch a.ServerAuth.Mode {
	case "mtls", "apikey", "none", "":
	default:
		return fmt.Errorf("agent.server_auth: unknown mode %q", a.ServerAuth.Mode)
	}

	seen := make(map[string]bool, len(a.Sources))
	for i, src := range a.Sources {
		if src.ID == "" {
			return fmt.Errorf("sources[%d]: id is required", i)
		}
		if seen[src.ID] {
			return fmt.Errorf("sources[%d]: duplicate id %q", i, src.ID)
		}
		seen[src.ID] = true
		switch src.Type {
		case "prometheus":
			if src.Endpoint == "" {
				return fmt.Errorf("sources[%d] %q: endpoint is required", i, src.ID)
			}
		case "textfile":
			if src.Path == "" {
				return fmt.Errorf("sources[%d] %q: path is required", i, src.ID)
			}
		default:
			return fmt.Errorf("sources[%d] %q: unknown type %q", i, src.ID, src.Type)
		}
		switch src.Auth.Mode {
		case "apikey", "bearer", "basic", "none", "":
		default:
			return fmt.Errorf("sources[%d] %q: unknown auth mode %q", i, src.ID, src.Auth.Mode)
		}
	}
	return nil
}
