package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Default values for the collector configuration.
const (
	DefaultGRPCPort = 50051
	DefaultHTTPPort = 8080
)

// Config holds the collector configuration parsed from the `server:` section
// of config.yaml. The `agent:` key in the same file is ignored.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all collector settings. Scalar fields can be
// overridden by SCALARSHIP_SERVER_* environment variables.
type ServerConfig struct {
	// GRPCPort is the port the WriterService listens on (default 50051).
	GRPCPort int `yaml:"grpc_port" env:"SCALARSHIP_SERVER_GRPC_PORT"`

	// HTTPPort is the port of the read-only JSON API (default 8080).
	// Zero disables it.
	HTTPPort int `yaml:"http_port" env:"SCALARSHIP_SERVER_HTTP_PORT"`

	// RequireClientVersion refuses calls without the client version
	// metadata.
	RequireClientVersion bool `yaml:"require_client_version" env:"SCALARSHIP_SERVER_REQUIRE_CLIENT_VERSION"`

	// Auth configures how the collector authenticates incoming calls.
	Auth AuthConfig `yaml:"auth"`

	// Experiments controls in-memory retention.
	Experiments ExperimentsConfig `yaml:"experiments"`
}

// AuthConfig controls client authentication on the collector side.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode" env:"SCALARSHIP_SERVER_AUTH_MODE"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	// Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the gRPC metadata key to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// ExperimentsConfig controls in-memory experiment retention.
type ExperimentsConfig struct {
	// TTL evicts an experiment this long after its last write.
	// Zero (the default) keeps experiments until they are deleted.
	TTL time.Duration `yaml:"ttl" env:"SCALARSHIP_SERVER_EXPERIMENT_TTL"`
}

// Load reads and parses the config file at path, returning the collector
// configuration. Missing fields are filled with defaults, then environment
// overrides are applied before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("server config: parse env: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			GRPCPort: DefaultGRPCPort,
			HTTPPort: DefaultHTTPPort,
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.Server.GRPCPort <= 0 || cfg.Server.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [1, 65535]", cfg.Server.GRPCPort)
	}
	if cfg.Server.HTTPPort < 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [0, 65535]", cfg.Server.HTTPPort)
	}
	switch cfg.Server.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", cfg.Server.Auth.Mode)
	}
	if cfg.Server.Experiments.TTL < 0 {
		return fmt.Errorf("server.experiments.ttl must not be negative")
	}
	return nil
}
