// Package config loads and watches the agent configuration file (config.yaml).
//
// Top-level types:
//   - Config{Agent}: full config tree parsed from YAML
//   - AgentConfig: server_endpoint, experiment_id, poll_interval, write_rate,
//     send_timeout, sources [], server_auth
//   - Source: id, type (prometheus|textfile), endpoint or path, run, auth, tls
//   - AuthConfig: mode (mtls|apikey|bearer|basic|none), cert/key/ca files,
//     header, key_env, token_env; Key() and Token() resolve from environment
//     variables
//
// Load(path) reads the YAML file, applies defaults (5s poll, 1 write/s, 10s
// send timeout), overlays SCALARSHIP_* environment variables, then validates
// required fields and enums.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config. It handles the rename→create pattern
// used by atomic-save editors (vim, VS Code) by re-adding the watch after
// a rename event.
package config
