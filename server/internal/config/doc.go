// Package config loads the collector configuration from the `server:` section
// of config.yaml (the `agent:` key is ignored by the server binary).
//
// Config fields:
//   - GRPCPort            : port for the WriterService (default 50051)
//   - HTTPPort            : port for the read-only JSON API (default 8080, 0 disables)
//   - RequireClientVersion: refuse calls without the client version metadata
//   - Auth.Mode           : "apikey" or "none"
//   - Auth.KeyEnv         : environment variable holding the expected API key
//   - Auth.Header         : gRPC metadata key (default "x-api-key")
//   - Experiments.TTL     : idle time before an experiment is evicted (0 keeps it)
//
// Load(path) applies defaults before unmarshalling, overlays
// SCALARSHIP_SERVER_* environment variables, then validates.
package config
