// Package types defines Go types shared by the agent and the reference
// collector: the raw Record handed from a log source to the request builder,
// run grouping helpers, and the client version string attached to every RPC.
// These are the in-memory representations, separate from the wire format in
// pkg/wire.
package types
