// Package shipper sends WriteScalar and DeleteExperiment calls to the
// collector over gRPC, retrying transient failures.
//
// Every failure is classified once, from its gRPC status code, into a
// Class: Transient (Unavailable, DeadlineExceeded, ResourceExhausted,
// Internal, Aborted) is retried; Unknown and Permanent are returned at once.
// Retrier.Do makes up to 5 attempts, sleeping in doubling jittered windows
// (2–4s, 4–8s, 8–16s, 16–32s) between them. Sleeps honour ctx; a call
// abandoned by cancellation still returns its last error, flagged Abandoned.
//
// Every call carries the client version as gRPC metadata
// (types.VersionMetadataKey).
//
// Auth: mTLS via credentials.NewTLS(), API key via gRPC metadata header,
// or insecure (plaintext) for local development.
package shipper
