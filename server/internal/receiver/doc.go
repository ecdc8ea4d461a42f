// Package receiver implements wire.WriterServer, the gRPC endpoint that
// accepts WriteScalar and DeleteExperiment calls from scalarship agents.
//
// WriteScalar rejects a batch without an experiment ID
// (codes.InvalidArgument) and answers codes.NotFound for a deleted
// experiment. DeleteExperiment answers codes.NotFound for an unknown one.
// Authentication and the client-version check are enforced upstream by the
// gRPC server interceptors (see package auth), so the receiver itself only
// performs structural validation.
//
// New(st) wires the receiver to the given store.
package receiver
