package types

// Version is the client version reported to the collector on every call.
// Overridden at build time with -ldflags "-X .../pkg/types.Version=...".
var Version = "0.4.0"

// VersionMetadataKey is the gRPC metadata key carrying Version.
const VersionMetadataKey = "scalarship-client-version"
