// Package auth provides the collector's gRPC middleware.
//
// APIKeyInterceptor(mode, header, key) validates the API key from the named
// gRPC metadata header. When mode != "apikey" or key == "", all calls pass
// through (useful for local development with auth disabled). When the key
// is incorrect or absent the call fails with codes.Unauthenticated.
//
// VersionInterceptor(required) refuses calls that do not identify the client
// version, with codes.FailedPrecondition.
package auth
