package auth

import (
	"context"
	"crypto/subtle"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// APIKeyInterceptor returns a gRPC UnaryServerInterceptor that enforces API key
// authentication on every incoming call.
//
// Behaviour:
//   - If mode != "apikey" or key == "", all calls are allowed (pass-through).
//   - Otherwise the value of header in the incoming metadata must equal key.
//   - A missing, empty, or incorrect key returns codes.Unauthenticated.
//
// header should be lowercase; gRPC normalises metadata keys to lowercase.
func APIKeyInterceptor(mode, header, key string) grpc.UnaryServerInterceptor {
	if mode != "apikey" || key == "" {
		return passThrough
	}
	want := []byte(key)

	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		vals := md.Get(header)
		if len(vals) == 0 || vals[0] == "" {
			slog.Warn("auth: call without api key", "method", info.FullMethod)
			return nil, status.Error(codes.Unauthenticated, "missing api key")
		}
		if subtle.ConstantTimeCompare([]byte(vals[0]), want) != 1 {
			slog.Warn("auth: invalid api key", "method", info.FullMethod)
			return nil, status.Error(codes.Unauthenticated, "invalid api key")
		}
		return handler(ctx, req)
	}
}

func passThrough(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	return handler(ctx, req)
}
