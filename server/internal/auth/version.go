package auth

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/obsidianstack/scalarship/pkg/types"
)

// VersionInterceptor rejects calls that do not carry the client version
// metadata (types.VersionMetadataKey) with codes.FailedPrecondition.
// When required is false every call passes.
func VersionInterceptor(required bool) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if !required {
			return handler(ctx, req)
		}
		md, _ := metadata.FromIncomingContext(ctx)
		if vals := md.Get(types.VersionMetadataKey); len(vals) == 0 || vals[0] == "" {
			return nil, status.Errorf(codes.FailedPrecondition, "missing %s metadata", types.VersionMetadataKey)
		}
		return handler(ctx, req)
	}
}
