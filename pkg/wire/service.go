package wire

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protowire"
)

// Full method names of the WriterService.
const (
	ServiceName            = "scalarship.v1.WriterService"
	WriteScalarMethod      = "/" + ServiceName + "/WriteScalar"
	DeleteExperimentMethod = "/" + ServiceName + "/DeleteExperiment"
)

// WriteScalarResponse is empty; success is signalled by a nil error.
type WriteScalarResponse struct{}

func (*WriteScalarResponse) Marshal() ([]byte, error) { return nil, nil }
func (*WriteScalarResponse) Unmarshal(b []byte) error {
	return walkFields(b, func(protowire.Number, protowire.Type, []byte) (int, error) {
		return skipField, nil
	})
}

type DeleteExperimentRequest struct {
	ExperimentID string
}

func (m *DeleteExperimentRequest) Marshal() ([]byte, error) {
	var b []byte
	if m.ExperimentID != "" {
		b = protowire.AppendTag(b, fieldDeleteExp, protowire.BytesType)
		b = protowire.AppendString(b, m.ExperimentID)
	}
	return b, nil
}

func (m *DeleteExperimentRequest) Unmarshal(b []byte) error {
	*m = DeleteExperimentRequest{}
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == fieldDeleteExp && typ == protowire.BytesType {
			v, n := protowire.ConsumeString(b)
			m.ExperimentID = v
			return n, nil
		}
		return skipField, nil
	})
}

type DeleteExperimentResponse struct{}

func (*DeleteExperimentResponse) Marshal() ([]byte, error) { return nil, nil }
func (*DeleteExperimentResponse) Unmarshal(b []byte) error {
	return walkFields(b, func(protowire.Number, protowire.Type, []byte) (int, error) {
		return skipField, nil
	})
}

// WriterServer is implemented by the collector.
type WriterServer interface {
	WriteScalar(context.Context, *Batch) (*WriteScalarResponse, error)
	DeleteExperiment(context.Context, *DeleteExperimentRequest) (*DeleteExperimentResponse, error)
}

// RegisterWriterServer registers srv on s. The server must be built with
// grpc.ForceServerCodec(Codec{}).
func RegisterWriterServer(s grpc.ServiceRegistrar, srv WriterServer) {
	s.RegisterService(&WriterServiceDesc, srv)
}

// WriterServiceDesc describes the WriterService for grpc.Server.
var WriterServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*WriterServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "WriteScalar", Handler: writeScalarHandler},
		{MethodName: "DeleteExperiment", Handler: deleteExperimentHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func writeScalarHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Batch)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WriterServer).WriteScalar(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: WriteScalarMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(WriterServer).WriteScalar(ctx, req.(*Batch))
	}
	return interceptor(ctx, in, info, handler)
}

func deleteExperimentHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(DeleteExperimentRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WriterServer).DeleteExperiment(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: DeleteExperimentMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(WriterServer).DeleteExperiment(ctx, req.(*DeleteExperimentRequest))
	}
	return interceptor(ctx, in, info, handler)
}
