package wire

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// Message is implemented by every type carried over the WriterService.
type Message interface {
	Marshal() ([]byte, error)
	Unmarshal([]byte) error
}

// Codec encodes wire messages for gRPC. It reports the "proto" content
// subtype because the encoding is plain protobuf.
type Codec struct{}

var _ encoding.Codec = Codec{}

func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(Message)
	if !ok {
		return nil, fmt.Errorf("wire: cannot marshal %T", v)
	}
	return m.Marshal()
}

func (Codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(Message)
	if !ok {
		return fmt.Errorf("wire: cannot unmarshal into %T", v)
	}
	return m.Unmarshal(data)
}

func (Codec) Name() string { return "proto" }
