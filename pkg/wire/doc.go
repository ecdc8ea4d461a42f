// Package wire defines the messages sent to the collector and their exact
// protobuf encoding.
//
// Messages (proto3 field numbers):
//
//	Batch    { experiment_id = 1; repeated RunEntry runs = 2 }
//	RunEntry { name = 1; repeated TagEntry tags = 2 }
//	TagEntry { name = 1; repeated Point points = 2; bytes metadata = 3 }
//	Point    { int64 step = 1; Timestamp wall_time = 2; double value = 3 }
//
// Encoding is done with protowire so that Size() is always exactly
// len(Marshal()). cost.go holds the byte cost helpers the request builder
// uses to decide what still fits under MaxRequestLengthBytes.
//
// codec.go adapts the messages to a gRPC codec and service.go holds the
// WriterService descriptor shared by the agent client and the reference
// collector.
package wire
