package wire

import "google.golang.org/protobuf/encoding/protowire"

// MaxRequestLengthBytes is the hard ceiling on a serialized Batch.
const MaxRequestLengthBytes = 128 * 1024

// VarintCost returns the number of bytes needed to encode v as a varint:
// one per started 7-bit group.
func VarintCost(v uint64) int {
	return protowire.SizeVarint(v)
}

// FieldCost returns the cost of a length-delimited field num carrying n
// payload bytes: tag key, length prefix and payload.
func FieldCost(num protowire.Number, n int) int {
	return protowire.SizeTag(num) + protowire.SizeBytes(n)
}

// GrowthCost returns how many bytes a parent grows by when its nested field
// num changes from oldLen to newLen payload bytes. When existed is false the
// field is new and its full cost is charged.
func GrowthCost(num protowire.Number, oldLen, newLen int, existed bool) int {
	cost := FieldCost(num, newLen)
	if existed {
		cost -= FieldCost(num, oldLen)
	}
	return cost
}

func stringCost(num protowire.Number, s string) int {
	if s == "" {
		return 0
	}
	return FieldCost(num, len(s))
}

func varintFieldCost(num protowire.Number, v uint64) int {
	if v == 0 {
		return 0
	}
	return protowire.SizeTag(num) + protowire.SizeVarint(v)
}
