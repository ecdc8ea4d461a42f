package wire

import (
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the nested message fields. The builder needs these to
// price the growth of a parent when a child message grows.
const (
	FieldBatchExperimentID protowire.Number = 1
	FieldBatchRuns         protowire.Number = 2
	FieldRunName           protowire.Number = 1
	FieldRunTags           protowire.Number = 2
	FieldTagName           protowire.Number = 1
	FieldTagPoints         protowire.Number = 2
	FieldTagMetadata       protowire.Number = 3
	FieldPointStep         protowire.Number = 1
	FieldPointWallTime     protowire.Number = 2
	FieldPointValue        protowire.Number = 3

	fieldTimestampSeconds protowire.Number = 1
	fieldTimestampNanos   protowire.Number = 2

	fieldRunName   = FieldRunName
	fieldRunTags   = FieldRunTags
	fieldDeleteExp = protowire.Number(1)
)

// Timestamp mirrors google.protobuf.Timestamp.
type Timestamp struct {
	Seconds int64
	Nanos   int32
}

// TimestampFromSeconds converts a float Unix time to a Timestamp without the
// error that t*1e9 would introduce: the fractional part is rounded to the
// nearest nanosecond on its own.
func TimestampFromSeconds(t float64) Timestamp {
	sec := math.Floor(t)
	nanos := math.Round((t - sec) * 1e9)
	if nanos >= 1e9 {
		sec++
		nanos -= 1e9
	}
	return Timestamp{Seconds: int64(sec), Nanos: int32(nanos)}
}

// UnixNano returns the timestamp as nanoseconds since the epoch.
func (ts Timestamp) UnixNano() int64 {
	return ts.Seconds*int64(time.Second) + int64(ts.Nanos)
}

func (ts Timestamp) Size() int {
	return varintFieldCost(fieldTimestampSeconds, uint64(ts.Seconds)) +
		varintFieldCost(fieldTimestampNanos, uint64(int64(ts.Nanos)))
}

func (ts Timestamp) appendTo(b []byte) []byte {
	if ts.Seconds != 0 {
		b = protowire.AppendTag(b, fieldTimestampSeconds, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(ts.Seconds))
	}
	if ts.Nanos != 0 {
		b = protowire.AppendTag(b, fieldTimestampNanos, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(ts.Nanos)))
	}
	return b
}

func (ts *Timestamp) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldTimestampSeconds && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			ts.Seconds = int64(v)
			return n, nil
		case num == fieldTimestampNanos && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			ts.Nanos = int32(v)
			return n, nil
		}
		return skipField, nil
	})
}

// Point is the wire projection of one scalar record.
type Point struct {
	Step     int64
	WallTime Timestamp
	Value    float64
}

// Size returns the exact encoded size of p. WallTime is always encoded,
// even when zero.
func (p *Point) Size() int {
	n := varintFieldCost(FieldPointStep, uint64(p.Step))
	n += FieldCost(FieldPointWallTime, p.WallTime.Size())
	if math.Float64bits(p.Value) != 0 {
		n += protowire.SizeTag(FieldPointValue) + protowire.SizeFixed64()
	}
	return n
}

func (p *Point) appendTo(b []byte) []byte {
	if p.Step != 0 {
		b = protowire.AppendTag(b, FieldPointStep, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(p.Step))
	}
	b = protowire.AppendTag(b, FieldPointWallTime, protowire.BytesType)
	b = protowire.AppendVarint(b, uint64(p.WallTime.Size()))
	b = p.WallTime.appendTo(b)
	if bits := math.Float64bits(p.Value); bits != 0 {
		b = protowire.AppendTag(b, FieldPointValue, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, bits)
	}
	return b
}

func (p *Point) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == FieldPointStep && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			p.Step = int64(v)
			return n, nil
		case num == FieldPointWallTime && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			return n, p.WallTime.unmarshal(v)
		case num == FieldPointValue && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			p.Value = math.Float64frombits(v)
			return n, nil
		}
		return skipField, nil
	})
}

// TagEntry accumulates the points of one tag within a run.
type TagEntry struct {
	Name     string
	Metadata []byte
	Points   []*Point
}

func (t *TagEntry) Size() int {
	n := stringCost(FieldTagName, t.Name)
	for _, p := range t.Points {
		n += FieldCost(FieldTagPoints, p.Size())
	}
	if len(t.Metadata) > 0 {
		n += FieldCost(FieldTagMetadata, len(t.Metadata))
	}
	return n
}

func (t *TagEntry) appendTo(b []byte) []byte {
	if t.Name != "" {
		b = protowire.AppendTag(b, FieldTagName, protowire.BytesType)
		b = protowire.AppendString(b, t.Name)
	}
	for _, p := range t.Points {
		b = protowire.AppendTag(b, FieldTagPoints, protowire.BytesType)
		b = protowire.AppendVarint(b, uint64(p.Size()))
		b = p.appendTo(b)
	}
	if len(t.Metadata) > 0 {
		b = protowire.AppendTag(b, FieldTagMetadata, protowire.BytesType)
		b = protowire.AppendBytes(b, t.Metadata)
	}
	return b
}

func (t *TagEntry) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.BytesType {
			return skipField, nil
		}
		switch num {
		case FieldTagName:
			v, n := protowire.ConsumeString(b)
			t.Name = v
			return n, nil
		case FieldTagPoints:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			p := &Point{}
			t.Points = append(t.Points, p)
			return n, p.unmarshal(v)
		case FieldTagMetadata:
			v, n := protowire.ConsumeBytes(b)
			t.Metadata = append([]byte(nil), v...)
			return n, nil
		}
		return skipField, nil
	})
}

// RunEntry holds the tags of one run.
type RunEntry struct {
	Name string
	Tags []*TagEntry
}

func (r *RunEntry) Size() int {
	n := stringCost(FieldRunName, r.Name)
	for _, t := range r.Tags {
		n += FieldCost(FieldRunTags, t.Size())
	}
	return n
}

func (r *RunEntry) appendTo(b []byte) []byte {
	if r.Name != "" {
		b = protowire.AppendTag(b, FieldRunName, protowire.BytesType)
		b = protowire.AppendString(b, r.Name)
	}
	for _, t := range r.Tags {
		b = protowire.AppendTag(b, FieldRunTags, protowire.BytesType)
		b = protowire.AppendVarint(b, uint64(t.Size()))
		b = t.appendTo(b)
	}
	return b
}

func (r *RunEntry) unmarshal(b []byte) error {
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.BytesType {
			return skipField, nil
		}
		switch num {
		case FieldRunName:
			v, n := protowire.ConsumeString(b)
			r.Name = v
			return n, nil
		case FieldRunTags:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			t := &TagEntry{}
			r.Tags = append(r.Tags, t)
			return n, t.unmarshal(v)
		}
		return skipField, nil
	})
}

// Batch is one WriteScalar request.
type Batch struct {
	ExperimentID string
	Runs         []*RunEntry
}

func (m *Batch) Size() int {
	n := stringCost(FieldBatchExperimentID, m.ExperimentID)
	for _, r := range m.Runs {
		n += FieldCost(FieldBatchRuns, r.Size())
	}
	return n
}

func (m *Batch) Marshal() ([]byte, error) {
	b := make([]byte, 0, m.Size())
	if m.ExperimentID != "" {
		b = protowire.AppendTag(b, FieldBatchExperimentID, protowire.BytesType)
		b = protowire.AppendString(b, m.ExperimentID)
	}
	for _, r := range m.Runs {
		b = protowire.AppendTag(b, FieldBatchRuns, protowire.BytesType)
		b = protowire.AppendVarint(b, uint64(r.Size()))
		b = r.appendTo(b)
	}
	return b, nil
}

func (m *Batch) Unmarshal(b []byte) error {
	*m = Batch{}
	return walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.BytesType {
			return skipField, nil
		}
		switch num {
		case FieldBatchExperimentID:
			v, n := protowire.ConsumeString(b)
			m.ExperimentID = v
			return n, nil
		case FieldBatchRuns:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			r := &RunEntry{}
			m.Runs = append(m.Runs, r)
			return n, r.unmarshal(v)
		}
		return skipField, nil
	})
}

// PointCount returns the number of points across all runs and tags.
func (m *Batch) PointCount() int {
	n := 0
	for _, r := range m.Runs {
		for _, t := range r.Tags {
			n += len(t.Points)
		}
	}
	return n
}

// skipField tells walkFields that fn did not recognise the field. It sits
// outside the range of protowire's negative error codes.
const skipField = math.MinInt32

// walkFields iterates the fields of an encoded message. fn consumes the
// value of a known field and returns the bytes used; returning skipField with a
// nil error skips the field as unknown.
func walkFields(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("wire: %w", protowire.ParseError(n))
		}
		b = b[n:]

		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m == skipField {
			m = protowire.ConsumeFieldValue(num, typ, b)
		}
		if m < 0 {
			return fmt.Errorf("wire: field %d: %w", num, protowire.ParseError(m))
		}
		b = b[m:]
	}
	return nil
}
