package builder

import (
	"errors"
	"iter"
	"log/slog"

	"github.com/obsidianstack/scalarship/pkg/types"
	"github.com/obsidianstack/scalarship/pkg/wire"
)

type seriesKey struct {
	run string
	tag string
}

// Builder turns per-run records into size-bounded batches.
//
// A Builder is not safe for concurrent use: its session state is
// call-order dependent.
type Builder struct {
	experimentID string
	maxBytes     int

	seriesKind   map[seriesKey]types.Kind
	metadataSent map[seriesKey]struct{}
}

// Option configures a Builder.
type Option func(*Builder)

// WithMaxRequestBytes overrides wire.MaxRequestLengthBytes.
func WithMaxRequestBytes(n int) Option {
	return func(b *Builder) { b.maxBytes = n }
}

// New returns a Builder for experimentID.
func New(experimentID string, opts ...Option) *Builder {
	b := &Builder{
		experimentID: experimentID,
		maxBytes:     wire.MaxRequestLengthBytes,
		seriesKind:   make(map[seriesKey]types.Kind),
		metadataSent: make(map[seriesKey]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// MaxRequestBytes returns the byte budget of every batch.
func (b *Builder) MaxRequestBytes() int { return b.maxBytes }

// Build returns the batches for runs, processed in slice order and, within a
// run, in record order. The run name comes from RunRecords.Name.
//
// The sequence yields (batch, nil) for each batch. On a fatal configuration
// error it yields (nil, err) once and stops. Empty input yields nothing.
func (b *Builder) Build(runs []types.RunRecords) iter.Seq2[*wire.Batch, error] {
	return func(yield func(*wire.Batch, error) bool) {
		base := (&wire.Batch{ExperimentID: b.experimentID}).Size()
		if base > b.maxBytes {
			yield(nil, &FatalConfigError{Reason: reasonExperimentID, MaxBytes: b.maxBytes})
			return
		}

		p := b.newPacker()
		for _, run := range runs {
			for _, rec := range run.Records {
				if !b.accept(run.Name, rec) {
					continue
				}
				err := p.add(run.Name, rec)
				if !errors.Is(err, errOutOfSpace) {
					continue
				}
				if batch := p.flush(); batch != nil {
					if !yield(batch, nil) {
						return
					}
				}
				if err := p.add(run.Name, rec); errors.Is(err, errOutOfSpace) {
					yield(nil, &FatalConfigError{
						Reason:   reasonNoProgress,
						Run:      run.Name,
						Tag:      rec.Tag,
						MaxBytes: b.maxBytes,
					})
					return
				}
			}
		}
		if batch := p.flush(); batch != nil {
			yield(batch, nil)
		}
	}
}

// accept applies the series type filter. The first kind seen for a series
// is kept forever; only scalar series are uploaded.
func (b *Builder) accept(run string, rec types.Record) bool {
	key := seriesKey{run: run, tag: rec.Tag}
	kind, seen := b.seriesKind[key]
	if !seen {
		kind = rec.Kind
		b.seriesKind[key] = kind
		if kind != types.KindScalar {
			slog.Debug("builder: skipping non-scalar series", "run", run, "tag", rec.Tag, "kind", kind)
		}
	}
	return kind == types.KindScalar && rec.Kind == types.KindScalar
}

// packer fills one batch at a time.
type packer struct {
	b     *Builder
	batch *wire.Batch
	size  int
	runs  map[string]*runState
}

type runState struct {
	entry *wire.RunEntry
	size  int
	tags  map[string]*tagState
}

type tagState struct {
	entry *wire.TagEntry
	size  int
}

func (b *Builder) newPacker() *packer {
	p := &packer{b: b}
	p.reset()
	return p
}

func (p *packer) reset() {
	p.batch = &wire.Batch{ExperimentID: p.b.experimentID}
	p.size = p.batch.Size()
	p.runs = make(map[string]*runState)
}

// add appends rec to the current batch, creating its run and tag entries as
// needed. It returns errOutOfSpace, leaving the batch untouched, when the
// result would exceed the budget.
func (p *packer) add(run string, rec types.Record) error {
	key := seriesKey{run: run, tag: rec.Tag}
	point := &wire.Point{
		Step:     rec.Step,
		WallTime: wire.TimestampFromSeconds(rec.WallTime),
		Value:    rec.Value,
	}

	rs := p.runs[run]
	var ts *tagState
	if rs != nil {
		ts = rs.tags[rec.Tag]
	}

	var metadata []byte
	var tagSize int
	if ts != nil {
		tagSize = ts.size
	} else {
		if _, sent := p.b.metadataSent[key]; !sent {
			metadata = rec.Metadata
		}
		tagSize = (&wire.TagEntry{Name: rec.Tag, Metadata: metadata}).Size()
	}
	newTagSize := tagSize + wire.FieldCost(wire.FieldTagPoints, point.Size())

	var runSize int
	if rs != nil {
		runSize = rs.size
	} else {
		runSize = (&wire.RunEntry{Name: run}).Size()
	}
	newRunSize := runSize + wire.GrowthCost(wire.FieldRunTags, tagSize, newTagSize, ts != nil)
	newSize := p.size + wire.GrowthCost(wire.FieldBatchRuns, runSize, newRunSize, rs != nil)

	if newSize > p.b.maxBytes {
		return errOutOfSpace
	}

	if rs == nil {
		rs = &runState{entry: &wire.RunEntry{Name: run}, tags: make(map[string]*tagState)}
		p.runs[run] = rs
		p.batch.Runs = append(p.batch.Runs, rs.entry)
	}
	if ts == nil {
		ts = &tagState{entry: &wire.TagEntry{Name: rec.Tag, Metadata: metadata}}
		rs.tags[rec.Tag] = ts
		rs.entry.Tags = append(rs.entry.Tags, ts.entry)
		p.b.metadataSent[key] = struct{}{}
	}
	ts.entry.Points = append(ts.entry.Points, point)
	ts.size = newTagSize
	rs.size = newRunSize
	p.size = newSize
	return nil
}

// flush returns the current batch with empty entries pruned, or nil when it
// holds no points, and starts a fresh batch.
func (p *packer) flush() *wire.Batch {
	batch := prune(p.batch)
	p.reset()
	if len(batch.Runs) == 0 {
		return nil
	}
	return batch
}

// prune drops tags without points and runs without tags, in place.
func prune(batch *wire.Batch) *wire.Batch {
	runs := batch.Runs[:0]
	for _, r := range batch.Runs {
		tags := r.Tags[:0]
		for _, t := range r.Tags {
			if len(t.Points) > 0 {
				tags = append(tags, t)
			}
		}
		r.Tags = tags
		if len(r.Tags) > 0 {
			runs = append(runs, r)
		}
	}
	batch.Runs = runs
	return batch
}
