// Package builder packs scalar records into WriteScalar batches that each
// stay within a serialized byte budget.
//
// A Builder is long-lived: it remembers, for the life of the process, the
// first observed kind of every (run, tag) series and which series have
// already had their metadata sent. Build returns a lazy, single-pass
// sequence of batches for one upload cycle.
//
// Packing is exact. The builder tracks the encoded size of every open run
// and tag entry and prices each new point including the growth of every
// enclosing length prefix. When a point does not fit, the current batch is
// yielded and the point is retried against a fresh one; a point that does
// not fit an empty batch is a FatalConfigError.
package builder
