// Package store keeps the collector's scalar data in memory, grouped by
// experiment, then (run, tag) series. It is thread-safe.
//
// Experiments are created by their first write. Deleting one leaves a
// tombstone so later writes to the same ID are refused with ErrDeleted.
// With a non-zero TTL, Run evicts experiments that have not been written
// to within the TTL.
package store
