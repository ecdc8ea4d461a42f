// Package uploader runs upload cycles: it reads pending records from a
// Source, packs them into size-bounded batches with builder.Builder, paces
// the WriteScalar calls with a rate limiter and sends each batch through a
// Writer (normally a retrying shipper.Client).
//
// Cycle outcomes:
//   - NotFound from the collector aborts with ErrExperimentNotFound.
//   - Other permanent or unknown failures abort with a *BatchError.
//   - A batch whose retries ran out is skipped; the cycle goes on and the
//     skipped batches are reported together, matching ErrBatchSkipped.
//   - A fatal builder error (budget too small) aborts the cycle.
//
// Run repeats cycles no more often than the poll interval until its
// context is cancelled.
package uploader
