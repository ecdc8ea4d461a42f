package uploader

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrExperimentNotFound means the collector has no such experiment,
	// usually because it was deleted.
	ErrExperimentNotFound = errors.New("uploader: experiment not found")

	// ErrPermissionDenied means the caller may not write to or delete the
	// experiment.
	ErrPermissionDenied = errors.New("uploader: permission denied")

	// ErrBatchSkipped matches a BatchError for a batch that was dropped
	// after its retries ran out.
	ErrBatchSkipped = errors.New("uploader: batch skipped")
)

// BatchError describes a batch the collector did not accept.
type BatchError struct {
	Points int
	Bytes  int

	// Skipped is true when the cycle carried on past this batch.
	Skipped bool

	Err error
}

func (e *BatchError) Error() string {
	verb := "rejected"
	if e.Skipped {
		verb = "skipped"
	}
	return fmt.Sprintf("uploader: batch of %d points (%d bytes) %s: %v", e.Points, e.Bytes, verb, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

func (e *BatchError) Is(target error) bool {
	switch target {
	case ErrBatchSkipped:
		return e.Skipped
	case ErrPermissionDenied:
		return status.Code(e.Err) == codes.PermissionDenied
	}
	return false
}
