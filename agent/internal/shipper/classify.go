package shipper

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Class is the retry classification of a failed call.
type Class int

const (
	// ClassPermanent failures cannot succeed on retry (bad input, missing
	// experiment, forbidden).
	ClassPermanent Class = iota
	// ClassTransient failures are worth retrying.
	ClassTransient
	// ClassUnknown covers codes.Unknown, including errors that carry no
	// gRPC status at all. They are not retried.
	ClassUnknown
)

func (c Class) String() string {
	switch c {
	case ClassPermanent:
		return "permanent"
	case ClassTransient:
		return "transient"
	case ClassUnknown:
		return "unknown"
	}
	return fmt.Sprintf("class(%d)", int(c))
}

// ClassifyCode maps a gRPC status code to its Class.
func ClassifyCode(code codes.Code) Class {
	switch code {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted,
		codes.Internal, codes.Aborted:
		return ClassTransient
	case codes.Unknown:
		return ClassUnknown
	}
	return ClassPermanent
}

// Classify returns the Class of err's gRPC status.
func Classify(err error) Class {
	return ClassifyCode(status.Code(err))
}

// Sentinel errors matched by RemoteError.Is on the status code.
var (
	ErrNotFound         = errors.New("shipper: not found")
	ErrPermissionDenied = errors.New("shipper: permission denied")
	ErrInvalidArgument  = errors.New("shipper: invalid argument")
	ErrUnauthenticated  = errors.New("shipper: unauthenticated")
)

// RemoteError is the result of a failed call after classification and any
// retries.
type RemoteError struct {
	Method   string
	Class    Class
	Code     codes.Code
	Attempts int

	// Abandoned is set when ctx was cancelled before the retries ran out.
	// The call was retryable; Err is the last attempt's error.
	Abandoned bool

	Err error
}

func (e *RemoteError) Error() string {
	if e.Abandoned {
		return fmt.Sprintf("shipper: %s abandoned after %d attempt(s): %v", e.Method, e.Attempts, e.Err)
	}
	return fmt.Sprintf("shipper: %s failed after %d attempt(s) (%s): %v", e.Method, e.Attempts, e.Class, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Code == codes.NotFound
	case ErrPermissionDenied:
		return e.Code == codes.PermissionDenied
	case ErrInvalidArgument:
		return e.Code == codes.InvalidArgument
	case ErrUnauthenticated:
		return e.Code == codes.Unauthenticated
	}
	return false
}

// Exhausted reports whether the call failed transiently on every attempt.
func (e *RemoteError) Exhausted() bool {
	return e.Class == ClassTransient && !e.Abandoned
}
