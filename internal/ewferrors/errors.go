// Package ewferrors implements the closed error taxonomy shared by every
// component in the acquisition/verification pipeline.
package ewferrors

import (
	"errors"
	"fmt"
)

// Kind is one of the closed set of error categories a pipeline component
// can raise. Unlike sentinel errors, Kind survives wrapping: callers use
// KindOf(err) rather than errors.Is against a package-level var.
type Kind int

const (
	// KindUnknown is never constructed by this package; it is the zero
	// value returned by KindOf for errors it didn't produce.
	KindUnknown Kind = iota
	KindInvalidArgument
	KindInvalidPath
	KindPermissionDenied
	KindNotFound
	KindDeviceLost
	KindReadFailed
	KindWriteFailed
	KindSeekFailed
	KindOffsetOutOfRange
	KindSizeOutOfBounds
	KindMismatchedProfile
	KindUnsupportedFormat
	KindChecksumError
	KindHashMismatch
	KindAborted
	KindInternalInvariant
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindInvalidPath:
		return "InvalidPath"
	case KindPermissionDenied:
		return "PermissionDenied"
	case KindNotFound:
		return "NotFound"
	case KindDeviceLost:
		return "DeviceLost"
	case KindReadFailed:
		return "ReadFailed"
	case KindWriteFailed:
		return "WriteFailed"
	case KindSeekFailed:
		return "SeekFailed"
	case KindOffsetOutOfRange:
		return "OffsetOutOfRange"
	case KindSizeOutOfBounds:
		return "SizeOutOfBounds"
	case KindMismatchedProfile:
		return "MismatchedProfile"
	case KindUnsupportedFormat:
		return "UnsupportedFormat"
	case KindChecksumError:
		return "ChecksumError"
	case KindHashMismatch:
		return "HashMismatch"
	case KindAborted:
		return "Aborted"
	case KindInternalInvariant:
		return "InternalInvariant"
	default:
		return "Unknown"
	}
}

// Error is a taxonomy-tagged error carrying the component/operation that
// raised it, following a typed-error + fmt.Errorf("%w", ...) wrapping idiom
// for a closed error set.
type Error struct {
	Kind Kind
	Op   string // e.g. "deviceio.Read", "archive.WriteChunk"
	Err  error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a taxonomy error with no wrapped cause.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

// Wrap tags an existing error with a kind and the operation that observed
// it, so it can cross a pipeline boundary while remaining inspectable via
// KindOf and unwrappable via errors.Unwrap/errors.Is.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error produced by this package. Returns KindUnknown otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsFatal reports whether the error propagation policy treats kind as
// unrecoverable at the pipeline boundary. Only InternalInvariant is fatal;
// everything else, including DeviceLost, is reported to the caller but
// does not represent a programming-error-level failure.
func IsFatal(err error) bool {
	return KindOf(err) == KindInternalInvariant
}

// IsAborted reports whether err resulted from cooperative cancellation.
func IsAborted(err error) bool {
	return KindOf(err) == KindAborted
}
