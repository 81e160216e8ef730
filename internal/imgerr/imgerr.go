// Package imgerr defines the result-typed error kinds used throughout the
// pipeline in place of the original implementation's C++ exceptions (see
// DESIGN.md, REDESIGN FLAGS: "Exceptions for control flow").
package imgerr

import "fmt"

// Kind classifies an Error for callers that need to branch on failure mode
// without string-matching messages.
type Kind int

const (
	// Internal indicates an invariant violation; reserved for bugs.
	Internal Kind = iota
	// IoError indicates a file not found, a read/write failure, or truncated data.
	IoError
	// FormatError indicates an unsupported codec, bit depth, or photometric interpretation.
	FormatError
	// InvalidArgument indicates out-of-range settings or incompatible dimensions.
	InvalidArgument
	// Cancelled indicates a cooperative cancellation, not a failure.
	Cancelled
	// ShaderError indicates a GPU program build/link failure.
	ShaderError
)

func (k Kind) String() string {
	switch k {
	case IoError:
		return "IoError"
	case FormatError:
		return "FormatError"
	case InvalidArgument:
		return "InvalidArgument"
	case Cancelled:
		return "Cancelled"
	case ShaderError:
		return "ShaderError"
	default:
		return "Internal"
	}
}

// Error is the single error type returned across package boundaries.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// IsCancelled reports whether err is a Cancelled-kind Error.
func IsCancelled(err error) bool {
	var e *Error
	if as, ok := err.(*Error); ok {
		e = as
	} else {
		return false
	}
	return e.Kind == Cancelled
}
