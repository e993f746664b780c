package streamwriter

import "errors"

// Error kinds. Every failure returned by a Writer is an *Error whose Kind is
// one of these, so callers can test with errors.Is.
var (
	// ErrWriteAfterClose is returned by writes attempted once the writer is closed.
	ErrWriteAfterClose = errors.New("write after close")
	// ErrTransportWriteFailed wraps a failure reported by the downstream transport.
	ErrTransportWriteFailed = errors.New("transport write failed")
	// ErrEncodingFailed is returned when the declared charset is unknown or
	// a string cannot be represented in it.
	ErrEncodingFailed = errors.New("encoding failed")
	// ErrHookMissing is never returned; it tags the log entry written when a
	// close finds no completion hook.
	ErrHookMissing = errors.New("completion hook missing")
	// ErrInvalidRange is returned when offset/length do not describe a sub-slice of the payload.
	ErrInvalidRange = errors.New("invalid payload range")
	// ErrTransformFailed wraps an interceptor failure.
	ErrTransformFailed = errors.New("transform failed")
)

// Error describes a failed writer operation.
type Error struct {
	Op         string // "write", "write_error" or "close"
	Kind       error
	ResourceID string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.Error()
	if e.ResourceID != "" {
		msg += " (resource " + e.ResourceID + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the underlying cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// kindLabel returns a stable metrics label for an error kind.
func kindLabel(kind error) string {
	switch kind {
	case ErrWriteAfterClose:
		return "write_after_close"
	case ErrTransportWriteFailed:
		return "transport_write_failed"
	case ErrEncodingFailed:
		return "encoding_failed"
	case ErrHookMissing:
		return "hook_missing"
	case ErrInvalidRange:
		return "invalid_range"
	case ErrTransformFailed:
		return "transform_failed"
	default:
		return "unknown"
	}
}
