package workflow

import (
	"errors"

	"github.com/rotisserie/eris"
)

// Kind classifies a workflow failure. Every error leaving this package
// carries exactly one kind; callers branch on it instead of unwrapping
// lower-level errors.
type Kind string

const (
	// KindExtractionFailure means the text-understanding call failed or
	// returned garbage. Fatal to the run; no session exists.
	KindExtractionFailure Kind = "extraction_failure"
	// KindStoreUnavailable means the tabular store could not be read or
	// written. Fatal to commit, but the session survives for retry.
	KindStoreUnavailable Kind = "store_unavailable"
	// KindMirrorSync means the remote mirror rejected a push or pull. The
	// local commit stands; this kind only ever appears in warnings.
	KindMirrorSync Kind = "mirror_sync_failure"
	// KindInvalidTransition means the operator attempted a step out of
	// sequence. No state change.
	KindInvalidTransition Kind = "invalid_transition"
	// KindValidation means the request itself was malformed. No state change.
	KindValidation Kind = "validation_error"
	// KindSessionNotFound means the session id is unknown or expired.
	KindSessionNotFound Kind = "session_not_found"
)

// Error is the only error type the workflow boundary returns.
type Error struct {
	Kind Kind
	err  error
}

func (e *Error) Error() string { return string(e.Kind) + ": " + e.err.Error() }

func (e *Error) Unwrap() error { return e.err }

// NewError creates a workflow error from a message.
func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, err: eris.New(msg)}
}

// NewErrorf creates a workflow error from a format string.
func NewErrorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, err: eris.Errorf(format, args...)}
}

// WrapError attaches a kind to an underlying cause.
func WrapError(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, err: eris.Wrap(err, msg)}
}

// KindOf extracts the kind from an error, or "" for a non-workflow error.
func KindOf(err error) Kind {
	var we *Error
	if errors.As(err, &we) {
		return we.Kind
	}
	return ""
}
