// Package vslerrors carries the error taxonomy the engine uses to decide
// what a failure costs: abort the whole stream, tombstone one transaction,
// or just log a warning and keep going.
package vslerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error by the scope of damage it does.
type Code int

const (
	// CodeIO is a read failure from the underlying transport. Fatal: the
	// stream cannot continue.
	CodeIO Code = iota
	// CodeOverflow means a record (or the preamble) didn't fit in the
	// configured stream buffer. Fatal.
	CodeOverflow
	// CodeFraming means the binary record framing itself was corrupt
	// (bad length, truncated tail). Fatal, since byte alignment with the
	// source is lost.
	CodeFraming
	// CodePayload means a record framed correctly but its payload didn't
	// match the shape its tag promises. Scoped to the one VXID involved.
	CodePayload
	// CodeBuilderState means a tag arrived in a state the per-VXID state
	// machine didn't expect (e.g. End without a field its transaction kind
	// requires). Scoped to one VXID.
	CodeBuilderState
	// CodeUnresolvedLink is a warning, not a failure: a record was
	// emitted with a link that never resolved (eviction or stream end).
	CodeUnresolvedLink
)

func (c Code) String() string {
	switch c {
	case CodeIO:
		return "io"
	case CodeOverflow:
		return "overflow"
	case CodeFraming:
		return "framing"
	case CodePayload:
		return "payload"
	case CodeBuilderState:
		return "builder-state"
	case CodeUnresolvedLink:
		return "unresolved-link"
	default:
		return "unknown"
	}
}

// Fatal reports whether an error of this code should terminate the stream
// rather than being scoped to a single transaction.
func (c Code) Fatal() bool {
	return c == CodeIO || c == CodeOverflow || c == CodeFraming
}

// Error is a VSL-domain error. VXID is nil for stream-level errors (IO,
// Overflow, Framing) that happen before any transaction can be identified.
type Error struct {
	Code Code
	VXID *uint32
	Err  error
}

func (e *Error) Error() string {
	if e.VXID != nil {
		return fmt.Sprintf("vsl: %s (vxid %d): %v", e.Code, *e.VXID, e.Err)
	}
	return fmt.Sprintf("vsl: %s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func vxidPtr(vxid uint32) *uint32 { return &vxid }

func NewIOError(err error) *Error {
	return &Error{Code: CodeIO, Err: err}
}

func NewOverflowError(err error) *Error {
	return &Error{Code: CodeOverflow, Err: err}
}

func NewFramingError(err error) *Error {
	return &Error{Code: CodeFraming, Err: err}
}

func NewPayloadError(vxid uint32, err error) *Error {
	return &Error{Code: CodePayload, VXID: vxidPtr(vxid), Err: err}
}

func NewBuilderStateError(vxid uint32, msg string) *Error {
	return &Error{Code: CodeBuilderState, VXID: vxidPtr(vxid), Err: fmt.Errorf("%s", msg)}
}

func NewUnresolvedLinkWarning(vxid uint32, reason string) *Error {
	return &Error{Code: CodeUnresolvedLink, VXID: vxidPtr(vxid), Err: fmt.Errorf("%s", reason)}
}

// IsFatal reports whether err (if it is, or wraps, a *Error) should
// terminate the stream.
func IsFatal(err error) bool {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Code.Fatal()
	}
	return false
}
