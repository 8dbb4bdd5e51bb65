package commands

import (
	"errors"

	"github.com/vsl-go/vslcore/pkg/vslerrors"
)

// Exit codes for pipeline failure categories, preserved from the original
// tool's numbering so scripts piping vsltail's output can distinguish
// failure classes without parsing stderr.
const (
	ExitOK           = 0
	ExitGeneric      = 1
	ExitIO           = 10
	ExitOverflow     = 11
	ExitFraming      = 20
	ExitPayload      = 21
	ExitBuilderState = 22
)

// ExitCodeFor maps a pipeline error to a process exit code. Errors that
// aren't a *vslerrors.Error (config load failures, flag errors) get the
// generic exit code.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}
	var ve *vslerrors.Error
	if !errors.As(err, &ve) {
		return ExitGeneric
	}
	switch ve.Code {
	case vslerrors.CodeIO:
		return ExitIO
	case vslerrors.CodeOverflow:
		return ExitOverflow
	case vslerrors.CodeFraming:
		return ExitFraming
	case vslerrors.CodePayload:
		return ExitPayload
	case vslerrors.CodeBuilderState:
		return ExitBuilderState
	default:
		return ExitGeneric
	}
}
