package cli

import (
	"context"
	"errors"
	"io"

	perrors "github.com/matzehuels/precache/pkg/errors"
)

// Exit statuses.
const (
	ExitOK          = 0
	ExitFatal       = 1
	ExitPartial     = 2   // some evicted entries could not be moved
	ExitInterrupted = 130 // standard shell convention for SIGINT
)

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case perrors.Is(err, perrors.ErrCodeRelocationFailed):
		return ExitPartial
	default:
		return ExitFatal
	}
}

// PrintError writes err to w the way every command reports failures.
// Interruptions are not printed.
func PrintError(w io.Writer, err error) {
	switch ExitCode(err) {
	case ExitOK, ExitInterrupted:
	case ExitPartial:
		printWarning(w, "%s", perrors.UserMessage(err))
	default:
		printError(w, "%v", err)
	}
}
