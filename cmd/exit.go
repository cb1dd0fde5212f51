package cmd

import (
	"github.com/pkg/errors"

	"github.com/hardup/hardup/pkg/dedupe"
	"github.com/hardup/hardup/pkg/linker"
)

// Process exit codes, from sysexits.h.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitUsage       = 64
	ExitNoInput     = 66
	ExitUnavailable = 69
	ExitConfig      = 78
)

// ExitError carries the exit code a failed command should terminate with.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func withCode(code int, err error) error {
	return &ExitError{Code: code, Err: err}
}

// ExitCode maps an error returned by a command to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	var rootErr *dedupe.RootError
	if errors.As(err, &rootErr) {
		return ExitNoInput
	}

	var linkErr *linker.Error
	if errors.As(err, &linkErr) {
		return ExitUnavailable
	}

	return ExitFailure
}
