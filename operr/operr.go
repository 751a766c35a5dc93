// Package operr defines the error classes shared by every engine so the CLI
// can map failures to exit codes without inspecting error strings.
package operr

import (
	"errors"
	"fmt"
)

// Class categorizes an operational failure.
type Class string

const (
	// InvalidArgument covers unknown environments, types, and flag
	// combinations. Raised before any I/O happens.
	InvalidArgument Class = "invalid_argument"
	// ValidationFailure covers missing config fields and insecure
	// production values.
	ValidationFailure Class = "validation_failure"
	// NotFound covers unknown backup ids, collections, and unresolvable
	// version targets. No partial action is taken.
	NotFound Class = "not_found"
	// ResourceBusy means another operation holds the (environment, domain)
	// lock. Retryable by the operator.
	ResourceBusy Class = "resource_busy"
	// StageFailure means a pipeline stage (test, build, deploy) failed.
	StageFailure Class = "stage_failure"
)

// Error carries the failing operation and precondition alongside the class.
type Error struct {
	Class   Class
	Op      string // e.g. "db restore", "config validate"
	Message string // the failing precondition, human readable
	LogPath string // set for stage failures where output was captured
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Message)
	if e.LogPath != "" {
		msg += fmt.Sprintf(" (log: %s)", e.LogPath)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// E constructs a classified error.
func E(class Class, op, message string) *Error {
	return &Error{Class: class, Op: op, Message: message}
}

// Wrap constructs a classified error around an underlying cause.
func Wrap(class Class, op, message string, err error) *Error {
	return &Error{Class: class, Op: op, Message: message, Err: err}
}

// Stage constructs a StageFailure pointing at the captured log.
func Stage(op, message, logPath string, err error) *Error {
	return &Error{Class: StageFailure, Op: op, Message: message, LogPath: logPath, Err: err}
}

// ClassOf returns the class of err, or "" if err carries none.
func ClassOf(err error) Class {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Class
	}
	return ""
}

// Is reports whether err belongs to class.
func Is(err error, class Class) bool {
	return ClassOf(err) == class
}

// ErrCanceled is returned when the operator refuses a confirmation prompt.
var ErrCanceled = errors.New("cancelled by operator")

// ExitCode maps an error to the process exit code: 0 success, 2 refused
// confirmation, 3 resource busy, 1 everything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, ErrCanceled) {
		return 2
	}
	if Is(err, ResourceBusy) {
		return 3
	}
	return 1
}
