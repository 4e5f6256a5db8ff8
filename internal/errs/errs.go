// Package errs defines fishook's error taxonomy.
//
// Every fatal condition carries a Code so the CLI can pick an exit status and
// tests can assert on the class of failure without matching message text.
package errs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code identifies a class of failure.
type Code string

const (
	// InvalidConfigShape: a hook's action value is not one of the accepted shapes.
	InvalidConfigShape Code = "INVALID_CONFIG_SHAPE"
	// ConfigParseError: a config file could not be read or decoded.
	ConfigParseError Code = "CONFIG_PARSE_ERROR"
	// UnknownHook: the hook key is not in the fixed enumeration.
	UnknownHook Code = "UNKNOWN_HOOK"
	// CommandFailure: a dispatched command exited non-zero.
	CommandFailure Code = "COMMAND_FAILURE"
	// GitError: a git plumbing call failed outside of derivation's no-op cases.
	GitError Code = "GIT_ERROR"
	// InstallError: hook stubs could not be written or removed.
	InstallError Code = "INSTALL_ERROR"
	// Usage: bad flags or arguments on the command line.
	Usage Code = "USAGE"
)

// Error is a structured error with a code and optional details.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new Error.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps err with a code and message.
func Wrap(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// CodeOf returns the code of the first coded error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	var f *Failure
	if errors.As(err, &f) {
		return CommandFailure
	}
	return ""
}

// Is reports whether err's chain contains an error with the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// Failure describes a dispatched command that exited non-zero.
type Failure struct {
	Hook     string
	Config   string
	Block    int
	Handler  string
	Command  string
	ExitCode int
	// Output is the tail of the command's stderr.
	Output string
}

// Error implements the error interface.
func (f *Failure) Error() string {
	return fmt.Sprintf("%s: command failed with exit status %d: %s", CommandFailure, f.ExitCode, f.Command)
}

// Report renders the multi-line diagnostic printed by the CLI.
func (f *Failure) Report() string {
	var b strings.Builder
	fmt.Fprintf(&b, "fishook: %s: command failed (exit %d)\n", f.Hook, f.ExitCode)
	fmt.Fprintf(&b, "  config:  %s\n", f.Config)
	fmt.Fprintf(&b, "  block:   %d\n", f.Block)
	fmt.Fprintf(&b, "  handler: %s\n", f.Handler)
	fmt.Fprintf(&b, "  command: %s\n", f.Command)
	if out := strings.TrimSpace(f.Output); out != "" {
		b.WriteString("  output:\n")
		for _, line := range strings.Split(out, "\n") {
			b.WriteString("    " + line + "\n")
		}
	}
	return b.String()
}

// Report renders a coded error with its details sorted by key.
func Report(err error) string {
	var f *Failure
	if errors.As(err, &f) {
		return f.Report()
	}
	var e *Error
	if !errors.As(err, &e) {
		return fmt.Sprintf("fishook: %v\n", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "fishook: %v\n", e)
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "  %s: %v\n", k, e.Details[k])
	}
	return b.String()
}

// ExitCode maps an error to the process exit status: 0 for nil, the command's
// own status for a Failure, 2 for usage errors, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var f *Failure
	if errors.As(err, &f) {
		if f.ExitCode > 0 {
			return f.ExitCode
		}
		return 1
	}
	switch CodeOf(err) {
	case UnknownHook, Usage:
		return 2
	}
	return 1
}
