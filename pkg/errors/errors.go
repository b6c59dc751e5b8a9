package errors

import (
	"fmt"
	"io"
)

// HostError is the interface implemented by all errors raised by the host layer.
type HostError interface {
	error // Embed the standard error interface
	Kind() string // e.g., "Type", "Module", "Runtime"
	// Message returns the specific error message without the kind prefix.
	Message() string
	Unwrap() error // For error wrapping support (errors.Is/As)
}

// --- Concrete Error Types ---

// TypeError represents an invalid operation on a value, such as reading a
// property of undefined.
type TypeError struct {
	Msg   string
	Cause error // Underlying cause, if any
}

func (e *TypeError) Error() string   { return fmt.Sprintf("Type Error: %s", e.Msg) }
func (e *TypeError) Kind() string    { return "Type" }
func (e *TypeError) Message() string { return e.Msg }
func (e *TypeError) Unwrap() error   { return e.Cause }
func (e *TypeError) CausedBy(cause error) *TypeError {
	e.Cause = cause
	return e
}

// ModuleError represents a failure to look up or build a native module.
type ModuleError struct {
	Module     string
	Msg        string
	Suggestion string // Closest declared module name, if any
	Cause      error
}

func (e *ModuleError) Error() string {
	msg := fmt.Sprintf("Module Error: %s: %s", e.Module, e.Msg)
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", e.Suggestion)
	}
	return msg
}
func (e *ModuleError) Kind() string    { return "Module" }
func (e *ModuleError) Message() string { return e.Msg }
func (e *ModuleError) Unwrap() error   { return e.Cause }
func (e *ModuleError) CausedBy(cause error) *ModuleError {
	e.Cause = cause
	return e
}

// RuntimeError represents a failure raised while native code runs on behalf
// of a script, such as a native function returning an error.
type RuntimeError struct {
	Msg   string
	Cause error // Underlying cause, if any
}

func (e *RuntimeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("Runtime Error: %s: %v", e.Msg, e.Cause)
	}
	return fmt.Sprintf("Runtime Error: %s", e.Msg)
}
func (e *RuntimeError) Kind() string    { return "Runtime" }
func (e *RuntimeError) Message() string { return e.Msg }
func (e *RuntimeError) Unwrap() error   { return e.Cause }
func (e *RuntimeError) CausedBy(cause error) *RuntimeError {
	e.Cause = cause
	return e
}

// --- Error Reporting ---

// DisplayErrors prints a list of errors to w, one per line. Host errors are
// printed as "<Kind> Error: <Message>", anything else verbatim.
func DisplayErrors(w io.Writer, errs []error) {
	for _, err := range errs {
		if err == nil {
			continue
		}
		if he, ok := err.(HostError); ok {
			fmt.Fprintf(w, "%s Error: %s\n", he.Kind(), he.Message())
			if cause := he.Unwrap(); cause != nil {
				fmt.Fprintf(w, "  caused by: %v\n", cause)
			}
			continue
		}
		fmt.Fprintf(w, "Error: %v\n", err)
	}
}
