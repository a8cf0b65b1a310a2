// Package vm - error handling with stack traces
package vm

import (
	"fmt"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/blade-lang/blade/pkg/module"
)

// StackFrame represents a single frame in the call stack. It captures
// information about where execution was when an error propagated through it.
type StackFrame struct {
	Name       string // function/method name, or "<script>"
	SourceLine int    // source line number (0 if unknown)
}

// RuntimeError is the language-level exception object every raised/uncaught
// Blade error surfaces as. Kind is one of spec §7's error-kind strings
// (SyntaxError, TypeError, ArgumentError, PropertyError, RangeError,
// NameError, ImportError, ValueError, StackOverflow, MemoryError) and is
// exposed to catch blocks as the exception's `type` field.
type RuntimeError struct {
	Kind       string
	Message    string
	StackTrace []StackFrame
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Kind, e.Message)
	if len(e.StackTrace) > 0 {
		b.WriteString("\n\nStack trace:")
		for i := len(e.StackTrace) - 1; i >= 0; i-- {
			f := e.StackTrace[i]
			fmt.Fprintf(&b, "\n  at %s", f.Name)
			if f.SourceLine > 0 {
				fmt.Fprintf(&b, " [line %d]", f.SourceLine)
			}
		}
	}
	return b.String()
}

func newRuntimeError(kind, message string, stack []StackFrame) *RuntimeError {
	return &RuntimeError{Kind: kind, Message: message, StackTrace: stack}
}

// classifyNativeError adapts an error returned across the native-call
// boundary (a pkg/stdlib provider, a file/network syscall) into the
// (kind, message) pair the VM raises as a catchable exception. A
// *module.DispatchError already carries a proper spec §7 kind; anything
// else reaching here is an unanticipated host-side failure, wrapped with
// github.com/pkg/errors and reported to Blade code as a generic
// ValueError carrying only the error's message; the captured stack is not
// kept.
func classifyNativeError(err error) (kind, msg string) {
	if de, ok := err.(*module.DispatchError); ok {
		return de.Kind, de.Msg
	}
	wrapped := pkgerrors.WithStack(err)
	return "ValueError", wrapped.Error()
}
