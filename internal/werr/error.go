// Package werr defines the shared error shape used by the four error families described by
// the engine: decode, parse, validation, and runtime errors. Each family defines
// its own Kind type (a small string enum) and constructs an *Error via New/Newf; consumers
// compare against sentinel Kind values rather than parsing messages, while the message chain
// produces the human-readable diagnostics the spec-test driver matches against.
package werr

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Error is a structured error carrying a family-specific Kind, a location breadcrumb trail,
// and an optional wrapped cause. All four error families in this engine embed or construct
// this type rather than rolling their own.
type Error struct {
	Family  string // "decode", "parse", "validate", "runtime"
	Kind    fmt.Stringer
	Message string
	Context []string // breadcrumbs, innermost first: e.g. ["function 2", "code section"]
	Cause   error
}

func New(family string, kind fmt.Stringer, message string) *Error {
	return &Error{Family: family, Kind: kind, Message: message}
}

func Newf(family string, kind fmt.Stringer, format string, args ...interface{}) *Error {
	return New(family, kind, fmt.Sprintf(format, args...))
}

// Wrap attaches cause, preserving the original error in the chain for errors.Is/As and stack
// traces captured by github.com/pkg/errors.
func (e *Error) Wrap(cause error) *Error {
	e.Cause = errors.WithStack(cause)
	return e
}

// In pushes a breadcrumb describing which part of the module the error occurred in. Callers
// build these innermost-first as the error propagates up through the section/function it came
// from, e.g. `.In("function[2]").In("code section")`.
func (e *Error) In(context string) *Error {
	e.Context = append(e.Context, context)
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	for _, c := range e.Context {
		b.WriteString(" in ")
		b.WriteString(c)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Family and Kind, so callers can write
// `errors.Is(err, werr.New("validate", KindTypeMismatch, ""))`-style sentinel comparisons.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Family == t.Family && fmt.Sprint(e.Kind) == fmt.Sprint(t.Kind)
}

// KindOf extracts the Kind from err if it is (or wraps) a *werr.Error in the given family.
func KindOf(err error, family string) (fmt.Stringer, bool) {
	var e *Error
	if !errors.As(err, &e) {
		return nil, false
	}
	if e.Family != family {
		return nil, false
	}
	return e.Kind, true
}
