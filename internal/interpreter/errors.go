package interpreter

import "github.com/jblebrun/wazir/internal/werr"

// Kind enumerates the trap taxonomy produced by the interpreter's dispatch loop. The
// spec-test driver's assert_trap command matches against these via their String().
type Kind string

func (k Kind) String() string { return string(k) }

const (
	KindUnreachable            Kind = "unreachable"
	KindIntegerDivideByZero    Kind = "integer divide by zero"
	KindIntegerOverflow        Kind = "integer overflow"
	KindInvalidConversion      Kind = "invalid conversion to integer"
	KindOutOfBoundsMemory      Kind = "out of bounds memory access"
	KindOutOfBoundsTable       Kind = "out of bounds table access"
	KindUninitializedElement   Kind = "uninitialized element"
	KindIndirectCallTypeMismatch Kind = "indirect call type mismatch"
	KindUndefinedElement       Kind = "undefined element"
	KindCallStackExhausted     Kind = "call stack exhausted"
	KindCallCancelled          Kind = "call cancelled"
	KindOutOfBoundsDataSegment Kind = "out of bounds memory access"
	KindOutOfBoundsElemSegment Kind = "out of bounds table access"
)

func newErr(kind Kind, format string, args ...interface{}) *werr.Error {
	return werr.Newf("runtime", kind, format, args...)
}
