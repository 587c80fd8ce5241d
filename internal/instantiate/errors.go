package instantiate

import "github.com/jblebrun/wazir/internal/werr"

// Kind enumerates errors raised while linking a compiled module against a Store: missing or
// mismatched imports, and segment bounds violations discovered during initialization.
type Kind string

func (k Kind) String() string { return string(k) }

const (
	KindUnknownImport    Kind = "unknown import"
	KindImportMismatch   Kind = "incompatible import type"
	KindElemOutOfBounds  Kind = "out of bounds table access"
	KindDataOutOfBounds  Kind = "out of bounds memory access"
)

func newErr(kind Kind, format string, args ...interface{}) *werr.Error {
	return werr.Newf("runtime", kind, format, args...)
}
