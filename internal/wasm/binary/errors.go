package binary

import "github.com/jblebrun/wazir/internal/werr"

// Kind enumerates the binary decoder's error taxonomy. The spec-test driver's
// assert_malformed/assert_invalid commands match against these (via their String()), so the
// exact set and spelling matter more than they would for an ordinary error enum.
type Kind string

func (k Kind) String() string { return string(k) }

const (
	KindInvalidMagic            Kind = "invalid magic"
	KindInvalidVersion          Kind = "invalid version"
	KindLEB128Overflow          Kind = "integer representation too long"
	KindLEB128Unterminated      Kind = "unexpected end"
	KindLEB128IO                Kind = "unexpected end of input"
	KindInvalidOpcode           Kind = "invalid opcode"
	KindInvalidSecondaryOpcode  Kind = "invalid secondary opcode"
	KindInvalidBool             Kind = "malformed boolean"
	KindInvalidValueType        Kind = "invalid value type"
	KindInvalidRefType          Kind = "invalid reference type"
	KindInvalidExportType       Kind = "invalid export type"
	KindMalformedImportKind     Kind = "malformed import kind"
	KindInvalidElemKind         Kind = "invalid elemkind"
	KindDataCountMismatch       Kind = "data count and data section have inconsistent lengths"
	KindFuncSizeMismatch        Kind = "function and code section have inconsistent lengths"
	KindExtraSectionBytes       Kind = "section size mismatch"
	KindTooManyLocals           Kind = "too many locals"
	KindUtf8                    Kind = "malformed UTF-8 encoding"
	KindIO                      Kind = "unexpected end of input"
	KindInvalidSectionID        Kind = "malformed section id"
	KindJunkAfterLastSection    Kind = "junk after last section"
	KindIntegerTooLarge         Kind = "integer too large"
	KindZeroByteExpected        Kind = "zero byte expected"
)

func newErr(kind Kind, format string, args ...interface{}) *werr.Error {
	return werr.Newf("decode", kind, format, args...)
}
