package compiler

import "github.com/jblebrun/wazir/internal/werr"

// Kind enumerates the validator's error taxonomy. As with the decoder, the exact spelling
// matters because the spec-test driver matches assert_invalid/assert_malformed messages
// against it.
type Kind string

func (k Kind) String() string { return string(k) }

const (
	KindTypeMismatch              Kind = "type mismatch"
	KindUnknownLabel              Kind = "unknown label"
	KindUnknownLocal              Kind = "unknown local"
	KindUnknownGlobal             Kind = "unknown global"
	KindUnknownFunction           Kind = "unknown function"
	KindUnknownTable              Kind = "unknown table"
	KindUnknownMemory             Kind = "unknown memory"
	KindUnknownType               Kind = "unknown type"
	KindUnknownData               Kind = "unknown data segment"
	KindUnknownElem               Kind = "unknown elem segment"
	KindGlobalImmutable            Kind = "global is immutable"
	KindInvalidConstantExpression Kind = "constant expression required"
	KindUnusedValues              Kind = "type mismatch"
	KindAlignment                 Kind = "alignment must not be larger than natural"
	KindDuplicateExportName       Kind = "duplicate export name"
	KindUnsupportedFeature        Kind = "unsupported feature"
	KindMultipleMemories          Kind = "multiple memories"
	KindStartFunction             Kind = "start function"
)

func newErr(kind Kind, format string, args ...interface{}) *werr.Error {
	return werr.Newf("validate", kind, format, args...)
}
