package wasm

import "github.com/jblebrun/wazir/api"

// ExternType re-exports api.ExternType; Import.Kind and Export.Kind use it.
type ExternType = api.ExternType

const (
	ExternTypeFunc   = api.ExternTypeFunc
	ExternTypeTable  = api.ExternTypeTable
	ExternTypeMemory = api.ExternTypeMemory
	ExternTypeGlobal = api.ExternTypeGlobal
)
