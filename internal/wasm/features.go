package wasm

// Features toggles which post-1.0 proposals are accepted by the validator. The binary decoder
// takes a Features value without consulting it, and the text parser takes none. wazero's
// RuntimeConfig exposes the same knobs; here they gate type rules rather than codegen.
type Features uint32

const (
	FeatureMutableGlobal Features = 1 << iota
	FeatureSignExtensionOps
	FeatureMultiValue
	FeatureBulkMemoryOperations
	FeatureReferenceTypes
	FeatureNonTrappingFloatToIntConversion
)

// FeaturesWasmCore1 are the features finished as of WebAssembly 1.0 (20191205): only mutable
// globals were final; everything else below was still a proposal.
const FeaturesWasmCore1 = FeatureMutableGlobal

// FeaturesWasmCore2 enables every feature folded into the WebAssembly 2.0 core specification.
const FeaturesWasmCore2 = FeatureMutableGlobal | FeatureSignExtensionOps | FeatureMultiValue |
	FeatureBulkMemoryOperations | FeatureReferenceTypes | FeatureNonTrappingFloatToIntConversion

func (f Features) Has(x Features) bool { return f&x != 0 }
