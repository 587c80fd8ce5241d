package binary

import (
	"math"
	"unicode/utf8"

	"github.com/jblebrun/wazir/internal/wasm"
)

func decodeValueType(r *countingReader) (wasm.ValueType, error) {
	b, err := r.readByte()
	if err != nil {
		return 0, err
	}
	switch b {
	case wasm.ValueTypeI32, wasm.ValueTypeI64, wasm.ValueTypeF32, wasm.ValueTypeF64,
		wasm.ValueTypeFuncref, wasm.ValueTypeExternref:
		return b, nil
	}
	return 0, newErr(KindInvalidValueType, "invalid value type: %#x", b)
}

func decodeRefType(r *countingReader) (wasm.RefType, error) {
	b, err := r.readByte()
	if err != nil {
		return 0, err
	}
	switch b {
	case wasm.ValueTypeFuncref, wasm.ValueTypeExternref:
		return b, nil
	}
	return 0, newErr(KindInvalidRefType, "invalid reference type: %#x", b)
}

func decodeBool(r *countingReader) (bool, error) {
	b, err := r.readByte()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, newErr(KindInvalidBool, "invalid boolean: %#x", b)
}

func decodeLimits(r *countingReader) (wasm.Limits, error) {
	hasMax, err := decodeBool(r)
	if err != nil {
		return wasm.Limits{}, err
	}
	min, err := r.readU32()
	if err != nil {
		return wasm.Limits{}, err
	}
	l := wasm.Limits{Min: min}
	if hasMax {
		max, err := r.readU32()
		if err != nil {
			return wasm.Limits{}, err
		}
		l.Max = &max
	}
	return l, nil
}

func decodeTableType(r *countingReader) (wasm.TableType, error) {
	rt, err := decodeRefType(r)
	if err != nil {
		return wasm.TableType{}, err
	}
	l, err := decodeLimits(r)
	if err != nil {
		return wasm.TableType{}, err
	}
	return wasm.TableType{Limits: l, RefType: rt}, nil
}

func decodeMemoryType(r *countingReader) (wasm.MemoryType, error) {
	l, err := decodeLimits(r)
	if err != nil {
		return wasm.MemoryType{}, err
	}
	return wasm.MemoryType{Limits: l}, nil
}

func decodeGlobalType(r *countingReader) (wasm.GlobalType, error) {
	vt, err := decodeValueType(r)
	if err != nil {
		return wasm.GlobalType{}, err
	}
	mut, err := decodeBool(r)
	if err != nil {
		return wasm.GlobalType{}, err
	}
	return wasm.GlobalType{ValType: vt, Mutable: mut}, nil
}

func decodeFunctionType(r *countingReader) (*wasm.FunctionType, error) {
	form, err := r.readByte()
	if err != nil {
		return nil, err
	}
	if form != 0x60 {
		return nil, newErr(KindInvalidOpcode, "invalid functype form: %#x", form)
	}
	params, err := decodeValueTypeVec(r)
	if err != nil {
		return nil, err
	}
	results, err := decodeValueTypeVec(r)
	if err != nil {
		return nil, err
	}
	return &wasm.FunctionType{Params: params, Results: results}, nil
}

func decodeValueTypeVec(r *countingReader) ([]wasm.ValueType, error) {
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	out := make([]wasm.ValueType, n)
	for i := range out {
		vt, err := decodeValueType(r)
		if err != nil {
			return nil, err
		}
		out[i] = vt
	}
	return out, nil
}

func decodeName(r *countingReader) (string, error) {
	n, err := r.readU32()
	if err != nil {
		return "", err
	}
	b, err := r.readBytes(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", newErr(KindUtf8, "invalid UTF-8 in name")
	}
	return string(b), nil
}

func decodeF32(r *countingReader) (float32, error) {
	b, err := r.readBytes(4)
	if err != nil {
		return 0, err
	}
	bits := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return math.Float32frombits(bits), nil
}

func decodeF64(r *countingReader) (float64, error) {
	b, err := r.readBytes(8)
	if err != nil {
		return 0, err
	}
	var bits uint64
	for i := 7; i >= 0; i-- {
		bits = bits<<8 | uint64(b[i])
	}
	return math.Float64frombits(bits), nil
}
