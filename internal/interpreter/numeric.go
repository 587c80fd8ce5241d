package interpreter

import (
	"math"
	"math/bits"

	"github.com/jblebrun/wazir/internal/wasm"
)

func popI32(stack *[]uint64) uint32   { return uint32(pop(stack)) }
func popI64(stack *[]uint64) uint64   { return pop(stack) }
func popF32(stack *[]uint64) float32  { return math.Float32frombits(uint32(pop(stack))) }
func popF64(stack *[]uint64) float64  { return math.Float64frombits(pop(stack)) }

func pushI32(stack []uint64, v uint32) []uint64  { return append(stack, uint64(v)) }
func pushI64(stack []uint64, v uint64) []uint64  { return append(stack, v) }
func pushF32(stack []uint64, v float32) []uint64 { return append(stack, uint64(math.Float32bits(v))) }
func pushF64(stack []uint64, v float64) []uint64 { return append(stack, math.Float64bits(v)) }

func boolWord(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// execNumeric executes one no-immediate arithmetic/comparison/conversion opcode against the
// top of stack, popping its operands and pushing its result in place.
func execNumeric(op wasm.Opcode, stack []uint64) ([]uint64, error) {
	switch op {
	case wasm.OpI32Eqz:
		a := popI32(&stack)
		return pushI32(stack, uint32(boolWord(a == 0))), nil
	case wasm.OpI32Eq, wasm.OpI32Ne, wasm.OpI32LtS, wasm.OpI32LtU, wasm.OpI32GtS, wasm.OpI32GtU,
		wasm.OpI32LeS, wasm.OpI32LeU, wasm.OpI32GeS, wasm.OpI32GeU:
		b := popI32(&stack)
		a := popI32(&stack)
		return pushI32(stack, uint32(i32Compare(op, a, b))), nil
	case wasm.OpI64Eqz:
		a := popI64(&stack)
		return pushI32(stack, uint32(boolWord(a == 0))), nil
	case wasm.OpI64Eq, wasm.OpI64Ne, wasm.OpI64LtS, wasm.OpI64LtU, wasm.OpI64GtS, wasm.OpI64GtU,
		wasm.OpI64LeS, wasm.OpI64LeU, wasm.OpI64GeS, wasm.OpI64GeU:
		b := popI64(&stack)
		a := popI64(&stack)
		return pushI32(stack, uint32(i64Compare(op, a, b))), nil
	case wasm.OpF32Eq, wasm.OpF32Ne, wasm.OpF32Lt, wasm.OpF32Gt, wasm.OpF32Le, wasm.OpF32Ge:
		b := popF32(&stack)
		a := popF32(&stack)
		return pushI32(stack, uint32(fCompare(op, float64(a), float64(b)))), nil
	case wasm.OpF64Eq, wasm.OpF64Ne, wasm.OpF64Lt, wasm.OpF64Gt, wasm.OpF64Le, wasm.OpF64Ge:
		b := popF64(&stack)
		a := popF64(&stack)
		return pushI32(stack, uint32(fCompare(op, a, b))), nil

	case wasm.OpI32Clz:
		return pushI32(stack, uint32(bits.LeadingZeros32(popI32(&stack)))), nil
	case wasm.OpI32Ctz:
		return pushI32(stack, uint32(bits.TrailingZeros32(popI32(&stack)))), nil
	case wasm.OpI32Popcnt:
		return pushI32(stack, uint32(bits.OnesCount32(popI32(&stack)))), nil
	case wasm.OpI32Add, wasm.OpI32Sub, wasm.OpI32Mul, wasm.OpI32DivS, wasm.OpI32DivU,
		wasm.OpI32RemS, wasm.OpI32RemU, wasm.OpI32And, wasm.OpI32Or, wasm.OpI32Xor,
		wasm.OpI32Shl, wasm.OpI32ShrS, wasm.OpI32ShrU, wasm.OpI32Rotl, wasm.OpI32Rotr:
		b := popI32(&stack)
		a := popI32(&stack)
		v, err := i32Arith(op, a, b)
		if err != nil {
			return nil, err
		}
		return pushI32(stack, v), nil

	case wasm.OpI64Clz:
		return pushI64(stack, uint64(bits.LeadingZeros64(popI64(&stack)))), nil
	case wasm.OpI64Ctz:
		return pushI64(stack, uint64(bits.TrailingZeros64(popI64(&stack)))), nil
	case wasm.OpI64Popcnt:
		return pushI64(stack, uint64(bits.OnesCount64(popI64(&stack)))), nil
	case wasm.OpI64Add, wasm.OpI64Sub, wasm.OpI64Mul, wasm.OpI64DivS, wasm.OpI64DivU,
		wasm.OpI64RemS, wasm.OpI64RemU, wasm.OpI64And, wasm.OpI64Or, wasm.OpI64Xor,
		wasm.OpI64Shl, wasm.OpI64ShrS, wasm.OpI64ShrU, wasm.OpI64Rotl, wasm.OpI64Rotr:
		b := popI64(&stack)
		a := popI64(&stack)
		v, err := i64Arith(op, a, b)
		if err != nil {
			return nil, err
		}
		return pushI64(stack, v), nil

	case wasm.OpF32Abs:
		return pushF32(stack, float32(math.Abs(float64(popF32(&stack))))), nil
	case wasm.OpF32Neg:
		return pushF32(stack, -popF32(&stack)), nil
	case wasm.OpF32Ceil:
		return pushF32(stack, float32(math.Ceil(float64(popF32(&stack))))), nil
	case wasm.OpF32Floor:
		return pushF32(stack, float32(math.Floor(float64(popF32(&stack))))), nil
	case wasm.OpF32Trunc:
		return pushF32(stack, float32(math.Trunc(float64(popF32(&stack))))), nil
	case wasm.OpF32Nearest:
		return pushF32(stack, float32(math.RoundToEven(float64(popF32(&stack))))), nil
	case wasm.OpF32Sqrt:
		return pushF32(stack, float32(math.Sqrt(float64(popF32(&stack))))), nil
	case wasm.OpF32Add, wasm.OpF32Sub, wasm.OpF32Mul, wasm.OpF32Div, wasm.OpF32Min, wasm.OpF32Max, wasm.OpF32Copysign:
		b := popF32(&stack)
		a := popF32(&stack)
		return pushF32(stack, float32(fArith(op, float64(a), float64(b)))), nil

	case wasm.OpF64Abs:
		return pushF64(stack, math.Abs(popF64(&stack))), nil
	case wasm.OpF64Neg:
		return pushF64(stack, -popF64(&stack)), nil
	case wasm.OpF64Ceil:
		return pushF64(stack, math.Ceil(popF64(&stack))), nil
	case wasm.OpF64Floor:
		return pushF64(stack, math.Floor(popF64(&stack))), nil
	case wasm.OpF64Trunc:
		return pushF64(stack, math.Trunc(popF64(&stack))), nil
	case wasm.OpF64Nearest:
		return pushF64(stack, math.RoundToEven(popF64(&stack))), nil
	case wasm.OpF64Sqrt:
		return pushF64(stack, math.Sqrt(popF64(&stack))), nil
	case wasm.OpF64Add, wasm.OpF64Sub, wasm.OpF64Mul, wasm.OpF64Div, wasm.OpF64Min, wasm.OpF64Max, wasm.OpF64Copysign:
		b := popF64(&stack)
		a := popF64(&stack)
		return pushF64(stack, fArith(op, a, b)), nil

	case wasm.OpI32WrapI64:
		return pushI32(stack, uint32(popI64(&stack))), nil
	case wasm.OpI32TruncF32S:
		v, err := truncToI32(float64(popF32(&stack)), true)
		if err != nil {
			return nil, err
		}
		return pushI32(stack, v), nil
	case wasm.OpI32TruncF32U:
		v, err := truncToI32(float64(popF32(&stack)), false)
		if err != nil {
			return nil, err
		}
		return pushI32(stack, v), nil
	case wasm.OpI32TruncF64S:
		v, err := truncToI32(popF64(&stack), true)
		if err != nil {
			return nil, err
		}
		return pushI32(stack, v), nil
	case wasm.OpI32TruncF64U:
		v, err := truncToI32(popF64(&stack), false)
		if err != nil {
			return nil, err
		}
		return pushI32(stack, v), nil
	case wasm.OpI64ExtendI32S:
		return pushI64(stack, uint64(int64(int32(popI32(&stack))))), nil
	case wasm.OpI64ExtendI32U:
		return pushI64(stack, uint64(popI32(&stack))), nil
	case wasm.OpI64TruncF32S:
		v, err := truncToI64(float64(popF32(&stack)), true)
		if err != nil {
			return nil, err
		}
		return pushI64(stack, v), nil
	case wasm.OpI64TruncF32U:
		v, err := truncToI64(float64(popF32(&stack)), false)
		if err != nil {
			return nil, err
		}
		return pushI64(stack, v), nil
	case wasm.OpI64TruncF64S:
		v, err := truncToI64(popF64(&stack), true)
		if err != nil {
			return nil, err
		}
		return pushI64(stack, v), nil
	case wasm.OpI64TruncF64U:
		v, err := truncToI64(popF64(&stack), false)
		if err != nil {
			return nil, err
		}
		return pushI64(stack, v), nil

	case wasm.OpF32ConvertI32S:
		return pushF32(stack, float32(int32(popI32(&stack)))), nil
	case wasm.OpF32ConvertI32U:
		return pushF32(stack, float32(popI32(&stack))), nil
	case wasm.OpF32ConvertI64S:
		return pushF32(stack, float32(int64(popI64(&stack)))), nil
	case wasm.OpF32ConvertI64U:
		return pushF32(stack, float32(popI64(&stack))), nil
	case wasm.OpF32DemoteF64:
		return pushF32(stack, float32(popF64(&stack))), nil
	case wasm.OpF64ConvertI32S:
		return pushF64(stack, float64(int32(popI32(&stack)))), nil
	case wasm.OpF64ConvertI32U:
		return pushF64(stack, float64(popI32(&stack))), nil
	case wasm.OpF64ConvertI64S:
		return pushF64(stack, float64(int64(popI64(&stack)))), nil
	case wasm.OpF64ConvertI64U:
		return pushF64(stack, float64(popI64(&stack))), nil
	case wasm.OpF64PromoteF32:
		return pushF64(stack, float64(popF32(&stack))), nil

	case wasm.OpI32ReinterpretF32:
		return pushI32(stack, math.Float32bits(popF32(&stack))), nil
	case wasm.OpI64ReinterpretF64:
		return pushI64(stack, math.Float64bits(popF64(&stack))), nil
	case wasm.OpF32ReinterpretI32:
		return pushF32(stack, math.Float32frombits(popI32(&stack))), nil
	case wasm.OpF64ReinterpretI64:
		return pushF64(stack, math.Float64frombits(popI64(&stack))), nil

	case wasm.OpI32Extend8S:
		return pushI32(stack, uint32(int32(int8(popI32(&stack))))), nil
	case wasm.OpI32Extend16S:
		return pushI32(stack, uint32(int32(int16(popI32(&stack))))), nil
	case wasm.OpI64Extend8S:
		return pushI64(stack, uint64(int64(int8(popI64(&stack))))), nil
	case wasm.OpI64Extend16S:
		return pushI64(stack, uint64(int64(int16(popI64(&stack))))), nil
	case wasm.OpI64Extend32S:
		return pushI64(stack, uint64(int64(int32(popI64(&stack))))), nil

	case wasm.OpI32TruncSatF32S:
		return pushI32(stack, truncSatToI32(float64(popF32(&stack)), true)), nil
	case wasm.OpI32TruncSatF32U:
		return pushI32(stack, truncSatToI32(float64(popF32(&stack)), false)), nil
	case wasm.OpI32TruncSatF64S:
		return pushI32(stack, truncSatToI32(popF64(&stack), true)), nil
	case wasm.OpI32TruncSatF64U:
		return pushI32(stack, truncSatToI32(popF64(&stack), false)), nil
	case wasm.OpI64TruncSatF32S:
		return pushI64(stack, truncSatToI64(float64(popF32(&stack)), true)), nil
	case wasm.OpI64TruncSatF32U:
		return pushI64(stack, truncSatToI64(float64(popF32(&stack)), false)), nil
	case wasm.OpI64TruncSatF64S:
		return pushI64(stack, truncSatToI64(popF64(&stack), true)), nil
	case wasm.OpI64TruncSatF64U:
		return pushI64(stack, truncSatToI64(popF64(&stack), false)), nil
	}
	return nil, newErr(KindUnreachable, "unhandled numeric opcode %#x", uint16(op))
}

func i32Compare(op wasm.Opcode, a, b uint32) bool {
	switch op {
	case wasm.OpI32Eq:
		return a == b
	case wasm.OpI32Ne:
		return a != b
	case wasm.OpI32LtS:
		return int32(a) < int32(b)
	case wasm.OpI32LtU:
		return a < b
	case wasm.OpI32GtS:
		return int32(a) > int32(b)
	case wasm.OpI32GtU:
		return a > b
	case wasm.OpI32LeS:
		return int32(a) <= int32(b)
	case wasm.OpI32LeU:
		return a <= b
	case wasm.OpI32GeS:
		return int32(a) >= int32(b)
	case wasm.OpI32GeU:
		return a >= b
	}
	return false
}

func i64Compare(op wasm.Opcode, a, b uint64) bool {
	switch op {
	case wasm.OpI64Eq:
		return a == b
	case wasm.OpI64Ne:
		return a != b
	case wasm.OpI64LtS:
		return int64(a) < int64(b)
	case wasm.OpI64LtU:
		return a < b
	case wasm.OpI64GtS:
		return int64(a) > int64(b)
	case wasm.OpI64GtU:
		return a > b
	case wasm.OpI64LeS:
		return int64(a) <= int64(b)
	case wasm.OpI64LeU:
		return a <= b
	case wasm.OpI64GeS:
		return int64(a) >= int64(b)
	case wasm.OpI64GeU:
		return a >= b
	}
	return false
}

func fCompare(op wasm.Opcode, a, b float64) bool {
	switch op {
	case wasm.OpF32Eq, wasm.OpF64Eq:
		return a == b
	case wasm.OpF32Ne, wasm.OpF64Ne:
		return a != b
	case wasm.OpF32Lt, wasm.OpF64Lt:
		return a < b
	case wasm.OpF32Gt, wasm.OpF64Gt:
		return a > b
	case wasm.OpF32Le, wasm.OpF64Le:
		return a <= b
	case wasm.OpF32Ge, wasm.OpF64Ge:
		return a >= b
	}
	return false
}

func i32Arith(op wasm.Opcode, a, b uint32) (uint32, error) {
	switch op {
	case wasm.OpI32Add:
		return a + b, nil
	case wasm.OpI32Sub:
		return a - b, nil
	case wasm.OpI32Mul:
		return a * b, nil
	case wasm.OpI32DivS:
		if b == 0 {
			return 0, newErr(KindIntegerDivideByZero, "integer divide by zero")
		}
		if int32(a) == math.MinInt32 && int32(b) == -1 {
			return 0, newErr(KindIntegerOverflow, "integer overflow")
		}
		return uint32(int32(a) / int32(b)), nil
	case wasm.OpI32DivU:
		if b == 0 {
			return 0, newErr(KindIntegerDivideByZero, "integer divide by zero")
		}
		return a / b, nil
	case wasm.OpI32RemS:
		if b == 0 {
			return 0, newErr(KindIntegerDivideByZero, "integer divide by zero")
		}
		if int32(a) == math.MinInt32 && int32(b) == -1 {
			return 0, nil
		}
		return uint32(int32(a) % int32(b)), nil
	case wasm.OpI32RemU:
		if b == 0 {
			return 0, newErr(KindIntegerDivideByZero, "integer divide by zero")
		}
		return a % b, nil
	case wasm.OpI32And:
		return a & b, nil
	case wasm.OpI32Or:
		return a | b, nil
	case wasm.OpI32Xor:
		return a ^ b, nil
	case wasm.OpI32Shl:
		return a << (b % 32), nil
	case wasm.OpI32ShrS:
		return uint32(int32(a) >> (b % 32)), nil
	case wasm.OpI32ShrU:
		return a >> (b % 32), nil
	case wasm.OpI32Rotl:
		return bits.RotateLeft32(a, int(b%32)), nil
	case wasm.OpI32Rotr:
		return bits.RotateLeft32(a, -int(b%32)), nil
	}
	return 0, nil
}

func i64Arith(op wasm.Opcode, a, b uint64) (uint64, error) {
	switch op {
	case wasm.OpI64Add:
		return a + b, nil
	case wasm.OpI64Sub:
		return a - b, nil
	case wasm.OpI64Mul:
		return a * b, nil
	case wasm.OpI64DivS:
		if b == 0 {
			return 0, newErr(KindIntegerDivideByZero, "integer divide by zero")
		}
		if int64(a) == math.MinInt64 && int64(b) == -1 {
			return 0, newErr(KindIntegerOverflow, "integer overflow")
		}
		return uint64(int64(a) / int64(b)), nil
	case wasm.OpI64DivU:
		if b == 0 {
			return 0, newErr(KindIntegerDivideByZero, "integer divide by zero")
		}
		return a / b, nil
	case wasm.OpI64RemS:
		if b == 0 {
			return 0, newErr(KindIntegerDivideByZero, "integer divide by zero")
		}
		if int64(a) == math.MinInt64 && int64(b) == -1 {
			return 0, nil
		}
		return uint64(int64(a) % int64(b)), nil
	case wasm.OpI64RemU:
		if b == 0 {
			return 0, newErr(KindIntegerDivideByZero, "integer divide by zero")
		}
		return a % b, nil
	case wasm.OpI64And:
		return a & b, nil
	case wasm.OpI64Or:
		return a | b, nil
	case wasm.OpI64Xor:
		return a ^ b, nil
	case wasm.OpI64Shl:
		return a << (b % 64), nil
	case wasm.OpI64ShrS:
		return uint64(int64(a) >> (b % 64)), nil
	case wasm.OpI64ShrU:
		return a >> (b % 64), nil
	case wasm.OpI64Rotl:
		return bits.RotateLeft64(a, int(b%64)), nil
	case wasm.OpI64Rotr:
		return bits.RotateLeft64(a, -int(b%64)), nil
	}
	return 0, nil
}

func fArith(op wasm.Opcode, a, b float64) float64 {
	switch op {
	case wasm.OpF32Add, wasm.OpF64Add:
		return a + b
	case wasm.OpF32Sub, wasm.OpF64Sub:
		return a - b
	case wasm.OpF32Mul, wasm.OpF64Mul:
		return a * b
	case wasm.OpF32Div, wasm.OpF64Div:
		return a / b
	case wasm.OpF32Min, wasm.OpF64Min:
		return math.Min(a, b)
	case wasm.OpF32Max, wasm.OpF64Max:
		return math.Max(a, b)
	case wasm.OpF32Copysign, wasm.OpF64Copysign:
		return math.Copysign(a, b)
	}
	return 0
}

func truncToI32(v float64, signed bool) (uint32, error) {
	if math.IsNaN(v) {
		return 0, newErr(KindInvalidConversion, "invalid conversion to integer")
	}
	t := math.Trunc(v)
	if signed {
		if t < math.MinInt32 || t > math.MaxInt32 {
			return 0, newErr(KindIntegerOverflow, "integer overflow")
		}
		return uint32(int32(t)), nil
	}
	if t < 0 || t > math.MaxUint32 {
		return 0, newErr(KindIntegerOverflow, "integer overflow")
	}
	return uint32(t), nil
}

func truncToI64(v float64, signed bool) (uint64, error) {
	if math.IsNaN(v) {
		return 0, newErr(KindInvalidConversion, "invalid conversion to integer")
	}
	t := math.Trunc(v)
	if signed {
		if t < math.MinInt64 || t >= math.MaxInt64 {
			return 0, newErr(KindIntegerOverflow, "integer overflow")
		}
		return uint64(int64(t)), nil
	}
	if t < 0 || t >= math.MaxUint64 {
		return 0, newErr(KindIntegerOverflow, "integer overflow")
	}
	return uint64(t), nil
}

func truncSatToI32(v float64, signed bool) uint32 {
	if math.IsNaN(v) {
		return 0
	}
	t := math.Trunc(v)
	if signed {
		if t <= math.MinInt32 {
			return uint32(int32(math.MinInt32))
		}
		if t >= math.MaxInt32 {
			return uint32(int32(math.MaxInt32))
		}
		return uint32(int32(t))
	}
	if t <= 0 {
		return 0
	}
	if t >= math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(t)
}

func truncSatToI64(v float64, signed bool) uint64 {
	if math.IsNaN(v) {
		return 0
	}
	t := math.Trunc(v)
	if signed {
		if t <= math.MinInt64 {
			return uint64(int64(math.MinInt64))
		}
		if t >= math.MaxInt64 {
			return uint64(int64(math.MaxInt64))
		}
		return uint64(int64(t))
	}
	if t <= 0 {
		return 0
	}
	if t >= math.MaxUint64 {
		return math.MaxUint64
	}
	return uint64(t)
}
