package vm

import (
	"encoding/binary"
	"math"
	"math/bits"

	"github.com/wippyai/wasm-debugger/errors"
	"github.com/wippyai/wasm-debugger/wasm"
)

// execNumeric executes constant, comparison, arithmetic, conversion and
// memory instructions. Traps are raised before any state is written so a
// failed instruction leaves no partial effects.
func (v *VM) execNumeric(instr wasm.Instruction) error {
	op := instr.Opcode

	switch {
	case op >= wasm.OpI32Load && op <= wasm.OpI64Store32:
		return v.execMemoryAccess(instr)
	case op == wasm.OpMemorySize:
		if v.memory == nil {
			return errors.Trap("memory.size with no memory")
		}
		v.push(I32(int32(v.memory.Pages())))
		return nil
	case op == wasm.OpMemoryGrow:
		if v.memory == nil {
			return errors.Trap("memory.grow with no memory")
		}
		n := v.pop().i32()
		v.push(I32(v.memory.grow(uint32(n))))
		return nil
	}

	switch op {
	case wasm.OpI32Const:
		v.push(I32(instr.Imm.(wasm.I32Imm).Value))
	case wasm.OpI64Const:
		v.push(I64(instr.Imm.(wasm.I64Imm).Value))
	case wasm.OpF32Const:
		v.push(F32(instr.Imm.(wasm.F32Imm).Value))
	case wasm.OpF64Const:
		v.push(F64(instr.Imm.(wasm.F64Imm).Value))

	case wasm.OpI32Eqz:
		v.push(boolVal(v.pop().i32() == 0))
	case wasm.OpI32Eq, wasm.OpI32Ne, wasm.OpI32LtS, wasm.OpI32LtU, wasm.OpI32GtS,
		wasm.OpI32GtU, wasm.OpI32LeS, wasm.OpI32LeU, wasm.OpI32GeS, wasm.OpI32GeU:
		b := v.pop().i32()
		a := v.pop().i32()
		v.push(boolVal(i32Compare(op, a, b)))

	case wasm.OpI64Eqz:
		v.push(boolVal(v.pop().i64() == 0))
	case wasm.OpI64Eq, wasm.OpI64Ne, wasm.OpI64LtS, wasm.OpI64LtU, wasm.OpI64GtS,
		wasm.OpI64GtU, wasm.OpI64LeS, wasm.OpI64LeU, wasm.OpI64GeS, wasm.OpI64GeU:
		b := v.pop().i64()
		a := v.pop().i64()
		v.push(boolVal(i64Compare(op, a, b)))

	case wasm.OpF32Eq, wasm.OpF32Ne, wasm.OpF32Lt, wasm.OpF32Gt, wasm.OpF32Le, wasm.OpF32Ge:
		b := v.pop().f32()
		a := v.pop().f32()
		v.push(boolVal(f64Compare(op-wasm.OpF32Eq, float64(a), float64(b))))
	case wasm.OpF64Eq, wasm.OpF64Ne, wasm.OpF64Lt, wasm.OpF64Gt, wasm.OpF64Le, wasm.OpF64Ge:
		b := v.pop().f64()
		a := v.pop().f64()
		v.push(boolVal(f64Compare(op-wasm.OpF64Eq, a, b)))

	case wasm.OpI32Clz:
		v.push(I32(int32(bits.LeadingZeros32(uint32(v.pop().i32())))))
	case wasm.OpI32Ctz:
		v.push(I32(int32(bits.TrailingZeros32(uint32(v.pop().i32())))))
	case wasm.OpI32Popcnt:
		v.push(I32(int32(bits.OnesCount32(uint32(v.pop().i32())))))

	case wasm.OpI32Add, wasm.OpI32Sub, wasm.OpI32Mul, wasm.OpI32And, wasm.OpI32Or,
		wasm.OpI32Xor, wasm.OpI32Shl, wasm.OpI32ShrS, wasm.OpI32ShrU, wasm.OpI32Rotl, wasm.OpI32Rotr:
		b := v.pop().i32()
		a := v.pop().i32()
		v.push(I32(i32Binop(op, a, b)))

	case wasm.OpI32DivS:
		b := v.pop().i32()
		a := v.pop().i32()
		if b == 0 {
			return errors.Trap("integer division by zero")
		}
		if a == math.MinInt32 && b == -1 {
			return errors.Trap("signed integer overflow in i32.div_s")
		}
		v.push(I32(a / b))
	case wasm.OpI32DivU:
		b := uint32(v.pop().i32())
		a := uint32(v.pop().i32())
		if b == 0 {
			return errors.Trap("integer division by zero")
		}
		v.push(I32(int32(a / b)))
	case wasm.OpI32RemS:
		b := v.pop().i32()
		a := v.pop().i32()
		if b == 0 {
			return errors.Trap("integer division by zero")
		}
		if a == math.MinInt32 && b == -1 {
			v.push(I32(0))
		} else {
			v.push(I32(a % b))
		}
	case wasm.OpI32RemU:
		b := uint32(v.pop().i32())
		a := uint32(v.pop().i32())
		if b == 0 {
			return errors.Trap("integer division by zero")
		}
		v.push(I32(int32(a % b)))

	case wasm.OpI64Clz:
		v.push(I64(int64(bits.LeadingZeros64(uint64(v.pop().i64())))))
	case wasm.OpI64Ctz:
		v.push(I64(int64(bits.TrailingZeros64(uint64(v.pop().i64())))))
	case wasm.OpI64Popcnt:
		v.push(I64(int64(bits.OnesCount64(uint64(v.pop().i64())))))

	case wasm.OpI64Add, wasm.OpI64Sub, wasm.OpI64Mul, wasm.OpI64And, wasm.OpI64Or,
		wasm.OpI64Xor, wasm.OpI64Shl, wasm.OpI64ShrS, wasm.OpI64ShrU, wasm.OpI64Rotl, wasm.OpI64Rotr:
		b := v.pop().i64()
		a := v.pop().i64()
		v.push(I64(i64Binop(op, a, b)))

	case wasm.OpI64DivS:
		b := v.pop().i64()
		a := v.pop().i64()
		if b == 0 {
			return errors.Trap("integer division by zero")
		}
		if a == math.MinInt64 && b == -1 {
			return errors.Trap("signed integer overflow in i64.div_s")
		}
		v.push(I64(a / b))
	case wasm.OpI64DivU:
		b := uint64(v.pop().i64())
		a := uint64(v.pop().i64())
		if b == 0 {
			return errors.Trap("integer division by zero")
		}
		v.push(I64(int64(a / b)))
	case wasm.OpI64RemS:
		b := v.pop().i64()
		a := v.pop().i64()
		if b == 0 {
			return errors.Trap("integer division by zero")
		}
		if a == math.MinInt64 && b == -1 {
			v.push(I64(0))
		} else {
			v.push(I64(a % b))
		}
	case wasm.OpI64RemU:
		b := uint64(v.pop().i64())
		a := uint64(v.pop().i64())
		if b == 0 {
			return errors.Trap("integer division by zero")
		}
		v.push(I64(int64(a % b)))

	case wasm.OpF32Abs, wasm.OpF32Neg, wasm.OpF32Ceil, wasm.OpF32Floor,
		wasm.OpF32Trunc, wasm.OpF32Nearest, wasm.OpF32Sqrt:
		v.push(F32(float32(f64Unop(op-wasm.OpF32Abs, float64(v.pop().f32())))))
	case wasm.OpF32Add, wasm.OpF32Sub, wasm.OpF32Mul, wasm.OpF32Div,
		wasm.OpF32Min, wasm.OpF32Max, wasm.OpF32Copysign:
		b := v.pop().f32()
		a := v.pop().f32()
		v.push(F32(float32(f64Binop(op-wasm.OpF32Add, float64(a), float64(b)))))

	case wasm.OpF64Abs, wasm.OpF64Neg, wasm.OpF64Ceil, wasm.OpF64Floor,
		wasm.OpF64Trunc, wasm.OpF64Nearest, wasm.OpF64Sqrt:
		v.push(F64(f64Unop(op-wasm.OpF64Abs, v.pop().f64())))
	case wasm.OpF64Add, wasm.OpF64Sub, wasm.OpF64Mul, wasm.OpF64Div,
		wasm.OpF64Min, wasm.OpF64Max, wasm.OpF64Copysign:
		b := v.pop().f64()
		a := v.pop().f64()
		v.push(F64(f64Binop(op-wasm.OpF64Add, a, b)))

	case wasm.OpI32WrapI64:
		v.push(I32(int32(v.pop().i64())))
	case wasm.OpI64ExtendI32S:
		v.push(I64(int64(v.pop().i32())))
	case wasm.OpI64ExtendI32U:
		v.push(I64(int64(uint32(v.pop().i32()))))

	case wasm.OpI32TruncF32S, wasm.OpI32TruncF64S:
		f := v.popFloat(op == wasm.OpI32TruncF32S)
		n, ok := truncSigned(f, -0x1p31, 0x1p31)
		if !ok {
			return errors.Trap("invalid conversion to i32")
		}
		v.push(I32(int32(n)))
	case wasm.OpI32TruncF32U, wasm.OpI32TruncF64U:
		f := v.popFloat(op == wasm.OpI32TruncF32U)
		n, ok := truncUnsigned(f, 0x1p32)
		if !ok {
			return errors.Trap("invalid conversion to i32")
		}
		v.push(I32(int32(uint32(n))))
	case wasm.OpI64TruncF32S, wasm.OpI64TruncF64S:
		f := v.popFloat(op == wasm.OpI64TruncF32S)
		n, ok := truncSigned(f, -0x1p63, 0x1p63)
		if !ok {
			return errors.Trap("invalid conversion to i64")
		}
		v.push(I64(n))
	case wasm.OpI64TruncF32U, wasm.OpI64TruncF64U:
		f := v.popFloat(op == wasm.OpI64TruncF32U)
		n, ok := truncUnsigned(f, 0x1p64)
		if !ok {
			return errors.Trap("invalid conversion to i64")
		}
		v.push(I64(int64(n)))

	case wasm.OpF32ConvertI32S:
		v.push(F32(float32(v.pop().i32())))
	case wasm.OpF32ConvertI32U:
		v.push(F32(float32(uint32(v.pop().i32()))))
	case wasm.OpF32ConvertI64S:
		v.push(F32(float32(v.pop().i64())))
	case wasm.OpF32ConvertI64U:
		v.push(F32(float32(uint64(v.pop().i64()))))
	case wasm.OpF32DemoteF64:
		v.push(F32(float32(v.pop().f64())))
	case wasm.OpF64ConvertI32S:
		v.push(F64(float64(v.pop().i32())))
	case wasm.OpF64ConvertI32U:
		v.push(F64(float64(uint32(v.pop().i32()))))
	case wasm.OpF64ConvertI64S:
		v.push(F64(float64(v.pop().i64())))
	case wasm.OpF64ConvertI64U:
		v.push(F64(float64(uint64(v.pop().i64()))))
	case wasm.OpF64PromoteF32:
		v.push(F64(float64(v.pop().f32())))

	case wasm.OpI32ReinterpretF32:
		v.push(I32(int32(math.Float32bits(v.pop().f32()))))
	case wasm.OpI64ReinterpretF64:
		v.push(I64(int64(math.Float64bits(v.pop().f64()))))
	case wasm.OpF32ReinterpretI32:
		v.push(F32(math.Float32frombits(uint32(v.pop().i32()))))
	case wasm.OpF64ReinterpretI64:
		v.push(F64(math.Float64frombits(uint64(v.pop().i64()))))

	case wasm.OpI32Extend8S:
		v.push(I32(int32(int8(v.pop().i32()))))
	case wasm.OpI32Extend16S:
		v.push(I32(int32(int16(v.pop().i32()))))
	case wasm.OpI64Extend8S:
		v.push(I64(int64(int8(v.pop().i64()))))
	case wasm.OpI64Extend16S:
		v.push(I64(int64(int16(v.pop().i64()))))
	case wasm.OpI64Extend32S:
		v.push(I64(int64(int32(v.pop().i64()))))

	default:
		return errors.Trap("unsupported opcode 0x%02x", op)
	}
	return nil
}

func (v *VM) popFloat(isF32 bool) float64 {
	if isF32 {
		return float64(v.pop().f32())
	}
	return v.pop().f64()
}

func boolVal(b bool) Value {
	if b {
		return I32(1)
	}
	return I32(0)
}

func i32Compare(op byte, a, b int32) bool {
	switch op {
	case wasm.OpI32Eq:
		return a == b
	case wasm.OpI32Ne:
		return a != b
	case wasm.OpI32LtS:
		return a < b
	case wasm.OpI32LtU:
		return uint32(a) < uint32(b)
	case wasm.OpI32GtS:
		return a > b
	case wasm.OpI32GtU:
		return uint32(a) > uint32(b)
	case wasm.OpI32LeS:
		return a <= b
	case wasm.OpI32LeU:
		return uint32(a) <= uint32(b)
	case wasm.OpI32GeS:
		return a >= b
	default:
		return uint32(a) >= uint32(b)
	}
}

func i64Compare(op byte, a, b int64) bool {
	switch op {
	case wasm.OpI64Eq:
		return a == b
	case wasm.OpI64Ne:
		return a != b
	case wasm.OpI64LtS:
		return a < b
	case wasm.OpI64LtU:
		return uint64(a) < uint64(b)
	case wasm.OpI64GtS:
		return a > b
	case wasm.OpI64GtU:
		return uint64(a) > uint64(b)
	case wasm.OpI64LeS:
		return a <= b
	case wasm.OpI64LeU:
		return uint64(a) <= uint64(b)
	default:
		return uint64(a) >= uint64(b)
	}
}

// f64Compare takes the opcode offset from the Eq opcode of the family:
// 0=eq 1=ne 2=lt 3=gt 4=le 5=ge.
func f64Compare(rel byte, a, b float64) bool {
	switch rel {
	case 0:
		return a == b
	case 1:
		return a != b
	case 2:
		return a < b
	case 3:
		return a > b
	case 4:
		return a <= b
	default:
		return a >= b
	}
}

func i32Binop(op byte, a, b int32) int32 {
	switch op {
	case wasm.OpI32Add:
		return a + b
	case wasm.OpI32Sub:
		return a - b
	case wasm.OpI32Mul:
		return a * b
	case wasm.OpI32And:
		return a & b
	case wasm.OpI32Or:
		return a | b
	case wasm.OpI32Xor:
		return a ^ b
	case wasm.OpI32Shl:
		return a << (uint32(b) % 32)
	case wasm.OpI32ShrS:
		return a >> (uint32(b) % 32)
	case wasm.OpI32ShrU:
		return int32(uint32(a) >> (uint32(b) % 32))
	case wasm.OpI32Rotl:
		return int32(bits.RotateLeft32(uint32(a), int(uint32(b)%32)))
	default:
		return int32(bits.RotateLeft32(uint32(a), -int(uint32(b)%32)))
	}
}

func i64Binop(op byte, a, b int64) int64 {
	switch op {
	case wasm.OpI64Add:
		return a + b
	case wasm.OpI64Sub:
		return a - b
	case wasm.OpI64Mul:
		return a * b
	case wasm.OpI64And:
		return a & b
	case wasm.OpI64Or:
		return a | b
	case wasm.OpI64Xor:
		return a ^ b
	case wasm.OpI64Shl:
		return a << (uint64(b) % 64)
	case wasm.OpI64ShrS:
		return a >> (uint64(b) % 64)
	case wasm.OpI64ShrU:
		return int64(uint64(a) >> (uint64(b) % 64))
	case wasm.OpI64Rotl:
		return int64(bits.RotateLeft64(uint64(a), int(uint64(b)%64)))
	default:
		return int64(bits.RotateLeft64(uint64(a), -int(uint64(b)%64)))
	}
}

// f64Unop takes the opcode offset from the Abs opcode of the family:
// 0=abs 1=neg 2=ceil 3=floor 4=trunc 5=nearest 6=sqrt.
func f64Unop(rel byte, f float64) float64 {
	switch rel {
	case 0:
		return math.Abs(f)
	case 1:
		return -f
	case 2:
		return math.Ceil(f)
	case 3:
		return math.Floor(f)
	case 4:
		return math.Trunc(f)
	case 5:
		return math.RoundToEven(f)
	default:
		return math.Sqrt(f)
	}
}

// f64Binop takes the opcode offset from the Add opcode of the family:
// 0=add 1=sub 2=mul 3=div 4=min 5=max 6=copysign.
func f64Binop(rel byte, a, b float64) float64 {
	switch rel {
	case 0:
		return a + b
	case 1:
		return a - b
	case 2:
		return a * b
	case 3:
		return a / b
	case 4:
		if math.IsNaN(a) || math.IsNaN(b) {
			return math.NaN()
		}
		return math.Min(a, b)
	case 5:
		if math.IsNaN(a) || math.IsNaN(b) {
			return math.NaN()
		}
		return math.Max(a, b)
	default:
		return math.Copysign(a, b)
	}
}

// truncSigned converts a float to an integer, rejecting NaN and values
// outside [lo, hi). The bounds must be exact float64 powers of two:
// converting the integer max instead rounds up at the i64 boundary, so
// 2^63 would pass the check and wrap on conversion.
func truncSigned(f, lo, hi float64) (int64, bool) {
	if math.IsNaN(f) {
		return 0, false
	}
	t := math.Trunc(f)
	if t < lo || t >= hi {
		return 0, false
	}
	return int64(t), true
}

// truncUnsigned converts a float to an unsigned integer, rejecting NaN
// and values outside [0, hi).
func truncUnsigned(f, hi float64) (uint64, bool) {
	if math.IsNaN(f) {
		return 0, false
	}
	t := math.Trunc(f)
	if t < 0 || t >= hi {
		return 0, false
	}
	return uint64(t), true
}

// execMemoryAccess handles all load and store opcodes. Bounds are
// checked before any write.
func (v *VM) execMemoryAccess(instr wasm.Instruction) error {
	if v.memory == nil {
		return errors.Trap("memory access with no memory")
	}
	imm := instr.Imm.(wasm.MemoryImm)
	op := instr.Opcode

	if op >= wasm.OpI32Store && op <= wasm.OpI64Store32 {
		val := v.pop()
		base := uint32(v.pop().i32())
		addr := uint64(base) + uint64(imm.Offset)

		var buf [8]byte
		var n uint32
		switch op {
		case wasm.OpI32Store:
			binary.LittleEndian.PutUint32(buf[:], uint32(val.i32()))
			n = 4
		case wasm.OpI64Store:
			binary.LittleEndian.PutUint64(buf[:], uint64(val.i64()))
			n = 8
		case wasm.OpF32Store:
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(val.f32()))
			n = 4
		case wasm.OpF64Store:
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(val.f64()))
			n = 8
		case wasm.OpI32Store8:
			buf[0] = byte(val.i32())
			n = 1
		case wasm.OpI32Store16:
			binary.LittleEndian.PutUint16(buf[:], uint16(val.i32()))
			n = 2
		case wasm.OpI64Store8:
			buf[0] = byte(val.i64())
			n = 1
		case wasm.OpI64Store16:
			binary.LittleEndian.PutUint16(buf[:], uint16(val.i64()))
			n = 2
		default: // OpI64Store32
			binary.LittleEndian.PutUint32(buf[:], uint32(val.i64()))
			n = 4
		}
		if !v.memory.store(addr, buf[:n]) {
			return errors.Trap("out-of-bounds memory write at address %d (size %d)", addr, v.memory.Size())
		}
		return nil
	}

	base := uint32(v.pop().i32())
	addr := uint64(base) + uint64(imm.Offset)

	fail := func() error {
		return errors.Trap("out-of-bounds memory read at address %d (size %d)", addr, v.memory.Size())
	}

	switch op {
	case wasm.OpI32Load:
		n, ok := v.memory.load32(addr)
		if !ok {
			return fail()
		}
		v.push(I32(int32(n)))
	case wasm.OpI64Load:
		n, ok := v.memory.load64(addr)
		if !ok {
			return fail()
		}
		v.push(I64(int64(n)))
	case wasm.OpF32Load:
		n, ok := v.memory.load32(addr)
		if !ok {
			return fail()
		}
		v.push(F32(math.Float32frombits(n)))
	case wasm.OpF64Load:
		n, ok := v.memory.load64(addr)
		if !ok {
			return fail()
		}
		v.push(F64(math.Float64frombits(n)))
	case wasm.OpI32Load8S:
		b, ok := v.memory.loadBytes(addr, 1)
		if !ok {
			return fail()
		}
		v.push(I32(int32(int8(b[0]))))
	case wasm.OpI32Load8U:
		b, ok := v.memory.loadBytes(addr, 1)
		if !ok {
			return fail()
		}
		v.push(I32(int32(b[0])))
	case wasm.OpI32Load16S:
		b, ok := v.memory.loadBytes(addr, 2)
		if !ok {
			return fail()
		}
		v.push(I32(int32(int16(binary.LittleEndian.Uint16(b)))))
	case wasm.OpI32Load16U:
		b, ok := v.memory.loadBytes(addr, 2)
		if !ok {
			return fail()
		}
		v.push(I32(int32(binary.LittleEndian.Uint16(b))))
	case wasm.OpI64Load8S:
		b, ok := v.memory.loadBytes(addr, 1)
		if !ok {
			return fail()
		}
		v.push(I64(int64(int8(b[0]))))
	case wasm.OpI64Load8U:
		b, ok := v.memory.loadBytes(addr, 1)
		if !ok {
			return fail()
		}
		v.push(I64(int64(b[0])))
	case wasm.OpI64Load16S:
		b, ok := v.memory.loadBytes(addr, 2)
		if !ok {
			return fail()
		}
		v.push(I64(int64(int16(binary.LittleEndian.Uint16(b)))))
	case wasm.OpI64Load16U:
		b, ok := v.memory.loadBytes(addr, 2)
		if !ok {
			return fail()
		}
		v.push(I64(int64(binary.LittleEndian.Uint16(b))))
	case wasm.OpI64Load32S:
		n, ok := v.memory.load32(addr)
		if !ok {
			return fail()
		}
		v.push(I64(int64(int32(n))))
	default: // OpI64Load32U
		n, ok := v.memory.load32(addr)
		if !ok {
			return fail()
		}
		v.push(I64(int64(n)))
	}
	return nil
}
