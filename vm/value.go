package vm

import (
	"fmt"
	"math"

	"github.com/wippyai/wasm-debugger/wasm"
)

// Value is a tagged union over exactly one WebAssembly numeric type.
// The zero Value is an i32 zero. Construct values with I32, I64, F32
// and F64; the kind tag and raw bits representation make it impossible
// to hold zero or multiple active variants.
type Value struct {
	kind wasm.ValType
	bits uint64
}

// I32 constructs an i32 value.
func I32(v int32) Value {
	return Value{kind: wasm.ValI32, bits: uint64(uint32(v))}
}

// I64 constructs an i64 value.
func I64(v int64) Value {
	return Value{kind: wasm.ValI64, bits: uint64(v)}
}

// F32 constructs an f32 value.
func F32(v float32) Value {
	return Value{kind: wasm.ValF32, bits: uint64(math.Float32bits(v))}
}

// F64 constructs an f64 value.
func F64(v float64) Value {
	return Value{kind: wasm.ValF64, bits: math.Float64bits(v)}
}

// F32FromBits constructs an f32 value from its IEEE 754 bits.
func F32FromBits(bits uint32) Value {
	return Value{kind: wasm.ValF32, bits: uint64(bits)}
}

// F64FromBits constructs an f64 value from its IEEE 754 bits.
func F64FromBits(bits uint64) Value {
	return Value{kind: wasm.ValF64, bits: bits}
}

// Zero returns the zero value of the given type.
func Zero(t wasm.ValType) Value {
	switch t {
	case wasm.ValI64:
		return I64(0)
	case wasm.ValF32:
		return F32(0)
	case wasm.ValF64:
		return F64(0)
	default:
		return I32(0)
	}
}

// Kind returns the active variant's value type.
func (v Value) Kind() wasm.ValType {
	if v.kind == 0 {
		return wasm.ValI32
	}
	return v.kind
}

// AsI32 returns the i32 payload, or false if another variant is active.
func (v Value) AsI32() (int32, bool) {
	if v.Kind() != wasm.ValI32 {
		return 0, false
	}
	return int32(uint32(v.bits)), true
}

// AsI64 returns the i64 payload, or false if another variant is active.
func (v Value) AsI64() (int64, bool) {
	if v.Kind() != wasm.ValI64 {
		return 0, false
	}
	return int64(v.bits), true
}

// AsF32 returns the f32 payload, or false if another variant is active.
func (v Value) AsF32() (float32, bool) {
	if v.Kind() != wasm.ValF32 {
		return 0, false
	}
	return math.Float32frombits(uint32(v.bits)), true
}

// AsF64 returns the f64 payload, or false if another variant is active.
func (v Value) AsF64() (float64, bool) {
	if v.Kind() != wasm.ValF64 {
		return 0, false
	}
	return math.Float64frombits(v.bits), true
}

// i32 returns the payload without a variant check. Interpreter-internal:
// operand types are fixed by the instruction being executed.
func (v Value) i32() int32 { return int32(uint32(v.bits)) }

func (v Value) i64() int64 { return int64(v.bits) }

func (v Value) f32() float32 { return math.Float32frombits(uint32(v.bits)) }

func (v Value) f64() float64 { return math.Float64frombits(v.bits) }

// Bits returns the raw payload bits.
func (v Value) Bits() uint64 {
	return v.bits
}

// Equal reports structural equality: same variant, same payload bits.
func (v Value) Equal(o Value) bool {
	return v.Kind() == o.Kind() && v.bits == o.bits
}

// String renders the value with its type, hex and decimal forms.
func (v Value) String() string {
	switch v.Kind() {
	case wasm.ValI32:
		n := v.i32()
		if n < 0 {
			return fmt.Sprintf("i32 : 0x%08x = %d = %d", uint32(n), uint32(n), n)
		}
		return fmt.Sprintf("i32 : 0x%08x = %d", uint32(n), n)
	case wasm.ValI64:
		n := v.i64()
		if n < 0 {
			return fmt.Sprintf("i64 : 0x%016x = %d = %d", uint64(n), uint64(n), n)
		}
		return fmt.Sprintf("i64 : 0x%016x = %d", uint64(n), n)
	case wasm.ValF32:
		return fmt.Sprintf("f32 : 0x%08x ~ %.8f", uint32(v.bits), v.f32())
	default:
		return fmt.Sprintf("f64 : 0x%016x ~ %.16f", v.bits, v.f64())
	}
}
