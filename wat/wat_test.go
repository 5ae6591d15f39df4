package wat

import (
	"strings"
	"testing"

	"github.com/wippyai/wasm-debugger/wasm"
)

func TestCompileEmptyModule(t *testing.T) {
	bin, err := Compile("(module)")
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if len(bin) != 8 {
		t.Errorf("expected 8 bytes, got %d", len(bin))
	}
	if bin[0] != 0x00 || bin[1] != 0x61 || bin[2] != 0x73 || bin[3] != 0x6D {
		t.Error("invalid WASM magic")
	}
}

func TestCompileFunction(t *testing.T) {
	bin, err := Compile(`(module
		(func (export "add") (param i32 i32) (result i32)
			local.get 0
			local.get 1
			i32.add))`)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	mod, err := wasm.ParseModule(bin)
	if err != nil {
		t.Fatalf("ParseModule rejected output: %v", err)
	}
	if mod.NumFuncs() != 1 {
		t.Fatalf("expected 1 function, got %d", mod.NumFuncs())
	}
	idx, ok := mod.ExportedFunc("add")
	if !ok || idx != 0 {
		t.Errorf("export add = (%d, %v), want (0, true)", idx, ok)
	}
	typ := mod.FuncTypeAt(0)
	if len(typ.Params) != 2 || len(typ.Results) != 1 {
		t.Errorf("unexpected signature: %d params, %d results", len(typ.Params), len(typ.Results))
	}
}

func TestCompileNamedRefs(t *testing.T) {
	bin, err := Compile(`(module
		(func $double (param $x i32) (result i32)
			local.get $x
			local.get $x
			i32.add)
		(func (export "main") (result i32)
			i32.const 21
			call $double))`)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	mod, err := wasm.ParseModule(bin)
	if err != nil {
		t.Fatalf("ParseModule rejected output: %v", err)
	}
	body := mod.BodyOf(1)
	instrs, err := wasm.DecodeInstructions(body.Code)
	if err != nil {
		t.Fatalf("DecodeInstructions: %v", err)
	}
	// i32.const, call, end
	if len(instrs) != 3 {
		t.Fatalf("expected 3 instructions, got %d", len(instrs))
	}
	if instrs[1].Opcode != wasm.OpCall {
		t.Errorf("expected call, got %#x", instrs[1].Opcode)
	}
	if imm := instrs[1].Imm.(wasm.CallImm); imm.FuncIdx != 0 {
		t.Errorf("call target = %d, want 0", imm.FuncIdx)
	}
	if got := mod.FuncName(0); got != "double" {
		t.Errorf("FuncName(0) = %q, want %q (from name section)", got, "double")
	}
	if got := mod.LocalName(0, 0); got != "x" {
		t.Errorf("LocalName(0, 0) = %q, want %q", got, "x")
	}
}

func TestCompileControlFlow(t *testing.T) {
	bin, err := Compile(`(module
		(func (export "main") (result i32)
			(local $i i32)
			block $exit
				loop $top
					local.get $i
					i32.const 10
					i32.ge_s
					br_if $exit
					local.get $i
					i32.const 1
					i32.add
					local.set $i
					br $top
				end
			end
			local.get $i))`)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if _, err := wasm.ParseModule(bin); err != nil {
		t.Fatalf("ParseModule rejected output: %v", err)
	}
}

func TestCompileImportsGlobalsMemory(t *testing.T) {
	bin, err := Compile(`(module
		(import "env" "print" (func $print (param i32)))
		(import "env" "base" (global $base i32))
		(memory (export "mem") 1 2)
		(global $counter (mut i32) (i32.const 7))
		(data (i32.const 8) "hi\00")
		(func (export "main")
			global.get $counter
			call $print))`)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	mod, err := wasm.ParseModule(bin)
	if err != nil {
		t.Fatalf("ParseModule rejected output: %v", err)
	}
	if mod.NumImportedFuncs() != 1 {
		t.Errorf("imported funcs = %d, want 1", mod.NumImportedFuncs())
	}
	if len(mod.Memories) != 1 || mod.Memories[0].Limits.Min != 1 || !mod.Memories[0].Limits.HasMax {
		t.Errorf("unexpected memory limits: %+v", mod.Memories)
	}
	if len(mod.Globals) != 1 || !mod.Globals[0].Type.Mutable {
		t.Errorf("unexpected globals: %+v", mod.Globals)
	}
	if len(mod.Data) != 1 || string(mod.Data[0].Data) != "hi\x00" {
		t.Errorf("unexpected data segment: %+v", mod.Data)
	}
}

func TestCompileTableAndIndirect(t *testing.T) {
	bin, err := Compile(`(module
		(type $binop (func (param i32 i32) (result i32)))
		(table 2 funcref)
		(elem (i32.const 0) $add $sub)
		(func $add (type $binop)
			local.get 0
			local.get 1
			i32.add)
		(func $sub (type $binop)
			local.get 0
			local.get 1
			i32.sub)
		(func (export "main") (result i32)
			i32.const 40
			i32.const 2
			i32.const 1
			call_indirect (type $binop)))`)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	mod, err := wasm.ParseModule(bin)
	if err != nil {
		t.Fatalf("ParseModule rejected output: %v", err)
	}
	if len(mod.Tables) != 1 || len(mod.Elements) != 1 {
		t.Fatalf("table/elem missing: %d tables, %d elems", len(mod.Tables), len(mod.Elements))
	}
	if len(mod.Elements[0].Funcs) != 2 {
		t.Errorf("elem funcs = %v", mod.Elements[0].Funcs)
	}
}

func TestCompileStartSection(t *testing.T) {
	bin, err := Compile(`(module
		(func $init)
		(start $init))`)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	mod, err := wasm.ParseModule(bin)
	if err != nil {
		t.Fatalf("ParseModule rejected output: %v", err)
	}
	if mod.Start == nil || *mod.Start != 0 {
		t.Errorf("start = %v, want 0", mod.Start)
	}
}

func TestCompileMemoryOps(t *testing.T) {
	bin, err := Compile(`(module
		(memory 1)
		(func (export "main") (result i32)
			i32.const 0
			i32.const 258
			i32.store offset=4
			i32.const 0
			i32.load offset=4 align=4))`)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	mod, err := wasm.ParseModule(bin)
	if err != nil {
		t.Fatalf("ParseModule rejected output: %v", err)
	}
	instrs, err := wasm.DecodeInstructions(mod.BodyOf(0).Code)
	if err != nil {
		t.Fatalf("DecodeInstructions: %v", err)
	}
	var stores, loads int
	for _, in := range instrs {
		switch in.Opcode {
		case wasm.OpI32Store:
			stores++
			if imm := in.Imm.(wasm.MemoryImm); imm.Offset != 4 {
				t.Errorf("store offset = %d, want 4", imm.Offset)
			}
		case wasm.OpI32Load:
			loads++
			imm := in.Imm.(wasm.MemoryImm)
			if imm.Offset != 4 || imm.Align != 2 {
				t.Errorf("load memarg = %+v, want offset 4 align 2", imm)
			}
		}
	}
	if stores != 1 || loads != 1 {
		t.Errorf("stores=%d loads=%d, want 1 each", stores, loads)
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name, src, wantErr string
	}{
		{"missing_module", "(func)", "module"},
		{"unclosed", "(module", "unterminated"},
		{"unknown_field", "(module (bogus))", "unknown module field"},
		{"unknown_instr", "(module (func nonsense))", "unknown instruction"},
		{"unknown_type", "(module (func (param bogus)))", "unknown value type"},
		{"unknown_label", "(module (func block br $x end))", "unknown label"},
		{"unknown_func", "(module (func call $missing))", "unknown function"},
		{"unknown_local", "(module (func local.get $missing))", "unknown local"},
		{"bad_string", `(module (data (i32.const 0) "unterminated`, "unterminated string"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.src)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q missing %q", err, tt.wantErr)
			}
		})
	}
}
