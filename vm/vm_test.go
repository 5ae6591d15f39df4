package vm_test

import (
	"testing"

	"github.com/wippyai/wasm-debugger/errors"
	"github.com/wippyai/wasm-debugger/vm"
	"github.com/wippyai/wasm-debugger/wasm"
	"github.com/wippyai/wasm-debugger/wat"
)

func compileModule(t *testing.T, src string) *wasm.Module {
	t.Helper()
	bin, err := wat.Compile(src)
	if err != nil {
		t.Fatalf("wat.Compile: %v", err)
	}
	mod, err := wasm.ParseModule(bin)
	if err != nil {
		t.Fatalf("wasm.ParseModule: %v", err)
	}
	return mod
}

func startVM(t *testing.T, src, export string, args ...vm.Value) *vm.VM {
	t.Helper()
	mod := compileModule(t, src)
	machine, err := vm.New(mod)
	if err != nil {
		t.Fatalf("vm.New: %v", err)
	}
	idx, ok := mod.ExportedFunc(export)
	if !ok {
		t.Fatalf("export %q not found", export)
	}
	if err := machine.Start(idx, args); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return machine
}

// runToFinish steps until the outermost frame returns.
func runToFinish(t *testing.T, machine *vm.VM) {
	t.Helper()
	for i := 0; i < 100000; i++ {
		ev, err := machine.Step()
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
		if ev == vm.EventFinished {
			return
		}
	}
	t.Fatal("did not finish within step budget")
}

func wantI32(t *testing.T, got vm.Value, want int32) {
	t.Helper()
	n, ok := got.AsI32()
	if !ok {
		t.Fatalf("value is %s, want i32", got.Kind())
	}
	if n != want {
		t.Fatalf("value = %d, want %d", n, want)
	}
}

func TestArithmeticResult(t *testing.T) {
	machine := startVM(t, `(module
		(func (export "main") (result i32)
			i32.const 40
			i32.const 2
			i32.add))`, "main")
	runToFinish(t, machine)

	stack := machine.ValueStack()
	if len(stack) != 1 {
		t.Fatalf("stack depth = %d, want 1", len(stack))
	}
	wantI32(t, stack[0], 42)
	if !machine.Finished() {
		t.Error("Finished() = false after completion")
	}
}

func TestStepEvents(t *testing.T) {
	machine := startVM(t, `(module
		(func $inner (result i32)
			i32.const 7)
		(func (export "main") (result i32)
			call $inner))`, "main")

	var events []vm.StepEvent
	for {
		ev, err := machine.Step()
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
		events = append(events, ev)
		if ev == vm.EventFinished {
			break
		}
	}
	// call, const, inner end, main end
	want := []vm.StepEvent{vm.EventCallEntered, vm.EventAdvanced, vm.EventReturned, vm.EventFinished}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events[%d] = %v, want %v", i, events[i], want[i])
		}
	}
}

func TestLoopCountsToTen(t *testing.T) {
	machine := startVM(t, `(module
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
			local.get $i))`, "main")
	runToFinish(t, machine)
	stack := machine.ValueStack()
	if len(stack) != 1 {
		t.Fatalf("stack depth = %d, want 1", len(stack))
	}
	wantI32(t, stack[0], 10)
}

func TestIfElse(t *testing.T) {
	src := `(module
		(func (export "classify") (param $x i32) (result i32)
			local.get $x
			i32.const 0
			i32.lt_s
			if (result i32)
				i32.const -1
			else
				local.get $x
				i32.eqz
				if (result i32)
					i32.const 0
				else
					i32.const 1
				end
			end))`

	cases := []struct {
		arg, want int32
	}{
		{-5, -1},
		{0, 0},
		{9, 1},
	}
	for _, tc := range cases {
		machine := startVM(t, src, "classify", vm.I32(tc.arg))
		runToFinish(t, machine)
		wantI32(t, machine.ValueStack()[0], tc.want)
	}
}

func TestIfWithoutElseSkips(t *testing.T) {
	machine := startVM(t, `(module
		(func (export "main") (result i32)
			(local $r i32)
			i32.const 0
			if
				i32.const 99
				local.set $r
			end
			local.get $r))`, "main")
	runToFinish(t, machine)
	wantI32(t, machine.ValueStack()[0], 0)
}

func TestGlobalMutation(t *testing.T) {
	machine := startVM(t, `(module
		(global $g (mut i32) (i32.const 5))
		(func (export "main")
			global.get $g
			i32.const 3
			i32.mul
			global.set $g))`, "main")
	runToFinish(t, machine)
	globals := machine.Globals()
	if len(globals) != 1 {
		t.Fatalf("globals = %d, want 1", len(globals))
	}
	wantI32(t, globals[0], 15)
}

func TestMemoryRoundTrip(t *testing.T) {
	machine := startVM(t, `(module
		(memory 1)
		(func (export "main") (result i32)
			i32.const 16
			i32.const 258
			i32.store
			i32.const 16
			i32.load))`, "main")
	runToFinish(t, machine)
	wantI32(t, machine.ValueStack()[0], 258)

	raw, err := machine.Memory().Read(16, 4)
	if err != nil {
		t.Fatalf("Memory.Read: %v", err)
	}
	if raw[0] != 0x02 || raw[1] != 0x01 {
		t.Errorf("memory bytes = % x, want little-endian 258", raw)
	}
}

func TestMemoryGrow(t *testing.T) {
	machine := startVM(t, `(module
		(memory 1 2)
		(func (export "main") (result i32)
			i32.const 1
			memory.grow))`, "main")
	runToFinish(t, machine)
	wantI32(t, machine.ValueStack()[0], 1)
	if machine.Memory().Pages() != 2 {
		t.Errorf("pages = %d, want 2", machine.Memory().Pages())
	}
}

func TestCallIndirect(t *testing.T) {
	machine := startVM(t, `(module
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
			call_indirect (type $binop)))`, "main")
	runToFinish(t, machine)
	wantI32(t, machine.ValueStack()[0], 38)
}

func TestTrapUnreachable(t *testing.T) {
	machine := startVM(t, `(module
		(func (export "main")
			unreachable))`, "main")
	_, err := machine.Step()
	if !errors.IsTrap(err) {
		t.Fatalf("err = %v, want trap", err)
	}
	if machine.TrapError() == nil {
		t.Error("TrapError() = nil after trap")
	}
	if _, err := machine.Step(); err == nil {
		t.Error("Step after trap should fail")
	} else if errors.IsTrap(err) {
		t.Error("Step after trap should fail with invalid state, not a new trap")
	}
}

func TestTrapDivByZeroRestoresStack(t *testing.T) {
	machine := startVM(t, `(module
		(func (export "main") (result i32)
			i32.const 7
			i32.const 0
			i32.div_s))`, "main")

	// Two consts.
	for i := 0; i < 2; i++ {
		if _, err := machine.Step(); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}
	_, err := machine.Step()
	if !errors.IsTrap(err) {
		t.Fatalf("err = %v, want trap", err)
	}

	// The operands must still be inspectable exactly as they were.
	stack := machine.ValueStack()
	if len(stack) != 2 {
		t.Fatalf("stack depth = %d, want 2", len(stack))
	}
	wantI32(t, stack[0], 7)
	wantI32(t, stack[1], 0)

	// Position still points at the trapping instruction.
	pos, ok := machine.Position()
	if !ok {
		t.Fatal("no position after trap")
	}
	if pos.InstrIndex != 2 {
		t.Errorf("trap position = %d, want 2", pos.InstrIndex)
	}
}

func TestTrapSignedOverflow(t *testing.T) {
	machine := startVM(t, `(module
		(func (export "main") (result i32)
			i32.const -2147483648
			i32.const -1
			i32.div_s))`, "main")
	var err error
	for i := 0; i < 3; i++ {
		if _, err = machine.Step(); err != nil {
			break
		}
	}
	if !errors.IsTrap(err) {
		t.Fatalf("err = %v, want overflow trap", err)
	}
}

func TestTrapOutOfBoundsLoad(t *testing.T) {
	machine := startVM(t, `(module
		(memory 1)
		(func (export "main") (result i32)
			i32.const 65536
			i32.load))`, "main")
	var err error
	for i := 0; i < 2; i++ {
		if _, err = machine.Step(); err != nil {
			break
		}
	}
	if !errors.IsTrap(err) {
		t.Fatalf("err = %v, want bounds trap", err)
	}
}

func TestBacktraceDepth(t *testing.T) {
	machine := startVM(t, `(module
		(func $leaf (result i32)
			i32.const 1)
		(func $mid (result i32)
			call $leaf)
		(func (export "main") (result i32)
			call $mid))`, "main")

	// Step into mid, then into leaf.
	for i := 0; i < 2; i++ {
		if _, err := machine.Step(); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}
	if machine.Depth() != 3 {
		t.Fatalf("depth = %d, want 3", machine.Depth())
	}
	bt := machine.Backtrace()
	if len(bt) != 3 {
		t.Fatalf("backtrace = %v", bt)
	}
	if bt[0].FuncIndex != 0 {
		t.Errorf("innermost frame func = %d, want 0 (leaf)", bt[0].FuncIndex)
	}
	if bt[2].FuncIndex != 2 {
		t.Errorf("outermost frame func = %d, want 2 (main)", bt[2].FuncIndex)
	}
}

func TestImportCallBridge(t *testing.T) {
	machine := startVM(t, `(module
		(import "env" "mul2" (func $mul2 (param i32) (result i32)))
		(func (export "main") (result i32)
			i32.const 5
			call $mul2))`, "main")

	if _, err := machine.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	ev, err := machine.Step()
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if ev != vm.EventImportPending {
		t.Fatalf("event = %v, want EventImportPending", ev)
	}

	pending := machine.Pending()
	if pending == nil {
		t.Fatal("Pending() = nil")
	}
	if pending.Module != "env" || pending.Name != "mul2" {
		t.Errorf("pending import = %s.%s", pending.Module, pending.Name)
	}
	if len(pending.Args) != 1 {
		t.Fatalf("args = %v", pending.Args)
	}
	wantI32(t, pending.Args[0], 5)

	// The argument stays on the stack while the call is pending.
	if got := len(machine.ValueStack()); got != 1 {
		t.Errorf("stack depth while pending = %d, want 1", got)
	}

	// A void answer is rejected and leaves the call pending.
	if err := machine.ResumeImport(vm.ImportResult{}); err == nil {
		t.Fatal("ResumeImport without return value should fail")
	}
	if machine.Pending() == nil {
		t.Fatal("invalid result must leave the call pending")
	}

	ret := vm.I32(10)
	if err := machine.ResumeImport(vm.ImportResult{Return: &ret}); err != nil {
		t.Fatalf("ResumeImport: %v", err)
	}
	runToFinish(t, machine)
	wantI32(t, machine.ValueStack()[0], 10)
}

func TestImportReplacesGlobalsAndMemory(t *testing.T) {
	machine := startVM(t, `(module
		(import "env" "poke" (func $poke))
		(memory 1)
		(global $g (mut i32) (i32.const 1))
		(func (export "main") (result i32)
			call $poke
			global.get $g
			i32.const 0
			i32.load
			i32.add))`, "main")

	ev, err := machine.Step()
	if err != nil || ev != vm.EventImportPending {
		t.Fatalf("Step = (%v, %v), want import pending", ev, err)
	}
	pending := machine.Pending()

	globals := make([]vm.Value, len(pending.Globals))
	copy(globals, pending.Globals)
	globals[0] = vm.I32(100)
	mem := make([]byte, len(pending.Memory))
	copy(mem, pending.Memory)
	mem[0] = 23

	// A resized memory answer is rejected and leaves the call pending.
	if err := machine.ResumeImport(vm.ImportResult{Memory: mem[:8]}); err == nil {
		t.Fatal("ResumeImport with resized memory should fail")
	}
	if machine.Pending() == nil {
		t.Fatal("invalid memory result must leave the call pending")
	}
	if got := len(machine.ValueStack()); got != 0 {
		t.Fatalf("stack depth after rejected result = %d, want 0", got)
	}

	if err := machine.ResumeImport(vm.ImportResult{Globals: globals, Memory: mem}); err != nil {
		t.Fatalf("ResumeImport: %v", err)
	}
	runToFinish(t, machine)
	wantI32(t, machine.ValueStack()[0], 123)
}

func TestZeroFilledArguments(t *testing.T) {
	machine := startVM(t, `(module
		(func (export "main") (param i32 i64) (result i32)
			local.get 0))`, "main")
	runToFinish(t, machine)
	wantI32(t, machine.ValueStack()[0], 0)
}

func TestSignExtensionOps(t *testing.T) {
	machine := startVM(t, `(module
		(func (export "main") (result i32)
			i32.const 0x80
			i32.extend8_s))`, "main")
	runToFinish(t, machine)
	wantI32(t, machine.ValueStack()[0], -128)
}

func TestFloatConversions(t *testing.T) {
	machine := startVM(t, `(module
		(func (export "main") (result i32)
			f64.const 41.7
			i32.trunc_f64_s))`, "main")
	runToFinish(t, machine)
	wantI32(t, machine.ValueStack()[0], 41)
}

func TestTruncBoundaries(t *testing.T) {
	// The first representable float64 at or past each integer boundary
	// must trap rather than wrap on conversion.
	traps := []struct {
		name, src string
	}{
		{"i64_s_pow63", `(module
			(func (export "main") (result i64)
				f64.const 9223372036854775808
				i64.trunc_f64_s))`},
		{"i64_u_pow64", `(module
			(func (export "main") (result i64)
				f64.const 18446744073709551616
				i64.trunc_f64_u))`},
		{"i32_s_pow31", `(module
			(func (export "main") (result i32)
				f64.const 2147483648
				i32.trunc_f64_s))`},
		{"i32_s_below_min", `(module
			(func (export "main") (result i32)
				f64.const -2147483649
				i32.trunc_f64_s))`},
		{"i32_u_pow32", `(module
			(func (export "main") (result i32)
				f64.const 4294967296
				i32.trunc_f64_u))`},
	}
	for _, tc := range traps {
		t.Run(tc.name, func(t *testing.T) {
			machine := startVM(t, tc.src, "main")
			var err error
			for i := 0; i < 2; i++ {
				if _, err = machine.Step(); err != nil {
					break
				}
			}
			if !errors.IsTrap(err) {
				t.Fatalf("err = %v, want boundary trap", err)
			}
		})
	}

	// The largest float64 below 2^63 still converts.
	machine := startVM(t, `(module
		(func (export "main") (result i32)
			f64.const 9223372036854774784
			i64.trunc_f64_s
			i64.const 9223372036854774784
			i64.eq))`, "main")
	runToFinish(t, machine)
	wantI32(t, machine.ValueStack()[0], 1)

	// The signed minimum itself is in range.
	machine = startVM(t, `(module
		(func (export "main") (result i32)
			f64.const -9223372036854775808
			i64.trunc_f64_s
			i64.const -9223372036854775808
			i64.eq))`, "main")
	runToFinish(t, machine)
	wantI32(t, machine.ValueStack()[0], 1)
}

func TestTrapTruncNaN(t *testing.T) {
	machine := startVM(t, `(module
		(func (export "main") (result i32)
			f64.const nan
			i32.trunc_f64_s))`, "main")
	var err error
	for i := 0; i < 2; i++ {
		if _, err = machine.Step(); err != nil {
			break
		}
	}
	if !errors.IsTrap(err) {
		t.Fatalf("err = %v, want trap on NaN truncation", err)
	}
}
