package debugger_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/wippyai/wasm-debugger/debugger"
	"github.com/wippyai/wasm-debugger/errors"
	"github.com/wippyai/wasm-debugger/vm"
	"github.com/wippyai/wasm-debugger/wat"
)

// countdown pauses nicely at every instruction: a loop decrementing a
// local from 3 to 0.
const countdownSrc = `(module
	(func (export "main") (result i32)
		(local $i i32)
		i32.const 3
		local.set $i
		block $exit
			loop $top
				local.get $i
				i32.eqz
				br_if $exit
				local.get $i
				i32.const 1
				i32.sub
				local.set $i
				br $top
			end
		end
		local.get $i))`

// callChain exercises stepping across call boundaries:
//
//	main: 0 i32.const, 1 drop, 2 call $inner, 3 drop, 4 i32.const, 5 drop, 6 end
const callChainSrc = `(module
	(func $inner (result i32)
		i32.const 7)
	(func (export "main")
		i32.const 1
		drop
		call $inner
		drop
		i32.const 2
		drop))`

func newSession(t *testing.T, src string) *debugger.Session {
	t.Helper()
	bin, err := wat.Compile(src)
	if err != nil {
		t.Fatalf("wat.Compile: %v", err)
	}
	sess := debugger.New(nil)
	if err := sess.LoadBinary(bin); err != nil {
		t.Fatalf("LoadBinary: %v", err)
	}
	return sess
}

func mustPosition(t *testing.T, sess *debugger.Session) vm.CodePosition {
	t.Helper()
	pos, err := sess.Position()
	if err != nil {
		t.Fatalf("Position: %v", err)
	}
	return pos
}

func TestLoadModuleWatFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prog.wat")
	if err := os.WriteFile(path, []byte(countdownSrc), 0o644); err != nil {
		t.Fatal(err)
	}
	sess := debugger.New(nil)
	if err := sess.LoadModule(path); err != nil {
		t.Fatalf("LoadModule: %v", err)
	}
	if sess.State() != debugger.StateReady {
		t.Errorf("state = %s, want ready", sess.State())
	}
}

func TestLoadFailureKeepsPriorModule(t *testing.T) {
	sess := newSession(t, countdownSrc)
	err := sess.LoadBinary([]byte("not a wasm module"))
	if err == nil {
		t.Fatal("expected load failure")
	}
	if !errors.IsKind(err, errors.KindLoadFailure) {
		t.Errorf("err = %v, want load_failure", err)
	}
	if sess.State() != debugger.StateReady || sess.Module() == nil {
		t.Error("failed load must not discard the previously loaded module")
	}
}

func TestInspectionRequiresRunningModule(t *testing.T) {
	sess := debugger.New(nil)
	if _, err := sess.Backtrace(); !errors.IsKind(err, errors.KindInvalidState) {
		t.Errorf("Backtrace on idle session: err = %v, want invalid_state", err)
	}

	sess = newSession(t, countdownSrc)
	if _, err := sess.ValueStack(); !errors.IsKind(err, errors.KindInvalidState) {
		t.Errorf("ValueStack before start: err = %v, want invalid_state", err)
	}
	if _, _, err := sess.Locals(0); !errors.IsKind(err, errors.KindInvalidState) {
		t.Errorf("Locals before start: err = %v, want invalid_state", err)
	}
}

func TestStartRunsToCompletion(t *testing.T) {
	sess := newSession(t, countdownSrc)
	if err := sess.RunCode(debugger.ModeStart); err != nil {
		t.Fatalf("RunCode(start): %v", err)
	}
	if sess.State() != debugger.StateFinished {
		t.Fatalf("state = %s, want finished", sess.State())
	}
	stack, err := sess.ValueStack()
	if err != nil {
		t.Fatalf("ValueStack: %v", err)
	}
	if len(stack) != 1 {
		t.Fatalf("stack = %v", stack)
	}
	if n, _ := stack[0].AsI32(); n != 0 {
		t.Errorf("result = %d, want 0", n)
	}
}

func TestStartRequiresReady(t *testing.T) {
	sess := newSession(t, countdownSrc)
	if err := sess.RunCode(debugger.ModeStart); err != nil {
		t.Fatal(err)
	}
	err := sess.RunCode(debugger.ModeStart)
	if !errors.IsKind(err, errors.KindInvalidState) {
		t.Errorf("second start: err = %v, want invalid_state", err)
	}
}

func TestSingleStepAdvancesOneInstruction(t *testing.T) {
	sess := newSession(t, countdownSrc)
	if err := sess.RunCode(debugger.ModeStep); err != nil {
		t.Fatalf("RunCode(step): %v", err)
	}
	pos := mustPosition(t, sess)
	if pos.InstrIndex != 1 {
		t.Fatalf("position after first step = %d, want 1", pos.InstrIndex)
	}
	if err := sess.RunCode(debugger.ModeStep); err != nil {
		t.Fatal(err)
	}
	if got := mustPosition(t, sess).InstrIndex; got != 2 {
		t.Errorf("position after second step = %d, want 2", got)
	}
	if sess.LastPause() != debugger.PauseStep {
		t.Errorf("pause reason = %v, want step", sess.LastPause())
	}
}

func TestContinueStopsAtBreakpoints(t *testing.T) {
	sess := newSession(t, countdownSrc)
	// Instruction 2 is the block opener; 14 is the local.get after the
	// loop exits (the branch out of the block lands past its end).
	sess.AddBreakpoint(vm.CodePosition{FuncIndex: 0, InstrIndex: 2})
	sess.AddBreakpoint(vm.CodePosition{FuncIndex: 0, InstrIndex: 14})

	if err := sess.RunCode(debugger.ModeStart); err != nil {
		t.Fatalf("start: %v", err)
	}
	if sess.State() != debugger.StatePaused {
		t.Fatalf("state = %s, want paused", sess.State())
	}
	if got := mustPosition(t, sess).InstrIndex; got != 2 {
		t.Fatalf("paused at %d, want 2", got)
	}
	if sess.LastPause() != debugger.PauseBreakpoint {
		t.Errorf("pause reason = %v, want breakpoint", sess.LastPause())
	}

	if err := sess.RunCode(debugger.ModeContinue); err != nil {
		t.Fatalf("continue: %v", err)
	}
	if got := mustPosition(t, sess).InstrIndex; got != 14 {
		t.Fatalf("paused at %d, want 14", got)
	}

	if err := sess.RunCode(debugger.ModeContinue); err != nil {
		t.Fatalf("final continue: %v", err)
	}
	if sess.State() != debugger.StateFinished {
		t.Errorf("state = %s, want finished", sess.State())
	}
}

func TestBreakpointAtEntryHitsBeforeExecution(t *testing.T) {
	sess := newSession(t, countdownSrc)
	sess.AddBreakpoint(vm.CodePosition{FuncIndex: 0, InstrIndex: 0})
	if err := sess.RunCode(debugger.ModeStart); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := mustPosition(t, sess).InstrIndex; got != 0 {
		t.Fatalf("paused at %d, want 0", got)
	}
	stack, err := sess.ValueStack()
	if err != nil {
		t.Fatal(err)
	}
	if len(stack) != 0 {
		t.Errorf("stack = %v, want empty before any instruction", stack)
	}
}

func TestContinueFromPauseAlwaysAdvances(t *testing.T) {
	sess := newSession(t, countdownSrc)
	sess.AddBreakpoint(vm.CodePosition{FuncIndex: 0, InstrIndex: 0})
	if err := sess.RunCode(debugger.ModeStart); err != nil {
		t.Fatal(err)
	}
	// Paused on the breakpoint. Continue must leave it, not re-trigger.
	if err := sess.RunCode(debugger.ModeContinue); err != nil {
		t.Fatalf("continue: %v", err)
	}
	if sess.State() != debugger.StateFinished {
		t.Errorf("state = %s, want finished (no other breakpoints)", sess.State())
	}
}

func TestDeletedBreakpointNotHit(t *testing.T) {
	sess := newSession(t, countdownSrc)
	idx := sess.AddBreakpoint(vm.CodePosition{FuncIndex: 0, InstrIndex: 2})
	if err := sess.DeleteBreakpoint(idx); err != nil {
		t.Fatal(err)
	}
	if err := sess.RunCode(debugger.ModeStart); err != nil {
		t.Fatal(err)
	}
	if sess.State() != debugger.StateFinished {
		t.Errorf("state = %s, want finished", sess.State())
	}
}

func TestStepOverSkipsCall(t *testing.T) {
	sess := newSession(t, callChainSrc)
	// Step to the call instruction at index 2.
	for i := 0; i < 2; i++ {
		if err := sess.RunCode(debugger.ModeStep); err != nil {
			t.Fatal(err)
		}
	}
	pos := mustPosition(t, sess)
	if pos.InstrIndex != 2 {
		t.Fatalf("setup: at instr %d, want 2", pos.InstrIndex)
	}

	if err := sess.RunCode(debugger.ModeStepOver); err != nil {
		t.Fatalf("step over: %v", err)
	}
	pos = mustPosition(t, sess)
	if pos.FuncIndex != 1 || pos.InstrIndex != 3 {
		t.Fatalf("after step over: %+v, want func 1 instr 3", pos)
	}
	bt, err := sess.Backtrace()
	if err != nil {
		t.Fatal(err)
	}
	if len(bt) != 1 {
		t.Errorf("depth after step over = %d, want 1", len(bt))
	}
}

func TestStepOverStopsAtBreakpointInCallee(t *testing.T) {
	sess := newSession(t, callChainSrc)
	sess.AddBreakpoint(vm.CodePosition{FuncIndex: 0, InstrIndex: 0})
	for i := 0; i < 2; i++ {
		if err := sess.RunCode(debugger.ModeStep); err != nil {
			t.Fatal(err)
		}
	}
	if err := sess.RunCode(debugger.ModeStepOver); err != nil {
		t.Fatalf("step over: %v", err)
	}
	pos := mustPosition(t, sess)
	if pos.FuncIndex != 0 || pos.InstrIndex != 0 {
		t.Fatalf("paused at %+v, want inside callee at breakpoint", pos)
	}
	if sess.LastPause() != debugger.PauseBreakpoint {
		t.Errorf("pause reason = %v, want breakpoint", sess.LastPause())
	}
}

func TestStepOutReturnsToCaller(t *testing.T) {
	sess := newSession(t, callChainSrc)
	for i := 0; i < 2; i++ {
		if err := sess.RunCode(debugger.ModeStep); err != nil {
			t.Fatal(err)
		}
	}
	// Step into the callee.
	if err := sess.RunCode(debugger.ModeStep); err != nil {
		t.Fatal(err)
	}
	pos := mustPosition(t, sess)
	if pos.FuncIndex != 0 {
		t.Fatalf("setup: at func %d, want 0 (inner)", pos.FuncIndex)
	}

	if err := sess.RunCode(debugger.ModeStepOut); err != nil {
		t.Fatalf("step out: %v", err)
	}
	pos = mustPosition(t, sess)
	if pos.FuncIndex != 1 || pos.InstrIndex != 3 {
		t.Fatalf("after step out: %+v, want func 1 instr 3", pos)
	}
}

func TestStepOutRequiresDepthTwo(t *testing.T) {
	sess := newSession(t, countdownSrc)
	if err := sess.RunCode(debugger.ModeStep); err != nil {
		t.Fatal(err)
	}
	err := sess.RunCode(debugger.ModeStepOut)
	if !errors.IsKind(err, errors.KindInvalidState) {
		t.Errorf("step out at depth 1: err = %v, want invalid_state", err)
	}
}

func TestStepModesRequirePaused(t *testing.T) {
	sess := newSession(t, countdownSrc)
	if err := sess.RunCode(debugger.ModeStepOver); !errors.IsKind(err, errors.KindInvalidState) {
		t.Errorf("step over from ready: err = %v, want invalid_state", err)
	}
	if err := sess.RunCode(debugger.ModeStepOut); !errors.IsKind(err, errors.KindInvalidState) {
		t.Errorf("step out from ready: err = %v, want invalid_state", err)
	}
}

func TestTrapMovesSessionToErrored(t *testing.T) {
	sess := newSession(t, `(module
		(func (export "main")
			unreachable))`)
	err := sess.RunCode(debugger.ModeStart)
	if !errors.IsTrap(err) {
		t.Fatalf("err = %v, want trap", err)
	}
	if sess.State() != debugger.StateErrored {
		t.Fatalf("state = %s, want errored", sess.State())
	}
	// Trapped state stays inspectable but cannot be resumed.
	if _, err := sess.Backtrace(); err != nil {
		t.Errorf("Backtrace after trap: %v", err)
	}
	if err := sess.RunCode(debugger.ModeContinue); !errors.IsKind(err, errors.KindInvalidState) {
		t.Errorf("continue after trap: err = %v, want invalid_state", err)
	}
}

func TestImportRoundTrip(t *testing.T) {
	sess := newSession(t, `(module
		(import "env" "answer" (func $answer (result i32)))
		(func (export "main") (result i32)
			call $answer))`)

	var seen *debugger.ImportCall
	sess.SetImportHandler(debugger.ImportHandlerFunc(
		func(call *debugger.ImportCall) (vm.ImportResult, error) {
			seen = call
			ret := vm.I32(42)
			return vm.ImportResult{Return: &ret}, nil
		}))

	if err := sess.RunCode(debugger.ModeStart); err != nil {
		t.Fatalf("start: %v", err)
	}
	if sess.State() != debugger.StateFinished {
		t.Fatalf("state = %s, want finished", sess.State())
	}
	if seen == nil {
		t.Fatal("import handler never invoked")
	}
	if seen.Module != "env" || seen.Name != "answer" {
		t.Errorf("handler saw %s.%s", seen.Module, seen.Name)
	}
	stack, err := sess.ValueStack()
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := stack[0].AsI32(); n != 42 {
		t.Errorf("result = %d, want 42", n)
	}
}

func TestImportHandlerCanInspectSession(t *testing.T) {
	sess := newSession(t, `(module
		(import "env" "probe" (func $probe (param i32)))
		(func (export "main")
			i32.const 9
			call $probe))`)

	var depth int
	var inspectErr error
	sess.SetImportHandler(debugger.ImportHandlerFunc(
		func(call *debugger.ImportCall) (vm.ImportResult, error) {
			var bt []vm.CodePosition
			bt, inspectErr = sess.Backtrace()
			depth = len(bt)
			return vm.ImportResult{}, nil
		}))

	if err := sess.RunCode(debugger.ModeStart); err != nil {
		t.Fatalf("start: %v", err)
	}
	if inspectErr != nil {
		t.Fatalf("Backtrace during import call: %v", inspectErr)
	}
	if depth != 1 {
		t.Errorf("depth during import call = %d, want 1", depth)
	}
}

func TestImportWithoutHandlerTraps(t *testing.T) {
	sess := newSession(t, `(module
		(import "env" "missing" (func $missing))
		(func (export "main")
			call $missing))`)
	err := sess.RunCode(debugger.ModeStart)
	if !errors.IsTrap(err) {
		t.Fatalf("err = %v, want trap", err)
	}
	if sess.State() != debugger.StateErrored {
		t.Errorf("state = %s, want errored", sess.State())
	}
}

func TestLocalsNamesAndValues(t *testing.T) {
	sess := newSession(t, countdownSrc)
	// Run two steps: const 3, set $i.
	for i := 0; i < 2; i++ {
		if err := sess.RunCode(debugger.ModeStep); err != nil {
			t.Fatal(err)
		}
	}
	funcIdx, locals, err := sess.Locals(0)
	if err != nil {
		t.Fatalf("Locals: %v", err)
	}
	if funcIdx != 0 {
		t.Errorf("funcIdx = %d, want 0", funcIdx)
	}
	if len(locals) != 1 {
		t.Fatalf("locals = %v", locals)
	}
	if n, _ := locals[0].Value.AsI32(); n != 3 {
		t.Errorf("local value = %d, want 3", n)
	}
}

func TestResetReturnsToReady(t *testing.T) {
	sess := newSession(t, countdownSrc)
	bpIdx := sess.AddBreakpoint(vm.CodePosition{FuncIndex: 0, InstrIndex: 2})
	if err := sess.RunCode(debugger.ModeStart); err != nil {
		t.Fatal(err)
	}
	if err := sess.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if sess.State() != debugger.StateReady {
		t.Fatalf("state = %s, want ready", sess.State())
	}
	// Breakpoints survive a reset and hit again on the next run.
	if len(sess.ListBreakpoints()) != 1 {
		t.Errorf("breakpoints lost on reset")
	}
	if err := sess.RunCode(debugger.ModeStart); err != nil {
		t.Fatal(err)
	}
	if got := mustPosition(t, sess).InstrIndex; got != 2 {
		t.Errorf("paused at %d, want 2", got)
	}
	_ = bpIdx
}

func TestReloadInstallsFreshBreakpointTable(t *testing.T) {
	sess := newSession(t, countdownSrc)
	sess.AddBreakpoint(vm.CodePosition{FuncIndex: 0, InstrIndex: 2})

	bin, err := wat.Compile(countdownSrc)
	if err != nil {
		t.Fatal(err)
	}
	if err := sess.LoadBinary(bin); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := len(sess.ListBreakpoints()); got != 0 {
		t.Fatalf("breakpoints after reload = %d, want 0", got)
	}

	// Additions after the reload must land in the live table and hit.
	sess.AddBreakpoint(vm.CodePosition{FuncIndex: 0, InstrIndex: 2})
	if err := sess.RunCode(debugger.ModeStart); err != nil {
		t.Fatalf("start: %v", err)
	}
	if sess.State() != debugger.StatePaused {
		t.Fatalf("state = %s, want paused", sess.State())
	}
	if got := mustPosition(t, sess).InstrIndex; got != 2 {
		t.Errorf("paused at %d, want 2", got)
	}
}

func TestStartFunction(t *testing.T) {
	sess := newSession(t, callChainSrc)
	if err := sess.StartFunction(0, nil); err != nil {
		t.Fatalf("StartFunction: %v", err)
	}
	if sess.State() != debugger.StatePaused {
		t.Fatalf("state = %s, want paused", sess.State())
	}
	if got := mustPosition(t, sess); got.FuncIndex != 0 || got.InstrIndex != 0 {
		t.Errorf("position = %+v, want func 0 instr 0", got)
	}
	if err := sess.RunCode(debugger.ModeContinue); err != nil {
		t.Fatal(err)
	}
	if sess.State() != debugger.StateFinished {
		t.Errorf("state = %s, want finished", sess.State())
	}
}
