// Package debugger implements the execution-control and introspection
// engine for debugging WebAssembly modules.
//
// A Session owns one loaded module and its interpreter state: run state,
// call stack, value stack, globals, linear memory and the breakpoint
// table. Sessions are constructed with New and loaded with LoadModule;
// loading again resets all execution state.
//
//	sess := debugger.New(logger)
//	if err := sess.LoadModule("prog.wasm"); err != nil { ... }
//	sess.AddBreakpoint(vm.CodePosition{FuncIndex: 0, InstrIndex: 5})
//	err := sess.RunCode(debugger.ModeStart) // runs to breakpoint/finish
//	stack, _ := sess.Backtrace()
//
// RunCode drives the stepping state machine: Start, Step, StepOver,
// StepOut and Continue compose the interpreter's single-instruction
// Step. After every completed instruction the controller evaluates
// breakpoint membership once, against the table's state at that exact
// point; a hit always wins over a step-over/step-out target condition
// evaluated at the same instruction.
//
// When the module calls an imported function, the session suspends and
// invokes the registered ImportHandler with a snapshot of the call
// arguments, globals and memory. The session lock is released for the
// duration of the handler, so the host may inspect session state while
// deciding how to answer. The handler's result replaces globals and
// memory wholesale and pushes the optional return value.
//
// At most one RunCode call may be in flight at a time. Inspection
// calls are rejected while a run is advancing; they are served while
// the session is paused, including paused at a pending import call.
package debugger
