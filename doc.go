// Package wasmdebugger provides an instruction-level debugger for
// WebAssembly core modules.
//
// The debugger runs modules in its own interpreter so execution can be
// paused, stepped and inspected at individual instruction granularity.
// Calls to imported functions are delegated to the host through a
// suspend-and-resume bridge, keeping the full interpreter state
// inspectable while the host decides its answer.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct
// responsibilities:
//
//	wasm-debugger/
//	├── wasm/       WASM binary decoding and instruction model
//	├── wat/        WAT text format to WASM binary compiler
//	├── vm/         Single-stepping interpreter: stacks, memory, traps
//	├── debugger/   Session: run states, stepping modes, breakpoints
//	├── dbgsvc/     Request/reply service layer for remote frontends
//	├── errors/     Structured error types
//	└── cmd/wasmdbg Command line and TUI frontend
//
// # Quick Start
//
// Load a module and run to a breakpoint:
//
//	sess := debugger.New(logger)
//	if err := sess.LoadModule("prog.wasm"); err != nil {
//	    log.Fatal(err)
//	}
//	sess.AddBreakpoint(vm.CodePosition{FuncIndex: 0, InstrIndex: 5})
//	if err := sess.RunCode(debugger.ModeStart); err != nil {
//	    log.Fatal(err)
//	}
//	stack, _ := sess.Backtrace()
//
// Module loading validates the binary with the wazero runtime before
// the interpreter accepts it, so stepping operates only on well-formed
// code.
package wasmdebugger
