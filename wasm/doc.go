// Package wasm provides WebAssembly binary format parsing for the debugger.
//
// The package decodes core WebAssembly modules (the 2.0 MVP feature set:
// numeric types, functions, tables, memories, globals, imports/exports,
// control flow and memory instructions) into an in-memory Module that the
// interpreter executes one instruction at a time. Post-2.0 proposals
// (GC, SIMD, threads, exception handling) are rejected during decode.
//
// Parse a module from binary:
//
//	data, _ := os.ReadFile("module.wasm")
//	module, err := wasm.ParseModule(data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Function bodies keep their raw instruction bytes; decode them on demand:
//
//	instrs, err := wasm.DecodeInstructions(module.Code[0].Code)
//
// The "name" custom section, when present, is parsed into Module.Names so
// the debugger can show function and local names.
package wasm
