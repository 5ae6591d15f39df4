// Package wat compiles WebAssembly Text format into binary WASM.
//
// It covers the core MVP surface in plain (non-folded) instruction
// syntax, which is enough for debugger fixtures and hand-written test
// modules:
//
//	wasm, err := wat.Compile(`(module
//		(func (export "add") (param i32 i32) (result i32)
//			local.get 0
//			local.get 1
//			i32.add)
//	)`)
//
// Supported fields: type, import (func/global/memory), func with named
// or indexed params and locals, table, memory, global, export, start,
// elem and data. Control flow uses flat block/loop/if ... end syntax
// with optional $labels. Global initializers and segment offsets accept
// single folded constant expressions like (i32.const 0).
//
// Not supported: folded instruction expressions, multi-value blocks,
// SIMD, reference types beyond funcref tables, threads.
package wat
