// Package vm implements the instruction-level WebAssembly interpreter
// that backs the debugger.
//
// The VM executes exactly one instruction per Step call and reports what
// happened as a StepEvent. That single-instruction granularity is what
// lets the debugger compose step-over, step-out and continue from
// repeated Step calls.
//
//	v, err := vm.New(module)
//	v.Start(entryIndex, nil)
//	for {
//	    ev, err := v.Step()
//	    if err != nil {
//	        // trap: the VM is poisoned, state stays inspectable
//	        break
//	    }
//	    if ev == vm.EventFinished {
//	        break
//	    }
//	}
//
// Calls to imported functions suspend the VM: Step returns
// EventImportPending and Pending() carries a snapshot of the call
// arguments, globals and linear memory. ResumeImport applies the host's
// result and completes the call instruction. Snapshots are copies; the
// host never aliases live interpreter state.
package vm
