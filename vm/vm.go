package vm

import (
	"github.com/wippyai/wasm-debugger/errors"
	"github.com/wippyai/wasm-debugger/wasm"
)

// maxCallDepth bounds the call stack; exceeding it traps.
const maxCallDepth = 1024

// CodePosition identifies a unique point in the module's code.
type CodePosition struct {
	FuncIndex  uint32
	InstrIndex uint32
}

// StepEvent reports what a single Step call did.
type StepEvent int

const (
	// EventAdvanced: the instruction completed within the current frame.
	EventAdvanced StepEvent = iota
	// EventCallEntered: a call pushed a new frame.
	EventCallEntered
	// EventImportPending: a call reached an imported function; the VM is
	// suspended until ResumeImport.
	EventImportPending
	// EventReturned: the current frame returned to its caller.
	EventReturned
	// EventFinished: the outermost frame returned; the run is complete.
	EventFinished
)

// PendingImport is the snapshot handed to the host when the module calls
// an imported function. All slices are copies of interpreter state.
type PendingImport struct {
	FuncIndex uint32
	Module    string
	Name      string
	Args      []Value
	Globals   []Value
	Memory    []byte
}

// ImportResult carries the host's answer to a pending import call.
// Globals and Memory replace interpreter state wholesale.
type ImportResult struct {
	Return  *Value
	Globals []Value
	Memory  []byte
}

// Frame is one active function invocation on the call stack.
type Frame struct {
	FuncIndex   uint32
	PC          uint32 // next instruction to execute
	Locals      []Value
	stackHeight int
	ctrl        []ctrlFrame
}

// ctrlFrame is an open block, loop or if construct within a frame.
type ctrlFrame struct {
	opcode      byte
	startPC     uint32
	endPC       uint32
	stackHeight int
	arity       int
}

type ctrlMeta struct {
	elsePC  uint32
	endPC   uint32
	hasElse bool
}

type funcInfo struct {
	typ    *wasm.FuncType
	instrs []wasm.Instruction
	meta   []ctrlMeta
}

// VM is the interpreter state for one instantiated module.
type VM struct {
	mod        *wasm.Module
	numImports uint32
	funcs      []funcInfo
	table      []int64 // funcref table; -1 marks uninitialized elements
	globals    []Value
	memory     *Memory
	stack      []Value
	frames     []*Frame
	pending    *PendingImport
	trapErr    error
	finished   bool
}

// New instantiates a VM for the module: decodes function bodies,
// initializes globals, tables and linear memory. The VM has no active
// frames until Start is called.
func New(mod *wasm.Module) (*VM, error) {
	for _, imp := range mod.Imports {
		if imp.Desc.Kind != wasm.KindFunc {
			return nil, errors.New(errors.PhaseLoad, errors.KindLoadFailure).
				Detail("import %s.%s: only function imports are supported", imp.Module, imp.Name).
				Build()
		}
	}

	v := &VM{
		mod:        mod,
		numImports: uint32(mod.NumImportedFuncs()),
	}

	v.funcs = make([]funcInfo, len(mod.Code))
	for i := range mod.Code {
		funcIdx := v.numImports + uint32(i)
		instrs, err := wasm.DecodeInstructions(mod.Code[i].Code)
		if err != nil {
			return nil, errors.Load("decode function body", err)
		}
		meta, err := computeCtrlMeta(instrs)
		if err != nil {
			return nil, errors.New(errors.PhaseLoad, errors.KindLoadFailure).
				Detail("function %d: %v", funcIdx, err).
				Build()
		}
		v.funcs[i] = funcInfo{
			typ:    mod.FuncTypeAt(funcIdx),
			instrs: instrs,
			meta:   meta,
		}
		if v.funcs[i].typ == nil {
			return nil, errors.New(errors.PhaseLoad, errors.KindLoadFailure).
				Detail("function %d has no type", funcIdx).
				Build()
		}
	}

	v.globals = make([]Value, len(mod.Globals))
	for i, g := range mod.Globals {
		val, err := v.evalConstExpr(g.Init, g.Type.Type)
		if err != nil {
			return nil, errors.Load("global initializer", err)
		}
		v.globals[i] = val
	}

	if len(mod.Memories) > 0 {
		v.memory = newMemory(mod.Memories[0])
		for _, seg := range mod.Data {
			off, err := v.evalConstExpr(seg.Offset, wasm.ValI32)
			if err != nil {
				return nil, errors.Load("data segment offset", err)
			}
			if !v.memory.store(uint64(uint32(off.i32())), seg.Data) {
				return nil, errors.New(errors.PhaseLoad, errors.KindLoadFailure).
					Detail("data segment out of memory bounds").
					Build()
			}
		}
	}

	if len(mod.Tables) > 0 {
		v.table = make([]int64, mod.Tables[0].Limits.Min)
		for i := range v.table {
			v.table[i] = -1
		}
		for _, elem := range mod.Elements {
			off, err := v.evalConstExpr(elem.Offset, wasm.ValI32)
			if err != nil {
				return nil, errors.Load("element segment offset", err)
			}
			base := int(off.i32())
			if base < 0 || base+len(elem.Funcs) > len(v.table) {
				return nil, errors.New(errors.PhaseLoad, errors.KindLoadFailure).
					Detail("element segment out of table bounds").
					Build()
			}
			for j, fidx := range elem.Funcs {
				v.table[base+j] = int64(fidx)
			}
		}
	}

	return v, nil
}

func computeCtrlMeta(instrs []wasm.Instruction) ([]ctrlMeta, error) {
	meta := make([]ctrlMeta, len(instrs))
	var open []int
	for i, instr := range instrs {
		switch instr.Opcode {
		case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
			open = append(open, i)
		case wasm.OpElse:
			if len(open) == 0 {
				return nil, errors.New(errors.PhaseLoad, errors.KindLoadFailure).
					Detail("else without matching if at instruction %d", i).
					Build()
			}
			top := open[len(open)-1]
			meta[top].elsePC = uint32(i)
			meta[top].hasElse = true
		case wasm.OpEnd:
			if len(open) > 0 {
				top := open[len(open)-1]
				open = open[:len(open)-1]
				meta[top].endPC = uint32(i)
			}
		}
	}
	if len(open) != 0 {
		return nil, errors.New(errors.PhaseLoad, errors.KindLoadFailure).
			Detail("unclosed block at instruction %d", open[len(open)-1]).
			Build()
	}
	return meta, nil
}

func (v *VM) evalConstExpr(expr []byte, want wasm.ValType) (Value, error) {
	instrs, err := wasm.DecodeInstructions(append(append([]byte{}, expr...), wasm.OpEnd))
	if err != nil {
		return Value{}, err
	}
	var val Value
	for _, instr := range instrs {
		switch imm := instr.Imm.(type) {
		case wasm.I32Imm:
			val = I32(imm.Value)
		case wasm.I64Imm:
			val = I64(imm.Value)
		case wasm.F32Imm:
			val = F32(imm.Value)
		case wasm.F64Imm:
			val = F64(imm.Value)
		case wasm.GlobalImm:
			if imm.GlobalIdx >= uint32(len(v.globals)) {
				return Value{}, errors.New(errors.PhaseLoad, errors.KindLoadFailure).
					Detail("constant expression references global %d", imm.GlobalIdx).
					Build()
			}
			val = v.globals[imm.GlobalIdx]
		}
	}
	if val.Kind() != want {
		return Value{}, errors.New(errors.PhaseLoad, errors.KindLoadFailure).
			Detail("constant expression yields %s, want %s", val.Kind(), want).
			Build()
	}
	return val, nil
}

// Start pushes the initial frame for funcIdx. Missing arguments are
// zero-filled so entry points with parameters can still be debugged.
func (v *VM) Start(funcIdx uint32, args []Value) error {
	if len(v.frames) != 0 {
		return errors.InvalidState(errors.PhaseRun, "vm already started")
	}
	if funcIdx < v.numImports {
		return errors.InvalidState(errors.PhaseRun, "entry point %d is an imported function", funcIdx)
	}
	local := funcIdx - v.numImports
	if local >= uint32(len(v.funcs)) {
		return errors.OutOfRange(errors.PhaseRun, "function", int(funcIdx), v.mod.NumFuncs())
	}
	v.pushFrame(funcIdx, args)
	return nil
}

func (v *VM) pushFrame(funcIdx uint32, args []Value) {
	fn := &v.funcs[funcIdx-v.numImports]
	body := v.mod.BodyOf(funcIdx)

	locals := make([]Value, 0, len(fn.typ.Params))
	for i, p := range fn.typ.Params {
		if i < len(args) {
			locals = append(locals, args[i])
		} else {
			locals = append(locals, Zero(p))
		}
	}
	for _, entry := range body.Locals {
		for i := uint32(0); i < entry.Count; i++ {
			locals = append(locals, Zero(entry.Type))
		}
	}

	v.frames = append(v.frames, &Frame{
		FuncIndex:   funcIdx,
		Locals:      locals,
		stackHeight: len(v.stack),
	})
}

// Step executes exactly one instruction. On a trap the VM is poisoned:
// the error is returned, state stays inspectable, and further Step calls
// fail with an invalid state error.
func (v *VM) Step() (StepEvent, error) {
	if v.trapErr != nil {
		return 0, errors.InvalidState(errors.PhaseRun, "vm trapped: %v", v.trapErr)
	}
	if v.pending != nil {
		return 0, errors.InvalidState(errors.PhaseImport, "import call %d is pending", v.pending.FuncIndex)
	}
	if v.finished {
		return 0, errors.InvalidState(errors.PhaseRun, "execution already finished")
	}
	if len(v.frames) == 0 {
		return 0, errors.InvalidState(errors.PhaseRun, "vm not started")
	}

	frame := v.frames[len(v.frames)-1]
	fn := &v.funcs[frame.FuncIndex-v.numImports]
	if frame.PC >= uint32(len(fn.instrs)) {
		return 0, errors.Trap("instruction pointer %d out of bounds in function %d", frame.PC, frame.FuncIndex)
	}
	instr := fn.instrs[frame.PC]

	// Operand pops precede all state writes, so truncating the stack to
	// its pre-instruction height undoes a trapped instruction entirely.
	savedStack := len(v.stack)
	ev, err := v.exec(frame, fn, instr)
	if err != nil {
		if errors.IsTrap(err) {
			v.stack = v.stack[:savedStack]
			v.trapErr = err
		}
		return 0, err
	}
	return ev, nil
}

// exec dispatches one instruction. Control flow is handled here; numeric
// operations are in exec_numeric.go.
func (v *VM) exec(frame *Frame, fn *funcInfo, instr wasm.Instruction) (StepEvent, error) {
	switch instr.Opcode {
	case wasm.OpUnreachable:
		return 0, errors.Trap("unreachable instruction executed")

	case wasm.OpNop:
		frame.PC++
		return EventAdvanced, nil

	case wasm.OpBlock, wasm.OpLoop:
		imm := instr.Imm.(wasm.BlockImm)
		frame.ctrl = append(frame.ctrl, ctrlFrame{
			opcode:      instr.Opcode,
			startPC:     frame.PC,
			endPC:       fn.meta[frame.PC].endPC,
			stackHeight: len(v.stack),
			arity:       blockArity(imm.Type),
		})
		frame.PC++
		return EventAdvanced, nil

	case wasm.OpIf:
		imm := instr.Imm.(wasm.BlockImm)
		meta := fn.meta[frame.PC]
		cond := v.pop().i32()
		if cond != 0 {
			frame.ctrl = append(frame.ctrl, ctrlFrame{
				opcode:      wasm.OpIf,
				startPC:     frame.PC,
				endPC:       meta.endPC,
				stackHeight: len(v.stack),
				arity:       blockArity(imm.Type),
			})
			frame.PC++
		} else if meta.hasElse {
			frame.ctrl = append(frame.ctrl, ctrlFrame{
				opcode:      wasm.OpIf,
				startPC:     frame.PC,
				endPC:       meta.endPC,
				stackHeight: len(v.stack),
				arity:       blockArity(imm.Type),
			})
			frame.PC = meta.elsePC + 1
		} else {
			// No else branch: skip past end without opening a label.
			frame.PC = meta.endPC + 1
		}
		return EventAdvanced, nil

	case wasm.OpElse:
		// Falling into else means the then branch completed: jump to the
		// construct's end, which pops the label.
		top := frame.ctrl[len(frame.ctrl)-1]
		frame.PC = top.endPC
		return EventAdvanced, nil

	case wasm.OpEnd:
		if len(frame.ctrl) > 0 {
			frame.ctrl = frame.ctrl[:len(frame.ctrl)-1]
			frame.PC++
			return EventAdvanced, nil
		}
		return v.doReturn(frame, fn)

	case wasm.OpBr:
		return v.doBranch(frame, fn, instr.Imm.(wasm.BranchImm).LabelIdx)

	case wasm.OpBrIf:
		cond := v.pop().i32()
		if cond != 0 {
			return v.doBranch(frame, fn, instr.Imm.(wasm.BranchImm).LabelIdx)
		}
		frame.PC++
		return EventAdvanced, nil

	case wasm.OpBrTable:
		imm := instr.Imm.(wasm.BrTableImm)
		idx := v.pop().i32()
		label := imm.Default
		if idx >= 0 && int(idx) < len(imm.Labels) {
			label = imm.Labels[idx]
		}
		return v.doBranch(frame, fn, label)

	case wasm.OpReturn:
		return v.doReturn(frame, fn)

	case wasm.OpCall:
		return v.doCall(frame, instr.Imm.(wasm.CallImm).FuncIdx)

	case wasm.OpCallIndirect:
		return v.doCallIndirect(frame, instr.Imm.(wasm.CallIndirectImm))

	case wasm.OpDrop:
		v.pop()
		frame.PC++
		return EventAdvanced, nil

	case wasm.OpSelect:
		cond := v.pop().i32()
		b := v.pop()
		a := v.pop()
		if cond != 0 {
			v.push(a)
		} else {
			v.push(b)
		}
		frame.PC++
		return EventAdvanced, nil

	case wasm.OpLocalGet:
		imm := instr.Imm.(wasm.LocalImm)
		if imm.LocalIdx >= uint32(len(frame.Locals)) {
			return 0, errors.Trap("local.get %d out of range (%d locals)", imm.LocalIdx, len(frame.Locals))
		}
		v.push(frame.Locals[imm.LocalIdx])
		frame.PC++
		return EventAdvanced, nil

	case wasm.OpLocalSet:
		imm := instr.Imm.(wasm.LocalImm)
		if imm.LocalIdx >= uint32(len(frame.Locals)) {
			return 0, errors.Trap("local.set %d out of range (%d locals)", imm.LocalIdx, len(frame.Locals))
		}
		frame.Locals[imm.LocalIdx] = v.pop()
		frame.PC++
		return EventAdvanced, nil

	case wasm.OpLocalTee:
		imm := instr.Imm.(wasm.LocalImm)
		if imm.LocalIdx >= uint32(len(frame.Locals)) {
			return 0, errors.Trap("local.tee %d out of range (%d locals)", imm.LocalIdx, len(frame.Locals))
		}
		frame.Locals[imm.LocalIdx] = v.stack[len(v.stack)-1]
		frame.PC++
		return EventAdvanced, nil

	case wasm.OpGlobalGet:
		imm := instr.Imm.(wasm.GlobalImm)
		if imm.GlobalIdx >= uint32(len(v.globals)) {
			return 0, errors.Trap("global.get %d out of range (%d globals)", imm.GlobalIdx, len(v.globals))
		}
		v.push(v.globals[imm.GlobalIdx])
		frame.PC++
		return EventAdvanced, nil

	case wasm.OpGlobalSet:
		imm := instr.Imm.(wasm.GlobalImm)
		if imm.GlobalIdx >= uint32(len(v.globals)) {
			return 0, errors.Trap("global.set %d out of range (%d globals)", imm.GlobalIdx, len(v.globals))
		}
		v.globals[imm.GlobalIdx] = v.pop()
		frame.PC++
		return EventAdvanced, nil

	default:
		if err := v.execNumeric(instr); err != nil {
			return 0, err
		}
		frame.PC++
		return EventAdvanced, nil
	}
}

func blockArity(blockType int32) int {
	if blockType == wasm.BlockTypeVoid {
		return 0
	}
	return 1
}

// doBranch implements br semantics: label 0 is the innermost open
// construct; a label equal to the open construct count targets the
// function body itself and behaves as return.
func (v *VM) doBranch(frame *Frame, fn *funcInfo, label uint32) (StepEvent, error) {
	idx := len(frame.ctrl) - 1 - int(label)
	if idx < 0 {
		return v.doReturn(frame, fn)
	}
	target := frame.ctrl[idx]

	if target.opcode == wasm.OpLoop {
		// Branching to a loop re-enters its body; the loop label stays open.
		v.unwindStack(target.stackHeight, 0)
		frame.ctrl = frame.ctrl[:idx+1]
		frame.PC = target.startPC + 1
	} else {
		v.unwindStack(target.stackHeight, target.arity)
		frame.ctrl = frame.ctrl[:idx]
		frame.PC = target.endPC + 1
	}
	return EventAdvanced, nil
}

// unwindStack truncates the value stack to height, preserving the top
// arity values across the truncation.
func (v *VM) unwindStack(height, arity int) {
	if arity > 0 {
		kept := make([]Value, arity)
		copy(kept, v.stack[len(v.stack)-arity:])
		v.stack = append(v.stack[:height], kept...)
	} else {
		v.stack = v.stack[:height]
	}
}

func (v *VM) doReturn(frame *Frame, fn *funcInfo) (StepEvent, error) {
	v.unwindStack(frame.stackHeight, len(fn.typ.Results))
	v.frames = v.frames[:len(v.frames)-1]

	if len(v.frames) == 0 {
		v.finished = true
		return EventFinished, nil
	}
	return EventReturned, nil
}

func (v *VM) doCall(frame *Frame, funcIdx uint32) (StepEvent, error) {
	if funcIdx >= uint32(v.mod.NumFuncs()) {
		return 0, errors.Trap("call to undefined function %d", funcIdx)
	}

	if funcIdx < v.numImports {
		return v.suspendForImport(funcIdx)
	}

	if len(v.frames) >= maxCallDepth {
		return 0, errors.Trap("call stack exhausted (%d frames)", maxCallDepth)
	}

	typ := v.mod.FuncTypeAt(funcIdx)
	args := make([]Value, len(typ.Params))
	for i := len(args) - 1; i >= 0; i-- {
		args[i] = v.pop()
	}

	// The caller resumes past the call once the callee returns.
	frame.PC++
	v.pushFrame(funcIdx, args)
	return EventCallEntered, nil
}

func (v *VM) doCallIndirect(frame *Frame, imm wasm.CallIndirectImm) (StepEvent, error) {
	if len(v.table) == 0 {
		return 0, errors.Trap("call_indirect with no table")
	}
	idx := v.pop().i32()
	if idx < 0 || int(idx) >= len(v.table) {
		return 0, errors.Trap("call_indirect index %d out of table bounds (%d)", idx, len(v.table))
	}
	entry := v.table[idx]
	if entry < 0 {
		return 0, errors.Trap("call_indirect to uninitialized table element %d", idx)
	}
	funcIdx := uint32(entry)

	want := v.mod.Types[imm.TypeIdx]
	got := v.mod.FuncTypeAt(funcIdx)
	if got == nil || !sameFuncType(want, *got) {
		return 0, errors.Trap("call_indirect type mismatch for table element %d", idx)
	}
	return v.doCall(frame, funcIdx)
}

func sameFuncType(a, b wasm.FuncType) bool {
	if len(a.Params) != len(b.Params) || len(a.Results) != len(b.Results) {
		return false
	}
	for i := range a.Params {
		if a.Params[i] != b.Params[i] {
			return false
		}
	}
	for i := range a.Results {
		if a.Results[i] != b.Results[i] {
			return false
		}
	}
	return true
}

// suspendForImport snapshots the call for the host. Arguments remain on
// the value stack until ResumeImport commits the call.
func (v *VM) suspendForImport(funcIdx uint32) (StepEvent, error) {
	imp := v.mod.ImportedFunc(funcIdx)
	typ := v.mod.FuncTypeAt(funcIdx)
	if typ == nil {
		return 0, errors.Trap("imported function %d has no type", funcIdx)
	}
	nargs := len(typ.Params)
	if len(v.stack) < nargs {
		return 0, errors.Trap("value stack underflow calling imported function %d", funcIdx)
	}

	args := make([]Value, nargs)
	copy(args, v.stack[len(v.stack)-nargs:])

	var mem []byte
	if v.memory != nil {
		mem = v.memory.Snapshot()
	}
	globals := make([]Value, len(v.globals))
	copy(globals, v.globals)

	v.pending = &PendingImport{
		FuncIndex: funcIdx,
		Module:    imp.Module,
		Name:      imp.Name,
		Args:      args,
		Globals:   globals,
		Memory:    mem,
	}
	return EventImportPending, nil
}

// Pending returns the outstanding import call snapshot, if any.
func (v *VM) Pending() *PendingImport {
	return v.pending
}

// ResumeImport applies the host's result to a pending import call and
// completes the suspended call instruction. Invalid results leave the
// call pending so the host can retry.
func (v *VM) ResumeImport(result ImportResult) error {
	if v.pending == nil {
		return errors.InvalidState(errors.PhaseImport, "no import call pending")
	}

	typ := v.mod.FuncTypeAt(v.pending.FuncIndex)
	if len(typ.Results) > 0 && result.Return == nil {
		return errors.New(errors.PhaseImport, errors.KindInvalidValue).
			Detail("imported function %d returns %s but no value was supplied",
				v.pending.FuncIndex, typ.Results[0]).
			Build()
	}
	if len(typ.Results) == 0 && result.Return != nil {
		return errors.New(errors.PhaseImport, errors.KindInvalidValue).
			Detail("imported function %d returns nothing but a value was supplied", v.pending.FuncIndex).
			Build()
	}
	if result.Globals != nil && len(result.Globals) != len(v.globals) {
		return errors.New(errors.PhaseImport, errors.KindInvalidValue).
			Detail("global replacement count %d does not match %d module globals",
				len(result.Globals), len(v.globals)).
			Build()
	}
	// Memory replacement validates and commits in one step; a size
	// mismatch fails here before any other state is touched, so the call
	// stays pending.
	if result.Memory != nil && v.memory != nil {
		if err := v.memory.Replace(result.Memory); err != nil {
			return err
		}
	}

	// Commit: pop arguments, replace globals wholesale, push the result.
	v.stack = v.stack[:len(v.stack)-len(v.pending.Args)]
	if result.Globals != nil {
		copy(v.globals, result.Globals)
	}
	if result.Return != nil {
		v.push(*result.Return)
	}

	frame := v.frames[len(v.frames)-1]
	frame.PC++
	v.pending = nil
	return nil
}

func (v *VM) push(val Value) {
	v.stack = append(v.stack, val)
}

func (v *VM) pop() Value {
	val := v.stack[len(v.stack)-1]
	v.stack = v.stack[:len(v.stack)-1]
	return val
}

// Position returns the code position about to execute in the innermost
// frame. ok is false when no frame is active.
func (v *VM) Position() (CodePosition, bool) {
	if len(v.frames) == 0 {
		return CodePosition{}, false
	}
	frame := v.frames[len(v.frames)-1]
	return CodePosition{FuncIndex: frame.FuncIndex, InstrIndex: frame.PC}, true
}

// Depth returns the number of active call frames.
func (v *VM) Depth() int {
	return len(v.frames)
}

// Backtrace returns the call stack innermost-first. The innermost entry
// is the position about to execute; outer entries are return addresses.
func (v *VM) Backtrace() []CodePosition {
	bt := make([]CodePosition, 0, len(v.frames))
	for i := len(v.frames) - 1; i >= 0; i-- {
		frame := v.frames[i]
		bt = append(bt, CodePosition{FuncIndex: frame.FuncIndex, InstrIndex: frame.PC})
	}
	return bt
}

// FrameAt returns the frame at the given innermost-first index.
func (v *VM) FrameAt(index int) (*Frame, error) {
	if index < 0 || index >= len(v.frames) {
		return nil, errors.OutOfRange(errors.PhaseInspect, "call stack frame", index, len(v.frames))
	}
	return v.frames[len(v.frames)-1-index], nil
}

// ValueStack returns a copy of the operand stack, bottom first.
func (v *VM) ValueStack() []Value {
	cp := make([]Value, len(v.stack))
	copy(cp, v.stack)
	return cp
}

// Globals returns a copy of the module's global values.
func (v *VM) Globals() []Value {
	cp := make([]Value, len(v.globals))
	copy(cp, v.globals)
	return cp
}

// Memory returns the module's linear memory, or nil if it has none.
func (v *VM) Memory() *Memory {
	return v.memory
}

// Module returns the module this VM executes.
func (v *VM) Module() *wasm.Module {
	return v.mod
}

// Finished reports whether the outermost frame has returned.
func (v *VM) Finished() bool {
	return v.finished
}

// TrapError returns the trap that poisoned the VM, if any.
func (v *VM) TrapError() error {
	return v.trapErr
}

// Instructions returns the decoded instructions of a function, or nil
// for imports and out-of-range indices.
func (v *VM) Instructions(funcIdx uint32) []wasm.Instruction {
	if funcIdx < v.numImports {
		return nil
	}
	local := funcIdx - v.numImports
	if local >= uint32(len(v.funcs)) {
		return nil
	}
	return v.funcs[local].instrs
}
