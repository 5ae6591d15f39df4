package debugger

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-debugger/errors"
	"github.com/wippyai/wasm-debugger/vm"
	"github.com/wippyai/wasm-debugger/wasm"
	"github.com/wippyai/wasm-debugger/wat"
)

// RunState is the session's externally observable execution state. It
// is owned by the stepping controller; all other components read it but
// never mutate it.
type RunState int

const (
	StateIdle     RunState = iota // no module loaded
	StateReady                    // loaded, not started
	StateRunning                  // actively advancing (transient)
	StatePaused                   // stopped between instructions
	StateFinished                 // module run completed normally
	StateErrored                  // trapped; requires a fresh load
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateFinished:
		return "finished"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// RunMode selects how RunCode advances execution.
type RunMode int

const (
	ModeStart RunMode = iota
	ModeStep
	ModeStepOver
	ModeStepOut
	ModeContinue
)

func (m RunMode) String() string {
	switch m {
	case ModeStart:
		return "start"
	case ModeStep:
		return "step"
	case ModeStepOver:
		return "step_over"
	case ModeStepOut:
		return "step_out"
	case ModeContinue:
		return "continue"
	default:
		return "unknown"
	}
}

// PauseReason records why the last pause happened.
type PauseReason int

const (
	PauseNone PauseReason = iota
	PauseStep             // a stepping mode reached its target
	PauseBreakpoint
	PauseEntry // paused at the entry point before any instruction
)

// ImportCall is the snapshot handed to the host when the module invokes
// an imported function. All slices are copies; mutating them does not
// affect interpreter state.
type ImportCall struct {
	FuncIndex uint32
	Module    string
	Name      string
	Args      []vm.Value
	Globals   []vm.Value
	Memory    []byte
}

// ImportHandler executes host functions on behalf of the module. The
// session lock is released while the handler runs, so the handler may
// inspect the session to decide its answer. The returned globals and
// memory replace interpreter state wholesale.
type ImportHandler interface {
	RunImportFunction(call *ImportCall) (vm.ImportResult, error)
}

// ImportHandlerFunc adapts a function to the ImportHandler interface.
type ImportHandlerFunc func(call *ImportCall) (vm.ImportResult, error)

func (f ImportHandlerFunc) RunImportFunction(call *ImportCall) (vm.ImportResult, error) {
	return f(call)
}

// LocalInfo is a named or anonymous local slot in a call frame.
type LocalInfo struct {
	Name  string
	Value vm.Value
}

// Session owns one loaded module and all of its mutable debugging
// state. A single mutex serializes mutation and inspection; run loops
// hold it for the whole requested advance, releasing it only across the
// import call rendezvous.
type Session struct {
	mu  sync.Mutex
	log *zap.Logger

	state       RunState
	pauseReason PauseReason
	mod         *wasm.Module
	modPath     string
	machine     *vm.VM
	bps         *Breakpoints
	handler     ImportHandler

	// awaitingImport marks the window where the run loop has released
	// the lock and is blocked on the import handler.
	awaitingImport bool
}

// New creates an idle session with no module loaded.
func New(log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		log:   log,
		state: StateIdle,
		bps:   NewBreakpoints(),
	}
}

// SetImportHandler installs the host-function executor. Without one,
// any call to an imported function traps.
func (s *Session) SetImportHandler(h ImportHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// LoadModule reads a .wasm or .wat file and loads it. On success all
// execution state and breakpoints are reset and the session is Ready.
// On failure the previously loaded module, if any, stays loaded.
func (s *Session) LoadModule(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Load("read module file", err)
	}
	if strings.HasSuffix(path, ".wat") {
		data, err = wat.Compile(string(data))
		if err != nil {
			return errors.Load("compile wat", err)
		}
	}
	if err := s.LoadBinary(data); err != nil {
		return err
	}
	s.mu.Lock()
	s.modPath = path
	s.mu.Unlock()
	return nil
}

// LoadBinary loads a module from its binary encoding.
func (s *Session) LoadBinary(data []byte) error {
	if err := validateModule(data); err != nil {
		return err
	}
	mod, err := wasm.ParseModule(data)
	if err != nil {
		return errors.Load("parse module", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.mod = mod
	s.modPath = ""
	s.machine = nil
	s.state = StateReady
	s.pauseReason = PauseNone
	s.bps = NewBreakpoints()
	s.log.Info("module loaded",
		zap.Int("functions", mod.NumFuncs()),
		zap.Int("imports", mod.NumImportedFuncs()),
		zap.Int("globals", len(mod.Globals)))
	return nil
}

// validateModule delegates binary validation to the wazero runtime.
func validateModule(data []byte) error {
	ctx := context.Background()
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	defer r.Close(ctx)
	if _, err := r.CompileModule(ctx, data); err != nil {
		return errors.Load("module validation failed", err)
	}
	return nil
}

// Module returns the loaded module, or nil.
func (s *Session) Module() *wasm.Module {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mod
}

// AddBreakpoint registers a breakpoint and returns its stable index.
// Breakpoints always land in the session's current table; loading a new
// module installs a fresh one.
func (s *Session) AddBreakpoint(pos vm.CodePosition) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bps.Add(pos)
}

// DeleteBreakpoint removes the breakpoint with the given index.
func (s *Session) DeleteBreakpoint(index uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bps.Delete(index)
}

// ListBreakpoints returns all registered breakpoints ordered by index.
func (s *Session) ListBreakpoints() []Breakpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bps.List()
}

// ClearBreakpoints removes all breakpoints.
func (s *Session) ClearBreakpoints() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bps.Clear()
}

// State returns the current run state. A session blocked on a pending
// import call reads as Paused: the module is suspended between
// instructions and may be inspected.
func (s *Session) State() RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.awaitingImport {
		return StatePaused
	}
	return s.state
}

// LastPause returns why the most recent pause happened.
func (s *Session) LastPause() PauseReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pauseReason
}

// Reset discards the running instance, keeping the module and
// breakpoints. The session returns to Ready.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mod == nil {
		return errors.InvalidState(errors.PhaseRun, "no module loaded")
	}
	s.machine = nil
	s.state = StateReady
	s.pauseReason = PauseNone
	return nil
}

// entryPoint resolves the module's designated entry function: the start
// section if present, otherwise an exported "_start" or "main".
func (s *Session) entryPoint() (uint32, error) {
	if s.mod.Start != nil {
		return *s.mod.Start, nil
	}
	if idx, ok := s.mod.ExportedFunc("_start"); ok {
		return idx, nil
	}
	if idx, ok := s.mod.ExportedFunc("main"); ok {
		return idx, nil
	}
	return 0, errors.InvalidState(errors.PhaseRun, "module has no start section and exports neither _start nor main")
}

// createVM instantiates the interpreter paused at the entry point.
func (s *Session) createVM() error {
	entry, err := s.entryPoint()
	if err != nil {
		return err
	}
	return s.createVMAt(entry, nil)
}

func (s *Session) createVMAt(funcIdx uint32, args []vm.Value) error {
	machine, err := vm.New(s.mod)
	if err != nil {
		return err
	}
	if err := machine.Start(funcIdx, args); err != nil {
		return err
	}
	s.machine = machine
	return nil
}

// StartFunction sets up a fresh instance paused at the entry of an
// arbitrary function, for debugging exports other than the entry point.
// Valid from Ready.
func (s *Session) StartFunction(funcIdx uint32, args []vm.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return errors.InvalidState(errors.PhaseRun, "start_function requires state ready, have %s", s.state)
	}
	if err := s.createVMAt(funcIdx, args); err != nil {
		return err
	}
	s.state = StatePaused
	s.pauseReason = PauseEntry
	return nil
}

// RunCode drives the stepping state machine. It returns once the
// requested advance pauses, finishes or traps; a trap moves the session
// to Errored and is returned as the error.
func (s *Session) RunCode(mode RunMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch mode {
	case ModeStart:
		if s.state != StateReady {
			return errors.InvalidState(errors.PhaseRun, "start requires state ready, have %s", s.state)
		}
		if err := s.createVM(); err != nil {
			return err
		}
		return s.runLoop(ModeContinue, 0, true)

	case ModeStep:
		switch s.state {
		case StateReady:
			if err := s.createVM(); err != nil {
				return err
			}
		case StatePaused:
		default:
			return errors.InvalidState(errors.PhaseRun, "step requires state ready or paused, have %s", s.state)
		}
		return s.runLoop(ModeStep, 0, false)

	case ModeStepOver:
		if s.state != StatePaused {
			return errors.InvalidState(errors.PhaseRun, "step_over requires state paused, have %s", s.state)
		}
		return s.runLoop(ModeStepOver, s.machine.Depth(), false)

	case ModeStepOut:
		if s.state != StatePaused {
			return errors.InvalidState(errors.PhaseRun, "step_out requires state paused, have %s", s.state)
		}
		if s.machine.Depth() < 2 {
			return errors.InvalidState(errors.PhaseRun, "step_out requires call stack depth >= 2, have %d", s.machine.Depth())
		}
		return s.runLoop(ModeStepOut, s.machine.Depth(), false)

	case ModeContinue:
		switch s.state {
		case StateReady:
			if err := s.createVM(); err != nil {
				return err
			}
			return s.runLoop(ModeContinue, 0, true)
		case StatePaused:
			return s.runLoop(ModeContinue, 0, false)
		default:
			return errors.InvalidState(errors.PhaseRun, "continue requires state ready or paused, have %s", s.state)
		}

	default:
		return errors.InvalidState(errors.PhaseRun, "unknown run mode %d", mode)
	}
}

// runLoop advances the interpreter until the mode's stop condition, a
// breakpoint, a trap or completion. Called with the session lock held;
// targetDepth is the recorded call-stack depth for StepOver/StepOut.
// checkEntry evaluates breakpoints at the initial position before the
// first instruction, for runs beginning at the entry point.
func (s *Session) runLoop(mode RunMode, targetDepth int, checkEntry bool) error {
	s.state = StateRunning

	if checkEntry {
		if pos, ok := s.machine.Position(); ok && s.bps.Hits(pos) {
			s.pause(PauseBreakpoint, pos)
			return nil
		}
	}

	for {
		ev, err := s.stepOnce()
		if err != nil {
			if errors.IsTrap(err) {
				s.state = StateErrored
				s.log.Warn("trap", zap.Error(err))
			} else {
				// Non-trap failures mid-run leave the session paused.
				s.state = StatePaused
			}
			return err
		}

		if ev == vm.EventFinished {
			s.state = StateFinished
			s.log.Debug("execution finished")
			return nil
		}

		pos, ok := s.machine.Position()
		if !ok {
			s.state = StateErrored
			return errors.Trap("no active frame after step")
		}

		// Breakpoint evaluation happens exactly once per completed
		// instruction, against the table's state at this instant. A hit
		// takes priority over the mode's own stop condition.
		if s.bps.Hits(pos) {
			s.pause(PauseBreakpoint, pos)
			return nil
		}

		switch mode {
		case ModeStep:
			s.pause(PauseStep, pos)
			return nil
		case ModeStepOver:
			if s.machine.Depth() <= targetDepth {
				s.pause(PauseStep, pos)
				return nil
			}
		case ModeStepOut:
			if s.machine.Depth() < targetDepth {
				s.pause(PauseStep, pos)
				return nil
			}
		case ModeContinue:
		}
	}
}

func (s *Session) pause(reason PauseReason, pos vm.CodePosition) {
	s.state = StatePaused
	s.pauseReason = reason
	s.log.Debug("paused",
		zap.Uint32("func", pos.FuncIndex),
		zap.Uint32("instr", pos.InstrIndex),
		zap.Int("depth", s.machine.Depth()))
}

// stepOnce executes one instruction, servicing an import call inline so
// that a completed call to an imported function counts as one completed
// instruction at unchanged depth.
func (s *Session) stepOnce() (vm.StepEvent, error) {
	ev, err := s.machine.Step()
	if err != nil {
		return ev, err
	}
	if ev != vm.EventImportPending {
		return ev, nil
	}

	pending := s.machine.Pending()
	if s.handler == nil {
		return ev, errors.Trap("unsupported call to imported function %d (%s.%s)",
			pending.FuncIndex, pending.Module, pending.Name)
	}

	call := &ImportCall{
		FuncIndex: pending.FuncIndex,
		Module:    pending.Module,
		Name:      pending.Name,
		Args:      pending.Args,
		Globals:   pending.Globals,
		Memory:    pending.Memory,
	}
	s.log.Debug("import call",
		zap.Uint32("func", call.FuncIndex),
		zap.String("name", call.Module+"."+call.Name))

	// Release the lock for the rendezvous: the host may inspect the
	// session while deciding its answer. No timeout is imposed; an
	// unanswered call blocks this run indefinitely.
	s.awaitingImport = true
	s.mu.Unlock()
	result, herr := s.handler.RunImportFunction(call)
	s.mu.Lock()
	s.awaitingImport = false

	if herr != nil {
		return ev, errors.New(errors.PhaseImport, errors.KindTrap).
			Detail("import function %d failed", call.FuncIndex).
			Cause(herr).
			Build()
	}
	if rerr := s.machine.ResumeImport(result); rerr != nil {
		return ev, errors.New(errors.PhaseImport, errors.KindTrap).
			Detail("import function %d returned an unusable result", call.FuncIndex).
			Cause(rerr).
			Build()
	}
	return vm.EventAdvanced, nil
}

// canInspect reports whether interpreter state may be read right now.
// Called with the lock held.
func (s *Session) canInspect() error {
	if s.machine == nil {
		return errors.InvalidState(errors.PhaseInspect, "the module is not being run")
	}
	if s.state == StateRunning && !s.awaitingImport {
		return errors.InvalidState(errors.PhaseInspect, "not paused")
	}
	return nil
}

// Backtrace returns the call stack innermost-first.
func (s *Session) Backtrace() ([]vm.CodePosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.canInspect(); err != nil {
		return nil, err
	}
	return s.machine.Backtrace(), nil
}

// Locals returns the function index and local slots of a call frame.
// Frame index 0 is the innermost frame.
func (s *Session) Locals(frameIndex int) (uint32, []LocalInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.canInspect(); err != nil {
		return 0, nil, err
	}
	frame, err := s.machine.FrameAt(frameIndex)
	if err != nil {
		return 0, nil, err
	}
	locals := make([]LocalInfo, len(frame.Locals))
	for i, val := range frame.Locals {
		locals[i] = LocalInfo{
			Name:  s.mod.LocalName(frame.FuncIndex, uint32(i)),
			Value: val,
		}
	}
	return frame.FuncIndex, locals, nil
}

// Globals returns a snapshot of the module's global values.
func (s *Session) Globals() ([]vm.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.canInspect(); err != nil {
		return nil, err
	}
	return s.machine.Globals(), nil
}

// ValueStack returns a snapshot of the operand stack, bottom first.
func (s *Session) ValueStack() ([]vm.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.canInspect(); err != nil {
		return nil, err
	}
	return s.machine.ValueStack(), nil
}

// MemoryBytes returns a copy of length bytes of linear memory at offset.
func (s *Session) MemoryBytes(offset, length uint32) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.canInspect(); err != nil {
		return nil, err
	}
	mem := s.machine.Memory()
	if mem == nil {
		return nil, errors.NotFound(errors.PhaseInspect, "module has no memory")
	}
	return mem.Read(offset, length)
}

// MemorySize returns the linear memory size in bytes, or 0 without one.
func (s *Session) MemorySize() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.canInspect(); err != nil {
		return 0, err
	}
	mem := s.machine.Memory()
	if mem == nil {
		return 0, nil
	}
	return mem.Size(), nil
}

// Position returns the innermost code position while inspectable.
func (s *Session) Position() (vm.CodePosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.canInspect(); err != nil {
		return vm.CodePosition{}, err
	}
	pos, ok := s.machine.Position()
	if !ok {
		return vm.CodePosition{}, errors.InvalidState(errors.PhaseInspect, "no active frame")
	}
	return pos, nil
}

// Instructions exposes a function's decoded instructions for
// disassembly views.
func (s *Session) Instructions(funcIdx uint32) []wasm.Instruction {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.machine != nil {
		return s.machine.Instructions(funcIdx)
	}
	if s.mod == nil {
		return nil
	}
	body := s.mod.BodyOf(funcIdx)
	if body == nil {
		return nil
	}
	instrs, err := wasm.DecodeInstructions(body.Code)
	if err != nil {
		return nil
	}
	return instrs
}
