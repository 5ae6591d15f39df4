package dbgsvc

import (
	"go.uber.org/zap"

	"github.com/wippyai/wasm-debugger/debugger"
	"github.com/wippyai/wasm-debugger/errors"
	"github.com/wippyai/wasm-debugger/vm"
)

// Status is the outcome code carried by every reply.
type Status int

const (
	StatusOK Status = iota
	StatusNOK
	StatusFinish
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusNOK:
		return "NOK"
	case StatusFinish:
		return "FINISH"
	default:
		return "unknown"
	}
}

// NormalReply is the reply for operations with no payload.
type NormalReply struct {
	Status      Status
	ErrorReason string
}

// ValuePayload is the wire form of an interpreter value.
type ValuePayload struct {
	Type    string
	Bits    uint64
	Display string
}

func payloadFromValue(v vm.Value) ValuePayload {
	return ValuePayload{
		Type:    v.Kind().String(),
		Bits:    v.Bits(),
		Display: v.String(),
	}
}

// LocalEntry is one local slot with its optional debug name.
type LocalEntry struct {
	Name  string
	Value ValuePayload
}

// GetLocalReply carries the locals of one call frame.
type GetLocalReply struct {
	Status      Status
	ErrorReason string
	FuncIndex   uint32
	Locals      []LocalEntry
}

// GetGlobalReply carries the module's global values.
type GetGlobalReply struct {
	Status      Status
	ErrorReason string
	Globals     []ValuePayload
}

// GetValueStackReply carries the operand stack, bottom first.
type GetValueStackReply struct {
	Status      Status
	ErrorReason string
	Values      []ValuePayload
}

// StackEntry is one call stack frame, innermost first.
type StackEntry struct {
	FuncIndex  uint32
	InstrIndex uint32
	FuncName   string
}

// GetCallStackReply carries the call stack, innermost first.
type GetCallStackReply struct {
	Status      Status
	ErrorReason string
	Stack       []StackEntry
}

// GetMemoryReply carries a slice of linear memory.
type GetMemoryReply struct {
	Status      Status
	ErrorReason string
	Data        []byte
}

// AddBreakpointReply carries the stable index of a new breakpoint.
type AddBreakpointReply struct {
	Status      Status
	ErrorReason string
	Index       uint32
}

// BreakpointEntry is one registered breakpoint.
type BreakpointEntry struct {
	Index      uint32
	FuncIndex  uint32
	InstrIndex uint32
}

// ListBreakpointsReply carries all registered breakpoints by index.
type ListBreakpointsReply struct {
	Status      Status
	ErrorReason string
	Breakpoints []BreakpointEntry
}

// ImportRequest asks the host to execute an imported function.
// ResultType is the function's declared result ("i32", "f64", ...) or
// empty for void, so the host knows what shape of answer is expected.
type ImportRequest struct {
	FuncIndex  uint32
	Module     string
	Name       string
	ResultType string
	Args       []ValuePayload
	Globals    []ValuePayload
	Memory     []byte
}

// ImportReply is the host's answer. Return is nil for void functions;
// Globals and Memory, when non-nil, replace interpreter state wholesale.
type ImportReply struct {
	Return  *ValuePayload
	Globals []ValuePayload
	Memory  []byte
}

// HostExecutor services import calls on behalf of the module. It is the
// callback direction of the service: the debugger asks, the host answers.
type HostExecutor interface {
	RunImportFunction(req *ImportRequest) (*ImportReply, error)
}

// Service adapts a debugger session to the request/reply protocol.
type Service struct {
	sess *debugger.Session
	log  *zap.Logger
}

// New wraps a session. The session's import handler is owned by the
// service once SetHostExecutor is called.
func New(sess *debugger.Session, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{sess: sess, log: log}
}

// Session returns the underlying debugger session.
func (s *Service) Session() *debugger.Session {
	return s.sess
}

// SetHostExecutor installs the import call executor.
func (s *Service) SetHostExecutor(exec HostExecutor) {
	if exec == nil {
		s.sess.SetImportHandler(nil)
		return
	}
	s.sess.SetImportHandler(debugger.ImportHandlerFunc(
		func(call *debugger.ImportCall) (vm.ImportResult, error) {
			return s.executeImport(exec, call)
		}))
}

func (s *Service) executeImport(exec HostExecutor, call *debugger.ImportCall) (vm.ImportResult, error) {
	resultType := ""
	if typ := s.sess.Module().FuncTypeAt(call.FuncIndex); typ != nil && len(typ.Results) > 0 {
		resultType = typ.Results[0].String()
	}
	req := &ImportRequest{
		FuncIndex:  call.FuncIndex,
		Module:     call.Module,
		Name:       call.Name,
		ResultType: resultType,
		Args:       payloadsFromValues(call.Args),
		Globals:    payloadsFromValues(call.Globals),
		Memory:     call.Memory,
	}
	reply, err := exec.RunImportFunction(req)
	if err != nil {
		return vm.ImportResult{}, err
	}

	var result vm.ImportResult
	if reply.Return != nil {
		val, err := valueFromPayload(*reply.Return)
		if err != nil {
			return vm.ImportResult{}, err
		}
		result.Return = &val
	}
	if reply.Globals != nil {
		globals, err := valuesFromPayloads(reply.Globals)
		if err != nil {
			return vm.ImportResult{}, err
		}
		result.Globals = globals
	}
	result.Memory = reply.Memory
	return result, nil
}

func payloadsFromValues(vals []vm.Value) []ValuePayload {
	out := make([]ValuePayload, len(vals))
	for i, v := range vals {
		out[i] = payloadFromValue(v)
	}
	return out
}

func valueFromPayload(p ValuePayload) (vm.Value, error) {
	switch p.Type {
	case "i32":
		return vm.I32(int32(p.Bits)), nil
	case "i64":
		return vm.I64(int64(p.Bits)), nil
	case "f32":
		return vm.F32FromBits(uint32(p.Bits)), nil
	case "f64":
		return vm.F64FromBits(p.Bits), nil
	default:
		return vm.Value{}, errors.New(errors.PhaseImport, errors.KindInvalidValue).
			Detail("unknown value type %q", p.Type).
			Build()
	}
}

func valuesFromPayloads(ps []ValuePayload) ([]vm.Value, error) {
	out := make([]vm.Value, len(ps))
	for i, p := range ps {
		val, err := valueFromPayload(p)
		if err != nil {
			return nil, err
		}
		out[i] = val
	}
	return out, nil
}

func failure(err error) NormalReply {
	return NormalReply{Status: StatusNOK, ErrorReason: err.Error()}
}

// LoadModule loads a .wasm or .wat file into the session.
func (s *Service) LoadModule(path string) NormalReply {
	if err := s.sess.LoadModule(path); err != nil {
		s.log.Warn("load failed", zap.String("path", path), zap.Error(err))
		return failure(err)
	}
	return NormalReply{Status: StatusOK}
}

// RunCode advances execution in the given mode. A completed run yields
// StatusFinish; pausing at a breakpoint or step target yields StatusOK.
func (s *Service) RunCode(mode debugger.RunMode) NormalReply {
	if err := s.sess.RunCode(mode); err != nil {
		return failure(err)
	}
	if s.sess.State() == debugger.StateFinished {
		return NormalReply{Status: StatusFinish}
	}
	return NormalReply{Status: StatusOK}
}

// Reset discards execution state, returning the session to Ready.
func (s *Service) Reset() NormalReply {
	if err := s.sess.Reset(); err != nil {
		return failure(err)
	}
	return NormalReply{Status: StatusOK}
}

// GetLocal returns the locals of the call frame at the given
// innermost-first index.
func (s *Service) GetLocal(frameIndex int) GetLocalReply {
	funcIdx, locals, err := s.sess.Locals(frameIndex)
	if err != nil {
		return GetLocalReply{Status: StatusNOK, ErrorReason: err.Error()}
	}
	entries := make([]LocalEntry, len(locals))
	for i, l := range locals {
		entries[i] = LocalEntry{Name: l.Name, Value: payloadFromValue(l.Value)}
	}
	return GetLocalReply{Status: StatusOK, FuncIndex: funcIdx, Locals: entries}
}

// GetGlobal returns the module's global values.
func (s *Service) GetGlobal() GetGlobalReply {
	globals, err := s.sess.Globals()
	if err != nil {
		return GetGlobalReply{Status: StatusNOK, ErrorReason: err.Error()}
	}
	return GetGlobalReply{Status: StatusOK, Globals: payloadsFromValues(globals)}
}

// GetValueStack returns the operand stack, bottom first.
func (s *Service) GetValueStack() GetValueStackReply {
	vals, err := s.sess.ValueStack()
	if err != nil {
		return GetValueStackReply{Status: StatusNOK, ErrorReason: err.Error()}
	}
	return GetValueStackReply{Status: StatusOK, Values: payloadsFromValues(vals)}
}

// GetCallStack returns the call stack, innermost first, with debug names
// when the module carries a name section.
func (s *Service) GetCallStack() GetCallStackReply {
	bt, err := s.sess.Backtrace()
	if err != nil {
		return GetCallStackReply{Status: StatusNOK, ErrorReason: err.Error()}
	}
	mod := s.sess.Module()
	stack := make([]StackEntry, len(bt))
	for i, pos := range bt {
		stack[i] = StackEntry{
			FuncIndex:  pos.FuncIndex,
			InstrIndex: pos.InstrIndex,
			FuncName:   mod.FuncName(pos.FuncIndex),
		}
	}
	return GetCallStackReply{Status: StatusOK, Stack: stack}
}

// GetMemory returns length bytes of linear memory at offset.
func (s *Service) GetMemory(offset, length uint32) GetMemoryReply {
	data, err := s.sess.MemoryBytes(offset, length)
	if err != nil {
		return GetMemoryReply{Status: StatusNOK, ErrorReason: err.Error()}
	}
	return GetMemoryReply{Status: StatusOK, Data: data}
}

// AddBreakpoint registers a breakpoint and returns its stable index.
func (s *Service) AddBreakpoint(funcIndex, instrIndex uint32) AddBreakpointReply {
	idx := s.sess.AddBreakpoint(vm.CodePosition{
		FuncIndex:  funcIndex,
		InstrIndex: instrIndex,
	})
	return AddBreakpointReply{Status: StatusOK, Index: idx}
}

// DeleteBreakpoint removes a breakpoint by index.
func (s *Service) DeleteBreakpoint(index uint32) NormalReply {
	if err := s.sess.DeleteBreakpoint(index); err != nil {
		return failure(err)
	}
	return NormalReply{Status: StatusOK}
}

// ListBreakpoints returns all registered breakpoints ordered by index.
func (s *Service) ListBreakpoints() ListBreakpointsReply {
	bps := s.sess.ListBreakpoints()
	entries := make([]BreakpointEntry, len(bps))
	for i, bp := range bps {
		entries[i] = BreakpointEntry{
			Index:      bp.Index,
			FuncIndex:  bp.Position.FuncIndex,
			InstrIndex: bp.Position.InstrIndex,
		}
	}
	return ListBreakpointsReply{Status: StatusOK, Breakpoints: entries}
}

// ClearBreakpoints removes all breakpoints.
func (s *Service) ClearBreakpoints() NormalReply {
	s.sess.ClearBreakpoints()
	return NormalReply{Status: StatusOK}
}
