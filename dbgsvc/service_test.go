package dbgsvc_test

import (
	"testing"

	"github.com/wippyai/wasm-debugger/dbgsvc"
	"github.com/wippyai/wasm-debugger/debugger"
	"github.com/wippyai/wasm-debugger/wat"
)

const addSrc = `(module
	(func (export "main") (result i32)
		i32.const 40
		i32.const 2
		i32.add))`

func newService(t *testing.T, src string) *dbgsvc.Service {
	t.Helper()
	bin, err := wat.Compile(src)
	if err != nil {
		t.Fatalf("wat.Compile: %v", err)
	}
	sess := debugger.New(nil)
	if err := sess.LoadBinary(bin); err != nil {
		t.Fatalf("LoadBinary: %v", err)
	}
	return dbgsvc.New(sess, nil)
}

func TestRunCodeFinishStatus(t *testing.T) {
	svc := newService(t, addSrc)
	reply := svc.RunCode(debugger.ModeStart)
	if reply.Status != dbgsvc.StatusFinish {
		t.Fatalf("status = %s (%s), want FINISH", reply.Status, reply.ErrorReason)
	}

	vs := svc.GetValueStack()
	if vs.Status != dbgsvc.StatusOK {
		t.Fatalf("value stack: %s", vs.ErrorReason)
	}
	if len(vs.Values) != 1 || vs.Values[0].Type != "i32" || vs.Values[0].Bits != 42 {
		t.Errorf("values = %+v, want one i32 42", vs.Values)
	}
}

func TestRunCodePauseStatus(t *testing.T) {
	svc := newService(t, addSrc)
	bp := svc.AddBreakpoint(0, 1)
	if bp.Status != dbgsvc.StatusOK {
		t.Fatalf("add breakpoint: %s", bp.ErrorReason)
	}
	reply := svc.RunCode(debugger.ModeStart)
	if reply.Status != dbgsvc.StatusOK {
		t.Fatalf("status = %s, want OK at breakpoint", reply.Status)
	}

	cs := svc.GetCallStack()
	if cs.Status != dbgsvc.StatusOK || len(cs.Stack) != 1 {
		t.Fatalf("call stack reply: %+v", cs)
	}
	if cs.Stack[0].InstrIndex != 1 || cs.Stack[0].FuncName != "main" {
		t.Errorf("top frame = %+v, want main@1", cs.Stack[0])
	}
}

func TestInvalidOperationsReturnNOK(t *testing.T) {
	svc := newService(t, addSrc)

	if reply := svc.GetValueStack(); reply.Status != dbgsvc.StatusNOK || reply.ErrorReason == "" {
		t.Errorf("value stack before start: %+v, want NOK with reason", reply)
	}
	if reply := svc.DeleteBreakpoint(99); reply.Status != dbgsvc.StatusNOK {
		t.Errorf("delete missing breakpoint: %+v, want NOK", reply)
	}
	if reply := svc.RunCode(debugger.ModeStepOut); reply.Status != dbgsvc.StatusNOK {
		t.Errorf("step out from ready: %+v, want NOK", reply)
	}
	if reply := svc.LoadModule("/does/not/exist.wasm"); reply.Status != dbgsvc.StatusNOK {
		t.Errorf("load missing file: %+v, want NOK", reply)
	}
}

func TestBreakpointLifecycleReplies(t *testing.T) {
	svc := newService(t, addSrc)
	a := svc.AddBreakpoint(0, 0)
	b := svc.AddBreakpoint(0, 2)
	if a.Index != 0 || b.Index != 1 {
		t.Fatalf("indices = %d, %d", a.Index, b.Index)
	}

	list := svc.ListBreakpoints()
	if len(list.Breakpoints) != 2 {
		t.Fatalf("list = %+v", list.Breakpoints)
	}
	if list.Breakpoints[1].InstrIndex != 2 {
		t.Errorf("second breakpoint = %+v", list.Breakpoints[1])
	}

	if reply := svc.DeleteBreakpoint(a.Index); reply.Status != dbgsvc.StatusOK {
		t.Fatalf("delete: %s", reply.ErrorReason)
	}
	if reply := svc.DeleteBreakpoint(a.Index); reply.Status != dbgsvc.StatusNOK {
		t.Error("double delete should be NOK")
	}
	if reply := svc.ClearBreakpoints(); reply.Status != dbgsvc.StatusOK {
		t.Fatal("clear failed")
	}
	if got := svc.ListBreakpoints(); len(got.Breakpoints) != 0 {
		t.Errorf("list after clear = %+v", got.Breakpoints)
	}
}

func TestGetMemoryReply(t *testing.T) {
	svc := newService(t, `(module
		(memory 1)
		(data (i32.const 4) "\2a\00")
		(func (export "main")
			nop))`)
	if reply := svc.RunCode(debugger.ModeStep); reply.Status != dbgsvc.StatusOK {
		t.Fatalf("step: %s", reply.ErrorReason)
	}
	mem := svc.GetMemory(4, 2)
	if mem.Status != dbgsvc.StatusOK {
		t.Fatalf("get memory: %s", mem.ErrorReason)
	}
	if mem.Data[0] != 0x2A || mem.Data[1] != 0x00 {
		t.Errorf("memory = % x, want 2a 00", mem.Data)
	}

	if reply := svc.GetMemory(70000, 16); reply.Status != dbgsvc.StatusNOK {
		t.Error("out of bounds read should be NOK")
	}
}

type doublingExecutor struct {
	calls []*dbgsvc.ImportRequest
}

func (d *doublingExecutor) RunImportFunction(req *dbgsvc.ImportRequest) (*dbgsvc.ImportReply, error) {
	d.calls = append(d.calls, req)
	ret := dbgsvc.ValuePayload{Type: "i32", Bits: req.Args[0].Bits * 2}
	return &dbgsvc.ImportReply{Return: &ret}, nil
}

func TestHostExecutorRoundTrip(t *testing.T) {
	svc := newService(t, `(module
		(import "env" "double" (func $double (param i32) (result i32)))
		(func (export "main") (result i32)
			i32.const 21
			call $double))`)

	exec := &doublingExecutor{}
	svc.SetHostExecutor(exec)

	reply := svc.RunCode(debugger.ModeStart)
	if reply.Status != dbgsvc.StatusFinish {
		t.Fatalf("status = %s (%s), want FINISH", reply.Status, reply.ErrorReason)
	}
	if len(exec.calls) != 1 {
		t.Fatalf("executor called %d times", len(exec.calls))
	}
	req := exec.calls[0]
	if req.Module != "env" || req.Name != "double" || req.ResultType != "i32" {
		t.Errorf("request = %+v", req)
	}
	if len(req.Args) != 1 || req.Args[0].Bits != 21 {
		t.Errorf("args = %+v", req.Args)
	}

	vs := svc.GetValueStack()
	if len(vs.Values) != 1 || vs.Values[0].Bits != 42 {
		t.Errorf("result stack = %+v, want i32 42", vs.Values)
	}
}

func TestGetLocalReply(t *testing.T) {
	svc := newService(t, `(module
		(func (export "main") (param $x i32)
			local.get $x
			drop))`)
	// The session zero-fills entry arguments.
	if reply := svc.RunCode(debugger.ModeStep); reply.Status != dbgsvc.StatusOK {
		t.Fatalf("step: %s", reply.ErrorReason)
	}
	reply := svc.GetLocal(0)
	if reply.Status != dbgsvc.StatusOK {
		t.Fatalf("get local: %s", reply.ErrorReason)
	}
	if reply.FuncIndex != 0 || len(reply.Locals) != 1 {
		t.Fatalf("reply = %+v", reply)
	}
	if reply.Locals[0].Value.Type != "i32" || reply.Locals[0].Value.Bits != 0 {
		t.Errorf("local = %+v, want zero-filled i32", reply.Locals[0])
	}

	if bad := svc.GetLocal(5); bad.Status != dbgsvc.StatusNOK {
		t.Error("out of range frame should be NOK")
	}
}
