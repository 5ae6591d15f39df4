package debugger

import (
	"testing"

	"github.com/wippyai/wasm-debugger/errors"
	"github.com/wippyai/wasm-debugger/vm"
)

func TestBreakpointIndicesMonotonic(t *testing.T) {
	bps := NewBreakpoints()
	a := bps.Add(vm.CodePosition{FuncIndex: 0, InstrIndex: 1})
	b := bps.Add(vm.CodePosition{FuncIndex: 0, InstrIndex: 2})
	if a != 0 || b != 1 {
		t.Fatalf("indices = %d, %d, want 0, 1", a, b)
	}
	if err := bps.Delete(a); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	c := bps.Add(vm.CodePosition{FuncIndex: 0, InstrIndex: 3})
	if c != 2 {
		t.Errorf("index after delete = %d, want 2 (never reused)", c)
	}
}

func TestBreakpointDoubleDelete(t *testing.T) {
	bps := NewBreakpoints()
	idx := bps.Add(vm.CodePosition{FuncIndex: 1, InstrIndex: 4})
	if err := bps.Delete(idx); err != nil {
		t.Fatalf("first Delete: %v", err)
	}
	err := bps.Delete(idx)
	if err == nil {
		t.Fatal("second Delete should fail")
	}
	if !errors.IsKind(err, errors.KindNotFound) {
		t.Errorf("err = %v, want not_found", err)
	}
}

func TestBreakpointDuplicatePositions(t *testing.T) {
	bps := NewBreakpoints()
	pos := vm.CodePosition{FuncIndex: 2, InstrIndex: 7}
	a := bps.Add(pos)
	b := bps.Add(pos)
	if a == b {
		t.Fatal("duplicate positions must get distinct indices")
	}
	if !bps.Hits(pos) {
		t.Fatal("Hits = false with two registered breakpoints")
	}
	if err := bps.Delete(a); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !bps.Hits(pos) {
		t.Error("Hits = false while one breakpoint remains")
	}
	if err := bps.Delete(b); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if bps.Hits(pos) {
		t.Error("Hits = true after deleting all breakpoints at position")
	}
}

func TestBreakpointListOrderedAndClear(t *testing.T) {
	bps := NewBreakpoints()
	bps.Add(vm.CodePosition{FuncIndex: 0, InstrIndex: 9})
	bps.Add(vm.CodePosition{FuncIndex: 0, InstrIndex: 3})
	bps.Add(vm.CodePosition{FuncIndex: 1, InstrIndex: 0})

	list := bps.List()
	if len(list) != 3 {
		t.Fatalf("len = %d, want 3", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i-1].Index >= list[i].Index {
			t.Fatalf("list not ordered by index: %v", list)
		}
	}

	bps.Clear()
	if bps.Len() != 0 {
		t.Errorf("Len after Clear = %d", bps.Len())
	}
	if next := bps.Add(vm.CodePosition{}); next != 3 {
		t.Errorf("index after Clear = %d, want 3 (still monotonic)", next)
	}
}
