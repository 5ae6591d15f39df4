package debugger

import (
	"sort"
	"sync"

	"github.com/wippyai/wasm-debugger/errors"
	"github.com/wippyai/wasm-debugger/vm"
)

// Breakpoint is a registered code position with its stable handle.
type Breakpoint struct {
	Index    uint32
	Position vm.CodePosition
}

// Breakpoints is an indexed set of code positions at which execution
// pauses. Indices are allocated monotonically and never reused for the
// lifetime of the table, so a deleted handle can never alias a live
// breakpoint. Duplicate positions are allowed; each gets its own index.
type Breakpoints struct {
	mu     sync.Mutex
	next   uint32
	byIdx  map[uint32]vm.CodePosition
	refcnt map[vm.CodePosition]int
}

// NewBreakpoints creates an empty breakpoint table.
func NewBreakpoints() *Breakpoints {
	return &Breakpoints{
		byIdx:  make(map[uint32]vm.CodePosition),
		refcnt: make(map[vm.CodePosition]int),
	}
}

// Add registers a breakpoint at pos and returns its index.
func (b *Breakpoints) Add(pos vm.CodePosition) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := b.next
	b.next++
	b.byIdx[idx] = pos
	b.refcnt[pos]++
	return idx
}

// Delete removes the breakpoint with the given index.
func (b *Breakpoints) Delete(index uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	pos, ok := b.byIdx[index]
	if !ok {
		return errors.NotFound(errors.PhaseBreakpoint, "breakpoint %d does not exist", index)
	}
	delete(b.byIdx, index)
	if b.refcnt[pos] <= 1 {
		delete(b.refcnt, pos)
	} else {
		b.refcnt[pos]--
	}
	return nil
}

// Hits reports whether any breakpoint is registered at pos.
func (b *Breakpoints) Hits(pos vm.CodePosition) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refcnt[pos] > 0
}

// List returns all breakpoints ordered by index.
func (b *Breakpoints) List() []Breakpoint {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Breakpoint, 0, len(b.byIdx))
	for idx, pos := range b.byIdx {
		out = append(out, Breakpoint{Index: idx, Position: pos})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Clear removes all breakpoints. Allocated indices are not reused.
func (b *Breakpoints) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byIdx = make(map[uint32]vm.CodePosition)
	b.refcnt = make(map[vm.CodePosition]int)
}

// Len returns the number of registered breakpoints.
func (b *Breakpoints) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.byIdx)
}
