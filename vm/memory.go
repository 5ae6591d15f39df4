package vm

import (
	"encoding/binary"

	"github.com/wippyai/wasm-debugger/errors"
	"github.com/wippyai/wasm-debugger/wasm"
)

// Memory is the module's linear memory.
type Memory struct {
	data    []byte
	maxPage uint32
	hasMax  bool
}

func newMemory(t wasm.MemoryType) *Memory {
	return &Memory{
		data:    make([]byte, int(t.Limits.Min)*wasm.PageSize),
		maxPage: t.Limits.Max,
		hasMax:  t.Limits.HasMax,
	}
}

// Size returns the memory size in bytes.
func (m *Memory) Size() uint32 {
	return uint32(len(m.data))
}

// Pages returns the memory size in 64KiB pages.
func (m *Memory) Pages() uint32 {
	return uint32(len(m.data) / wasm.PageSize)
}

// Snapshot returns a copy of the full memory contents.
func (m *Memory) Snapshot() []byte {
	cp := make([]byte, len(m.data))
	copy(cp, m.data)
	return cp
}

// Replace overwrites the entire memory contents wholesale. The new
// contents must not change the memory's size.
func (m *Memory) Replace(data []byte) error {
	if len(data) != len(m.data) {
		return errors.New(errors.PhaseImport, errors.KindInvalidValue).
			Detail("memory replacement size %d does not match current size %d", len(data), len(m.data)).
			Build()
	}
	copy(m.data, data)
	return nil
}

// Read returns a copy of length bytes at offset.
func (m *Memory) Read(offset, length uint32) ([]byte, error) {
	if !m.inBounds(offset, length) {
		return nil, errors.New(errors.PhaseInspect, errors.KindOutOfRange).
			Detail("memory read [%d, %d) exceeds size %d", offset, uint64(offset)+uint64(length), len(m.data)).
			Build()
	}
	cp := make([]byte, length)
	copy(cp, m.data[offset:])
	return cp, nil
}

func (m *Memory) inBounds(offset, length uint32) bool {
	return uint64(offset)+uint64(length) <= uint64(len(m.data))
}

// grow adds n pages and returns the previous page count, or -1 if the
// maximum would be exceeded.
func (m *Memory) grow(n uint32) int32 {
	prev := m.Pages()
	next := uint64(prev) + uint64(n)
	limit := uint64(65536)
	if m.hasMax && uint64(m.maxPage) < limit {
		limit = uint64(m.maxPage)
	}
	if next > limit {
		return -1
	}
	m.data = append(m.data, make([]byte, int(n)*wasm.PageSize)...)
	return int32(prev)
}

func (m *Memory) loadBytes(addr uint64, n uint32) ([]byte, bool) {
	if addr+uint64(n) > uint64(len(m.data)) {
		return nil, false
	}
	return m.data[addr : addr+uint64(n)], true
}

func (m *Memory) load32(addr uint64) (uint32, bool) {
	b, ok := m.loadBytes(addr, 4)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b), true
}

func (m *Memory) load64(addr uint64) (uint64, bool) {
	b, ok := m.loadBytes(addr, 8)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint64(b), true
}

func (m *Memory) store(addr uint64, b []byte) bool {
	if addr+uint64(len(b)) > uint64(len(m.data)) {
		return false
	}
	copy(m.data[addr:], b)
	return true
}
