package wat

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/wippyai/wasm-debugger/wasm"
)

// buffer is a minimal binary writer for the WASM encoding primitives.
type buffer struct {
	data []byte
}

func (b *buffer) byte(v byte) {
	b.data = append(b.data, v)
}

func (b *buffer) raw(v []byte) {
	b.data = append(b.data, v...)
}

// uleb writes an unsigned LEB128 integer.
func (b *buffer) uleb(v uint64) {
	for {
		c := byte(v & 0x7F)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		b.data = append(b.data, c)
		if v == 0 {
			return
		}
	}
}

// sleb writes a signed LEB128 integer.
func (b *buffer) sleb(v int64) {
	for {
		c := byte(v & 0x7F)
		v >>= 7
		if (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0) {
			b.data = append(b.data, c)
			return
		}
		b.data = append(b.data, c|0x80)
	}
}

func (b *buffer) f32(v float32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], math.Float32bits(v))
	b.raw(tmp[:])
}

func (b *buffer) f64(v float64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v))
	b.raw(tmp[:])
}

// name writes a length-prefixed UTF-8 string.
func (b *buffer) name(s string) {
	b.uleb(uint64(len(s)))
	b.raw([]byte(s))
}

func (b *buffer) limits(lim limits) {
	if lim.hasMax {
		b.byte(0x01)
		b.uleb(uint64(lim.min))
		b.uleb(uint64(lim.max))
	} else {
		b.byte(0x00)
		b.uleb(uint64(lim.min))
	}
}

// section appends a size-prefixed section when its payload is non-empty.
func (b *buffer) section(id byte, payload []byte) {
	if len(payload) == 0 {
		return
	}
	b.byte(id)
	b.uleb(uint64(len(payload)))
	b.raw(payload)
}

// encode assembles all function bodies and emits the binary module.
func (p *parser) encode() ([]byte, error) {
	bodies := make([][]byte, len(p.m.funcs))
	for i, fn := range p.m.funcs {
		code, err := p.assemble(fn)
		if err != nil {
			return nil, fmt.Errorf("func %d: %w", i, err)
		}
		bodies[i] = code
	}

	var out buffer
	out.raw([]byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00})

	// Type section.
	if len(p.m.types) > 0 {
		var s buffer
		s.uleb(uint64(len(p.m.types)))
		for _, ft := range p.m.types {
			s.byte(0x60)
			s.uleb(uint64(len(ft.params)))
			s.raw(ft.params)
			s.uleb(uint64(len(ft.results)))
			s.raw(ft.results)
		}
		out.section(wasm.SectionType, s.data)
	}

	// Import section: functions first, then globals, matching index
	// space assignment.
	if len(p.m.importFuncs)+len(p.m.importGlobals) > 0 {
		var s buffer
		s.uleb(uint64(len(p.m.importFuncs) + len(p.m.importGlobals)))
		for _, imp := range p.m.importFuncs {
			s.name(imp.module)
			s.name(imp.name)
			s.byte(wasm.KindFunc)
			s.uleb(uint64(imp.typeIdx))
		}
		for _, imp := range p.m.importGlobals {
			s.name(imp.module)
			s.name(imp.name)
			s.byte(wasm.KindGlobal)
			s.byte(imp.valType)
			if imp.mutable {
				s.byte(0x01)
			} else {
				s.byte(0x00)
			}
		}
		out.section(wasm.SectionImport, s.data)
	}

	// Function section.
	if len(p.m.funcs) > 0 {
		var s buffer
		s.uleb(uint64(len(p.m.funcs)))
		for _, fn := range p.m.funcs {
			s.uleb(uint64(fn.typeIdx))
		}
		out.section(wasm.SectionFunction, s.data)
	}

	// Table section.
	if len(p.m.tables) > 0 {
		var s buffer
		s.uleb(uint64(len(p.m.tables)))
		for _, td := range p.m.tables {
			s.byte(byte(wasm.ValFuncRef))
			s.limits(td.lim)
		}
		out.section(wasm.SectionTable, s.data)
	}

	// Memory section.
	if len(p.m.memories) > 0 {
		var s buffer
		s.uleb(uint64(len(p.m.memories)))
		for _, md := range p.m.memories {
			s.limits(md.lim)
		}
		out.section(wasm.SectionMemory, s.data)
	}

	// Global section.
	if len(p.m.globals) > 0 {
		var s buffer
		s.uleb(uint64(len(p.m.globals)))
		for _, g := range p.m.globals {
			s.byte(g.valType)
			if g.mutable {
				s.byte(0x01)
			} else {
				s.byte(0x00)
			}
			s.raw(g.init)
			s.byte(wasm.OpEnd)
		}
		out.section(wasm.SectionGlobal, s.data)
	}

	// Export section: explicit export fields plus inline exports that
	// resolveExports already appended.
	exports, err := p.collectExports()
	if err != nil {
		return nil, err
	}
	if len(exports) > 0 {
		var s buffer
		s.uleb(uint64(len(exports)))
		for _, e := range exports {
			s.raw(e)
		}
		out.section(wasm.SectionExport, s.data)
	}

	// Start section.
	if p.m.start != "" {
		idx, err := p.resolveFunc(p.m.start)
		if err != nil {
			return nil, err
		}
		var s buffer
		s.uleb(uint64(idx))
		out.section(wasm.SectionStart, s.data)
	}

	// Element section.
	if len(p.m.elems) > 0 {
		var s buffer
		s.uleb(uint64(len(p.m.elems)))
		for _, e := range p.m.elems {
			s.byte(0x00) // active, table 0
			s.raw(e.offset)
			s.byte(wasm.OpEnd)
			s.uleb(uint64(len(e.funcs)))
			for _, ref := range e.funcs {
				idx, err := p.resolveFunc(ref)
				if err != nil {
					return nil, err
				}
				s.uleb(uint64(idx))
			}
		}
		out.section(wasm.SectionElement, s.data)
	}

	// Code section.
	if len(p.m.funcs) > 0 {
		var s buffer
		s.uleb(uint64(len(p.m.funcs)))
		for i, fn := range p.m.funcs {
			var body buffer
			encodeLocals(&body, fn.localTypes)
			body.raw(bodies[i])
			s.uleb(uint64(len(body.data)))
			s.raw(body.data)
		}
		out.section(wasm.SectionCode, s.data)
	}

	// Data section.
	if len(p.m.datas) > 0 {
		var s buffer
		s.uleb(uint64(len(p.m.datas)))
		for _, d := range p.m.datas {
			s.byte(0x00) // active, memory 0
			s.raw(d.offset)
			s.byte(wasm.OpEnd)
			s.uleb(uint64(len(d.bytes)))
			s.raw(d.bytes)
		}
		out.section(wasm.SectionData, s.data)
	}

	p.encodeNameSection(&out)
	return out.data, nil
}

// encodeNameSection emits a "name" custom section carrying function and
// local debug names taken from the source's $identifiers.
func (p *parser) encodeNameSection(out *buffer) {
	base := uint32(len(p.m.importFuncs))

	type namedFunc struct {
		idx  uint32
		name string
	}
	var funcNames []namedFunc
	for i, imp := range p.m.importFuncs {
		if imp.id != "" {
			funcNames = append(funcNames, namedFunc{uint32(i), strings.TrimPrefix(imp.id, "$")})
		}
	}
	for i, fn := range p.m.funcs {
		if fn.name != "" {
			funcNames = append(funcNames, namedFunc{base + uint32(i), strings.TrimPrefix(fn.name, "$")})
		}
	}

	type namedLocals struct {
		idx    uint32
		locals []namedFunc // reusing idx/name for local slots
	}
	var localNames []namedLocals
	for i, fn := range p.m.funcs {
		var locals []namedFunc
		for id, slot := range fn.localNames {
			locals = append(locals, namedFunc{slot, strings.TrimPrefix(id, "$")})
		}
		if len(locals) > 0 {
			sort.Slice(locals, func(a, b int) bool { return locals[a].idx < locals[b].idx })
			localNames = append(localNames, namedLocals{base + uint32(i), locals})
		}
	}

	if len(funcNames) == 0 && len(localNames) == 0 {
		return
	}

	var s buffer
	s.name("name")

	if len(funcNames) > 0 {
		var sub buffer
		sub.uleb(uint64(len(funcNames)))
		for _, nf := range funcNames {
			sub.uleb(uint64(nf.idx))
			sub.name(nf.name)
		}
		s.byte(0x01) // function names
		s.uleb(uint64(len(sub.data)))
		s.raw(sub.data)
	}

	if len(localNames) > 0 {
		var sub buffer
		sub.uleb(uint64(len(localNames)))
		for _, nl := range localNames {
			sub.uleb(uint64(nl.idx))
			sub.uleb(uint64(len(nl.locals)))
			for _, l := range nl.locals {
				sub.uleb(uint64(l.idx))
				sub.name(l.name)
			}
		}
		s.byte(0x02) // local names
		s.uleb(uint64(len(sub.data)))
		s.raw(sub.data)
	}

	out.section(wasm.SectionCustom, s.data)
}

// encodeLocals run-length encodes a function's declared local types.
func encodeLocals(b *buffer, types []byte) {
	type run struct {
		count uint32
		typ   byte
	}
	var runs []run
	for _, t := range types {
		if len(runs) > 0 && runs[len(runs)-1].typ == t {
			runs[len(runs)-1].count++
		} else {
			runs = append(runs, run{count: 1, typ: t})
		}
	}
	b.uleb(uint64(len(runs)))
	for _, r := range runs {
		b.uleb(uint64(r.count))
		b.byte(r.typ)
	}
}

func (p *parser) collectExports() ([][]byte, error) {
	out := make([][]byte, 0, len(p.m.exports))
	for _, e := range p.m.exports {
		var idx uint32
		var err error
		switch e.kind {
		case wasm.KindFunc:
			idx, err = p.resolveFunc(e.ref)
		case wasm.KindGlobal:
			idx, err = p.resolveGlobal(e.ref)
		default:
			// Single memory/table: $ids resolve to 0.
			if strings.HasPrefix(e.ref, "$") {
				idx = 0
			} else {
				n, perr := strconv.ParseUint(e.ref, 10, 32)
				if perr != nil {
					err = fmt.Errorf("bad export target %q", e.ref)
				}
				idx = uint32(n)
			}
		}
		if err != nil {
			return nil, err
		}
		var s buffer
		s.name(e.name)
		s.byte(e.kind)
		s.uleb(uint64(idx))
		out = append(out, s.data)
	}
	return out, nil
}
