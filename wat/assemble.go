package wat

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wippyai/wasm-debugger/wasm"
)

// mnemonics maps instruction names to opcodes, inverted from the binary
// decoder's opcode table so the two stay in sync.
var mnemonics = func() map[string]byte {
	m := make(map[string]byte)
	for op := 0; op < 256; op++ {
		if name, ok := wasm.OpcodeName(byte(op)); ok {
			m[name] = byte(op)
		}
	}
	return m
}()

// naturalAlign is the log2 of each memory instruction's natural
// alignment, used when no align= annotation is given.
var naturalAlign = map[byte]uint32{
	wasm.OpI32Load: 2, wasm.OpI64Load: 3, wasm.OpF32Load: 2, wasm.OpF64Load: 3,
	wasm.OpI32Load8S: 0, wasm.OpI32Load8U: 0, wasm.OpI32Load16S: 1, wasm.OpI32Load16U: 1,
	wasm.OpI64Load8S: 0, wasm.OpI64Load8U: 0, wasm.OpI64Load16S: 1, wasm.OpI64Load16U: 1,
	wasm.OpI64Load32S: 2, wasm.OpI64Load32U: 2,
	wasm.OpI32Store: 2, wasm.OpI64Store: 3, wasm.OpF32Store: 2, wasm.OpF64Store: 3,
	wasm.OpI32Store8: 0, wasm.OpI32Store16: 1,
	wasm.OpI64Store8: 0, wasm.OpI64Store16: 1, wasm.OpI64Store32: 2,
}

type assembler struct {
	p      *parser
	fn     *function
	toks   []token
	pos    int
	labels []string // open block labels, innermost last
	b      buffer
}

// assemble translates a function's flat-form body tokens into binary
// code, terminated by the implicit function-level end.
func (p *parser) assemble(fn *function) ([]byte, error) {
	a := &assembler{p: p, fn: fn, toks: fn.body}
	for a.pos < len(a.toks) {
		if err := a.instruction(); err != nil {
			return nil, err
		}
	}
	a.b.byte(wasm.OpEnd)
	return a.b.data, nil
}

func (a *assembler) errf(format string, args ...any) error {
	line := 0
	if a.pos < len(a.toks) {
		line = a.toks[a.pos].line
	} else if len(a.toks) > 0 {
		line = a.toks[len(a.toks)-1].line
	}
	return fmt.Errorf("line %d: %s", line, fmt.Sprintf(format, args...))
}

func (a *assembler) next() (token, bool) {
	if a.pos >= len(a.toks) {
		return token{}, false
	}
	t := a.toks[a.pos]
	a.pos++
	return t, true
}

func (a *assembler) nextAtom(what string) (string, error) {
	t, ok := a.next()
	if !ok || t.kind != tokAtom {
		return "", a.errf("expected %s", what)
	}
	return t.text, nil
}

func (a *assembler) peekAtom() (string, bool) {
	if a.pos >= len(a.toks) || a.toks[a.pos].kind != tokAtom {
		return "", false
	}
	return a.toks[a.pos].text, true
}

func (a *assembler) instruction() error {
	name, err := a.nextAtom("instruction")
	if err != nil {
		return err
	}
	op, ok := mnemonics[name]
	if !ok {
		return a.errf("unknown instruction %q", name)
	}

	switch op {
	case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
		return a.emitBlock(op)

	case wasm.OpElse:
		a.b.byte(op)
		return nil

	case wasm.OpEnd:
		if len(a.labels) > 0 {
			a.labels = a.labels[:len(a.labels)-1]
		}
		a.b.byte(op)
		return nil

	case wasm.OpBr, wasm.OpBrIf:
		depth, err := a.labelDepth()
		if err != nil {
			return err
		}
		a.b.byte(op)
		a.b.uleb(uint64(depth))
		return nil

	case wasm.OpBrTable:
		var depths []uint32
		for {
			if s, ok := a.peekAtom(); !ok || !looksLikeIndex(s) {
				break
			}
			depth, err := a.labelDepth()
			if err != nil {
				return err
			}
			depths = append(depths, depth)
		}
		if len(depths) == 0 {
			return a.errf("br_table needs at least a default label")
		}
		a.b.byte(op)
		a.b.uleb(uint64(len(depths) - 1))
		for _, d := range depths {
			a.b.uleb(uint64(d))
		}
		return nil

	case wasm.OpCall:
		ref, err := a.nextAtom("function reference")
		if err != nil {
			return err
		}
		idx, err := a.p.resolveFunc(ref)
		if err != nil {
			return a.errf("%v", err)
		}
		a.b.byte(op)
		a.b.uleb(uint64(idx))
		return nil

	case wasm.OpCallIndirect:
		if !a.p.atListIn(a.toks, a.pos, "type") {
			return a.errf("call_indirect requires a (type ...) annotation")
		}
		a.pos += 2 // ( type
		ref, err := a.nextAtom("type reference")
		if err != nil {
			return err
		}
		var typeIdx uint32
		if strings.HasPrefix(ref, "$") {
			idx, ok := a.p.m.typeNames[ref]
			if !ok {
				return a.errf("unknown type %s", ref)
			}
			typeIdx = idx
		} else {
			n, err := strconv.ParseUint(ref, 10, 32)
			if err != nil {
				return a.errf("bad type index %q", ref)
			}
			typeIdx = uint32(n)
		}
		if a.pos >= len(a.toks) || a.toks[a.pos].kind != tokRParen {
			return a.errf("expected )")
		}
		a.pos++
		a.b.byte(op)
		a.b.uleb(uint64(typeIdx))
		a.b.byte(0x00) // table index
		return nil

	case wasm.OpLocalGet, wasm.OpLocalSet, wasm.OpLocalTee:
		ref, err := a.nextAtom("local reference")
		if err != nil {
			return err
		}
		idx, err := a.resolveLocal(ref)
		if err != nil {
			return err
		}
		a.b.byte(op)
		a.b.uleb(uint64(idx))
		return nil

	case wasm.OpGlobalGet, wasm.OpGlobalSet:
		ref, err := a.nextAtom("global reference")
		if err != nil {
			return err
		}
		idx, err := a.p.resolveGlobal(ref)
		if err != nil {
			return a.errf("%v", err)
		}
		a.b.byte(op)
		a.b.uleb(uint64(idx))
		return nil

	case wasm.OpI32Const:
		lit, err := a.nextAtom("i32 literal")
		if err != nil {
			return err
		}
		v, err := parseI32(lit)
		if err != nil {
			return a.errf("%v", err)
		}
		a.b.byte(op)
		a.b.sleb(int64(v))
		return nil

	case wasm.OpI64Const:
		lit, err := a.nextAtom("i64 literal")
		if err != nil {
			return err
		}
		v, err := parseI64(lit)
		if err != nil {
			return a.errf("%v", err)
		}
		a.b.byte(op)
		a.b.sleb(v)
		return nil

	case wasm.OpF32Const:
		lit, err := a.nextAtom("f32 literal")
		if err != nil {
			return err
		}
		v, err := parseFloat(lit)
		if err != nil {
			return a.errf("%v", err)
		}
		a.b.byte(op)
		a.b.f32(float32(v))
		return nil

	case wasm.OpF64Const:
		lit, err := a.nextAtom("f64 literal")
		if err != nil {
			return err
		}
		v, err := parseFloat(lit)
		if err != nil {
			return a.errf("%v", err)
		}
		a.b.byte(op)
		a.b.f64(v)
		return nil

	case wasm.OpMemorySize, wasm.OpMemoryGrow:
		a.b.byte(op)
		a.b.byte(0x00) // memory index
		return nil
	}

	if align, isMem := naturalAlign[op]; isMem {
		return a.emitMemArg(op, align)
	}

	// Everything else carries no immediate.
	a.b.byte(op)
	return nil
}

func (a *assembler) emitBlock(op byte) error {
	label := ""
	if s, ok := a.peekAtom(); ok && strings.HasPrefix(s, "$") {
		label = s
		a.pos++
	}

	blockType := byte(0x40) // void
	if a.p.atListIn(a.toks, a.pos, "result") {
		a.pos += 2
		s, err := a.nextAtom("result type")
		if err != nil {
			return err
		}
		vt, ok := valTypeByte(s)
		if !ok {
			return a.errf("unknown value type %q", s)
		}
		blockType = vt
		if a.pos >= len(a.toks) || a.toks[a.pos].kind != tokRParen {
			return a.errf("expected )")
		}
		a.pos++
	}

	a.labels = append(a.labels, label)
	a.b.byte(op)
	a.b.byte(blockType)
	return nil
}

// labelDepth consumes a branch target and resolves it to a relative
// depth, where 0 is the innermost open block.
func (a *assembler) labelDepth() (uint32, error) {
	s, err := a.nextAtom("branch target")
	if err != nil {
		return 0, err
	}
	if strings.HasPrefix(s, "$") {
		for i := len(a.labels) - 1; i >= 0; i-- {
			if a.labels[i] == s {
				return uint32(len(a.labels) - 1 - i), nil
			}
		}
		return 0, a.errf("unknown label %s", s)
	}
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, a.errf("bad label %q", s)
	}
	return uint32(n), nil
}

func looksLikeIndex(s string) bool {
	if strings.HasPrefix(s, "$") {
		return true
	}
	return len(s) > 0 && s[0] >= '0' && s[0] <= '9'
}

func (a *assembler) resolveLocal(ref string) (uint32, error) {
	if strings.HasPrefix(ref, "$") {
		idx, ok := a.fn.localNames[ref]
		if !ok {
			return 0, a.errf("unknown local %s", ref)
		}
		return idx, nil
	}
	n, err := strconv.ParseUint(ref, 10, 32)
	if err != nil {
		return 0, a.errf("bad local index %q", ref)
	}
	return uint32(n), nil
}

// emitMemArg handles the optional offset= and align= annotations on
// load/store instructions. align is given in bytes and encoded as log2.
func (a *assembler) emitMemArg(op byte, defaultAlign uint32) error {
	var offset uint64
	align := defaultAlign

	for {
		s, ok := a.peekAtom()
		if !ok {
			break
		}
		switch {
		case strings.HasPrefix(s, "offset="):
			v, err := strconv.ParseUint(strings.TrimPrefix(s, "offset="), 0, 32)
			if err != nil {
				return a.errf("bad offset %q", s)
			}
			offset = v
			a.pos++
		case strings.HasPrefix(s, "align="):
			v, err := strconv.ParseUint(strings.TrimPrefix(s, "align="), 0, 32)
			if err != nil || v == 0 || v&(v-1) != 0 {
				return a.errf("bad align %q", s)
			}
			align = log2(uint32(v))
			a.pos++
		default:
			goto done
		}
	}
done:
	a.b.byte(op)
	a.b.uleb(uint64(align))
	a.b.uleb(offset)
	return nil
}

func log2(v uint32) uint32 {
	var n uint32
	for v > 1 {
		v >>= 1
		n++
	}
	return n
}

// atListIn reports whether toks[pos] starts a "(" head list.
func (p *parser) atListIn(toks []token, pos int, head string) bool {
	if pos+1 >= len(toks) {
		return false
	}
	return toks[pos].kind == tokLParen &&
		toks[pos+1].kind == tokAtom && toks[pos+1].text == head
}
