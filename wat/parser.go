package wat

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/wippyai/wasm-debugger/wasm"
)

type funcType struct {
	params  []byte
	results []byte
}

func (ft funcType) equal(o funcType) bool {
	if len(ft.params) != len(o.params) || len(ft.results) != len(o.results) {
		return false
	}
	for i := range ft.params {
		if ft.params[i] != o.params[i] {
			return false
		}
	}
	for i := range ft.results {
		if ft.results[i] != o.results[i] {
			return false
		}
	}
	return true
}

type limits struct {
	min    uint32
	max    uint32
	hasMax bool
}

type function struct {
	name       string
	typeIdx    uint32
	localTypes []byte            // declared locals, after params
	localNames map[string]uint32 // params and locals by $id
	numParams  uint32
	body       []token // unassembled body tokens
	exports    []string
}

type importedFunc struct {
	module, name, id string
	typeIdx          uint32
}

type importedGlobal struct {
	module, name, id string
	valType          byte
	mutable          bool
}

type globalDef struct {
	id      string
	valType byte
	mutable bool
	init    []byte
	exports []string
}

type memoryDef struct {
	id      string
	lim     limits
	exports []string
}

type tableDef struct {
	id      string
	lim     limits
	exports []string
}

type exportDef struct {
	name string
	kind byte
	ref  string // $id or numeric index, resolved late
}

type elemDef struct {
	offset []byte
	funcs  []string // $ids or numeric indices
}

type dataDef struct {
	offset []byte
	bytes  []byte
}

type moduleBuilder struct {
	types     []funcType
	typeNames map[string]uint32

	importFuncs   []importedFunc
	importGlobals []importedGlobal
	funcs         []*function
	globals       []globalDef
	memories      []memoryDef
	tables        []tableDef
	exports       []exportDef
	elems         []elemDef
	datas         []dataDef
	start         string

	funcNames   map[string]uint32
	globalNames map[string]uint32
}

type parser struct {
	toks []token
	pos  int
	m    *moduleBuilder
}

// Compile translates WAT source into a binary WebAssembly module.
func Compile(source string) ([]byte, error) {
	toks, err := tokenize(source)
	if err != nil {
		return nil, err
	}
	p := &parser{
		toks: toks,
		m: &moduleBuilder{
			typeNames:   map[string]uint32{},
			funcNames:   map[string]uint32{},
			globalNames: map[string]uint32{},
		},
	}
	if err := p.parseModule(); err != nil {
		return nil, err
	}
	p.assignIndices()
	for _, fn := range p.m.funcs {
		if err := p.resolveExports(fn); err != nil {
			return nil, err
		}
	}
	p.resolveInlineExports()
	return p.encode()
}

func (p *parser) errf(format string, args ...any) error {
	line := 0
	if p.pos < len(p.toks) {
		line = p.toks[p.pos].line
	} else if len(p.toks) > 0 {
		line = p.toks[len(p.toks)-1].line
	}
	return fmt.Errorf("line %d: %s", line, fmt.Sprintf(format, args...))
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) next() (token, bool) {
	t, ok := p.peek()
	if ok {
		p.pos++
	}
	return t, ok
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t, ok := p.next()
	if !ok || t.kind != kind {
		return token{}, p.errf("expected %s", what)
	}
	return t, nil
}

func (p *parser) expectAtom(text string) error {
	t, ok := p.next()
	if !ok || t.kind != tokAtom || t.text != text {
		return p.errf("expected %q", text)
	}
	return nil
}

// atList reports whether the next tokens are "(" head.
func (p *parser) atList(head string) bool {
	if p.pos+1 >= len(p.toks) {
		return false
	}
	return p.toks[p.pos].kind == tokLParen &&
		p.toks[p.pos+1].kind == tokAtom && p.toks[p.pos+1].text == head
}

// skipList advances past a balanced list starting at the current "(".
func (p *parser) skipList() error {
	depth := 0
	for {
		t, ok := p.next()
		if !ok {
			return p.errf("unbalanced parentheses")
		}
		switch t.kind {
		case tokLParen:
			depth++
		case tokRParen:
			depth--
			if depth == 0 {
				return nil
			}
		}
	}
}

func (p *parser) parseModule() error {
	if _, err := p.expect(tokLParen, "("); err != nil {
		return err
	}
	if err := p.expectAtom("module"); err != nil {
		return err
	}
	// Optional module $id, recorded nowhere.
	if t, ok := p.peek(); ok && t.kind == tokAtom && strings.HasPrefix(t.text, "$") {
		p.next()
	}

	for {
		t, ok := p.peek()
		if !ok {
			return p.errf("unterminated module")
		}
		if t.kind == tokRParen {
			p.next()
			return nil
		}
		if err := p.parseField(); err != nil {
			return err
		}
	}
}

func (p *parser) parseField() error {
	if _, err := p.expect(tokLParen, "("); err != nil {
		return err
	}
	head, err := p.expect(tokAtom, "field keyword")
	if err != nil {
		return err
	}
	switch head.text {
	case "type":
		return p.parseTypeField()
	case "import":
		return p.parseImportField()
	case "func":
		return p.parseFuncField()
	case "table":
		return p.parseTableField()
	case "memory":
		return p.parseMemoryField()
	case "global":
		return p.parseGlobalField()
	case "export":
		return p.parseExportField()
	case "start":
		return p.parseStartField()
	case "elem":
		return p.parseElemField()
	case "data":
		return p.parseDataField()
	default:
		return p.errf("unknown module field %q", head.text)
	}
}

func (p *parser) optionalID() string {
	if t, ok := p.peek(); ok && t.kind == tokAtom && strings.HasPrefix(t.text, "$") {
		p.next()
		return t.text
	}
	return ""
}

func valTypeByte(name string) (byte, bool) {
	switch name {
	case "i32":
		return byte(wasm.ValI32), true
	case "i64":
		return byte(wasm.ValI64), true
	case "f32":
		return byte(wasm.ValF32), true
	case "f64":
		return byte(wasm.ValF64), true
	}
	return 0, false
}

// parseParamsResults consumes (param ...) and (result ...) lists,
// registering param names into names when non-nil.
func (p *parser) parseParamsResults(names map[string]uint32) (funcType, error) {
	var ft funcType
	for p.atList("param") {
		p.next() // (
		p.next() // param
		if id := p.optionalID(); id != "" {
			t, err := p.expect(tokAtom, "value type")
			if err != nil {
				return ft, err
			}
			vt, ok := valTypeByte(t.text)
			if !ok {
				return ft, p.errf("unknown value type %q", t.text)
			}
			if names != nil {
				names[id] = uint32(len(ft.params))
			}
			ft.params = append(ft.params, vt)
		} else {
			for {
				t, ok := p.peek()
				if !ok || t.kind != tokAtom {
					break
				}
				vt, valid := valTypeByte(t.text)
				if !valid {
					return ft, p.errf("unknown value type %q", t.text)
				}
				p.next()
				ft.params = append(ft.params, vt)
			}
		}
		if _, err := p.expect(tokRParen, ")"); err != nil {
			return ft, err
		}
	}
	for p.atList("result") {
		p.next()
		p.next()
		for {
			t, ok := p.peek()
			if !ok || t.kind != tokAtom {
				break
			}
			vt, valid := valTypeByte(t.text)
			if !valid {
				return ft, p.errf("unknown value type %q", t.text)
			}
			p.next()
			ft.results = append(ft.results, vt)
		}
		if _, err := p.expect(tokRParen, ")"); err != nil {
			return ft, err
		}
	}
	return ft, nil
}

// internType returns the index of ft, adding it when unseen.
func (p *parser) internType(ft funcType) uint32 {
	for i, existing := range p.m.types {
		if existing.equal(ft) {
			return uint32(i)
		}
	}
	p.m.types = append(p.m.types, ft)
	return uint32(len(p.m.types) - 1)
}

func (p *parser) parseTypeField() error {
	id := p.optionalID()
	if _, err := p.expect(tokLParen, "("); err != nil {
		return err
	}
	if err := p.expectAtom("func"); err != nil {
		return err
	}
	ft, err := p.parseParamsResults(nil)
	if err != nil {
		return err
	}
	if _, err := p.expect(tokRParen, ")"); err != nil {
		return err
	}
	if _, err := p.expect(tokRParen, ")"); err != nil {
		return err
	}
	p.m.types = append(p.m.types, ft)
	if id != "" {
		p.m.typeNames[id] = uint32(len(p.m.types) - 1)
	}
	return nil
}

// parseTypeUse handles an optional (type $t) reference followed by
// optional param/result lists, returning the resolved type index.
func (p *parser) parseTypeUse(names map[string]uint32) (uint32, funcType, error) {
	if p.atList("type") {
		p.next()
		p.next()
		t, err := p.expect(tokAtom, "type index")
		if err != nil {
			return 0, funcType{}, err
		}
		if _, err := p.expect(tokRParen, ")"); err != nil {
			return 0, funcType{}, err
		}
		var idx uint32
		if strings.HasPrefix(t.text, "$") {
			i, ok := p.m.typeNames[t.text]
			if !ok {
				return 0, funcType{}, p.errf("unknown type %s", t.text)
			}
			idx = i
		} else {
			n, err := strconv.ParseUint(t.text, 10, 32)
			if err != nil || int(n) >= len(p.m.types) {
				return 0, funcType{}, p.errf("bad type index %q", t.text)
			}
			idx = uint32(n)
		}
		// Inline params may still follow to bind names.
		if ft, err := p.parseParamsResults(names); err != nil {
			return 0, funcType{}, err
		} else if len(ft.params) > 0 || len(ft.results) > 0 {
			if !ft.equal(p.m.types[idx]) {
				return 0, funcType{}, p.errf("inline signature does not match type %d", idx)
			}
		}
		return idx, p.m.types[idx], nil
	}
	ft, err := p.parseParamsResults(names)
	if err != nil {
		return 0, funcType{}, err
	}
	return p.internType(ft), ft, nil
}

func (p *parser) parseImportField() error {
	mod, err := p.expect(tokString, "module name")
	if err != nil {
		return err
	}
	name, err := p.expect(tokString, "import name")
	if err != nil {
		return err
	}
	if _, err := p.expect(tokLParen, "("); err != nil {
		return err
	}
	kind, err := p.expect(tokAtom, "import kind")
	if err != nil {
		return err
	}
	switch kind.text {
	case "func":
		id := p.optionalID()
		typeIdx, _, err := p.parseTypeUse(nil)
		if err != nil {
			return err
		}
		p.m.importFuncs = append(p.m.importFuncs, importedFunc{
			module: mod.text, name: name.text, id: id, typeIdx: typeIdx,
		})
	case "global":
		id := p.optionalID()
		vt, mutable, err := p.parseGlobalType()
		if err != nil {
			return err
		}
		p.m.importGlobals = append(p.m.importGlobals, importedGlobal{
			module: mod.text, name: name.text, id: id, valType: vt, mutable: mutable,
		})
	default:
		return p.errf("unsupported import kind %q", kind.text)
	}
	if _, err := p.expect(tokRParen, ")"); err != nil {
		return err
	}
	_, err = p.expect(tokRParen, ")")
	return err
}

func (p *parser) parseGlobalType() (byte, bool, error) {
	if p.atList("mut") {
		p.next()
		p.next()
		t, err := p.expect(tokAtom, "value type")
		if err != nil {
			return 0, false, err
		}
		vt, ok := valTypeByte(t.text)
		if !ok {
			return 0, false, p.errf("unknown value type %q", t.text)
		}
		if _, err := p.expect(tokRParen, ")"); err != nil {
			return 0, false, err
		}
		return vt, true, nil
	}
	t, err := p.expect(tokAtom, "value type")
	if err != nil {
		return 0, false, err
	}
	vt, ok := valTypeByte(t.text)
	if !ok {
		return 0, false, p.errf("unknown value type %q", t.text)
	}
	return vt, false, nil
}

// parseInlineExports consumes any number of (export "name") lists.
func (p *parser) parseInlineExports() ([]string, error) {
	var names []string
	for p.atList("export") {
		p.next()
		p.next()
		n, err := p.expect(tokString, "export name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, ")"); err != nil {
			return nil, err
		}
		names = append(names, n.text)
	}
	return names, nil
}

func (p *parser) parseFuncField() error {
	fn := &function{localNames: map[string]uint32{}}
	fn.name = p.optionalID()
	exports, err := p.parseInlineExports()
	if err != nil {
		return err
	}
	fn.exports = exports

	typeIdx, ft, err := p.parseTypeUse(fn.localNames)
	if err != nil {
		return err
	}
	fn.typeIdx = typeIdx
	fn.numParams = uint32(len(ft.params))

	for p.atList("local") {
		p.next()
		p.next()
		if id := p.optionalID(); id != "" {
			t, err := p.expect(tokAtom, "value type")
			if err != nil {
				return err
			}
			vt, ok := valTypeByte(t.text)
			if !ok {
				return p.errf("unknown value type %q", t.text)
			}
			fn.localNames[id] = fn.numParams + uint32(len(fn.localTypes))
			fn.localTypes = append(fn.localTypes, vt)
		} else {
			for {
				t, ok := p.peek()
				if !ok || t.kind != tokAtom {
					break
				}
				vt, valid := valTypeByte(t.text)
				if !valid {
					return p.errf("unknown value type %q", t.text)
				}
				p.next()
				fn.localTypes = append(fn.localTypes, vt)
			}
		}
		if _, err := p.expect(tokRParen, ")"); err != nil {
			return err
		}
	}

	// Capture the body tokens; assembly happens after all declarations
	// are known so forward references resolve.
	start := p.pos
	depth := 1
	for depth > 0 {
		t, ok := p.next()
		if !ok {
			return p.errf("unterminated func")
		}
		switch t.kind {
		case tokLParen:
			depth++
		case tokRParen:
			depth--
		}
	}
	fn.body = p.toks[start : p.pos-1]
	p.m.funcs = append(p.m.funcs, fn)
	return nil
}

func (p *parser) parseLimits() (limits, error) {
	var lim limits
	t, err := p.expect(tokAtom, "memory/table limit")
	if err != nil {
		return lim, err
	}
	min, err := strconv.ParseUint(t.text, 10, 32)
	if err != nil {
		return lim, p.errf("bad limit %q", t.text)
	}
	lim.min = uint32(min)
	if t, ok := p.peek(); ok && t.kind == tokAtom {
		if max, err := strconv.ParseUint(t.text, 10, 32); err == nil {
			p.next()
			lim.max = uint32(max)
			lim.hasMax = true
		}
	}
	return lim, nil
}

func (p *parser) parseTableField() error {
	td := tableDef{id: p.optionalID()}
	exports, err := p.parseInlineExports()
	if err != nil {
		return err
	}
	td.exports = exports
	td.lim, err = p.parseLimits()
	if err != nil {
		return err
	}
	if err := p.expectAtom("funcref"); err != nil {
		return err
	}
	if _, err := p.expect(tokRParen, ")"); err != nil {
		return err
	}
	p.m.tables = append(p.m.tables, td)
	return nil
}

func (p *parser) parseMemoryField() error {
	md := memoryDef{id: p.optionalID()}
	exports, err := p.parseInlineExports()
	if err != nil {
		return err
	}
	md.exports = exports
	md.lim, err = p.parseLimits()
	if err != nil {
		return err
	}
	if _, err := p.expect(tokRParen, ")"); err != nil {
		return err
	}
	p.m.memories = append(p.m.memories, md)
	return nil
}

func (p *parser) parseGlobalField() error {
	gd := globalDef{id: p.optionalID()}
	exports, err := p.parseInlineExports()
	if err != nil {
		return err
	}
	gd.exports = exports
	vt, mutable, err := p.parseGlobalType()
	if err != nil {
		return err
	}
	gd.valType = vt
	gd.mutable = mutable
	gd.init, err = p.parseConstExpr()
	if err != nil {
		return err
	}
	if _, err := p.expect(tokRParen, ")"); err != nil {
		return err
	}
	p.m.globals = append(p.m.globals, gd)
	return nil
}

// parseConstExpr parses one folded constant instruction like
// (i32.const 7) or (global.get $g) into its binary encoding without
// the end terminator.
func (p *parser) parseConstExpr() ([]byte, error) {
	if _, err := p.expect(tokLParen, "constant expression"); err != nil {
		return nil, err
	}
	op, err := p.expect(tokAtom, "constant opcode")
	if err != nil {
		return nil, err
	}
	var b buffer
	switch op.text {
	case "i32.const":
		t, err := p.expect(tokAtom, "i32 literal")
		if err != nil {
			return nil, err
		}
		v, err := parseI32(t.text)
		if err != nil {
			return nil, p.errf("%v", err)
		}
		b.byte(wasm.OpI32Const)
		b.sleb(int64(v))
	case "i64.const":
		t, err := p.expect(tokAtom, "i64 literal")
		if err != nil {
			return nil, err
		}
		v, err := parseI64(t.text)
		if err != nil {
			return nil, p.errf("%v", err)
		}
		b.byte(wasm.OpI64Const)
		b.sleb(v)
	case "f32.const":
		t, err := p.expect(tokAtom, "f32 literal")
		if err != nil {
			return nil, err
		}
		v, err := parseFloat(t.text)
		if err != nil {
			return nil, p.errf("%v", err)
		}
		b.byte(wasm.OpF32Const)
		b.f32(float32(v))
	case "f64.const":
		t, err := p.expect(tokAtom, "f64 literal")
		if err != nil {
			return nil, err
		}
		v, err := parseFloat(t.text)
		if err != nil {
			return nil, p.errf("%v", err)
		}
		b.byte(wasm.OpF64Const)
		b.f64(v)
	case "global.get":
		t, err := p.expect(tokAtom, "global index")
		if err != nil {
			return nil, err
		}
		idx, err := p.resolveGlobalLate(t.text)
		if err != nil {
			return nil, err
		}
		b.byte(wasm.OpGlobalGet)
		b.uleb(uint64(idx))
	default:
		return nil, p.errf("unsupported constant opcode %q", op.text)
	}
	if _, err := p.expect(tokRParen, ")"); err != nil {
		return nil, err
	}
	return b.data, nil
}

// resolveGlobalLate resolves a global reference during field parsing.
// Only imported globals may be referenced from constant expressions, and
// imports precede definitions, so the name table is already complete
// enough.
func (p *parser) resolveGlobalLate(ref string) (uint32, error) {
	if !strings.HasPrefix(ref, "$") {
		n, err := strconv.ParseUint(ref, 10, 32)
		if err != nil {
			return 0, p.errf("bad global index %q", ref)
		}
		return uint32(n), nil
	}
	for i, g := range p.m.importGlobals {
		if g.id == ref {
			return uint32(i), nil
		}
	}
	return 0, p.errf("unknown global %s in constant expression", ref)
}

func (p *parser) parseExportField() error {
	name, err := p.expect(tokString, "export name")
	if err != nil {
		return err
	}
	if _, err := p.expect(tokLParen, "("); err != nil {
		return err
	}
	kind, err := p.expect(tokAtom, "export kind")
	if err != nil {
		return err
	}
	var kindByte byte
	switch kind.text {
	case "func":
		kindByte = byte(wasm.KindFunc)
	case "table":
		kindByte = byte(wasm.KindTable)
	case "memory":
		kindByte = byte(wasm.KindMemory)
	case "global":
		kindByte = byte(wasm.KindGlobal)
	default:
		return p.errf("unknown export kind %q", kind.text)
	}
	ref, err := p.expect(tokAtom, "export target")
	if err != nil {
		return err
	}
	if _, err := p.expect(tokRParen, ")"); err != nil {
		return err
	}
	if _, err := p.expect(tokRParen, ")"); err != nil {
		return err
	}
	p.m.exports = append(p.m.exports, exportDef{name: name.text, kind: kindByte, ref: ref.text})
	return nil
}

func (p *parser) parseStartField() error {
	t, err := p.expect(tokAtom, "start function")
	if err != nil {
		return err
	}
	p.m.start = t.text
	_, err = p.expect(tokRParen, ")")
	return err
}

func (p *parser) parseElemField() error {
	var ed elemDef
	offset, err := p.parseConstExpr()
	if err != nil {
		return err
	}
	ed.offset = offset
	if t, ok := p.peek(); ok && t.kind == tokAtom && t.text == "func" {
		p.next()
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokAtom {
			break
		}
		p.next()
		ed.funcs = append(ed.funcs, t.text)
	}
	if _, err := p.expect(tokRParen, ")"); err != nil {
		return err
	}
	p.m.elems = append(p.m.elems, ed)
	return nil
}

func (p *parser) parseDataField() error {
	var dd dataDef
	offset, err := p.parseConstExpr()
	if err != nil {
		return err
	}
	dd.offset = offset
	for {
		t, ok := p.peek()
		if !ok || t.kind != tokString {
			break
		}
		p.next()
		dd.bytes = append(dd.bytes, t.text...)
	}
	if _, err := p.expect(tokRParen, ")"); err != nil {
		return err
	}
	p.m.datas = append(p.m.datas, dd)
	return nil
}

// assignIndices builds the final name tables: imports occupy the low
// indices of each index space, definitions follow in declaration order.
func (p *parser) assignIndices() {
	for i, imp := range p.m.importFuncs {
		if imp.id != "" {
			p.m.funcNames[imp.id] = uint32(i)
		}
	}
	base := uint32(len(p.m.importFuncs))
	for i, fn := range p.m.funcs {
		if fn.name != "" {
			p.m.funcNames[fn.name] = base + uint32(i)
		}
	}
	for i, imp := range p.m.importGlobals {
		if imp.id != "" {
			p.m.globalNames[imp.id] = uint32(i)
		}
	}
	gbase := uint32(len(p.m.importGlobals))
	for i, g := range p.m.globals {
		if g.id != "" {
			p.m.globalNames[g.id] = gbase + uint32(i)
		}
	}
}

func (p *parser) resolveFunc(ref string) (uint32, error) {
	if strings.HasPrefix(ref, "$") {
		idx, ok := p.m.funcNames[ref]
		if !ok {
			return 0, fmt.Errorf("unknown function %s", ref)
		}
		return idx, nil
	}
	n, err := strconv.ParseUint(ref, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bad function index %q", ref)
	}
	return uint32(n), nil
}

func (p *parser) resolveGlobal(ref string) (uint32, error) {
	if strings.HasPrefix(ref, "$") {
		idx, ok := p.m.globalNames[ref]
		if !ok {
			return 0, fmt.Errorf("unknown global %s", ref)
		}
		return idx, nil
	}
	n, err := strconv.ParseUint(ref, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bad global index %q", ref)
	}
	return uint32(n), nil
}

// resolveExports attaches a function's inline exports to the export list.
func (p *parser) resolveExports(fn *function) error {
	for _, name := range fn.exports {
		ref := fn.name
		if ref == "" {
			idx := uint32(len(p.m.importFuncs))
			for i, f := range p.m.funcs {
				if f == fn {
					idx += uint32(i)
					break
				}
			}
			ref = strconv.FormatUint(uint64(idx), 10)
		}
		p.m.exports = append(p.m.exports, exportDef{name: name, kind: byte(wasm.KindFunc), ref: ref})
	}
	return nil
}

// resolveInlineExports turns (export "n") annotations on global, memory
// and table fields into export entries.
func (p *parser) resolveInlineExports() {
	gbase := len(p.m.importGlobals)
	for i, g := range p.m.globals {
		for _, name := range g.exports {
			p.m.exports = append(p.m.exports, exportDef{
				name: name, kind: wasm.KindGlobal,
				ref: strconv.Itoa(gbase + i),
			})
		}
	}
	for i, md := range p.m.memories {
		for _, name := range md.exports {
			p.m.exports = append(p.m.exports, exportDef{
				name: name, kind: wasm.KindMemory, ref: strconv.Itoa(i),
			})
		}
	}
	for i, td := range p.m.tables {
		for _, name := range td.exports {
			p.m.exports = append(p.m.exports, exportDef{
				name: name, kind: wasm.KindTable, ref: strconv.Itoa(i),
			})
		}
	}
}

func parseI32(s string) (int32, error) {
	s = strings.ReplaceAll(s, "_", "")
	if v, err := strconv.ParseInt(s, 0, 32); err == nil {
		return int32(v), nil
	}
	if v, err := strconv.ParseUint(s, 0, 32); err == nil {
		return int32(uint32(v)), nil
	}
	return 0, fmt.Errorf("bad i32 literal %q", s)
}

func parseI64(s string) (int64, error) {
	s = strings.ReplaceAll(s, "_", "")
	if v, err := strconv.ParseInt(s, 0, 64); err == nil {
		return v, nil
	}
	if v, err := strconv.ParseUint(s, 0, 64); err == nil {
		return int64(v), nil
	}
	return 0, fmt.Errorf("bad i64 literal %q", s)
}

func parseFloat(s string) (float64, error) {
	s = strings.ReplaceAll(s, "_", "")
	switch s {
	case "inf":
		return math.Inf(1), nil
	case "-inf":
		return math.Inf(-1), nil
	case "nan", "+nan":
		return math.NaN(), nil
	case "-nan":
		return math.Copysign(math.NaN(), -1), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("bad float literal %q", s)
	}
	return v, nil
}
