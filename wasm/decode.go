package wasm

import (
	"errors"
	"fmt"
	"io"
)

// Parsing errors returned by ParseModule.
var (
	ErrInvalidMagic   = errors.New("invalid wasm magic number")
	ErrInvalidVersion = errors.New("invalid wasm version")
)

// ParseModule parses a core WebAssembly binary module.
func ParseModule(data []byte) (*Module, error) {
	r := newReader(data)

	magic, err := r.readU32LE()
	if err != nil {
		return nil, r.wrapError("header", err)
	}
	if magic != Magic {
		return nil, ErrInvalidMagic
	}

	version, err := r.readU32LE()
	if err != nil {
		return nil, r.wrapError("header", err)
	}
	if version != Version {
		return nil, ErrInvalidVersion
	}

	m := &Module{}
	var lastSection byte

	for {
		sectionID, err := r.readByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, r.wrapError("section header", err)
		}

		if sectionID != SectionCustom {
			if sectionID <= lastSection {
				return nil, fmt.Errorf("section %d out of order", sectionID)
			}
			lastSection = sectionID
		}

		size, err := r.readU32()
		if err != nil {
			return nil, r.wrapError("section size", err)
		}
		end := r.position() + int(size)

		switch sectionID {
		case SectionCustom:
			err = parseCustomSection(r, m, end)
		case SectionType:
			err = parseTypeSection(r, m)
		case SectionImport:
			err = parseImportSection(r, m)
		case SectionFunction:
			err = parseFunctionSection(r, m)
		case SectionTable:
			err = parseTableSection(r, m)
		case SectionMemory:
			err = parseMemorySection(r, m)
		case SectionGlobal:
			err = parseGlobalSection(r, m)
		case SectionExport:
			err = parseExportSection(r, m)
		case SectionStart:
			err = parseStartSection(r, m)
		case SectionElement:
			err = parseElementSection(r, m)
		case SectionCode:
			err = parseCodeSection(r, m)
		case SectionData:
			err = parseDataSection(r, m)
		default:
			return nil, fmt.Errorf("unsupported section id %d", sectionID)
		}
		if err != nil {
			return nil, err
		}

		if r.position() != end {
			return nil, fmt.Errorf("section %d: expected end at offset %d, got %d", sectionID, end, r.position())
		}
	}

	if len(m.Funcs) != len(m.Code) {
		return nil, fmt.Errorf("function count %d does not match code count %d", len(m.Funcs), len(m.Code))
	}

	return m, nil
}

func parseCustomSection(r *reader, m *Module, end int) error {
	name, err := r.readName()
	if err != nil {
		return r.wrapError("custom section name", err)
	}
	remaining := end - r.position()
	if remaining < 0 {
		return fmt.Errorf("custom section %q overruns section size", name)
	}
	payload, err := r.readBytes(uint32(remaining))
	if err != nil {
		return r.wrapError("custom section payload", err)
	}
	if name == "name" {
		// Malformed name sections are ignored, matching engine behavior.
		if names, err := parseNameSection(payload); err == nil {
			m.Names = names
		}
	}
	return nil
}

func parseTypeSection(r *reader, m *Module) error {
	count, err := r.readU32()
	if err != nil {
		return r.wrapError("type count", err)
	}
	m.Types = make([]FuncType, 0, count)
	for i := uint32(0); i < count; i++ {
		form, err := r.readByte()
		if err != nil {
			return r.wrapError("type form", err)
		}
		if form != 0x60 {
			return fmt.Errorf("type %d: unsupported form 0x%02x (only plain function types)", i, form)
		}
		ft, err := readFuncType(r)
		if err != nil {
			return r.wrapError(fmt.Sprintf("type %d", i), err)
		}
		m.Types = append(m.Types, ft)
	}
	return nil
}

func readFuncType(r *reader) (FuncType, error) {
	var ft FuncType
	nparams, err := r.readU32()
	if err != nil {
		return ft, err
	}
	ft.Params = make([]ValType, nparams)
	for i := range ft.Params {
		ft.Params[i], err = readValType(r)
		if err != nil {
			return ft, err
		}
	}
	nresults, err := r.readU32()
	if err != nil {
		return ft, err
	}
	ft.Results = make([]ValType, nresults)
	for i := range ft.Results {
		ft.Results[i], err = readValType(r)
		if err != nil {
			return ft, err
		}
	}
	return ft, nil
}

func readValType(r *reader) (ValType, error) {
	b, err := r.readByte()
	if err != nil {
		return 0, err
	}
	switch v := ValType(b); v {
	case ValI32, ValI64, ValF32, ValF64:
		return v, nil
	default:
		return 0, fmt.Errorf("unsupported value type 0x%02x", b)
	}
}

func parseImportSection(r *reader, m *Module) error {
	count, err := r.readU32()
	if err != nil {
		return r.wrapError("import count", err)
	}
	m.Imports = make([]Import, 0, count)
	for i := uint32(0); i < count; i++ {
		var imp Import
		imp.Module, err = r.readName()
		if err != nil {
			return r.wrapError("import module", err)
		}
		imp.Name, err = r.readName()
		if err != nil {
			return r.wrapError("import name", err)
		}
		kind, err := r.readByte()
		if err != nil {
			return r.wrapError("import kind", err)
		}
		imp.Desc.Kind = kind
		switch kind {
		case KindFunc:
			imp.Desc.TypeIdx, err = r.readU32()
		case KindTable:
			imp.Desc.TableType, err = readTableType(r)
		case KindMemory:
			imp.Desc.MemoryType, err = readMemoryType(r)
		case KindGlobal:
			imp.Desc.GlobalType, err = readGlobalType(r)
		default:
			return fmt.Errorf("import %d: unknown kind %d", i, kind)
		}
		if err != nil {
			return r.wrapError(fmt.Sprintf("import %d", i), err)
		}
		m.Imports = append(m.Imports, imp)
	}
	return nil
}

func parseFunctionSection(r *reader, m *Module) error {
	count, err := r.readU32()
	if err != nil {
		return r.wrapError("function count", err)
	}
	m.Funcs = make([]uint32, count)
	for i := range m.Funcs {
		m.Funcs[i], err = r.readU32()
		if err != nil {
			return r.wrapError("function type index", err)
		}
	}
	return nil
}

func parseTableSection(r *reader, m *Module) error {
	count, err := r.readU32()
	if err != nil {
		return r.wrapError("table count", err)
	}
	m.Tables = make([]TableType, count)
	for i := range m.Tables {
		m.Tables[i], err = readTableType(r)
		if err != nil {
			return r.wrapError("table type", err)
		}
	}
	return nil
}

func parseMemorySection(r *reader, m *Module) error {
	count, err := r.readU32()
	if err != nil {
		return r.wrapError("memory count", err)
	}
	m.Memories = make([]MemoryType, count)
	for i := range m.Memories {
		m.Memories[i], err = readMemoryType(r)
		if err != nil {
			return r.wrapError("memory type", err)
		}
	}
	return nil
}

func parseGlobalSection(r *reader, m *Module) error {
	count, err := r.readU32()
	if err != nil {
		return r.wrapError("global count", err)
	}
	m.Globals = make([]Global, 0, count)
	for i := uint32(0); i < count; i++ {
		gt, err := readGlobalType(r)
		if err != nil {
			return r.wrapError("global type", err)
		}
		init, err := readConstExpr(r)
		if err != nil {
			return r.wrapError("global init", err)
		}
		m.Globals = append(m.Globals, Global{Type: gt, Init: init})
	}
	return nil
}

func parseExportSection(r *reader, m *Module) error {
	count, err := r.readU32()
	if err != nil {
		return r.wrapError("export count", err)
	}
	m.Exports = make([]Export, 0, count)
	for i := uint32(0); i < count; i++ {
		var exp Export
		exp.Name, err = r.readName()
		if err != nil {
			return r.wrapError("export name", err)
		}
		exp.Kind, err = r.readByte()
		if err != nil {
			return r.wrapError("export kind", err)
		}
		exp.Index, err = r.readU32()
		if err != nil {
			return r.wrapError("export index", err)
		}
		m.Exports = append(m.Exports, exp)
	}
	return nil
}

func parseStartSection(r *reader, m *Module) error {
	idx, err := r.readU32()
	if err != nil {
		return r.wrapError("start index", err)
	}
	m.Start = &idx
	return nil
}

func parseElementSection(r *reader, m *Module) error {
	count, err := r.readU32()
	if err != nil {
		return r.wrapError("element count", err)
	}
	m.Elements = make([]Element, 0, count)
	for i := uint32(0); i < count; i++ {
		flags, err := r.readU32()
		if err != nil {
			return r.wrapError("element flags", err)
		}
		if flags != 0 {
			return fmt.Errorf("element %d: unsupported segment flags %d (only active funcref segments)", i, flags)
		}
		var elem Element
		elem.Offset, err = readConstExpr(r)
		if err != nil {
			return r.wrapError("element offset", err)
		}
		n, err := r.readU32()
		if err != nil {
			return r.wrapError("element func count", err)
		}
		elem.Funcs = make([]uint32, n)
		for j := range elem.Funcs {
			elem.Funcs[j], err = r.readU32()
			if err != nil {
				return r.wrapError("element func index", err)
			}
		}
		m.Elements = append(m.Elements, elem)
	}
	return nil
}

func parseCodeSection(r *reader, m *Module) error {
	count, err := r.readU32()
	if err != nil {
		return r.wrapError("code count", err)
	}
	m.Code = make([]FuncBody, 0, count)
	for i := uint32(0); i < count; i++ {
		size, err := r.readU32()
		if err != nil {
			return r.wrapError("body size", err)
		}
		end := r.position() + int(size)

		nlocals, err := r.readU32()
		if err != nil {
			return r.wrapError("local count", err)
		}
		var body FuncBody
		body.Locals = make([]LocalEntry, nlocals)
		for j := range body.Locals {
			body.Locals[j].Count, err = r.readU32()
			if err != nil {
				return r.wrapError("local entry count", err)
			}
			body.Locals[j].Type, err = readValType(r)
			if err != nil {
				return r.wrapError("local entry type", err)
			}
		}

		remaining := end - r.position()
		if remaining < 0 {
			return fmt.Errorf("body %d overruns declared size", i)
		}
		body.Code, err = r.readBytes(uint32(remaining))
		if err != nil {
			return r.wrapError("body code", err)
		}
		m.Code = append(m.Code, body)
	}
	return nil
}

func parseDataSection(r *reader, m *Module) error {
	count, err := r.readU32()
	if err != nil {
		return r.wrapError("data count", err)
	}
	m.Data = make([]DataSegment, 0, count)
	for i := uint32(0); i < count; i++ {
		flags, err := r.readU32()
		if err != nil {
			return r.wrapError("data flags", err)
		}
		if flags != 0 {
			return fmt.Errorf("data %d: unsupported segment flags %d (only active segments)", i, flags)
		}
		var seg DataSegment
		seg.Offset, err = readConstExpr(r)
		if err != nil {
			return r.wrapError("data offset", err)
		}
		n, err := r.readU32()
		if err != nil {
			return r.wrapError("data size", err)
		}
		seg.Data, err = r.readBytes(n)
		if err != nil {
			return r.wrapError("data bytes", err)
		}
		m.Data = append(m.Data, seg)
	}
	return nil
}

func readTableType(r *reader) (TableType, error) {
	var tt TableType
	b, err := r.readByte()
	if err != nil {
		return tt, err
	}
	if ValType(b) != ValFuncRef {
		return tt, fmt.Errorf("unsupported table element type 0x%02x", b)
	}
	tt.ElemType = ValFuncRef
	tt.Limits, err = readLimits(r)
	return tt, err
}

func readMemoryType(r *reader) (MemoryType, error) {
	limits, err := readLimits(r)
	return MemoryType{Limits: limits}, err
}

func readGlobalType(r *reader) (GlobalType, error) {
	var gt GlobalType
	var err error
	gt.Type, err = readValType(r)
	if err != nil {
		return gt, err
	}
	mut, err := r.readByte()
	if err != nil {
		return gt, err
	}
	if mut > 1 {
		return gt, fmt.Errorf("invalid mutability flag %d", mut)
	}
	gt.Mutable = mut == 1
	return gt, nil
}

func readLimits(r *reader) (Limits, error) {
	var l Limits
	flags, err := r.readByte()
	if err != nil {
		return l, err
	}
	switch flags {
	case 0x00:
		l.Min, err = r.readU32()
	case 0x01:
		l.HasMax = true
		if l.Min, err = r.readU32(); err != nil {
			return l, err
		}
		l.Max, err = r.readU32()
	default:
		return l, fmt.Errorf("unsupported limits flags 0x%02x", flags)
	}
	return l, err
}

// readConstExpr reads a constant initializer expression including the
// terminating end opcode, returning the bytes without the terminator.
// Constant expressions contain no nested blocks, so scanning for the
// first end opcode is sufficient.
func readConstExpr(r *reader) ([]byte, error) {
	var expr []byte
	for {
		op, err := r.readByte()
		if err != nil {
			return nil, err
		}
		if op == OpEnd {
			return expr, nil
		}
		expr = append(expr, op)
		switch op {
		case OpI32Const:
			v, err := r.readS32()
			if err != nil {
				return nil, err
			}
			expr = appendS64(expr, int64(v))
		case OpI64Const:
			v, err := r.readS64()
			if err != nil {
				return nil, err
			}
			expr = appendS64(expr, v)
		case OpF32Const:
			buf, err := r.readBytes(4)
			if err != nil {
				return nil, err
			}
			expr = append(expr, buf...)
		case OpF64Const:
			buf, err := r.readBytes(8)
			if err != nil {
				return nil, err
			}
			expr = append(expr, buf...)
		case OpGlobalGet:
			v, err := r.readU32()
			if err != nil {
				return nil, err
			}
			expr = appendU32(expr, v)
		default:
			return nil, fmt.Errorf("unsupported opcode 0x%02x in constant expression", op)
		}
	}
}

func appendU32(buf []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		buf = append(buf, b)
		if v == 0 {
			return buf
		}
	}
}

func appendS64(buf []byte, v int64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

func parseNameSection(payload []byte) (*NameSection, error) {
	r := newReader(payload)
	names := &NameSection{
		FuncNames:  make(map[uint32]string),
		LocalNames: make(map[uint32]map[uint32]string),
	}
	for r.len() > 0 {
		id, err := r.readByte()
		if err != nil {
			return nil, err
		}
		size, err := r.readU32()
		if err != nil {
			return nil, err
		}
		end := r.position() + int(size)
		switch id {
		case nameSubsectionModule:
			names.ModuleName, err = r.readName()
			if err != nil {
				return nil, err
			}
		case nameSubsectionFunc:
			count, err := r.readU32()
			if err != nil {
				return nil, err
			}
			for i := uint32(0); i < count; i++ {
				idx, err := r.readU32()
				if err != nil {
					return nil, err
				}
				name, err := r.readName()
				if err != nil {
					return nil, err
				}
				names.FuncNames[idx] = name
			}
		case nameSubsectionLocal:
			count, err := r.readU32()
			if err != nil {
				return nil, err
			}
			for i := uint32(0); i < count; i++ {
				funcIdx, err := r.readU32()
				if err != nil {
					return nil, err
				}
				n, err := r.readU32()
				if err != nil {
					return nil, err
				}
				locals := make(map[uint32]string, n)
				for j := uint32(0); j < n; j++ {
					localIdx, err := r.readU32()
					if err != nil {
						return nil, err
					}
					name, err := r.readName()
					if err != nil {
						return nil, err
					}
					locals[localIdx] = name
				}
				names.LocalNames[funcIdx] = locals
			}
		default:
			// Unknown subsections are skipped.
			if _, err := r.readBytes(uint32(size)); err != nil {
				return nil, err
			}
		}
		if r.position() < end {
			skip := end - r.position()
			if _, err := r.readBytes(uint32(skip)); err != nil {
				return nil, err
			}
		} else if r.position() > end {
			return nil, errors.New("name subsection overruns declared size")
		}
	}
	return names, nil
}
