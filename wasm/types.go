package wasm

import "fmt"

// Module represents a parsed core WebAssembly module.
type Module struct {
	Types    []FuncType
	Imports  []Import
	Funcs    []uint32 // Type indices for declared functions
	Tables   []TableType
	Memories []MemoryType
	Globals  []Global
	Exports  []Export
	Start    *uint32
	Elements []Element
	Code     []FuncBody
	Data     []DataSegment

	// Names holds function and local names parsed from the "name"
	// custom section, when present.
	Names *NameSection
}

// FuncType represents a function signature with parameter and result types.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// ValType is a WebAssembly value type encoding.
type ValType byte

// String returns the text-format name of the value type.
func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	case ValFuncRef:
		return "funcref"
	default:
		return fmt.Sprintf("valtype(0x%02x)", byte(v))
	}
}

// Import represents an imported item.
type Import struct {
	Module string
	Name   string
	Desc   ImportDesc
}

// ImportDesc describes the kind and type of an import.
type ImportDesc struct {
	Kind       byte
	TypeIdx    uint32     // KindFunc
	TableType  TableType  // KindTable
	MemoryType MemoryType // KindMemory
	GlobalType GlobalType // KindGlobal
}

// TableType describes a table's element type and limits.
type TableType struct {
	ElemType ValType
	Limits   Limits
}

// MemoryType describes a linear memory's limits.
type MemoryType struct {
	Limits Limits
}

// Limits holds minimum and optional maximum sizes.
type Limits struct {
	Min    uint32
	Max    uint32
	HasMax bool
}

// GlobalType describes a global's value type and mutability.
type GlobalType struct {
	Type    ValType
	Mutable bool
}

// Global is a global declaration with its constant initializer
// expression (raw instruction bytes, terminated by end).
type Global struct {
	Type GlobalType
	Init []byte
}

// Export represents an exported item.
type Export struct {
	Name  string
	Kind  byte
	Index uint32
}

// Element is an active element segment initializing a table with
// function indices.
type Element struct {
	TableIdx uint32
	Offset   []byte // constant expression
	Funcs    []uint32
}

// FuncBody holds a function's local declarations and raw instruction bytes.
type FuncBody struct {
	Locals []LocalEntry
	Code   []byte
}

// LocalEntry is a run-length encoded local declaration.
type LocalEntry struct {
	Count uint32
	Type  ValType
}

// DataSegment is an active data segment initializing linear memory.
type DataSegment struct {
	MemIdx uint32
	Offset []byte // constant expression
	Data   []byte
}

// NameSection holds debug names from the "name" custom section.
type NameSection struct {
	ModuleName string
	FuncNames  map[uint32]string
	// LocalNames maps function index to local index to name.
	LocalNames map[uint32]map[uint32]string
}

// NumImportedFuncs returns the number of imported functions. Imported
// functions occupy the low end of the function index space.
func (m *Module) NumImportedFuncs() int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindFunc {
			n++
		}
	}
	return n
}

// NumImportedGlobals returns the number of imported globals.
func (m *Module) NumImportedGlobals() int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindGlobal {
			n++
		}
	}
	return n
}

// NumFuncs returns the total function count including imports.
func (m *Module) NumFuncs() int {
	return m.NumImportedFuncs() + len(m.Funcs)
}

// FuncTypeAt returns the signature for a function index in the combined
// (imports first) function index space, or nil if out of range.
func (m *Module) FuncTypeAt(funcIdx uint32) *FuncType {
	i := uint32(0)
	for _, imp := range m.Imports {
		if imp.Desc.Kind != KindFunc {
			continue
		}
		if i == funcIdx {
			if imp.Desc.TypeIdx < uint32(len(m.Types)) {
				return &m.Types[imp.Desc.TypeIdx]
			}
			return nil
		}
		i++
	}
	local := funcIdx - uint32(m.NumImportedFuncs())
	if local < uint32(len(m.Funcs)) {
		typeIdx := m.Funcs[local]
		if typeIdx < uint32(len(m.Types)) {
			return &m.Types[typeIdx]
		}
	}
	return nil
}

// ImportedFunc returns the import entry for a function index, or nil if
// the index does not refer to an imported function.
func (m *Module) ImportedFunc(funcIdx uint32) *Import {
	i := uint32(0)
	for idx := range m.Imports {
		if m.Imports[idx].Desc.Kind != KindFunc {
			continue
		}
		if i == funcIdx {
			return &m.Imports[idx]
		}
		i++
	}
	return nil
}

// BodyOf returns the function body for a function index, or nil for
// imported functions and out-of-range indices.
func (m *Module) BodyOf(funcIdx uint32) *FuncBody {
	local := int(funcIdx) - m.NumImportedFuncs()
	if local < 0 || local >= len(m.Code) {
		return nil
	}
	return &m.Code[local]
}

// ExportedFunc returns the function index exported under name.
func (m *Module) ExportedFunc(name string) (uint32, bool) {
	for _, exp := range m.Exports {
		if exp.Kind == KindFunc && exp.Name == name {
			return exp.Index, true
		}
	}
	return 0, false
}

// FuncName returns the debug name for a function index: the name
// section entry when present, else the export name, else the import's
// qualified name.
func (m *Module) FuncName(funcIdx uint32) string {
	if m.Names != nil {
		if name, ok := m.Names.FuncNames[funcIdx]; ok {
			return name
		}
	}
	for _, exp := range m.Exports {
		if exp.Kind == KindFunc && exp.Index == funcIdx {
			return exp.Name
		}
	}
	if imp := m.ImportedFunc(funcIdx); imp != nil {
		return imp.Module + "." + imp.Name
	}
	return ""
}

// LocalName returns the debug name for a local slot, if known.
func (m *Module) LocalName(funcIdx, localIdx uint32) string {
	if m.Names == nil {
		return ""
	}
	if locals, ok := m.Names.LocalNames[funcIdx]; ok {
		return locals[localIdx]
	}
	return ""
}
