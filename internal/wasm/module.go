// Package wasm implements the engine core: the section assembler, the store that instantiates compiled modules, and
// the runtime instances (functions, memories, tables, globals) the back-end interpreters execute against.
package wasm

import (
	"github.com/shrin18/swam/api"
	publicwasm "github.com/shrin18/swam/wasm"
)

// Index is an alias of publicwasm.Index. See that for documentation.
type Index = publicwasm.Index

// ValueType is an alias of publicwasm.ValueType. See that for documentation.
type ValueType = publicwasm.ValueType

const (
	ValueTypeI32 = publicwasm.ValueTypeI32
	ValueTypeI64 = publicwasm.ValueTypeI64
	ValueTypeF32 = publicwasm.ValueTypeF32
	ValueTypeF64 = publicwasm.ValueTypeF64
)

// Module is the compiled, immutable representation of a validated section stream: every function body and every
// constant initializer has already been lowered by the engine that assembled it. A Module is created only by
// Assemble and never mutated afterwards; any number of instances may be created from it, concurrently.
type Module struct {
	// TypeSection contains the unique FunctionType of functions imported or defined in this module.
	TypeSection []publicwasm.FunctionType

	// ImportSection contains imported functions, tables, memories or globals required for instantiation.
	//
	// Note: the function index namespace begins with imported functions, so a defined function's position in
	// FunctionSection is offset by the count of api.ExternTypeFunc imports.
	ImportSection []publicwasm.Import

	// FunctionSection contains the index in TypeSection of each function defined in this module, index-correlated
	// with CodeSection.
	FunctionSection []Index

	// TableSection contains each table defined in this module: zero or one in WebAssembly 1.0 (20191205), and one
	// only if there is no imported table.
	TableSection []publicwasm.TableType

	// MemorySection contains each memory defined in this module: zero or one in WebAssembly 1.0 (20191205), and
	// one only if there is no imported memory.
	MemorySection []publicwasm.MemoryType

	// GlobalSection contains each global defined in this module with its compiled initializer. The global index
	// namespace begins with imported globals.
	GlobalSection []Global

	// ExportSection indexes exports by name.
	ExportSection map[string]*publicwasm.Export

	// StartSection is the index of a function invoked before Instantiate returns. The index is in the function
	// index namespace, which begins with imported functions.
	StartSection *Index

	// ElementSection initializes tables, with each segment's offset initializer compiled.
	ElementSection []ElementSegment

	// CodeSection is index-correlated with FunctionSection and contains each defined function's expanded locals,
	// structured body and compiled form.
	CodeSection []Code

	// DataSection initializes memories, with each segment's offset initializer compiled.
	DataSection []DataSegment

	// CustomSections are retained opaque name+payload records, in stream order.
	CustomSections []CustomSection
}

// Code is an entry of Module.CodeSection: one defined function after assembly.
type Code struct {
	// LocalTypes are the function-scoped variables in declaration order, expanded from the decoder's run-length
	// encoded groups. Parameters are not included.
	LocalTypes []publicwasm.ValueType

	// Body is the structured body as received from the decoder.
	Body []publicwasm.Instruction

	// Compiled is the engine-lowered form of Body, produced eagerly during assembly so that instantiation performs
	// no more code generation. Its layout is private to the engine that assembled this module.
	Compiled []byte
}

// Global is an entry of Module.GlobalSection.
type Global struct {
	Type publicwasm.GlobalType

	// Init is the structured constant initializer.
	Init []publicwasm.Instruction

	// InitCompiled is the engine-lowered form of Init, evaluated at instantiation.
	InitCompiled []byte
}

// ElementSegment is an entry of Module.ElementSection.
type ElementSegment struct {
	TableIndex Index

	// OffsetCompiled is the engine-lowered i32 offset initializer.
	OffsetCompiled []byte

	// Init is the vector of function indices written starting at the evaluated offset.
	Init []Index
}

// DataSegment is an entry of Module.DataSection.
type DataSegment struct {
	MemoryIndex Index

	// OffsetCompiled is the engine-lowered i32 offset initializer.
	OffsetCompiled []byte

	// Init is the raw payload copied starting at the evaluated offset.
	Init []byte
}

// CustomSection is an opaque section retained from the stream.
type CustomSection struct {
	Name string
	Data []byte
}

// ImportFuncCount returns the number of imported functions, which offsets the function index namespace of defined
// functions.
func (m *Module) ImportFuncCount() (count uint32) {
	for i := range m.ImportSection {
		if m.ImportSection[i].Type == api.ExternTypeFunc {
			count++
		}
	}
	return
}

// ImportGlobalCount returns the number of imported globals, which offsets the global index namespace of defined
// globals.
func (m *Module) ImportGlobalCount() (count uint32) {
	for i := range m.ImportSection {
		if m.ImportSection[i].Type == api.ExternTypeGlobal {
			count++
		}
	}
	return
}

// TypeOfFunction returns the signature for the given index in the function index namespace, which begins with
// imported functions, or nil if the index is out of range.
func (m *Module) TypeOfFunction(funcIdx Index) *publicwasm.FunctionType {
	importCount := m.ImportFuncCount()
	if funcIdx < importCount {
		var seen Index
		for i := range m.ImportSection {
			imp := &m.ImportSection[i]
			if imp.Type != api.ExternTypeFunc {
				continue
			}
			if seen == funcIdx {
				if imp.DescFunc >= uint32(len(m.TypeSection)) {
					return nil
				}
				return &m.TypeSection[imp.DescFunc]
			}
			seen++
		}
		return nil
	}
	sectionIdx := funcIdx - importCount
	if sectionIdx >= uint32(len(m.FunctionSection)) {
		return nil
	}
	typeIdx := m.FunctionSection[sectionIdx]
	if typeIdx >= uint32(len(m.TypeSection)) {
		return nil
	}
	return &m.TypeSection[typeIdx]
}
