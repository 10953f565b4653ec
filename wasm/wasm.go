// Package wasm holds the structured representation of a WebAssembly 1.0 (20191205) module as produced by an external
// decoder and checked by an external validator: section records, descriptors and the instruction ADT. The engine core
// under internal/ consumes these types and assumes they were validated.
package wasm

import (
	"github.com/shrin18/swam/api"
)

// Index is the offset in an index namespace, not necessarily an absolute position in a module section. This is
// because index namespaces are often preceded by a corresponding type in the import section.
//
// For example, the function index namespace starts with any api.ExternTypeFunc in the import section followed by
// the function section.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-index
type Index = uint32

// ValueType is an alias of api.ValueType. See that for documentation.
type ValueType = api.ValueType

const (
	ValueTypeI32 = api.ValueTypeI32
	ValueTypeI64 = api.ValueTypeI64
	ValueTypeF32 = api.ValueTypeF32
	ValueTypeF64 = api.ValueTypeF64
)

// RefTypeFuncref is the only element type defined in WebAssembly 1.0 (20191205).
const RefTypeFuncref = byte(0x70)

// FunctionType is a possibly empty function signature.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#function-types%E2%91%A0
type FunctionType struct {
	// Params are the possibly empty sequence of value types accepted by a function with this signature.
	Params []ValueType

	// Results are the possibly empty sequence of value types returned by a function with this signature.
	//
	// Note: In WebAssembly 1.0 (20191205), there can be at most one result.
	Results []ValueType
}

// String returns a key unique per signature, used to coalesce store-scoped type IDs.
func (t *FunctionType) String() (ret string) {
	for _, b := range t.Params {
		ret += api.ValueTypeName(b)
	}
	if len(t.Params) == 0 {
		ret += "null"
	}
	ret += "_"
	for _, b := range t.Results {
		ret += api.ValueTypeName(b)
	}
	if len(t.Results) == 0 {
		ret += "null"
	}
	return
}

// Limits describe the size range of a table or memory. Max is nil when the declaration is unbounded.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#syntax-limits
type Limits struct {
	Min uint32
	Max *uint32
}

// TableType describes a table declaration: its element type and limits.
type TableType struct {
	ElemType byte
	Limit    Limits
}

// MemoryType describes a memory declaration in units of 65536-byte pages.
type MemoryType = Limits

// GlobalType describes the value type and mutability of a global.
type GlobalType struct {
	ValType ValueType
	Mutable bool
}

// Global is a global declaration with its constant initializer expression.
type Global struct {
	Type GlobalType
	Init []Instruction
}

// Import is the binary representation of an import indicated by Type.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-import
type Import struct {
	Type api.ExternType
	// Module is the possibly empty primary namespace of this import.
	Module string
	// Name is the possibly empty secondary namespace of this import.
	Name string
	// DescFunc is the index in the type section when Type equals api.ExternTypeFunc.
	DescFunc Index
	// DescTable is the inlined TableType when Type equals api.ExternTypeTable.
	DescTable *TableType
	// DescMem is the inlined MemoryType when Type equals api.ExternTypeMemory.
	DescMem *MemoryType
	// DescGlobal is the inlined GlobalType when Type equals api.ExternTypeGlobal.
	DescGlobal *GlobalType
}

// Export is the binary representation of an export indicated by Type.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-export
type Export struct {
	Type api.ExternType
	// Name is what the host refers to this definition as.
	Name string
	// Index is the index of the definition to export; the index namespace is by Type.
	Index Index
}

// ElementSegment initializes a region of a table from a vector of function indices.
type ElementSegment struct {
	TableIndex Index
	// Offset is the i32 constant expression locating the first element to write.
	Offset []Instruction
	// Init is the vector of function indices written starting at Offset.
	Init []Index
}

// DataSegment initializes a region of a memory from a byte vector.
type DataSegment struct {
	MemoryIndex Index
	// Offset is the i32 constant expression locating the first byte to write.
	Offset []Instruction
	// Init is the raw payload copied starting at Offset.
	Init []byte
}

// LocalGroup is a run-length encoded group of function-scoped variables of one type.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#binary-local
type LocalGroup struct {
	Count uint32
	Type  ValueType
}

// FuncBody is an entry of the code section: the locals and structured body of one defined function.
type FuncBody struct {
	Locals []LocalGroup
	Body   []Instruction
}
