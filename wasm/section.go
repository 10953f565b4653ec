package wasm

// SectionID identifies the sections of a module in the WebAssembly 1.0 (20191205) binary format.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#sections%E2%91%A0
type SectionID = byte

const (
	// SectionIDCustom includes the standard-defined name section and possibly others not defined in the standard.
	SectionIDCustom SectionID = iota
	SectionIDType
	SectionIDImport
	SectionIDFunction
	SectionIDTable
	SectionIDMemory
	SectionIDGlobal
	SectionIDExport
	SectionIDStart
	SectionIDElement
	SectionIDCode
	SectionIDData
)

// SectionIDName returns the canonical name of a module section.
func SectionIDName(sectionID SectionID) string {
	switch sectionID {
	case SectionIDCustom:
		return "custom"
	case SectionIDType:
		return "type"
	case SectionIDImport:
		return "import"
	case SectionIDFunction:
		return "function"
	case SectionIDTable:
		return "table"
	case SectionIDMemory:
		return "memory"
	case SectionIDGlobal:
		return "global"
	case SectionIDExport:
		return "export"
	case SectionIDStart:
		return "start"
	case SectionIDElement:
		return "element"
	case SectionIDCode:
		return "code"
	case SectionIDData:
		return "data"
	}
	return "unknown"
}

// Section is one record of the decoded section stream. The external decoder yields sections in the order the binary
// format mandates, and the external validator has already type-checked them by the time the engine folds them into a
// module. Each section kind appears at most once, except SectionCustom.
type Section interface {
	// SectionID returns which section this record is.
	SectionID() SectionID
}

type (
	// SectionTypes carries the unique function signatures of functions imported or defined in this module.
	SectionTypes struct{ Types []FunctionType }

	// SectionImports carries the functions, tables, memories and globals required for instantiation.
	SectionImports struct{ Imports []Import }

	// SectionFunctions carries the index in SectionTypes of each function defined in this module, index-correlated
	// with SectionCode.
	SectionFunctions struct{ TypeIndices []Index }

	// SectionTables carries each table defined in this module: at most one in WebAssembly 1.0 (20191205).
	SectionTables struct{ Tables []TableType }

	// SectionMemories carries each memory defined in this module: at most one in WebAssembly 1.0 (20191205).
	SectionMemories struct{ Memories []MemoryType }

	// SectionGlobals carries each global defined in this module with its initializer expression.
	SectionGlobals struct{ Globals []Global }

	// SectionExports carries each export defined in this module.
	SectionExports struct{ Exports []Export }

	// SectionStart carries the index of a function invoked after instantiation completes.
	SectionStart struct{ FuncIndex Index }

	// SectionElements carries the table initialization segments.
	SectionElements struct{ Segments []ElementSegment }

	// SectionCode carries the locals and body of each defined function, index-correlated with SectionFunctions.
	SectionCode struct{ Bodies []FuncBody }

	// SectionData carries the memory initialization segments.
	SectionData struct{ Segments []DataSegment }

	// SectionCustom carries an opaque name and payload. Custom sections are retained on the compiled module and
	// otherwise ignored.
	SectionCustom struct {
		Name string
		Data []byte
	}
)

// SectionID implements Section.
func (SectionTypes) SectionID() SectionID { return SectionIDType }

// SectionID implements Section.
func (SectionImports) SectionID() SectionID { return SectionIDImport }

// SectionID implements Section.
func (SectionFunctions) SectionID() SectionID { return SectionIDFunction }

// SectionID implements Section.
func (SectionTables) SectionID() SectionID { return SectionIDTable }

// SectionID implements Section.
func (SectionMemories) SectionID() SectionID { return SectionIDMemory }

// SectionID implements Section.
func (SectionGlobals) SectionID() SectionID { return SectionIDGlobal }

// SectionID implements Section.
func (SectionExports) SectionID() SectionID { return SectionIDExport }

// SectionID implements Section.
func (SectionStart) SectionID() SectionID { return SectionIDStart }

// SectionID implements Section.
func (SectionElements) SectionID() SectionID { return SectionIDElement }

// SectionID implements Section.
func (SectionCode) SectionID() SectionID { return SectionIDCode }

// SectionID implements Section.
func (SectionData) SectionID() SectionID { return SectionIDData }

// SectionID implements Section.
func (SectionCustom) SectionID() SectionID { return SectionIDCustom }
