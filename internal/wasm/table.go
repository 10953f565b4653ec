package wasm

import (
	"fmt"
	"math"

	"github.com/shrin18/swam/api"
	publicwasm "github.com/shrin18/swam/wasm"
)

// UninitializedTableElementTypeID marks elements no segment ever wrote. Calling through one traps.
const UninitializedTableElementTypeID FunctionTypeID = math.MaxUint32

// TableElement is an item in a table instance.
//
// Note: This is fixed to function references as that is the only element type in WebAssembly 1.0 (20191205).
type TableElement struct {
	// Function is the referenced function instance, or nil when this element was never initialized.
	Function *FunctionInstance
	// TypeID equals Function.Type.TypeID and is what call_indirect compares against its static type immediate.
	TypeID FunctionTypeID
}

// TableInstance represents a table instance in a store.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#table-instances%E2%91%A0
type TableInstance struct {
	// Table holds the elements managed by this instance.
	Table []TableElement
	Min   uint32
	Max   *uint32
	// ElemType is currently fixed to 0x70 (funcref).
	ElemType byte
}

// NewTableInstance allocates a table of min uninitialized elements. Also used by the host module builder.
func NewTableInstance(min uint32, max *uint32) *TableInstance {
	t := &TableInstance{
		Table:    make([]TableElement, min),
		Min:      min,
		Max:      max,
		ElemType: publicwasm.RefTypeFuncref,
	}
	for i := range t.Table {
		t.Table[i] = TableElement{TypeID: UninitializedTableElementTypeID}
	}
	return t
}

// Grow extends the table by delta elements and returns the previous element count, or 0xFFFFFFFF if the declared
// maximum would be exceeded.
func (t *TableInstance) Grow(delta uint32) uint32 {
	current := uint32(len(t.Table))
	if t.Max != nil && (delta > *t.Max || current > *t.Max-delta) {
		return 0xffffffff // = -1 in signed 32-bit integer.
	}
	for i := uint32(0); i < delta; i++ {
		t.Table = append(t.Table, TableElement{TypeID: UninitializedTableElementTypeID})
	}
	return current
}

// exportedTable implements api.Table for a table exported from an instance.
type exportedTable struct {
	t      *TableInstance
	engine Engine
}

// compile-time check to ensure exportedTable is an api.Table
var _ api.Table = &exportedTable{}

// Size implements api.Table Size.
func (e *exportedTable) Size() uint32 {
	return uint32(len(e.t.Table))
}

// Grow implements api.Table Grow.
func (e *exportedTable) Grow(delta uint32) uint32 {
	return e.t.Grow(delta)
}

// Get implements api.Table Get.
func (e *exportedTable) Get(index uint32) api.Function {
	if index >= uint32(len(e.t.Table)) {
		return nil
	}
	elem := e.t.Table[index]
	if elem.Function == nil {
		return nil
	}
	return &exportedFunction{f: elem.Function, engine: e.engine}
}

// Set implements api.Table Set.
func (e *exportedTable) Set(index uint32, f api.Function) error {
	if index >= uint32(len(e.t.Table)) {
		return fmt.Errorf("table index %d out of range (size %d)", index, len(e.t.Table))
	}
	exp, ok := f.(*exportedFunction)
	if !ok || exp.engine != e.engine {
		return fmt.Errorf("function was not exported from this runtime")
	}
	e.t.Table[index] = TableElement{Function: exp.f, TypeID: exp.f.Type.TypeID}
	return nil
}
