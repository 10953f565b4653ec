package wasm

import (
	"fmt"

	"github.com/shrin18/swam/api"
	publicwasm "github.com/shrin18/swam/wasm"
)

// GlobalInstance represents a global instance in a store.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#global-instances%E2%91%A0
type GlobalInstance struct {
	Type publicwasm.GlobalType
	// Val holds a 64-bit representation of the actual value.
	Val uint64
}

// mutableGlobal implements api.MutableGlobal. Only globals whose type descriptor declares mutability are ever
// wrapped in this: an immutable global is exported as constantGlobal, which has no Set.
type mutableGlobal struct {
	g *GlobalInstance
}

// compile-time check to ensure mutableGlobal is an api.MutableGlobal
var _ api.MutableGlobal = &mutableGlobal{}

// Type implements api.Global Type.
func (g *mutableGlobal) Type() api.ValueType {
	return g.g.Type.ValType
}

// Get implements api.Global Get.
func (g *mutableGlobal) Get() uint64 {
	return g.g.Val
}

// Set implements api.MutableGlobal Set.
func (g *mutableGlobal) Set(v uint64) {
	g.g.Val = v
}

// String implements fmt.Stringer.
func (g *mutableGlobal) String() string {
	return globalString(g.Type(), g.Get())
}

// constantGlobal implements api.Global for globals declared immutable: there is no write path after initializer
// evaluation.
type constantGlobal struct {
	g *GlobalInstance
}

// compile-time check to ensure constantGlobal is an api.Global
var _ api.Global = constantGlobal{}

// Type implements api.Global Type.
func (g constantGlobal) Type() api.ValueType {
	return g.g.Type.ValType
}

// Get implements api.Global Get.
func (g constantGlobal) Get() uint64 {
	return g.g.Val
}

// String implements fmt.Stringer.
func (g constantGlobal) String() string {
	return globalString(g.Type(), g.Get())
}

func globalString(t api.ValueType, v uint64) string {
	switch t {
	case api.ValueTypeI32, api.ValueTypeI64:
		return fmt.Sprintf("global(%d)", v)
	case api.ValueTypeF32:
		return fmt.Sprintf("global(%f)", api.DecodeF32(v))
	case api.ValueTypeF64:
		return fmt.Sprintf("global(%f)", api.DecodeF64(v))
	default:
		panic(fmt.Errorf("BUG: unknown value type %X", t))
	}
}
