package swam

import (
	"encoding/binary"

	"github.com/shrin18/swam/internal/engine/flat"
	"github.com/shrin18/swam/internal/engine/structured"
	internalwasm "github.com/shrin18/swam/internal/wasm"
)

// RuntimeConfig controls runtime behavior, with the default implementation as NewRuntimeConfig.
type RuntimeConfig struct {
	newEngine             func(callStackDepth int, order binary.ByteOrder) internalwasm.Engine
	byteOrder             binary.ByteOrder
	callStackDepth        int
	memoryMaxPages        uint32
	memoryCapacityFromMax bool
}

// engineLessConfig helps avoid copy/pasting the wrong defaults.
var engineLessConfig = &RuntimeConfig{
	byteOrder:      binary.NativeEndian,
	callStackDepth: 2048,
	memoryMaxPages: internalwasm.MemoryMaxPages,
}

// clone ensures all fields are copied even if nil.
func (c *RuntimeConfig) clone() *RuntimeConfig {
	return &RuntimeConfig{
		newEngine:             c.newEngine,
		byteOrder:             c.byteOrder,
		callStackDepth:        c.callStackDepth,
		memoryMaxPages:        c.memoryMaxPages,
		memoryCapacityFromMax: c.memoryCapacityFromMax,
	}
}

// NewRuntimeConfig returns the default configuration: the structured back-end.
func NewRuntimeConfig() *RuntimeConfig {
	return NewRuntimeConfigStructured()
}

// NewRuntimeConfigStructured selects the high-level back-end: bodies compile to a size-prefixed structured form
// executed by recursive descent. Simpler and branch-free of absolute offsets, at some dispatch cost.
func NewRuntimeConfigStructured() *RuntimeConfig {
	ret := engineLessConfig.clone()
	ret.newEngine = func(callStackDepth int, _ binary.ByteOrder) internalwasm.Engine {
		return structured.NewEngine(callStackDepth)
	}
	return ret
}

// NewRuntimeConfigFlat selects the low-level back-end: bodies assemble to a flat instruction stream with absolute
// jump targets executed by a threaded dispatcher.
func NewRuntimeConfigFlat() *RuntimeConfig {
	ret := engineLessConfig.clone()
	ret.newEngine = flat.NewEngine
	return ret
}

// WithByteOrder sets the byte order the flat back-end uses for instruction immediates. Defaults to the native
// order.
//
// Note: This concerns compiled instruction streams only. Memory bytes are always little-endian as the
// specification mandates, whatever is configured here.
func (c *RuntimeConfig) WithByteOrder(order binary.ByteOrder) *RuntimeConfig {
	ret := c.clone()
	ret.byteOrder = order
	return ret
}

// WithCallStackDepth bounds the call frame stack. Exceeding it traps with api.TrapCodeCallStackOverflow.
func (c *RuntimeConfig) WithCallStackDepth(depth int) *RuntimeConfig {
	ret := c.clone()
	ret.callStackDepth = depth
	return ret
}

// WithMemoryMaxPages reduces the maximum number of pages a memory without a declared maximum can grow to, from
// 65536 pages (4GiB) to a lower value.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#grow-mem
func (c *RuntimeConfig) WithMemoryMaxPages(memoryMaxPages uint32) *RuntimeConfig {
	ret := c.clone()
	ret.memoryMaxPages = memoryMaxPages
	return ret
}

// WithMemoryCapacityFromMax eagerly reserves each memory's buffer capacity at its maximum, so memory.grow never
// copies. Trades address space for predictable growth; defaults to false.
func (c *RuntimeConfig) WithMemoryCapacityFromMax(memoryCapacityFromMax bool) *RuntimeConfig {
	ret := c.clone()
	ret.memoryCapacityFromMax = memoryCapacityFromMax
	return ret
}
