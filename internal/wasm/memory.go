package wasm

import (
	"encoding/binary"

	publicwasm "github.com/shrin18/swam/wasm"
)

const (
	// MemoryPageSize is the unit of memory length in WebAssembly, and is defined as 2^16 = 65536.
	//
	// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#memory-instances%E2%91%A0
	MemoryPageSize = uint32(65536)
	// MemoryMaxPages is the maximum number of pages (2^16) addressable with a 32-bit offset.
	MemoryMaxPages = uint32(65536)
	// MemoryPageSizeInBits satisfies the relation: "1 << MemoryPageSizeInBits == MemoryPageSize".
	MemoryPageSizeInBits = 16
)

// MemoryInstance represents a memory instance in a store, and implements api.Memory.
//
// Note: In WebAssembly 1.0 (20191205), there may be up to one memory per module.
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#memory-instances%E2%91%A0
type MemoryInstance struct {
	Buffer   []byte
	Min, Max uint32
}

// NewMemoryInstance allocates storage for a defined memory. When capacityFromMax is set, the full maximum is
// reserved up front so Grow never copies; otherwise the buffer starts at the declared minimum. maxPages bounds
// memories that declare no maximum.
func NewMemoryInstance(memSec *publicwasm.MemoryType, capacityFromMax bool, maxPages uint32) *MemoryInstance {
	max := maxPages
	if memSec.Max != nil {
		max = *memSec.Max
	}
	capacity := MemoryPagesToBytesNum(memSec.Min)
	if capacityFromMax {
		return &MemoryInstance{
			Buffer: make([]byte, capacity, MemoryPagesToBytesNum(max)),
			Min:    memSec.Min,
			Max:    max,
		}
	}
	return &MemoryInstance{Buffer: make([]byte, capacity), Min: memSec.Min, Max: max}
}

// Size implements api.Memory Size.
func (m *MemoryInstance) Size() uint32 {
	return uint32(len(m.Buffer))
}

// Pages implements api.Memory Pages.
func (m *MemoryInstance) Pages() uint32 {
	return memoryBytesNumToPages(uint64(len(m.Buffer)))
}

// hasSize returns true if the buffer is sufficient for sizeInBytes at the given offset.
func (m *MemoryInstance) hasSize(offset uint32, sizeInBytes uint32) bool {
	return uint64(offset)+uint64(sizeInBytes) <= uint64(m.Size()) // uint64 prevents overflow on add
}

// ReadByte implements api.Memory ReadByte.
func (m *MemoryInstance) ReadByte(offset uint32) (byte, bool) {
	if offset >= m.Size() {
		return 0, false
	}
	return m.Buffer[offset], true
}

// ReadUint32Le implements api.Memory ReadUint32Le.
func (m *MemoryInstance) ReadUint32Le(offset uint32) (uint32, bool) {
	if !m.hasSize(offset, 4) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(m.Buffer[offset : offset+4]), true
}

// ReadUint64Le implements api.Memory ReadUint64Le.
func (m *MemoryInstance) ReadUint64Le(offset uint32) (uint64, bool) {
	if !m.hasSize(offset, 8) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(m.Buffer[offset : offset+8]), true
}

// Read implements api.Memory Read.
func (m *MemoryInstance) Read(offset, byteCount uint32) ([]byte, bool) {
	if !m.hasSize(offset, byteCount) {
		return nil, false
	}
	return m.Buffer[offset : offset+byteCount], true
}

// WriteByte implements api.Memory WriteByte.
func (m *MemoryInstance) WriteByte(offset uint32, v byte) bool {
	if offset >= m.Size() {
		return false
	}
	m.Buffer[offset] = v
	return true
}

// WriteUint32Le implements api.Memory WriteUint32Le.
func (m *MemoryInstance) WriteUint32Le(offset, v uint32) bool {
	if !m.hasSize(offset, 4) {
		return false
	}
	binary.LittleEndian.PutUint32(m.Buffer[offset:], v)
	return true
}

// WriteUint64Le implements api.Memory WriteUint64Le.
func (m *MemoryInstance) WriteUint64Le(offset uint32, v uint64) bool {
	if !m.hasSize(offset, 8) {
		return false
	}
	binary.LittleEndian.PutUint64(m.Buffer[offset:], v)
	return true
}

// Write implements api.Memory Write.
func (m *MemoryInstance) Write(offset uint32, val []byte) bool {
	if !m.hasSize(offset, uint32(len(val))) {
		return false
	}
	copy(m.Buffer[offset:], val)
	return true
}

// Grow implements api.Memory Grow. Growth is atomic: either the previous page count is returned after the buffer
// was extended, or 0xFFFFFFFF (-1 by Wasm convention) is returned and the buffer is unchanged.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#grow-mem
func (m *MemoryInstance) Grow(newPages uint32) (result uint32) {
	currentPages := m.Pages()
	if newPages > m.Max || currentPages > m.Max-newPages {
		return 0xffffffff // = -1 in signed 32-bit integer.
	}
	m.Buffer = append(m.Buffer, make([]byte, MemoryPagesToBytesNum(newPages))...)
	return currentPages
}

// MemoryPagesToBytesNum converts the given pages into the number of bytes contained in those pages.
func MemoryPagesToBytesNum(pages uint32) (bytesNum uint64) {
	return uint64(pages) << MemoryPageSizeInBits
}

// memoryBytesNumToPages converts the given number of bytes into the number of pages.
func memoryBytesNumToPages(bytesNum uint64) (pages uint32) {
	return uint32(bytesNum >> MemoryPageSizeInBits)
}
