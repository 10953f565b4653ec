package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"

	publicwasm "github.com/shrin18/swam/wasm"
)

func TestMemoryInstance_Grow(t *testing.T) {
	two := uint32(2)

	t.Run("within max", func(t *testing.T) {
		m := NewMemoryInstance(&publicwasm.MemoryType{Min: 1, Max: &two}, false, MemoryMaxPages)
		require.Equal(t, uint32(1), m.Pages())

		require.Equal(t, uint32(1), m.Grow(1))
		require.Equal(t, uint32(2), m.Pages())
		require.Equal(t, uint64(2*65536), uint64(m.Size()))
	})

	t.Run("past max is -1 and leaves memory unchanged", func(t *testing.T) {
		m := NewMemoryInstance(&publicwasm.MemoryType{Min: 1, Max: &two}, false, MemoryMaxPages)
		require.Equal(t, uint32(1), m.Grow(1))
		require.Equal(t, uint32(0xffffffff), m.Grow(1))
		require.Equal(t, uint32(2), m.Pages())
	})

	t.Run("no declared max is bounded by the configured maximum", func(t *testing.T) {
		m := NewMemoryInstance(&publicwasm.MemoryType{Min: 0}, false, 3)
		require.Equal(t, uint32(0), m.Grow(3))
		require.Equal(t, uint32(0xffffffff), m.Grow(1))
	})

	t.Run("grow by zero returns current size", func(t *testing.T) {
		m := NewMemoryInstance(&publicwasm.MemoryType{Min: 1, Max: &two}, false, MemoryMaxPages)
		require.Equal(t, uint32(1), m.Grow(0))
		require.Equal(t, uint32(1), m.Pages())
	})

	t.Run("capacity from max never reallocates", func(t *testing.T) {
		m := NewMemoryInstance(&publicwasm.MemoryType{Min: 1, Max: &two}, true, MemoryMaxPages)
		require.Equal(t, uint32(1), m.Pages())
		require.Equal(t, int(MemoryPagesToBytesNum(2)), cap(m.Buffer))

		before := &m.Buffer[0]
		require.Equal(t, uint32(1), m.Grow(1))
		require.Same(t, before, &m.Buffer[0])
	})
}

func TestMemoryInstance_ReadWrite(t *testing.T) {
	m := NewMemoryInstance(&publicwasm.MemoryType{Min: 1}, false, MemoryMaxPages)

	require.True(t, m.WriteUint32Le(0, 0x01020304))
	v32, ok := m.ReadUint32Le(0)
	require.True(t, ok)
	require.Equal(t, uint32(0x01020304), v32)

	// The encoding is little-endian.
	b, ok := m.ReadByte(0)
	require.True(t, ok)
	require.Equal(t, byte(0x04), b)

	require.True(t, m.WriteUint64Le(8, 0xdeadbeef00112233))
	v64, ok := m.ReadUint64Le(8)
	require.True(t, ok)
	require.Equal(t, uint64(0xdeadbeef00112233), v64)

	require.True(t, m.Write(100, []byte("Hello")))
	buf, ok := m.Read(100, 5)
	require.True(t, ok)
	require.Equal(t, []byte("Hello"), buf)

	// Out of range accesses fail rather than partially apply.
	require.False(t, m.WriteUint32Le(65533, 1))
	_, ok = m.ReadUint64Le(65529)
	require.False(t, ok)
	require.False(t, m.Write(65532, []byte("Hello")))
	_, ok = m.Read(65532, 5)
	require.False(t, ok)
}
