package operand

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shrin18/swam/api"
	wasm "github.com/shrin18/swam/internal/wasm"
	publicwasm "github.com/shrin18/swam/wasm"
)

func TestStack_Unwind(t *testing.T) {
	s := &Stack{Values: []uint64{1, 2, 3, 4, 5}}
	s.Unwind(1, 1)
	require.Equal(t, []uint64{1, 5}, s.Values)

	s = &Stack{Values: []uint64{1, 2, 3}}
	s.Unwind(0, 0)
	require.Empty(t, s.Values)
}

func TestStack_Drop(t *testing.T) {
	s := &Stack{Values: []uint64{1, 2, 3, 4, 5}}
	s.Drop(2, 1) // preserve the top value, discard the two beneath
	require.Equal(t, []uint64{1, 2, 5}, s.Values)

	s = &Stack{Values: []uint64{1, 2, 3}}
	s.Drop(0, 1)
	require.Equal(t, []uint64{1, 2, 3}, s.Values)
}

func TestNumeric_DivisionTraps(t *testing.T) {
	t.Run("i32 divide by zero", func(t *testing.T) {
		s := &Stack{Values: []uint64{1, 0}}
		require.PanicsWithValue(t, wasm.ErrRuntimeIntegerDivideByZero, func() {
			s.Numeric(publicwasm.OpcodeI32DivS)
		})
	})

	t.Run("i32 overflow on MinInt32 / -1", func(t *testing.T) {
		minInt32 := int32(math.MinInt32)
		s := &Stack{Values: []uint64{uint64(uint32(minInt32)), uint64(uint32(0xffffffff))}}
		require.PanicsWithValue(t, wasm.ErrRuntimeIntegerOverflow, func() {
			s.Numeric(publicwasm.OpcodeI32DivS)
		})
	})

	t.Run("i32 MinInt32 rem -1 is 0, not a trap", func(t *testing.T) {
		minInt32 := int32(math.MinInt32)
		s := &Stack{Values: []uint64{uint64(uint32(minInt32)), uint64(uint32(0xffffffff))}}
		s.Numeric(publicwasm.OpcodeI32RemS)
		require.Equal(t, []uint64{0}, s.Values)
	})

	t.Run("i64 divide by zero", func(t *testing.T) {
		s := &Stack{Values: []uint64{1, 0}}
		require.PanicsWithValue(t, wasm.ErrRuntimeIntegerDivideByZero, func() {
			s.Numeric(publicwasm.OpcodeI64DivU)
		})
	})
}

func TestNumeric_TruncationTraps(t *testing.T) {
	t.Run("NaN is an invalid conversion", func(t *testing.T) {
		s := &Stack{Values: []uint64{api.EncodeF64(math.NaN())}}
		require.PanicsWithValue(t, wasm.ErrRuntimeInvalidConversionToInteger, func() {
			s.Numeric(publicwasm.OpcodeI32TruncF64S)
		})
	})

	t.Run("out of range overflows", func(t *testing.T) {
		s := &Stack{Values: []uint64{api.EncodeF64(float64(math.MaxInt32) + 1)}}
		require.PanicsWithValue(t, wasm.ErrRuntimeIntegerOverflow, func() {
			s.Numeric(publicwasm.OpcodeI32TruncF64S)
		})
	})

	t.Run("negative fraction truncates to zero for unsigned", func(t *testing.T) {
		s := &Stack{Values: []uint64{api.EncodeF64(-0.5)}}
		s.Numeric(publicwasm.OpcodeI32TruncF64U)
		require.Equal(t, []uint64{0}, s.Values)
	})

	t.Run("in range truncates toward zero", func(t *testing.T) {
		s := &Stack{Values: []uint64{api.EncodeF64(-3.9)}}
		s.Numeric(publicwasm.OpcodeI32TruncF64S)
		require.Equal(t, []uint64{uint64(uint32(0xfffffffd))}, s.Values) // -3
	})
}

func TestMemory_Bounds(t *testing.T) {
	mem := &wasm.MemoryInstance{Buffer: make([]byte, 8)}

	t.Run("load in range", func(t *testing.T) {
		mem.Buffer[4] = 42
		s := &Stack{Values: []uint64{4}}
		s.Memory(mem, publicwasm.OpcodeI32Load8U, 0)
		require.Equal(t, []uint64{42}, s.Values)
	})

	t.Run("load past the end traps", func(t *testing.T) {
		s := &Stack{Values: []uint64{5}}
		require.PanicsWithValue(t, wasm.ErrRuntimeOutOfBoundsMemoryAccess, func() {
			s.Memory(mem, publicwasm.OpcodeI32Load, 0)
		})
	})

	t.Run("static offset participates in the bounds check", func(t *testing.T) {
		s := &Stack{Values: []uint64{0}}
		require.PanicsWithValue(t, wasm.ErrRuntimeOutOfBoundsMemoryAccess, func() {
			s.Memory(mem, publicwasm.OpcodeI64Load, 1)
		})
	})

	t.Run("store writes little-endian", func(t *testing.T) {
		s := &Stack{Values: []uint64{0, 0x01020304}}
		s.Memory(mem, publicwasm.OpcodeI32Store, 0)
		require.Equal(t, []byte{4, 3, 2, 1}, mem.Buffer[:4])
	})
}
