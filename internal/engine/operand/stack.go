// Package operand implements the 64-bit operand stack shared by both back-end interpreters, together with the
// numeric, conversion and memory instruction kernels that act on it. The two back-ends differ only in how control
// flow is encoded and dispatched; everything value-shaped lives here so their observable behavior cannot drift
// apart.
package operand

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"

	"github.com/shrin18/swam/api"
	"github.com/shrin18/swam/internal/moremath"
	wasm "github.com/shrin18/swam/internal/wasm"
	publicwasm "github.com/shrin18/swam/wasm"
)

// Stack is a dense array of 64-bit slots: i32/f32 fill the low bits, i64/f64 fill the slot. Bounds are never
// checked: operand counts were proven by the external validator.
type Stack struct {
	Values []uint64
}

// Len returns the current depth.
func (s *Stack) Len() int {
	return len(s.Values)
}

// Push appends v.
func (s *Stack) Push(v uint64) {
	s.Values = append(s.Values, v)
}

// Pop removes and returns the top slot.
func (s *Stack) Pop() (v uint64) {
	v = s.Values[len(s.Values)-1]
	s.Values = s.Values[:len(s.Values)-1]
	return
}

// Peek returns the top slot without removing it.
func (s *Stack) Peek() uint64 {
	return s.Values[len(s.Values)-1]
}

// PushBool pushes 1 for true and 0 for false.
func (s *Stack) PushBool(b bool) {
	if b {
		s.Push(1)
	} else {
		s.Push(0)
	}
}

// Unwind discards every slot above base except the top arity values, which are preserved in place.
func (s *Stack) Unwind(base, arity int) {
	if arity > 0 {
		copy(s.Values[base:], s.Values[len(s.Values)-arity:])
	}
	s.Values = s.Values[:base+arity]
}

// Drop removes n slots beneath the top arity values, which are preserved in place.
func (s *Stack) Drop(n, arity int) {
	if n == 0 {
		return
	}
	top := len(s.Values)
	copy(s.Values[top-arity-n:], s.Values[top-arity:])
	s.Values = s.Values[:top-n]
}

// Memory executes one load or store (opcodes 0x28..0x3e) against mem. offset is the static immediate added to
// the popped base address; bounds violations trap.
func (s *Stack) Memory(mem *wasm.MemoryInstance, op publicwasm.Opcode, offset uint32) {
	buf := mem.Buffer
	switch op {
	case publicwasm.OpcodeI32Load, publicwasm.OpcodeF32Load:
		ea := s.effectiveAddress(offset)
		if uint64(len(buf)) < ea+4 {
			panic(wasm.ErrRuntimeOutOfBoundsMemoryAccess)
		}
		s.Push(uint64(binary.LittleEndian.Uint32(buf[ea:])))
	case publicwasm.OpcodeI64Load, publicwasm.OpcodeF64Load:
		ea := s.effectiveAddress(offset)
		if uint64(len(buf)) < ea+8 {
			panic(wasm.ErrRuntimeOutOfBoundsMemoryAccess)
		}
		s.Push(binary.LittleEndian.Uint64(buf[ea:]))
	case publicwasm.OpcodeI32Load8S:
		ea := s.effectiveAddress(offset)
		if uint64(len(buf)) < ea+1 {
			panic(wasm.ErrRuntimeOutOfBoundsMemoryAccess)
		}
		s.Push(uint64(uint32(int32(int8(buf[ea])))))
	case publicwasm.OpcodeI32Load8U:
		ea := s.effectiveAddress(offset)
		if uint64(len(buf)) < ea+1 {
			panic(wasm.ErrRuntimeOutOfBoundsMemoryAccess)
		}
		s.Push(uint64(buf[ea]))
	case publicwasm.OpcodeI32Load16S:
		ea := s.effectiveAddress(offset)
		if uint64(len(buf)) < ea+2 {
			panic(wasm.ErrRuntimeOutOfBoundsMemoryAccess)
		}
		s.Push(uint64(uint32(int32(int16(binary.LittleEndian.Uint16(buf[ea:]))))))
	case publicwasm.OpcodeI32Load16U:
		ea := s.effectiveAddress(offset)
		if uint64(len(buf)) < ea+2 {
			panic(wasm.ErrRuntimeOutOfBoundsMemoryAccess)
		}
		s.Push(uint64(binary.LittleEndian.Uint16(buf[ea:])))
	case publicwasm.OpcodeI64Load8S:
		ea := s.effectiveAddress(offset)
		if uint64(len(buf)) < ea+1 {
			panic(wasm.ErrRuntimeOutOfBoundsMemoryAccess)
		}
		s.Push(uint64(int64(int8(buf[ea]))))
	case publicwasm.OpcodeI64Load8U:
		ea := s.effectiveAddress(offset)
		if uint64(len(buf)) < ea+1 {
			panic(wasm.ErrRuntimeOutOfBoundsMemoryAccess)
		}
		s.Push(uint64(buf[ea]))
	case publicwasm.OpcodeI64Load16S:
		ea := s.effectiveAddress(offset)
		if uint64(len(buf)) < ea+2 {
			panic(wasm.ErrRuntimeOutOfBoundsMemoryAccess)
		}
		s.Push(uint64(int64(int16(binary.LittleEndian.Uint16(buf[ea:])))))
	case publicwasm.OpcodeI64Load16U:
		ea := s.effectiveAddress(offset)
		if uint64(len(buf)) < ea+2 {
			panic(wasm.ErrRuntimeOutOfBoundsMemoryAccess)
		}
		s.Push(uint64(binary.LittleEndian.Uint16(buf[ea:])))
	case publicwasm.OpcodeI64Load32S:
		ea := s.effectiveAddress(offset)
		if uint64(len(buf)) < ea+4 {
			panic(wasm.ErrRuntimeOutOfBoundsMemoryAccess)
		}
		s.Push(uint64(int64(int32(binary.LittleEndian.Uint32(buf[ea:])))))
	case publicwasm.OpcodeI64Load32U:
		ea := s.effectiveAddress(offset)
		if uint64(len(buf)) < ea+4 {
			panic(wasm.ErrRuntimeOutOfBoundsMemoryAccess)
		}
		s.Push(uint64(binary.LittleEndian.Uint32(buf[ea:])))
	case publicwasm.OpcodeI32Store, publicwasm.OpcodeF32Store:
		val := s.Pop()
		ea := s.effectiveAddress(offset)
		if uint64(len(buf)) < ea+4 {
			panic(wasm.ErrRuntimeOutOfBoundsMemoryAccess)
		}
		binary.LittleEndian.PutUint32(buf[ea:], uint32(val))
	case publicwasm.OpcodeI64Store, publicwasm.OpcodeF64Store:
		val := s.Pop()
		ea := s.effectiveAddress(offset)
		if uint64(len(buf)) < ea+8 {
			panic(wasm.ErrRuntimeOutOfBoundsMemoryAccess)
		}
		binary.LittleEndian.PutUint64(buf[ea:], val)
	case publicwasm.OpcodeI32Store8, publicwasm.OpcodeI64Store8:
		val := byte(s.Pop())
		ea := s.effectiveAddress(offset)
		if uint64(len(buf)) < ea+1 {
			panic(wasm.ErrRuntimeOutOfBoundsMemoryAccess)
		}
		buf[ea] = val
	case publicwasm.OpcodeI32Store16, publicwasm.OpcodeI64Store16:
		val := uint16(s.Pop())
		ea := s.effectiveAddress(offset)
		if uint64(len(buf)) < ea+2 {
			panic(wasm.ErrRuntimeOutOfBoundsMemoryAccess)
		}
		binary.LittleEndian.PutUint16(buf[ea:], val)
	case publicwasm.OpcodeI64Store32:
		val := uint32(s.Pop())
		ea := s.effectiveAddress(offset)
		if uint64(len(buf)) < ea+4 {
			panic(wasm.ErrRuntimeOutOfBoundsMemoryAccess)
		}
		binary.LittleEndian.PutUint32(buf[ea:], val)
	default:
		panic(fmt.Errorf("BUG: unknown memory opcode %s", publicwasm.InstructionName(op)))
	}
}

// effectiveAddress pops the i32 base address and widens it against the static offset. The uint64 sum cannot
// overflow, which keeps every bounds check a single compare.
func (s *Stack) effectiveAddress(offset uint32) uint64 {
	return uint64(uint32(s.Pop())) + uint64(offset)
}

// Numeric executes one numeric, comparison or conversion instruction. These carry no immediates.
func (s *Stack) Numeric(op publicwasm.Opcode) {
	switch op {
	case publicwasm.OpcodeI32Eqz:
		s.PushBool(uint32(s.Pop()) == 0)
	case publicwasm.OpcodeI32Eq:
		v2, v1 := uint32(s.Pop()), uint32(s.Pop())
		s.PushBool(v1 == v2)
	case publicwasm.OpcodeI32Ne:
		v2, v1 := uint32(s.Pop()), uint32(s.Pop())
		s.PushBool(v1 != v2)
	case publicwasm.OpcodeI32LtS:
		v2, v1 := int32(s.Pop()), int32(s.Pop())
		s.PushBool(v1 < v2)
	case publicwasm.OpcodeI32LtU:
		v2, v1 := uint32(s.Pop()), uint32(s.Pop())
		s.PushBool(v1 < v2)
	case publicwasm.OpcodeI32GtS:
		v2, v1 := int32(s.Pop()), int32(s.Pop())
		s.PushBool(v1 > v2)
	case publicwasm.OpcodeI32GtU:
		v2, v1 := uint32(s.Pop()), uint32(s.Pop())
		s.PushBool(v1 > v2)
	case publicwasm.OpcodeI32LeS:
		v2, v1 := int32(s.Pop()), int32(s.Pop())
		s.PushBool(v1 <= v2)
	case publicwasm.OpcodeI32LeU:
		v2, v1 := uint32(s.Pop()), uint32(s.Pop())
		s.PushBool(v1 <= v2)
	case publicwasm.OpcodeI32GeS:
		v2, v1 := int32(s.Pop()), int32(s.Pop())
		s.PushBool(v1 >= v2)
	case publicwasm.OpcodeI32GeU:
		v2, v1 := uint32(s.Pop()), uint32(s.Pop())
		s.PushBool(v1 >= v2)
	case publicwasm.OpcodeI64Eqz:
		s.PushBool(s.Pop() == 0)
	case publicwasm.OpcodeI64Eq:
		v2, v1 := s.Pop(), s.Pop()
		s.PushBool(v1 == v2)
	case publicwasm.OpcodeI64Ne:
		v2, v1 := s.Pop(), s.Pop()
		s.PushBool(v1 != v2)
	case publicwasm.OpcodeI64LtS:
		v2, v1 := int64(s.Pop()), int64(s.Pop())
		s.PushBool(v1 < v2)
	case publicwasm.OpcodeI64LtU:
		v2, v1 := s.Pop(), s.Pop()
		s.PushBool(v1 < v2)
	case publicwasm.OpcodeI64GtS:
		v2, v1 := int64(s.Pop()), int64(s.Pop())
		s.PushBool(v1 > v2)
	case publicwasm.OpcodeI64GtU:
		v2, v1 := s.Pop(), s.Pop()
		s.PushBool(v1 > v2)
	case publicwasm.OpcodeI64LeS:
		v2, v1 := int64(s.Pop()), int64(s.Pop())
		s.PushBool(v1 <= v2)
	case publicwasm.OpcodeI64LeU:
		v2, v1 := s.Pop(), s.Pop()
		s.PushBool(v1 <= v2)
	case publicwasm.OpcodeI64GeS:
		v2, v1 := int64(s.Pop()), int64(s.Pop())
		s.PushBool(v1 >= v2)
	case publicwasm.OpcodeI64GeU:
		v2, v1 := s.Pop(), s.Pop()
		s.PushBool(v1 >= v2)
	case publicwasm.OpcodeF32Eq:
		v2, v1 := api.DecodeF32(s.Pop()), api.DecodeF32(s.Pop())
		s.PushBool(v1 == v2)
	case publicwasm.OpcodeF32Ne:
		v2, v1 := api.DecodeF32(s.Pop()), api.DecodeF32(s.Pop())
		s.PushBool(v1 != v2)
	case publicwasm.OpcodeF32Lt:
		v2, v1 := api.DecodeF32(s.Pop()), api.DecodeF32(s.Pop())
		s.PushBool(v1 < v2)
	case publicwasm.OpcodeF32Gt:
		v2, v1 := api.DecodeF32(s.Pop()), api.DecodeF32(s.Pop())
		s.PushBool(v1 > v2)
	case publicwasm.OpcodeF32Le:
		v2, v1 := api.DecodeF32(s.Pop()), api.DecodeF32(s.Pop())
		s.PushBool(v1 <= v2)
	case publicwasm.OpcodeF32Ge:
		v2, v1 := api.DecodeF32(s.Pop()), api.DecodeF32(s.Pop())
		s.PushBool(v1 >= v2)
	case publicwasm.OpcodeF64Eq:
		v2, v1 := api.DecodeF64(s.Pop()), api.DecodeF64(s.Pop())
		s.PushBool(v1 == v2)
	case publicwasm.OpcodeF64Ne:
		v2, v1 := api.DecodeF64(s.Pop()), api.DecodeF64(s.Pop())
		s.PushBool(v1 != v2)
	case publicwasm.OpcodeF64Lt:
		v2, v1 := api.DecodeF64(s.Pop()), api.DecodeF64(s.Pop())
		s.PushBool(v1 < v2)
	case publicwasm.OpcodeF64Gt:
		v2, v1 := api.DecodeF64(s.Pop()), api.DecodeF64(s.Pop())
		s.PushBool(v1 > v2)
	case publicwasm.OpcodeF64Le:
		v2, v1 := api.DecodeF64(s.Pop()), api.DecodeF64(s.Pop())
		s.PushBool(v1 <= v2)
	case publicwasm.OpcodeF64Ge:
		v2, v1 := api.DecodeF64(s.Pop()), api.DecodeF64(s.Pop())
		s.PushBool(v1 >= v2)
	case publicwasm.OpcodeI32Clz:
		s.Push(uint64(bits.LeadingZeros32(uint32(s.Pop()))))
	case publicwasm.OpcodeI32Ctz:
		s.Push(uint64(bits.TrailingZeros32(uint32(s.Pop()))))
	case publicwasm.OpcodeI32Popcnt:
		s.Push(uint64(bits.OnesCount32(uint32(s.Pop()))))
	case publicwasm.OpcodeI32Add:
		v2, v1 := uint32(s.Pop()), uint32(s.Pop())
		s.Push(uint64(v1 + v2))
	case publicwasm.OpcodeI32Sub:
		v2, v1 := uint32(s.Pop()), uint32(s.Pop())
		s.Push(uint64(v1 - v2))
	case publicwasm.OpcodeI32Mul:
		v2, v1 := uint32(s.Pop()), uint32(s.Pop())
		s.Push(uint64(v1 * v2))
	case publicwasm.OpcodeI32DivS:
		v2, v1 := int32(s.Pop()), int32(s.Pop())
		if v2 == 0 {
			panic(wasm.ErrRuntimeIntegerDivideByZero)
		}
		if v1 == math.MinInt32 && v2 == -1 {
			panic(wasm.ErrRuntimeIntegerOverflow)
		}
		s.Push(uint64(uint32(v1 / v2)))
	case publicwasm.OpcodeI32DivU:
		v2, v1 := uint32(s.Pop()), uint32(s.Pop())
		if v2 == 0 {
			panic(wasm.ErrRuntimeIntegerDivideByZero)
		}
		s.Push(uint64(v1 / v2))
	case publicwasm.OpcodeI32RemS:
		v2, v1 := int32(s.Pop()), int32(s.Pop())
		if v2 == 0 {
			panic(wasm.ErrRuntimeIntegerDivideByZero)
		}
		s.Push(uint64(uint32(v1 % v2)))
	case publicwasm.OpcodeI32RemU:
		v2, v1 := uint32(s.Pop()), uint32(s.Pop())
		if v2 == 0 {
			panic(wasm.ErrRuntimeIntegerDivideByZero)
		}
		s.Push(uint64(v1 % v2))
	case publicwasm.OpcodeI32And:
		v2, v1 := uint32(s.Pop()), uint32(s.Pop())
		s.Push(uint64(v1 & v2))
	case publicwasm.OpcodeI32Or:
		v2, v1 := uint32(s.Pop()), uint32(s.Pop())
		s.Push(uint64(v1 | v2))
	case publicwasm.OpcodeI32Xor:
		v2, v1 := uint32(s.Pop()), uint32(s.Pop())
		s.Push(uint64(v1 ^ v2))
	case publicwasm.OpcodeI32Shl:
		v2, v1 := uint32(s.Pop()), uint32(s.Pop())
		s.Push(uint64(v1 << (v2 % 32)))
	case publicwasm.OpcodeI32ShrS:
		v2, v1 := uint32(s.Pop()), int32(s.Pop())
		s.Push(uint64(uint32(v1 >> (v2 % 32))))
	case publicwasm.OpcodeI32ShrU:
		v2, v1 := uint32(s.Pop()), uint32(s.Pop())
		s.Push(uint64(v1 >> (v2 % 32)))
	case publicwasm.OpcodeI32Rotl:
		v2, v1 := uint32(s.Pop()), uint32(s.Pop())
		s.Push(uint64(bits.RotateLeft32(v1, int(v2))))
	case publicwasm.OpcodeI32Rotr:
		v2, v1 := uint32(s.Pop()), uint32(s.Pop())
		s.Push(uint64(bits.RotateLeft32(v1, -int(v2))))
	case publicwasm.OpcodeI64Clz:
		s.Push(uint64(bits.LeadingZeros64(s.Pop())))
	case publicwasm.OpcodeI64Ctz:
		s.Push(uint64(bits.TrailingZeros64(s.Pop())))
	case publicwasm.OpcodeI64Popcnt:
		s.Push(uint64(bits.OnesCount64(s.Pop())))
	case publicwasm.OpcodeI64Add:
		v2, v1 := s.Pop(), s.Pop()
		s.Push(v1 + v2)
	case publicwasm.OpcodeI64Sub:
		v2, v1 := s.Pop(), s.Pop()
		s.Push(v1 - v2)
	case publicwasm.OpcodeI64Mul:
		v2, v1 := s.Pop(), s.Pop()
		s.Push(v1 * v2)
	case publicwasm.OpcodeI64DivS:
		v2, v1 := int64(s.Pop()), int64(s.Pop())
		if v2 == 0 {
			panic(wasm.ErrRuntimeIntegerDivideByZero)
		}
		if v1 == math.MinInt64 && v2 == -1 {
			panic(wasm.ErrRuntimeIntegerOverflow)
		}
		s.Push(uint64(v1 / v2))
	case publicwasm.OpcodeI64DivU:
		v2, v1 := s.Pop(), s.Pop()
		if v2 == 0 {
			panic(wasm.ErrRuntimeIntegerDivideByZero)
		}
		s.Push(v1 / v2)
	case publicwasm.OpcodeI64RemS:
		v2, v1 := int64(s.Pop()), int64(s.Pop())
		if v2 == 0 {
			panic(wasm.ErrRuntimeIntegerDivideByZero)
		}
		s.Push(uint64(v1 % v2))
	case publicwasm.OpcodeI64RemU:
		v2, v1 := s.Pop(), s.Pop()
		if v2 == 0 {
			panic(wasm.ErrRuntimeIntegerDivideByZero)
		}
		s.Push(v1 % v2)
	case publicwasm.OpcodeI64And:
		v2, v1 := s.Pop(), s.Pop()
		s.Push(v1 & v2)
	case publicwasm.OpcodeI64Or:
		v2, v1 := s.Pop(), s.Pop()
		s.Push(v1 | v2)
	case publicwasm.OpcodeI64Xor:
		v2, v1 := s.Pop(), s.Pop()
		s.Push(v1 ^ v2)
	case publicwasm.OpcodeI64Shl:
		v2, v1 := s.Pop(), s.Pop()
		s.Push(v1 << (v2 % 64))
	case publicwasm.OpcodeI64ShrS:
		v2, v1 := s.Pop(), int64(s.Pop())
		s.Push(uint64(v1 >> (v2 % 64)))
	case publicwasm.OpcodeI64ShrU:
		v2, v1 := s.Pop(), s.Pop()
		s.Push(v1 >> (v2 % 64))
	case publicwasm.OpcodeI64Rotl:
		v2, v1 := s.Pop(), s.Pop()
		s.Push(bits.RotateLeft64(v1, int(v2)))
	case publicwasm.OpcodeI64Rotr:
		v2, v1 := s.Pop(), s.Pop()
		s.Push(bits.RotateLeft64(v1, -int(v2)))
	case publicwasm.OpcodeF32Abs:
		s.Push(api.EncodeF32(float32(math.Abs(float64(api.DecodeF32(s.Pop()))))))
	case publicwasm.OpcodeF32Neg:
		s.Push(api.EncodeF32(-api.DecodeF32(s.Pop())))
	case publicwasm.OpcodeF32Ceil:
		s.Push(api.EncodeF32(float32(math.Ceil(float64(api.DecodeF32(s.Pop()))))))
	case publicwasm.OpcodeF32Floor:
		s.Push(api.EncodeF32(float32(math.Floor(float64(api.DecodeF32(s.Pop()))))))
	case publicwasm.OpcodeF32Trunc:
		s.Push(api.EncodeF32(float32(math.Trunc(float64(api.DecodeF32(s.Pop()))))))
	case publicwasm.OpcodeF32Nearest:
		s.Push(api.EncodeF32(float32(moremath.WasmCompatNearest(float64(api.DecodeF32(s.Pop()))))))
	case publicwasm.OpcodeF32Sqrt:
		s.Push(api.EncodeF32(float32(math.Sqrt(float64(api.DecodeF32(s.Pop()))))))
	case publicwasm.OpcodeF32Add:
		v2, v1 := api.DecodeF32(s.Pop()), api.DecodeF32(s.Pop())
		s.Push(api.EncodeF32(v1 + v2))
	case publicwasm.OpcodeF32Sub:
		v2, v1 := api.DecodeF32(s.Pop()), api.DecodeF32(s.Pop())
		s.Push(api.EncodeF32(v1 - v2))
	case publicwasm.OpcodeF32Mul:
		v2, v1 := api.DecodeF32(s.Pop()), api.DecodeF32(s.Pop())
		s.Push(api.EncodeF32(v1 * v2))
	case publicwasm.OpcodeF32Div:
		v2, v1 := api.DecodeF32(s.Pop()), api.DecodeF32(s.Pop())
		s.Push(api.EncodeF32(v1 / v2))
	case publicwasm.OpcodeF32Min:
		v2, v1 := api.DecodeF32(s.Pop()), api.DecodeF32(s.Pop())
		s.Push(api.EncodeF32(float32(moremath.WasmCompatMin(float64(v1), float64(v2)))))
	case publicwasm.OpcodeF32Max:
		v2, v1 := api.DecodeF32(s.Pop()), api.DecodeF32(s.Pop())
		s.Push(api.EncodeF32(float32(moremath.WasmCompatMax(float64(v1), float64(v2)))))
	case publicwasm.OpcodeF32Copysign:
		v2, v1 := api.DecodeF32(s.Pop()), api.DecodeF32(s.Pop())
		s.Push(api.EncodeF32(float32(math.Copysign(float64(v1), float64(v2)))))
	case publicwasm.OpcodeF64Abs:
		s.Push(api.EncodeF64(math.Abs(api.DecodeF64(s.Pop()))))
	case publicwasm.OpcodeF64Neg:
		s.Push(api.EncodeF64(-api.DecodeF64(s.Pop())))
	case publicwasm.OpcodeF64Ceil:
		s.Push(api.EncodeF64(math.Ceil(api.DecodeF64(s.Pop()))))
	case publicwasm.OpcodeF64Floor:
		s.Push(api.EncodeF64(math.Floor(api.DecodeF64(s.Pop()))))
	case publicwasm.OpcodeF64Trunc:
		s.Push(api.EncodeF64(math.Trunc(api.DecodeF64(s.Pop()))))
	case publicwasm.OpcodeF64Nearest:
		s.Push(api.EncodeF64(moremath.WasmCompatNearest(api.DecodeF64(s.Pop()))))
	case publicwasm.OpcodeF64Sqrt:
		s.Push(api.EncodeF64(math.Sqrt(api.DecodeF64(s.Pop()))))
	case publicwasm.OpcodeF64Add:
		v2, v1 := api.DecodeF64(s.Pop()), api.DecodeF64(s.Pop())
		s.Push(api.EncodeF64(v1 + v2))
	case publicwasm.OpcodeF64Sub:
		v2, v1 := api.DecodeF64(s.Pop()), api.DecodeF64(s.Pop())
		s.Push(api.EncodeF64(v1 - v2))
	case publicwasm.OpcodeF64Mul:
		v2, v1 := api.DecodeF64(s.Pop()), api.DecodeF64(s.Pop())
		s.Push(api.EncodeF64(v1 * v2))
	case publicwasm.OpcodeF64Div:
		v2, v1 := api.DecodeF64(s.Pop()), api.DecodeF64(s.Pop())
		s.Push(api.EncodeF64(v1 / v2))
	case publicwasm.OpcodeF64Min:
		v2, v1 := api.DecodeF64(s.Pop()), api.DecodeF64(s.Pop())
		s.Push(api.EncodeF64(moremath.WasmCompatMin(v1, v2)))
	case publicwasm.OpcodeF64Max:
		v2, v1 := api.DecodeF64(s.Pop()), api.DecodeF64(s.Pop())
		s.Push(api.EncodeF64(moremath.WasmCompatMax(v1, v2)))
	case publicwasm.OpcodeF64Copysign:
		v2, v1 := api.DecodeF64(s.Pop()), api.DecodeF64(s.Pop())
		s.Push(api.EncodeF64(math.Copysign(v1, v2)))
	case publicwasm.OpcodeI32WrapI64:
		s.Push(uint64(uint32(s.Pop())))
	case publicwasm.OpcodeI32TruncF32S:
		s.Push(uint64(uint32(truncI32S(float64(api.DecodeF32(s.Pop()))))))
	case publicwasm.OpcodeI32TruncF32U:
		s.Push(uint64(truncI32U(float64(api.DecodeF32(s.Pop())))))
	case publicwasm.OpcodeI32TruncF64S:
		s.Push(uint64(uint32(truncI32S(api.DecodeF64(s.Pop())))))
	case publicwasm.OpcodeI32TruncF64U:
		s.Push(uint64(truncI32U(api.DecodeF64(s.Pop()))))
	case publicwasm.OpcodeI64ExtendI32S:
		s.Push(uint64(int64(int32(uint32(s.Pop())))))
	case publicwasm.OpcodeI64ExtendI32U:
		s.Push(uint64(uint32(s.Pop())))
	case publicwasm.OpcodeI64TruncF32S:
		s.Push(uint64(truncI64S(float64(api.DecodeF32(s.Pop())))))
	case publicwasm.OpcodeI64TruncF32U:
		s.Push(truncI64U(float64(api.DecodeF32(s.Pop()))))
	case publicwasm.OpcodeI64TruncF64S:
		s.Push(uint64(truncI64S(api.DecodeF64(s.Pop()))))
	case publicwasm.OpcodeI64TruncF64U:
		s.Push(truncI64U(api.DecodeF64(s.Pop())))
	case publicwasm.OpcodeF32ConvertI32S:
		s.Push(api.EncodeF32(float32(int32(uint32(s.Pop())))))
	case publicwasm.OpcodeF32ConvertI32U:
		s.Push(api.EncodeF32(float32(uint32(s.Pop()))))
	case publicwasm.OpcodeF32ConvertI64S:
		s.Push(api.EncodeF32(float32(int64(s.Pop()))))
	case publicwasm.OpcodeF32ConvertI64U:
		s.Push(api.EncodeF32(float32(s.Pop())))
	case publicwasm.OpcodeF32DemoteF64:
		s.Push(api.EncodeF32(float32(api.DecodeF64(s.Pop()))))
	case publicwasm.OpcodeF64ConvertI32S:
		s.Push(api.EncodeF64(float64(int32(uint32(s.Pop())))))
	case publicwasm.OpcodeF64ConvertI32U:
		s.Push(api.EncodeF64(float64(uint32(s.Pop()))))
	case publicwasm.OpcodeF64ConvertI64S:
		s.Push(api.EncodeF64(float64(int64(s.Pop()))))
	case publicwasm.OpcodeF64ConvertI64U:
		s.Push(api.EncodeF64(float64(s.Pop())))
	case publicwasm.OpcodeF64PromoteF32:
		s.Push(api.EncodeF64(float64(api.DecodeF32(s.Pop()))))
	case publicwasm.OpcodeI32ReinterpretF32, publicwasm.OpcodeI64ReinterpretF64,
		publicwasm.OpcodeF32ReinterpretI32, publicwasm.OpcodeF64ReinterpretI64:
		// Reinterpret is a nop on the 64-bit slot representation: type soundness was proven by validation.
	default:
		panic(fmt.Errorf("BUG: unknown opcode %s", publicwasm.InstructionName(op)))
	}
}

// truncI32S truncates f toward zero and traps on NaN or a result outside int32 range.
func truncI32S(f float64) int32 {
	if math.IsNaN(f) {
		panic(wasm.ErrRuntimeInvalidConversionToInteger)
	}
	f = math.Trunc(f)
	if f < math.MinInt32 || f > math.MaxInt32 {
		panic(wasm.ErrRuntimeIntegerOverflow)
	}
	return int32(f)
}

// truncI32U truncates f toward zero and traps on NaN or a result outside uint32 range.
func truncI32U(f float64) uint32 {
	if math.IsNaN(f) {
		panic(wasm.ErrRuntimeInvalidConversionToInteger)
	}
	f = math.Trunc(f)
	if f <= -1 || f > math.MaxUint32 {
		panic(wasm.ErrRuntimeIntegerOverflow)
	}
	return uint32(f)
}

// truncI64S truncates f toward zero and traps on NaN or a result outside int64 range.
func truncI64S(f float64) int64 {
	if math.IsNaN(f) {
		panic(wasm.ErrRuntimeInvalidConversionToInteger)
	}
	f = math.Trunc(f)
	// 2^63 is the first float64 above math.MaxInt64; math.MinInt64 is exactly representable.
	if f < math.MinInt64 || f >= 9223372036854775808.0 {
		panic(wasm.ErrRuntimeIntegerOverflow)
	}
	return int64(f)
}

// truncI64U truncates f toward zero and traps on NaN or a result outside uint64 range.
func truncI64U(f float64) uint64 {
	if math.IsNaN(f) {
		panic(wasm.ErrRuntimeInvalidConversionToInteger)
	}
	f = math.Trunc(f)
	if f <= -1 || f >= 18446744073709551616.0 {
		panic(wasm.ErrRuntimeIntegerOverflow)
	}
	return uint64(f)
}
