// Package structured implements the high-level back-end: function bodies are lowered to a self-describing byte
// form that mirrors the source nesting, with precomputed arities and body sizes, and executed by a
// recursive-descent interpreter. Branches are taken structurally by following size prefixes, so no jump targets
// exist in this form.
package structured

import (
	"encoding/binary"
	"fmt"

	"github.com/shrin18/swam/api"
	publicwasm "github.com/shrin18/swam/wasm"
)

// The emitted layout per structured instruction:
//
//	block:    0x02, arity, u32 body size, body, 0x0B
//	loop:     0x03, arity, body, 0x0B          (no size prefix; re-entry jumps to the opcode position)
//	if:       0x04, arity, u32 then size, u32 else size, then, 0x05, u32 else size, else, 0x0B
//	br/br_if: opcode, u32 label
//	br_table: opcode, u32 count, count labels, u32 default
//	consts:   opcode, 4 or 8 bytes (floats bit-cast)
//	indexed:  opcode, u32
//	mem ops:  opcode, u32 align, u32 offset
//
// All integers are big-endian. A top-level body ends with an implicit return unless the last instruction emitted
// was one.

// compileBody lowers a function body, appending the implicit top-level return.
func compileBody(body []publicwasm.Instruction) ([]byte, error) {
	buf, err := encodeAll(nil, body)
	if err != nil {
		return nil, err
	}
	if n := len(body); n == 0 || body[n-1].Opcode != publicwasm.OpcodeReturn {
		buf = append(buf, publicwasm.OpcodeReturn)
	}
	return buf, nil
}

func encodeAll(buf []byte, instrs []publicwasm.Instruction) ([]byte, error) {
	var err error
	for i := range instrs {
		if buf, err = encodeInstruction(buf, &instrs[i]); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func encodeInstruction(buf []byte, i *publicwasm.Instruction) ([]byte, error) {
	op := i.Opcode
	switch {
	case op == publicwasm.OpcodeBlock:
		body, err := encodeAll(nil, i.Body)
		if err != nil {
			return nil, err
		}
		buf = append(buf, op, byte(i.BlockArity()))
		buf = appendUint32(buf, uint32(len(body)))
		buf = append(buf, body...)
		buf = append(buf, publicwasm.OpcodeEnd)
	case op == publicwasm.OpcodeLoop:
		body, err := encodeAll(nil, i.Body)
		if err != nil {
			return nil, err
		}
		buf = append(buf, op, byte(i.BlockArity()))
		buf = append(buf, body...)
		buf = append(buf, publicwasm.OpcodeEnd)
	case op == publicwasm.OpcodeIf:
		then, err := encodeAll(nil, i.Body)
		if err != nil {
			return nil, err
		}
		els, err := encodeAll(nil, i.Else)
		if err != nil {
			return nil, err
		}
		buf = append(buf, op, byte(i.BlockArity()))
		buf = appendUint32(buf, uint32(len(then)))
		buf = appendUint32(buf, uint32(len(els)))
		buf = append(buf, then...)
		buf = append(buf, publicwasm.OpcodeElse)
		buf = appendUint32(buf, uint32(len(els)))
		buf = append(buf, els...)
		buf = append(buf, publicwasm.OpcodeEnd)
	case op == publicwasm.OpcodeBr, op == publicwasm.OpcodeBrIf:
		buf = append(buf, op)
		buf = appendUint32(buf, i.Index)
	case op == publicwasm.OpcodeBrTable:
		buf = append(buf, op)
		buf = appendUint32(buf, uint32(len(i.Labels)))
		for _, l := range i.Labels {
			buf = appendUint32(buf, l)
		}
		buf = appendUint32(buf, i.DefaultLabel)
	case op == publicwasm.OpcodeI32Const, op == publicwasm.OpcodeF32Const:
		buf = append(buf, op)
		buf = appendUint32(buf, uint32(i.ConstBits))
	case op == publicwasm.OpcodeI64Const, op == publicwasm.OpcodeF64Const:
		buf = append(buf, op)
		buf = appendUint64(buf, i.ConstBits)
	case op >= publicwasm.OpcodeI32Load && op <= publicwasm.OpcodeI64Store32:
		buf = append(buf, op)
		buf = appendUint32(buf, i.Align)
		buf = appendUint32(buf, i.Offset)
	case op == publicwasm.OpcodeLocalGet, op == publicwasm.OpcodeLocalSet, op == publicwasm.OpcodeLocalTee,
		op == publicwasm.OpcodeGlobalGet, op == publicwasm.OpcodeGlobalSet,
		op == publicwasm.OpcodeCall, op == publicwasm.OpcodeCallIndirect:
		buf = append(buf, op)
		buf = appendUint32(buf, i.Index)
	case op == publicwasm.OpcodeElse, op == publicwasm.OpcodeEnd:
		return nil, &api.CompileError{Message: fmt.Sprintf("BUG: %s is not a structured instruction", publicwasm.InstructionName(op))}
	default:
		// Remaining opcodes (numeric, parametric, memory.size/grow, unreachable, nop, return) carry no
		// immediates in this form.
		buf = append(buf, op)
	}
	return buf, nil
}

func appendUint32(buf []byte, v uint32) []byte {
	return binary.BigEndian.AppendUint32(buf, v)
}

func appendUint64(buf []byte, v uint64) []byte {
	return binary.BigEndian.AppendUint64(buf, v)
}
