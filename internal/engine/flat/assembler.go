// Package flat implements the low-level back-end: a one-pass assembler lowers structured control flow to a linear
// instruction stream with absolute jump targets, resolved through a fixup table, and a threaded interpreter
// dispatches over the flat stream with explicit call frames.
package flat

import (
	"encoding/binary"
	"fmt"

	"github.com/shrin18/swam/api"
	wasm "github.com/shrin18/swam/internal/wasm"
	publicwasm "github.com/shrin18/swam/wasm"
)

// Opcodes private to the flat form. Wasm proper tops out at 0xbf, so the 0xe0 range is free. Branches carry a
// (arity, drop, target) triple: the count of operand-stack values the branch preserves, the count it discards
// beneath them, and the absolute byte offset to resume at.
const (
	// opJump is an unconditional jump: u32 target.
	opJump = publicwasm.Opcode(0xe0)
	// opJumpIf pops the condition and jumps to its u32 target when non-zero.
	opJumpIf = publicwasm.Opcode(0xe1)
	// opBr is an unconditional branch: arity byte, u32 drop, u32 target.
	opBr = publicwasm.Opcode(0xe2)
	// opBrIf pops the condition and branches like opBr when non-zero.
	opBrIf = publicwasm.Opcode(0xe3)
	// opBrTable pops the index and selects among count+1 (arity, drop, target) triples, the last being the
	// default: u32 count, then the triples.
	opBrTable = publicwasm.Opcode(0xe4)

	// returnTarget is the target sentinel for branches whose label is the function frame itself: the interpreter
	// performs a return instead of a jump. It is written directly, never through the fixup table.
	returnTarget = uint32(0xffffffff)
)

// labelFrame is one entry of the label stack carried while lowering a function.
type labelFrame struct {
	// id is the symbolic target patched into branches via the fixup table.
	id uint32
	// branchArity is the value count a branch to this label transfers: 0 for loops, whose target is the header.
	branchArity int
	// pushed counts the operand-stack values pushed since entering this label, used to compute branch drops.
	pushed int
	// function marks the outermost frame: branches to it lower to returns.
	function bool
}

// erratum is one deferred patch: the byte offset of a placeholder and the symbolic label that must be resolved
// into it once its absolute offset is known.
type erratum struct {
	offset uint32
	label  uint32
}

type assembler struct {
	m     *wasm.Module
	order binary.ByteOrder
	buf   []byte

	// frames is the label stack, top last.
	frames []labelFrame
	// errata records forward references to patch after emission.
	errata []erratum
	// offsets records each label's absolute byte offset once known.
	offsets   map[uint32]uint32
	nextLabel uint32
	// lastOp is the opcode of the last instruction emitted, deciding the implicit top-level return.
	lastOp publicwasm.Opcode
}

// compileBody lowers a function body in a single forward pass and resolves every forward reference afterwards.
func compileBody(m *wasm.Module, order binary.ByteOrder, sig *publicwasm.FunctionType, body []publicwasm.Instruction) ([]byte, error) {
	a := &assembler{m: m, order: order, offsets: map[uint32]uint32{}}
	a.frames = append(a.frames, labelFrame{id: a.newLabel(), branchArity: len(sig.Results), function: true})
	a.emitAll(body)
	if a.lastOp != publicwasm.OpcodeReturn {
		a.emitByte(publicwasm.OpcodeReturn)
	}
	if err := a.fixup(); err != nil {
		return nil, err
	}
	return a.buf, nil
}

// compileInitializer lowers a constant initializer expression: no labels can occur, so no fixup is needed.
func compileInitializer(order binary.ByteOrder, expr []publicwasm.Instruction) ([]byte, error) {
	a := &assembler{order: order, offsets: map[uint32]uint32{}}
	a.frames = append(a.frames, labelFrame{id: a.newLabel(), function: true})
	a.emitAll(expr)
	a.emitByte(publicwasm.OpcodeReturn)
	return a.buf, nil
}

func (a *assembler) newLabel() uint32 {
	l := a.nextLabel
	a.nextLabel++
	return l
}

func (a *assembler) top() *labelFrame {
	return &a.frames[len(a.frames)-1]
}

func (a *assembler) emitByte(b byte) {
	a.buf = append(a.buf, b)
}

func (a *assembler) emitU32(v uint32) {
	var b [4]byte
	a.order.PutUint32(b[:], v)
	a.buf = append(a.buf, b[:]...)
}

func (a *assembler) emitU64(v uint64) {
	var b [8]byte
	a.order.PutUint64(b[:], v)
	a.buf = append(a.buf, b[:]...)
}

// placeholder reserves four bytes for label's absolute offset and records the erratum to patch them.
func (a *assembler) placeholder(label uint32) {
	a.errata = append(a.errata, erratum{offset: uint32(len(a.buf)), label: label})
	a.buf = append(a.buf, 0, 0, 0, 0)
}

// fixup writes every resolved offset into its placeholder. An unresolved label is an internal bug: validation
// rules out orphan branch targets.
func (a *assembler) fixup() error {
	for _, e := range a.errata {
		off, ok := a.offsets[e.label]
		if !ok {
			return &api.CompileError{Message: fmt.Sprintf("BUG: unresolved label %d", e.label)}
		}
		a.order.PutUint32(a.buf[e.offset:], off)
	}
	return nil
}

// emitAll lowers the instructions of one block. Once a terminal instruction was emitted the rest of the block is
// dead and dropped.
func (a *assembler) emitAll(instrs []publicwasm.Instruction) {
	for i := range instrs {
		if a.emitInstruction(&instrs[i]) {
			break
		}
	}
}

// emitInstruction lowers one instruction, returning true when it was terminal for its block.
func (a *assembler) emitInstruction(i *publicwasm.Instruction) (terminal bool) {
	op := i.Opcode
	a.lastOp = op
	switch op {
	case publicwasm.OpcodeBlock:
		arity := i.BlockArity()
		l := a.newLabel()
		a.frames = append(a.frames, labelFrame{id: l, branchArity: arity})
		a.emitAll(i.Body)
		a.frames = a.frames[:len(a.frames)-1]
		// The break target is just past the block.
		a.offsets[l] = uint32(len(a.buf))
		a.top().pushed += arity
	case publicwasm.OpcodeLoop:
		arity := i.BlockArity()
		l := a.newLabel()
		// Backward target: branches re-enter at the loop start and consume nothing.
		a.offsets[l] = uint32(len(a.buf))
		a.frames = append(a.frames, labelFrame{id: l})
		a.emitAll(i.Body)
		a.frames = a.frames[:len(a.frames)-1]
		a.top().pushed += arity
	case publicwasm.OpcodeIf:
		arity := i.BlockArity()
		a.top().pushed-- // condition
		lThen, lEnd := a.newLabel(), a.newLabel()
		a.emitByte(opJumpIf)
		a.placeholder(lThen)
		a.frames = append(a.frames, labelFrame{id: lEnd, branchArity: arity})
		a.emitAll(i.Else)
		a.emitByte(opJump)
		a.placeholder(lEnd)
		a.offsets[lThen] = uint32(len(a.buf))
		// The arms are alternatives: the then-arm starts from the same operand count the else-arm did.
		a.top().pushed = 0
		a.emitAll(i.Body)
		a.frames = a.frames[:len(a.frames)-1]
		a.offsets[lEnd] = uint32(len(a.buf))
		a.top().pushed += arity
	case publicwasm.OpcodeBr:
		if a.frame(int(i.Index)).function {
			a.emitByte(publicwasm.OpcodeReturn)
		} else {
			a.emitByte(opBr)
			a.emitTarget(int(i.Index))
		}
		return true
	case publicwasm.OpcodeBrIf:
		a.top().pushed-- // condition
		a.emitByte(opBrIf)
		a.emitTarget(int(i.Index))
	case publicwasm.OpcodeBrTable:
		a.top().pushed-- // index
		a.emitByte(opBrTable)
		a.emitU32(uint32(len(i.Labels)))
		for _, l := range i.Labels {
			a.emitTarget(int(l))
		}
		a.emitTarget(int(i.DefaultLabel))
		return true
	case publicwasm.OpcodeReturn:
		a.emitByte(publicwasm.OpcodeReturn)
		return true
	case publicwasm.OpcodeUnreachable:
		a.emitByte(publicwasm.OpcodeUnreachable)
		return true
	case publicwasm.OpcodeNop:
		a.emitByte(publicwasm.OpcodeNop)
	case publicwasm.OpcodeDrop:
		a.emitByte(op)
		a.top().pushed--
	case publicwasm.OpcodeSelect:
		a.emitByte(op)
		a.top().pushed -= 2
	case publicwasm.OpcodeLocalGet:
		a.emitByte(op)
		a.emitU32(i.Index)
		a.top().pushed++
	case publicwasm.OpcodeLocalSet:
		a.emitByte(op)
		a.emitU32(i.Index)
		a.top().pushed--
	case publicwasm.OpcodeLocalTee:
		a.emitByte(op)
		a.emitU32(i.Index)
	case publicwasm.OpcodeGlobalGet:
		a.emitByte(op)
		a.emitU32(i.Index)
		a.top().pushed++
	case publicwasm.OpcodeGlobalSet:
		a.emitByte(op)
		a.emitU32(i.Index)
		a.top().pushed--
	case publicwasm.OpcodeCall:
		a.emitByte(op)
		a.emitU32(i.Index)
		sig := a.m.TypeOfFunction(i.Index)
		a.top().pushed += len(sig.Results) - len(sig.Params)
	case publicwasm.OpcodeCallIndirect:
		a.emitByte(op)
		a.emitU32(i.Index)
		sig := &a.m.TypeSection[i.Index]
		a.top().pushed += len(sig.Results) - len(sig.Params) - 1
	case publicwasm.OpcodeMemorySize:
		a.emitByte(op)
		a.top().pushed++
	case publicwasm.OpcodeMemoryGrow:
		a.emitByte(op)
	case publicwasm.OpcodeI32Const, publicwasm.OpcodeF32Const:
		a.emitByte(op)
		a.emitU32(uint32(i.ConstBits))
		a.top().pushed++
	case publicwasm.OpcodeI64Const, publicwasm.OpcodeF64Const:
		a.emitByte(op)
		a.emitU64(i.ConstBits)
		a.top().pushed++
	default:
		switch {
		case op >= publicwasm.OpcodeI32Load && op <= publicwasm.OpcodeI64Load32U:
			a.emitByte(op)
			a.emitU32(i.Align)
			a.emitU32(i.Offset)
		case op >= publicwasm.OpcodeI32Store && op <= publicwasm.OpcodeI64Store32:
			a.emitByte(op)
			a.emitU32(i.Align)
			a.emitU32(i.Offset)
			a.top().pushed -= 2
		default:
			a.emitByte(op)
			a.top().pushed += numericDelta(op)
		}
	}
	return false
}

func (a *assembler) frame(k int) *labelFrame {
	return &a.frames[len(a.frames)-1-k]
}

// emitTarget emits the (arity, drop, target) triple for a branch k labels up. drop is the count of operand-stack
// values pushed along the traversed frames minus the target's arity: what the branch discards above the values it
// preserves. Function-frame targets take the return sentinel instead of a fixup placeholder.
func (a *assembler) emitTarget(k int) {
	target := a.frame(k)
	drop := -target.branchArity
	for j := 0; j <= k; j++ {
		drop += a.frame(j).pushed
	}
	a.emitByte(byte(target.branchArity))
	a.emitU32(uint32(drop))
	if target.function {
		a.emitU32(returnTarget)
	} else {
		a.placeholder(target.id)
	}
}

// numericDelta is the net operand-stack effect of a numeric or conversion opcode.
func numericDelta(op publicwasm.Opcode) int {
	switch {
	case op == publicwasm.OpcodeI32Eqz || op == publicwasm.OpcodeI64Eqz:
		return 0
	case op >= publicwasm.OpcodeI32Eq && op <= publicwasm.OpcodeF64Ge:
		return -1
	case op >= publicwasm.OpcodeI32Add && op <= publicwasm.OpcodeI32Rotr:
		return -1
	case op >= publicwasm.OpcodeI64Add && op <= publicwasm.OpcodeI64Rotr:
		return -1
	case op >= publicwasm.OpcodeF32Add && op <= publicwasm.OpcodeF32Copysign:
		return -1
	case op >= publicwasm.OpcodeF64Add && op <= publicwasm.OpcodeF64Copysign:
		return -1
	default:
		// Unary operators and conversions replace their operand.
		return 0
	}
}
