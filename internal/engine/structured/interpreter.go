package structured

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/shrin18/swam/api"
	"github.com/shrin18/swam/internal/engine/operand"
	wasm "github.com/shrin18/swam/internal/wasm"
	publicwasm "github.com/shrin18/swam/wasm"
)

// engine implements wasm.Engine over the structured byte form. It carries configuration only: per-call state lives
// in a callEngine allocated per invocation, so one engine is safely shared by concurrent instances.
type engine struct {
	callStackDepth int
}

// NewEngine returns the high-level back-end: structured compilation and recursive-descent interpretation.
func NewEngine(callStackDepth int) wasm.Engine {
	return &engine{callStackDepth: callStackDepth}
}

// CompileFunction implements wasm.Engine CompileFunction.
func (e *engine) CompileFunction(_ *wasm.Module, _ *publicwasm.FunctionType, code *wasm.Code) ([]byte, error) {
	return compileBody(code.Body)
}

// CompileInitializer implements wasm.Engine CompileInitializer.
func (e *engine) CompileInitializer(expr []publicwasm.Instruction) ([]byte, error) {
	return compileBody(expr)
}

// EvalInitializer implements wasm.Engine EvalInitializer. Only constants and global.get are reachable in a
// validated initializer, so this does not enter the general dispatch loop.
func (e *engine) EvalInitializer(init []byte, globals []*wasm.GlobalInstance) (uint64, error) {
	var stack operand.Stack
	pc := 0
	for pc < len(init) {
		op := init[pc]
		pc++
		switch op {
		case publicwasm.OpcodeI32Const, publicwasm.OpcodeF32Const:
			stack.Push(uint64(binary.BigEndian.Uint32(init[pc:])))
			pc += 4
		case publicwasm.OpcodeI64Const, publicwasm.OpcodeF64Const:
			stack.Push(binary.BigEndian.Uint64(init[pc:]))
			pc += 8
		case publicwasm.OpcodeGlobalGet:
			idx := binary.BigEndian.Uint32(init[pc:])
			pc += 4
			stack.Push(globals[idx].Val)
		case publicwasm.OpcodeReturn:
			return stack.Pop(), nil
		default:
			return 0, &api.CompileError{Message: fmt.Sprintf("BUG: %s in constant initializer", publicwasm.InstructionName(op))}
		}
	}
	return 0, &api.CompileError{Message: "BUG: initializer ended without return"}
}

// Call implements wasm.Engine Call.
func (e *engine) Call(ctx context.Context, f *wasm.FunctionInstance, params ...uint64) (results []uint64, err error) {
	defer func() {
		if v := recover(); v != nil {
			if e2, ok := v.(error); ok {
				err = fmt.Errorf("wasm runtime error: %w", e2)
			} else {
				err = fmt.Errorf("wasm runtime error: %v", v)
			}
		}
	}()

	ce := &callEngine{e: e}
	for _, p := range params {
		ce.stack.Push(p)
	}
	ce.call(ctx, f)
	resultCount := len(f.Type.Type.Results)
	results = make([]uint64, resultCount)
	for i := resultCount - 1; i >= 0; i-- {
		results[i] = ce.stack.Pop()
	}
	return
}

// callEngine is the per-invocation state: the operand stack and the frame-depth guard. Call frames themselves are
// Go stack frames, because dispatch is recursive descent over the structured form.
type callEngine struct {
	e          *engine
	stack      operand.Stack
	frameCount int
}

type callFrame struct {
	f      *wasm.FunctionInstance
	locals []uint64
}

// call pushes a frame for f and executes it. Parameters are consumed from the operand stack and results are left
// on it.
func (ce *callEngine) call(ctx context.Context, f *wasm.FunctionInstance) {
	if f.GoFunc != nil {
		paramCount := len(f.Type.Type.Params)
		params := make([]uint64, paramCount)
		for i := paramCount - 1; i >= 0; i-- {
			params[i] = ce.stack.Pop()
		}
		results, err := wasm.CallGoFunc(ctx, f, params)
		if err != nil {
			// The host refused to produce a result: surface as a trap.
			panic(err)
		}
		for _, r := range results {
			ce.stack.Push(r)
		}
		return
	}

	if ce.frameCount >= ce.e.callStackDepth {
		panic(wasm.ErrRuntimeCallStackOverflow)
	}
	ce.frameCount++

	paramCount := len(f.Type.Type.Params)
	locals := make([]uint64, paramCount+len(f.LocalTypes))
	for i := paramCount - 1; i >= 0; i-- {
		locals[i] = ce.stack.Pop()
	}
	frame := &callFrame{f: f, locals: locals}

	base := ce.stack.Len()
	arity := len(f.Type.Type.Results)
	ce.runBlock(ctx, frame, f.Compiled, false, arity)
	// Divergent paths may leave extra operands below the results.
	ce.stack.Unwind(base, arity)
	ce.frameCount--
}

// Control outcomes of runBlock. Non-negative values mean "branch to the label n levels above the block that
// returned", already adjusted past it.
const (
	ctrlNone   = -1
	ctrlReturn = -2
)

// runBlock executes one block body. body excludes the terminating end opcode; a loop re-enters by jumping back to
// offset zero. On a branch targeting this block, operands pushed since entry beyond the target arity are popped.
func (ce *callEngine) runBlock(ctx context.Context, frame *callFrame, body []byte, isLoop bool, arity int) int {
	base := ce.stack.Len()
	var k int
entry:
	pc := 0
	for pc < len(body) {
		op := body[pc]
		pc++
		switch op {
		case publicwasm.OpcodeUnreachable:
			panic(wasm.ErrRuntimeUnreachable)
		case publicwasm.OpcodeNop:
		case publicwasm.OpcodeBlock:
			a := int(body[pc])
			size := int(binary.BigEndian.Uint32(body[pc+1:]))
			start := pc + 5
			end := start + size
			c := ce.runBlock(ctx, frame, body[start:end], false, a)
			pc = end + 1 // past the end opcode
			if c == ctrlReturn {
				return ctrlReturn
			}
			if c != ctrlNone {
				k = c
				goto branch
			}
		case publicwasm.OpcodeLoop:
			a := int(body[pc])
			start := pc + 1
			end := loopBodyEnd(body, start)
			c := ce.runBlock(ctx, frame, body[start:end], true, a)
			pc = end + 1
			if c == ctrlReturn {
				return ctrlReturn
			}
			if c != ctrlNone {
				k = c
				goto branch
			}
		case publicwasm.OpcodeIf:
			a := int(body[pc])
			thenSize := int(binary.BigEndian.Uint32(body[pc+1:]))
			elseSize := int(binary.BigEndian.Uint32(body[pc+5:]))
			thenStart := pc + 9
			elseStart := thenStart + thenSize + 5 // past the else opcode and the repeated size
			end := elseStart + elseSize
			var c int
			if ce.stack.Pop() != 0 {
				c = ce.runBlock(ctx, frame, body[thenStart:thenStart+thenSize], false, a)
			} else {
				c = ce.runBlock(ctx, frame, body[elseStart:end], false, a)
			}
			pc = end + 1
			if c == ctrlReturn {
				return ctrlReturn
			}
			if c != ctrlNone {
				k = c
				goto branch
			}
		case publicwasm.OpcodeBr:
			k = int(binary.BigEndian.Uint32(body[pc:]))
			goto branch
		case publicwasm.OpcodeBrIf:
			l := binary.BigEndian.Uint32(body[pc:])
			pc += 4
			if ce.stack.Pop() != 0 {
				k = int(l)
				goto branch
			}
		case publicwasm.OpcodeBrTable:
			count := int(binary.BigEndian.Uint32(body[pc:]))
			v := int(uint32(ce.stack.Pop()))
			if v < count {
				k = int(binary.BigEndian.Uint32(body[pc+4+4*v:]))
			} else {
				k = int(binary.BigEndian.Uint32(body[pc+4+4*count:]))
			}
			goto branch
		case publicwasm.OpcodeReturn:
			return ctrlReturn
		case publicwasm.OpcodeCall:
			idx := binary.BigEndian.Uint32(body[pc:])
			pc += 4
			ce.call(ctx, frame.f.Module.Functions[idx])
		case publicwasm.OpcodeCallIndirect:
			typeIdx := binary.BigEndian.Uint32(body[pc:])
			pc += 4
			table := frame.f.Module.Table
			offset := ce.stack.Pop()
			if offset >= uint64(len(table.Table)) {
				panic(wasm.ErrRuntimeInvalidTableAccess)
			}
			elem := table.Table[offset]
			if elem.Function == nil {
				panic(wasm.ErrRuntimeInvalidTableAccess)
			}
			if elem.TypeID != frame.f.Module.Types[typeIdx].TypeID {
				panic(wasm.ErrRuntimeIndirectCallTypeMismatch)
			}
			ce.call(ctx, elem.Function)
		case publicwasm.OpcodeDrop:
			ce.stack.Pop()
		case publicwasm.OpcodeSelect:
			c := ce.stack.Pop()
			v2 := ce.stack.Pop()
			if c == 0 {
				_ = ce.stack.Pop()
				ce.stack.Push(v2)
			}
		case publicwasm.OpcodeLocalGet:
			idx := binary.BigEndian.Uint32(body[pc:])
			pc += 4
			ce.stack.Push(frame.locals[idx])
		case publicwasm.OpcodeLocalSet:
			idx := binary.BigEndian.Uint32(body[pc:])
			pc += 4
			frame.locals[idx] = ce.stack.Pop()
		case publicwasm.OpcodeLocalTee:
			idx := binary.BigEndian.Uint32(body[pc:])
			pc += 4
			frame.locals[idx] = ce.stack.Peek()
		case publicwasm.OpcodeGlobalGet:
			idx := binary.BigEndian.Uint32(body[pc:])
			pc += 4
			ce.stack.Push(frame.f.Module.Globals[idx].Val)
		case publicwasm.OpcodeGlobalSet:
			idx := binary.BigEndian.Uint32(body[pc:])
			pc += 4
			frame.f.Module.Globals[idx].Val = ce.stack.Pop()
		case publicwasm.OpcodeMemorySize:
			ce.stack.Push(uint64(frame.f.Module.Memory.Pages()))
		case publicwasm.OpcodeMemoryGrow:
			n := ce.stack.Pop()
			ce.stack.Push(uint64(frame.f.Module.Memory.Grow(uint32(n))))
		case publicwasm.OpcodeI32Const, publicwasm.OpcodeF32Const:
			ce.stack.Push(uint64(binary.BigEndian.Uint32(body[pc:])))
			pc += 4
		case publicwasm.OpcodeI64Const, publicwasm.OpcodeF64Const:
			ce.stack.Push(binary.BigEndian.Uint64(body[pc:]))
			pc += 8
		default:
			if op >= publicwasm.OpcodeI32Load && op <= publicwasm.OpcodeI64Store32 {
				offset := binary.BigEndian.Uint32(body[pc+4:]) // align is unused at runtime
				pc += 8
				ce.stack.Memory(frame.f.Module.Memory, op, offset)
			} else {
				ce.stack.Numeric(op)
			}
		}
	}
	return ctrlNone

branch:
	if k > 0 {
		return k - 1
	}
	if isLoop {
		// Loop labels have arity 0: continuing consumes nothing from the stack.
		ce.stack.Unwind(base, 0)
		goto entry
	}
	ce.stack.Unwind(base, arity)
	return ctrlNone
}

// loopBodyEnd returns the offset of the end opcode matching the loop whose body starts at start. Blocks and ifs
// skip wholesale via their size prefixes, so only loop nesting needs tracking.
func loopBodyEnd(body []byte, start int) int {
	depth := 0
	pc := start
	for {
		op := body[pc]
		pc++
		switch op {
		case publicwasm.OpcodeBlock:
			size := int(binary.BigEndian.Uint32(body[pc+1:]))
			pc += 5 + size + 1
		case publicwasm.OpcodeLoop:
			depth++
			pc++ // arity
		case publicwasm.OpcodeIf:
			thenSize := int(binary.BigEndian.Uint32(body[pc+1:]))
			elseSize := int(binary.BigEndian.Uint32(body[pc+5:]))
			pc += 9 + thenSize + 5 + elseSize + 1
		case publicwasm.OpcodeEnd:
			if depth == 0 {
				return pc - 1
			}
			depth--
		case publicwasm.OpcodeBrTable:
			count := int(binary.BigEndian.Uint32(body[pc:]))
			pc += 4 + 4*count + 4
		default:
			pc += immediateLen(op)
		}
	}
}

// immediateLen returns the byte length of the fixed immediates following op in the structured form. Control
// opcodes and br_table are handled by the caller.
func immediateLen(op publicwasm.Opcode) int {
	switch {
	case op >= publicwasm.OpcodeI32Load && op <= publicwasm.OpcodeI64Store32:
		return 8
	case op == publicwasm.OpcodeI64Const, op == publicwasm.OpcodeF64Const:
		return 8
	case op == publicwasm.OpcodeI32Const, op == publicwasm.OpcodeF32Const,
		op == publicwasm.OpcodeBr, op == publicwasm.OpcodeBrIf,
		op == publicwasm.OpcodeLocalGet, op == publicwasm.OpcodeLocalSet, op == publicwasm.OpcodeLocalTee,
		op == publicwasm.OpcodeGlobalGet, op == publicwasm.OpcodeGlobalSet,
		op == publicwasm.OpcodeCall, op == publicwasm.OpcodeCallIndirect:
		return 4
	default:
		return 0
	}
}
