package flat

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/shrin18/swam/api"
	"github.com/shrin18/swam/internal/engine/operand"
	wasm "github.com/shrin18/swam/internal/wasm"
	publicwasm "github.com/shrin18/swam/wasm"
)

// engine implements wasm.Engine over the flat instruction stream. It carries configuration only: per-call state
// lives in a callEngine allocated per invocation, so one engine is safely shared by concurrent instances.
//
// Immediates are read in the byte order the assembler was configured with; memory bytes stay little-endian per
// the specification regardless.
type engine struct {
	order          binary.ByteOrder
	callStackDepth int
}

// NewEngine returns the low-level back-end: one-pass flat assembly and threaded interpretation.
func NewEngine(callStackDepth int, order binary.ByteOrder) wasm.Engine {
	return &engine{order: order, callStackDepth: callStackDepth}
}

// CompileFunction implements wasm.Engine CompileFunction.
func (e *engine) CompileFunction(m *wasm.Module, sig *publicwasm.FunctionType, code *wasm.Code) ([]byte, error) {
	return compileBody(m, e.order, sig, code.Body)
}

// CompileInitializer implements wasm.Engine CompileInitializer.
func (e *engine) CompileInitializer(expr []publicwasm.Instruction) ([]byte, error) {
	return compileInitializer(e.order, expr)
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
			stack.Push(uint64(e.order.Uint32(init[pc:])))
			pc += 4
		case publicwasm.OpcodeI64Const, publicwasm.OpcodeF64Const:
			stack.Push(e.order.Uint64(init[pc:]))
			pc += 8
		case publicwasm.OpcodeGlobalGet:
			idx := e.order.Uint32(init[pc:])
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

// callEngine is the per-invocation state: the operand stack and the explicit call frame stack the threaded
// dispatcher runs over.
type callEngine struct {
	e      *engine
	stack  operand.Stack
	frames []*callFrame
}

// callFrame is one entry of the call stack.
type callFrame struct {
	// pc is the current byte position in f.Compiled.
	pc int
	f  *wasm.FunctionInstance
	// locals are the parameters followed by declared locals, the latter zero-initialized.
	locals []uint64
	// base is the operand-stack depth at entry, after the parameters were consumed. Returning truncates back to
	// it, preserving the results.
	base int
}

func (ce *callEngine) call(ctx context.Context, f *wasm.FunctionInstance) {
	if f.GoFunc != nil {
		ce.callGoFunc(ctx, f)
		return
	}
	ce.pushFrame(f)
	ce.run(ctx)
}

func (ce *callEngine) callGoFunc(ctx context.Context, f *wasm.FunctionInstance) {
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
}

func (ce *callEngine) pushFrame(f *wasm.FunctionInstance) {
	if len(ce.frames) >= ce.e.callStackDepth {
		panic(wasm.ErrRuntimeCallStackOverflow)
	}
	paramCount := len(f.Type.Type.Params)
	locals := make([]uint64, paramCount+len(f.LocalTypes))
	for i := paramCount - 1; i >= 0; i-- {
		locals[i] = ce.stack.Pop()
	}
	ce.frames = append(ce.frames, &callFrame{f: f, locals: locals, base: ce.stack.Len()})
}

// doReturn pops the current frame, discarding operands above its base except the function's results.
func (ce *callEngine) doReturn() {
	frame := ce.frames[len(ce.frames)-1]
	ce.frames = ce.frames[:len(ce.frames)-1]
	ce.stack.Unwind(frame.base, len(frame.f.Type.Type.Results))
}

// readU32 reads a u32 immediate at the current position in the configured byte order.
func (ce *callEngine) readU32(frame *callFrame) uint32 {
	v := ce.e.order.Uint32(frame.f.Compiled[frame.pc:])
	frame.pc += 4
	return v
}

func (ce *callEngine) readU64(frame *callFrame) uint64 {
	v := ce.e.order.Uint64(frame.f.Compiled[frame.pc:])
	frame.pc += 8
	return v
}

// run drives the dispatch loop until the frame that was on top at entry has returned.
func (ce *callEngine) run(ctx context.Context) {
	entryDepth := len(ce.frames)
	for len(ce.frames) >= entryDepth {
		frame := ce.frames[len(ce.frames)-1]
		body := frame.f.Compiled
		if frame.pc >= len(body) {
			// A branch may target the offset just past the last instruction when its block closed the body.
			ce.doReturn()
			continue
		}
		op := body[frame.pc]
		frame.pc++
		switch op {
		case publicwasm.OpcodeUnreachable:
			panic(wasm.ErrRuntimeUnreachable)
		case publicwasm.OpcodeNop:
		case opJump:
			frame.pc = int(ce.readU32(frame))
		case opJumpIf:
			target := ce.readU32(frame)
			if ce.stack.Pop() != 0 {
				frame.pc = int(target)
			}
		case opBr:
			arity := int(body[frame.pc])
			frame.pc++
			drop := ce.readU32(frame)
			target := ce.readU32(frame)
			if target == returnTarget {
				ce.doReturn()
			} else {
				ce.stack.Drop(int(drop), arity)
				frame.pc = int(target)
			}
		case opBrIf:
			arity := int(body[frame.pc])
			frame.pc++
			drop := ce.readU32(frame)
			target := ce.readU32(frame)
			if ce.stack.Pop() != 0 {
				if target == returnTarget {
					ce.doReturn()
				} else {
					ce.stack.Drop(int(drop), arity)
					frame.pc = int(target)
				}
			}
		case opBrTable:
			count := ce.readU32(frame)
			idx := uint32(ce.stack.Pop())
			if idx > count {
				idx = count // default triple sits after the labeled ones
			}
			tOff := frame.pc + int(idx)*9
			arity := int(body[tOff])
			drop := ce.e.order.Uint32(body[tOff+1:])
			target := ce.e.order.Uint32(body[tOff+5:])
			if target == returnTarget {
				ce.doReturn()
			} else {
				ce.stack.Drop(int(drop), arity)
				frame.pc = int(target)
			}
		case publicwasm.OpcodeReturn:
			ce.doReturn()
		case publicwasm.OpcodeCall:
			idx := ce.readU32(frame)
			target := frame.f.Module.Functions[idx]
			if target.GoFunc != nil {
				ce.callGoFunc(ctx, target)
			} else {
				ce.pushFrame(target)
			}
		case publicwasm.OpcodeCallIndirect:
			typeIdx := ce.readU32(frame)
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
			if elem.Function.GoFunc != nil {
				ce.callGoFunc(ctx, elem.Function)
			} else {
				ce.pushFrame(elem.Function)
			}
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
			ce.stack.Push(frame.locals[ce.readU32(frame)])
		case publicwasm.OpcodeLocalSet:
			frame.locals[ce.readU32(frame)] = ce.stack.Pop()
		case publicwasm.OpcodeLocalTee:
			frame.locals[ce.readU32(frame)] = ce.stack.Peek()
		case publicwasm.OpcodeGlobalGet:
			ce.stack.Push(frame.f.Module.Globals[ce.readU32(frame)].Val)
		case publicwasm.OpcodeGlobalSet:
			frame.f.Module.Globals[ce.readU32(frame)].Val = ce.stack.Pop()
		case publicwasm.OpcodeMemorySize:
			ce.stack.Push(uint64(frame.f.Module.Memory.Pages()))
		case publicwasm.OpcodeMemoryGrow:
			n := ce.stack.Pop()
			ce.stack.Push(uint64(frame.f.Module.Memory.Grow(uint32(n))))
		case publicwasm.OpcodeI32Const, publicwasm.OpcodeF32Const:
			ce.stack.Push(uint64(ce.readU32(frame)))
		case publicwasm.OpcodeI64Const, publicwasm.OpcodeF64Const:
			ce.stack.Push(ce.readU64(frame))
		default:
			if op >= publicwasm.OpcodeI32Load && op <= publicwasm.OpcodeI64Store32 {
				_ = ce.readU32(frame) // align is unused at runtime
				offset := ce.readU32(frame)
				ce.stack.Memory(frame.f.Module.Memory, op, offset)
			} else {
				ce.stack.Numeric(op)
			}
		}
	}
}
