package swam_test

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	swam "github.com/shrin18/swam"
	"github.com/shrin18/swam/api"
	"github.com/shrin18/swam/wasm"
)

var ctx = context.Background()

// runtimeConfigs returns one configuration per back-end variant. Every scenario below runs under all of them:
// the two back-ends must produce identical observable behavior, which is the strongest oracle this engine has.
func runtimeConfigs() map[string]*swam.RuntimeConfig {
	return map[string]*swam.RuntimeConfig{
		"structured":  swam.NewRuntimeConfigStructured(),
		"flat":        swam.NewRuntimeConfigFlat(),
		"flat-big":    swam.NewRuntimeConfigFlat().WithByteOrder(binary.BigEndian),
		"flat-little": swam.NewRuntimeConfigFlat().WithByteOrder(binary.LittleEndian),
	}
}

func i32ptr() *wasm.ValueType {
	v := wasm.ValueTypeI32
	return &v
}

func i32const(v int32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpcodeI32Const, ConstBits: uint64(uint32(v))}
}

func localGet(i uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpcodeLocalGet, Index: i}
}

func localSet(i uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpcodeLocalSet, Index: i}
}

func op(o wasm.Opcode) wasm.Instruction {
	return wasm.Instruction{Opcode: o}
}

func instantiate(t *testing.T, config *swam.RuntimeConfig, sections []wasm.Section) api.Module {
	r := swam.NewRuntimeWithConfig(config)
	compiled, err := r.CompileModule(sections)
	require.NoError(t, err)
	mod, err := r.InstantiateModule(ctx, compiled, t.Name())
	require.NoError(t, err)
	return mod
}

// TestAdd is the smallest end-to-end scenario: two parameters flow through the operand stack and back out.
func TestAdd(t *testing.T) {
	sections := []wasm.Section{
		wasm.SectionTypes{Types: []wasm.FunctionType{{
			Params:  []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32},
			Results: []wasm.ValueType{wasm.ValueTypeI32},
		}}},
		wasm.SectionFunctions{TypeIndices: []wasm.Index{0}},
		wasm.SectionExports{Exports: []wasm.Export{{Type: api.ExternTypeFunc, Name: "add", Index: 0}}},
		wasm.SectionCode{Bodies: []wasm.FuncBody{{
			Body: []wasm.Instruction{localGet(0), localGet(1), op(wasm.OpcodeI32Add)},
		}}},
	}

	for name, config := range runtimeConfigs() {
		config := config
		t.Run(name, func(t *testing.T) {
			mod := instantiate(t, config, sections)
			results, err := mod.ExportedFunction("add").Call(ctx, 7, 5)
			require.NoError(t, err)
			require.Equal(t, []uint64{12}, results)
		})
	}
}

// TestFibonacci exercises recursion: call frames, returns and the conditional branch of the if lowering.
func TestFibonacci(t *testing.T) {
	sections := []wasm.Section{
		wasm.SectionTypes{Types: []wasm.FunctionType{{
			Params:  []wasm.ValueType{wasm.ValueTypeI32},
			Results: []wasm.ValueType{wasm.ValueTypeI32},
		}}},
		wasm.SectionFunctions{TypeIndices: []wasm.Index{0}},
		wasm.SectionExports{Exports: []wasm.Export{{Type: api.ExternTypeFunc, Name: "fib", Index: 0}}},
		wasm.SectionCode{Bodies: []wasm.FuncBody{{
			Body: []wasm.Instruction{
				localGet(0),
				i32const(2),
				op(wasm.OpcodeI32LtS),
				{Opcode: wasm.OpcodeIf, Body: []wasm.Instruction{
					localGet(0),
					op(wasm.OpcodeReturn),
				}},
				localGet(0),
				i32const(1),
				op(wasm.OpcodeI32Sub),
				{Opcode: wasm.OpcodeCall, Index: 0},
				localGet(0),
				i32const(2),
				op(wasm.OpcodeI32Sub),
				{Opcode: wasm.OpcodeCall, Index: 0},
				op(wasm.OpcodeI32Add),
			},
		}}},
	}

	for name, config := range runtimeConfigs() {
		config := config
		t.Run(name, func(t *testing.T) {
			mod := instantiate(t, config, sections)
			fib := mod.ExportedFunction("fib")
			results, err := fib.Call(ctx, 10)
			require.NoError(t, err)
			require.Equal(t, []uint64{55}, results)

			results, err = fib.Call(ctx, 1)
			require.NoError(t, err)
			require.Equal(t, []uint64{1}, results)
		})
	}
}

// TestLoop sums 1..n with a loop continued by br_if, exercising locals and the backward branch.
func TestLoop(t *testing.T) {
	sections := []wasm.Section{
		wasm.SectionTypes{Types: []wasm.FunctionType{{
			Params:  []wasm.ValueType{wasm.ValueTypeI32},
			Results: []wasm.ValueType{wasm.ValueTypeI32},
		}}},
		wasm.SectionFunctions{TypeIndices: []wasm.Index{0}},
		wasm.SectionExports{Exports: []wasm.Export{{Type: api.ExternTypeFunc, Name: "sum", Index: 0}}},
		wasm.SectionCode{Bodies: []wasm.FuncBody{{
			Locals: []wasm.LocalGroup{{Count: 2, Type: wasm.ValueTypeI32}}, // i, sum
			Body: []wasm.Instruction{
				{Opcode: wasm.OpcodeLoop, Body: []wasm.Instruction{
					// i++
					localGet(1), i32const(1), op(wasm.OpcodeI32Add), localSet(1),
					// sum += i
					localGet(2), localGet(1), op(wasm.OpcodeI32Add), localSet(2),
					// continue while i < n
					localGet(1), localGet(0), op(wasm.OpcodeI32LtU),
					{Opcode: wasm.OpcodeBrIf, Index: 0},
				}},
				localGet(2),
			},
		}}},
	}

	for name, config := range runtimeConfigs() {
		config := config
		t.Run(name, func(t *testing.T) {
			mod := instantiate(t, config, sections)
			results, err := mod.ExportedFunction("sum").Call(ctx, 5)
			require.NoError(t, err)
			require.Equal(t, []uint64{15}, results)
		})
	}
}

// TestMemoryInit verifies data segments land exactly where their offset initializers say, and nowhere else.
func TestMemoryInit(t *testing.T) {
	sections := []wasm.Section{
		wasm.SectionMemories{Memories: []wasm.MemoryType{{Min: 1}}},
		wasm.SectionExports{Exports: []wasm.Export{{Type: api.ExternTypeMemory, Name: "memory", Index: 0}}},
		wasm.SectionData{Segments: []wasm.DataSegment{{
			MemoryIndex: 0,
			Offset:      []wasm.Instruction{i32const(100)},
			Init:        []byte("Hello"),
		}}},
	}

	for name, config := range runtimeConfigs() {
		config := config
		t.Run(name, func(t *testing.T) {
			mod := instantiate(t, config, sections)
			mem := mod.ExportedMemory("memory")
			require.NotNil(t, mem)

			buf, ok := mem.Read(100, 5)
			require.True(t, ok)
			require.Equal(t, []byte("Hello"), buf)

			buf, ok = mem.Read(0, 5)
			require.True(t, ok)
			require.Equal(t, []byte{0, 0, 0, 0, 0}, buf)
		})
	}
}

// TestDivideByZeroTrap verifies the trap surfaces typed and the instance stays usable afterwards.
func TestDivideByZeroTrap(t *testing.T) {
	sections := []wasm.Section{
		wasm.SectionTypes{Types: []wasm.FunctionType{{
			Params:  []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32},
			Results: []wasm.ValueType{wasm.ValueTypeI32},
		}}},
		wasm.SectionFunctions{TypeIndices: []wasm.Index{0}},
		wasm.SectionExports{Exports: []wasm.Export{{Type: api.ExternTypeFunc, Name: "div", Index: 0}}},
		wasm.SectionCode{Bodies: []wasm.FuncBody{{
			Body: []wasm.Instruction{localGet(0), localGet(1), op(wasm.OpcodeI32DivS)},
		}}},
	}

	for name, config := range runtimeConfigs() {
		config := config
		t.Run(name, func(t *testing.T) {
			mod := instantiate(t, config, sections)
			div := mod.ExportedFunction("div")

			_, err := div.Call(ctx, 1, 0)
			require.Error(t, err)
			var trap *api.TrapError
			require.True(t, errors.As(err, &trap))
			require.Equal(t, api.TrapCodeIntegerDivideByZero, trap.Code)

			// The instance survives the trap.
			results, err := div.Call(ctx, 7, 2)
			require.NoError(t, err)
			require.Equal(t, []uint64{3}, results)
		})
	}
}

// TestBrTable selects among four labels, which exercises the fixup of multiple forward targets in one
// instruction.
func TestBrTable(t *testing.T) {
	sections := []wasm.Section{
		wasm.SectionTypes{Types: []wasm.FunctionType{{
			Params:  []wasm.ValueType{wasm.ValueTypeI32},
			Results: []wasm.ValueType{wasm.ValueTypeI32},
		}}},
		wasm.SectionFunctions{TypeIndices: []wasm.Index{0}},
		wasm.SectionExports{Exports: []wasm.Export{{Type: api.ExternTypeFunc, Name: "sel", Index: 0}}},
		wasm.SectionCode{Bodies: []wasm.FuncBody{{
			Body: []wasm.Instruction{
				{Opcode: wasm.OpcodeBlock, Body: []wasm.Instruction{
					{Opcode: wasm.OpcodeBlock, Body: []wasm.Instruction{
						{Opcode: wasm.OpcodeBlock, Body: []wasm.Instruction{
							{Opcode: wasm.OpcodeBlock, Body: []wasm.Instruction{
								localGet(0),
								{Opcode: wasm.OpcodeBrTable, Labels: []wasm.Index{0, 1, 2}, DefaultLabel: 3},
							}},
							i32const(10),
							op(wasm.OpcodeReturn),
						}},
						i32const(20),
						op(wasm.OpcodeReturn),
					}},
					i32const(30),
					op(wasm.OpcodeReturn),
				}},
				i32const(99),
			},
		}}},
	}

	for name, config := range runtimeConfigs() {
		config := config
		t.Run(name, func(t *testing.T) {
			mod := instantiate(t, config, sections)
			sel := mod.ExportedFunction("sel")
			for _, tc := range []struct{ in, out uint64 }{
				{0, 10}, {1, 20}, {2, 30}, {7, 99},
			} {
				results, err := sel.Call(ctx, tc.in)
				require.NoError(t, err)
				require.Equal(t, []uint64{tc.out}, results, "sel(%d)", tc.in)
			}
		})
	}
}

// TestMemoryGrow verifies memory.grow returns the previous page count, respects the declared maximum, and is
// atomic on failure.
func TestMemoryGrow(t *testing.T) {
	two := uint32(2)
	sections := []wasm.Section{
		wasm.SectionTypes{Types: []wasm.FunctionType{
			{Params: []wasm.ValueType{wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}},
			{Results: []wasm.ValueType{wasm.ValueTypeI32}},
		}},
		wasm.SectionFunctions{TypeIndices: []wasm.Index{0, 1}},
		wasm.SectionMemories{Memories: []wasm.MemoryType{{Min: 1, Max: &two}}},
		wasm.SectionExports{Exports: []wasm.Export{
			{Type: api.ExternTypeFunc, Name: "grow", Index: 0},
			{Type: api.ExternTypeFunc, Name: "size", Index: 1},
		}},
		wasm.SectionCode{Bodies: []wasm.FuncBody{
			{Body: []wasm.Instruction{localGet(0), op(wasm.OpcodeMemoryGrow)}},
			{Body: []wasm.Instruction{op(wasm.OpcodeMemorySize)}},
		}},
	}

	for name, config := range runtimeConfigs() {
		config := config
		t.Run(name, func(t *testing.T) {
			mod := instantiate(t, config, sections)
			grow, size := mod.ExportedFunction("grow"), mod.ExportedFunction("size")

			results, err := grow.Call(ctx, 1)
			require.NoError(t, err)
			require.Equal(t, []uint64{1}, results)

			results, err = grow.Call(ctx, 1)
			require.NoError(t, err)
			require.Equal(t, []uint64{0xffffffff}, results) // -1: the maximum is 2 pages

			results, err = size.Call(ctx)
			require.NoError(t, err)
			require.Equal(t, []uint64{2}, results)
		})
	}
}

// TestCallIndirect covers the table dispatch matrix: a matching call, a signature mismatch, an uninitialized
// element and an out-of-range index.
func TestCallIndirect(t *testing.T) {
	sections := []wasm.Section{
		wasm.SectionTypes{Types: []wasm.FunctionType{
			{Results: []wasm.ValueType{wasm.ValueTypeI32}},                                              // type 0: () -> i32
			{Params: []wasm.ValueType{wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}}, // type 1
		}},
		wasm.SectionFunctions{TypeIndices: []wasm.Index{0, 1, 1}},
		wasm.SectionTables{Tables: []wasm.TableType{{ElemType: wasm.RefTypeFuncref, Limit: wasm.Limits{Min: 4}}}},
		wasm.SectionExports{Exports: []wasm.Export{{Type: api.ExternTypeFunc, Name: "dispatch", Index: 2}}},
		wasm.SectionElements{Segments: []wasm.ElementSegment{{
			TableIndex: 0,
			Offset:     []wasm.Instruction{i32const(0)},
			Init:       []wasm.Index{0, 1},
		}}},
		wasm.SectionCode{Bodies: []wasm.FuncBody{
			{Body: []wasm.Instruction{i32const(42)}},
			{Body: []wasm.Instruction{localGet(0)}},
			{Body: []wasm.Instruction{
				localGet(0),
				{Opcode: wasm.OpcodeCallIndirect, Index: 0}, // static type: () -> i32
			}},
		}},
	}

	for name, config := range runtimeConfigs() {
		config := config
		t.Run(name, func(t *testing.T) {
			mod := instantiate(t, config, sections)
			dispatch := mod.ExportedFunction("dispatch")

			results, err := dispatch.Call(ctx, 0)
			require.NoError(t, err)
			require.Equal(t, []uint64{42}, results)

			var trap *api.TrapError
			_, err = dispatch.Call(ctx, 1)
			require.True(t, errors.As(err, &trap))
			require.Equal(t, api.TrapCodeIndirectCallTypeMismatch, trap.Code)

			_, err = dispatch.Call(ctx, 3)
			require.True(t, errors.As(err, &trap))
			require.Equal(t, api.TrapCodeInvalidTableAccess, trap.Code)

			_, err = dispatch.Call(ctx, 10)
			require.True(t, errors.As(err, &trap))
			require.Equal(t, api.TrapCodeInvalidTableAccess, trap.Code)
		})
	}
}

// TestUnreachable verifies the unreachable opcode traps with its own code.
func TestUnreachable(t *testing.T) {
	sections := []wasm.Section{
		wasm.SectionTypes{Types: []wasm.FunctionType{{}}},
		wasm.SectionFunctions{TypeIndices: []wasm.Index{0}},
		wasm.SectionExports{Exports: []wasm.Export{{Type: api.ExternTypeFunc, Name: "crash", Index: 0}}},
		wasm.SectionCode{Bodies: []wasm.FuncBody{{Body: []wasm.Instruction{op(wasm.OpcodeUnreachable)}}}},
	}

	for name, config := range runtimeConfigs() {
		config := config
		t.Run(name, func(t *testing.T) {
			mod := instantiate(t, config, sections)
			_, err := mod.ExportedFunction("crash").Call(ctx)
			var trap *api.TrapError
			require.True(t, errors.As(err, &trap))
			require.Equal(t, api.TrapCodeUnreachable, trap.Code)
		})
	}
}

// TestHostFunction imports Go functions, including one taking a context and one refusing with an error, which
// the interpreter surfaces as a trap.
func TestHostFunction(t *testing.T) {
	sections := []wasm.Section{
		wasm.SectionTypes{Types: []wasm.FunctionType{
			{Params: []wasm.ValueType{wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}},
		}},
		wasm.SectionImports{Imports: []wasm.Import{
			{Type: api.ExternTypeFunc, Module: "env", Name: "double", DescFunc: 0},
			{Type: api.ExternTypeFunc, Module: "env", Name: "refuse", DescFunc: 0},
		}},
		wasm.SectionFunctions{TypeIndices: []wasm.Index{0, 0}},
		wasm.SectionExports{Exports: []wasm.Export{
			{Type: api.ExternTypeFunc, Name: "double_plus_one", Index: 2},
			{Type: api.ExternTypeFunc, Name: "refuse", Index: 3},
		}},
		wasm.SectionCode{Bodies: []wasm.FuncBody{
			{Body: []wasm.Instruction{
				localGet(0),
				{Opcode: wasm.OpcodeCall, Index: 0}, // imported "double"
				i32const(1),
				op(wasm.OpcodeI32Add),
			}},
			{Body: []wasm.Instruction{
				localGet(0),
				{Opcode: wasm.OpcodeCall, Index: 1}, // imported "refuse"
			}},
		}},
	}

	hostErr := errors.New("not today")
	for name, config := range runtimeConfigs() {
		config := config
		t.Run(name, func(t *testing.T) {
			r := swam.NewRuntimeWithConfig(config)
			_, err := r.NewHostModuleBuilder("env").
				ExportFunction("double", func(_ context.Context, v uint32) uint32 { return v * 2 }).
				ExportFunction("refuse", func(uint32) (uint32, error) { return 0, hostErr }).
				Instantiate()
			require.NoError(t, err)

			compiled, err := r.CompileModule(sections)
			require.NoError(t, err)
			mod, err := r.InstantiateModule(ctx, compiled, t.Name())
			require.NoError(t, err)

			results, err := mod.ExportedFunction("double_plus_one").Call(ctx, 20)
			require.NoError(t, err)
			require.Equal(t, []uint64{41}, results)

			_, err = mod.ExportedFunction("refuse").Call(ctx, 1)
			require.ErrorIs(t, err, hostErr)
		})
	}
}

// TestGlobals covers imported and defined globals, initializer evaluation via global.get, mutation from inside
// the module, and the immutable export surface.
func TestGlobals(t *testing.T) {
	sections := []wasm.Section{
		wasm.SectionTypes{Types: []wasm.FunctionType{{Results: []wasm.ValueType{wasm.ValueTypeI32}}}},
		wasm.SectionImports{Imports: []wasm.Import{{
			Type: api.ExternTypeGlobal, Module: "env", Name: "base",
			DescGlobal: &wasm.GlobalType{ValType: wasm.ValueTypeI32},
		}}},
		wasm.SectionFunctions{TypeIndices: []wasm.Index{0}},
		wasm.SectionGlobals{Globals: []wasm.Global{{
			Type: wasm.GlobalType{ValType: wasm.ValueTypeI32, Mutable: true},
			// Initialized from the imported global: 100.
			Init: []wasm.Instruction{{Opcode: wasm.OpcodeGlobalGet, Index: 0}},
		}}},
		wasm.SectionExports{Exports: []wasm.Export{
			{Type: api.ExternTypeFunc, Name: "bump", Index: 0},
			{Type: api.ExternTypeGlobal, Name: "counter", Index: 1},
			{Type: api.ExternTypeGlobal, Name: "base", Index: 0},
		}},
		wasm.SectionCode{Bodies: []wasm.FuncBody{{
			Body: []wasm.Instruction{
				{Opcode: wasm.OpcodeGlobalGet, Index: 1},
				i32const(1),
				op(wasm.OpcodeI32Add),
				{Opcode: wasm.OpcodeGlobalSet, Index: 1},
				{Opcode: wasm.OpcodeGlobalGet, Index: 1},
			},
		}}},
	}

	for name, config := range runtimeConfigs() {
		config := config
		t.Run(name, func(t *testing.T) {
			r := swam.NewRuntimeWithConfig(config)
			_, err := r.NewHostModuleBuilder("env").
				ExportGlobal("base", api.ValueTypeI32, false, 100).
				Instantiate()
			require.NoError(t, err)

			compiled, err := r.CompileModule(sections)
			require.NoError(t, err)
			mod, err := r.InstantiateModule(ctx, compiled, t.Name())
			require.NoError(t, err)

			results, err := mod.ExportedFunction("bump").Call(ctx)
			require.NoError(t, err)
			require.Equal(t, []uint64{101}, results)

			counter := mod.ExportedGlobal("counter")
			require.Equal(t, uint64(101), counter.Get())
			mutable, ok := counter.(api.MutableGlobal)
			require.True(t, ok)
			mutable.Set(7)
			require.Equal(t, uint64(7), counter.Get())

			// A global declared immutable refuses writes: there is no Set on its handle.
			base := mod.ExportedGlobal("base")
			_, ok = base.(api.MutableGlobal)
			require.False(t, ok)
			require.Equal(t, uint64(100), base.Get())
		})
	}
}

// TestLinkErrors verifies missing and mismatched imports fail with *api.LinkError before any start function
// runs.
func TestLinkErrors(t *testing.T) {
	sections := []wasm.Section{
		wasm.SectionTypes{Types: []wasm.FunctionType{{Results: []wasm.ValueType{wasm.ValueTypeI32}}}},
		wasm.SectionImports{Imports: []wasm.Import{{
			Type: api.ExternTypeFunc, Module: "env", Name: "f", DescFunc: 0,
		}}},
	}

	for name, config := range runtimeConfigs() {
		config := config
		t.Run(name, func(t *testing.T) {
			t.Run("module not instantiated", func(t *testing.T) {
				r := swam.NewRuntimeWithConfig(config)
				compiled, err := r.CompileModule(sections)
				require.NoError(t, err)
				_, err = r.InstantiateModule(ctx, compiled, t.Name())
				var link *api.LinkError
				require.True(t, errors.As(err, &link))
				require.Equal(t, "env", link.ModuleName)
			})

			t.Run("signature mismatch", func(t *testing.T) {
				r := swam.NewRuntimeWithConfig(config)
				_, err := r.NewHostModuleBuilder("env").
					ExportFunction("f", func(uint32) {}). // (i32) -> nil, but the import wants () -> i32
					Instantiate()
				require.NoError(t, err)
				compiled, err := r.CompileModule(sections)
				require.NoError(t, err)
				_, err = r.InstantiateModule(ctx, compiled, t.Name())
				var link *api.LinkError
				require.True(t, errors.As(err, &link))
				require.Equal(t, "f", link.FieldName)
			})
		})
	}
}

// TestStartFunction verifies the start function runs during instantiation and that a trap inside it aborts
// instantiation without registering the instance.
func TestStartFunction(t *testing.T) {
	start := wasm.Index(0)
	okSections := []wasm.Section{
		wasm.SectionTypes{Types: []wasm.FunctionType{{}}},
		wasm.SectionFunctions{TypeIndices: []wasm.Index{0}},
		wasm.SectionMemories{Memories: []wasm.MemoryType{{Min: 1}}},
		wasm.SectionExports{Exports: []wasm.Export{{Type: api.ExternTypeMemory, Name: "memory", Index: 0}}},
		wasm.SectionStart{FuncIndex: start},
		wasm.SectionCode{Bodies: []wasm.FuncBody{{
			// memory[8] = 42, observable after instantiation
			Body: []wasm.Instruction{
				i32const(8),
				i32const(42),
				{Opcode: wasm.OpcodeI32Store, Offset: 0, Align: 2},
			},
		}}},
	}
	trapSections := []wasm.Section{
		wasm.SectionTypes{Types: []wasm.FunctionType{{}}},
		wasm.SectionFunctions{TypeIndices: []wasm.Index{0}},
		wasm.SectionStart{FuncIndex: start},
		wasm.SectionCode{Bodies: []wasm.FuncBody{{Body: []wasm.Instruction{op(wasm.OpcodeUnreachable)}}}},
	}

	for name, config := range runtimeConfigs() {
		config := config
		t.Run(name, func(t *testing.T) {
			t.Run("start runs", func(t *testing.T) {
				mod := instantiate(t, config, okSections)
				v, ok := mod.ExportedMemory("memory").ReadUint32Le(8)
				require.True(t, ok)
				require.Equal(t, uint32(42), v)
			})

			t.Run("start trap aborts", func(t *testing.T) {
				r := swam.NewRuntimeWithConfig(config)
				compiled, err := r.CompileModule(trapSections)
				require.NoError(t, err)
				_, err = r.InstantiateModule(ctx, compiled, t.Name())
				var trap *api.TrapError
				require.True(t, errors.As(err, &trap))
				require.Equal(t, api.TrapCodeUnreachable, trap.Code)
				require.Nil(t, r.Module(t.Name()))
			})
		})
	}
}

// TestCallStackExhausted verifies runaway recursion traps instead of crashing the process.
func TestCallStackExhausted(t *testing.T) {
	sections := []wasm.Section{
		wasm.SectionTypes{Types: []wasm.FunctionType{{}}},
		wasm.SectionFunctions{TypeIndices: []wasm.Index{0}},
		wasm.SectionExports{Exports: []wasm.Export{{Type: api.ExternTypeFunc, Name: "loop", Index: 0}}},
		wasm.SectionCode{Bodies: []wasm.FuncBody{{
			Body: []wasm.Instruction{{Opcode: wasm.OpcodeCall, Index: 0}},
		}}},
	}

	for name, config := range map[string]*swam.RuntimeConfig{
		"structured": swam.NewRuntimeConfigStructured().WithCallStackDepth(64),
		"flat":       swam.NewRuntimeConfigFlat().WithCallStackDepth(64),
	} {
		config := config
		t.Run(name, func(t *testing.T) {
			mod := instantiate(t, config, sections)
			_, err := mod.ExportedFunction("loop").Call(ctx)
			var trap *api.TrapError
			require.True(t, errors.As(err, &trap))
			require.Equal(t, api.TrapCodeCallStackOverflow, trap.Code)
		})
	}
}

// TestDataSegmentOutOfBounds verifies a data segment past the memory end aborts instantiation.
func TestDataSegmentOutOfBounds(t *testing.T) {
	sections := []wasm.Section{
		wasm.SectionMemories{Memories: []wasm.MemoryType{{Min: 1}}},
		wasm.SectionData{Segments: []wasm.DataSegment{{
			MemoryIndex: 0,
			Offset:      []wasm.Instruction{i32const(65534)},
			Init:        []byte("Hello"),
		}}},
	}

	for name, config := range runtimeConfigs() {
		config := config
		t.Run(name, func(t *testing.T) {
			r := swam.NewRuntimeWithConfig(config)
			compiled, err := r.CompileModule(sections)
			require.NoError(t, err)
			_, err = r.InstantiateModule(ctx, compiled, t.Name())
			var trap *api.TrapError
			require.True(t, errors.As(err, &trap))
			require.Equal(t, api.TrapCodeOutOfBoundsMemoryAccess, trap.Code)
		})
	}
}
