package wasm

import (
	"bytes"
	"context"
	"fmt"
	"reflect"

	"github.com/shrin18/swam/api"
	publicwasm "github.com/shrin18/swam/wasm"
)

type (
	// Store is the runtime representation of instantiated Wasm modules and host modules. Instances are registered
	// by name so later instantiations can resolve imports against them.
	//
	// Note: A Store is not safe for concurrent mutation: guard Instantiate and RegisterHostModule with a mutex if
	// modules are instantiated from multiple goroutines. Executing already-instantiated modules is safe as long as
	// each instance is driven by one goroutine at a time.
	//
	// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#store%E2%91%A0
	Store struct {
		// engine compiles and executes function bodies. It is shared with every module assembled by the owning
		// runtime.
		engine Engine

		// modules holds the instantiated modules by name.
		modules map[string]*ModuleInstance

		// typeIDs maps each FunctionType.String() to a store-unique FunctionTypeID, used at runtime for the
		// type-check on indirect calls.
		typeIDs map[string]FunctionTypeID

		// memoryMaxPages bounds memories that declare no maximum.
		memoryMaxPages uint32

		// memoryCapacityFromMax reserves each memory's capacity at its maximum up front, so grow never copies.
		memoryCapacityFromMax bool
	}

	// ModuleInstance represents an instantiated Wasm module: the resolved import slots and the storage it
	// exclusively owns. Holding pointers to instances rather than store addresses is a deliberate difference from
	// the specification text, for convenience.
	//
	// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#syntax-moduleinst
	ModuleInstance struct {
		Name string

		// Module is the originating compiled module, borrowed and shared; nil for host modules.
		Module *Module

		// Functions is the function index namespace: imported functions followed by defined ones.
		Functions []*FunctionInstance
		// Globals is the global index namespace: imported globals followed by defined ones.
		Globals []*GlobalInstance
		// Memory is set when this module defined or imported a memory.
		Memory *MemoryInstance
		// Table is set when this module defined or imported a table.
		Table *TableInstance
		// Types are the store-qualified type instances of Module.TypeSection, aligned by index.
		Types []*TypeInstance

		// Exports indexes exported instances by name.
		Exports map[string]*ExportInstance

		// Engine executes this instance's functions.
		Engine Engine
	}

	// ExportInstance points to the instance behind one export, discriminated by Type.
	//
	// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#syntax-exportinst
	ExportInstance struct {
		Type     api.ExternType
		Function *FunctionInstance
		Global   *GlobalInstance
		Memory   *MemoryInstance
		Table    *TableInstance
	}

	// FunctionInstance represents a function instance in a store.
	//
	// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#function-instances%E2%91%A0
	FunctionInstance struct {
		// Module is the instance this function belongs to; its memory, table and globals are the ones the body
		// addresses.
		Module *ModuleInstance
		// Type is the store-qualified signature.
		Type *TypeInstance
		// LocalTypes holds the types of non-parameter locals, zero-initialized at call entry.
		LocalTypes []ValueType
		// Compiled is the engine-lowered body. Empty for host functions.
		Compiled []byte
		// Kind describes how this function should be called.
		Kind FunctionKind
		// GoFunc holds the runtime representation of host functions; nil when Kind == FunctionKindWasm.
		GoFunc *reflect.Value
	}

	// TypeInstance couples a FunctionType with the ID the store assigned it. Equal signatures share one ID, which
	// makes the indirect call type-check a single integer compare.
	TypeInstance struct {
		Type *publicwasm.FunctionType
		// TypeID is store-unique per signature.
		TypeID FunctionTypeID
	}

	// FunctionTypeID is a uniquely assigned integer for a function type, specific to one store, used at runtime
	// for the type-check on indirect calls.
	FunctionTypeID uint32
)

// NewStore returns a store executing with the given engine.
func NewStore(engine Engine, memoryMaxPages uint32, memoryCapacityFromMax bool) *Store {
	return &Store{
		engine:                engine,
		modules:               map[string]*ModuleInstance{},
		typeIDs:               map[string]FunctionTypeID{},
		memoryMaxPages:        memoryMaxPages,
		memoryCapacityFromMax: memoryCapacityFromMax,
	}
}

// Module returns the instance registered under the given name or nil.
func (s *Store) Module(name string) *ModuleInstance {
	return s.modules[name]
}

// Instantiate resolves the module's imports against previously registered instances, allocates its memories,
// tables and globals, evaluates initializers, applies element and data segments, and invokes the start function.
//
// On any failure nothing is registered: partially allocated storage is dropped and imported instances are never
// left observably mutated, because segment bounds are validated before either table or memory is written.
func (s *Store) Instantiate(ctx context.Context, module *Module, name string) (*ModuleInstance, error) {
	if _, ok := s.modules[name]; ok {
		return nil, fmt.Errorf("module %q is already instantiated", name)
	}

	importedFunctions, importedGlobals, importedTable, importedMemory, err := s.resolveImports(module)
	if err != nil {
		return nil, err
	}

	instance := &ModuleInstance{Name: name, Module: module, Engine: s.engine}
	instance.Types = make([]*TypeInstance, len(module.TypeSection))
	for i := range module.TypeSection {
		instance.Types[i] = s.getTypeInstance(&module.TypeSection[i])
	}

	// The function index namespace begins with imports.
	instance.Functions = append(instance.Functions, importedFunctions...)
	for i := range module.CodeSection {
		code := &module.CodeSection[i]
		instance.Functions = append(instance.Functions, &FunctionInstance{
			Module:     instance,
			Type:       instance.Types[module.FunctionSection[i]],
			LocalTypes: code.LocalTypes,
			Compiled:   code.Compiled,
			Kind:       FunctionKindWasm,
		})
	}

	// Globals: evaluate each initializer against the imported globals only, per the constant expression rules.
	instance.Globals = append(instance.Globals, importedGlobals...)
	for i := range module.GlobalSection {
		g := &module.GlobalSection[i]
		val, err := s.engine.EvalInitializer(g.InitCompiled, importedGlobals)
		if err != nil {
			return nil, fmt.Errorf("global[%d] initializer: %w", i, err)
		}
		instance.Globals = append(instance.Globals, &GlobalInstance{Type: g.Type, Val: val})
	}

	if importedMemory != nil {
		instance.Memory = importedMemory
	} else if len(module.MemorySection) > 0 {
		instance.Memory = NewMemoryInstance(&module.MemorySection[0], s.memoryCapacityFromMax, s.memoryMaxPages)
	}

	if importedTable != nil {
		instance.Table = importedTable
	} else if len(module.TableSection) > 0 {
		t := &module.TableSection[0]
		instance.Table = NewTableInstance(t.Limit.Min, t.Limit.Max)
	}

	// Segment offsets are evaluated and bounds-checked before anything is written, so an aborted instantiation
	// never leaves a possibly imported table or memory partially updated.
	elemOffsets, err := s.validateElements(instance, module.ElementSection)
	if err != nil {
		return nil, err
	}
	dataOffsets, err := s.validateData(instance, module.DataSection)
	if err != nil {
		return nil, err
	}
	applyElements(instance, module.ElementSection, elemOffsets)
	applyData(instance, module.DataSection, dataOffsets)

	if err := instance.buildExports(module.ExportSection); err != nil {
		return nil, err
	}

	// Execute the start function. A trap here aborts instantiation: the instance is never registered.
	if module.StartSection != nil {
		funcIdx := *module.StartSection
		if _, err := s.engine.Call(ctx, instance.Functions[funcIdx]); err != nil {
			return nil, fmt.Errorf("module[%s] start function failed: %w", name, err)
		}
	}

	s.modules[name] = instance
	return instance, nil
}

// RegisterHostModule registers a module instance assembled from host entities (see the root package's host module
// builder) so Wasm modules can import from it by name.
func (s *Store) RegisterHostModule(instance *ModuleInstance) error {
	if _, ok := s.modules[instance.Name]; ok {
		return fmt.Errorf("module %q is already instantiated", instance.Name)
	}
	instance.Engine = s.engine
	s.modules[instance.Name] = instance
	return nil
}

// GetTypeInstance qualifies the given signature with this store's type ID namespace. Exported for the host module
// builder, which creates function instances outside Instantiate.
func (s *Store) GetTypeInstance(t *publicwasm.FunctionType) *TypeInstance {
	return s.getTypeInstance(t)
}

func (s *Store) getTypeInstance(t *publicwasm.FunctionType) *TypeInstance {
	key := t.String()
	id, ok := s.typeIDs[key]
	if !ok {
		id = FunctionTypeID(len(s.typeIDs))
		s.typeIDs[key] = id
	}
	return &TypeInstance{Type: t, TypeID: id}
}

func (s *Store) resolveImports(module *Module) (
	functions []*FunctionInstance, globals []*GlobalInstance,
	table *TableInstance, memory *MemoryInstance,
	err error,
) {
	for i := range module.ImportSection {
		is := &module.ImportSection[i]
		m, ok := s.modules[is.Module]
		if !ok {
			err = &api.LinkError{ModuleName: is.Module, FieldName: is.Name, Message: "module not instantiated"}
			return
		}
		exp, ok := m.Exports[is.Name]
		if !ok {
			err = &api.LinkError{ModuleName: is.Module, FieldName: is.Name, Message: "not exported"}
			return
		}
		if exp.Type != is.Type {
			err = &api.LinkError{
				ModuleName: is.Module, FieldName: is.Name,
				Message: fmt.Sprintf("export is a %s, not a %s", api.ExternTypeName(exp.Type), api.ExternTypeName(is.Type)),
			}
			return
		}

		switch is.Type {
		case api.ExternTypeFunc:
			expectedType := &module.TypeSection[is.DescFunc]
			f := exp.Function
			if !bytes.Equal(expectedType.Params, f.Type.Type.Params) || !bytes.Equal(expectedType.Results, f.Type.Type.Results) {
				err = &api.LinkError{
					ModuleName: is.Module, FieldName: is.Name,
					Message: fmt.Sprintf("signature mismatch: %s != %s", expectedType, f.Type.Type),
				}
				return
			}
			functions = append(functions, f)
		case api.ExternTypeTable:
			tableType := is.DescTable
			table = exp.Table
			if table.ElemType != tableType.ElemType {
				err = &api.LinkError{ModuleName: is.Module, FieldName: is.Name, Message: "element type mismatch"}
				return
			}
			if table.Min < tableType.Limit.Min {
				err = &api.LinkError{ModuleName: is.Module, FieldName: is.Name, Message: "minimum size mismatch"}
				return
			}
			if tableType.Limit.Max != nil && (table.Max == nil || *table.Max > *tableType.Limit.Max) {
				err = &api.LinkError{ModuleName: is.Module, FieldName: is.Name, Message: "maximum size mismatch"}
				return
			}
		case api.ExternTypeMemory:
			memoryType := is.DescMem
			memory = exp.Memory
			if memory.Min < memoryType.Min {
				err = &api.LinkError{ModuleName: is.Module, FieldName: is.Name, Message: "minimum size mismatch"}
				return
			}
			if memoryType.Max != nil && memory.Max > *memoryType.Max {
				err = &api.LinkError{ModuleName: is.Module, FieldName: is.Name, Message: "maximum size mismatch"}
				return
			}
		case api.ExternTypeGlobal:
			globalType := is.DescGlobal
			g := exp.Global
			if globalType.Mutable != g.Type.Mutable {
				err = &api.LinkError{ModuleName: is.Module, FieldName: is.Name, Message: "mutability mismatch"}
				return
			}
			if globalType.ValType != g.Type.ValType {
				err = &api.LinkError{ModuleName: is.Module, FieldName: is.Name, Message: "value type mismatch"}
				return
			}
			globals = append(globals, g)
		}
	}
	return
}

// validateElements evaluates every element segment offset and bounds-checks the write it implies.
func (s *Store) validateElements(instance *ModuleInstance, elements []ElementSegment) (offsets []uint32, err error) {
	importedGlobals := instance.importedGlobals()
	offsets = make([]uint32, len(elements))
	for i := range elements {
		elem := &elements[i]
		val, err := s.engine.EvalInitializer(elem.OffsetCompiled, importedGlobals)
		if err != nil {
			return nil, fmt.Errorf("element segment %d offset: %w", i, err)
		}
		offset := uint32(val)
		if uint64(offset)+uint64(len(elem.Init)) > uint64(len(instance.Table.Table)) {
			return nil, fmt.Errorf("element segment %d: %w", i, ErrRuntimeInvalidTableAccess)
		}
		for _, funcIdx := range elem.Init {
			if funcIdx >= uint32(len(instance.Functions)) {
				return nil, fmt.Errorf("element segment %d refers to unknown function %d", i, funcIdx)
			}
		}
		offsets[i] = offset
	}
	return offsets, nil
}

func applyElements(instance *ModuleInstance, elements []ElementSegment, offsets []uint32) {
	for i := range elements {
		elem := &elements[i]
		table := instance.Table.Table
		for j, funcIdx := range elem.Init {
			target := instance.Functions[funcIdx]
			table[offsets[i]+uint32(j)] = TableElement{Function: target, TypeID: target.Type.TypeID}
		}
	}
}

// validateData evaluates every data segment offset and bounds-checks the copy it implies.
func (s *Store) validateData(instance *ModuleInstance, data []DataSegment) (offsets []uint32, err error) {
	importedGlobals := instance.importedGlobals()
	offsets = make([]uint32, len(data))
	for i := range data {
		d := &data[i]
		val, err := s.engine.EvalInitializer(d.OffsetCompiled, importedGlobals)
		if err != nil {
			return nil, fmt.Errorf("data segment %d offset: %w", i, err)
		}
		offset := uint32(val)
		if uint64(offset)+uint64(len(d.Init)) > uint64(len(instance.Memory.Buffer)) {
			return nil, fmt.Errorf("data segment %d: %w", i, ErrRuntimeOutOfBoundsMemoryAccess)
		}
		offsets[i] = offset
	}
	return offsets, nil
}

func applyData(instance *ModuleInstance, data []DataSegment, offsets []uint32) {
	for i := range data {
		copy(instance.Memory.Buffer[offsets[i]:], data[i].Init)
	}
}

// importedGlobals returns the prefix of the global index namespace resolved from imports: the only globals a
// constant expression may read.
func (m *ModuleInstance) importedGlobals() []*GlobalInstance {
	if m.Module == nil {
		return m.Globals
	}
	return m.Globals[:m.Module.ImportGlobalCount()]
}

func (m *ModuleInstance) buildExports(exports map[string]*publicwasm.Export) error {
	m.Exports = make(map[string]*ExportInstance, len(exports))
	for _, exp := range exports {
		index := exp.Index
		var ei *ExportInstance
		switch exp.Type {
		case api.ExternTypeFunc:
			ei = &ExportInstance{Type: exp.Type, Function: m.Functions[index]}
		case api.ExternTypeGlobal:
			ei = &ExportInstance{Type: exp.Type, Global: m.Globals[index]}
		case api.ExternTypeMemory:
			ei = &ExportInstance{Type: exp.Type, Memory: m.Memory}
		case api.ExternTypeTable:
			ei = &ExportInstance{Type: exp.Type, Table: m.Table}
		default:
			return fmt.Errorf("export %q: unknown extern type %#x", exp.Name, exp.Type)
		}
		m.Exports[exp.Name] = ei
	}
	return nil
}
