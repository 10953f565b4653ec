package wasm

import (
	"context"

	"github.com/shrin18/swam/api"
)

// PublicModule adapts a ModuleInstance to api.Module, decoupling the public interfaces from the internal
// representation.
type PublicModule struct {
	Instance *ModuleInstance
}

// compile-time check to ensure PublicModule is an api.Module
var _ api.Module = &PublicModule{}

// Name implements api.Module Name.
func (m *PublicModule) Name() string {
	return m.Instance.Name
}

// ExportedFunction implements api.Module ExportedFunction.
func (m *PublicModule) ExportedFunction(name string) api.Function {
	exp, ok := m.Instance.Exports[name]
	if !ok || exp.Type != api.ExternTypeFunc {
		return nil
	}
	return &exportedFunction{f: exp.Function, engine: m.Instance.Engine}
}

// ExportedMemory implements api.Module ExportedMemory.
func (m *PublicModule) ExportedMemory(name string) api.Memory {
	exp, ok := m.Instance.Exports[name]
	if !ok || exp.Type != api.ExternTypeMemory {
		return nil
	}
	return exp.Memory
}

// ExportedTable implements api.Module ExportedTable.
func (m *PublicModule) ExportedTable(name string) api.Table {
	exp, ok := m.Instance.Exports[name]
	if !ok || exp.Type != api.ExternTypeTable {
		return nil
	}
	return &exportedTable{t: exp.Table, engine: m.Instance.Engine}
}

// ExportedGlobal implements api.Module ExportedGlobal.
func (m *PublicModule) ExportedGlobal(name string) api.Global {
	exp, ok := m.Instance.Exports[name]
	if !ok || exp.Type != api.ExternTypeGlobal {
		return nil
	}
	if exp.Global.Type.Mutable {
		return &mutableGlobal{g: exp.Global}
	}
	return constantGlobal{g: exp.Global}
}

// exportedFunction implements api.Function for a function resolved from an instance's export index or a table.
type exportedFunction struct {
	f      *FunctionInstance
	engine Engine
}

// compile-time check to ensure exportedFunction is an api.Function
var _ api.Function = &exportedFunction{}

// ParamTypes implements api.Function ParamTypes.
func (f *exportedFunction) ParamTypes() []api.ValueType {
	return f.f.Type.Type.Params
}

// ResultTypes implements api.Function ResultTypes.
func (f *exportedFunction) ResultTypes() []api.ValueType {
	return f.f.Type.Type.Results
}

// Call implements api.Function Call.
func (f *exportedFunction) Call(ctx context.Context, params ...uint64) ([]uint64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return f.engine.Call(ctx, f.f, params...)
}
