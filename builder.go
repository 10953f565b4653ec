package swam

import (
	"fmt"
	"reflect"

	"github.com/shrin18/swam/api"
	internalwasm "github.com/shrin18/swam/internal/wasm"
	publicwasm "github.com/shrin18/swam/wasm"
)

// HostModuleBuilder assembles a module out of entities defined in Go, importable by Wasm modules instantiated in
// the same runtime. Errors accumulate and surface at Instantiate, so calls can chain.
type HostModuleBuilder interface {
	// ExportFunction exports a Go function under the given field name. The signature is derived by reflection:
	// parameters and results must be uint32/int32, uint64/int64, float32 or float64; parameter zero may be a
	// context.Context; the last result may be an error, surfaced to callers as a trap when non-nil.
	ExportFunction(name string, fn interface{}) HostModuleBuilder

	// ExportGlobal exports a global with the given type, mutability and initial bit pattern (see api.ValueType
	// for encoding rules).
	ExportGlobal(name string, valType api.ValueType, mutable bool, val uint64) HostModuleBuilder

	// ExportMemory exports a memory of minPages pages, optionally bounded by maxPages.
	ExportMemory(name string, minPages uint32, maxPages *uint32) HostModuleBuilder

	// ExportTable exports a table of min uninitialized elements, optionally bounded by max.
	ExportTable(name string, min uint32, max *uint32) HostModuleBuilder

	// Instantiate registers the host module in the runtime's namespace or returns the first error any Export call
	// produced.
	Instantiate() (api.Module, error)
}

// NewHostModuleBuilder implements Runtime.NewHostModuleBuilder.
func (r *runtime) NewHostModuleBuilder(moduleName string) HostModuleBuilder {
	return &hostModuleBuilder{
		r: r,
		instance: &internalwasm.ModuleInstance{
			Name:    moduleName,
			Exports: map[string]*internalwasm.ExportInstance{},
		},
	}
}

type hostModuleBuilder struct {
	r        *runtime
	instance *internalwasm.ModuleInstance
	err      error
}

// ExportFunction implements HostModuleBuilder.ExportFunction.
func (b *hostModuleBuilder) ExportFunction(name string, fn interface{}) HostModuleBuilder {
	if b.err != nil {
		return b
	}
	v := reflect.ValueOf(fn)
	fk, ft, _, err := internalwasm.GetFunctionType(name, &v)
	if err != nil {
		b.err = fmt.Errorf("host module %q: %w", b.instance.Name, err)
		return b
	}
	f := &internalwasm.FunctionInstance{
		Module: b.instance,
		Type:   b.r.store.GetTypeInstance(ft),
		Kind:   fk,
		GoFunc: &v,
	}
	b.instance.Functions = append(b.instance.Functions, f)
	b.export(name, &internalwasm.ExportInstance{Type: api.ExternTypeFunc, Function: f})
	return b
}

// ExportGlobal implements HostModuleBuilder.ExportGlobal.
func (b *hostModuleBuilder) ExportGlobal(name string, valType api.ValueType, mutable bool, val uint64) HostModuleBuilder {
	if b.err != nil {
		return b
	}
	g := &internalwasm.GlobalInstance{
		Type: publicwasm.GlobalType{ValType: valType, Mutable: mutable},
		Val:  val,
	}
	b.instance.Globals = append(b.instance.Globals, g)
	b.export(name, &internalwasm.ExportInstance{Type: api.ExternTypeGlobal, Global: g})
	return b
}

// ExportMemory implements HostModuleBuilder.ExportMemory.
func (b *hostModuleBuilder) ExportMemory(name string, minPages uint32, maxPages *uint32) HostModuleBuilder {
	if b.err != nil {
		return b
	}
	mem := internalwasm.NewMemoryInstance(&publicwasm.MemoryType{Min: minPages, Max: maxPages}, false, internalwasm.MemoryMaxPages)
	b.instance.Memory = mem
	b.export(name, &internalwasm.ExportInstance{Type: api.ExternTypeMemory, Memory: mem})
	return b
}

// ExportTable implements HostModuleBuilder.ExportTable.
func (b *hostModuleBuilder) ExportTable(name string, min uint32, max *uint32) HostModuleBuilder {
	if b.err != nil {
		return b
	}
	t := internalwasm.NewTableInstance(min, max)
	b.instance.Table = t
	b.export(name, &internalwasm.ExportInstance{Type: api.ExternTypeTable, Table: t})
	return b
}

func (b *hostModuleBuilder) export(name string, e *internalwasm.ExportInstance) {
	if _, ok := b.instance.Exports[name]; ok {
		b.err = fmt.Errorf("host module %q: %q is already exported", b.instance.Name, name)
		return
	}
	b.instance.Exports[name] = e
}

// Instantiate implements HostModuleBuilder.Instantiate.
func (b *hostModuleBuilder) Instantiate() (api.Module, error) {
	if b.err != nil {
		return nil, b.err
	}
	if err := b.r.store.RegisterHostModule(b.instance); err != nil {
		return nil, err
	}
	return &internalwasm.PublicModule{Instance: b.instance}, nil
}
