// Package swam is a WebAssembly 1.0 (20191205) engine core: it assembles validated section streams into compiled
// modules, instantiates them against host-provided imports, and executes their exports on one of two back-ends.
//
// Ex.
//
//	r := swam.NewRuntime()
//	compiled, _ := r.CompileModule(sections)
//	module, _ := r.InstantiateModule(ctx, compiled, "example")
//	results, _ := module.ExportedFunction("add").Call(ctx, 7, 5)
//
// Decoding bytes into sections and validating them are the responsibility of external collaborators; the section
// stream handed to CompileModule is assumed validated.
package swam

import (
	"context"
	"errors"

	"github.com/shrin18/swam/api"
	internalwasm "github.com/shrin18/swam/internal/wasm"
	publicwasm "github.com/shrin18/swam/wasm"
)

// Runtime allows embedding of WebAssembly 1.0 (20191205) modules.
//
// A Runtime is safe to share: compilation is pure and per-instance state lives only in instances. Instantiation
// mutates the runtime's namespace and must not race with itself.
type Runtime interface {
	// CompileModule assembles a validated section stream into a compiled module ready to be instantiated, with
	// every function body and constant initializer already lowered by the configured back-end.
	CompileModule(sections []publicwasm.Section) (*CompiledModule, error)

	// InstantiateModule links the compiled module against everything instantiated so far, allocates its storage,
	// applies its initializers and segments, runs its start function, and registers it under name.
	//
	// Errors are typed: *api.LinkError for unresolvable or mismatched imports, a wrapped *api.TrapError when an
	// initializer or the start function traps.
	InstantiateModule(ctx context.Context, compiled *CompiledModule, name string) (api.Module, error)

	// NewHostModuleBuilder lets you create modules out of functions and storage defined in Go, importable by Wasm
	// modules instantiated later.
	//
	// Ex. Below defines and instantiates a module named "env" with one function:
	//
	//	hello := func() { fmt.Println("hello!") }
	//	_, err := r.NewHostModuleBuilder("env").ExportFunction("hello", hello).Instantiate()
	NewHostModuleBuilder(moduleName string) HostModuleBuilder

	// Module returns exports from an instantiated module or nil if there aren't any.
	Module(moduleName string) api.Module
}

// NewRuntime returns a runtime with the default configuration: the structured back-end.
func NewRuntime() Runtime {
	return NewRuntimeWithConfig(NewRuntimeConfig())
}

// NewRuntimeWithConfig returns a runtime with the given configuration.
func NewRuntimeWithConfig(config *RuntimeConfig) Runtime {
	engine := config.newEngine(config.callStackDepth, config.byteOrder)
	return &runtime{
		engine: engine,
		store:  internalwasm.NewStore(engine, config.memoryMaxPages, config.memoryCapacityFromMax),
	}
}

// runtime allows decoupling of public interfaces from internal representation.
type runtime struct {
	engine internalwasm.Engine
	store  *internalwasm.Store
}

// CompiledModule is a module ready to be instantiated (Runtime.InstantiateModule).
//
// Note: In WebAssembly language, this is a validated and compiled module. The name "Module" is reserved for the
// instantiated form, as conflating the two has caused confusion.
type CompiledModule struct {
	module *internalwasm.Module
}

// CustomSection returns the payload of the first custom section with the given name, or false if there is none.
func (c *CompiledModule) CustomSection(name string) ([]byte, bool) {
	for i := range c.module.CustomSections {
		if c.module.CustomSections[i].Name == name {
			return c.module.CustomSections[i].Data, true
		}
	}
	return nil, false
}

// CompileModule implements Runtime.CompileModule.
func (r *runtime) CompileModule(sections []publicwasm.Section) (*CompiledModule, error) {
	if sections == nil {
		return nil, errors.New("sections == nil")
	}
	m, err := internalwasm.Assemble(r.engine, sections)
	if err != nil {
		return nil, err
	}
	return &CompiledModule{module: m}, nil
}

// InstantiateModule implements Runtime.InstantiateModule.
func (r *runtime) InstantiateModule(ctx context.Context, compiled *CompiledModule, name string) (api.Module, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	instance, err := r.store.Instantiate(ctx, compiled.module, name)
	if err != nil {
		return nil, err
	}
	return &internalwasm.PublicModule{Instance: instance}, nil
}

// Module implements Runtime.Module.
func (r *runtime) Module(moduleName string) api.Module {
	instance := r.store.Module(moduleName)
	if instance == nil {
		return nil
	}
	return &internalwasm.PublicModule{Instance: instance}
}
