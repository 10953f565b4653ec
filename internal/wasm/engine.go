package wasm

import (
	"context"

	publicwasm "github.com/shrin18/swam/wasm"
)

// Engine is the back-end behind a Runtime: it lowers structured bodies into its private executable form during
// assembly and executes them at call time. Implementations hold no per-call state: every Call allocates its own
// operand and frame stacks, so one Engine is safely shared by concurrent instances.
type Engine interface {
	// CompileFunction lowers a defined function's structured body into this engine's executable form.
	//
	// Note: The input is pre-validated with the external validator, so implementations assume all indices and
	// branch depths are in range; violations are internal bugs reported as *api.CompileError.
	CompileFunction(m *Module, sig *publicwasm.FunctionType, code *Code) ([]byte, error)

	// CompileInitializer lowers a constant initializer expression (global init, element or data segment offset)
	// into this engine's executable form.
	CompileInitializer(expr []publicwasm.Instruction) ([]byte, error)

	// Call invokes the function with the given parameters and returns its results, or an error if a trap was
	// raised. Host functions are dispatched through the same entry point.
	Call(ctx context.Context, f *FunctionInstance, params ...uint64) ([]uint64, error)

	// EvalInitializer executes a compiled initializer in restricted mode: no locals, no memory; only constants
	// and global.get against the given (imported) globals are reachable.
	EvalInitializer(init []byte, globals []*GlobalInstance) (uint64, error)
}
