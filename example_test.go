package swam_test

import (
	"context"
	"fmt"
	"log"

	swam "github.com/shrin18/swam"
	"github.com/shrin18/swam/api"
	"github.com/shrin18/swam/wasm"
)

// ExampleRuntime compiles and runs a module exporting add(i32,i32)->i32, as an external decoder would hand it
// to the engine.
func ExampleRuntime() {
	r := swam.NewRuntime()

	compiled, err := r.CompileModule([]wasm.Section{
		wasm.SectionTypes{Types: []wasm.FunctionType{{
			Params:  []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32},
			Results: []wasm.ValueType{wasm.ValueTypeI32},
		}}},
		wasm.SectionFunctions{TypeIndices: []wasm.Index{0}},
		wasm.SectionExports{Exports: []wasm.Export{{Type: api.ExternTypeFunc, Name: "add", Index: 0}}},
		wasm.SectionCode{Bodies: []wasm.FuncBody{{
			Body: []wasm.Instruction{
				{Opcode: wasm.OpcodeLocalGet, Index: 0},
				{Opcode: wasm.OpcodeLocalGet, Index: 1},
				{Opcode: wasm.OpcodeI32Add},
			},
		}}},
	})
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	module, err := r.InstantiateModule(ctx, compiled, "example")
	if err != nil {
		log.Fatal(err)
	}

	results, err := module.ExportedFunction("add").Call(ctx, 7, 5)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(results[0])
	// Output: 12
}
