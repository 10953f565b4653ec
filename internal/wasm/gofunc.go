package wasm

import (
	"context"
	"fmt"
	"math"
	"reflect"

	publicwasm "github.com/shrin18/swam/wasm"
)

// FunctionKind identifies the type of function that can be called.
type FunctionKind byte

const (
	// FunctionKindWasm is not a Go function: it is implemented in Wasm.
	FunctionKindWasm FunctionKind = iota
	// FunctionKindGoNoContext is a function implemented in Go, with a signature matching its FunctionType.
	FunctionKindGoNoContext
	// FunctionKindGoContext is a function implemented in Go, with a signature matching its FunctionType, except
	// arg zero is a context.Context.
	FunctionKindGoContext
)

var (
	goContextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType     = reflect.TypeOf((*error)(nil)).Elem()
)

// GetFunctionType returns the function type corresponding to the Go function signature or errs if invalid.
//
// The allowed parameter and result kinds are those convertible to a wasm value type: uint32/int32 (i32),
// uint64/int64 (i64), float32 (f32) and float64 (f64). Arg zero may be a context.Context; the last result may be
// an error, which the interpreter surfaces as a trap when non-nil.
func GetFunctionType(name string, fn *reflect.Value) (fk FunctionKind, ft *publicwasm.FunctionType, hasErrorResult bool, err error) {
	if fn.Kind() != reflect.Func {
		err = fmt.Errorf("%s is a %s, but should be a Func", name, fn.Kind().String())
		return
	}
	p := fn.Type()

	pOffset := 0
	pCount := p.NumIn()
	fk = FunctionKindGoNoContext
	if pCount > 0 && p.In(0).Kind() == reflect.Interface && p.In(0).Implements(goContextType) {
		fk = FunctionKindGoContext
		pOffset = 1
		pCount--
	}

	rCount := p.NumOut()
	if rCount > 0 && p.Out(rCount-1).Implements(errorType) {
		hasErrorResult = true
		rCount--
	}
	if rCount > 1 {
		err = fmt.Errorf("%s has more than one result", name)
		return
	}

	ft = &publicwasm.FunctionType{Params: make([]ValueType, pCount), Results: make([]ValueType, rCount)}

	for i := 0; i < len(ft.Params); i++ {
		pI := p.In(i + pOffset)
		if t, ok := getTypeOf(pI.Kind()); ok {
			ft.Params[i] = t
			continue
		}
		if pI.Implements(goContextType) {
			err = fmt.Errorf("%s param[%d] is a context.Context, which may be defined only as param[0]", name, i+pOffset)
		} else {
			err = fmt.Errorf("%s param[%d] is unsupported: %s", name, i+pOffset, pI.Kind())
		}
		return
	}

	if rCount == 0 {
		return
	}
	result := p.Out(0)
	if t, ok := getTypeOf(result.Kind()); ok {
		ft.Results[0] = t
		return
	}
	err = fmt.Errorf("%s result[0] is unsupported: %s", name, result.Kind())
	return
}

func getTypeOf(kind reflect.Kind) (ValueType, bool) {
	switch kind {
	case reflect.Float64:
		return ValueTypeF64, true
	case reflect.Float32:
		return ValueTypeF32, true
	case reflect.Int32, reflect.Uint32:
		return ValueTypeI32, true
	case reflect.Int64, reflect.Uint64:
		return ValueTypeI64, true
	default:
		return 0x00, false
	}
}

// CallGoFunc marshals the raw parameters according to the host function's declared Go signature, invokes it, and
// marshals the results back into the interpreter's operand representation. A non-nil error result means the host
// refused to produce a value; callers treat that as a trap.
func CallGoFunc(ctx context.Context, f *FunctionInstance, params []uint64) ([]uint64, error) {
	tp := f.GoFunc.Type()
	in := make([]reflect.Value, tp.NumIn())

	wasmParamOffset := 0
	if f.Kind == FunctionKindGoContext {
		val := reflect.New(goContextType).Elem()
		val.Set(reflect.ValueOf(ctx))
		in[0] = val
		wasmParamOffset = 1
	}
	for i, raw := range params {
		pI := tp.In(i + wasmParamOffset)
		val := reflect.New(pI).Elem()
		switch pI.Kind() {
		case reflect.Float32:
			val.SetFloat(float64(math.Float32frombits(uint32(raw))))
		case reflect.Float64:
			val.SetFloat(math.Float64frombits(raw))
		case reflect.Uint32, reflect.Uint64:
			val.SetUint(raw)
		case reflect.Int32, reflect.Int64:
			val.SetInt(int64(raw))
		}
		in[i+wasmParamOffset] = val
	}

	var results []uint64
	for _, ret := range f.GoFunc.Call(in) {
		switch ret.Kind() {
		case reflect.Float32:
			results = append(results, uint64(math.Float32bits(float32(ret.Float()))))
		case reflect.Float64:
			results = append(results, math.Float64bits(ret.Float()))
		case reflect.Uint32, reflect.Uint64:
			results = append(results, ret.Uint())
		case reflect.Int32, reflect.Int64:
			results = append(results, uint64(ret.Int()))
		case reflect.Interface:
			if err, ok := ret.Interface().(error); ok && err != nil {
				return nil, err
			}
		default:
			panic(fmt.Errorf("BUG: unsupported host function return kind %s", ret.Kind()))
		}
	}
	return results, nil
}
