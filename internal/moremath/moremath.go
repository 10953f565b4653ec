// Package moremath holds floating-point helpers whose standard library counterparts do not comply with the Wasm
// specification.
package moremath

import "math"

// WasmCompatMin implements the Wasm "min" semantics: either operand being NaN results in NaN, even if the other
// is -Inf, and -0 orders below +0.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#-hrefop-fminmathrmfmin_n-z_1-z_2
func WasmCompatMin(x, y float64) float64 {
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		return math.NaN()
	case math.IsInf(x, -1) || math.IsInf(y, -1):
		return math.Inf(-1)
	case x == 0 && x == y:
		if math.Signbit(x) {
			return x
		}
		return y
	}
	if x < y {
		return x
	}
	return y
}

// WasmCompatMax implements the Wasm "max" semantics: either operand being NaN results in NaN, even if the other
// is +Inf, and +0 orders above -0.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#-hrefop-fmaxmathrmfmax_n-z_1-z_2
func WasmCompatMax(x, y float64) float64 {
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		return math.NaN()
	case math.IsInf(x, 1) || math.IsInf(y, 1):
		return math.Inf(1)
	case x == 0 && x == y:
		if math.Signbit(x) {
			return y
		}
		return x
	}
	if x > y {
		return x
	}
	return y
}

// WasmCompatNearest implements the Wasm "nearest" semantics: round to the nearest integer, ties to even.
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#-hrefop-fnearestmathrmfnearest_n-z
func WasmCompatNearest(f float64) float64 {
	return math.RoundToEven(f)
}
