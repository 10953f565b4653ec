package moremath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWasmCompatMin(t *testing.T) {
	require.Equal(t, WasmCompatMin(-1.1, 123), -1.1)
	require.Equal(t, WasmCompatMin(-1.1, math.Inf(1)), -1.1)
	require.Equal(t, WasmCompatMin(math.Inf(-1), 123), math.Inf(-1))

	// NaN wins over anything, -Inf included.
	require.True(t, math.IsNaN(WasmCompatMin(math.NaN(), math.Inf(-1))))
	require.True(t, math.IsNaN(WasmCompatMin(math.Inf(-1), math.NaN())))
	require.True(t, math.IsNaN(WasmCompatMin(math.NaN(), 1.0)))

	// -0 orders below +0.
	require.True(t, math.Signbit(WasmCompatMin(math.Copysign(0, -1), 0)))
}

func TestWasmCompatMax(t *testing.T) {
	require.Equal(t, WasmCompatMax(-1.1, 123.1), 123.1)
	require.Equal(t, WasmCompatMax(math.Inf(1), 123.1), math.Inf(1))
	require.Equal(t, WasmCompatMax(math.Inf(-1), 123.1), 123.1)

	// NaN wins over anything, +Inf included.
	require.True(t, math.IsNaN(WasmCompatMax(math.NaN(), math.Inf(1))))
	require.True(t, math.IsNaN(WasmCompatMax(math.Inf(1), math.NaN())))

	// +0 orders above -0.
	require.False(t, math.Signbit(WasmCompatMax(math.Copysign(0, -1), 0)))
}

func TestWasmCompatNearest(t *testing.T) {
	// Ties round to even.
	require.Equal(t, 0.0, WasmCompatNearest(0.5))
	require.Equal(t, 2.0, WasmCompatNearest(1.5))
	require.Equal(t, 2.0, WasmCompatNearest(2.5))
	require.Equal(t, -2.0, WasmCompatNearest(-1.5))
	require.Equal(t, 1.0, WasmCompatNearest(1.4))
}
