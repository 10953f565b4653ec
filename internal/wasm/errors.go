package wasm

import "github.com/shrin18/swam/api"

// The runtime errors raised (via panic) by the back-end interpreters and recovered at the engine Call boundary.
// Each is a distinct *api.TrapError so hosts can match with errors.Is or inspect the code with errors.As.
var (
	ErrRuntimeUnreachable                = &api.TrapError{Code: api.TrapCodeUnreachable}
	ErrRuntimeIntegerDivideByZero        = &api.TrapError{Code: api.TrapCodeIntegerDivideByZero}
	ErrRuntimeIntegerOverflow            = &api.TrapError{Code: api.TrapCodeIntegerOverflow}
	ErrRuntimeInvalidConversionToInteger = &api.TrapError{Code: api.TrapCodeInvalidConversionToInteger}
	ErrRuntimeOutOfBoundsMemoryAccess    = &api.TrapError{Code: api.TrapCodeOutOfBoundsMemoryAccess}
	ErrRuntimeInvalidTableAccess         = &api.TrapError{Code: api.TrapCodeInvalidTableAccess}
	ErrRuntimeIndirectCallTypeMismatch   = &api.TrapError{Code: api.TrapCodeIndirectCallTypeMismatch}
	ErrRuntimeCallStackOverflow          = &api.TrapError{Code: api.TrapCodeCallStackOverflow}
)
