// Package vm instantiates a WASM module per contract and mediates the
// host callback ABI against a contract.Overlay (§4.3). It is grounded on
// the teacher's core/virtual_machine.go HeavyVM, which already wires
// wasmer-go the same way: compile a module into a fresh store, register an
// "env" import object, instantiate, then call an export.
package vm

import (
	"errors"
	"fmt"
	"math"

	"github.com/wasmerio/wasmer-go/wasmer"

	"github.com/perseus101/tangledag/internal/contract"
)

// Trap-surfacing errors. Returning a non-nil error from a host callback
// causes wasmer to unwind the call as a trap, which is how §4.3's
// Unreachable/MemoryAccessOutOfBounds/missing-mapping traps are realized.
var (
	ErrTrapUnreachable = errors.New("wasm trap: unreachable (type mismatch)")
	ErrTrapOutOfBounds = errors.New("wasm trap: memory access out of bounds")
	ErrMissingExports   = errors.New("contract module missing required export")
)

// requiredSizeExports are called once at deployment to size a freshly
// created contract's state vectors and mapping count.
var requiredSizeExports = []string{
	"__ofc__state_u32",
	"__ofc__state_u64",
	"__ofc__state_f32",
	"__ofc__state_f64",
	"__ofc__state_mapping",
}

// VM instantiates WASM modules against the fixed host ABI.
type VM struct {
	engine *wasmer.Engine
}

// New returns a VM backed by a fresh wasmer engine.
func New() *VM {
	return &VM{engine: wasmer.NewEngine()}
}

func translateStateErr(err error) error {
	switch {
	case errors.Is(err, contract.ErrIndexOutOfBounds):
		return fmt.Errorf("%w: %v", ErrTrapOutOfBounds, err)
	case errors.Is(err, contract.ErrMappingKeyNotFound):
		return fmt.Errorf("%w: %v", ErrTrapUnreachable, err)
	default:
		return err
	}
}

// instantiate compiles source and wires the host ABI against overlay o,
// returning a ready-to-call instance.
func (m *VM) instantiate(source []byte, o *contract.Overlay) (*wasmer.Instance, error) {
	store := wasmer.NewStore(m.engine)
	mod, err := wasmer.NewModule(store, source)
	if err != nil {
		return nil, fmt.Errorf("parse contract module: %w", err)
	}
	imports := registerHostABI(store, o)
	instance, err := wasmer.NewInstance(mod, imports)
	if err != nil {
		return nil, fmt.Errorf("instantiate contract module: %w", err)
	}
	return instance, nil
}

// registerHostABI builds the ten __ofc__ host functions, all reading and
// writing through overlay o.
func registerHostABI(store *wasmer.Store, o *contract.Overlay) *wasmer.ImportObject {
	imports := wasmer.NewImportObject()

	i32 := wasmer.NewValueTypes(wasmer.I32)
	i32i32 := wasmer.NewValueTypes(wasmer.I32, wasmer.I32)
	i32i64 := wasmer.NewValueTypes(wasmer.I32, wasmer.I64)
	i32i64i64 := wasmer.NewValueTypes(wasmer.I32, wasmer.I64, wasmer.I64)

	getU32 := wasmer.NewFunction(store,
		wasmer.NewFunctionType(i32, i32),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			v, err := o.Get(contract.U32Index(uint32(args[0].I32())))
			if err != nil {
				return nil, translateStateErr(err)
			}
			u, ok := v.AsU32()
			if !ok {
				return nil, ErrTrapUnreachable
			}
			return []wasmer.Value{wasmer.NewI32(int32(u))}, nil
		},
	)

	getU64 := wasmer.NewFunction(store,
		wasmer.NewFunctionType(i32, wasmer.NewValueTypes(wasmer.I64)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			v, err := o.Get(contract.U64Index(uint32(args[0].I32())))
			if err != nil {
				return nil, translateStateErr(err)
			}
			u, ok := v.AsU64()
			if !ok {
				return nil, ErrTrapUnreachable
			}
			return []wasmer.Value{wasmer.NewI64(int64(u))}, nil
		},
	)

	getF32 := wasmer.NewFunction(store,
		wasmer.NewFunctionType(i32, wasmer.NewValueTypes(wasmer.F32)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			v, err := o.Get(contract.F32Index(uint32(args[0].I32())))
			if err != nil {
				return nil, translateStateErr(err)
			}
			bits, ok := v.AsF32Bits()
			if !ok {
				return nil, ErrTrapUnreachable
			}
			return []wasmer.Value{wasmer.NewF32(math.Float32frombits(bits))}, nil
		},
	)

	getF64 := wasmer.NewFunction(store,
		wasmer.NewFunctionType(i32, wasmer.NewValueTypes(wasmer.F64)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			v, err := o.Get(contract.F64Index(uint32(args[0].I32())))
			if err != nil {
				return nil, translateStateErr(err)
			}
			bits, ok := v.AsF64Bits()
			if !ok {
				return nil, ErrTrapUnreachable
			}
			return []wasmer.Value{wasmer.NewF64(math.Float64frombits(bits))}, nil
		},
	)

	getMapping := wasmer.NewFunction(store,
		wasmer.NewFunctionType(i32i64, wasmer.NewValueTypes(wasmer.I64)),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			v, err := o.Get(contract.MappingIndex(uint32(args[0].I32()), uint64(args[1].I64())))
			if err != nil {
				return nil, translateStateErr(err)
			}
			u, _ := v.AsU64()
			return []wasmer.Value{wasmer.NewI64(int64(u))}, nil
		},
	)

	setU32 := wasmer.NewFunction(store,
		wasmer.NewFunctionType(i32i32, wasmer.NewValueTypes()),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			idx := contract.U32Index(uint32(args[0].I32()))
			if err := o.Set(idx, contract.U32(uint32(args[1].I32()))); err != nil {
				return nil, translateStateErr(err)
			}
			return []wasmer.Value{}, nil
		},
	)

	setU64 := wasmer.NewFunction(store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(wasmer.I32, wasmer.I64), wasmer.NewValueTypes()),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			idx := contract.U64Index(uint32(args[0].I32()))
			if err := o.Set(idx, contract.U64(uint64(args[1].I64()))); err != nil {
				return nil, translateStateErr(err)
			}
			return []wasmer.Value{}, nil
		},
	)

	setF32 := wasmer.NewFunction(store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(wasmer.I32, wasmer.F32), wasmer.NewValueTypes()),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			idx := contract.F32Index(uint32(args[0].I32()))
			if err := o.Set(idx, contract.F32Bits(math.Float32bits(args[1].F32()))); err != nil {
				return nil, translateStateErr(err)
			}
			return []wasmer.Value{}, nil
		},
	)

	setF64 := wasmer.NewFunction(store,
		wasmer.NewFunctionType(wasmer.NewValueTypes(wasmer.I32, wasmer.F64), wasmer.NewValueTypes()),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			idx := contract.F64Index(uint32(args[0].I32()))
			if err := o.Set(idx, contract.F64Bits(math.Float64bits(args[1].F64()))); err != nil {
				return nil, translateStateErr(err)
			}
			return []wasmer.Value{}, nil
		},
	)

	setMapping := wasmer.NewFunction(store,
		wasmer.NewFunctionType(i32i64i64, wasmer.NewValueTypes()),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			idx := contract.MappingIndex(uint32(args[0].I32()), uint64(args[1].I64()))
			if err := o.Set(idx, contract.U64(uint64(args[2].I64()))); err != nil {
				return nil, translateStateErr(err)
			}
			return []wasmer.Value{}, nil
		},
	)

	imports.Register("env", map[string]wasmer.IntoExtern{
		"__ofc__get_u32":      getU32,
		"__ofc__get_u64":      getU64,
		"__ofc__get_f32":      getF32,
		"__ofc__get_f64":      getF64,
		"__ofc__get_mapping":  getMapping,
		"__ofc__set_u32":      setU32,
		"__ofc__set_u64":      setU64,
		"__ofc__set_f32":      setF32,
		"__ofc__set_f64":      setF64,
		"__ofc__set_mapping":  setMapping,
	})

	return imports
}
