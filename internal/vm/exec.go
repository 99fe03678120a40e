package vm

import (
	"fmt"
	"math"

	"github.com/wasmerio/wasmer-go/wasmer"

	"github.com/perseus101/tangledag/internal/contract"
)

// Deploy instantiates a freshly parsed contract module, sizes its state via
// the five __ofc__state_* exports, runs init() under an overlay, and
// returns the resulting committed state. Absence of any sizing export or
// of init is a deployment rejection (InvalidContract).
func (m *VM) Deploy(source []byte) (*contract.State, error) {
	// First pass: instantiate against a zero-sized state purely to read
	// the sizing exports. init() must not touch state before it is sized,
	// so no host call is expected to succeed here.
	sizing := contract.NewOverlay(contract.NewState(0, 0, 0, 0, 0))
	probe, err := m.instantiate(source, sizing)
	if err != nil {
		return nil, err
	}

	sizes := make([]int, len(requiredSizeExports))
	for i, name := range requiredSizeExports {
		n, err := callSizeExport(probe, name)
		if err != nil {
			return nil, err
		}
		sizes[i] = n
	}

	state := contract.NewState(sizes[0], sizes[1], sizes[2], sizes[3], sizes[4])
	overlay := contract.NewOverlay(state)
	instance, err := m.instantiate(source, overlay)
	if err != nil {
		return nil, err
	}
	initFn, err := instance.Exports.GetFunction("init")
	if err != nil {
		return nil, fmt.Errorf("%w: init", ErrMissingExports)
	}
	if _, err := initFn(); err != nil {
		return nil, fmt.Errorf("contract init trapped: %w", err)
	}
	if err := overlay.Writeback(); err != nil {
		return nil, fmt.Errorf("writeback initial state: %w", err)
	}
	return state, nil
}

func callSizeExport(instance *wasmer.Instance, name string) (int, error) {
	fn, err := instance.Exports.GetFunction(name)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrMissingExports, name)
	}
	res, err := fn()
	if err != nil {
		return 0, fmt.Errorf("contract %s trapped: %w", name, err)
	}
	n, ok := res.(int32)
	if !ok {
		return 0, fmt.Errorf("contract %s did not return i32", name)
	}
	if n < 0 {
		return 0, fmt.Errorf("contract %s returned a negative size", name)
	}
	return int(n), nil
}

// Exec invokes function on a contract module against base (an empty overlay
// over the committed state, or a resumed pending overlay), mapping args to
// WASM values and translating the single return value, if any, back into a
// ContractValue by its runtime WASM type. A trap propagates as an error and
// the overlay produced during the failed call is discarded.
func (m *VM) Exec(source []byte, base *contract.Overlay, function string, args []contract.Value) (*contract.Value, *contract.Overlay, error) {
	instance, err := m.instantiate(source, base)
	if err != nil {
		return nil, nil, err
	}
	fn, err := instance.Exports.GetFunction(function)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrMissingExports, function)
	}
	callArgs := make([]interface{}, len(args))
	for i, a := range args {
		callArgs[i] = toNative(a)
	}
	result, err := fn(callArgs...)
	if err != nil {
		// Overlay is discarded on trap: the caller should not reuse base.
		return nil, nil, fmt.Errorf("contract %s trapped: %w", function, err)
	}
	if result == nil {
		return nil, base, nil
	}
	ret := fromNative(result)
	return &ret, base, nil
}

func toNative(v contract.Value) interface{} {
	switch v.Kind() {
	case contract.KindU32:
		u, _ := v.AsU32()
		return int32(u)
	case contract.KindU64:
		u, _ := v.AsU64()
		return int64(u)
	case contract.KindF32:
		bits, _ := v.AsF32Bits()
		return math.Float32frombits(bits)
	case contract.KindF64:
		bits, _ := v.AsF64Bits()
		return math.Float64frombits(bits)
	default:
		return int32(0)
	}
}

func fromNative(v interface{}) contract.Value {
	switch t := v.(type) {
	case int32:
		return contract.U32(uint32(t))
	case int64:
		return contract.U64(uint64(t))
	case float32:
		return contract.F32(t)
	case float64:
		return contract.F64(t)
	default:
		return contract.U32(0)
	}
}
