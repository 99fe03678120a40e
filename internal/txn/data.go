// Package txn implements the immutable signed Transaction record and its
// wire encodings (§3, §6).
package txn

import (
	"github.com/perseus101/tangledag/internal/contract"
	"github.com/perseus101/tangledag/internal/hashing"
)

// DataKind tags the four payload variants.
type DataKind uint8

const (
	DataGenesis DataKind = iota
	DataGenContract
	DataExecContract
	DataEmpty
)

// Data is the transaction payload: exactly one of {Genesis, GenContract,
// ExecContract, Empty}.
type Data struct {
	Kind DataKind

	// GenContract
	Code []byte

	// ExecContract
	Function string
	Args     []contract.Value
}

// Genesis returns the Genesis payload variant.
func Genesis() Data { return Data{Kind: DataGenesis} }

// GenContractData returns a GenContract payload carrying WASM source.
func GenContractData(code []byte) Data {
	return Data{Kind: DataGenContract, Code: code}
}

// ExecContractData returns an ExecContract payload invoking function with
// args.
func ExecContractData(function string, args []contract.Value) Data {
	return Data{Kind: DataExecContract, Function: function, Args: args}
}

// Empty returns the Empty payload variant (no contract effect).
func Empty() Data { return Data{Kind: DataEmpty} }

// Canonicalize writes the payload's canonical byte form for digesting.
func (d Data) Canonicalize(b *hashing.Builder) {
	b.Byte(byte(d.Kind))
	switch d.Kind {
	case DataGenContract:
		b.Bytes(d.Code)
	case DataExecContract:
		b.String(d.Function)
		b.Uint64(uint64(len(d.Args)))
		for _, a := range d.Args {
			b.Byte(byte(a.Kind()))
			b.Uint64(a.Bits())
		}
	}
}
