package txn

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/perseus101/tangledag/internal/contract"
)

// wireExec is the on-the-wire ExecContract payload: a [function, args] tuple.
type wireExec struct {
	Function string
	Args     []contract.Value
}

// wireValue is the on-the-wire ContractValue: {"kind": "u32", "bits": N}.
type wireValue struct {
	Kind string `json:"kind"`
	Bits uint64 `json:"bits"`
}

func valueToWire(v contract.Value) wireValue {
	return wireValue{Kind: v.Kind().String(), Bits: v.Bits()}
}

func wireToValue(w wireValue) (contract.Value, error) {
	switch w.Kind {
	case "u32":
		return contract.U32(uint32(w.Bits)), nil
	case "u64":
		return contract.U64(w.Bits), nil
	case "f32":
		return contract.F32Bits(uint32(w.Bits)), nil
	case "f64":
		return contract.F64Bits(w.Bits), nil
	default:
		return contract.Value{}, fmt.Errorf("unknown contract value kind %q", w.Kind)
	}
}

func (e *wireExec) MarshalJSON() ([]byte, error) {
	args := make([]wireValue, len(e.Args))
	for i, a := range e.Args {
		args[i] = valueToWire(a)
	}
	return json.Marshal([]interface{}{e.Function, args})
}

func (e *wireExec) UnmarshalJSON(b []byte) error {
	var tuple [2]json.RawMessage
	if err := json.Unmarshal(b, &tuple); err != nil {
		return fmt.Errorf("ExecContract tuple: %w", err)
	}
	if err := json.Unmarshal(tuple[0], &e.Function); err != nil {
		return fmt.Errorf("ExecContract function: %w", err)
	}
	var wireArgs []wireValue
	if err := json.Unmarshal(tuple[1], &wireArgs); err != nil {
		return fmt.Errorf("ExecContract args: %w", err)
	}
	args := make([]contract.Value, len(wireArgs))
	for i, w := range wireArgs {
		v, err := wireToValue(w)
		if err != nil {
			return err
		}
		args[i] = v
	}
	e.Args = args
	return nil
}

func dataToWireJSON(d Data) (json.RawMessage, error) {
	switch d.Kind {
	case DataGenesis:
		return json.RawMessage(`"Genesis"`), nil
	case DataEmpty:
		return json.RawMessage(`"Empty"`), nil
	case DataGenContract:
		b, err := json.Marshal(struct {
			GenContract []byte `json:"GenContract"`
		}{GenContract: d.Code})
		return b, err
	case DataExecContract:
		b, err := json.Marshal(struct {
			ExecContract *wireExec `json:"ExecContract"`
		}{ExecContract: &wireExec{Function: d.Function, Args: d.Args}})
		return b, err
	default:
		return nil, fmt.Errorf("unknown payload kind %v", d.Kind)
	}
}

func wireJSONToData(raw json.RawMessage) (Data, error) {
	var tag string
	if err := json.Unmarshal(raw, &tag); err == nil {
		switch tag {
		case "Genesis":
			return Genesis(), nil
		case "Empty":
			return Empty(), nil
		default:
			return Data{}, fmt.Errorf("unknown payload tag %q", tag)
		}
	}

	var gen struct {
		GenContract []byte `json:"GenContract"`
	}
	if err := strictUnmarshalObject(raw, &gen); err == nil && gen.GenContract != nil {
		return GenContractData(gen.GenContract), nil
	}

	var exec struct {
		ExecContract *wireExec `json:"ExecContract"`
	}
	if err := strictUnmarshalObject(raw, &exec); err == nil && exec.ExecContract != nil {
		return ExecContractData(exec.ExecContract.Function, exec.ExecContract.Args), nil
	}

	return Data{}, fmt.Errorf("malformed payload: %s", string(raw))
}

// wireTransaction is the canonical JSON encoding of §6's Transaction JSON.
type wireTransaction struct {
	BranchTransaction uint64          `json:"branch_transaction"`
	TrunkTransaction  uint64          `json:"trunk_transaction"`
	RefTransactions   []uint64        `json:"ref_transactions"`
	Contract          uint64          `json:"contract"`
	Timestamp         uint64          `json:"timestamp"`
	Nonce             uint32          `json:"nonce"`
	Address           string          `json:"address"`
	Signature         string          `json:"signature"`
	Data              json.RawMessage `json:"data"`
}

// MarshalJSON implements the canonical transaction JSON encoding of §6.
func (t *Transaction) MarshalJSON() ([]byte, error) {
	dataJSON, err := dataToWireJSON(t.Data)
	if err != nil {
		return nil, err
	}
	refs := t.Extras
	if refs == nil {
		refs = []uint64{}
	}
	w := wireTransaction{
		BranchTransaction: t.BranchHash,
		TrunkTransaction:  t.TrunkHash,
		RefTransactions:   refs,
		Contract:          t.ContractID,
		Timestamp:         t.Timestamp,
		Nonce:             t.Nonce,
		Address:           base64.URLEncoding.EncodeToString(t.Signer),
		Signature:         base64.URLEncoding.EncodeToString(t.Signature),
		Data:              dataJSON,
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements the canonical transaction JSON decoding of §6.
// Duplicate top-level fields are rejected rather than silently overwritten.
func (t *Transaction) UnmarshalJSON(b []byte) error {
	if err := rejectDuplicateKeys(b); err != nil {
		return err
	}
	var w wireTransaction
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("decode transaction: %w", err)
	}
	data, err := wireJSONToData(w.Data)
	if err != nil {
		return err
	}
	signer, err := base64.URLEncoding.DecodeString(w.Address)
	if err != nil {
		return fmt.Errorf("decode address: %w", err)
	}
	sig, err := base64.URLEncoding.DecodeString(w.Signature)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	t.BranchHash = w.BranchTransaction
	t.TrunkHash = w.TrunkTransaction
	t.Extras = w.RefTransactions
	t.ContractID = w.Contract
	t.Timestamp = w.Timestamp
	t.Nonce = w.Nonce
	t.Signer = signer
	t.Signature = sig
	t.Data = data
	return nil
}

// hexTransaction is the hex-encoded variant of GET /transaction/<hash>/hex:
// zero-padded lowercase hex for u32/u64, base64url for address/signature.
type hexTransaction struct {
	BranchTransaction string   `json:"branch_transaction"`
	TrunkTransaction  string   `json:"trunk_transaction"`
	RefTransactions   []string `json:"ref_transactions"`
	Contract          string   `json:"contract"`
	Timestamp         string   `json:"timestamp"`
	Nonce             string   `json:"nonce"`
	Address           string   `json:"address"`
	Signature         string   `json:"signature"`
}

func hexU64(v uint64) string {
	return fmt.Sprintf("%016x", v)
}

func hexU32(v uint32) string {
	return fmt.Sprintf("%08x", v)
}

// MarshalHex renders the hex wire variant described in §6 (no payload
// field; the hex surface exists only for the numeric/identity fields).
func (t *Transaction) MarshalHex() ([]byte, error) {
	refs := make([]string, len(t.Extras))
	for i, r := range t.Extras {
		refs[i] = hexU64(r)
	}
	h := hexTransaction{
		BranchTransaction: hexU64(t.BranchHash),
		TrunkTransaction:  hexU64(t.TrunkHash),
		RefTransactions:   refs,
		Contract:          hexU64(t.ContractID),
		Timestamp:         hexU64(t.Timestamp),
		Nonce:             hexU32(t.Nonce),
		Address:           base64.URLEncoding.EncodeToString(t.Signer),
		Signature:         base64.URLEncoding.EncodeToString(t.Signature),
	}
	return json.Marshal(h)
}

// HashHex renders a transaction digest as 16-char zero-padded lowercase hex.
func HashHex(hash uint64) string {
	return hexU64(hash)
}

// ParseHashHex parses a 16-char zero-padded lowercase hex digest.
func ParseHashHex(s string) (uint64, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 8 {
		return 0, fmt.Errorf("malformed hash hex %q", s)
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v, nil
}

// strictUnmarshalObject decodes into v with plain json.Unmarshal; it does
// not check which fields were populated. Callers distinguish "not this
// variant" by checking the variant's own field for nil afterwards.
func strictUnmarshalObject(raw json.RawMessage, v interface{}) error {
	return json.Unmarshal(raw, v)
}

// rejectDuplicateKeys walks a single top-level JSON object and errors if any
// key repeats; encoding/json silently keeps the last occurrence, which §6
// requires treating as fatal instead.
func rejectDuplicateKeys(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decode transaction: %w", err)
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != '{' {
		return fmt.Errorf("transaction must be a JSON object")
	}

	seen := make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decode transaction: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("malformed transaction object")
		}
		if seen[key] {
			return fmt.Errorf("duplicate field %q in transaction JSON", key)
		}
		seen[key] = true
		if err := skipValue(dec); err != nil {
			return err
		}
	}
	return nil
}

// skipValue consumes exactly one JSON value from dec, tracking nested
// object/array depth so callers only see top-level keys.
func skipValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decode transaction: %w", err)
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return nil
	}
	if delim != '{' && delim != '[' {
		return nil
	}
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decode transaction: %w", err)
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}
