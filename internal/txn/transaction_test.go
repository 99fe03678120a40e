package txn

import (
	"testing"

	"github.com/perseus101/tangledag/internal/contract"
	"github.com/perseus101/tangledag/internal/keys"
)

func mustKeyPair(t *testing.T) *keys.KeyPair {
	t.Helper()
	kp, err := keys.Generate()
	if err != nil {
		t.Fatalf("keys.Generate: %v", err)
	}
	return kp
}

func TestSignVerifyRoundTrip(t *testing.T) {
	kp := mustKeyPair(t)
	tx := New(GenesisHash, GenesisHash, nil, 7, 0, 1000, Empty())

	if err := tx.Sign(kp); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !tx.Verify() {
		t.Fatalf("expected Verify to succeed")
	}
}

func TestVerifyFailsWithoutSignature(t *testing.T) {
	tx := New(GenesisHash, GenesisHash, nil, 7, 0, 1000, Empty())
	if tx.Verify() {
		t.Fatalf("expected Verify to fail on an unsigned transaction")
	}
}

func TestVerifyFailsOnTamperedField(t *testing.T) {
	kp := mustKeyPair(t)
	tx := New(GenesisHash, GenesisHash, nil, 7, 0, 1000, Empty())
	if err := tx.Sign(kp); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	tx.Nonce = 1
	if tx.Verify() {
		t.Fatalf("expected Verify to fail after mutating a signed field")
	}
}

func TestHashExcludesSignature(t *testing.T) {
	kp := mustKeyPair(t)
	tx := New(GenesisHash, GenesisHash, nil, 7, 0, 1000, Empty())
	before := tx.Hash()

	if err := tx.Sign(kp); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if after := tx.Hash(); before != after {
		t.Fatalf("expected Hash to be unaffected by signing: before=%d after=%d", before, after)
	}
}

func TestHashSensitiveToPayload(t *testing.T) {
	a := New(GenesisHash, GenesisHash, nil, 7, 0, 1000, ExecContractData("f", []contract.Value{contract.U32(1)}))
	b := New(GenesisHash, GenesisHash, nil, 7, 0, 1000, ExecContractData("f", []contract.Value{contract.U32(2)}))
	if a.Hash() == b.Hash() {
		t.Fatalf("expected distinct payload args to produce distinct hashes")
	}
}

func TestIsGenesisPair(t *testing.T) {
	if !IsGenesisPair(GenesisHash, GenesisHash) {
		t.Fatalf("expected (GenesisHash, GenesisHash) to be the genesis pair")
	}
	if IsGenesisPair(GenesisHash, 1) {
		t.Fatalf("expected a non-genesis branch to fail IsGenesisPair")
	}
}
