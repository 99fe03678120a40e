package finalize

import (
	"testing"

	"github.com/perseus101/tangledag/internal/contract"
	"github.com/perseus101/tangledag/internal/dag"
	"github.com/perseus101/tangledag/internal/dagstore"
	"github.com/perseus101/tangledag/internal/hashing"
	"github.com/perseus101/tangledag/internal/keys"
	"github.com/perseus101/tangledag/internal/milestone"
	"github.com/perseus101/tangledag/internal/mpt"
	"github.com/perseus101/tangledag/internal/txn"
)

func newTestEngine(t *testing.T) *dag.Engine {
	t.Helper()
	return dag.New(
		dagstore.NewLocal[*txn.Transaction](),
		dagstore.NewLocal[*contract.Contract](),
		dagstore.NewLocal[*mpt.Node](),
	)
}

func mustKeyPair(t *testing.T) *keys.KeyPair {
	t.Helper()
	kp, err := keys.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return kp
}

func admitEmpty(t *testing.T, e *dag.Engine, kp *keys.KeyPair, timestamp uint64) *txn.Transaction {
	t.Helper()
	trunk, branch := e.GetTips()
	trunkTx, err := e.GetTransaction(trunk)
	if err != nil {
		t.Fatalf("GetTransaction(trunk): %v", err)
	}
	branchTx, err := e.GetTransaction(branch)
	if err != nil {
		t.Fatalf("GetTransaction(branch): %v", err)
	}
	nonce := hashing.ProofOfWork(trunkTx.Nonce, branchTx.Nonce)

	tx := txn.New(trunk, branch, nil, 0, nonce, timestamp, txn.Empty())
	if err := tx.Sign(kp); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := e.AddTransaction(tx); err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}
	return tx
}

func TestWalkPromotesChainToConfirmed(t *testing.T) {
	e := newTestEngine(t)
	kp := mustKeyPair(t)

	a := admitEmpty(t, e, kp, 1)
	b := admitEmpty(t, e, kp, 2)

	m := &milestone.Milestone{
		Hash:     b.Hash(),
		Previous: txn.GenesisHash,
		Chain: []milestone.ChainLink{
			{Hash: a.Hash(), ContractID: 0},
			{Hash: b.Hash(), ContractID: 0},
		},
	}

	if err := Walk(e, m); err != nil {
		t.Fatalf("Walk: %v", err)
	}

	for _, h := range []uint64{a.Hash(), b.Hash()} {
		status, err := e.GetStatus(h)
		if err != nil {
			t.Fatalf("GetStatus(%016x): %v", h, err)
		}
		if status != dag.StatusAccepted {
			t.Fatalf("expected %016x to be confirmed, got %v", h, status)
		}
	}
}

func TestWalkIsIdempotentOnUnknownHashes(t *testing.T) {
	e := newTestEngine(t)

	m := &milestone.Milestone{
		Hash:     0xDEADBEEF,
		Previous: txn.GenesisHash,
		Chain:    []milestone.ChainLink{{Hash: 0xDEADBEEF, ContractID: 0}},
	}

	if err := Walk(e, m); err != nil {
		t.Fatalf("Walk over an untracked chain hash should be a no-op, got: %v", err)
	}
}
