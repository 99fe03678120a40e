package milestone

import (
	"testing"

	"github.com/perseus101/tangledag/internal/keys"
	"github.com/perseus101/tangledag/internal/txn"
)

type fakeRegistry struct {
	addrs map[uint64][]byte
}

func (f *fakeRegistry) SignerFor(contractID uint64) ([]byte, bool) {
	a, ok := f.addrs[contractID]
	return a, ok
}

func sign(t *testing.T, kp *keys.KeyPair, candidate uint64) []byte {
	t.Helper()
	sig, err := kp.Sign(MilestoneDigest(candidate))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return sig
}

func TestDirectSigningWhenParentIsPrevious(t *testing.T) {
	reg := &fakeRegistry{addrs: map[uint64][]byte{}}
	tr := NewTracker(reg, nil)

	c := txn.New(txn.GenesisHash, 99, nil, 7, 150_000, 10, txn.Empty())
	e, err := tr.NewMilestone(c, 0)
	if err != nil {
		t.Fatalf("NewMilestone: %v", err)
	}
	if e.Phase != PhaseSigning {
		t.Fatalf("expected direct Signing transition, got %v", e.Phase)
	}
}

func TestPendingChainReachesSigning(t *testing.T) {
	reg := &fakeRegistry{addrs: map[uint64][]byte{}}
	tr := NewTracker(reg, nil)

	// mid is the ancestor adjacent to the (genesis) previous milestone: one
	// of its own parents is GenesisHash.
	mid := txn.New(txn.GenesisHash, 30, nil, 2, 1, 50, txn.Empty())

	// c's trunk is mid: the search tree discovers mid via a Chain event
	// keyed by mid.Hash(), which must equal c.TrunkHash.
	c := txn.New(mid.Hash(), 20, nil, 1, 150_000, 100, txn.Empty())
	e, err := tr.NewMilestone(c, 0)
	if err != nil {
		t.Fatalf("NewMilestone: %v", err)
	}
	if e.Phase != PhasePending {
		t.Fatalf("expected Pending, got %v", e.Phase)
	}

	if err := tr.NewChain(c.Hash(), mid); err != nil {
		t.Fatalf("NewChain: %v", err)
	}

	got, _ := tr.Entry(c.Hash())
	if got.Phase != PhaseSigning {
		t.Fatalf("expected Signing after chain reaches previous milestone, got %v", got.Phase)
	}
	if len(got.Chain) != 2 {
		t.Fatalf("expected chain length 2, got %d", len(got.Chain))
	}
	if got.Chain[0].Hash != mid.Hash() || got.Chain[1].Hash != c.Hash() {
		t.Fatalf("expected chain in earliest-ancestor-first order, got %+v", got.Chain)
	}
}

type fakeLocator struct {
	byHash map[uint64]*txn.Transaction
}

func (f *fakeLocator) LocateTransaction(hash uint64) (*txn.Transaction, bool) {
	tx, ok := f.byHash[hash]
	return tx, ok
}

// TestNewMilestoneResolvesMultiHopAncestorsAutomatically covers §8's
// testable scenario 5 directly: a candidate whose previous-milestone
// ancestor is two hops away (candidate -> far -> mid -> genesis) must reach
// Signing from the locator-driven backward walk NewMilestone starts, with
// no caller ever dispatching a Chain event by hand.
func TestNewMilestoneResolvesMultiHopAncestorsAutomatically(t *testing.T) {
	reg := &fakeRegistry{addrs: map[uint64][]byte{}}

	mid := txn.New(txn.GenesisHash, 999, nil, 2, 1, 50, txn.Empty())
	far := txn.New(mid.Hash(), 888, nil, 3, 4, 80, txn.Empty())

	loc := &fakeLocator{byHash: map[uint64]*txn.Transaction{
		mid.Hash(): mid,
		far.Hash(): far,
	}}
	tr := NewTracker(reg, loc)

	c := txn.New(far.Hash(), 777, nil, 1, 150_000, 100, txn.Empty())
	e, err := tr.NewMilestone(c, 0)
	if err != nil {
		t.Fatalf("NewMilestone: %v", err)
	}
	if e.Phase != PhaseSigning {
		t.Fatalf("expected the backward walk to reach Signing on its own, got %v", e.Phase)
	}
	if len(e.Chain) != 3 {
		t.Fatalf("expected a 3-link chain (mid, far, c), got %d: %+v", len(e.Chain), e.Chain)
	}
	if e.Chain[0].Hash != mid.Hash() || e.Chain[1].Hash != far.Hash() || e.Chain[2].Hash != c.Hash() {
		t.Fatalf("expected chain in earliest-ancestor-first order, got %+v", e.Chain)
	}
}

func TestSignApprovesWhenAllContractsSigned(t *testing.T) {
	kp, err := keys.Generate()
	if err != nil {
		t.Fatalf("keys.Generate: %v", err)
	}
	reg := &fakeRegistry{addrs: map[uint64][]byte{7: kp.Address()}}
	tr := NewTracker(reg, nil)

	c := txn.New(txn.GenesisHash, 99, nil, 7, 150_000, 10, txn.Empty())
	if _, err := tr.NewMilestone(c, 0); err != nil {
		t.Fatalf("NewMilestone: %v", err)
	}

	sig := sign(t, kp, c.Hash())
	m, err := tr.Sign(c.Hash(), 7, sig)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if m == nil {
		t.Fatalf("expected approval")
	}
	if tr.Head() != c.Hash() {
		t.Fatalf("expected head to advance to candidate hash")
	}
}

func TestSignRejectsUnknownContract(t *testing.T) {
	reg := &fakeRegistry{addrs: map[uint64][]byte{}}
	tr := NewTracker(reg, nil)
	c := txn.New(txn.GenesisHash, 99, nil, 7, 150_000, 10, txn.Empty())
	if _, err := tr.NewMilestone(c, 0); err != nil {
		t.Fatalf("NewMilestone: %v", err)
	}
	if _, err := tr.Sign(c.Hash(), 999, []byte("bogus")); err != ErrStaleSignature {
		t.Fatalf("expected ErrStaleSignature, got %v", err)
	}
}

func TestSelectTieBreak(t *testing.T) {
	w, err := Select(5, 100, 7, 200)
	if err != nil || w != 100 {
		t.Fatalf("expected lower nonce to win, got %d err=%v", w, err)
	}
	w, err = Select(5, 200, 5, 100)
	if err != nil || w != 100 {
		t.Fatalf("expected lower hash tie-break to win, got %d err=%v", w, err)
	}
	if _, err := Select(5, 100, 5, 100); err == nil {
		t.Fatalf("expected HashCollision error on exact collision")
	}
}
