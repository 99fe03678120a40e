package hashing

import "testing"

func TestProofOfWorkIsValid(t *testing.T) {
	nonce := ProofOfWork(1, 2)
	if !ValidProof(1, 2, nonce) {
		t.Fatalf("ProofOfWork(1, 2) = %d is not a valid proof", nonce)
	}
}

func TestValidProofDeterministic(t *testing.T) {
	nonce := ProofOfWork(5, 9)
	if !ValidProof(5, 9, nonce) {
		t.Fatalf("expected nonce %d to validate", nonce)
	}
	if again := ProofOfWork(5, 9); again != nonce {
		t.Fatalf("expected ProofOfWork(5, 9) to be deterministic, got %d then %d", nonce, again)
	}
	// ProofOfWork must always return the smallest satisfying nonce.
	for smaller := uint32(0); smaller < nonce; smaller++ {
		if ValidProof(5, 9, smaller) {
			t.Fatalf("ProofOfWork(5, 9) = %d but %d is also valid", nonce, smaller)
		}
	}
}

func TestDigestOrderSensitive(t *testing.T) {
	a := NewBuilder().Uint64(1).Uint32(2).Sum()
	b := NewBuilder().Uint32(2).Uint64(1).Sum()
	if a == b {
		t.Fatalf("expected field order to affect the digest")
	}
}
