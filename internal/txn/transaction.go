package txn

import (
	"fmt"

	"github.com/perseus101/tangledag/internal/hashing"
	"github.com/perseus101/tangledag/internal/keys"
)

// GenesisHash is the starting tip: the fixed key under which the hardcoded
// genesis transaction is stored. It is the constant 0, not the genesis
// transaction's computed Hash().
const GenesisHash uint64 = 0

// Transaction is the immutable, once-signed record of §3. Its own digest
// (Hash) is computed over every field except Signer/Signature.
type Transaction struct {
	TrunkHash    uint64
	BranchHash   uint64
	Extras       []uint64
	ContractID   uint64
	TrunkRoot    uint64
	BranchRoot   uint64
	MergeRoot    uint64
	AncestorRoot uint64
	Timestamp    uint64
	Nonce        uint32
	Signer       []byte
	Signature    []byte
	Data         Data
}

// New builds an unsigned transaction.
func New(trunk, branch uint64, extras []uint64, contractID uint64, nonce uint32, timestamp uint64, data Data) *Transaction {
	return &Transaction{
		TrunkHash:  trunk,
		BranchHash: branch,
		Extras:     extras,
		ContractID: contractID,
		Nonce:      nonce,
		Timestamp:  timestamp,
		Data:       data,
	}
}

// canonicalizeSignedFields writes every field except Signer/Signature, in a
// stable order, for both the identity digest and the signing digest.
func (t *Transaction) canonicalizeSignedFields(b *hashing.Builder) {
	b.Uint64(t.TrunkHash)
	b.Uint64(t.BranchHash)
	b.Uint64(uint64(len(t.Extras)))
	for _, e := range t.Extras {
		b.Uint64(e)
	}
	b.Uint64(t.ContractID)
	b.Uint64(t.TrunkRoot)
	b.Uint64(t.BranchRoot)
	b.Uint64(t.MergeRoot)
	b.Uint64(t.AncestorRoot)
	b.Uint64(t.Timestamp)
	b.Uint32(t.Nonce)
	t.Data.Canonicalize(b)
}

// Canonicalize implements hashing.Canonical.
func (t *Transaction) Canonicalize(b *hashing.Builder) {
	t.canonicalizeSignedFields(b)
}

// Hash returns the transaction's 64-bit digest, excluding Signer/Signature.
func (t *Transaction) Hash() uint64 {
	return hashing.Digest(t)
}

// signingDigest derives the 32-byte message digest the signature oracle
// signs/verifies over. The 64-bit identity Hash is too narrow for the
// secp256k1 oracle's 32-byte input, so signing re-hashes the same
// canonical field stream with SHA-256 instead of reusing Hash() directly.
func (t *Transaction) signingDigest() [32]byte {
	b := hashing.NewBuilder()
	t.canonicalizeSignedFields(b)
	return b.Sum256()
}

// Sign signs the transaction with kp, setting Signer and Signature.
func (t *Transaction) Sign(kp *keys.KeyPair) error {
	sig, err := kp.Sign(t.signingDigest())
	if err != nil {
		return fmt.Errorf("sign transaction: %w", err)
	}
	t.Signer = kp.Address()
	t.Signature = sig
	return nil
}

// Verify checks Signature against Signer over the signed fields.
func (t *Transaction) Verify() bool {
	if len(t.Signer) == 0 || len(t.Signature) == 0 {
		return false
	}
	return keys.Verify(t.Signer, t.signingDigest(), t.Signature)
}

// IsGenesisPair reports whether (trunk, branch) is the genesis self-pair:
// both equal to GenesisHash.
func IsGenesisPair(trunk, branch uint64) bool {
	return trunk == GenesisHash && branch == GenesisHash
}
