// Package milestone implements the per-candidate milestone state machine of
// §4.5: Pending (ancestor search) → Signing (per-contract signature table)
// → Approved (terminal). The tracker keyed by candidate hash lets the DAG
// engine dispatch Chain and Sign events independently of admission order.
package milestone

import (
	"errors"
	"fmt"
	"sync"

	"github.com/perseus101/tangledag/internal/hashing"
	"github.com/perseus101/tangledag/internal/keys"
	"github.com/perseus101/tangledag/internal/txn"
)

// Errors surfaced by state-machine refusals (§7): these never poison tracker
// state, they just report the event as inapplicable.
var (
	ErrStaleChain         = errors.New("milestone: stale chain event")
	ErrDuplicateChain      = errors.New("milestone: duplicate chain event")
	ErrStaleSignature     = errors.New("milestone: stale signature event")
	ErrConflictingCandidate = errors.New("milestone: conflicting candidate")
	ErrHashCollision      = errors.New("milestone: candidate hash collision")
	ErrUnknownCandidate   = errors.New("milestone: unknown candidate hash")
	ErrInvalidSignature   = errors.New("milestone: invalid signature")
)

// Phase tags the three states a pending milestone can be in.
type Phase int

const (
	PhasePending Phase = iota
	PhaseSigning
	PhaseApproved
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "Pending"
	case PhaseSigning:
		return "Signing"
	case PhaseApproved:
		return "Approved"
	default:
		return "Unknown"
	}
}

// ChainLink is one entry of the materialized chain from the previous
// milestone (exclusive) to the candidate (inclusive), earliest ancestor
// first.
type ChainLink struct {
	Hash       uint64
	ContractID uint64
}

// Milestone is the terminal record of an Approved candidate.
type Milestone struct {
	Hash     uint64
	Previous uint64
	Chain    []ChainLink
}

// searchNode is a resolved ancestor in the Pending search tree: Child is the
// hash of the node one step closer to the candidate that this node was
// discovered as a parent of.
type searchNode struct {
	hash       uint64
	contractID uint64
	timestamp  uint64
	child      uint64
	hasChild   bool
}

// Entry is one candidate milestone's state.
type Entry struct {
	Candidate         uint64
	Previous          uint64
	previousTimestamp uint64

	Phase Phase

	// Pending
	nodes        map[uint64]*searchNode
	placeholders map[uint64]uint64 // unresolved ancestor hash -> child hash

	// Signing
	Chain  []ChainLink
	signed map[uint64]bool

	// Approved
	Milestone *Milestone
}

// SignerRegistry resolves the signer address registered for a contract id,
// the oracle §4.5 treats signature validity checking against.
type SignerRegistry interface {
	SignerFor(contractID uint64) ([]byte, bool)
}

// TransactionLocator resolves an already-admitted transaction by hash. The
// ancestor search in §4.5 walks backward over transactions that, by DAG
// causality, were admitted strictly before the candidate referencing them —
// so resolving a placeholder is a lookup against history, not something a
// future admission can satisfy.
type TransactionLocator interface {
	LocateTransaction(hash uint64) (*txn.Transaction, bool)
}

// Tracker is the engine-wide map from candidate-milestone hash to state.
type Tracker struct {
	mu       sync.Mutex
	signers  SignerRegistry
	locator  TransactionLocator
	previous uint64
	entries  map[uint64]*Entry
}

// NewTracker starts a tracker whose head milestone is the synthetic Genesis
// milestone (hash = txn.GenesisHash). locator may be nil, in which case
// Pending entries only advance via explicit NewChain/Dispatch calls.
func NewTracker(signers SignerRegistry, locator TransactionLocator) *Tracker {
	return &Tracker{
		signers:  signers,
		locator:  locator,
		previous: txn.GenesisHash,
		entries:  make(map[uint64]*Entry),
	}
}

// Head returns the hash of the most recently approved milestone.
func (t *Tracker) Head() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.previous
}

// Entry returns the tracked state for a candidate hash, if any.
func (t *Tracker) Entry(candidate uint64) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[candidate]
	return e, ok
}

// NewMilestone seeds (or, idempotently, returns) a candidate's pending
// state. Per §4.5: if either parent of c equals the previous milestone's
// hash, c starts directly in Signing with chain [c]; otherwise it starts in
// Pending with a one-node search tree rooted at c.
func (t *Tracker) NewMilestone(c *txn.Transaction, previousTimestamp uint64) (*Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	hash := c.Hash()
	if existing, ok := t.entries[hash]; ok {
		return existing, nil
	}

	e := &Entry{
		Candidate:         hash,
		Previous:          t.previous,
		previousTimestamp: previousTimestamp,
	}

	if c.TrunkHash == t.previous || c.BranchHash == t.previous {
		e.Phase = PhaseSigning
		e.Chain = []ChainLink{{Hash: hash, ContractID: c.ContractID}}
		e.signed = map[uint64]bool{c.ContractID: false}
	} else {
		e.Phase = PhasePending
		e.nodes = map[uint64]*searchNode{
			hash: {hash: hash, contractID: c.ContractID, timestamp: c.Timestamp},
		}
		e.placeholders = map[uint64]uint64{
			c.TrunkHash:  hash,
			c.BranchHash: hash,
		}
		t.tryResolvePlaceholders(e)
	}

	t.entries[hash] = e
	return e, nil
}

// NewChain dispatches a Chain(tx) event to the pending state tracked under
// candidate.
func (t *Tracker) NewChain(candidate uint64, tx *txn.Transaction) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[candidate]
	if !ok {
		return ErrUnknownCandidate
	}
	if e.Phase != PhasePending {
		return ErrStaleChain
	}
	err := t.advance(e, tx)
	if err == nil {
		t.tryResolvePlaceholders(e)
	}
	return err
}

// Dispatch feeds a just-admitted transaction to every Pending entry's search
// tree, not just the one candidate a caller happens to know about, and then
// resumes each touched entry's backward walk through the locator. This
// covers any Pending entry whose placeholder set names tx directly; the
// common case — placeholders naming transactions that already existed
// before the candidate was created — is handled by the backward walk
// NewMilestone already starts.
func (t *Tracker) Dispatch(tx *txn.Transaction) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, e := range t.entries {
		if e.Phase != PhasePending {
			continue
		}
		if err := t.advance(e, tx); err == nil {
			t.tryResolvePlaceholders(e)
		}
	}
}

// tryResolvePlaceholders walks e's outstanding placeholders backward through
// already-admitted history via the locator, repeating until the search
// either reaches Signing or no further placeholder can be resolved from
// already-known transactions. Callers must hold t.mu.
func (t *Tracker) tryResolvePlaceholders(e *Entry) {
	if t.locator == nil {
		return
	}
	for e.Phase == PhasePending {
		progressed := false
		for hash := range e.placeholders {
			tx, ok := t.locator.LocateTransaction(hash)
			if !ok {
				continue
			}
			if err := t.advance(e, tx); err == nil {
				progressed = true
			}
			if e.Phase != PhasePending {
				break
			}
		}
		if !progressed {
			return
		}
	}
}

// advance resolves tx against e's placeholder set, if tx's hash is one of
// the ancestors e's search tree is waiting on, and expands or completes the
// search accordingly. Callers must hold t.mu.
func (t *Tracker) advance(e *Entry, tx *txn.Transaction) error {
	hash := tx.Hash()
	if _, resolved := e.nodes[hash]; resolved {
		return ErrDuplicateChain
	}
	childHash, isPlaceholder := e.placeholders[hash]
	if !isPlaceholder {
		return ErrStaleChain
	}
	delete(e.placeholders, hash)

	node := &searchNode{hash: hash, contractID: tx.ContractID, timestamp: tx.Timestamp, child: childHash, hasChild: true}
	e.nodes[hash] = node

	// Adjacency to the previous milestone completes the chain regardless of
	// tx's timestamp: admission never enforces monotonically increasing
	// timestamps, so a stale-but-adjacent transaction must still be allowed
	// to close the search rather than being truncated below.
	if tx.TrunkHash == e.Previous || tx.BranchHash == e.Previous {
		e.Chain = materializeChain(e.nodes, hash)
		e.signed = make(map[uint64]bool)
		for _, link := range e.Chain {
			e.signed[link.ContractID] = false
		}
		e.Phase = PhaseSigning
		e.nodes = nil
		e.placeholders = nil
		return nil
	}

	if tx.Timestamp <= e.previousTimestamp {
		// Truncated: this branch of the search cannot reach the previous
		// milestone, so it is not expanded further.
		return nil
	}

	for _, parent := range [2]uint64{tx.TrunkHash, tx.BranchHash} {
		if _, already := e.nodes[parent]; already {
			continue
		}
		if _, already := e.placeholders[parent]; already {
			continue
		}
		e.placeholders[parent] = hash
	}
	return nil
}

// materializeChain walks child pointers from the node adjacent to the
// previous milestone up to the candidate, producing an earliest-ancestor
// first ordered chain.
func materializeChain(nodes map[uint64]*searchNode, fromAdjacentToPrevious uint64) []ChainLink {
	var chain []ChainLink
	cur := fromAdjacentToPrevious
	for {
		n, ok := nodes[cur]
		if !ok {
			break
		}
		chain = append(chain, ChainLink{Hash: n.hash, ContractID: n.contractID})
		if !n.hasChild {
			break
		}
		cur = n.child
	}
	return chain
}

// MilestoneDigest derives the 32-byte message digest milestone signers sign
// over: the candidate's identity hash, widened via SHA-256 the same way the
// transaction layer widens its own signing digest.
func MilestoneDigest(candidateHash uint64) [32]byte {
	b := hashing.NewBuilder()
	b.Uint64(candidateHash)
	return b.Sum256()
}

// Sign dispatches a Sign(signature) event for contractID against the
// candidate's Signing state, verifying it against the registered signer.
// When every distinct contract id in the chain has signed, the candidate
// transitions to Approved and its Milestone is returned.
func (t *Tracker) Sign(candidate uint64, contractID uint64, signature []byte) (*Milestone, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[candidate]
	if !ok {
		return nil, ErrUnknownCandidate
	}
	if e.Phase == PhasePending {
		return nil, ErrStaleSignature
	}
	if e.Phase == PhaseApproved {
		return nil, ErrStaleSignature
	}
	if _, tracked := e.signed[contractID]; !tracked {
		return nil, ErrStaleSignature
	}

	address, ok := t.signers.SignerFor(contractID)
	if !ok || !keys.Verify(address, MilestoneDigest(candidate), signature) {
		return nil, ErrInvalidSignature
	}
	e.signed[contractID] = true

	for _, ok := range e.signed {
		if !ok {
			return nil, nil
		}
	}

	m := &Milestone{Hash: candidate, Previous: e.Previous, Chain: e.Chain}
	e.Milestone = m
	e.Phase = PhaseApproved
	t.previous = candidate
	return m, nil
}

// Select implements the tie-break policy of §4.5 for two concurrent
// candidates sharing the same previous milestone: lower nonce wins,
// breaking ties by lower hash, and an exact collision on both rejects both.
func Select(aNonce uint32, aHash uint64, bNonce uint32, bHash uint64) (winner uint64, err error) {
	if aNonce == bNonce && aHash == bHash {
		return 0, fmt.Errorf("%w: nonce=%d hash=%016x", ErrHashCollision, aNonce, aHash)
	}
	if aNonce != bNonce {
		if aNonce < bNonce {
			return aHash, nil
		}
		return bHash, nil
	}
	if aHash < bHash {
		return aHash, nil
	}
	return bHash, nil
}
