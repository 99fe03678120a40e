// Package dag implements the transaction admission decision procedure of
// §4.4, the tip set of §4.8, and the contract registry that backs
// ExecContract dispatch. It is the synchronization point described in §5:
// a single lock guards transactions, the pending map, contracts, the
// milestone tracker, and the tip set.
package dag

import (
	"fmt"
	"sync"

	"github.com/perseus101/tangledag/internal/contract"
	"github.com/perseus101/tangledag/internal/dagstore"
	"github.com/perseus101/tangledag/internal/hashing"
	"github.com/perseus101/tangledag/internal/milestone"
	"github.com/perseus101/tangledag/internal/mpt"
	"github.com/perseus101/tangledag/internal/txn"
	"github.com/perseus101/tangledag/internal/vm"
)

// MilestoneNonceMin and MilestoneNonceMax bound the nonce window that marks
// a transaction as a milestone candidate. Per §9 design note (a), the
// source is ambiguous between both-exclusive and inclusive-exclusive across
// call sites; this implementation fixes MIN inclusive, MAX exclusive:
// tx.Nonce ∈ [MILESTONE_NONCE_MIN, MILESTONE_NONCE_MAX).
const (
	MilestoneNonceMin uint32 = 100_000
	MilestoneNonceMax uint32 = 200_000
)

// Engine is the shared-state DAG core described in §5.
type Engine struct {
	mu sync.RWMutex

	transactions dagstore.Map[*txn.Transaction]
	pending      map[uint64]*PendingEntry
	confirmed    map[uint64]bool
	contracts    dagstore.Map[*contract.Contract]
	signers      map[uint64][]byte
	tips         *tipSet

	milestones *milestone.Tracker
	trie       *mpt.Trie
	vm         *vm.VM
}

// New constructs an engine seeded with the hardcoded genesis transaction of
// §6: previous_milestone = 0, trunk = branch = 0, contract = 0, timestamp =
// 0, nonce = 0, data = Genesis. It is stored under GenesisHash rather than
// under its computed digest, since it is the root of the hash graph, not a
// member of it.
func New(txStore dagstore.Map[*txn.Transaction], contractStore dagstore.Map[*contract.Contract], trieStore mpt.Store) *Engine {
	e := &Engine{
		transactions: txStore,
		pending:      make(map[uint64]*PendingEntry),
		confirmed:    make(map[uint64]bool),
		contracts:    contractStore,
		signers:      make(map[uint64][]byte),
		tips:         newTipSet(txn.GenesisHash),
		trie:         mpt.New(trieStore),
		vm:           vm.New(),
	}
	e.milestones = milestone.NewTracker(e, e)

	genesis := txn.New(txn.GenesisHash, txn.GenesisHash, nil, 0, 0, 0, txn.Genesis())
	_ = e.transactions.Set(txn.GenesisHash, genesis)
	e.confirmed[txn.GenesisHash] = true
	return e
}

// SignerFor implements milestone.SignerRegistry: the milestone signer for a
// contract is the address that deployed it via GenContract. This is a
// deliberate resolution of §4.5's unspecified "registered key" oracle.
func (e *Engine) SignerFor(contractID uint64) ([]byte, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	addr, ok := e.signers[contractID]
	return addr, ok
}

func (e *Engine) locate(hash uint64) (*txn.Transaction, bool) {
	if tx, err := e.transactions.Get(hash); err == nil {
		return tx, true
	}
	return nil, false
}

// LocateTransaction implements milestone.TransactionLocator: the milestone
// tracker's ancestor search walks backward over already-admitted history by
// looking transactions up directly in the transaction store, independent of
// e.mu (AddTransaction already holds it when the tracker calls in).
func (e *Engine) LocateTransaction(hash uint64) (*txn.Transaction, bool) {
	return e.locate(hash)
}

func (e *Engine) pendingOverlay(hash uint64) *contract.Overlay {
	if entry, ok := e.pending[hash]; ok {
		return entry.Overlay
	}
	return nil
}

// AddTransaction executes the seven-step admission procedure of §4.4.
func (e *Engine) AddTransaction(tx *txn.Transaction) (Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Step 1: locate parents.
	trunkTx, ok := e.locate(tx.TrunkHash)
	if !ok {
		return StatusRejected, ErrTrunkNotFound
	}
	branchTx, ok := e.locate(tx.BranchHash)
	if !ok {
		return StatusRejected, ErrBranchNotFound
	}

	// Step 2: proof of work.
	if !provenNonce(trunkTx.Nonce, branchTx.Nonce, tx.Nonce) {
		return StatusRejected, ErrInvalidNonce
	}

	// Step 3: signature.
	if !tx.Verify() {
		return StatusRejected, ErrInvalidSignature
	}

	// Step 4: dispatch on payload.
	var overlay *contract.Overlay
	switch tx.Data.Kind {
	case txn.DataGenesis:
		return StatusRejected, ErrGenesisSubmitted

	case txn.DataGenContract:
		if tx.ContractID != 0 {
			return StatusRejected, ErrInvalidContractID
		}
		state, err := e.vm.Deploy(tx.Data.Code)
		if err != nil {
			return StatusRejected, fmt.Errorf("%w: %v", ErrInvalidContract, err)
		}
		c := contract.New(tx.Data.Code, state)
		contractID := tx.Hash()
		if err := e.contracts.Set(contractID, c); err != nil {
			return StatusRejected, fmt.Errorf("%w: %v", ErrInvalidContract, err)
		}
		e.signers[contractID] = tx.Signer

	case txn.DataExecContract:
		if tx.ContractID != trunkTx.ContractID && trunkTx.ContractID != 0 {
			return StatusRejected, ErrInvalidContractID
		}
		c, err := e.contracts.Get(tx.ContractID)
		if err != nil {
			return StatusRejected, ErrContractNotFound
		}
		base := contract.NewOverlay(c.State())
		if trunkOverlay := e.pendingOverlay(tx.TrunkHash); trunkOverlay != nil {
			for idx, v := range trunkOverlay.Writes() {
				_ = base.Set(idx, v)
			}
		}
		_, resultOverlay, err := e.vm.Exec(c.Source, base, tx.Data.Function, tx.Data.Args)
		if err != nil {
			return StatusRejected, &ErrExecutionFailed{Kind: tx.Data.Function, Err: err}
		}
		overlay = resultOverlay

	case txn.DataEmpty:
		// no payload effect

	default:
		return StatusRejected, fmt.Errorf("unknown payload kind %v", tx.Data.Kind)
	}

	// Step 5: extras must resolve.
	for _, ref := range tx.Extras {
		if _, ok := e.locate(ref); !ok {
			return StatusRejected, &ErrRefNotFound{Hash: ref}
		}
	}

	// Step 6: update tip set and pending map; publish the transaction.
	hash := tx.Hash()
	if err := e.transactions.Set(hash, tx); err != nil {
		return StatusRejected, fmt.Errorf("store transaction: %w", err)
	}
	e.tips.remove(tx.TrunkHash)
	e.tips.remove(tx.BranchHash)
	for _, ref := range tx.Extras {
		e.tips.remove(ref)
	}
	e.tips.add(hash)
	e.pending[hash] = &PendingEntry{Tx: tx, Overlay: overlay}

	// Step 6.5: advance every Pending milestone's ancestor search. A
	// candidate's search tree can be waiting on this hash as a placeholder
	// regardless of whether tx itself falls in the milestone nonce window.
	e.milestones.Dispatch(tx)

	// Step 7: milestone window.
	if tx.Nonce >= MilestoneNonceMin && tx.Nonce < MilestoneNonceMax {
		previousHash := e.milestones.Head()
		previousTx, _ := e.locate(previousHash)
		var previousTimestamp uint64
		if previousTx != nil {
			previousTimestamp = previousTx.Timestamp
		}
		existing, _ := e.milestones.Entry(hash)
		entry, err := e.milestones.NewMilestone(tx, previousTimestamp)
		if err != nil {
			return StatusRejected, fmt.Errorf("%w: %v", milestone.ErrConflictingCandidate, err)
		}
		if existing == nil && entry != nil {
			return StatusMilestone, nil
		}
		return StatusPending, nil
	}

	return StatusPending, nil
}

func provenNonce(trunkNonce, branchNonce, nonce uint32) bool {
	return hashing.ValidProof(trunkNonce, branchNonce, nonce)
}

// GetTips implements §4.8's get_tips: uniform selection without replacement
// over the current tip set.
func (e *Engine) GetTips() (trunk, branch uint64) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	tips := e.tips.list()
	return selectTrunkBranch(tips, func(hash uint64) uint64 {
		if tx, ok := e.locate(hash); ok {
			return tx.BranchHash
		}
		return txn.GenesisHash
	})
}

// GetTransaction returns a transaction by hash, whether pending or
// confirmed.
func (e *Engine) GetTransaction(hash uint64) (*txn.Transaction, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	tx, err := e.transactions.Get(hash)
	if err != nil {
		return nil, ErrTrunkNotFound
	}
	return tx, nil
}

// GetStatus reports a transaction's current admission status.
func (e *Engine) GetStatus(hash uint64) (Status, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.confirmed[hash] {
		return StatusAccepted, nil
	}
	if _, ok := e.pending[hash]; ok {
		if _, isMilestone := e.milestones.Entry(hash); isMilestone {
			return StatusMilestone, nil
		}
		return StatusPending, nil
	}
	return StatusRejected, fmt.Errorf("transaction not tracked: %016x", hash)
}

// GetContract returns a contract by id.
func (e *Engine) GetContract(id uint64) (*contract.Contract, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.contracts.Get(id)
}

// MilestoneTracker exposes the tracker for the finalization walker and
// transport layer.
func (e *Engine) MilestoneTracker() *milestone.Tracker { return e.milestones }

// Trie exposes the backing MPT for state-commitment verification (§4.7).
func (e *Engine) Trie() *mpt.Trie { return e.trie }

// Lock and Unlock expose the engine's single RW lock to the finalization
// walker, which re-acquires it in short sections per §5.
func (e *Engine) Lock()    { e.mu.Lock() }
func (e *Engine) Unlock()  { e.mu.Unlock() }
func (e *Engine) RLock()   { e.mu.RLock() }
func (e *Engine) RUnlock() { e.mu.RUnlock() }

// Pending exposes the pending map under the caller's own lock section.
func (e *Engine) Pending(hash uint64) (*PendingEntry, bool) {
	entry, ok := e.pending[hash]
	return entry, ok
}

// PromotePending removes hash from the pending map and marks it confirmed;
// callers must hold the write lock.
func (e *Engine) PromotePending(hash uint64) {
	delete(e.pending, hash)
	e.confirmed[hash] = true
}

// ContractWriteback applies an overlay to the committed state of the
// contract behind hash's transaction; callers must hold the write lock. A
// hash with no PendingEntry has nothing left to write back — the caller
// asked to finalize a transaction finalize already promoted out of Pending,
// or one it never admitted — which is ErrNoPendingState, not a silent no-op.
func (e *Engine) ContractWriteback(hash uint64, overlay *contract.Overlay) error {
	entry, ok := e.pending[hash]
	if !ok {
		return ErrNoPendingState
	}
	c, err := e.contracts.Get(entry.Tx.ContractID)
	if err != nil {
		return err
	}
	return c.Writeback(overlay)
}
