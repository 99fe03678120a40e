// Package finalize implements §4.6: walking an approved milestone chain
// back to (but not including) the previous milestone, writing back each
// contract's overlay at most once, and promoting transactions from pending
// to confirmed.
package finalize

import (
	"fmt"

	"github.com/perseus101/tangledag/internal/dag"
	"github.com/perseus101/tangledag/internal/milestone"
)

// Walk applies §4.6 to an approved milestone: it visits the chain
// (earliest ancestor first, as recorded by the milestone tracker) plus
// every still-pending ancestor reachable through extras/branch/trunk, using
// an explicit worklist rather than recursion (§9 design note). It takes the
// engine's write lock for the duration of the walk, matching §5's "finalize
// ancestors" short critical section.
func Walk(e *dag.Engine, m *milestone.Milestone) error {
	e.Lock()
	defer e.Unlock()

	written := make(map[uint64]bool)
	visited := make(map[uint64]bool)

	worklist := make([]uint64, len(m.Chain))
	for i, link := range m.Chain {
		worklist[i] = link.Hash
	}

	for len(worklist) > 0 {
		hash := worklist[0]
		worklist = worklist[1:]
		if visited[hash] {
			continue
		}
		visited[hash] = true

		entry, ok := e.Pending(hash)
		if !ok {
			continue
		}
		tx := entry.Tx

		if entry.Overlay != nil && !entry.Overlay.IsEmpty() && !written[tx.ContractID] {
			if err := e.ContractWriteback(hash, entry.Overlay); err != nil {
				return fmt.Errorf("finalize %016x: writeback contract %016x: %w", hash, tx.ContractID, err)
			}
			written[tx.ContractID] = true
		}

		for _, ref := range tx.Extras {
			worklist = append(worklist, ref)
		}
		worklist = append(worklist, tx.BranchHash, tx.TrunkHash)

		e.PromotePending(hash)
	}

	return nil
}
