// Package engine wires the DAG admission core, the milestone tracker, and
// the finalization walker into the single shared-state node described in
// §5: admission takes the DAG's write lock directly; Sign events are
// serialized by the milestone tracker's own mutex and do not take the DAG's
// write lock; finalization runs on a background task that takes the DAG's
// write lock once an approval arrives.
package engine

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/perseus101/tangledag/internal/contract"
	"github.com/perseus101/tangledag/internal/dag"
	"github.com/perseus101/tangledag/internal/dagstore"
	"github.com/perseus101/tangledag/internal/finalize"
	"github.com/perseus101/tangledag/internal/milestone"
	"github.com/perseus101/tangledag/internal/mpt"
	"github.com/perseus101/tangledag/internal/txn"
)

// Node is the node-wide facade: one DAG engine plus the background
// finalization task that drains milestone approvals.
type Node struct {
	DAG *dag.Engine
	log *logrus.Entry

	approvals chan *milestone.Milestone
	stop      chan struct{}
	wg        sync.WaitGroup
}

// New constructs a Node over freshly created local in-memory stores. Use
// the DAG field's constructor directly for remote-backed stores.
func New(log *logrus.Logger) *Node {
	txStore := dagstore.NewLocal[*txn.Transaction]()
	contractStore := dagstore.NewLocal[*contract.Contract]()
	trieStore := dagstore.NewLocal[*mpt.Node]()

	return &Node{
		DAG:       dag.New(txStore, contractStore, trieStore),
		log:       log.WithField("component", "engine"),
		approvals: make(chan *milestone.Milestone, 16),
		stop:      make(chan struct{}),
	}
}

// Start launches the background finalization task.
func (n *Node) Start() {
	n.wg.Add(1)
	go n.run()
}

// Stop signals the background finalization task to exit and waits for it.
func (n *Node) Stop() {
	close(n.stop)
	n.wg.Wait()
}

func (n *Node) run() {
	defer n.wg.Done()
	for {
		select {
		case m := <-n.approvals:
			if err := finalize.Walk(n.DAG, m); err != nil {
				n.log.WithError(err).WithField("milestone", m.Hash).Error("finalization failed")
				continue
			}
			n.log.WithField("milestone", m.Hash).WithField("chain_len", len(m.Chain)).Info("milestone finalized")
		case <-n.stop:
			return
		}
	}
}

// AddTransaction admits tx through the DAG engine.
func (n *Node) AddTransaction(tx *txn.Transaction) (dag.Status, error) {
	status, err := n.DAG.AddTransaction(tx)
	if err != nil {
		n.log.WithError(err).WithField("status", status).Debug("transaction rejected")
	}
	return status, err
}

// Sign dispatches a Sign(signature) milestone event; on approval the
// resulting Milestone is handed to the background finalization task rather
// than walked synchronously, so the caller's lock section stays short.
func (n *Node) Sign(candidate, contractID uint64, signature []byte) error {
	m, err := n.DAG.MilestoneTracker().Sign(candidate, contractID, signature)
	if err != nil {
		return err
	}
	if m != nil {
		n.approvals <- m
	}
	return nil
}
