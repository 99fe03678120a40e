package mpt

import (
	"errors"
	"fmt"

	"github.com/perseus101/tangledag/internal/contract"
	"github.com/perseus101/tangledag/internal/dagstore"
)

// Store is the backing key→value map, digest to Node. A Local store is
// append-only safe for concurrent readers; a Remote store is read-only and
// surfaces missing nodes as dagstore.ErrNotFound, which Trie maps onto
// ErrIncompleteChain where appropriate.
type Store = dagstore.Map[*Node]

// Trie binds the fixed arity/depth algorithm to a backing Store.
type Trie struct {
	store Store
}

// New returns a Trie over store.
func New(store Store) *Trie {
	return &Trie{store: store}
}

// DefaultRoot is the digest of an empty Branch; every new trie starts here
// even if that node has never been committed.
func DefaultRoot() uint64 {
	return NewBranch().Digest()
}

// nibble returns the nibble at depth d (0 = most significant nibble) of key.
func nibble(key uint64, d int) byte {
	shift := uint(60 - 4*d)
	return byte((key >> shift) & 0xF)
}

// NodeUpdates is a speculative delta produced by TrySet or TryMerge: a new
// root plus every newly minted interior node, not yet visible until
// Commit.
type NodeUpdates struct {
	Root  uint64
	Nodes map[uint64]*Node
}

func newUpdates() *NodeUpdates {
	return &NodeUpdates{Nodes: make(map[uint64]*Node)}
}

func (u *NodeUpdates) add(n *Node) uint64 {
	d := n.Digest()
	u.Nodes[d] = n
	return d
}

// fetch resolves digest either from the in-flight updates buffer or the
// backing store, with the default-root special case so a never-committed
// empty trie can still be read and extended.
func (t *Trie) fetch(digest uint64, updates *NodeUpdates) (*Node, error) {
	if updates != nil {
		if n, ok := updates.Nodes[digest]; ok {
			return n, nil
		}
	}
	n, err := t.store.Get(digest)
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, dagstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrLookup, err)
	}
	if digest == DefaultRoot() {
		return NewBranch(), nil
	}
	if _, remote := t.store.(*dagstore.Remote[*Node]); remote {
		return nil, &ErrIncompleteChain{Missing: []uint64{digest}}
	}
	return nil, ErrNotFound
}

// Get traverses 16 branches consuming nibbles top to bottom and terminates
// at a Leaf.
func (t *Trie) Get(root uint64, key uint64) (contract.Value, error) {
	cur := root
	for d := 0; d < Depth; d++ {
		node, err := t.fetch(cur, nil)
		if err != nil {
			return contract.Value{}, err
		}
		if node.Kind != KindBranch {
			return contract.Value{}, fmt.Errorf("%w: expected branch at depth %d", ErrMalformed, d)
		}
		child := node.Children[nibble(key, d)]
		if child == nil {
			return contract.Value{}, ErrNotFound
		}
		cur = *child
	}
	node, err := t.fetch(cur, nil)
	if err != nil {
		return contract.Value{}, err
	}
	if node.Kind != KindLeaf {
		return contract.Value{}, fmt.Errorf("%w: expected leaf at depth %d", ErrMalformed, Depth)
	}
	return node.Leaf, nil
}

// Node resolves a single node by its digest, for direct inspection over the
// transport surface (§6 GET /node/{hash}).
func (t *Trie) Node(digest uint64) (*Node, error) {
	return t.fetch(digest, nil)
}

// TrySet path-copies from root down the key path, creating missing
// interior nodes with defaults, installs a new Leaf at depth 16, and
// rehashes bottom-up. It does not mutate the backing store.
func (t *Trie) TrySet(root uint64, key uint64, value contract.Value) (*NodeUpdates, error) {
	updates := newUpdates()
	newRoot, err := t.setRec(root, key, value, 0, updates)
	if err != nil {
		return nil, err
	}
	updates.Root = newRoot
	return updates, nil
}

func (t *Trie) setRec(root uint64, key uint64, value contract.Value, depth int, updates *NodeUpdates) (uint64, error) {
	if depth == Depth {
		return updates.add(NewLeaf(value)), nil
	}
	node, err := t.fetch(root, updates)
	if errors.Is(err, ErrNotFound) {
		node = NewBranch()
	} else if err != nil {
		return 0, err
	}
	if node.Kind != KindBranch {
		return 0, fmt.Errorf("%w: expected branch at depth %d", ErrMalformed, depth)
	}

	idx := nibble(key, depth)
	var childRoot uint64
	if node.Children[idx] != nil {
		childRoot = *node.Children[idx]
	} else {
		childRoot = DefaultRoot()
	}

	newChildRoot, err := t.setRec(childRoot, key, value, depth+1, updates)
	if err != nil {
		return 0, err
	}
	newNode := node.Clone()
	newNode.Children[idx] = &newChildRoot
	return updates.add(newNode), nil
}

// Commit inserts every node from the delta into the backing store keyed by
// its digest. Idempotent: committing the same delta twice is a no-op past
// the first call since digests are content-addressed.
func (t *Trie) Commit(u *NodeUpdates) error {
	for digest, n := range u.Nodes {
		if err := t.store.Set(digest, n); err != nil {
			return fmt.Errorf("mpt: commit node %016x: %w", digest, err)
		}
	}
	return nil
}
