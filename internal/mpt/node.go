// Package mpt implements the fixed-arity-16, fixed-depth-16
// Merkle-Patricia trie used to commit contract state (§4.2). Keys are
// 64-bit; the path from root to leaf consumes one nibble at a time,
// most-significant first.
package mpt

import (
	"github.com/perseus101/tangledag/internal/contract"
	"github.com/perseus101/tangledag/internal/hashing"
)

// Arity is the trie's branching factor: one child per nibble value.
const Arity = 16

// Depth is the number of branch levels traversed before reaching a leaf.
const Depth = 16

// Kind tags the two Node variants.
type Kind uint8

const (
	KindBranch Kind = iota
	KindLeaf
)

// Node is either a Branch with sixteen optional child digests, or a Leaf
// carrying a ContractValue.
type Node struct {
	Kind     Kind
	Children [Arity]*uint64
	Leaf     contract.Value
}

// NewBranch returns an empty branch node (all children nil).
func NewBranch() *Node {
	return &Node{Kind: KindBranch}
}

// NewLeaf returns a leaf node carrying value.
func NewLeaf(value contract.Value) *Node {
	return &Node{Kind: KindLeaf, Leaf: value}
}

// Clone deep-copies a node so path-copy mutation never touches a committed
// node still referenced by the store.
func (n *Node) Clone() *Node {
	cp := &Node{Kind: n.Kind, Leaf: n.Leaf}
	for i, c := range n.Children {
		cp.Children[i] = clonePtr(c)
	}
	return cp
}

// Digest is the hash of the node's canonical serialization.
func (n *Node) Digest() uint64 {
	b := hashing.NewBuilder()
	switch n.Kind {
	case KindBranch:
		b.Byte(0)
		for _, c := range n.Children {
			if c == nil {
				b.Byte(0)
			} else {
				b.Byte(1)
				b.Uint64(*c)
			}
		}
	case KindLeaf:
		b.Byte(1)
		b.Byte(byte(n.Leaf.Kind()))
		b.Uint64(n.Leaf.Bits())
	}
	return b.Sum()
}

func clonePtr(p *uint64) *uint64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func ptrEqual(a, b *uint64) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}
