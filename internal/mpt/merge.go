package mpt

import "fmt"

// TryMerge performs the structural three-way merge described in §4.2:
// reconcile two trie roots (a, b) against their most recent common
// ancestor root (ref). A nil error with a non-nil NodeUpdates is success
// (including the a==b no-op case); ErrMergeConflict reports a legitimate,
// unrecoverable divergence rather than a bug.
func (t *Trie) TryMerge(a, b, ref uint64) (*NodeUpdates, error) {
	updates := newUpdates()
	root, err := t.mergeRec(a, b, ref, updates)
	if err != nil {
		return nil, err
	}
	updates.Root = root
	return updates, nil
}

func (t *Trie) mergeRec(a, b, ref uint64, updates *NodeUpdates) (uint64, error) {
	if a == b {
		return a, nil
	}

	na, err := t.fetch(a, updates)
	if err != nil {
		return 0, err
	}
	nb, err := t.fetch(b, updates)
	if err != nil {
		return 0, err
	}
	nref, err := t.fetch(ref, updates)
	if err != nil {
		return 0, err
	}

	if na.Kind != nb.Kind || na.Kind != nref.Kind {
		return 0, fmt.Errorf("%w: mismatched node kinds at merge point", ErrMalformed)
	}

	switch na.Kind {
	case KindLeaf:
		return mergeLeaf(a, b, ref)
	case KindBranch:
		return t.mergeBranch(na, nb, nref, updates)
	default:
		return 0, fmt.Errorf("%w: unknown node kind", ErrMalformed)
	}
}

// mergeLeaf implements: if both a and b diverge from ref, conflict;
// otherwise the non-reference (modified) side wins.
func mergeLeaf(a, b, ref uint64) (uint64, error) {
	aDiverge := a != ref
	bDiverge := b != ref
	switch {
	case aDiverge && bDiverge:
		return 0, ErrMergeConflict
	case aDiverge:
		return a, nil
	case bDiverge:
		return b, nil
	default:
		// a == ref == b, already short-circuited by a == b above.
		return ref, nil
	}
}

func (t *Trie) mergeBranch(na, nb, nref *Node, updates *NodeUpdates) (uint64, error) {
	merged := NewBranch()
	for i := 0; i < Arity; i++ {
		ac, bc, rc := na.Children[i], nb.Children[i], nref.Children[i]

		if ptrEqual(ac, bc) {
			merged.Children[i] = clonePtr(ac)
			continue
		}

		aMod := !ptrEqual(ac, rc)
		bMod := !ptrEqual(bc, rc)

		switch {
		case aMod && bMod:
			if rc == nil {
				// Both sides modified a child ref never had: no common
				// ancestor for this child to recurse against.
				return 0, ErrMergeConflict
			}
			childRoot, err := t.mergeRec(*ac, *bc, *rc, updates)
			if err != nil {
				return 0, err
			}
			merged.Children[i] = &childRoot

		case aMod: // b unmodified, equals ref
			if rc != nil && ac == nil {
				// a deletes a child ref had, b left it alone: cannot
				// reconcile delete vs. non-modification.
				return 0, ErrMergeConflict
			}
			merged.Children[i] = clonePtr(ac)

		case bMod: // a unmodified, equals ref
			if rc != nil && bc == nil {
				return 0, ErrMergeConflict
			}
			merged.Children[i] = clonePtr(bc)

		default:
			// Unreachable: ac != bc but neither diverges from rc would
			// imply ac == rc == bc, contradicting ptrEqual(ac, bc) above.
			merged.Children[i] = clonePtr(ac)
		}
	}
	return updates.add(merged), nil
}
