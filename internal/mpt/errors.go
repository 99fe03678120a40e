package mpt

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a lookup descends through a missing child;
// this is an ordinary "the key isn't set" result, not a storage fault.
var ErrNotFound = errors.New("mpt: not found")

// ErrLookup wraps a backing-store error or a structurally malformed node
// encountered mid-traversal.
var ErrLookup = errors.New("mpt: lookup error")

// ErrMalformed indicates store corruption: a leaf before depth 16, a branch
// at depth 16, or mismatched node kinds during a merge. This is fatal, not
// a legitimate rejection reason.
var ErrMalformed = errors.New("mpt: malformed node")

// ErrMergeConflict indicates a three-way merge is structurally impossible
// under the policy in §4.2 — a legitimate rejection reason for the
// transaction attempting the merge, not a bug.
var ErrMergeConflict = errors.New("mpt: merge conflict")

// ErrIncompleteChain is a retry signal (§7): the local store lacks one or
// more nodes needed to complete a lookup or merge. The caller is expected
// to fetch the listed digests from a peer and retry.
type ErrIncompleteChain struct {
	Missing []uint64
}

func (e *ErrIncompleteChain) Error() string {
	return fmt.Sprintf("mpt: incomplete chain, missing %d node(s)", len(e.Missing))
}
