package mpt

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/perseus101/tangledag/internal/contract"
	"github.com/perseus101/tangledag/internal/dagstore"
	"github.com/perseus101/tangledag/internal/txn"
)

func newTestTrie() *Trie {
	return New(dagstore.NewLocal[*Node]())
}

func TestSetThenGetRoundTrip(t *testing.T) {
	tr := newTestTrie()
	root := DefaultRoot()

	updates, err := tr.TrySet(root, 42, contract.U32(7))
	if err != nil {
		t.Fatalf("TrySet: %v", err)
	}
	if err := tr.Commit(updates); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	v, err := tr.Get(updates.Root, 42)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got, _ := v.AsU32()
	if got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
}

func TestSetPreservesOtherKeys(t *testing.T) {
	tr := newTestTrie()
	root := DefaultRoot()

	u1, err := tr.TrySet(root, 1, contract.U32(100))
	if err != nil {
		t.Fatalf("TrySet k=1: %v", err)
	}
	if err := tr.Commit(u1); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	u2, err := tr.TrySet(u1.Root, 2, contract.U32(200))
	if err != nil {
		t.Fatalf("TrySet k=2: %v", err)
	}
	if err := tr.Commit(u2); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	v1, err := tr.Get(u2.Root, 1)
	if err != nil {
		t.Fatalf("Get k=1: %v", err)
	}
	got1, _ := v1.AsU32()
	if got1 != 100 {
		t.Fatalf("expected key 1 untouched, got %d", got1)
	}

	v2, err := tr.Get(u2.Root, 2)
	if err != nil {
		t.Fatalf("Get k=2: %v", err)
	}
	got2, _ := v2.AsU32()
	if got2 != 200 {
		t.Fatalf("expected key 2 = 200, got %d", got2)
	}
}

func TestGetMissingKeyNotFound(t *testing.T) {
	tr := newTestTrie()
	_, err := tr.Get(DefaultRoot(), 999)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMergeDisjointKeysSucceeds(t *testing.T) {
	tr := newTestTrie()
	ref := DefaultRoot()

	ua, err := tr.TrySet(ref, 10, contract.U32(1))
	if err != nil {
		t.Fatalf("TrySet a: %v", err)
	}
	if err := tr.Commit(ua); err != nil {
		t.Fatalf("Commit a: %v", err)
	}

	ub, err := tr.TrySet(ref, 20, contract.U32(2))
	if err != nil {
		t.Fatalf("TrySet b: %v", err)
	}
	if err := tr.Commit(ub); err != nil {
		t.Fatalf("Commit b: %v", err)
	}

	merged, err := tr.TryMerge(ua.Root, ub.Root, ref)
	if err != nil {
		t.Fatalf("TryMerge: %v", err)
	}
	if err := tr.Commit(merged); err != nil {
		t.Fatalf("Commit merged: %v", err)
	}

	va, err := tr.Get(merged.Root, 10)
	if err != nil {
		t.Fatalf("Get 10: %v", err)
	}
	gotA, _ := va.AsU32()
	if gotA != 1 {
		t.Fatalf("expected key 10 = 1, got %d", gotA)
	}

	vb, err := tr.Get(merged.Root, 20)
	if err != nil {
		t.Fatalf("Get 20: %v", err)
	}
	gotB, _ := vb.AsU32()
	if gotB != 2 {
		t.Fatalf("expected key 20 = 2, got %d", gotB)
	}
}

func TestMergeSameKeyDifferentValuesConflicts(t *testing.T) {
	tr := newTestTrie()
	ref := DefaultRoot()

	ua, err := tr.TrySet(ref, 5, contract.U32(1))
	if err != nil {
		t.Fatalf("TrySet a: %v", err)
	}
	if err := tr.Commit(ua); err != nil {
		t.Fatalf("Commit a: %v", err)
	}

	ub, err := tr.TrySet(ref, 5, contract.U32(2))
	if err != nil {
		t.Fatalf("TrySet b: %v", err)
	}
	if err := tr.Commit(ub); err != nil {
		t.Fatalf("Commit b: %v", err)
	}

	_, err = tr.TryMerge(ua.Root, ub.Root, ref)
	if !errors.Is(err, ErrMergeConflict) {
		t.Fatalf("expected ErrMergeConflict, got %v", err)
	}
}

// TestFetchFromRemoteStoreSurfacesIncompleteChain covers §7's retry signal:
// a miss against a remote-backed store means "not yet fetched from the
// peer," not "genuinely absent," and must come back as ErrIncompleteChain
// rather than plain ErrNotFound.
func TestFetchFromRemoteStoreSurfacesIncompleteChain(t *testing.T) {
	leaf := NewLeaf(contract.U32(7))
	knownDigest := leaf.Digest()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/node/"+txn.HashHex(knownDigest) {
			body, _ := json.Marshal(leaf)
			_, _ = w.Write(body)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	store := dagstore.NewRemote[*Node](srv.URL+"/node", func(body []byte) (*Node, error) {
		var n Node
		if err := json.Unmarshal(body, &n); err != nil {
			return nil, err
		}
		return &n, nil
	})
	tr := New(store)

	if _, err := tr.Node(knownDigest); err != nil {
		t.Fatalf("Node(known): %v", err)
	}

	_, err := tr.Node(0xDEADBEEF)
	var incomplete *ErrIncompleteChain
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected ErrIncompleteChain, got %v", err)
	}
	if len(incomplete.Missing) != 1 || incomplete.Missing[0] != 0xDEADBEEF {
		t.Fatalf("expected Missing=[0xDEADBEEF], got %+v", incomplete.Missing)
	}
}

func TestMergeNoOpWhenRootsEqual(t *testing.T) {
	tr := newTestTrie()
	root := DefaultRoot()
	merged, err := tr.TryMerge(root, root, root)
	if err != nil {
		t.Fatalf("TryMerge: %v", err)
	}
	if merged.Root != root {
		t.Fatalf("expected no-op merge to keep root, got %016x", merged.Root)
	}
}
