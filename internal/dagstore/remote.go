package dagstore

import (
	"fmt"
	"io"
	"net/http"
	"time"
)

// Remote is an HTTP-backed Map used for peer fetches of contracts and trie
// nodes (the collaborator transport of §6). Per the design notes, Set is
// not supported for contracts or trie nodes over this transport; only the
// transaction remote map's Set carries a real admission round-trip, which
// callers build on top of Remote's Get plus their own POST.
type Remote[V any] struct {
	BaseURL string
	Client  *http.Client
	Decode  func([]byte) (V, error)
}

// NewRemote returns a read-oriented remote map fetching `BaseURL/<hex key>`.
func NewRemote[V any](baseURL string, decode func([]byte) (V, error)) *Remote[V] {
	return &Remote[V]{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 10 * time.Second},
		Decode:  decode,
	}
}

// Get fetches and decodes the value at key from the peer.
func (r *Remote[V]) Get(key uint64) (V, error) {
	var zero V
	url := fmt.Sprintf("%s/%016x", r.BaseURL, key)
	resp, err := r.Client.Get(url)
	if err != nil {
		return zero, fmt.Errorf("remote fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return zero, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return zero, fmt.Errorf("remote fetch %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, fmt.Errorf("remote fetch %s: %w", url, err)
	}
	return r.Decode(body)
}

// Set always fails: remote contract/trie-node maps are read-only from this
// node's perspective.
func (r *Remote[V]) Set(key uint64, value V) error {
	return fmt.Errorf("dagstore: remote Set not supported for this map")
}
