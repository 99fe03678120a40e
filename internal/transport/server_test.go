package transport

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/perseus101/tangledag/internal/engine"
	"github.com/perseus101/tangledag/internal/hashing"
	"github.com/perseus101/tangledag/internal/keys"
	"github.com/perseus101/tangledag/internal/txn"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	node := engine.New(log)
	return NewServer(node, log)
}

func TestHandleTips(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest("GET", "/tips", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		TrunkHash  uint64 `json:"trunk_hash"`
		BranchHash uint64 `json:"branch_hash"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TrunkHash != txn.GenesisHash || resp.BranchHash != txn.GenesisHash {
		t.Fatalf("expected genesis tips, got %+v", resp)
	}
}

func TestPostTransactionRoundTrip(t *testing.T) {
	s := newTestServer(t)

	trunkTx, err := s.node.DAG.GetTransaction(txn.GenesisHash)
	if err != nil {
		t.Fatalf("GetTransaction(genesis): %v", err)
	}
	nonce := hashing.ProofOfWork(trunkTx.Nonce, trunkTx.Nonce)

	kp, err := keys.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	tx := txn.New(txn.GenesisHash, txn.GenesisHash, nil, 0, nonce, 1, txn.Empty())
	if err := tx.Sign(kp); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	body, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("marshal transaction: %v", err)
	}

	req := httptest.NewRequest("POST", "/transaction", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "Pending" && resp.Status != "Milestone" {
		t.Fatalf("expected pending/milestone status, got %+v", resp)
	}
}

func TestHandleRegisterPeerAssignsUUID(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(registerPeerRequest{Address: "http://peer.example:7700"})

	req := httptest.NewRequest("POST", "/peer/register", bytes.NewReader(body))
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["peer_id"] == "" {
		t.Fatalf("expected a non-empty peer_id")
	}
}
