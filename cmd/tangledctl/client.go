// tangledctl is the operator CLI: deploy a contract and invoke its
// functions against a running node, mirroring the original deploy/run
// workflow of fetching tips, proving the next nonce, and posting a signed
// transaction.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/perseus101/tangledag/internal/contract"
	"github.com/perseus101/tangledag/internal/hashing"
	"github.com/perseus101/tangledag/internal/keys"
	"github.com/perseus101/tangledag/internal/txn"
)

func nowUnix() int64 { return time.Now().Unix() }

// Client is a thin HTTP wrapper over a node's §6 transport surface.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a Client targeting baseURL (e.g. http://localhost:7700).
func NewClient(baseURL string) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{}}
}

func (c *Client) get(path string, out interface{}) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: %s: %s", path, resp.Status, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) post(path string, body, out interface{}) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := c.http.Post(c.baseURL+path, "application/json", bytes.NewReader(buf))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: %s: %s", path, resp.Status, string(b))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type tipsResponse struct {
	TrunkHash  uint64 `json:"trunk_hash"`
	BranchHash uint64 `json:"branch_hash"`
}

// GetTips fetches the node's current trunk/branch tip selection.
func (c *Client) GetTips() (trunk, branch uint64, err error) {
	var resp tipsResponse
	if err := c.get("/tips", &resp); err != nil {
		return 0, 0, err
	}
	return resp.TrunkHash, resp.BranchHash, nil
}

// GetTransaction fetches a transaction by hash.
func (c *Client) GetTransaction(hash uint64) (*txn.Transaction, error) {
	var tx txn.Transaction
	if err := c.get(fmt.Sprintf("/transaction/%016x", hash), &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

type submitResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// PostTransaction submits tx, returning the admission status string.
func (c *Client) PostTransaction(tx *txn.Transaction) (string, error) {
	var resp submitResponse
	if err := c.post("/transaction", tx, &resp); err != nil {
		return "", err
	}
	if resp.Reason != "" {
		return resp.Status, fmt.Errorf("%s", resp.Reason)
	}
	return resp.Status, nil
}

// buildAndSign assembles a transaction over the node's current tips,
// proving the nonce against both parents before signing.
func buildAndSign(c *Client, kp *keys.KeyPair, contractID uint64, data txn.Data) (*txn.Transaction, error) {
	trunkHash, branchHash, err := c.GetTips()
	if err != nil {
		return nil, fmt.Errorf("get tips: %w", err)
	}
	trunkTx, err := c.GetTransaction(trunkHash)
	if err != nil {
		return nil, fmt.Errorf("get trunk transaction: %w", err)
	}
	branchTx, err := c.GetTransaction(branchHash)
	if err != nil {
		return nil, fmt.Errorf("get branch transaction: %w", err)
	}
	nonce := hashing.ProofOfWork(trunkTx.Nonce, branchTx.Nonce)

	tx := txn.New(trunkHash, branchHash, nil, contractID, nonce, uint64(nowUnix()), data)
	if err := tx.Sign(kp); err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return tx, nil
}

// parseArgValue parses a CLI argument of the form "kind:value" into a
// contract.Value, e.g. "u32:7", "u64:42", "f64:3.14".
func parseArgValue(raw string) (contract.Value, error) {
	var kind, value string
	for i := 0; i < len(raw); i++ {
		if raw[i] == ':' {
			kind, value = raw[:i], raw[i+1:]
			break
		}
	}
	if kind == "" {
		return contract.Value{}, fmt.Errorf("argument %q must be kind:value", raw)
	}
	switch kind {
	case "u32":
		var v uint32
		if _, err := fmt.Sscanf(value, "%d", &v); err != nil {
			return contract.Value{}, err
		}
		return contract.U32(v), nil
	case "u64":
		var v uint64
		if _, err := fmt.Sscanf(value, "%d", &v); err != nil {
			return contract.Value{}, err
		}
		return contract.U64(v), nil
	case "f32":
		var v float32
		if _, err := fmt.Sscanf(value, "%f", &v); err != nil {
			return contract.Value{}, err
		}
		return contract.F32(v), nil
	case "f64":
		var v float64
		if _, err := fmt.Sscanf(value, "%f", &v); err != nil {
			return contract.Value{}, err
		}
		return contract.F64(v), nil
	default:
		return contract.Value{}, fmt.Errorf("unknown argument kind %q", kind)
	}
}
