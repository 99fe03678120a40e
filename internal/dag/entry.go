package dag

import (
	"github.com/perseus101/tangledag/internal/contract"
	"github.com/perseus101/tangledag/internal/txn"
)

// PendingEntry is a transaction admitted but not yet finalized: its overlay,
// if any, is what a descendant ExecContract on the same trunk chain resumes
// from (§9 "Overlay chain reconstruction").
type PendingEntry struct {
	Tx      *txn.Transaction
	Overlay *contract.Overlay
}
