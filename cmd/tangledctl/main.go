package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/perseus101/tangledag/internal/contract"
	"github.com/perseus101/tangledag/internal/dagstore"
	"github.com/perseus101/tangledag/internal/keys"
	"github.com/perseus101/tangledag/internal/mpt"
	"github.com/perseus101/tangledag/internal/txn"
)

func main() {
	root := &cobra.Command{Use: "tangledctl", Short: "deploy and invoke tangledag contracts"}
	root.PersistentFlags().StringP("server", "s", "http://localhost:7700", "node server address")
	root.AddCommand(deployCmd(), runCmd(), mergeRootsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func deployCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deploy [wasm file]",
		Short: "deploy a WASM contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			server, _ := cmd.Flags().GetString("server")
			code, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read contract file: %w", err)
			}

			c := NewClient(server)
			kp, err := keys.Generate()
			if err != nil {
				return fmt.Errorf("generate signing key: %w", err)
			}

			tx, err := buildAndSign(c, kp, 0, txn.GenContractData(code))
			if err != nil {
				return err
			}
			contractID := tx.Hash()

			status, err := c.PostTransaction(tx)
			if err != nil {
				return fmt.Errorf("contract rejected: %w", err)
			}
			fmt.Printf("status: %s\ncontract id: %016x\n", status, contractID)
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [function] [args...]",
		Short: "invoke a deployed contract's function",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			server, _ := cmd.Flags().GetString("server")
			contractHex, _ := cmd.Flags().GetString("contract")
			if contractHex == "" {
				return fmt.Errorf("--contract is required")
			}
			contractID, err := txn.ParseHashHex(contractHex)
			if err != nil {
				return fmt.Errorf("parse contract id: %w", err)
			}

			function := args[0]
			values := make([]contract.Value, 0, len(args)-1)
			for _, raw := range args[1:] {
				v, err := parseArgValue(raw)
				if err != nil {
					return err
				}
				values = append(values, v)
			}

			c := NewClient(server)
			kp, err := keys.Generate()
			if err != nil {
				return fmt.Errorf("generate signing key: %w", err)
			}

			tx, err := buildAndSign(c, kp, contractID, txn.ExecContractData(function, values))
			if err != nil {
				return err
			}
			status, err := c.PostTransaction(tx)
			if err != nil {
				return fmt.Errorf("call rejected: %w", err)
			}
			fmt.Printf("status: %s\ntransaction: %016x\n", status, tx.Hash())
			return nil
		},
	}
	cmd.Flags().StringP("contract", "c", "", "contract id (hex)")
	return cmd
}

// mergeRootsCmd resolves the merge_root a client should embed in a
// transaction header for a trunk/branch pair, by fetching trie nodes
// directly from the node's GET /node/{hash} collaborator endpoint and
// running mpt.TryMerge over them locally. The node itself does not run
// this merge or check a transaction's merge_root on admission.
func mergeRootsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge-roots [trunk_root] [branch_root] [ancestor_root]",
		Short: "compute the merge_root for a trunk/branch/ancestor trie triple",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			server, _ := cmd.Flags().GetString("server")

			trunkRoot, err := txn.ParseHashHex(args[0])
			if err != nil {
				return fmt.Errorf("parse trunk_root: %w", err)
			}
			branchRoot, err := txn.ParseHashHex(args[1])
			if err != nil {
				return fmt.Errorf("parse branch_root: %w", err)
			}
			ancestorRoot, err := txn.ParseHashHex(args[2])
			if err != nil {
				return fmt.Errorf("parse ancestor_root: %w", err)
			}

			store := dagstore.NewRemote[*mpt.Node](server+"/node", func(body []byte) (*mpt.Node, error) {
				var n mpt.Node
				if err := json.Unmarshal(body, &n); err != nil {
					return nil, err
				}
				return &n, nil
			})
			trie := mpt.New(store)

			updates, err := trie.TryMerge(trunkRoot, branchRoot, ancestorRoot)
			if err != nil {
				return fmt.Errorf("merge conflict: %w", err)
			}
			fmt.Printf("merge_root: %s\n", txn.HashHex(updates.Root))
			return nil
		},
	}
	return cmd
}
