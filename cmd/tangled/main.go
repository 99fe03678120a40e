// Command tangled runs a node: an admission engine, background finalization
// task, and the §6 HTTP surface, configured via pkg/config and logged via
// pkg/logging.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/perseus101/tangledag/internal/engine"
	"github.com/perseus101/tangledag/internal/transport"
	"github.com/perseus101/tangledag/pkg/config"
	"github.com/perseus101/tangledag/pkg/logging"
)

func main() {
	root := &cobra.Command{
		Use:   "tangled",
		Short: "run a tangledag node",
		RunE:  runNode,
	}
	root.Flags().String("env", "", "config overlay name (TANGLED_ENV)")
	root.Flags().String("listen", "", "override the configured listen address")
	root.Flags().Bool("dump-config", false, "print the effective configuration as YAML and exit")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runNode(cmd *cobra.Command, _ []string) error {
	env, _ := cmd.Flags().GetString("env")
	if env == "" {
		env = os.Getenv("TANGLED_ENV")
	}
	cfg, err := config.Load(env)
	if err != nil {
		return err
	}

	if dump, _ := cmd.Flags().GetBool("dump-config"); dump {
		y, err := cfg.YAML()
		if err != nil {
			return err
		}
		fmt.Print(string(y))
		return nil
	}

	log := logging.New(cfg.Logging.Level)

	node := engine.New(log)
	node.Start()
	defer node.Stop()

	srv := transport.NewServer(node, log)

	listenAddr := cfg.Network.ListenAddr
	if override, _ := cmd.Flags().GetString("listen"); override != "" {
		listenAddr = override
	}

	log.WithField("addr", listenAddr).Info("node listening")
	return http.ListenAndServe(listenAddr, srv.Router())
}
