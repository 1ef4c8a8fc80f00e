// ckb-vm runs RV64 IMAC programs under either the plain interpreter or the
// trace caching machine, and ships small disassembly and debugging helpers.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/juniuszhou/ckb-vm/log"
)

var (
	logLevel string
	modules  []string
)

func main() {
	root := &cobra.Command{
		Use:   "ckb-vm",
		Short: "RV64 virtual machine with a basic block trace cache",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := log.ParseLevel(logLevel); err != nil {
				return err
			}
			log.InitLogger(logLevel)
			for _, m := range modules {
				log.EnableModule(m)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace|debug|info|warn|error|crit)")
	root.PersistentFlags().StringSliceVar(&modules, "log-module", nil, "extra log modules to enable (machine, memory)")

	root.AddCommand(newRunCommand())
	root.AddCommand(newDisasmCommand())
	root.AddCommand(newDebugCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
