package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pollux",
		Short: "Gossip membership for cells",
		Long: `Pollux keeps a replicated table of cells and their status, reconciled
through gossip and vector clocks.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newStartCmd(), newMembersCmd(), newIDCmd())
	return root
}
