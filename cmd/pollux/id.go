package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pollux/internal/identity"
)

func newIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "id",
		Short: "Print a fresh cell identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), identity.New())
			return err
		},
	}
}
