package main

import (
	"context"
	"fmt"
	"io"
	"net/netip"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"pollux/internal/cell"
	"pollux/internal/identity"
	"pollux/internal/transport"
)

func newMembersCmd() *cobra.Command {
	var (
		peer    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "members",
		Short: "Print the membership table of a cell",
		Long: `Fetch the membership table of a running cell.

Examples:
  pollux members --peer=127.0.0.1:7946`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			endpoint, err := netip.ParseAddrPort(peer)
			if err != nil {
				return fmt.Errorf("invalid peer %q: %w", peer, err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			client := transport.NewClient(identity.New())
			defer client.Close()

			// An empty snapshot leaves the peer's table untouched
			members, err := client.Sync(ctx, endpoint, nil)
			if err != nil {
				return err
			}
			return printMembers(cmd.OutOrStdout(), members)
		},
	}

	cmd.Flags().StringVarP(&peer, "peer", "p", "", "Endpoint of a running cell (ip:port)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Request timeout")
	_ = cmd.MarkFlagRequired("peer")
	return cmd
}

func printMembers(out io.Writer, members []cell.Metadata) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tENDPOINT\tVERSION\tUPDATED")
	for _, m := range members {
		updated := "-"
		if !m.Updated.IsZero() {
			updated = m.Updated.UTC().Format(time.RFC3339)
		}
		endpoint := "-"
		if m.Endpoint.IsValid() {
			endpoint = m.Endpoint.String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.ID, m.Status, endpoint, m.Version, updated)
	}
	return w.Flush()
}
