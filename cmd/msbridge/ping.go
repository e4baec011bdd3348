package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Faultbox/meshbridge/internal/session"
	"github.com/Faultbox/meshbridge/pkg/protocol"
)

func newPingCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the receiver answers and list its root nodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := a.client()
			defer c.Close()
			if !c.IsAvailable(ctx) {
				return fmt.Errorf("receiver %s: %w", c.Addr(), session.ErrUnavailable)
			}

			enc := protocol.NewEncoder(uuid.New())
			out := cmd.OutOrStdout()
			for _, q := range []struct {
				label string
				kind  protocol.QueryKind
			}{
				{"host", protocol.QueryHostName},
				{"protocol", protocol.QueryProtocolVersion},
				{"roots", protocol.QueryRootNodes},
			} {
				answer, err := c.Query(ctx, enc, q.kind)
				if err != nil {
					return fmt.Errorf("query %s: %w", q.label, err)
				}
				fmt.Fprintf(out, "%-9s %s\n", q.label+":", strings.Join(answer, ", "))
			}
			return nil
		},
	}
}
