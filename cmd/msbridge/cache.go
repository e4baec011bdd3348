package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Faultbox/meshbridge/internal/host/memhost"
	"github.com/Faultbox/meshbridge/internal/logger"
	"github.com/Faultbox/meshbridge/internal/session"
)

func newCacheCommand(a *app) *cobra.Command {
	var (
		selected bool
		current  bool
	)
	cmd := &cobra.Command{
		Use:   "cache <scene.yaml> <out.sc>",
		Short: "Write the animation of a scene fixture to a scene cache file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := memhost.LoadFile(args[0])
			if err != nil {
				return err
			}
			st, cs := session.FromConfig(a.cfg)
			if selected {
				cs.Objects = session.ScopeSelected
			}
			if current {
				cs.Range = session.RangeCurrent
			}
			x := session.NewCacheExporter(doc, st, logger.Named("cache"), a.metrics)
			n, err := x.Export(cmd.Context(), args[1], cs)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d frames\n", args[1], n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&selected, "selected", false, "Only export selected objects")
	cmd.Flags().BoolVar(&current, "current", false, "Only export the current frame")
	return cmd
}
