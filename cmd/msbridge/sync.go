package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Faultbox/meshbridge/internal/host"
	"github.com/Faultbox/meshbridge/internal/host/memhost"
	"github.com/Faultbox/meshbridge/internal/logger"
	"github.com/Faultbox/meshbridge/internal/session"
	"github.com/Faultbox/meshbridge/internal/tracker"
)

// sessionDoc is a document that reports removed objects.
type sessionDoc interface {
	host.Scene
	OnRemove(fn func(host.Object))
}

var _ sessionDoc = (*memhost.Scene)(nil)

func newSyncCommand(a *app) *cobra.Command {
	var (
		targets     string
		incremental bool
	)
	cmd := &cobra.Command{
		Use:   "sync <scene.yaml>",
		Short: "Send one pass of a scene fixture to the receiver",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseTargets(targets)
			if err != nil {
				return err
			}
			doc, err := memhost.LoadFile(args[0])
			if err != nil {
				return err
			}
			s := a.session(doc)
			defer s.Close()

			if !s.IsAvailable(cmd.Context()) {
				return fmt.Errorf("receiver %s:%d: %w", a.cfg.Server.Address, a.cfg.Server.Port, session.ErrUnavailable)
			}
			mode := tracker.Full
			if incremental {
				mode = tracker.Incremental
			}
			if err := s.Export(t, mode); err != nil {
				return err
			}
			s.Wait()
			if msg := s.ErrorMessage(); msg != "" {
				return fmt.Errorf("sync failed: %s", msg)
			}
			logger.Info("scene synced",
				zap.String("scene", args[0]),
				zap.Stringer("targets", t),
				zap.Stringer("session", s.ID()))
			return nil
		},
	}
	cmd.Flags().StringVarP(&targets, "targets", "t", "everything", "What to send: objects, materials, animations or everything (comma separated)")
	cmd.Flags().BoolVar(&incremental, "incremental", false, "Send only updated objects")
	return cmd
}

// parseTargets reads a comma separated target list.
func parseTargets(s string) (session.Target, error) {
	var t session.Target
	for _, name := range strings.Split(s, ",") {
		switch strings.TrimSpace(strings.ToLower(name)) {
		case "objects":
			t |= session.TargetObjects
		case "materials":
			t |= session.TargetMaterials
		case "animations":
			t |= session.TargetAnimations
		case "everything", "all":
			t |= session.TargetEverything
		case "":
		default:
			return 0, fmt.Errorf("unknown target %q", name)
		}
	}
	if t == 0 {
		return 0, fmt.Errorf("no targets in %q", s)
	}
	return t, nil
}
