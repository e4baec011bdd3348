package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/meshbridge/internal/config"
	"github.com/Faultbox/meshbridge/internal/host/memhost"
	"github.com/Faultbox/meshbridge/internal/logger"
	"github.com/Faultbox/meshbridge/internal/session"
	"github.com/Faultbox/meshbridge/internal/tracker"
)

func newWatchCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <scene.yaml>",
		Short: "Auto-sync a scene fixture, reloading it when the file changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.watch(cmd.Context(), args[0])
		},
	}
}

func (a *app) watch(ctx context.Context, path string) error {
	log := logger.Named("watch")
	doc, err := memhost.LoadFile(path)
	if err != nil {
		return err
	}
	s := a.session(doc)
	defer s.Close()

	if err := s.SetAutoSync(ctx, true); err != nil {
		return fmt.Errorf("receiver %s:%d: %w", a.cfg.Server.Address, a.cfg.Server.Port, err)
	}
	if err := s.Export(session.TargetEverything, tracker.Full); err != nil {
		return err
	}

	warn := func(err error) { log.Warn("watch error", zap.Error(err)) }
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return canceled(s.RunAutoSync(ctx, clockwork.NewRealClock()))
	})
	g.Go(func() error {
		return canceled(config.WatchFile(ctx, path, func() {
			next, err := memhost.LoadFile(path)
			if err != nil {
				warn(err)
				return
			}
			s.Wait()
			if err := s.SetDocument(next); err != nil {
				warn(err)
				return
			}
			next.OnRemove(s.ObjectRemoved)
			if !s.AutoSync() {
				if err := s.SetAutoSync(ctx, true); err != nil {
					warn(err)
				}
			}
			log.Info("scene reloaded", zap.String("path", path))
		}, warn))
	})
	if cfgPath := a.flags.ConfigPath(); cfgPath != "" {
		autoSync := a.cfg.Sync.AutoSync
		g.Go(func() error {
			return canceled(config.Watch(ctx, cfgPath, a.flags, func(cfg *config.Config) {
				st, _ := session.FromConfig(cfg)
				s.SetSettings(st)
				// Editing auto_sync pauses or resumes the watch.
				if cfg.Sync.AutoSync != autoSync {
					autoSync = cfg.Sync.AutoSync
					if err := s.SetAutoSync(ctx, autoSync); err != nil {
						warn(err)
					}
				}
				log.Info("settings reloaded", zap.String("path", cfgPath))
			}, warn))
		})
	}
	if addr := a.cfg.Metrics.Address; addr != "" {
		g.Go(func() error {
			log.Info("serving metrics", zap.String("address", addr))
			return serveHTTP(ctx, addr, a.metricsRouter())
		})
	}

	log.Info("watching", zap.String("scene", path), zap.Stringer("session", s.ID()))
	return g.Wait()
}

// canceled maps the error of a loop stopped by its context to nil.
func canceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
