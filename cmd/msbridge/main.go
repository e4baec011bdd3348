// msbridge syncs scene documents to a live receiver and writes scene
// cache files.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Faultbox/meshbridge/internal/config"
	"github.com/Faultbox/meshbridge/internal/logger"
	"github.com/Faultbox/meshbridge/internal/metrics"
	"github.com/Faultbox/meshbridge/internal/session"
	"github.com/Faultbox/meshbridge/internal/transport"
)

var version = "dev"

// app is the state shared by every subcommand.
type app struct {
	flags   *config.Flags
	cfg     *config.Config
	metrics *metrics.Metrics
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}

func newRootCommand() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "msbridge",
		Short:         "Sync scene documents to a live receiver",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	a.flags = config.BindFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		newSyncCommand(a),
		newWatchCommand(a),
		newCacheCommand(a),
		newServeCommand(a),
		newPingCommand(a),
		newConfigCommand(a),
	)
	return cmd
}

func (a *app) init() error {
	cfg, err := config.Load("", a.flags)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.LogFile); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	a.cfg = cfg
	a.metrics = metrics.New()
	logger.Debug("config loaded",
		zap.String("receiver", fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)),
		zap.Float32("scale", cfg.Sync.ScaleFactor))
	return nil
}

// client dials the configured receiver.
func (a *app) client() *transport.Client {
	s := a.cfg.Server
	return transport.NewClient(s.Address, s.Port, s.Timeout, logger.Named("transport"))
}

// session creates a live session for doc using the loaded config.
func (a *app) session(doc sessionDoc) *session.Session {
	st, _ := session.FromConfig(a.cfg)
	sender := transport.NewAsyncSender(a.client(), a.cfg.Server.Timeout, logger.Named("sender"))
	s := session.New(doc, sender, session.Options{
		Settings: st,
		Log:      logger.Named("session"),
		Metrics:  a.metrics,
	})
	doc.OnRemove(s.ObjectRemoved)
	return s
}
