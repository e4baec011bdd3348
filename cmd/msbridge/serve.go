package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Faultbox/meshbridge/internal/logger"
	"github.com/Faultbox/meshbridge/internal/receiver"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run a debug receiver that mirrors incoming scenes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.Named("receiver")
			a.registerRuntimeCollectors()
			recv := receiver.New(log, a.metrics.Handler())
			recv.OnPass(func(p receiver.PassInfo) {
				log.Info("pass received",
					zap.String("session", p.Session),
					zap.Int("updated", len(p.Updated)),
					zap.Int("deleted", len(p.Deleted)))
			})

			addr := net.JoinHostPort(a.cfg.Server.Address, strconv.Itoa(a.cfg.Server.Port))
			log.Info("listening", zap.String("address", addr))
			return serveHTTP(cmd.Context(), addr, recv)
		},
	}
}

func (a *app) registerRuntimeCollectors() {
	a.metrics.Registry().MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// metricsRouter serves the session metrics alone.
func (a *app) metricsRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", a.metrics.Handler())
	return r
}

// serveHTTP runs h on addr until ctx is done, then shuts down gracefully.
func serveHTTP(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
