package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pscheid92/wastepoints/internal/adapter/httpserver"
	"github.com/pscheid92/wastepoints/internal/app"
)

const shutdownTimeout = 10 * time.Second

func runServe(ctx context.Context, a *app.App, args []string, _ io.Writer) error {
	fs := newFlagSet("serve")
	addr := fs.String("addr", a.Config.ListenAddr, "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	a.Config.ListenAddr = *addr

	srv := httpserver.NewServer(a.Config, a.Session, a.Store, a.Registry, []httpserver.HealthCheck{
		{Name: "state_store", Check: a.PingStateStore},
	})

	refreshCtx, stopRefresher := context.WithCancel(ctx)
	refresher := app.NewRefresher(a.Store, a.Session.State, a.Clock, a.Config.RefreshInterval)
	refresherDone := make(chan struct{})
	go func() {
		defer close(refresherDone)
		refresher.Run(refreshCtx)
	}()

	done := runGracefulShutdown(srv, func() {
		stopRefresher()
		<-refresherDone
	})

	if err := srv.Start(); err != nil {
		stopRefresher()
		return err
	}

	<-done
	return nil
}

func runGracefulShutdown(srv *httpserver.Server, stopWorkers func()) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		stopWorkers()
		close(done)
	}()

	return done
}
