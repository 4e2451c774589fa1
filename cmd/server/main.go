package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"raceday/internal/app"
	"raceday/internal/platform/config"
	"raceday/internal/platform/httpserver"
	"raceday/internal/platform/logger"
)

const (
	shutdownTimeout = 10 * time.Second
	sweepBatchSize  = 500
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal service packages.
func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("failed to release resources", "error", err)
		}
	}()

	srv := httpserver.New(cfg.Addr, a.Router(),
		httpserver.WithTimeouts(httpserver.Timeouts{
			Read:  cfg.HTTPReadTimeout,
			Write: cfg.HTTPWriteTimeout,
			Idle:  cfg.HTTPIdleTimeout,
		}),
		httpserver.WithErrorLog(log),
	)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting raceday", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if a.Relay != nil {
		g.Go(func() error {
			return ignoreCancel(a.Relay.Run(gctx))
		})
	}
	if cfg.HoldSweepInterval > 0 {
		g.Go(func() error {
			return ignoreCancel(a.Registrations.RunSweeper(gctx, cfg.HoldSweepInterval, sweepBatchSize))
		})
	}

	return g.Wait()
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
