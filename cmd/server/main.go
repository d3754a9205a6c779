package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"kycflow/internal/app"
	"kycflow/internal/platform/config"
	"kycflow/internal/platform/httpserver"
	"kycflow/internal/platform/logger"
	"kycflow/internal/platform/middleware"
	"kycflow/internal/ratelimit"
	httptransport "kycflow/internal/transport/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "kycflow: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stdout)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("close backends", "error", err)
		}
	}()

	health := make(map[string]httptransport.HealthChecker, len(a.Health))
	for name, check := range a.Health {
		health[name] = check
	}
	var validator middleware.TokenValidator
	if cfg.Server.RequireServiceToken {
		validator = a.APITokens
	}
	router := httptransport.NewRouter(httptransport.RouterConfig{
		Logger:         log,
		Flows:          httptransport.NewFlowHandler(a.Flows, log),
		Catalog:        httptransport.NewCatalogHandler(a.Catalog),
		Metrics:        promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}),
		TokenValidator: validator,
		RateLimit:      ratelimit.Middleware(a.Limiter, log, a.Metrics),
		Health:         health,
	})
	srv := httpserver.New(cfg.Server.Addr, router, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)

	// The audit worker outlives the HTTP server so events from the final
	// requests and from Shutdown are still delivered.
	workerCtx, stopWorker := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWorker()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.Worker.Run(workerCtx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.InfoContext(ctx, "starting kycflow", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		a.Flows.Shutdown(shutdownCtx)
		stopWorker()
		return err
	})
	return g.Wait()
}
