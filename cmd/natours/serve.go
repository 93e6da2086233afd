// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Natours Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/natours/natours/internal/config"
	"github.com/natours/natours/internal/httpapi"
	"github.com/natours/natours/internal/observability"
)

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// ServeDeps contains injectable dependencies for the serve command.
// Nil fields use their default implementations.
type ServeDeps struct {
	// BackendOpener connects the document store.
	// Default: openBackend
	BackendOpener func(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*backend, error)

	// ObservabilityServerFactory creates the metrics and health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker) ObservabilityServer

	// ListenerFactory opens the API listener.
	// Default: net.Listen
	ListenerFactory func(network, address string) (net.Listener, error)

	// Started, when set, receives the bound API address once serving.
	Started func(addr string)
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the HTTP API server, plus the metrics and health server when
metrics.addr is set. SIGINT and SIGTERM trigger a graceful shutdown.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, newLogger(cfg), nil)
		},
	}
}

// runServe serves the API until ctx is done or a server fails.
func runServe(ctx context.Context, cfg config.Config, logger *slog.Logger, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.BackendOpener == nil {
		deps.BackendOpener = openBackend
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, ready)
		}
	}
	if deps.ListenerFactory == nil {
		deps.ListenerFactory = net.Listen
	}

	logger.Info("starting api server",
		"env", cfg.Env,
		"addr", cfg.HTTP.Addr,
		"store", cfg.Store.Kind,
		"mail", cfg.Mail.Driver,
	)

	be, err := deps.BackendOpener(ctx, cfg.Store, logger)
	if err != nil {
		return oops.Code("SERVE_STORE_FAILED").With("store", cfg.Store.Kind).Wrap(err)
	}
	defer be.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		obs     ObservabilityServer
		metrics *observability.Metrics
	)
	if cfg.Metrics.Addr != "" {
		obs = deps.ObservabilityServerFactory(cfg.Metrics.Addr, be.ready)
		obsErrs, err := obs.Start()
		if err != nil {
			return oops.Code("SERVE_METRICS_FAILED").With("addr", cfg.Metrics.Addr).Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrs, "observability", logger)
		metrics = obs.Metrics()
		logger.Info("observability server started", "addr", obs.Addr())
	}

	apiCfg, err := newAPI(cfg, be.collections, logger, metrics)
	if err != nil {
		return oops.Code("SERVE_INIT_FAILED").Wrap(err)
	}
	router, err := httpapi.NewRouter(apiCfg)
	if err != nil {
		return oops.Code("SERVE_INIT_FAILED").Wrap(err)
	}

	listener, err := deps.ListenerFactory("tcp", cfg.HTTP.Addr)
	if err != nil {
		return oops.Code("SERVE_LISTEN_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
	}
	srv := &http.Server{
		Handler:           router,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	serveErrs := make(chan error, 1)
	go func() {
		var err error
		if cfg.TLS() {
			err = srv.ServeTLS(listener, cfg.HTTP.TLSCert, cfg.HTTP.TLSKey)
		} else {
			err = srv.Serve(listener)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrs <- err
		}
		close(serveErrs)
	}()

	logger.Info("api server ready", "addr", listener.Addr().String(), "tls", cfg.TLS())
	if deps.Started != nil {
		deps.Started(listener.Addr().String())
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErrs:
		serveErr = oops.Code("SERVE_FAILED").Wrap(err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api server shutdown incomplete", "error", err)
	}
	if obs != nil {
		if err := obs.Stop(shutdownCtx); err != nil {
			logger.Warn("error stopping observability server", "error", err)
		}
	}
	<-serveErrs

	logger.Info("shutdown complete")
	return serveErr
}

// monitorServerErrors cancels ctx when errCh reports a failure. It exits
// when the channel closes or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, name string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown", "server", name, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
