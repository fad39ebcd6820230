package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"
	_ "time/tzdata"

	"neovest/internal/auth"
	"neovest/internal/backend"
	"neovest/internal/cli"
	"neovest/internal/dashboard"
	apphttp "neovest/internal/http"
	applog "neovest/internal/log"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)
	loc := cli.MustLocation(logger, cfg)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err.Error())
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err.Error(), "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if err := res.Close(); err != nil {
			logger.Error("Backend cleanup failed", applog.FieldError, err.Error())
		}
	}()

	authSvc, err := auth.NewService(res.Backend, res.Backend, auth.Options{
		Secret: []byte(cfg.SessionSecret),
		TTL:    cfg.SessionTTL,
		Logger: logger,
	})
	if err != nil {
		logger.Error("Failed to initialize auth", applog.FieldError, err.Error())
		os.Exit(1)
	}

	dash := dashboard.NewService(res.Backend, dashboard.Config{
		Location:    loc,
		FetchLimit:  cfg.DashboardFetchLimit,
		RecentLimit: cfg.DashboardRecentLimit,
		Timeout:     cfg.DashboardTimeout,
		Logger:      logger,
	})

	opts := apphttp.Options{
		Addr:              ":" + cfg.Port,
		Auth:              authSvc,
		Dashboard:         dash,
		Writer:            res.Backend,
		Querier:           res.Backend,
		Pinger:            res.Pinger,
		Location:          loc,
		SecureCookies:     cfg.SecureCookies,
		TrustedProxies:    cfg.TrustedProxies,
		RequestsPerMinute: cfg.RequestsPerMinute,
		Logger:            logger,
	}
	srv, err := apphttp.NewServer(opts)
	if err != nil {
		logger.Error("Failed to build HTTP server", applog.FieldError, err.Error())
		os.Exit(1)
	}
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err.Error())
		}
	})

	logger.Info("Starting neovest server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"timezone", loc.String())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
