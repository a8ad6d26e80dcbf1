package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/walletsync/internal/config"
	"github.com/congo-pay/walletsync/internal/engine"
	"github.com/congo-pay/walletsync/internal/infra"
	"github.com/congo-pay/walletsync/internal/logging"
	"github.com/congo-pay/walletsync/internal/metrics"
	"github.com/congo-pay/walletsync/internal/notification"
	"github.com/congo-pay/walletsync/internal/routes"
	"github.com/congo-pay/walletsync/internal/server"
	"github.com/congo-pay/walletsync/internal/view"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, "app", cfg.AppName, "instance", cfg.InstanceName)

	ctx := context.Background()

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.AppName)
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.NewCollector(reg)
	if err != nil {
		logger.Error("register metrics", "error", err)
		os.Exit(1)
	}

	notifiers := notification.Fanout{notification.NewLoggerNotifier(logger)}
	if db != nil {
		recorder := notification.NewPostgresRecorder(db)
		if err := recorder.EnsureSchema(ctx); err != nil {
			logger.Error("prepare transfer audit", "error", err)
			os.Exit(1)
		}
		notifiers = append(notifiers, recorder)
	}

	var v view.Snapshotter = view.NewDashboard(newStdinPrompt(os.Stdin, os.Stderr))
	if cache != nil {
		mirror := view.NewRedisMirror(v, cache, cfg.InstanceName, cfg.ViewTTL, logger)
		defer mirror.Close()
		v = mirror
	}

	eng, err := engine.New(engine.Options{
		LedgerURL:      cfg.LedgerURL,
		PollInterval:   cfg.PollInterval,
		RequestTimeout: cfg.RequestTimeout,
		TransferLock:   cfg.TransferLock,
		View:           v,
		Notifier:       notifiers,
		Logger:         logger,
		Metrics:        m,
	})
	if err != nil {
		logger.Error("build engine", "error", err)
		os.Exit(1)
	}
	defer eng.Shutdown()

	srv, err := server.New(routes.Deps{
		Cfg:      cfg,
		Client:   eng,
		DB:       db,
		Cache:    cache,
		Gatherer: reg,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()
	logger.Info("walletsync started", "ledger", cfg.LedgerURL, "address", cfg.Address(), "poll_interval", cfg.PollInterval.String())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			eng.Shutdown()
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("walletsync exited")
}
