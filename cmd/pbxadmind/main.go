package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"pbx-admin/internal/config"
	"pbx-admin/internal/db"
	"pbx-admin/internal/fsreload"
	"pbx-admin/internal/fssync"
	"pbx-admin/internal/httpapi"
	"pbx-admin/internal/metrics"
	"pbx-admin/internal/store"
	"pbx-admin/internal/tenant"
)

func main() {
	cfgPath := flag.String("config", "/etc/pbx-admin.yaml", "config file path")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(cfg.SlogHandler(os.Stdout)))

	if err := run(cfg); err != nil {
		slog.Error("pbx-admin exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeDB, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer closeDB()

	fc := cfg.FreeSWITCH
	syncer := fssync.New(fc.ConfigRoot)
	reloader := fsreload.New(fsreload.Options{
		Probe:           fc.ReloadProbe,
		Commands:        fc.ReloadCommands,
		Timeout:         fc.ReloadTimeout,
		MinInterval:     fc.ReloadMinInterval,
		BreakerFailures: fc.BreakerFailures,
		BreakerCooldown: fc.BreakerCooldown,
	}, nil)
	ctl := tenant.NewController(repo, syncer, reloader)

	prometheus.MustRegister(metrics.NewCollector(repo, time.Now()))

	if fc.SyncOnStart {
		report, err := ctl.SyncAll(ctx)
		if err != nil {
			slog.Warn("startup sync failed", "error", err)
		} else {
			slog.Info("startup sync done", "tenants", report.Tenants, "failed", len(report.Failed), "reload", report.Reload)
		}
	}

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      httpapi.NewRouter(cfg, httpapi.Services{Tenants: ctl, Source: repo, DB: repo}),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("pbx-admin listening", "addr", cfg.ListenAddr, "config_root", fc.ConfigRoot, "db", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, dc config.DatabaseConfig) (*store.Repo, func(), error) {
	switch dc.Driver {
	case config.DriverPostgres:
		pool, err := db.NewPool(dc.DSN, db.PoolOptions{
			MaxConns:        dc.MaxConns,
			MinConns:        dc.MinConns,
			MaxConnLifetime: dc.MaxConnLifetime,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("db connect: %w", err)
		}
		if err := db.MigratePostgres(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("db migrate: %w", err)
		}
		return store.NewPostgres(pool), pool.Close, nil
	default:
		sqlDB, err := db.OpenSQLite(ctx, dc.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return store.NewSQLite(sqlDB), func() { _ = sqlDB.Close() }, nil
	}
}
