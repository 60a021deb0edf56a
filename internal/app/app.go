// Package app wires configuration, storage and services into a running
// anticlone service. Both entrypoints under cmd/ go through it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	httpadapter "github.com/klirineu/offertrack-web/internal/adapters/http"
	"github.com/klirineu/offertrack-web/internal/adapters/postgres"
	"github.com/klirineu/offertrack-web/internal/adapters/sqlite"
	"github.com/klirineu/offertrack-web/internal/config"
	"github.com/klirineu/offertrack-web/internal/logger"
	"github.com/klirineu/offertrack-web/internal/ports"
	"github.com/klirineu/offertrack-web/internal/services/verification"
	"github.com/klirineu/offertrack-web/internal/workers/accesslog"
)

const shutdownGrace = 10 * time.Second

// Store is the persistence the service needs, whichever driver backs it.
type Store interface {
	ports.SiteRepository
	ports.CloneLedger
	ports.AccessLogRepository
	Migrate(ctx context.Context) error
	Close()
}

var (
	_ Store = (*postgres.DB)(nil)
	_ Store = (*sqlite.DB)(nil)
)

// OpenStore connects to the configured database. It does not migrate.
func OpenStore(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		db, err := postgres.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return db, nil
	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return db, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
}

// Handler builds the public HTTP handler and the access log writer behind
// it. The caller runs and closes the writer.
func Handler(cfg config.Config, store Store) (http.Handler, *accesslog.Writer) {
	logs := accesslog.New(store, cfg.AccessLog.QueueSize)
	verifier := verification.New(store, store, logs)
	proxies, err := cfg.TrustedProxies()
	if err != nil {
		logger.Warn("ignoring server.trusted_proxies: %v", err)
		proxies = nil
	}
	srv := httpadapter.New(verifier, httpadapter.Options{
		ScriptPath:     cfg.ScriptPath,
		RequestTimeout: cfg.Server.RequestTimeout,
		RateLimit:      rate.Limit(cfg.RateLimit.RPS),
		RateBurst:      cfg.RateLimit.Burst,
		TrustedProxies: proxies,
	})
	return srv.Routes(), logs
}

// Serve runs the HTTP server until ctx is cancelled, then shuts down and
// flushes queued access log entries.
func Serve(ctx context.Context, cfg config.Config, store Store) error {
	handler, logs := Handler(cfg, store)
	logs.Run(ctx, cfg.AccessLog.Workers)
	defer logs.Close()

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()
	logger.Info("listening on %s (env=%s, driver=%s)", cfg.ListenAddr, cfg.Env, cfg.Database.Driver)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	}
}
