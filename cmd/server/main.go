// Stratus - Multi-Account AWS Resource Inventory Aggregation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stratus

// Package main is the entry point for the Stratus server.
//
// Stratus aggregates AWS resource inventories across every profile in
// the shared credentials files and every configured region, behind a
// rate-limited, cached, fan-out fetch engine.
//
// # Application Architecture
//
// Components initialize in order:
//
//  1. Configuration: Koanf v2 layered config (defaults, file, STRATUS_* env)
//  2. Credentials: shared-config reader and the STS session store
//  3. Clients: the cached per-(account, region, type) AWS client factory
//  4. Cache: resource cache, optionally restored from a Badger backing
//  5. Engine: rate-limited fetcher and the fan-out scheduler
//  6. Authentication: JWT or none
//  7. Supervisor tree: background workers and the HTTP server
//
// # Configuration
//
// Highest priority wins:
//   - STRATUS_* environment variables (STRATUS_SERVER_PORT, ...)
//   - Config file (stratus.yaml)
//   - Built-in defaults
//
// For JWT authentication (default):
//   - STRATUS_SECURITY_JWT_SECRET: 32+ character signing secret
//   - STRATUS_SECURITY_ADMIN_USERNAME / STRATUS_SECURITY_ADMIN_PASSWORD
//
// # Build Tags
//
//	go build -tags "persist" ./cmd/server  # Badger-backed cache persistence
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server drains
// in-flight requests (10s timeout), workers stop, and the cache backing
// is flushed and closed.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/tomtom215/stratus/internal/aggregate"
	"github.com/tomtom215/stratus/internal/api"
	"github.com/tomtom215/stratus/internal/auth"
	"github.com/tomtom215/stratus/internal/cache"
	"github.com/tomtom215/stratus/internal/clients"
	"github.com/tomtom215/stratus/internal/config"
	"github.com/tomtom215/stratus/internal/credentials"
	"github.com/tomtom215/stratus/internal/fetch"
	"github.com/tomtom215/stratus/internal/logging"
	"github.com/tomtom215/stratus/internal/metrics"
	"github.com/tomtom215/stratus/internal/supervisor"
	"github.com/tomtom215/stratus/internal/supervisor/services"
)

func main() {
	// Load configuration first to get logging settings.
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", config.Version).
		Str("default_region", cfg.AWS.DefaultRegion).
		Int("regions", len(cfg.AWS.Regions)).
		Str("auth_mode", cfg.Security.AuthMode).
		Msg("Starting Stratus")

	metrics.AppInfo.WithLabelValues(config.Version, runtime.Version()).Set(1)

	// Credential layer: profile reader over the shared config files,
	// session store on top for STS resolution.
	reader := credentials.NewReader(cfg.AWS.SharedConfigDir, cfg.AWS.ProfileCacheTTL)
	if err := reader.Reload(); err != nil {
		logging.Fatal().Err(err).
			Str("dir", cfg.AWS.SharedConfigDir).
			Msg("Failed to read AWS shared config")
	}
	sessions := credentials.NewStore(reader, cfg.AWS)

	profiles, err := reader.ListProfiles()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to list profiles")
	}
	logging.Info().Int("profiles", len(profiles)).Msg("AWS credentials loaded")

	// Resource cache, restored from the Badger backing when the persist
	// build tag and a path are configured.
	backing, err := cache.OpenBacking(cfg.Cache.PersistPath)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open cache backing")
	}
	store := cache.New(cfg.Cache, backing)
	if backing != nil {
		defer func() {
			if err := backing.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing cache backing")
			}
		}()
	}

	// Fetch engine: client factory, rate-limited fetcher, fan-out
	// scheduler. Every unit fetch runs through the cache's single flight,
	// so concurrent requests for the same unit share one fetch and
	// late-finishing fetches still land in the cache.
	factory := clients.NewFactory()
	fetcher := fetch.NewFetcher(cfg.RateLimit, cfg.Scheduler)
	sched := fetch.NewScheduler(cfg.Scheduler, fetcher, sessions, factory)
	sched.Cache = store

	engine := aggregate.New(cfg, reader, sessions, store, sched)

	handler, authMW := buildAuth(cfg, engine)

	router := api.NewRouter(cfg, handler, authMW)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  2 * cfg.Server.Timeout,
	}

	tree := supervisor.New(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddEngineService(services.NewSweeperService("cache-janitor", cfg.Cache.JanitorInterval, store.Sweep))
	tree.AddEngineService(services.NewSweeperService("session-sweeper", cfg.AWS.SessionSweepInterval, sessions.SweepExpired))
	tree.AddEngineService(services.NewRevalidatorService(engine))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go trackUptime(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Drain the error channel until the supervisor has fully stopped.
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Stratus stopped gracefully")
}

// buildAuth wires the JWT manager, admin checker, and auth middleware
// for the configured mode. Mode "none" disables authentication and is
// logged loudly; it exists for development only.
func buildAuth(cfg *config.Config, engine *aggregate.Aggregator) (*api.Handler, *auth.Middleware) {
	if cfg.Security.AuthMode == auth.ModeNone {
		logging.Warn().Msg("AUTHENTICATION DISABLED (auth_mode=none) - do not run this in production")
		return api.NewHandler(cfg, engine, nil, nil), auth.NewMiddleware(nil, auth.ModeNone)
	}

	jwtMgr, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize JWT authentication")
	}
	admin, err := auth.NewAdminChecker(cfg.Security.AdminUsername, cfg.Security.AdminPassword)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize admin credentials")
	}
	return api.NewHandler(cfg, engine, jwtMgr, admin), auth.NewMiddleware(jwtMgr, auth.ModeJWT)
}

func trackUptime(ctx context.Context) {
	start := time.Now()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.AppUptime.Set(time.Since(start).Seconds())
		}
	}
}
