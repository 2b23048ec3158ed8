// Ravenbridge - Fleet Telematics Bridge and Geographic Visualization
// Copyright 2026 Travis Gray (travisgrayraven)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/travisgrayraven/ravenbridge

// Package main is the entry point for the Ravenbridge server.
//
// Ravenbridge is a self-hosted bridge between the Raven Connected
// vehicle API and a fleet dashboard. It authenticates against the
// vendor, keeps the session alive across token expiry, polls the fleet
// for positions and events, and serves a REST API plus a websocket feed
// for live map updates.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: settings from environment variables and config files (Koanf v2)
//  2. Audit store: BadgerDB-backed security audit trail
//  3. Vendor session: credentials grant, then refresh-on-401 for the process lifetime
//  4. Fleet service: bounded-concurrency snapshot, media, and geofence operations
//  5. WebSocket hub: real-time updates to connected dashboards
//  6. HTTP server: REST API with JWT operator authentication
//
// All long-running components run under a suture supervisor tree, so a
// crash in the poller or the hub is restarted without taking the API
// down.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables, config file (config.yaml),
// built-in defaults.
//
// Required settings:
//   - RAVEN_BASE_URL: vendor API base URL
//   - RAVEN_API_KEY / RAVEN_API_SECRET: vendor credentials
//   - JWT_SECRET: 32+ character secret for operator token signing
//   - ADMIN_USERNAME / ADMIN_PASSWORD_HASH: operator login (bcrypt hash)
//
// # Signal Handling
//
// The server shuts down gracefully on SIGINT and SIGTERM: it stops
// accepting connections, drains in-flight requests (10s timeout), stops
// the poller and hub, and flushes the audit buffer.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/travisgrayraven/ravenbridge/internal/api"
	"github.com/travisgrayraven/ravenbridge/internal/audit"
	"github.com/travisgrayraven/ravenbridge/internal/auth"
	"github.com/travisgrayraven/ravenbridge/internal/config"
	"github.com/travisgrayraven/ravenbridge/internal/fleet"
	"github.com/travisgrayraven/ravenbridge/internal/logging"
	"github.com/travisgrayraven/ravenbridge/internal/ravenapi"
	"github.com/travisgrayraven/ravenbridge/internal/supervisor"
	ws "github.com/travisgrayraven/ravenbridge/internal/websocket"
)

func main() {
	// Load configuration first to get logging settings
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
		Str("raven_url", cfg.Raven.BaseURL).
		Str("environment", cfg.Server.Environment).
		Msg("Starting Ravenbridge")

	// Audit trail. An empty store path runs Badger in memory, which is
	// only suitable for development.
	auditStore, err := audit.OpenBadgerStore(cfg.Audit.StorePath)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open audit store")
	}
	defer func() {
		if err := auditStore.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing audit store")
		}
	}()

	auditLogger := audit.NewLogger(auditStore, &audit.Config{
		Enabled:         cfg.Audit.Enabled,
		RetentionDays:   cfg.Audit.RetentionDays,
		CleanupInterval: cfg.Audit.CleanupInterval,
		BufferSize:      cfg.Audit.BufferSize,
		LogToStdout:     cfg.Audit.LogToStdout,
	})
	defer func() {
		if err := auditLogger.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing audit logger")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	auditLogger.StartCleanupRoutine(ctx)

	// Vendor session. The initial credentials grant must succeed;
	// afterwards expired access tokens are refreshed transparently on
	// the first 401.
	sink := auditLogger.ExchangeSink()
	httpClient := &http.Client{Timeout: cfg.Raven.Timeout}

	authCtx, authCancel := context.WithTimeout(ctx, 30*time.Second)
	tokens, err := ravenapi.Authenticate(authCtx, cfg.Raven.BaseURL, cfg.Raven.APIKey, cfg.Raven.APISecret,
		ravenapi.WithHTTPClient(httpClient),
		ravenapi.WithAuditSink(sink),
	)
	authCancel()
	if err != nil {
		logging.Fatal().Err(err).Msg("Vendor authentication failed")
	}
	logging.Info().Msg("Authenticated against vendor API")

	tokenSource := ravenapi.NewTokenSource(cfg.Raven.BaseURL, tokens.RefreshToken,
		ravenapi.WithHTTPClient(httpClient),
		ravenapi.WithAuditSink(sink),
	)
	refresh := func(ctx context.Context) (string, error) {
		token, err := tokenSource.Refresh(ctx)
		auditLogger.LogTokenRefresh(err == nil)
		if err != nil {
			auditLogger.LogSessionEnded("token refresh failed")
		}
		return token, err
	}

	session := ravenapi.NewSession(
		ravenapi.Credentials{BaseURL: cfg.Raven.BaseURL, AccessToken: tokens.AccessToken},
		refresh,
		ravenapi.WithHTTPClient(httpClient),
		ravenapi.WithAuditSink(sink),
	)

	client := ravenapi.NewClient(session,
		ravenapi.WithRateLimit(cfg.Raven.RateLimit, cfg.Raven.RateBurst),
		ravenapi.WithRetryPolicy(cfg.Raven.MaxRetries, cfg.Raven.RetryDelay),
	)
	breaker := ravenapi.NewBreakerClient(client)

	// Fleet service and real-time plumbing
	fleetSvc := fleet.NewService(breaker, fleet.Config{
		SnapshotConcurrency: cfg.Fleet.SnapshotConcurrency,
		MediaConcurrency:    cfg.Fleet.MediaConcurrency,
		GeofenceConcurrency: cfg.Fleet.GeofenceConcurrency,
		EventLookback:       cfg.Fleet.EventLookback,
	})
	hub := ws.NewHub()
	poller := fleet.NewPoller(fleetSvc, hub, cfg.Fleet.PollInterval)

	// Operator authentication
	jwtManager, err := auth.NewJWTManager(cfg.Security.JWTSecret, cfg.Security.TokenTTL)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize JWT manager")
	}
	checker, err := auth.NewCredentialChecker(cfg.Security.AdminUsername, cfg.Security.AdminPasswordHash)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize credential checker")
	}

	handler := api.NewHandler(breaker, fleetSvc, hub, auditLogger, jwtManager, checker)
	middleware := api.NewMiddleware(&api.MiddlewareConfig{
		CORSAllowedOrigins: cfg.Security.CORSOrigins,
		RateLimitRequests:  cfg.API.RateLimit,
		RateLimitWindow:    time.Minute,
	}, jwtManager)
	router := api.NewRouter(handler, middleware)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	// Supervisor tree. The sutureslog hook routes suture lifecycle
	// events through zerolog.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddMessagingService(hub)
	tree.AddMessagingService(poller)
	tree.AddAPIService(supervisor.NewHTTPService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Application stopped gracefully")
}
